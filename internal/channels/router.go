// Package channels routes plugin messages (custom payloads exchanged on
// namespaced channels during configuration and play) to registered handlers.
package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/protocol"
)

// ChannelBrand carries the client and server implementation names.
const ChannelBrand = "minecraft:brand"

// Peer is the session a plugin message arrived on.
type Peer interface {
	// SendPluginMessage writes a clientbound plugin message to the peer.
	SendPluginMessage(channel string, data []byte) error
	// SetBrand records the client implementation name.
	SetBrand(brand string)
}

// Handler processes one plugin message.
type Handler func(ctx context.Context, peer Peer, data []byte) error

// Router dispatches plugin messages by channel name.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// NewDefaultRouter creates a router with the built-in channels registered.
// serverBrand is announced in reply to the client's brand.
func NewDefaultRouter(serverBrand string) *Router {
	r := NewRouter()
	r.Handle(ChannelBrand, BrandHandler(serverBrand))
	return r
}

// Handle registers h for channel, replacing any previous handler.
func (r *Router) Handle(channel string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[channel] = h
}

// Channels returns the registered channel names, sorted.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the handler for channel. Messages on unregistered channels
// are ignored and reported as unhandled.
func (r *Router) Dispatch(ctx context.Context, peer Peer, channel string, data []byte) (bool, error) {
	r.mu.RLock()
	h, ok := r.handlers[channel]
	r.mu.RUnlock()

	if !ok {
		log.Debug().Str("channel", channel).Int("bytes", len(data)).Msg("no handler for plugin channel")
		return false, nil
	}
	if err := h(ctx, peer, data); err != nil {
		return true, fmt.Errorf("channel %s: %w", channel, err)
	}
	return true, nil
}

// BrandHandler records the client's brand and answers with serverBrand.
func BrandHandler(serverBrand string) Handler {
	reply := EncodeBrand(serverBrand)
	return func(ctx context.Context, peer Peer, data []byte) error {
		brand, err := DecodeBrand(data)
		if err != nil {
			return err
		}
		peer.SetBrand(brand)
		return peer.SendPluginMessage(ChannelBrand, reply)
	}
}

// EncodeBrand encodes a brand payload.
func EncodeBrand(brand string) []byte {
	return protocol.NewPacketBuilder().WriteString(brand).Build()
}

// DecodeBrand decodes a brand payload.
func DecodeBrand(data []byte) (string, error) {
	r := protocol.NewReader(data)
	brand := r.ReadString()
	if err := r.Err(); err != nil {
		return "", fmt.Errorf("invalid brand payload: %w", err)
	}
	return brand, nil
}
