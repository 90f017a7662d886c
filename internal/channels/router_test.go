package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	brand   string
	sent    map[string][]byte
	sendErr error
}

func (p *fakePeer) SendPluginMessage(channel string, data []byte) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	if p.sent == nil {
		p.sent = map[string][]byte{}
	}
	p.sent[channel] = data
	return nil
}

func (p *fakePeer) SetBrand(brand string) { p.brand = brand }

func TestBrandHandler(t *testing.T) {
	r := NewDefaultRouter("voxelgate")
	peer := &fakePeer{}

	handled, err := r.Dispatch(context.Background(), peer, ChannelBrand, EncodeBrand("vanilla"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "vanilla", peer.brand)

	reply, err := DecodeBrand(peer.sent[ChannelBrand])
	require.NoError(t, err)
	assert.Equal(t, "voxelgate", reply)
}

func TestBrandHandler_Malformed(t *testing.T) {
	r := NewDefaultRouter("voxelgate")
	peer := &fakePeer{}

	handled, err := r.Dispatch(context.Background(), peer, ChannelBrand, []byte{0x05, 'a'})
	assert.True(t, handled)
	assert.Error(t, err)
	assert.Empty(t, peer.sent)
}

func TestDispatch_Unregistered(t *testing.T) {
	r := NewDefaultRouter("voxelgate")
	handled, err := r.Dispatch(context.Background(), &fakePeer{}, "example:custom", []byte{1, 2, 3})
	assert.NoError(t, err)
	assert.False(t, handled)
}

func TestHandle_CustomChannel(t *testing.T) {
	r := NewRouter()
	var got []byte
	r.Handle("example:custom", func(ctx context.Context, peer Peer, data []byte) error {
		got = data
		return nil
	})
	r.Handle("example:broken", func(ctx context.Context, peer Peer, data []byte) error {
		return errors.New("nope")
	})

	assert.Equal(t, []string{"example:broken", "example:custom"}, r.Channels())

	_, err := r.Dispatch(context.Background(), &fakePeer{}, "example:custom", []byte{9})
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, got)

	_, err = r.Dispatch(context.Background(), &fakePeer{}, "example:broken", nil)
	assert.EqualError(t, err, "channel example:broken: nope")
}
