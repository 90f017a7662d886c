// Package network implements the game listener, framed client connections
// and the LAN world announcer.
package network

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/protocol"
)

// WriteTimeout bounds every frame write.
const WriteTimeout = 10 * time.Second

// ErrClosed is returned when writing to a closed connection.
var ErrClosed = errors.New("connection is closed")

// Connection wraps a client TCP connection with frame decoding, optional
// compression and serialized writes. Reads happen on the owning session's
// goroutine only; writes may come from any goroutine.
type Connection struct {
	mu     sync.Mutex // guards writes and threshold
	conn   net.Conn
	logger zerolog.Logger

	frames    *protocol.FrameReader
	readBuf   []byte
	threshold int // negative while compression is off

	connectedAt  time.Time
	lastActivity atomic.Int64
	bytesIn      atomic.Uint64
	bytesOut     atomic.Uint64
	closed       atomic.Bool
}

// NewConnection wraps an existing net.Conn.
func NewConnection(conn net.Conn) *Connection {
	now := time.Now()
	c := &Connection{
		conn:        conn,
		frames:      protocol.NewFrameReader(),
		readBuf:     make([]byte, protocol.ReadChunkSize),
		threshold:   -1,
		connectedAt: now,
		logger:      log.With().Str("component", "connection").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

// ReadPacket returns the next frame payload, reading from the socket until a
// whole frame is buffered. A timeout of zero waits indefinitely. A closed
// stream yields protocol.ErrConnectionAborted.
func (c *Connection) ReadPacket(timeout time.Duration) ([]byte, error) {
	for {
		payload, ok, err := c.frames.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}

		if timeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(timeout))
		} else {
			c.conn.SetReadDeadline(time.Time{})
		}

		n, err := c.conn.Read(c.readBuf)
		if n > 0 {
			c.frames.Feed(c.readBuf[:n])
			c.bytesIn.Add(uint64(n))
			c.touch()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil, protocol.ErrConnectionAborted
			}
			return nil, err
		}
		if n == 0 {
			return nil, protocol.ErrConnectionAborted
		}
	}
}

// WritePacket encodes p with its id and writes it as one frame.
func (c *Connection) WritePacket(p protocol.Packet) error {
	return c.WritePayload(protocol.Marshal(p))
}

// WritePayload frames and writes an already encoded packet payload.
func (c *Connection) WritePayload(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	frame, err := protocol.EncodeFrame(payload, c.threshold >= 0, c.threshold)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}

	c.bytesOut.Add(uint64(len(frame)))
	c.touch()
	return nil
}

// SetCompression enables the compressed frame format in both directions
// for every frame after this call. A negative threshold disables it.
func (c *Connection) SetCompression(threshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = threshold
	c.frames.SetCompressed(threshold >= 0)
	c.logger.Debug().Int("threshold", threshold).Msg("compression negotiated")
}

// CompressionThreshold returns the active threshold, or -1 when off.
func (c *Connection) CompressionThreshold() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// Close closes the connection. It is safe to call more than once.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Debug().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last read/write activity.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// ConnectedAt returns the time the connection was established.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// BytesIn returns the number of bytes read from the socket.
func (c *Connection) BytesIn() uint64 {
	return c.bytesIn.Load()
}

// BytesOut returns the number of bytes written to the socket.
func (c *Connection) BytesOut() uint64 {
	return c.bytesOut.Load()
}

// ConnectionRegistry tracks every open client connection, authenticated or
// not, keyed by remote address.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewConnectionRegistry creates a new ConnectionRegistry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*Connection),
	}
}

// Register adds a connection to the registry.
func (r *ConnectionRegistry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.RemoteAddr().String()] = conn
}

// Unregister removes a connection from the registry without closing it.
func (r *ConnectionRegistry) Unregister(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := conn.RemoteAddr().String()
	if r.conns[key] == conn {
		delete(r.conns, key)
	}
}

// Count returns the number of open connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Traffic returns the total bytes read and written by open connections.
func (r *ConnectionRegistry) Traffic() (in, out uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		in += c.BytesIn()
		out += c.BytesOut()
	}
	return in, out
}

// CloseAll closes every registered connection.
func (r *ConnectionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, conn := range r.conns {
		conn.Close()
		delete(r.conns, key)
	}
	log.Info().Msg("all connections closed")
}

// CleanStale closes connections that have been inactive for longer than
// timeout. Their sessions observe the closed socket and tear down.
func (r *ConnectionRegistry) CleanStale(timeout time.Duration) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cleaned := 0
	cutoff := time.Now().Add(-timeout)
	for key, conn := range r.conns {
		if conn.LastActivity().Before(cutoff) {
			conn.Close()
			cleaned++
			log.Warn().
				Str("remote", key).
				Time("last_activity", conn.LastActivity()).
				Msg("closed stale connection")
		}
	}
	return cleaned
}
