package network

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/voxelgate/internal/protocol"
)

func TestConnection_ReadPacketAcrossWrites(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConnection(server)
	defer conn.Close()

	frame, err := protocol.EncodeFrame([]byte{0x00, 0x01, 0x02, 0x03}, false, -1)
	require.NoError(t, err)

	go func() {
		// Split the frame so the reader sees a partial prefix first.
		client.Write(frame[:2])
		client.Write(frame[2:])
	}()

	payload, err := conn.ReadPacket(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, payload)
	assert.Equal(t, uint64(len(frame)), conn.BytesIn())
}

func TestConnection_EOFIsAborted(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConnection(server)
	defer conn.Close()

	client.Close()
	_, err := conn.ReadPacket(time.Second)
	assert.ErrorIs(t, err, protocol.ErrConnectionAborted)
}

func TestConnection_CompressedWrite(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConnection(server)
	defer conn.Close()
	conn.SetCompression(16)
	assert.Equal(t, 16, conn.CompressionThreshold())

	status := &protocol.StatusResponse{JSON: string(bytes.Repeat([]byte("x"), 200))}
	done := make(chan error, 1)
	go func() { done <- conn.WritePacket(status) }()

	peer := NewConnection(client)
	peer.SetCompression(16)
	payload, err := peer.ReadPacket(time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)

	got, err := protocol.UnmarshalClientbound(protocol.PhaseStatus, payload)
	require.NoError(t, err)
	assert.Equal(t, status, got)
	assert.Less(t, conn.BytesOut(), uint64(200))
}

func TestConnection_WriteAfterClose(t *testing.T) {
	server, _ := net.Pipe()
	conn := NewConnection(server)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.True(t, conn.IsClosed())
	assert.ErrorIs(t, conn.WritePacket(&protocol.PongResponse{Payload: 1}), ErrClosed)
}

func TestListener_ServesAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan []byte, 1)
	l := NewListener("127.0.0.1:0", nil, func(ctx context.Context, conn *Connection) {
		payload, err := conn.ReadPacket(time.Second)
		if err == nil {
			handled <- payload
		}
		conn.ReadPacket(0) // block until shutdown closes the socket
	})
	require.NoError(t, l.Listen(ctx))

	served := make(chan error, 1)
	go func() { served <- l.Serve(ctx) }()

	c, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	frame, err := protocol.EncodeFrame([]byte{0x7f}, false, -1)
	require.NoError(t, err)
	_, err = c.Write(frame)
	require.NoError(t, err)

	select {
	case p := <-handled:
		assert.Equal(t, []byte{0x7f}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not receive frame")
	}
	assert.Equal(t, 1, l.Registry().Count())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Zero(t, l.Registry().Count())
}

func TestConnectionRegistry_CleanStale(t *testing.T) {
	server, _ := net.Pipe()
	conn := NewConnection(server)
	reg := NewConnectionRegistry()
	reg.Register(conn)

	assert.Zero(t, reg.CleanStale(time.Hour))
	conn.lastActivity.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	assert.Equal(t, 1, reg.CleanStale(time.Hour))
	assert.True(t, conn.IsClosed())

	reg.Unregister(conn)
	assert.Zero(t, reg.Count())
}

func TestLANAnnouncer(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewLANAnnouncer(pc.LocalAddr().String(), 10*time.Millisecond, 25565, func() string { return "Voxelgate" })
	go a.Start(ctx)

	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "[MOTD]Voxelgate[/MOTD][AD]25565[/AD]", string(buf[:n]))
}
