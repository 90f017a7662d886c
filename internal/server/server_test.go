package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/voxelgate/internal/channels"
	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/connector"
	"github.com/energizer-project/voxelgate/internal/db"
	"github.com/energizer-project/voxelgate/internal/entityid"
	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/protocol"
)

const testThreshold = 256

type testServer struct {
	mgr   *Manager
	store *db.PlayerStore
	bus   *events.EventBus
	stop  func()
}

func startServer(t *testing.T, mutate func(*config.ServerData), opts ...func(*Options)) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	sd := cfg.GetServerData()
	sd.IP = "127.0.0.1"
	sd.Port = 0
	sd.OnlineMode = false
	sd.CompressionThreshold = testThreshold
	sd.RenderDistance = 2
	sd.KeepAliveIntervalSec = 60
	sd.KeepAliveTimeoutSec = 30
	if mutate != nil {
		mutate(&sd)
	}
	cfg.SetServerData(sd)

	store, err := db.NewPlayerStore(filepath.Join(t.TempDir(), "players.db"))
	require.NoError(t, err)

	bus := events.NewEventBus()
	options := Options{
		Config:    cfg,
		EventBus:  bus,
		Store:     store,
		Allocator: entityid.NewRange(0, 15),
	}
	for _, opt := range opts {
		opt(&options)
	}
	mgr, err := NewManager(options)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, mgr.Listen(ctx))
	served := make(chan error, 1)
	go func() { served <- mgr.Serve(ctx) }()

	ts := &testServer{mgr: mgr, store: store, bus: bus}
	ts.stop = func() {
		cancel()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		bus.Stop()
		store.Close()
	}
	t.Cleanup(ts.stop)
	return ts
}

// testClient speaks the client side of the protocol.
type testClient struct {
	t         *testing.T
	conn      net.Conn
	frames    *protocol.FrameReader
	threshold int
	phase     protocol.Phase
	buf       []byte
}

func dial(t *testing.T, addr net.Addr) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{
		t:         t,
		conn:      conn,
		frames:    protocol.NewFrameReader(),
		threshold: -1,
		buf:       make([]byte, 4096),
	}
}

func (c *testClient) send(p protocol.Packet) {
	c.t.Helper()
	frame, err := protocol.EncodeFrame(protocol.Marshal(p), c.threshold >= 0, c.threshold)
	require.NoError(c.t, err)
	_, err = c.conn.Write(frame)
	require.NoError(c.t, err)
}

func (c *testClient) recv() protocol.Packet {
	c.t.Helper()
	for {
		payload, ok, err := c.frames.Next()
		require.NoError(c.t, err)
		if ok {
			p, err := protocol.UnmarshalClientbound(c.phase, payload)
			require.NoError(c.t, err)
			return p
		}

		c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, err := c.conn.Read(c.buf)
		require.NoError(c.t, err)
		c.frames.Feed(c.buf[:n])
	}
}

// expectClosed reads until the server closes the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, err := c.conn.Read(c.buf)
		if err != nil {
			var ne net.Error
			require.False(c.t, errors.As(err, &ne) && ne.Timeout(), "server kept the connection open")
			return
		}
	}
}

func recvAs[T protocol.Packet](c *testClient) T {
	c.t.Helper()
	p := c.recv()
	v, ok := p.(T)
	require.Truef(c.t, ok, "expected %T, got %T", *new(T), p)
	return v
}

func (c *testClient) handshake(next int32) {
	c.send(&protocol.Handshake{
		ProtocolVersion: protocol.ProtocolVersion,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		NextState:       next,
	})
}

// login runs the login phase and returns once LoginSuccess is read.
func (c *testClient) login(name string, id uuid.UUID) *protocol.LoginSuccess {
	c.handshake(protocol.NextStateLogin)
	c.phase = protocol.PhaseLogin
	c.send(&protocol.LoginStart{Name: name, UUID: id})

	sc := recvAs[*protocol.SetCompression](c)
	c.threshold = int(sc.Threshold)
	c.frames.SetCompressed(true)

	success := recvAs[*protocol.LoginSuccess](c)
	c.send(&protocol.LoginAcknowledged{})
	c.phase = protocol.PhaseConfiguration
	return success
}

// configure runs the configuration phase up to the spawn teleport.
func (c *testClient) configure(world *World) (*protocol.LoginPlay, *protocol.PlayerPosition) {
	c.send(&protocol.ClientInformation{Locale: "en_us", ViewDistance: 8})
	packs := recvAs[*protocol.ClientboundKnownPacks](c)
	require.Equal(c.t, []protocol.KnownPack{protocol.CorePack}, packs.Packs)

	c.send(&protocol.PluginMessage{Channel: channels.ChannelBrand, Data: channels.EncodeBrand("vanilla")})
	brand := recvAs[*protocol.ClientboundPluginMessage](c)
	assert.Equal(c.t, channels.ChannelBrand, brand.Channel)

	c.send(&protocol.SelectKnownPacks{Packs: []protocol.KnownPack{protocol.CorePack}})
	for _, want := range world.Registries() {
		got := recvAs[*protocol.RegistryData](c)
		require.Equal(c.t, want.RegistryID, got.RegistryID)
		require.Len(c.t, got.Entries, len(want.Entries))
	}
	recvAs[*protocol.UpdateTags](c)
	recvAs[*protocol.ClientboundFinishConfiguration](c)

	c.phase = protocol.PhasePlay
	lp := recvAs[*protocol.LoginPlay](c)
	pos := recvAs[*protocol.PlayerPosition](c)
	c.send(&protocol.FinishConfiguration{})
	return lp, pos
}

func (c *testClient) joinWorld(renderDistance int) {
	c.send(&protocol.AcceptTeleportation{TeleportID: spawnTeleportID})
	c.send(&protocol.MovePlayerPosRot{X: 0, FeetY: 64, Z: 0})

	ev := recvAs[*protocol.GameEvent](c)
	require.Equal(c.t, protocol.GameEventStartWaitingForChunks, ev.Event)
	recvAs[*protocol.SetChunkCacheCenter](c)

	side := 2*renderDistance + 1
	for i := 0; i < side*side; i++ {
		recvAs[*protocol.LevelChunkWithLight](c)
	}
}

func TestStatusAndPing(t *testing.T) {
	motds := []string{"first line", "second line", "third line"}
	ts := startServer(t, func(sd *config.ServerData) {
		sd.MOTD = motds
		sd.MaxPlayers = 42
	})

	for i := 0; i < 5; i++ {
		c := dial(t, ts.mgr.Addr())
		c.handshake(protocol.NextStateStatus)
		c.phase = protocol.PhaseStatus
		c.send(&protocol.StatusRequest{})

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(recvAs[*protocol.StatusResponse](c).JSON), &doc))
		assert.Contains(t, motds, doc["description"].(map[string]interface{})["text"])
	}

	c := dial(t, ts.mgr.Addr())
	c.handshake(protocol.NextStateStatus)
	c.phase = protocol.PhaseStatus

	c.send(&protocol.StatusRequest{})
	resp := recvAs[*protocol.StatusResponse](c)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resp.JSON), &doc))
	assert.Equal(t, protocol.VersionName, doc["version"].(map[string]interface{})["name"])
	assert.Equal(t, float64(protocol.ProtocolVersion), doc["version"].(map[string]interface{})["protocol"])
	players := doc["players"].(map[string]interface{})
	assert.Equal(t, float64(42), players["max"])
	assert.Equal(t, float64(0), players["online"])
	assert.Equal(t, []interface{}{}, players["sample"])
	assert.NotContains(t, doc, "favicon")
	assert.Equal(t, false, doc["enforcesSecureChat"])

	c.send(&protocol.PingRequest{Payload: 1234567890})
	pong := recvAs[*protocol.PongResponse](c)
	assert.Equal(t, int64(1234567890), pong.Payload)
}

func TestOfflineLoginJoinChatAndLeave(t *testing.T) {
	ts := startServer(t, nil)
	joined := make(chan events.Event, 1)
	left := make(chan events.Event, 1)
	ts.bus.Subscribe(events.EventPlayerJoin, "test", func(ctx context.Context, e events.Event) error {
		joined <- e
		return nil
	})
	ts.bus.Subscribe(events.EventPlayerLeave, "test", func(ctx context.Context, e events.Event) error {
		left <- e
		return nil
	})

	id := uuid.New()
	c := dial(t, ts.mgr.Addr())

	success := c.login("Steve", id)
	assert.Equal(t, id, success.UUID)
	assert.Equal(t, "Steve", success.Name)
	assert.Empty(t, success.Properties)

	lp, pos := c.configure(ts.mgr.world)
	assert.Equal(t, OverworldName, lp.DimensionName)
	assert.Equal(t, int32(2), lp.ViewDistance)
	assert.Equal(t, int8(-1), lp.PreviousGameMode)
	assert.Equal(t, int32(SeaLevel), lp.SeaLevel)
	assert.Equal(t, int32(spawnTeleportID), pos.TeleportID)
	assert.Equal(t, float64(db.DefaultSpawnY), pos.Y)

	c.joinWorld(2)

	select {
	case e := <-joined:
		p := e.Payload.(events.PlayerPayload)
		assert.Equal(t, "Steve", p.Username)
		assert.Equal(t, lp.EntityID, p.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("no join event")
	}

	require.Eventually(t, func() bool {
		info, ok := ts.mgr.Session(id)
		return ok && info.LoginComplete
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ts.mgr.OnlineCount())
	assert.Equal(t, int64(1), ts.mgr.EntityIDsInUse())

	info, _ := ts.mgr.Session(id)
	assert.Equal(t, "vanilla", info.Brand)
	assert.Equal(t, "en_us", info.Locale)
	assert.True(t, info.TeleportAcked)

	c.send(&protocol.ChatMessage{Message: "hello"})
	chat := recvAs[*protocol.SystemChat](c)
	assert.Equal(t, "<Steve> hello", chat.Content.Text)

	c.send(&protocol.MovePlayerPos{X: 10, FeetY: 70, Z: -5})
	require.Eventually(t, func() bool {
		if err := ts.mgr.SaveAll(context.Background()); err != nil {
			return false
		}
		p, err := ts.store.Get(context.Background(), id)
		return err == nil && p.Position.X == 10 && p.Online
	}, 2*time.Second, 10*time.Millisecond)

	c.conn.Close()

	select {
	case e := <-left:
		assert.Equal(t, "Steve", e.Payload.(events.PlayerPayload).Username)
	case <-time.After(2 * time.Second):
		t.Fatal("no leave event")
	}

	require.Eventually(t, func() bool {
		return ts.mgr.OnlineCount() == 0 && ts.mgr.EntityIDsInUse() == 0
	}, 2*time.Second, 10*time.Millisecond)

	p, err := ts.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, p.Online)
	assert.Equal(t, "Steve", p.Username)
	assert.False(t, p.LastLogin.IsZero())
}

func TestCompressionDisabled(t *testing.T) {
	ts := startServer(t, func(sd *config.ServerData) {
		sd.CompressionThreshold = -1
	})

	c := dial(t, ts.mgr.Addr())
	c.handshake(protocol.NextStateLogin)
	c.phase = protocol.PhaseLogin
	c.send(&protocol.LoginStart{Name: "Alex", UUID: uuid.New()})

	success := recvAs[*protocol.LoginSuccess](c)
	assert.Equal(t, "Alex", success.Name)
}

type fakeVerifier struct {
	profile *connector.Profile
	err     error
}

func (f *fakeVerifier) VerifyOnline(ctx context.Context, name string, id uuid.UUID) (*connector.Profile, error) {
	return f.profile, f.err
}

func withVerifier(v Verifier) func(*Options) {
	return func(o *Options) { o.Verifier = v }
}

func TestOnlineLoginRejected(t *testing.T) {
	ts := startServer(t, func(sd *config.ServerData) {
		sd.OnlineMode = true
		sd.AuthFailMessage = "buy the game"
	}, withVerifier(&fakeVerifier{err: fmt.Errorf("claimed Steve: %w", connector.ErrNameMismatch)}))

	failed := make(chan events.Event, 1)
	ts.bus.Subscribe(events.EventLoginFailed, "test", func(ctx context.Context, e events.Event) error {
		failed <- e
		return nil
	})

	c := dial(t, ts.mgr.Addr())
	c.handshake(protocol.NextStateLogin)
	c.phase = protocol.PhaseLogin
	c.send(&protocol.LoginStart{Name: "Steve", UUID: uuid.New()})

	dc := recvAs[*protocol.LoginDisconnect](c)
	var reason protocol.Text
	require.NoError(t, json.Unmarshal([]byte(dc.Reason), &reason))
	assert.Equal(t, protocol.Text{Text: "buy the game", Color: "red", Bold: true}, reason)
	c.expectClosed()

	select {
	case e := <-failed:
		assert.Equal(t, "Steve", e.Payload.(events.LoginFailedPayload).Username)
	case <-time.After(2 * time.Second):
		t.Fatal("no login_failed event")
	}
}

func TestOnlineLoginAcceptedCarriesProperties(t *testing.T) {
	sig := "sig"
	props := []protocol.Property{{Name: "textures", Value: "e30=", Signature: &sig}}
	ts := startServer(t, func(sd *config.ServerData) {
		sd.OnlineMode = true
	}, withVerifier(&fakeVerifier{profile: &connector.Profile{Name: "Steve", Properties: props}}))

	c := dial(t, ts.mgr.Addr())
	success := c.login("Steve", uuid.New())
	assert.Equal(t, props, success.Properties)
}

func TestMalformedPacketClosesOnlyThatConnection(t *testing.T) {
	ts := startServer(t, nil)

	good := dial(t, ts.mgr.Addr())
	good.handshake(protocol.NextStateStatus)
	good.phase = protocol.PhaseStatus

	bad := dial(t, ts.mgr.Addr())
	// Handshake id with a truncated body.
	_, err := bad.conn.Write([]byte{0x02, 0x00, 0xfc})
	require.NoError(t, err)
	bad.expectClosed()

	good.send(&protocol.PingRequest{Payload: 7})
	assert.Equal(t, int64(7), recvAs[*protocol.PongResponse](good).Payload)
}

func TestDuplicateLoginReplacesSession(t *testing.T) {
	ts := startServer(t, nil)
	id := uuid.New()

	first := dial(t, ts.mgr.Addr())
	first.login("Steve", id)
	first.configure(ts.mgr.world)
	first.joinWorld(2)

	second := dial(t, ts.mgr.Addr())
	second.login("Steve", id)
	second.configure(ts.mgr.world)

	dc := recvAs[*protocol.PlayDisconnect](first)
	assert.Equal(t, ReasonDuplicateLogin, dc.Reason.Text)
	first.expectClosed()

	require.Eventually(t, func() bool {
		return ts.mgr.OnlineCount() == 1 && ts.mgr.EntityIDsInUse() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// readUntilSpawn reads the rest of configuration up to the spawn teleport.
func (c *testClient) readUntilSpawn() {
	c.t.Helper()
	for {
		switch c.recv().(type) {
		case *protocol.ClientboundFinishConfiguration:
			c.phase = protocol.PhasePlay
		case *protocol.PlayerPosition:
			c.send(&protocol.FinishConfiguration{})
			return
		}
	}
}

func TestDuplicateLoginConcurrentKnownPacks(t *testing.T) {
	ts := startServer(t, nil)

	for i := 0; i < 10; i++ {
		id := uuid.New()
		a := dial(t, ts.mgr.Addr())
		b := dial(t, ts.mgr.Addr())
		for _, c := range []*testClient{a, b} {
			c.login("Steve", id)
			c.send(&protocol.ClientInformation{Locale: "en_us", ViewDistance: 8})
			recvAs[*protocol.ClientboundKnownPacks](c)
		}

		packs := &protocol.SelectKnownPacks{Packs: []protocol.KnownPack{protocol.CorePack}}
		a.send(packs)
		b.send(packs)

		var info SessionInfo
		require.Eventually(t, func() bool {
			var ok bool
			info, ok = ts.mgr.Session(id)
			return ok && ts.mgr.OnlineCount() == 1 && ts.mgr.EntityIDsInUse() == 1 &&
				ts.mgr.Connections().Count() == 1
		}, 5*time.Second, 10*time.Millisecond, "iteration %d", i)

		winner, loser := a, b
		if info.Remote == b.conn.LocalAddr().String() {
			winner, loser = b, a
		}
		require.Equal(t, winner.conn.LocalAddr().String(), info.Remote)
		loser.expectClosed()

		winner.readUntilSpawn()
		winner.joinWorld(2)
		winner.send(&protocol.ChatMessage{Message: "still here"})
		assert.Equal(t, "<Steve> still here", recvAs[*protocol.SystemChat](winner).Content.Text)
		assert.Equal(t, int64(1), ts.mgr.EntityIDsInUse())

		winner.conn.Close()
		require.Eventually(t, func() bool {
			return ts.mgr.OnlineCount() == 0 && ts.mgr.EntityIDsInUse() == 0
		}, 2*time.Second, 10*time.Millisecond)

		p, err := ts.store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, p.Online)
	}
}

func TestPacketsOutsideTheirPhaseAreDropped(t *testing.T) {
	ts := startServer(t, nil)
	c := dial(t, ts.mgr.Addr())

	c.send(&protocol.MovePlayerPosRot{X: 1, FeetY: 64, Z: 1})
	c.send(&protocol.KeepAlive{KeepAliveID: 9})
	c.handshake(protocol.NextStateLogin)
	c.phase = protocol.PhaseLogin

	c.send(&protocol.ChatMessage{Message: "too early"})
	c.send(&protocol.LoginStart{Name: "Steve", UUID: uuid.New()})
	sc := recvAs[*protocol.SetCompression](c)
	c.threshold = int(sc.Threshold)
	c.frames.SetCompressed(true)
	recvAs[*protocol.LoginSuccess](c)
	c.send(&protocol.LoginAcknowledged{})
	c.phase = protocol.PhaseConfiguration

	c.send(&protocol.MovePlayerPosRot{X: 2, FeetY: 64, Z: 2})
	c.configure(ts.mgr.world)

	c.send(&protocol.ChatMessage{Message: "before join"})
	c.joinWorld(2)

	c.send(&protocol.ChatMessage{Message: "hello"})
	assert.Equal(t, "<Steve> hello", recvAs[*protocol.SystemChat](c).Content.Text)
}

func TestKickByName(t *testing.T) {
	ts := startServer(t, nil)

	c := dial(t, ts.mgr.Addr())
	c.login("Steve", uuid.New())
	c.configure(ts.mgr.world)
	c.joinWorld(2)

	require.NoError(t, ts.mgr.KickByName(context.Background(), "steve", "bye"))
	dc := recvAs[*protocol.PlayDisconnect](c)
	assert.Equal(t, "bye", dc.Reason.Text)
	c.expectClosed()

	assert.ErrorIs(t, ts.mgr.KickByName(context.Background(), "nobody", "bye"), ErrPlayerOffline)
}

func TestEntityIDsExhausted(t *testing.T) {
	alloc := entityid.NewRange(0, 0)
	_, err := alloc.Acquire()
	require.NoError(t, err)
	ts := startServer(t, nil, func(o *Options) { o.Allocator = alloc })

	c := dial(t, ts.mgr.Addr())
	c.login("Steve", uuid.New())
	c.send(&protocol.ClientInformation{Locale: "en_us", ViewDistance: 8})
	recvAs[*protocol.ClientboundKnownPacks](c)
	c.send(&protocol.SelectKnownPacks{Packs: []protocol.KnownPack{protocol.CorePack}})

	for range ts.mgr.world.Registries() {
		recvAs[*protocol.RegistryData](c)
	}
	recvAs[*protocol.UpdateTags](c)
	recvAs[*protocol.ConfigDisconnect](c)
	c.expectClosed()
	require.Eventually(t, func() bool {
		return ts.mgr.OnlineCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckKeepAlives(t *testing.T) {
	ts := startServer(t, nil)

	c := dial(t, ts.mgr.Addr())
	c.login("Steve", uuid.New())
	c.configure(ts.mgr.world)
	c.joinWorld(2)
	require.Eventually(t, func() bool {
		return len(ts.mgr.Sessions()) == 1 && ts.mgr.Sessions()[0].LoginComplete
	}, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, ts.mgr.CheckKeepAlives(context.Background(), time.Hour))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, ts.mgr.CheckKeepAlives(context.Background(), 10*time.Millisecond))

	dc := recvAs[*protocol.PlayDisconnect](c)
	assert.Equal(t, ReasonTimedOut, dc.Reason.Text)
}

func TestBroadcastAndStats(t *testing.T) {
	ts := startServer(t, nil)

	c := dial(t, ts.mgr.Addr())
	c.login("Steve", uuid.New())
	c.configure(ts.mgr.world)
	c.joinWorld(2)
	require.Eventually(t, func() bool {
		info := ts.mgr.Sessions()
		return len(info) == 1 && info[0].LoginComplete
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, ts.mgr.Broadcast(context.Background(), protocol.Text{Text: "restart soon"}))
	assert.Equal(t, "restart soon", recvAs[*protocol.SystemChat](c).Content.Text)

	stats := ts.mgr.Stats()
	assert.Equal(t, 1, stats.Online)
	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, int64(1), stats.EntityIDsInUse)
	assert.NotZero(t, stats.BytesOut)
}
