package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/energizer-project/voxelgate/internal/channels"
	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/connector"
	"github.com/energizer-project/voxelgate/internal/db"
	"github.com/energizer-project/voxelgate/internal/entityid"
	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/metrics"
	"github.com/energizer-project/voxelgate/internal/network"
	"github.com/energizer-project/voxelgate/internal/protocol"
)

// Reasons shown to kicked players.
const (
	ReasonDuplicateLogin = "You logged in from another location"
	ReasonTimedOut       = "Timed out"
	ReasonShutdown       = "Server closed"
)

// evictWait bounds how long a new login waits for the session it replaces.
const evictWait = 5 * time.Second

// ErrPlayerOffline is returned when no live session matches a player.
var ErrPlayerOffline = errors.New("player is not online")

// ProfileStore loads and saves player profiles.
type ProfileStore interface {
	LoadOrCreate(ctx context.Context, id uuid.UUID) (*db.Player, error)
	Save(ctx context.Context, p *db.Player) error
}

// Verifier checks an online-mode login against the session server.
type Verifier interface {
	VerifyOnline(ctx context.Context, name string, id uuid.UUID) (*connector.Profile, error)
}

// Options wires the Manager's collaborators. Config, Store and Allocator
// are required.
type Options struct {
	Config    *config.Config
	EventBus  *events.EventBus
	Store     ProfileStore
	Verifier  Verifier
	Allocator *entityid.Allocator
	Router    *channels.Router
	World     *World
}

// Manager owns the game listener and every client session.
type Manager struct {
	mu sync.RWMutex

	cfg       *config.Config
	eventBus  *events.EventBus
	store     ProfileStore
	verifier  Verifier
	allocator *entityid.Allocator
	router    *channels.Router
	world     *World
	metrics   *metrics.Metrics

	listener *network.Listener
	conns    *network.ConnectionRegistry
	sessions *SessionRegistry

	startedAt time.Time
	cancel    context.CancelFunc
	served    chan struct{}
}

// NewManager creates the session manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("profile store is required")
	}
	if opts.Allocator == nil {
		opts.Allocator = entityid.New()
	}
	if opts.World == nil {
		opts.World = NewWorld()
	}

	sd := opts.Config.GetServerData()
	if opts.Router == nil {
		opts.Router = channels.NewDefaultRouter(sd.Brand)
	}
	if sd.OnlineMode && opts.Verifier == nil {
		log.Warn().Msg("online mode enabled without a session server, every login will be rejected")
	}

	m := &Manager{
		cfg:       opts.Config,
		eventBus:  opts.EventBus,
		store:     opts.Store,
		verifier:  opts.Verifier,
		allocator: opts.Allocator,
		router:    opts.Router,
		world:     opts.World,
		conns:     network.NewConnectionRegistry(),
		sessions:  NewSessionRegistry(),
		startedAt: time.Now(),
		served:    make(chan struct{}),
	}
	m.listener = network.NewListener(net.JoinHostPort(sd.IP, strconv.Itoa(sd.Port)), m.conns, m.handleConnection)

	m.subscribeEvents()
	return m, nil
}

// SetMetrics attaches the collectors. It must be called before Serve.
func (m *Manager) SetMetrics(mt *metrics.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = mt
}

// subscribeEvents registers the Manager's handlers on the EventBus.
func (m *Manager) subscribeEvents() {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Subscribe(events.EventConfigChanged, "manager.configChanged", m.onConfigChanged)
	m.eventBus.Subscribe(events.EventShutdown, "manager.shutdown", m.onShutdown)
	log.Debug().Msg("manager event subscriptions registered")
}

func (m *Manager) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Emit(ctx, events.Event{Type: t, Source: "server", Payload: payload})
}

// Listen binds the game port.
func (m *Manager) Listen(ctx context.Context) error {
	return m.listener.Listen(ctx)
}

// Serve accepts clients until ctx is cancelled or Shutdown is called. It
// returns after every session has been torn down.
func (m *Manager) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	defer close(m.served)
	defer cancel()

	return m.listener.Serve(ctx)
}

// Start binds and serves.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Listen(ctx); err != nil {
		return err
	}
	return m.Serve(ctx)
}

// Addr returns the bound game address, or nil before Listen.
func (m *Manager) Addr() net.Addr {
	return m.listener.Addr()
}

// Shutdown stops accepting clients, disconnects every session and waits
// for Serve to return.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	cancel := m.cancel
	m.mu.RUnlock()
	if cancel == nil {
		return
	}

	for _, s := range m.sessions.All() {
		s.Kick(ReasonShutdown)
	}
	cancel()
	<-m.served
	log.Info().Msg("game server stopped")
}

func (m *Manager) handleConnection(ctx context.Context, conn *network.Connection) {
	m.metrics.ConnectionAccepted()
	newSession(m, conn).Run(ctx)
}

// claimSession registers s under its player UUID. A session it replaces is
// kicked, and claimSession waits for that session's teardown so s loads the
// profile it saved. The check and the claim happen under one registry lock.
func (m *Manager) claimSession(s *Session) {
	old := m.sessions.Register(s)
	if old == nil || old == s {
		return
	}
	id := s.UUID()
	log.Info().Str("uuid", id.String()).Str("player", old.Username()).Msg("replacing existing session")
	old.Kick(ReasonDuplicateLogin)
	select {
	case <-old.Done():
	case <-time.After(evictWait):
		log.Warn().Str("uuid", id.String()).Msg("previous session did not close in time")
	}
}

// Sessions returns a snapshot of every player in the world.
func (m *Manager) Sessions() []SessionInfo {
	all := m.sessions.All()
	infos := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		infos = append(infos, s.Info())
	}
	return infos
}

// Session returns the snapshot of one player.
func (m *Manager) Session(id uuid.UUID) (SessionInfo, bool) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return SessionInfo{}, false
	}
	return s.Info(), true
}

// Broadcast sends a system chat message to every player and returns how
// many received it.
func (m *Manager) Broadcast(ctx context.Context, text protocol.Text) int {
	sent := m.sessions.Broadcast(&protocol.SystemChat{Content: text})
	log.Info().Str("message", text.Text).Int("recipients", sent).Msg("broadcast")
	m.emit(ctx, events.EventBroadcast, events.BroadcastPayload{Message: text.Text, Recipients: sent})
	return sent
}

// Kick disconnects the player with the given UUID.
func (m *Manager) Kick(ctx context.Context, id uuid.UUID, reason string) error {
	s, ok := m.sessions.Get(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrPlayerOffline)
	}
	m.kick(ctx, s, reason)
	return nil
}

// KickByName disconnects the named player.
func (m *Manager) KickByName(ctx context.Context, name, reason string) error {
	s, ok := m.sessions.FindByName(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrPlayerOffline)
	}
	m.kick(ctx, s, reason)
	return nil
}

func (m *Manager) kick(ctx context.Context, s *Session, reason string) {
	log.Info().Str("player", s.Username()).Str("reason", reason).Msg("kicking player")
	s.Kick(reason)
	m.emit(ctx, events.EventPlayerKicked, s.playerPayload(reason))
}

// SaveAll persists the profile of every player in the world.
func (m *Manager) SaveAll(ctx context.Context) error {
	var errs error
	saved := 0
	for _, s := range m.sessions.All() {
		if err := s.saveProfile(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.Username(), err))
			continue
		}
		saved++
	}
	log.Debug().Int("saved", saved).Msg("player profiles saved")
	return errs
}

// CheckKeepAlives kicks players whose last keep-alive answer is older than
// timeout and returns how many were kicked.
func (m *Manager) CheckKeepAlives(ctx context.Context, timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-timeout)
	kicked := 0
	for _, s := range m.sessions.All() {
		if !s.state.LoginComplete() || !s.hb.LastAck().Before(cutoff) {
			continue
		}
		log.Warn().
			Str("player", s.Username()).
			Time("last_ack", s.hb.LastAck()).
			Msg("keep-alive timeout")
		m.kick(ctx, s, ReasonTimedOut)
		kicked++
	}
	return kicked
}

// Stats is a point-in-time summary of the server.
type Stats struct {
	Online            int       `json:"online"`
	MaxPlayers        int       `json:"max_players"`
	Connections       int       `json:"connections"`
	BytesIn           uint64    `json:"bytes_in"`
	BytesOut          uint64    `json:"bytes_out"`
	EntityIDsInUse    int64     `json:"entity_ids_in_use"`
	EntityIDFragments int       `json:"entity_id_fragments"`
	StartedAt         time.Time `json:"started_at"`
	UptimeSec         int64     `json:"uptime_sec"`
}

// Stats returns the current server summary.
func (m *Manager) Stats() Stats {
	in, out := m.conns.Traffic()
	return Stats{
		Online:            m.OnlineCount(),
		MaxPlayers:        m.cfg.GetServerData().MaxPlayers,
		Connections:       m.ConnectionCount(),
		BytesIn:           in,
		BytesOut:          out,
		EntityIDsInUse:    m.EntityIDsInUse(),
		EntityIDFragments: m.EntityIDFragments(),
		StartedAt:         m.startedAt,
		UptimeSec:         int64(time.Since(m.startedAt).Seconds()),
	}
}

// OnlineCount implements metrics.Source.
func (m *Manager) OnlineCount() int { return m.sessions.Count() }

// ConnectionCount implements metrics.Source.
func (m *Manager) ConnectionCount() int { return m.conns.Count() }

// EntityIDsInUse implements metrics.Source.
func (m *Manager) EntityIDsInUse() int64 { return m.allocator.InUse() }

// EntityIDFragments implements metrics.Source.
func (m *Manager) EntityIDFragments() int { return m.allocator.Fragments() }

// Connections returns the registry of open client connections.
func (m *Manager) Connections() *network.ConnectionRegistry { return m.conns }

// Allocator returns the entity id allocator.
func (m *Manager) Allocator() *entityid.Allocator { return m.allocator }

// Router returns the plugin channel router.
func (m *Manager) Router() *channels.Router { return m.router }

// --- Event Handlers ---

func (m *Manager) onConfigChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ConfigChangedPayload)
	if !ok {
		return nil
	}
	log.Info().
		Str("section", payload.Section).
		Str("key", payload.Key).
		Msg("configuration changed, applies to new connections")
	return nil
}

func (m *Manager) onShutdown(ctx context.Context, event events.Event) error {
	log.Info().Msg("shutdown event received, disconnecting players")
	m.Shutdown()
	return nil
}
