package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/energizer-project/voxelgate/internal/channels"
	"github.com/energizer-project/voxelgate/internal/connector"
	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/metrics"
	"github.com/energizer-project/voxelgate/internal/network"
	"github.com/energizer-project/voxelgate/internal/protocol"
)

// Teleport id of the spawn PlayerPosition.
const spawnTeleportID = 1

// saveTimeout bounds the profile save during teardown.
const saveTimeout = 5 * time.Second

var (
	// errLoginRejected ends a session whose login was refused.
	errLoginRejected = errors.New("login rejected")
	// errServerFull ends a session that could not get an entity id.
	errServerFull = errors.New("no entity id available")
	// ErrWrongPhase is returned for operations the current phase forbids.
	ErrWrongPhase = errors.New("operation not allowed in current phase")
)

// Session drives one client connection through the protocol phases.
// Packets are read and handled strictly in order on the goroutine running
// Run; other goroutines only write to the connection or read state.
type Session struct {
	id     uuid.UUID
	mgr    *Manager
	conn   *network.Connection
	logger zerolog.Logger
	state  *SessionState
	hb     *heartbeat

	phase  atomic.Int32
	cancel context.CancelFunc
	hbWG   sync.WaitGroup
	done   chan struct{}
}

func newSession(mgr *Manager, conn *network.Connection) *Session {
	sd := mgr.cfg.GetServerData()
	s := &Session{
		id:    uuid.New(),
		mgr:   mgr,
		conn:  conn,
		state: NewSessionState(),
		hb:    newHeartbeat(time.Duration(sd.KeepAliveIntervalSec) * time.Second),
		done:  make(chan struct{}),
	}
	s.logger = log.With().
		Str("component", "session").
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	s.phase.Store(int32(protocol.PhaseHandshake))
	return s
}

// ID returns the session's own identifier, unrelated to the player UUID.
func (s *Session) ID() uuid.UUID { return s.id }

// Phase returns the current protocol phase.
func (s *Session) Phase() protocol.Phase {
	return protocol.Phase(s.phase.Load())
}

func (s *Session) setPhase(p protocol.Phase) {
	old := protocol.Phase(s.phase.Swap(int32(p)))
	s.logger.Debug().Stringer("from", old).Stringer("to", p).Msg("phase changed")
}

// Username returns the authenticated player name, empty before login.
func (s *Session) Username() string {
	name, _ := s.state.Identity()
	return name
}

// UUID returns the authenticated player UUID, uuid.Nil before login.
func (s *Session) UUID() uuid.UUID {
	_, id := s.state.Identity()
	return id
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:          s.id.String(),
		Remote:      s.conn.RemoteAddr().String(),
		Phase:       s.Phase(),
		ConnectedAt: s.conn.ConnectedAt(),
		Traffic: TrafficCounters{
			BytesIn:  s.conn.BytesIn(),
			BytesOut: s.conn.BytesOut(),
		},
	}
	s.state.snapshot(&info)
	if info.LoginComplete {
		last := s.hb.LastAck()
		info.LastKeepAlive = &last
		info.KeepAliveRTT = s.hb.RTT()
	}
	return info
}

// Run reads and handles packets until the connection fails or ctx is
// cancelled, then tears the session down.
func (s *Session) Run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.teardown()

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	timeout := time.Duration(s.mgr.cfg.GetServerData().KeepAliveTimeoutSec) * time.Second

	for {
		payload, err := s.conn.ReadPacket(timeout)
		if err != nil {
			s.logReadError(ctx, err)
			return
		}

		phase := s.Phase()
		pkt, err := protocol.Unmarshal(phase, payload)
		if err != nil {
			s.mgr.metrics.CodecError(phase.String())
			s.logger.Warn().Err(err).Stringer("phase", phase).Msg("malformed packet, closing connection")
			return
		}
		s.mgr.metrics.PacketReceived(phase.String())

		if err := s.handle(ctx, phase, pkt); err != nil {
			if !errors.Is(err, errLoginRejected) && !errors.Is(err, errServerFull) {
				s.logger.Warn().Err(err).Stringer("phase", phase).Msg("session ended")
			}
			return
		}
	}
}

func (s *Session) logReadError(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil, errors.Is(err, protocol.ErrConnectionAborted), errors.Is(err, net.ErrClosed):
		s.logger.Debug().Err(err).Msg("connection closed")
	case errors.Is(err, os.ErrDeadlineExceeded):
		s.logger.Info().Stringer("phase", s.Phase()).Msg("connection timed out")
	case errors.Is(err, protocol.ErrFrameTooLarge), errors.Is(err, protocol.ErrDecompressedSizeMismatch):
		s.mgr.metrics.CodecError(s.Phase().String())
		s.logger.Warn().Err(err).Msg("invalid frame, closing connection")
	default:
		s.logger.Warn().Err(err).Msg("read failed")
	}
}

func (s *Session) handle(ctx context.Context, phase protocol.Phase, pkt protocol.Packet) error {
	if u, ok := pkt.(*protocol.UnknownPacket); ok {
		s.logger.Debug().
			Stringer("phase", phase).
			Str("id", fmt.Sprintf("0x%02x", u.PacketID)).
			Int("size", len(u.Body)).
			Msg("unhandled packet")
		return nil
	}

	switch phase {
	case protocol.PhaseHandshake:
		return s.handleHandshake(pkt)
	case protocol.PhaseStatus:
		return s.handleStatus(pkt)
	case protocol.PhaseLogin:
		return s.handleLogin(ctx, pkt)
	case protocol.PhaseConfiguration:
		return s.handleConfiguration(ctx, pkt)
	case protocol.PhasePlay:
		return s.handlePlay(ctx, pkt)
	}
	return nil
}

func (s *Session) handleHandshake(pkt protocol.Packet) error {
	hs, ok := pkt.(*protocol.Handshake)
	if !ok {
		return nil
	}

	switch hs.NextState {
	case protocol.NextStateStatus:
		s.setPhase(protocol.PhaseStatus)
	case protocol.NextStateLogin, protocol.NextStateTransfer:
		if hs.ProtocolVersion != protocol.ProtocolVersion {
			s.logger.Debug().Int32("protocol", hs.ProtocolVersion).Msg("client protocol differs from server")
		}
		s.setPhase(protocol.PhaseLogin)
	default:
		s.logger.Debug().Int32("next_state", hs.NextState).Msg("ignoring handshake with unknown next state")
	}
	return nil
}

func (s *Session) handleStatus(pkt protocol.Packet) error {
	switch p := pkt.(type) {
	case *protocol.StatusRequest:
		doc, err := s.mgr.StatusDocument()
		if err != nil {
			return fmt.Errorf("failed to build status: %w", err)
		}
		return s.conn.WritePacket(&protocol.StatusResponse{JSON: doc})
	case *protocol.PingRequest:
		return s.conn.WritePacket(&protocol.PongResponse{Payload: p.Payload})
	}
	return nil
}

func (s *Session) handleLogin(ctx context.Context, pkt protocol.Packet) error {
	switch p := pkt.(type) {
	case *protocol.LoginStart:
		return s.handleLoginStart(ctx, p)
	case *protocol.LoginAcknowledged:
		if name, _ := s.state.Identity(); name == "" {
			s.logger.Debug().Msg("login acknowledged before login start")
			return nil
		}
		s.setPhase(protocol.PhaseConfiguration)
	}
	return nil
}

func (s *Session) handleLoginStart(ctx context.Context, p *protocol.LoginStart) error {
	sd := s.mgr.cfg.GetServerData()
	logger := s.logger.With().Str("player", p.Name).Str("uuid", p.UUID.String()).Logger()

	var properties []protocol.Property
	if sd.OnlineMode {
		profile, err := s.verify(ctx, p.Name, p.UUID)
		if err != nil {
			result := metrics.LoginRejected
			if !isRejection(err) {
				result = metrics.LoginError
			}
			s.mgr.metrics.Login(result)
			logger.Warn().Err(err).Msg("online verification failed")
			s.mgr.emit(ctx, events.EventLoginFailed, events.LoginFailedPayload{
				Username: p.Name,
				UUID:     p.UUID.String(),
				Remote:   s.conn.RemoteAddr().String(),
				Error:    err.Error(),
			})

			reason := protocol.Text{Text: sd.AuthFailMessage, Color: "red", Bold: true}
			if werr := s.conn.WritePacket(&protocol.LoginDisconnect{Reason: reason.JSON()}); werr != nil {
				logger.Debug().Err(werr).Msg("failed to send login disconnect")
			}
			return errLoginRejected
		}
		properties = profile.Properties
	}

	if sd.CompressionThreshold >= 0 {
		if err := s.conn.WritePacket(&protocol.SetCompression{Threshold: int32(sd.CompressionThreshold)}); err != nil {
			return err
		}
		s.conn.SetCompression(sd.CompressionThreshold)
	}

	s.state.SetIdentity(p.Name, p.UUID)
	s.logger = logger
	s.mgr.metrics.Login(metrics.LoginOK)

	return s.conn.WritePacket(&protocol.LoginSuccess{
		UUID:       p.UUID,
		Name:       p.Name,
		Properties: properties,
	})
}

func (s *Session) verify(ctx context.Context, name string, id uuid.UUID) (*connector.Profile, error) {
	if s.mgr.verifier == nil {
		return nil, errors.New("online mode is enabled but no session server is configured")
	}
	return s.mgr.verifier.VerifyOnline(ctx, name, id)
}

func isRejection(err error) bool {
	for _, target := range []error{
		connector.ErrNilUUID,
		connector.ErrNotRandomUUID,
		connector.ErrOfflineUUID,
		connector.ErrNameMismatch,
		connector.ErrProfileNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Session) handleConfiguration(ctx context.Context, pkt protocol.Packet) error {
	switch p := pkt.(type) {
	case *protocol.ClientInformation:
		s.state.SetClientInfo(p.Locale, int(p.ViewDistance))
		return s.conn.WritePacket(&protocol.ClientboundKnownPacks{Packs: []protocol.KnownPack{protocol.CorePack}})

	case *protocol.PluginMessage:
		s.handlePluginMessage(ctx, p)

	case *protocol.SelectKnownPacks:
		if !s.state.MarkKnownPacksAcked() {
			s.logger.Debug().Msg("ignoring repeated known packs selection")
			return nil
		}
		return s.enterWorld(ctx)

	case *protocol.FinishConfiguration:
		if s.state.PlayerCopy() == nil {
			s.logger.Debug().Msg("configuration finished before world entry")
			return nil
		}
		s.setPhase(protocol.PhasePlay)
	}
	return nil
}

func (s *Session) handlePluginMessage(ctx context.Context, p *protocol.PluginMessage) {
	handled, err := s.mgr.router.Dispatch(ctx, s, p.Channel, p.Data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("plugin message handler failed")
	}
	if !handled {
		s.logger.Debug().Str("channel", p.Channel).Int("size", len(p.Data)).Msg("plugin message on unregistered channel")
	}
	if p.Channel != channels.ChannelBrand {
		s.mgr.emit(ctx, events.EventPluginMessage, events.PluginMessagePayload{
			UUID:    s.UUID().String(),
			Channel: p.Channel,
			Data:    p.Data,
		})
	}
}

// SendPluginMessage implements channels.Peer. Only the configuration phase
// has a clientbound plugin message in the packet tables.
func (s *Session) SendPluginMessage(channel string, data []byte) error {
	if s.Phase() != protocol.PhaseConfiguration {
		return fmt.Errorf("plugin message on %s: %w", channel, ErrWrongPhase)
	}
	return s.conn.WritePacket(&protocol.ClientboundPluginMessage{Channel: channel, Data: data})
}

// SetBrand implements channels.Peer.
func (s *Session) SetBrand(brand string) {
	s.state.SetBrand(brand)
	s.logger.Debug().Str("brand", brand).Msg("client brand")
}

// enterWorld sends the registries and world entry packets after the client
// selected its known packs.
func (s *Session) enterWorld(ctx context.Context) error {
	name, id := s.state.Identity()
	world := s.mgr.world

	for _, reg := range world.Registries() {
		if err := s.conn.WritePacket(reg); err != nil {
			return err
		}
	}
	if err := s.conn.WritePacket(world.Tags()); err != nil {
		return err
	}

	s.mgr.claimSession(s)

	entityID, err := s.mgr.allocator.Acquire()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to allocate entity id")
		reason := protocol.Text{Text: "Server is full", Color: "red"}
		if werr := s.conn.WritePacket(&protocol.ConfigDisconnect{Reason: reason}); werr != nil {
			s.logger.Debug().Err(werr).Msg("failed to send disconnect")
		}
		return errServerFull
	}
	s.state.SetEntityID(entityID)

	player, err := s.mgr.store.LoadOrCreate(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load player profile")
		return fmt.Errorf("failed to load profile: %w", err)
	}
	player.EntityID = entityID
	player.Username = name
	player.Online = true
	player.LastLogin = time.Now().UTC()
	s.state.SetPlayer(player)

	if err := s.conn.WritePacket(&protocol.ClientboundFinishConfiguration{}); err != nil {
		return err
	}

	sd := s.mgr.cfg.GetServerData()
	if err := s.conn.WritePacket(world.LoginPlay(entityID, sd.MaxPlayers, sd.RenderDistance)); err != nil {
		return err
	}

	if err := s.saveProfile(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to save player profile")
	}

	pos := player.Position
	if err := s.conn.WritePacket(&protocol.PlayerPosition{
		TeleportID: spawnTeleportID,
		X:          pos.X,
		Y:          pos.Y,
		Z:          pos.Z,
		Yaw:        pos.Yaw,
		Pitch:      pos.Pitch,
	}); err != nil {
		return err
	}

	s.logger.Debug().Int32("entity_id", entityID).Msg("entered world")
	return nil
}

func (s *Session) handlePlay(ctx context.Context, pkt protocol.Packet) error {
	if !s.state.LoginComplete() {
		switch p := pkt.(type) {
		case *protocol.AcceptTeleportation:
			if p.TeleportID == spawnTeleportID {
				s.state.MarkTeleportAcked()
			}
		case *protocol.MovePlayerPosRot:
			return s.joinWorld(ctx, p)
		case *protocol.ChunkBatchReceived:
		default:
			s.logger.Debug().Int32("id", pkt.ID()).Msg("packet before world join dropped")
		}
		return nil
	}

	switch p := pkt.(type) {
	case *protocol.ChatMessage:
		s.handleChat(ctx, p)
	case *protocol.KeepAlive:
		if rtt, ok := s.hb.ack(p.KeepAliveID); ok {
			s.mgr.metrics.KeepAliveRTT(rtt.Seconds())
		} else {
			s.logger.Debug().Int64("id", p.KeepAliveID).Msg("stale keep-alive")
		}
	case *protocol.MovePlayerPos:
		s.state.SetPosition(p.X, p.FeetY, p.Z, 0, 0, false)
	case *protocol.MovePlayerPosRot:
		s.state.SetPosition(p.X, p.FeetY, p.Z, p.Yaw, p.Pitch, true)
	case *protocol.AcceptTeleportation, *protocol.ChunkBatchReceived:
	default:
		s.logger.Debug().Int32("id", pkt.ID()).Msg("unhandled play packet")
	}
	return nil
}

// joinWorld streams the chunks around spawn on the first movement packet.
func (s *Session) joinWorld(ctx context.Context, p *protocol.MovePlayerPosRot) error {
	s.state.SetPosition(p.X, p.FeetY, p.Z, p.Yaw, p.Pitch, true)

	if err := s.conn.WritePacket(&protocol.GameEvent{Event: protocol.GameEventStartWaitingForChunks}); err != nil {
		return err
	}
	if err := s.conn.WritePacket(&protocol.SetChunkCacheCenter{}); err != nil {
		return err
	}

	r := int32(s.mgr.cfg.GetServerData().RenderDistance)
	sent := 0
	for x := -r; x <= r; x++ {
		for z := -r; z <= r; z++ {
			if err := s.conn.WritePacket(s.mgr.world.Chunk(x, z)); err != nil {
				return err
			}
			sent++
		}
	}
	s.mgr.metrics.ChunksSent(sent)

	s.state.MarkLoginComplete()
	entityID, _ := s.state.EntityIDValue()
	s.logger.Info().Int32("entity_id", entityID).Int("chunks", sent).Msg("joined the game")
	s.mgr.emit(ctx, events.EventPlayerJoin, s.playerPayload(""))

	s.hbWG.Add(1)
	go func() {
		defer s.hbWG.Done()
		err := s.hb.run(ctx, func(id int64) error {
			return s.conn.WritePacket(&protocol.ClientboundKeepAlive{KeepAliveID: id})
		})
		if err != nil {
			s.logger.Debug().Err(err).Msg("heartbeat stopped")
		}
	}()
	return nil
}

func (s *Session) handleChat(ctx context.Context, p *protocol.ChatMessage) {
	name, id := s.state.Identity()
	s.logger.Info().Str("message", p.Message).Msg("chat")
	s.mgr.metrics.ChatMessage()

	s.mgr.sessions.Broadcast(&protocol.SystemChat{
		Content: protocol.Text{Text: fmt.Sprintf("<%s> %s", name, p.Message)},
	})
	s.mgr.emit(ctx, events.EventPlayerChat, events.ChatPayload{
		UUID:     id.String(),
		Username: name,
		Message:  p.Message,
	})
}

// Kick disconnects the client with reason. It is safe to call from any
// goroutine; the session goroutine performs the teardown.
func (s *Session) Kick(reason string) {
	text := protocol.Text{Text: reason}
	var err error
	switch s.Phase() {
	case protocol.PhaseLogin:
		err = s.conn.WritePacket(&protocol.LoginDisconnect{Reason: text.JSON()})
	case protocol.PhaseConfiguration:
		err = s.conn.WritePacket(&protocol.ConfigDisconnect{Reason: text})
	case protocol.PhasePlay:
		err = s.conn.WritePacket(&protocol.PlayDisconnect{Reason: text})
	}
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to send disconnect")
	}
	s.conn.Close()
}

// saveProfile persists the current profile, if one is loaded.
func (s *Session) saveProfile(ctx context.Context) error {
	p := s.state.PlayerCopy()
	if p == nil {
		return nil
	}
	return s.mgr.store.Save(ctx, p)
}

func (s *Session) playerPayload(reason string) events.PlayerPayload {
	name, id := s.state.Identity()
	entityID, _ := s.state.EntityIDValue()
	return events.PlayerPayload{
		UUID:     id.String(),
		Username: name,
		EntityID: entityID,
		Remote:   s.conn.RemoteAddr().String(),
		Reason:   reason,
	}
}

// teardown releases everything the session holds. It runs once, on the
// session goroutine, after the read loop exits.
func (s *Session) teardown() {
	defer close(s.done)

	s.cancel()
	s.hbWG.Wait()
	s.conn.Close()

	joined := s.state.LoginComplete()
	payload := s.playerPayload("")

	var errs error
	if p := s.state.PlayerCopy(); p != nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		p.Online = false
		s.state.SetPlayer(p)
		errs = multierr.Append(errs, s.mgr.store.Save(ctx, p))
		cancel()
	}
	if id, ok := s.state.TakeEntityID(); ok {
		errs = multierr.Append(errs, s.mgr.allocator.Release(id))
	}
	s.mgr.sessions.Unregister(s)

	if errs != nil {
		s.logger.Error().Err(errs).Msg("session teardown incomplete")
	}

	s.mgr.metrics.SessionEnded(time.Since(s.conn.ConnectedAt()).Seconds())

	if joined {
		s.logger.Info().Msg("left the game")
	}
	if payload.Username != "" && s.state.PlayerCopy() != nil {
		s.mgr.emit(context.Background(), events.EventPlayerLeave, payload)
	}
}
