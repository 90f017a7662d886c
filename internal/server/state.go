// Package server implements the game listener's session layer: the per
// connection protocol state machine, the keep-alive heartbeat, the live
// session registry and the Manager that owns them.
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/energizer-project/voxelgate/internal/db"
	"github.com/energizer-project/voxelgate/internal/protocol"
)

// SessionState holds the mutable state of one session. The session
// goroutine writes it; the API, CLI and scheduler read it concurrently.
type SessionState struct {
	mu sync.RWMutex

	// Identity, set at login
	Username string
	UUID     uuid.UUID

	// Client settings
	Locale       string
	ViewDistance int
	Brand        string

	// World entry
	EntityID        int32
	HasEntityID     bool
	Player          *db.Player
	KnownPacksAcked bool
	TeleportAcked   bool
	loginComplete   bool
	JoinedAt        time.Time
}

// NewSessionState creates the state of a fresh connection.
func NewSessionState() *SessionState {
	return &SessionState{}
}

// SetIdentity records the authenticated name and UUID.
func (s *SessionState) SetIdentity(name string, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Username = name
	s.UUID = id
}

// Identity returns the authenticated name and UUID.
func (s *SessionState) Identity() (string, uuid.UUID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Username, s.UUID
}

// SetClientInfo records the client's locale and view distance.
func (s *SessionState) SetClientInfo(locale string, viewDistance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Locale = locale
	s.ViewDistance = viewDistance
}

// SetBrand records the client implementation name.
func (s *SessionState) SetBrand(brand string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Brand = brand
}

// MarkKnownPacksAcked returns false if the client already acknowledged.
func (s *SessionState) MarkKnownPacksAcked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.KnownPacksAcked {
		return false
	}
	s.KnownPacksAcked = true
	return true
}

// SetEntityID records the entity id held by the session.
func (s *SessionState) SetEntityID(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EntityID = id
	s.HasEntityID = true
}

// EntityIDValue returns the held entity id.
func (s *SessionState) EntityIDValue() (int32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.EntityID, s.HasEntityID
}

// TakeEntityID returns the held entity id and forgets it.
func (s *SessionState) TakeEntityID() (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.EntityID, s.HasEntityID
	s.HasEntityID = false
	return id, ok
}

// SetPlayer attaches the loaded profile.
func (s *SessionState) SetPlayer(p *db.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Player = p
}

// PlayerCopy returns a copy of the profile, or nil before world entry.
func (s *SessionState) PlayerCopy() *db.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Player == nil {
		return nil
	}
	p := *s.Player
	return &p
}

// SetPosition updates the in-memory profile position. Rotation is kept
// when rot is false.
func (s *SessionState) SetPosition(x, y, z float64, yaw, pitch float32, rot bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Player == nil {
		return
	}
	s.Player.Position.X = x
	s.Player.Position.Y = y
	s.Player.Position.Z = z
	if rot {
		s.Player.Position.Yaw = yaw
		s.Player.Position.Pitch = pitch
	}
}

// MarkTeleportAcked records the client's confirmation of the first teleport.
func (s *SessionState) MarkTeleportAcked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TeleportAcked = true
}

// MarkLoginComplete records that the world has been streamed to the client.
func (s *SessionState) MarkLoginComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginComplete = true
	s.JoinedAt = time.Now()
}

// LoginComplete reports whether the player has joined the world.
func (s *SessionState) LoginComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loginComplete
}

// SessionInfo is a read-only snapshot of a session for the API and CLI.
type SessionInfo struct {
	ID            string          `json:"id"`
	Remote        string          `json:"remote"`
	Phase         protocol.Phase  `json:"phase"`
	Username      string          `json:"username,omitempty"`
	UUID          string          `json:"uuid,omitempty"`
	EntityID      *int32          `json:"entity_id,omitempty"`
	Locale        string          `json:"locale,omitempty"`
	ViewDistance  int             `json:"view_distance,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	Position      *db.Position    `json:"position,omitempty"`
	LoginComplete bool            `json:"login_complete"`
	TeleportAcked bool            `json:"teleport_acked"`
	ConnectedAt   time.Time       `json:"connected_at"`
	JoinedAt      *time.Time      `json:"joined_at,omitempty"`
	LastKeepAlive *time.Time      `json:"last_keep_alive,omitempty"`
	KeepAliveRTT  time.Duration   `json:"keep_alive_rtt_ns,omitempty"`
	Traffic       TrafficCounters `json:"traffic"`
}

// TrafficCounters counts bytes on the wire, after framing and compression.
type TrafficCounters struct {
	BytesIn  uint64 `json:"bytes_in"`
	BytesOut uint64 `json:"bytes_out"`
}

// snapshot fills the state-owned fields of info.
func (s *SessionState) snapshot(info *SessionInfo) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info.Username = s.Username
	if s.UUID != uuid.Nil {
		info.UUID = s.UUID.String()
	}
	if s.HasEntityID {
		id := s.EntityID
		info.EntityID = &id
	}
	info.Locale = s.Locale
	info.ViewDistance = s.ViewDistance
	info.Brand = s.Brand
	if s.Player != nil {
		pos := s.Player.Position
		info.Position = &pos
	}
	info.LoginComplete = s.loginComplete
	info.TeleportAcked = s.TeleportAcked
	if s.loginComplete {
		joined := s.JoinedAt
		info.JoinedAt = &joined
	}
}
