package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/energizer-project/voxelgate/internal/protocol"
)

// SessionRegistry tracks sessions from the end of configuration onward,
// keyed by player UUID.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uuid.UUID]*Session)}
}

// Register adds s under its player UUID and returns the session it
// replaced, if any.
func (r *SessionRegistry) Register(s *Session) *Session {
	id := s.UUID()
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.sessions[id]
	r.sessions[id] = s
	return old
}

// Unregister removes s. A newer session registered under the same UUID is
// left in place.
func (r *SessionRegistry) Unregister(s *Session) {
	id := s.UUID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
}

// Get returns the session for a player UUID.
func (r *SessionRegistry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// FindByName returns the session of the named player, ignoring case.
func (r *SessionRegistry) FindByName(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if strings.EqualFold(s.Username(), name) {
			return s, true
		}
	}
	return nil, false
}

// All returns the registered sessions ordered by player name.
func (r *SessionRegistry) All() []*Session {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Username() < list[j].Username()
	})
	return list
}

// Count returns the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Broadcast writes p to every session that has finished joining and
// returns how many sessions it reached.
func (r *SessionRegistry) Broadcast(p protocol.Packet) int {
	payload := protocol.Marshal(p)
	sent := 0
	for _, s := range r.All() {
		if !s.state.LoginComplete() {
			continue
		}
		if err := s.conn.WritePayload(payload); err != nil {
			s.logger.Debug().Err(err).Msg("broadcast write failed")
			continue
		}
		sent++
	}
	return sent
}
