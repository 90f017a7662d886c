// Package connector implements the outbound identity lookup used by
// online-mode logins: profile queries against a Mojang-compatible session
// server, fronted by a profile cache.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/protocol"
)

const (
	profilePath      = "/session/minecraft/profile/"
	userAgent        = "voxelgate/" + protocol.VersionName
	defaultTimeout   = 10 * time.Second
	maxProfileLength = 1 << 20
)

var (
	// ErrProfileNotFound means the session server has no profile for the UUID.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrNilUUID is returned for the all-zero UUID without a lookup.
	ErrNilUUID = errors.New("nil uuid")
	// ErrNotRandomUUID is returned when the UUID is not version 4.
	ErrNotRandomUUID = errors.New("uuid is not a random (version 4) uuid")
	// ErrOfflineUUID is returned when the high 8 bytes of the UUID are zero.
	ErrOfflineUUID = errors.New("uuid has an all-zero high half")
	// ErrNameMismatch is returned when the profile name differs from the
	// name the client claimed.
	ErrNameMismatch = errors.New("profile name does not match")
)

// Profile is the session server's view of a player.
type Profile struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Properties []protocol.Property `json:"properties,omitempty"`
}

// CacheStats reports profile cache usage.
type CacheStats struct {
	Entries int    `json:"entries"`
	Lookups uint64 `json:"lookups"`
	Fetches uint64 `json:"fetches"`
	Hits    uint64 `json:"hits"`
}

// SessionServer looks up and verifies player profiles.
type SessionServer struct {
	baseURL string
	client  *http.Client
	cache   ProfileCache

	lookups atomic.Uint64
	fetches atomic.Uint64
}

// NewSessionServer creates a session server client. A nil cache selects the
// in-memory cache.
func NewSessionServer(baseURL string, timeout time.Duration, cache ProfileCache) *SessionServer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if cache == nil {
		cache = NewMemoryProfileCache()
	}
	return &SessionServer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		cache: cache,
	}
}

// NewSessionServerFromConfig builds a session server client and its profile
// cache from the auth settings.
func NewSessionServerFromConfig(ctx context.Context, auth config.AuthConfig) (*SessionServer, error) {
	timeout := time.Duration(auth.TimeoutSec) * time.Second

	switch auth.CacheBackend {
	case "", config.CacheBackendMemory:
		return NewSessionServer(auth.SessionServerURL, timeout, NewMemoryProfileCache()), nil
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     auth.Redis.Addr,
			Password: auth.Redis.Password,
			DB:       auth.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", auth.Redis.Addr, err)
		}
		log.Info().Str("addr", auth.Redis.Addr).Msg("using redis profile cache")
		return NewSessionServer(auth.SessionServerURL, timeout, NewRedisProfileCache(client, auth.Redis.KeyPrefix)), nil
	default:
		return nil, fmt.Errorf("unknown profile cache backend %q", auth.CacheBackend)
	}
}

// LookupProfile returns the profile for id, from the cache when present.
func (s *SessionServer) LookupProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	if id == uuid.Nil {
		return nil, ErrNilUUID
	}
	s.lookups.Add(1)

	key := undashed(id)
	return s.cache.GetOrFetch(ctx, key, func(ctx context.Context) (*Profile, error) {
		s.fetches.Add(1)
		return s.fetch(ctx, key)
	})
}

// VerifyOnline checks that id is a genuine account UUID and that its profile
// carries the claimed name.
func (s *SessionServer) VerifyOnline(ctx context.Context, name string, id uuid.UUID) (*Profile, error) {
	if id == uuid.Nil {
		return nil, ErrNilUUID
	}
	if isZero(id[:8]) {
		return nil, ErrOfflineUUID
	}
	if id.Version() != 4 {
		return nil, ErrNotRandomUUID
	}

	profile, err := s.LookupProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile.Name != name {
		return nil, fmt.Errorf("%w: claimed %q, session server has %q", ErrNameMismatch, name, profile.Name)
	}
	return profile, nil
}

// ClearCache drops every cached profile.
func (s *SessionServer) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear profile cache: %w", err)
	}
	log.Info().Msg("profile cache cleared")
	return nil
}

// CacheStats returns the cache size and hit counters.
func (s *SessionServer) CacheStats(ctx context.Context) (CacheStats, error) {
	n, err := s.cache.ItemCount(ctx)
	if err != nil {
		return CacheStats{}, fmt.Errorf("failed to count cached profiles: %w", err)
	}
	lookups, fetches := s.lookups.Load(), s.fetches.Load()
	stats := CacheStats{Entries: n, Lookups: lookups, Fetches: fetches}
	if lookups > fetches {
		stats.Hits = lookups - fetches
	}
	return stats, nil
}

func (s *SessionServer) fetch(ctx context.Context, key string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+profilePath+key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, ErrProfileNotFound
	default:
		return nil, fmt.Errorf("session server returned status %d", resp.StatusCode)
	}

	var profile Profile
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxProfileLength))
	if err := dec.Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	log.Debug().Str("uuid", key).Str("name", profile.Name).Msg("profile fetched from session server")
	return &profile, nil
}

func undashed(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
