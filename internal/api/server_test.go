package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/connector"
	"github.com/energizer-project/voxelgate/internal/entityid"
	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/protocol"
	"github.com/energizer-project/voxelgate/internal/server"
)

var alexID = uuid.MustParse("853c80ef-3c37-49fd-aa49-938b674adae6")

type fakeGame struct {
	mu        sync.Mutex
	kicked    []string
	broadcast []string
	alloc     *entityid.Allocator
}

func newFakeGame() *fakeGame {
	alloc := entityid.NewRange(0, 9)
	alloc.Acquire()
	return &fakeGame{alloc: alloc}
}

func (f *fakeGame) Sessions() []server.SessionInfo {
	return []server.SessionInfo{{ID: "1", Username: "Alex", UUID: alexID.String(), LoginComplete: true}}
}

func (f *fakeGame) Session(id uuid.UUID) (server.SessionInfo, bool) {
	if id != alexID {
		return server.SessionInfo{}, false
	}
	return f.Sessions()[0], true
}

func (f *fakeGame) Kick(ctx context.Context, id uuid.UUID, reason string) error {
	if id != alexID {
		return server.ErrPlayerOffline
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = append(f.kicked, reason)
	return nil
}

func (f *fakeGame) Broadcast(ctx context.Context, text protocol.Text) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, text.Text)
	return 1
}

func (f *fakeGame) StatusDocument() (string, error) {
	return `{"version":{"name":"1.21.8","protocol":772}}`, nil
}

func (f *fakeGame) Stats() server.Stats {
	return server.Stats{Online: 1, MaxPlayers: 20}
}

func (f *fakeGame) Allocator() *entityid.Allocator { return f.alloc }

type fakeProfiles struct {
	cleared int
}

func (f *fakeProfiles) ClearCache(ctx context.Context) error {
	f.cleared++
	return nil
}

func (f *fakeProfiles) CacheStats(ctx context.Context) (connector.CacheStats, error) {
	return connector.CacheStats{Entries: 2}, nil
}

func newTestServer(t *testing.T, token string) (*Server, *fakeGame, *fakeProfiles, *events.EventBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	app := cfg.GetApplicationData()
	app.Security.APIToken = token
	app.Security.RateLimitRPS = 0
	cfg.SetApplicationData(app)

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "voxelgate_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	game := newFakeGame()
	profiles := &fakeProfiles{}
	return NewServer(cfg, bus, game, profiles, reg), game, profiles, bus
}

func do(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestPublicRoutes(t *testing.T) {
	s, _, _, _ := newTestServer(t, "secret")

	w := do(t, s, http.MethodGet, "/api/public/ping", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = do(t, s, http.MethodGet, "/api/public/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"version":{"name":"1.21.8","protocol":772}}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/public/version", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(protocol.ProtocolVersion), decode(t, w)["protocol_version"])
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s, _, _, _ := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/monitor/players", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/monitor/players", "wrong", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/metrics", "", "").Code)

	w := do(t, s, http.MethodGet, "/api/monitor/players", "secret", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])
}

func TestProtectedRoutes_OpenWithoutToken(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/monitor/players", "", "").Code)
}

func TestPlayerLookup(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")

	w := do(t, s, http.MethodGet, "/api/monitor/players/"+alexID.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alex", decode(t, w)["username"])

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/monitor/players/"+uuid.NewString(), "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/monitor/players/not-a-uuid", "", "").Code)
}

func TestAllocatorRoute(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")

	w := do(t, s, http.MethodGet, "/api/monitor/allocator", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, float64(1), out["in_use"])
	assert.Equal(t, float64(9), out["free"])
	assert.Equal(t, []interface{}{[]interface{}{float64(1), float64(9)}}, out["free_ranges"])
}

func TestSystemRoute(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")

	w := do(t, s, http.MethodGet, "/api/monitor/system", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Contains(t, out, "system")
	assert.Contains(t, out, "server")
	assert.Equal(t, map[string]interface{}{"entries": float64(2), "lookups": float64(0), "fetches": float64(0), "hits": float64(0)}, out["profile_cache"])
}

func TestKick(t *testing.T) {
	s, game, _, _ := newTestServer(t, "")

	w := do(t, s, http.MethodPost, "/api/control/kick/"+alexID.String(), "", `{"reason":"bye"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodPost, "/api/control/kick/"+alexID.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"bye", defaultKickReason}, game.kicked)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/control/kick/"+uuid.NewString(), "", "").Code)
}

func TestBroadcast(t *testing.T) {
	s, game, _, _ := newTestServer(t, "")

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/control/broadcast", "", `{}`).Code)

	w := do(t, s, http.MethodPost, "/api/control/broadcast", "", `{"message":"restart in 5"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["recipients"])
	assert.Equal(t, []string{"restart in 5"}, game.broadcast)
}

func TestClearProfileCache(t *testing.T) {
	s, _, profiles, _ := newTestServer(t, "")

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/control/clear_profile_cache", "", "").Code)
	assert.Equal(t, 1, profiles.cleared)

	s.profiles = nil
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/control/clear_profile_cache", "", "").Code)
}

func TestConfigRoute_RedactsToken(t *testing.T) {
	s, _, _, _ := newTestServer(t, "secret")

	w := do(t, s, http.MethodGet, "/api/configure/config", "secret", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"secret"`)
	assert.Contains(t, w.Body.String(), "********")
}

func TestMetricsRoute(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")

	w := do(t, s, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voxelgate_test_total 1")
}

func TestNoRoute(t *testing.T) {
	s, _, _, _ := newTestServer(t, "")
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/nothing", "", "").Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Now()

	// burst of two
	assert.True(t, rl.allow("1.2.3.4", now))
	assert.True(t, rl.allow("1.2.3.4", now))
	assert.False(t, rl.allow("1.2.3.4", now))
	assert.True(t, rl.allow("5.6.7.8", now), "buckets are per client")

	assert.True(t, rl.allow("1.2.3.4", now.Add(time.Second)))
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer abc"))
	assert.Empty(t, extractBearerToken("Basic abc"))
	assert.Empty(t, extractBearerToken(""))
}

func TestEventStream(t *testing.T) {
	s, _, _, bus := newTestServer(t, "")

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/monitor/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool {
		return bus.HandlerCount(events.EventBroadcast) > 0
	}, 2*time.Second, 10*time.Millisecond)

	bus.Emit(context.Background(), events.Event{
		Type:    events.EventBroadcast,
		Source:  "test",
		Payload: events.BroadcastPayload{Message: "hello", Recipients: 3},
	})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]interface{}
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, "broadcast", got["type"])
	assert.Equal(t, "hello", got["payload"].(map[string]interface{})["message"])
}
