package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/talgya/motel-sim/internal/agents"
	"github.com/talgya/motel-sim/internal/counter"
	"github.com/talgya/motel-sim/internal/engine"
	"github.com/talgya/motel-sim/internal/entropy"
	"github.com/talgya/motel-sim/internal/facility"
	"github.com/talgya/motel-sim/internal/persistence"
)

const adminKey = "admin-secret"

func newTestServer(t *testing.T, mutate func(*Server)) (*Server, *httptest.Server) {
	t.Helper()

	floor, err := facility.Generate(facility.DefaultGenConfig())
	require.NoError(t, err)

	spawn := agents.DefaultSpawnConfig()
	spawn.PoolSize = 5
	spawn.StaggerTicks = 0
	sim, err := engine.NewSimulation(engine.Config{
		Schedule:  agents.DefaultSchedule(),
		Timing:    agents.DefaultTiming(),
		Spawn:     spawn,
		Counter:   counter.DefaultConfig(),
		WalkSpeed: 1.5,
		StartHour: 12,
	}, floor, entropy.NewSeeded(5))
	require.NoError(t, err)
	t.Cleanup(sim.Close)

	s := &Server{Sim: sim, Eng: engine.NewEngine(), AdminKey: adminKey, StreamKey: "stream-secret"}
	if mutate != nil {
		mutate(s)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.limiter.Stop()
	})
	return s, srv
}

func do(t *testing.T, method, url, key, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestStatus(t *testing.T) {
	_, srv := newTestServer(t, nil)

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, code)

	var st map[string]any
	require.NoError(t, json.Unmarshal(body, &st))
	require.Equal(t, float64(6), st["rooms"])
	require.Equal(t, float64(5), st["pooled_agents"])
	require.Equal(t, float64(1), st["speed"])
	require.Equal(t, "Day 1, 12:00", st["time"])
}

func TestAdminAuth(t *testing.T) {
	_, srv := newTestServer(t, nil)

	code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/spawn", "", `{"count":1}`)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/spawn", "wrong", `{"count":1}`)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/spawn", "", "")
	require.Equal(t, http.StatusMethodNotAllowed, code)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/speed", "", "")
	require.Equal(t, http.StatusOK, code)

	_, open := newTestServer(t, func(s *Server) { s.AdminKey = "" })
	code, _ = do(t, http.MethodPost, open.URL+"/api/v1/recall", "anything", "")
	require.Equal(t, http.StatusForbidden, code)
}

func TestSpawnAndInspectAgents(t *testing.T) {
	s, srv := newTestServer(t, nil)

	code, body := do(t, http.MethodPost, srv.URL+"/api/v1/spawn", adminKey, `{"count":2}`)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), `"scheduled": 2`)
	require.Equal(t, 2, s.Sim.Spawner.ActiveCount())

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/agents", "", "")
	require.Equal(t, http.StatusOK, code)
	var views []agents.View
	require.NoError(t, json.Unmarshal(body, &views))
	require.Len(t, views, 2)
	require.Equal(t, "MovingToQueue", views[0].State)

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/agents?all=1", "", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &views))
	require.Len(t, views, 5)

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/agent/1", "", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), `"name": "AI_1"`)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/agent/77", "", "")
	require.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/agent/x", "", "")
	require.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, http.MethodPost, srv.URL+"/api/v1/recall", adminKey, "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), `"recalled": 2`)

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/events?category=admin", "", "")
	require.Equal(t, http.StatusOK, code)
	var events []engine.Event
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 2)
}

func TestSpeedAndSpawner(t *testing.T) {
	s, srv := newTestServer(t, nil)

	code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/speed", adminKey, `{"speed":5}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 5.0, s.Eng.Speed())

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/speed", adminKey, `{"speed":-1}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/spawner", adminKey, `{"min_spawn":4,"max_spawn":2}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, http.MethodPost, srv.URL+"/api/v1/spawner", adminKey, `{"start_hour":10,"end_hour":14}`)
	require.Equal(t, http.StatusOK, code)
	var resp struct {
		Triggers []int `json:"triggers"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, []int{10, 12, 14}, resp.Triggers)
}

func TestRoomsCounterLedger(t *testing.T) {
	_, srv := newTestServer(t, nil)

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/rooms?free=1", "", "")
	require.Equal(t, http.StatusOK, code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 6)

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/counter", "", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), `"capacity": 10`)

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/ledger", "", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), `"revenue": 0`)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/ledger?source=db", "", "")
	require.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/rescan", adminKey, "")
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, http.MethodGet, srv.URL+"/metrics", "", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), "motelsim_rooms_total 6")
}

func TestSnapshot(t *testing.T) {
	_, srv := newTestServer(t, nil)
	code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/snapshot", adminKey, "")
	require.Equal(t, http.StatusServiceUnavailable, code)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	defer db.Close()

	_, withDB := newTestServer(t, func(s *Server) { s.DB = db })
	code, body := do(t, http.MethodPost, withDB.URL+"/api/v1/snapshot", adminKey, "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), "snapshot saved")

	ok, err := db.HasState()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAdminRateLimit(t *testing.T) {
	_, srv := newTestServer(t, func(s *Server) { s.AdminRate = 2 })

	for i := 0; i < 2; i++ {
		code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/rescan", adminKey, "")
		require.Equal(t, http.StatusOK, code)
	}
	code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/rescan", adminKey, "")
	require.Equal(t, http.StatusTooManyRequests, code)

	// Reads are not limited.
	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/speed", "", "")
	require.Equal(t, http.StatusOK, code)
}

func TestStream(t *testing.T) {
	s, srv := newTestServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=stream-secret", nil)
	require.NoError(t, err)
	defer conn.Close()

	s.Sim.EmitEvent("admin", "hello stream")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg streamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "event" && msg.Event != nil && msg.Event.Description == "hello stream" {
			break
		}
	}
}

func TestStreamConnectionLimit(t *testing.T) {
	_, srv := newTestServer(t, func(s *Server) { s.MaxStreams = 1 })
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	header := http.Header{"Authorization": {"Bearer stream-secret"}}

	first, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer first.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDisplaceRecyclesAgentOffFloor(t *testing.T) {
	s, srv := newTestServer(t, nil)

	code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/spawn", adminKey, `{"count":1}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, s.Sim.Spawner.ActiveCount())

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/displace", adminKey, `{"agent":99,"x":0,"z":0}`)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/displace", adminKey, `{"agent":1,"x":-1000,"z":-1000}`)
	require.Equal(t, http.StatusOK, code)

	s.Sim.Step(1)
	require.Zero(t, s.Sim.Spawner.ActiveCount())
	require.Equal(t, 5, s.Sim.Spawner.PooledCount())
}

func TestEventsFromDatabase(t *testing.T) {
	_, srv := newTestServer(t, nil)
	code, _ := do(t, http.MethodGet, srv.URL+"/api/v1/events?source=db", "", "")
	require.Equal(t, http.StatusServiceUnavailable, code)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	s, withDB := newTestServer(t, func(s *Server) { s.DB = db })
	s.Sim.EmitEvent("admin", "first")
	s.Sim.EmitEvent("admin", "second")
	code, _ = do(t, http.MethodPost, withDB.URL+"/api/v1/snapshot", adminKey, "")
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, http.MethodGet, withDB.URL+"/api/v1/events?source=db&category=admin", "", "")
	require.Equal(t, http.StatusOK, code)
	var events []engine.Event
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 2)
	require.Equal(t, "first", events[0].Description)
	require.Equal(t, "second", events[1].Description)
}
