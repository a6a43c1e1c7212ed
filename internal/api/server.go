// Package api provides the HTTP API for observing the facility.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/motel-sim/internal/agents"
	"github.com/talgya/motel-sim/internal/engine"
	"github.com/talgya/motel-sim/internal/persistence"
)

// Server serves the facility state over HTTP.
type Server struct {
	Sim       *engine.Simulation
	Eng       *engine.Engine
	DB        *persistence.DB // Optional; snapshot is unavailable without it
	Port      int
	AdminKey  string // Bearer token for POST endpoints. Empty = POST disabled.
	StreamKey string // Bearer token for the websocket stream. Empty = streaming disabled.

	AdminRate   int           // Admin requests per window per client
	AdminWindow time.Duration // Rate limit window
	MaxStreams  int           // Concurrent websocket clients

	limiter  *RateLimiter
	upgrader websocket.Upgrader
	streams  streamCounter
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.AdminRate <= 0 {
		s.AdminRate = 30
	}
	if s.AdminWindow <= 0 {
		s.AdminWindow = time.Minute
	}
	if s.MaxStreams <= 0 {
		s.MaxStreams = 4
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(s.AdminRate, s.AdminWindow)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/rooms", s.handleRooms)
	mux.HandleFunc("/api/v1/counter", s.handleCounter)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/ledger", s.handleLedger)
	mux.Handle("/metrics", s.Sim.Metrics.Handler())

	// Websocket stream (GET, requires the stream key).
	mux.HandleFunc("/api/v1/ws", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.admin(s.handleSpeed))
	mux.HandleFunc("/api/v1/spawn", s.admin(postOnly(s.handleSpawn)))
	mux.HandleFunc("/api/v1/spawner", s.admin(s.handleSpawner))
	mux.HandleFunc("/api/v1/recall", s.admin(postOnly(s.handleRecall)))
	mux.HandleFunc("/api/v1/rescan", s.admin(postOnly(s.handleRescan)))
	mux.HandleFunc("/api/v1/displace", s.admin(postOnly(s.handleDisplace)))
	mux.HandleFunc("/api/v1/snapshot", s.admin(postOnly(s.handleSnapshot)))

	return corsMiddleware(mux)
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "stream_auth", s.StreamKey != "")

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		s.limiter.Stop()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.limiter.Stop()
	return err
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(auth, "Bearer "), true
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := bearerToken(r)
	return ok && token == s.AdminKey
}

// admin wraps a handler to require bearer token auth and the admin rate
// limit on POST requests. GET requests pass through (for endpoints that
// support both GET and POST).
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	limited := RateLimitMiddleware(s.limiter, next)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next(w, r)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no MOTELSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		limited(w, r)
	}
}

func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// ── Observation ────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		engine.Status
		Speed   float64 `json:"speed"`
		Running bool    `json:"running"`
	}{
		Status:  s.Sim.Status(),
		Speed:   s.Eng.Speed(),
		Running: s.Eng.Running(),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""
	views := s.Sim.AgentViews(activeOnly)
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := views[:0]
		for _, v := range views {
			if strings.EqualFold(v.State, state) {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	if views == nil {
		views = []agents.View{}
	}
	writeJSON(w, views)
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 || parts[3] == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}

	view, ok := s.Sim.AgentView(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	list := s.Sim.RoomsSnapshot()
	if r.URL.Query().Get("free") != "" {
		free := list[:0]
		for _, room := range list {
			if !room.Occupied {
				free = append(free, room)
			}
		}
		list = free
	}
	writeJSON(w, list)
}

func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.CounterSnapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	events := s.Sim.RecentEvents(0)
	if r.URL.Query().Get("source") == "db" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		stored, err := s.DB.RecentEvents(limit)
		if err != nil {
			slog.Error("events query failed", "error", err)
			http.Error(w, "events query failed", http.StatusInternalServerError)
			return
		}
		slices.Reverse(stored)
		events = stored
	}

	if category := r.URL.Query().Get("category"); category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if agent := r.URL.Query().Get("agent"); agent != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Agent == agent {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	if events == nil {
		events = []engine.Event{}
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 1000)
	if r.URL.Query().Get("source") == "db" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		payments, err := s.DB.Payments(limit)
		if err != nil {
			slog.Error("ledger query failed", "error", err)
			http.Error(w, "ledger query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, payments)
		return
	}
	writeJSON(w, s.Sim.LedgerSummary(limit))
}

// ── Admin ──────────────────────────────────────────────────────────

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		s.Sim.EmitEvent("admin", fmt.Sprintf("speed set to %g", req.Speed))
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Count int `json:"count"`
	}{Count: -1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if req.Count > 1000 {
		http.Error(w, "count must be at most 1000", http.StatusBadRequest)
		return
	}

	n := s.Sim.ManualSpawn(req.Count)
	writeJSON(w, map[string]any{
		"scheduled": n,
		"active":    s.Sim.Spawner.ActiveCount(),
		"pooled":    s.Sim.Spawner.PooledCount(),
	})
}

func (s *Server) handleSpawner(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		cur := s.Sim.Spawner.Config()
		req := struct {
			MinSpawn  *int `json:"min_spawn"`
			MaxSpawn  *int `json:"max_spawn"`
			StartHour *int `json:"start_hour"`
			EndHour   *int `json:"end_hour"`
			Interval  *int `json:"interval"`
		}{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		pick := func(v *int, def int) int {
			if v != nil {
				return *v
			}
			return def
		}
		err := s.Sim.SetSpawnSettings(
			pick(req.MinSpawn, cur.MinSpawn),
			pick(req.MaxSpawn, cur.MaxSpawn),
			pick(req.StartHour, cur.StartHour),
			pick(req.EndHour, cur.EndHour),
			pick(req.Interval, cur.Interval),
		)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, map[string]any{
		"config":   s.Sim.Spawner.Config(),
		"triggers": s.Sim.Spawner.TriggerHours(),
	})
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]int{"recalled": s.Sim.RecallAll()})
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	added := s.Sim.Rescan()
	total, occupied := s.Sim.Rooms.Counts()
	writeJSON(w, map[string]int{"added": added, "rooms": total, "occupied": occupied})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	snap := s.Sim.Snapshot()
	if err := s.DB.SaveState(snap); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    snap.Tick,
		"time":    engine.SimTime(snap.Day, snap.Hour, snap.Minute),
		"message": "snapshot saved",
	})
}

// handleDisplace moves an agent off its path for fault injection.
func (s *Server) handleDisplace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Agent uint64  `json:"agent"`
		X     float64 `json:"x"`
		Z     float64 `json:"z"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !s.Sim.Displace(agents.AgentID(req.Agent), req.X, req.Z) {
		http.Error(w, "agent not active", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"displaced": req.Agent})
}

func queryLimit(r *http.Request, def, max int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

