package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/motel-sim/internal/engine"
)

const (
	streamCatchUp   = 50
	streamHeartbeat = 15 * time.Second
	writeWait       = 5 * time.Second
)

type streamCounter struct {
	n atomic.Int32
}

// acquire reserves a stream slot; false when max are in use.
func (c *streamCounter) acquire(max int) bool {
	if c.n.Add(1) > int32(max) {
		c.n.Add(-1)
		return false
	}
	return true
}

func (c *streamCounter) release() { c.n.Add(-1) }

// streamMessage is one frame of the websocket stream.
type streamMessage struct {
	Type  string        `json:"type"` // "event" or "status"
	Event *engine.Event `json:"event,omitempty"`
	Data  any           `json:"data,omitempty"`
}

// handleStream pushes events (agent intents, spawns, recycles, payments)
// to a websocket client, with a status frame on every heartbeat. Browsers
// cannot set headers on websocket requests, so ?token= is accepted too.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.StreamKey == "" {
		http.Error(w, "streaming disabled (no MOTELSIM_STREAM_KEY set)", http.StatusForbidden)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token != s.StreamKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !s.streams.acquire(s.MaxStreams) {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streams.release()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Writer goroutine: the only one writing data frames.
	writeErr := make(chan error, 1)
	go func() {
		send := func(m streamMessage) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(m)
		}

		for _, e := range s.Sim.RecentEvents(streamCatchUp) {
			if err := send(streamMessage{Type: "event", Event: &e}); err != nil {
				writeErr <- err
				return
			}
		}

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case e, ok := <-ch:
				if !ok {
					writeErr <- nil
					return
				}
				if err := send(streamMessage{Type: "event", Event: &e}); err != nil {
					writeErr <- err
					return
				}
			case <-heartbeat.C:
				if err := send(streamMessage{Type: "status", Data: s.Sim.Status()}); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	// Reader loop: clients only send close frames; anything else is ignored.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-readDone:
	case err := <-writeErr:
		if err != nil && ctx.Err() == nil {
			slog.Debug("stream write failed", "sub_id", subID, "error", err)
		}
	}
	cancel()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	slog.Info("stream client disconnected", "sub_id", subID)
}
