// Package steward implements the facility's night manager.
// It observes the facility via the API, triages what it sees with fixed
// rules, and acts through the admin endpoints.
package steward

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Snapshot holds all data collected during an observation cycle.
type Snapshot struct {
	Status  Status      `json:"status"`
	Counter CounterInfo `json:"counter"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Tick      uint64  `json:"tick"`
	Time      string  `json:"time"`
	Hour      int     `json:"hour"`
	Minute    int     `json:"minute"`
	Active    int     `json:"active_agents"`
	Pooled    int     `json:"pooled_agents"`
	Pending   int     `json:"pending_spawns"`
	Discarded int     `json:"discarded_agents"`
	Rooms     int     `json:"rooms"`
	Occupied  int     `json:"occupied_rooms"`
	Queue     int     `json:"queue_length"`
	Revenue   int64   `json:"revenue"`
	Triggers  []int   `json:"spawn_hours"`
	Speed     float64 `json:"speed"`
	Running   bool    `json:"running"`
}

// CounterInfo mirrors the parts of GET /api/v1/counter the steward reads.
type CounterInfo struct {
	Capacity int    `json:"capacity"`
	Serving  string `json:"serving"`
	Served   uint64 `json:"served"`
	Rejected uint64 `json:"rejected"`
}

// Observer fetches facility state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status and counter and returns a Snapshot.
func (o *Observer) Observe(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/counter", &snap.Counter); err != nil {
		return nil, fmt.Errorf("fetch counter: %w", err)
	}

	return snap, nil
}

// Ready reports whether the status endpoint answers 200.
func (o *Observer) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/v1/status", nil)
	if err != nil {
		return false
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
