package entropy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	randomOrgEndpoint = "https://api.random.org/json-rpc/4/invoke"
	randomOrgBatch    = 100
	randomOrgLowWater = 10
)

// RandomOrg is a Source backed by random.org decimal fractions, drawn in
// batches into a local pool. Draws fall back to crypto/rand whenever the
// pool is empty and a refill fails.
type RandomOrg struct {
	apiKey   string
	endpoint string
	client   *http.Client

	mu      sync.Mutex
	pool    []float64
	fetches int
	fails   int
}

// NewRandomOrg creates a random.org source. Returns nil if apiKey is empty.
func NewRandomOrg(apiKey string) *RandomOrg {
	if apiKey == "" {
		return nil
	}
	return &RandomOrg{
		apiKey:   apiKey,
		endpoint: randomOrgEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *RandomOrg) Float64() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < randomOrgLowWater {
		ctx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
		vals, err := c.fetch(ctx)
		cancel()
		c.fetches++
		if err != nil {
			c.fails++
			slog.Debug("random.org refill failed", "error", err)
		} else {
			c.pool = append(c.pool, vals...)
		}
	}
	if len(c.pool) == 0 {
		return cryptoRandFloat()
	}

	v := c.pool[0]
	c.pool = c.pool[1:]
	return v
}

func (c *RandomOrg) Intn(n int) int {
	v := int(c.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Stats reports refill attempts and failures.
func (c *RandomOrg) Stats() (fetches, fails int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches, c.fails
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      int            `json:"id"`
}

type rpcResponse struct {
	Result struct {
		Random struct {
			Data []float64 `json:"data"`
		} `json:"random"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *RandomOrg) fetch(ctx context.Context) ([]float64, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "generateDecimalFractions",
		Params: map[string]any{
			"apiKey":        c.apiKey,
			"n":             randomOrgBatch,
			"decimalPlaces": 6,
		},
		ID: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("api error %d: %s", out.Error.Code, out.Error.Message)
	}

	vals := out.Result.Random.Data[:0]
	for _, v := range out.Result.Random.Data {
		if v >= 0 && v < 1 {
			vals = append(vals, v)
		}
	}
	return vals, nil
}
