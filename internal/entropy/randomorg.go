package entropy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const defaultRandomOrgURL = "https://api.random.org/json-rpc/4/invoke"

const (
	lowWater   = 10
	minBackoff = time.Second
	maxBackoff = 5 * time.Minute
)

// Pool serves true random numbers from random.org through a local buffer.
// Refills run in the background; draws fall back to crypto/rand while it is empty.
type Pool struct {
	apiKey   string
	endpoint string
	batch    int
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	pool      []float64
	refilling bool
	backoff   time.Duration
	retryAt   time.Time
}

// NewPool creates a random.org pool. Returns nil if apiKey is empty.
func NewPool(apiKey string) *Pool {
	if apiKey == "" {
		return nil
	}
	return &Pool{
		apiKey:   apiKey,
		endpoint: defaultRandomOrgURL,
		batch:    100,
		client:   &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
	}
}

// WithEndpoint points the pool at a different JSON-RPC endpoint.
func (p *Pool) WithEndpoint(url string) *Pool {
	p.endpoint = url
	return p
}

// Float returns a random float64 in [0, 1). It never waits on the network.
// A nil pool draws from crypto/rand.
func (p *Pool) Float() float64 {
	if p == nil {
		return cryptoRandFloat()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pool) < lowWater {
		p.startRefill()
	}
	if len(p.pool) == 0 {
		return cryptoRandFloat()
	}

	val := p.pool[0]
	p.pool = p.pool[1:]
	return val
}

// Prefetch fills the pool synchronously. Used at startup before any ticks run.
func (p *Pool) Prefetch(ctx context.Context) error {
	if p == nil {
		return nil
	}
	vals, err := p.fetch(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settle(vals, err)
	return err
}

// Buffered reports how many draws are waiting in the pool.
func (p *Pool) Buffered() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pool)
}

// startRefill launches at most one background fetch, honouring the failure
// backoff. Caller holds mu.
func (p *Pool) startRefill() {
	if p.refilling || p.now().Before(p.retryAt) {
		return
	}
	p.refilling = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.client.Timeout)
		vals, err := p.fetch(ctx)
		cancel()

		p.mu.Lock()
		defer p.mu.Unlock()
		p.refilling = false
		p.settle(vals, err)
	}()
}

// settle applies a fetch result. Caller holds mu.
func (p *Pool) settle(vals []float64, err error) {
	if err != nil {
		p.backoff = min(max(2*p.backoff, minBackoff), maxBackoff)
		p.retryAt = p.now().Add(p.backoff)
		slog.Debug("random.org refill failed", "error", err, "retry_in", p.backoff)
		return
	}
	p.backoff = 0
	p.retryAt = time.Time{}
	p.pool = append(p.pool, vals...)
	slog.Debug("random.org pool refilled", "count", len(vals), "buffered", len(p.pool))
}

func (p *Pool) fetch(ctx context.Context) ([]float64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        p.apiKey,
			"n":             p.batch,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("api error: %s", result.Error.Message)
	}

	vals := make([]float64, 0, len(result.Result.Random.Data))
	for _, v := range result.Result.Random.Data {
		if v >= 0 && v < 1 {
			vals = append(vals, v)
		}
	}
	return vals, nil
}
