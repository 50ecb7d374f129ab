package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guildops/ballast/pkg/log"
	"github.com/guildops/ballast/pkg/resource"
)

const connectivityCacheTTL = 30 * time.Second

// HTTPConnector talks to a tabular mirror service over JSON REST:
// PUT /tables/<key> replaces a table, GET /tables/<key> reads it back,
// POST /tables/<key>/batch appends a chunk of rows.
type HTTPConnector struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger

	mu          sync.Mutex
	lastCheck   time.Time
	lastHealthy bool
}

// NewHTTPConnector creates a connector for the given base URL. Every
// request carries the configured timeout; there are no unbounded calls.
func NewHTTPConnector(baseURL, apiKey string, timeout time.Duration) *HTTPConnector {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPConnector{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  log.WithComponent("mirror"),
	}
}

// IsConnected probes the mirror's health endpoint, caching the result
// briefly so admission of sync work does not hammer the remote side.
func (c *HTTPConnector) IsConnected() bool {
	c.mu.Lock()
	if time.Since(c.lastCheck) < connectivityCacheTTL {
		healthy := c.lastHealthy
		c.mu.Unlock()
		return healthy
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	healthy := err == nil && resp.StatusCode < 500
	if resp != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.lastCheck = time.Now()
	c.lastHealthy = healthy
	c.mu.Unlock()
	return healthy
}

// Push replaces the remote table for key with value
func (c *HTTPConnector) Push(ctx context.Context, key resource.Key, value any) error {
	body, err := json.Marshal(map[string]any{"value": value})
	if err != nil {
		return fmt.Errorf("mirror: encode %s: %w", key, err)
	}
	return c.send(ctx, http.MethodPut, c.tableURL(key), body)
}

// PushBatch appends a chunk of rows to the remote table for key
func (c *HTTPConnector) PushBatch(ctx context.Context, key resource.Key, rows []any, offset, total int) error {
	body, err := json.Marshal(map[string]any{
		"rows":   rows,
		"offset": offset,
		"total":  total,
	})
	if err != nil {
		return fmt.Errorf("mirror: encode batch %s: %w", key, err)
	}
	return c.send(ctx, http.MethodPost, c.tableURL(key)+"/batch", body)
}

// Pull reads the remote table for key; absent tables are not an error
func (c *HTTPConnector) Pull(ctx context.Context, key resource.Key) (any, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(key), nil)
	if err != nil {
		return nil, false, fmt.Errorf("mirror: build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, classifyTransport(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, fmt.Errorf("mirror: pull %s: %w", key, ErrThrottled)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("mirror: pull %s: unexpected status %d", key, resp.StatusCode)
	}

	var payload struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("mirror: decode %s: %w", key, err)
	}
	return payload.Value, true, nil
}

func (c *HTTPConnector) tableURL(key resource.Key) string {
	return c.baseURL + "/tables/" + url.PathEscape(key.String())
}

func (c *HTTPConnector) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *HTTPConnector) send(ctx context.Context, method, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mirror: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("mirror: %s %s: %w", method, target, ErrThrottled)
	case resp.StatusCode >= 500:
		// Server-side trouble is retried like throttling
		return fmt.Errorf("mirror: %s %s: status %d: %w", method, target, resp.StatusCode, ErrThrottled)
	case resp.StatusCode >= 400:
		return fmt.Errorf("mirror: %s %s: unexpected status %d", method, target, resp.StatusCode)
	}
	return nil
}

// classifyTransport maps transport failures onto the throttle/disconnect
// taxonomy: timeouts behave exactly like a throttling signal, everything
// else like a lost connection. Both are transient.
func classifyTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("mirror: timeout: %w", ErrThrottled)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("mirror: timeout: %w", ErrThrottled)
	}
	return fmt.Errorf("mirror: %v: %w", err, ErrDisconnected)
}
