package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 2.0
	defaultBurst             = 1
	defaultRequestTimeout    = 15 * time.Second
	defaultMaxRetries        = 3

	// maxResponseBytes bounds how much of a source response we read.
	// Index pages are small; anything larger is a misbehaving backend.
	maxResponseBytes = 4 << 20

	// healthFailureThreshold consecutive failed requests mark the source
	// unavailable until healthCooldown passes.
	healthFailureThreshold = 5
	healthCooldown         = 2 * time.Minute
)

// TransportConfig configures the shared HTTP machinery of one adapter.
type TransportConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	RequestTimeout    time.Duration
	MaxRetries        uint64
}

// transport is the rate-limited, retrying HTTP client shared by the
// adapters. One transport per source; the limiter enforces the per-source
// request budget and the failure counter drives runtime availability.
type transport struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	logger     *slog.Logger

	mu                  sync.Mutex
	consecutiveFailures int
	lastFailure         time.Time
}

func newTransport(cfg TransportConfig, logger *slog.Logger) *transport {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}

	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &transport{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// getJSON performs a rate-limited GET against the source and decodes the
// JSON response into out. Transient failures (network errors, 429, 5xx) are
// retried with exponential backoff; anything else is permanent.
func (t *transport) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrRequestFailed, err)
	}

	requestURL := t.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	operation := func() error {
		return t.doRequest(ctx, requestURL, out)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.maxRetries), ctx,
	)

	err := backoff.Retry(operation, policy)
	t.recordOutcome(err)

	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrRequestFailed, path, err)
	}

	return nil
}

func (t *transport) doRequest(ctx context.Context, requestURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	req.Header.Set("Accept", "application/json")

	if t.apiKey != "" {
		req.Header.Set("X-Api-Key", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// Network errors are transient; let backoff handle them.
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		body := io.LimitReader(resp.Body, maxResponseBytes)
		if err := json.NewDecoder(body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}

		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
}

// recordOutcome feeds the health tracker. Success resets the failure streak;
// failure extends it.
func (t *transport) recordOutcome(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		t.consecutiveFailures = 0

		return
	}

	t.consecutiveFailures++
	t.lastFailure = time.Now()

	if t.consecutiveFailures == healthFailureThreshold {
		t.logger.Warn("Source marked unavailable after repeated failures",
			slog.Int("failures", t.consecutiveFailures),
			slog.Duration("cooldown", healthCooldown))
	}
}

// healthy reports whether the failure streak allows new traffic. After the
// cooldown the source gets another chance regardless of streak length.
func (t *transport) healthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.consecutiveFailures < healthFailureThreshold {
		return true
	}

	return time.Since(t.lastFailure) > healthCooldown
}
