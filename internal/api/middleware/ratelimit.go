package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGlobalRPS = 100
	defaultClientRPS = 50
	defaultUnAuthRPS = 10

	// burstCapacityMultiplier sizes the default token bucket: two seconds
	// of sustained rate absorbs brief spikes without raising the limit.
	burstCapacityMultiplier = 2

	maxClients                 = 100
	clientWarnThresholdPercent = 80

	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleTimeout     = 1 * time.Hour
)

// RateLimiter decides whether a request may proceed. clientID is empty for
// unauthenticated requests. The in-memory implementation below serves a
// single node; a distributed deployment swaps in a shared-store limiter
// behind the same interface.
type RateLimiter interface {
	Allow(clientID string) bool
}

// LimitReporter is optionally implemented by limiters that can state the
// sustained rate applying to a client, for the X-RateLimit-Limit header on
// 429 responses.
type LimitReporter interface {
	Limit(clientID string) int
}

// InMemoryRateLimiter enforces three token-bucket tiers: one global bucket,
// one per authenticated client and one shared by all unauthenticated
// traffic. Per-client buckets are created lazily and reaped after sitting
// idle past the configured timeout.
type InMemoryRateLimiter struct {
	global          *rate.Limiter
	unauthenticated *rate.Limiter

	mu        sync.RWMutex
	perClient map[string]*clientBucket

	cleanupTicker *time.Ticker
	done          chan struct{}

	clientRPS   int
	clientBurst int
	unauthRPS   int
	idleTimeout time.Duration
	maxClients  int
}

// clientBucket is one client's limiter plus the access timestamp the reaper
// inspects.
type clientBucket struct {
	limiter    *rate.Limiter
	mu         sync.Mutex
	lastAccess time.Time
}

// NewInMemoryRateLimiter builds a limiter from config and starts its reaper
// goroutine. Callers own the lifecycle and must Close it.
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	rl := &InMemoryRateLimiter{
		global:          rate.NewLimiter(rate.Limit(config.GlobalRPS), burstFor(config.GlobalRPS, config.GlobalBurst)),
		unauthenticated: rate.NewLimiter(rate.Limit(config.UnAuthRPS), burstFor(config.UnAuthRPS, config.UnAuthBurst)),
		perClient:       make(map[string]*clientBucket),
		done:            make(chan struct{}),
		clientRPS:       config.ClientRPS,
		clientBurst:     burstFor(config.ClientRPS, config.ClientBurst),
		unauthRPS:       config.UnAuthRPS,
		idleTimeout:     config.IdleTimeout,
		maxClients:      config.MaxClients,
	}

	interval := config.CleanupInterval
	if interval == 0 {
		interval = rateLimiterCleanupInterval
	}

	rl.cleanupTicker = time.NewTicker(interval)
	go rl.reapIdleClients()

	return rl
}

// burstFor resolves a tier's bucket size: an explicit override wins,
// otherwise two seconds of sustained rate.
func burstFor(rps, override int) int {
	if override > 0 {
		return override
	}

	return rps * burstCapacityMultiplier
}

// Allow applies the global tier first, then the client or unauthenticated
// tier. Both must pass.
func (rl *InMemoryRateLimiter) Allow(clientID string) bool {
	if !rl.global.Allow() {
		return false
	}

	if clientID == "" {
		return rl.unauthenticated.Allow()
	}

	bucket := rl.bucketFor(clientID)

	bucket.mu.Lock()
	bucket.lastAccess = time.Now()
	bucket.mu.Unlock()

	return bucket.limiter.Allow()
}

// bucketFor returns the client's bucket, creating it under the write lock on
// first sight. Re-checks under the write lock because another request may
// have created it between lock acquisitions.
func (rl *InMemoryRateLimiter) bucketFor(clientID string) *clientBucket {
	rl.mu.RLock()
	bucket, ok := rl.perClient[clientID]
	rl.mu.RUnlock()

	if ok {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if bucket, ok = rl.perClient[clientID]; ok {
		return bucket
	}

	bucket = &clientBucket{
		limiter:    rate.NewLimiter(rate.Limit(rl.clientRPS), rl.clientBurst),
		lastAccess: time.Now(),
	}
	rl.perClient[clientID] = bucket

	if count := len(rl.perClient); count*100 >= rl.maxClients*clientWarnThresholdPercent {
		slog.Warn("rate limiter approaching max clients limit",
			"current_clients", count,
			"max_clients", rl.maxClients,
			"threshold_percent", clientWarnThresholdPercent,
			"recommendation", "investigate potential client ID proliferation or increase max_clients limit")
	}

	return bucket
}

// Limit reports the sustained per-second rate applying to clientID.
func (rl *InMemoryRateLimiter) Limit(clientID string) int {
	if clientID == "" {
		return rl.unauthRPS
	}

	return rl.clientRPS
}

// Close stops the reaper. Close is deliberately not part of RateLimiter —
// a shared-store limiter may have nothing to stop — so callers that need it
// type-assert to io.Closer.
func (rl *InMemoryRateLimiter) Close() error {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}

	close(rl.done)

	return nil
}

func (rl *InMemoryRateLimiter) reapIdleClients() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.dropIdle()
		case <-rl.done:
			return
		}
	}
}

func (rl *InMemoryRateLimiter) dropIdle() {
	idleTimeout := rl.idleTimeout
	if idleTimeout == 0 {
		idleTimeout = rateLimiterIdleTimeout
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for clientID, bucket := range rl.perClient {
		bucket.mu.Lock()
		idle := now.Sub(bucket.lastAccess) > idleTimeout
		bucket.mu.Unlock()

		if idle {
			delete(rl.perClient, clientID)
		}
	}
}

// RateLimit rejects over-limit requests with a 429 problem response carrying
// Retry-After and, when the limiter reports limits, X-RateLimit-Limit. It
// reads the client id from ClientContext, so it must sit after
// AuthenticateClient in the chain; requests without a client context count
// against the unauthenticated tier.
func RateLimit(limiter RateLimiter, logger *slog.Logger) Option {
	if limiter == nil {
		return passthrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if clientCtx, ok := GetClientContext(r.Context()); ok {
				clientID = clientCtx.ClientID
			}

			if limiter.Allow(clientID) {
				next.ServeHTTP(w, r)

				return
			}

			correlationID := GetCorrelationID(r.Context())

			if reporter, ok := limiter.(LimitReporter); ok {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(reporter.Limit(clientID)))
			}

			w.Header().Set("Retry-After", "1")

			detail := "Rate limit exceeded. Please retry after some time."
			if err := writeProblem(w, r, http.StatusTooManyRequests, detail, correlationID); err != nil {
				logger.Error("failed to write problem response",
					slog.String("correlation_id", correlationID),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				http.Error(w, detail, http.StatusTooManyRequests)
			}
		})
	}
}
