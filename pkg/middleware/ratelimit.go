package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/partnerauth/pkg/contextkeys"
	"github.com/platinummonkey/partnerauth/pkg/httputil"
	"github.com/platinummonkey/partnerauth/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig allows 60 requests a minute per client with a burst of 10
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// Limiter decides whether the client identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Config() *RateLimitConfig
}

// maxTrackedClients bounds the in-process bucket table
const maxTrackedClients = 10000

// RateLimiter is an in-process token bucket per key. Least recently seen
// keys are evicted once maxTrackedClients is reached.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	buckets, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	return &RateLimiter{config: config, buckets: buckets}
}

// Config returns the limits in force
func (rl *RateLimiter) Config() *RateLimitConfig {
	return rl.config
}

// Allow takes one token from the bucket of key
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	return rl.bucket(key).Allow(), nil
}

// Remaining returns the whole tokens currently left for key
func (rl *RateLimiter) Remaining(key string) int {
	b, ok := rl.buckets.Peek(key)
	if !ok {
		return rl.config.RequestsPerWindow + rl.config.BurstSize
	}
	return int(b.Tokens())
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	if b, ok := rl.buckets.Get(key); ok {
		return b
	}
	every := rate.Every(rl.config.WindowDuration / time.Duration(max(rl.config.RequestsPerWindow, 1)))
	b := rate.NewLimiter(every, rl.config.RequestsPerWindow+rl.config.BurstSize)
	// a concurrent first request may have stored its own bucket already
	if prev, ok, _ := rl.buckets.PeekOrAdd(key, b); ok {
		return prev
	}
	return b
}

// RateLimit wraps handlers with per-client limiting. name labels the
// rejection metric.
func RateLimit(limiter Limiter, name string, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := contextkeys.GetClientIP(ctx)
			if ip == "" {
				ip = httputil.ClientIP(r)
			}
			key := name + ":" + ip

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				observability.FromContext(ctx).WithError(err).WithField("limiter", name).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			cfg := limiter.Config()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			if !allowed {
				metrics.RecordRateLimited(name)
				rateLimitExceeded(w, cfg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitExceeded(w http.ResponseWriter, cfg *RateLimitConfig) {
	retryAfter := cfg.WindowDuration.Seconds()
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
	w.Header().Set("X-RateLimit-Remaining", "0")
	httputil.WriteTooManyRequests(w, "rate limit exceeded")
}
