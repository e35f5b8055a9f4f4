package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts a request for key and decides whether it may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Limiter Limiter
	// KeyFunc defaults to ClientKey.
	KeyFunc func(*http.Request) string
}

// RateLimit rejects requests over the limit with 429. Every response carries
// the X-RateLimit-* headers. When the limiter itself fails the request is let
// through and the failure is logged.
func RateLimit(cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d, err := cfg.Limiter.Allow(r.Context(), keyFunc(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if !d.Allowed {
				wait := max(d.ResetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller by API key when one is sent, otherwise by
// client IP. Keys are hashed so raw credentials never reach the limiter.
func ClientKey(r *http.Request) string {
	key := r.Header.Get("api_key")
	if key == "" {
		key, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if key = strings.TrimSpace(key); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + clientIP(r)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// window holds the counts of two adjacent fixed windows.
type window struct {
	prev      float64
	curr      float64
	currStart time.Time
}

// MemoryLimiter is a per-process sliding window limiter. The previous window
// count is weighted by how much of it still overlaps the sliding window.
type MemoryLimiter struct {
	max    int
	period time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter allows limit requests per period and key.
func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: limit, period: period, windows: make(map[string]*window)}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.period)
	w, ok := l.windows[key]
	switch {
	case !ok:
		w = &window{currStart: start}
		l.windows[key] = w
	case start.Sub(w.currStart) >= 2*l.period:
		*w = window{currStart: start}
	case start.After(w.currStart):
		*w = window{prev: w.curr, currStart: start}
	}

	overlap := 1 - float64(now.Sub(start))/float64(l.period)
	count := w.prev*overlap + w.curr
	d := Decision{Limit: l.max, ResetAt: start.Add(l.period)}
	if count >= float64(l.max) {
		return d, nil
	}
	w.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(l.max)-count-1), 0)
	return d, nil
}

// Cleanup drops windows idle for two periods.
func (l *MemoryLimiter) Cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.currStart) >= 2*l.period {
			delete(l.windows, key)
		}
	}
}

// Run calls Cleanup every two periods until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context) error {
	t := time.NewTicker(2 * l.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			l.Cleanup(now)
		}
	}
}

// RedisLimiter is a fixed window limiter shared by all replicas. Each window
// is a counter key that expires with the window.
type RedisLimiter struct {
	client redis.Cmdable
	max    int
	period time.Duration
	prefix string
}

// NewRedisLimiter allows limit requests per period and key.
func NewRedisLimiter(client redis.Cmdable, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: limit, period: period, prefix: "ratelimit:"}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	start := now.Truncate(l.period)
	k := l.prefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, l.period)
		return nil
	})
	if err != nil {
		return Decision{}, errors.Wrap(err, "count request")
	}

	n := int(incr.Val())
	return Decision{
		Allowed:   n <= l.max,
		Limit:     l.max,
		Remaining: max(l.max-n, 0),
		ResetAt:   start.Add(l.period),
	}, nil
}
