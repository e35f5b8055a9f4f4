package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (Decision, error) {
	return Decision{}, errors.New("redis: connection refused")
}

// --- Helpers ---

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: NewMemoryLimiter(2, time.Hour)})(okHandler())

	for range 2 {
		w := serve(h, "10.0.0.1:9999", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.True(t, body.Retryable)
	assert.NotEmpty(t, body.Message)

	// Another client has its own budget.
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1234", nil).Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: failingLimiter{}})(okHandler())

	w := serve(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.168.1.1:4444", nil, "ip:192.168.1.1"},
		{"forwarded for", "192.168.1.1:4444", map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, "ip:203.0.113.50"},
		{"real ip", "192.168.1.1:4444", map[string]string{"X-Real-IP": "198.51.100.7"}, "ip:198.51.100.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientKey(req))
		})
	}

	// The same key sent either way maps to one bucket and is never stored raw.
	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.Header.Set("api_key", "sk_secret")
	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.Header.Set("Authorization", "Bearer sk_secret")
	assert.Equal(t, ClientKey(a), ClientKey(b))
	assert.NotContains(t, ClientKey(a), "sk_secret")
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	l := NewMemoryLimiter(4, time.Minute)
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	for i := range 4 {
		d, err := l.Allow(ctx, "k", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, d.Allowed)
		assert.Equal(t, 3-i, d.Remaining)
	}
	d, err := l.Allow(ctx, "k", base.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// A quarter into the next window three quarters of the previous count
	// still apply: 4*0.75 = 3, so one request fits.
	next := base.Add(time.Minute + 15*time.Second)
	d, err = l.Allow(ctx, "k", next)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Allow(ctx, "k", next)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// Two full windows later the history is gone.
	d, err = l.Allow(ctx, "k", base.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	_, _ = l.Allow(context.Background(), "old", base)
	_, _ = l.Allow(context.Background(), "new", base.Add(2*time.Minute))

	l.Cleanup(base.Add(2*time.Minute + time.Second))
	assert.NotContains(t, l.windows, "old")
	assert.Contains(t, l.windows, "new")
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, 2, time.Minute)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 10, 0, 30, 0, time.UTC)

	d, err := l.Allow(ctx, "ip:10.0.0.1", now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, now.Truncate(time.Minute).Add(time.Minute), d.ResetAt)

	d, err = l.Allow(ctx, "ip:10.0.0.1", now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = l.Allow(ctx, "ip:10.0.0.1", now)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	key := "ratelimit:ip:10.0.0.1:" + "1741946400"
	require.True(t, mr.Exists(key), mr.Keys())
	assert.Equal(t, time.Minute, mr.TTL(key))

	// The window key expires and the next window starts fresh.
	mr.FastForward(time.Minute)
	d, err = l.Allow(ctx, "ip:10.0.0.1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.Close()
	_, err = l.Allow(ctx, "ip:10.0.0.1", now)
	require.Error(t, err)
}
