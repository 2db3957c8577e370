package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.err
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimit(t *testing.T) {
	t.Run("allows under the limit and keys by client ip", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: true}
		var called bool
		h := RateLimit(limiter, testLogger())(okHandler(&called))

		r := httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil)
		r.RemoteAddr = "203.0.113.7:49152"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, called)
		require.Len(t, limiter.keys, 1)
		assert.Equal(t, "api:203.0.113.7", limiter.keys[0])
	})

	t.Run("throttles over the limit", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: false}
		var called bool
		h := RateLimit(limiter, testLogger())(okHandler(&called))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "rate limit exceeded")
		assert.False(t, called)
	})

	t.Run("fails open when the limiter backend errors", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("redis: connection pool timeout")}
		var called bool
		h := RateLimit(limiter, testLogger())(okHandler(&called))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, called)
	})

	t.Run("prefers the forwarded address", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: true}
		var called bool
		h := RateLimit(limiter, testLogger())(okHandler(&called))

		r := httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil)
		r.Header.Set("X-Forwarded-For", "198.51.100.4, 203.0.113.7")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		require.Len(t, limiter.keys, 1)
		assert.Equal(t, "api:198.51.100.4", limiter.keys[0])
	})
}
