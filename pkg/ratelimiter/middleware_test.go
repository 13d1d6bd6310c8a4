package ratelimiter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/ratelimiter"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimiter.Result, error) {
	return nil, errors.New("boom")
}

func (failingLimiter) AllowN(context.Context, string, int) (*ratelimiter.Result, error) {
	return nil, errors.New("boom")
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

func byRemoteAddr(r *http.Request) string { return r.RemoteAddr }

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("limits per key", func(t *testing.T) {
		t.Parallel()

		c := newClock()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0), ratelimiter.WithMemoryClock(c.Now))
		b, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		require.NoError(t, err)
		h := ratelimiter.Middleware(b, byRemoteAddr, nil)(ok)

		first := httptest.NewRecorder()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, first.Code)
		assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

		second := httptest.NewRecorder()
		h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
		assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, second.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"too many requests"}`, second.Body.String())

		other := httptest.NewRequest(http.MethodGet, "/", nil)
		other.RemoteAddr = "198.51.100.1:1"
		third := httptest.NewRecorder()
		h.ServeHTTP(third, other)
		assert.Equal(t, http.StatusNoContent, third.Code)
	})

	t.Run("empty key is exempt", func(t *testing.T) {
		t.Parallel()

		h := ratelimiter.Middleware(failingLimiter{}, ratelimiter.Static(""), nil)(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("store failure lets requests through", func(t *testing.T) {
		t.Parallel()

		h := ratelimiter.Middleware(failingLimiter{}, byRemoteAddr, nil)(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestComposite(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Equal(t, "", ratelimiter.Composite(ratelimiter.Static(""))(r))
	assert.Equal(t, "verify", ratelimiter.Composite(ratelimiter.Static("verify"), ratelimiter.Static(""))(r))
	assert.Equal(t, "verify:1.2.3.4", ratelimiter.Composite(ratelimiter.Static("verify"), ratelimiter.Static("1.2.3.4"))(r))

	long := ratelimiter.Composite(ratelimiter.Static("verify"), ratelimiter.Static(string(make([]byte, 80))))(r)
	assert.LessOrEqual(t, len(long), 13)
	assert.Equal(t, long, ratelimiter.Composite(ratelimiter.Static("verify"), ratelimiter.Static(string(make([]byte, 80))))(r))
}
