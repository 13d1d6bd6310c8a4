package httpserver_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/httpserver"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

// start runs srv in the background and returns its bound address.
func start(t *testing.T, ctx context.Context, srv *httpserver.Server, started <-chan struct{}) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, okHandler()) }()

	select {
	case <-started:
	case err := <-done:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
		return nil
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var stopped atomic.Int32
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithStartHook(func(context.Context) { close(started) }),
		httpserver.WithStopHook(func(context.Context) error { stopped.Add(1); return nil }),
		httpserver.WithStopHook(func(context.Context) error { stopped.Add(1); return nil }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(t, ctx, srv, started)

	resp, err := http.Get("http://" + srv.Addr())
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, wait(t, done))
	assert.Equal(t, int32(2), stopped.Load())

	require.NoError(t, srv.Shutdown(context.Background()), "repeated shutdown is a no-op")
	assert.Equal(t, int32(2), stopped.Load())
}

func TestRun_ManualShutdown(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithStartHook(func(context.Context) { close(started) }),
	)
	done := start(t, context.Background(), srv, started)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, wait(t, done))
}

func TestRun_StopHookError(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	boom := errors.New("pool close failed")
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithStartHook(func(context.Context) { close(started) }),
		httpserver.WithStopHook(func(context.Context) error { return boom }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := start(t, ctx, srv, started)
	cancel()

	err := wait(t, done)
	assert.ErrorIs(t, err, httpserver.ErrStopHook)
	assert.ErrorIs(t, err, boom)
}

func TestRun_StartErrors(t *testing.T) {
	t.Parallel()

	t.Run("bad address", func(t *testing.T) {
		t.Parallel()
		err := httpserver.New(httpserver.WithAddr(":invalid")).Run(context.Background(), okHandler())
		assert.ErrorIs(t, err, httpserver.ErrStart)
	})

	t.Run("port in use", func(t *testing.T) {
		t.Parallel()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { _ = ln.Close() })

		err = httpserver.New(httpserver.WithAddr(ln.Addr().String())).Run(context.Background(), okHandler())
		assert.ErrorIs(t, err, httpserver.ErrStart)
	})

	t.Run("already running", func(t *testing.T) {
		t.Parallel()
		started := make(chan struct{})
		srv := httpserver.New(
			httpserver.WithAddr("127.0.0.1:0"),
			httpserver.WithStartHook(func(context.Context) { close(started) }),
		)
		ctx, cancel := context.WithCancel(context.Background())
		done := start(t, ctx, srv, started)

		err := srv.Run(ctx, okHandler())
		assert.ErrorIs(t, err, httpserver.ErrAlreadyRunning)

		cancel()
		require.NoError(t, wait(t, done))
	})
}

func TestOptionPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { httpserver.WithAddr("") })
	assert.Panics(t, func() { httpserver.WithReadTimeout(0) })
	assert.Panics(t, func() { httpserver.WithReadHeaderTimeout(-time.Second) })
	assert.Panics(t, func() { httpserver.WithWriteTimeout(0) })
	assert.Panics(t, func() { httpserver.WithIdleTimeout(0) })
	assert.Panics(t, func() { httpserver.WithShutdownTimeout(0) })
	assert.Panics(t, func() { httpserver.WithStartHook(nil) })
	assert.Panics(t, func() { httpserver.WithStopHook(nil) })
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv := httpserver.NewFromConfig(httpserver.Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		httpserver.WithStartHook(func(context.Context) { close(started) }))
	ctx, cancel := context.WithCancel(context.Background())
	done := start(t, ctx, srv, started)
	assert.NotEmpty(t, srv.Addr())
	cancel()
	require.NoError(t, wait(t, done))
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks httpserver.HealthChecks
		status int
		body   string
	}{
		{name: "liveness", checks: nil, status: http.StatusOK, body: "ALIVE"},
		{name: "ready", checks: httpserver.HealthChecks{"pg": ok, "redis": ok}, status: http.StatusOK, body: "READY"},
		{name: "not ready", checks: httpserver.HealthChecks{"pg": ok, "redis": down}, status: http.StatusServiceUnavailable, body: "NOT_READY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			httpserver.HealthCheckHandler(nil, time.Second, tt.checks).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}

	t.Run("probes get a deadline", func(t *testing.T) {
		t.Parallel()

		var hadDeadline atomic.Bool
		probe := func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			hadDeadline.Store(ok)
			return nil
		}
		rec := httptest.NewRecorder()
		httpserver.HealthCheckHandler(nil, time.Second, httpserver.HealthChecks{"mongo": probe}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.True(t, hadDeadline.Load())
	})
}
