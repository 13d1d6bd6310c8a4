package webhook_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/webhook"
)

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func fastRetry() webhook.SendOption {
	return webhook.WithBackoff(webhook.FixedBackoff{Interval: time.Millisecond})
}

func TestSender_Send_SignedDelivery(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "keygate-webhook/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "renewed", r.Header.Get("X-Event-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"evt_1","type":"renewed"}`, string(body))

		sig, err := webhook.VerifyRequest("secret", body, r.Header, webhook.DefaultMaxAge)
		assert.NoError(t, err)
		assert.Equal(t, "evt_1", sig.ID)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	err := webhook.NewSender().Send(context.Background(), server.URL, event{ID: "evt_1", Type: "renewed"},
		webhook.WithSignature("secret"),
		webhook.WithDeliveryID("evt_1"),
		webhook.WithHeader("X-Event-Type", "renewed"),
	)
	assert.NoError(t, err)
}

func TestSender_Send_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var attempts []int
	err := webhook.NewSender().Send(context.Background(), server.URL, event{ID: "evt_1"},
		fastRetry(),
		webhook.WithOnDelivery(func(r webhook.DeliveryResult) { attempts = append(attempts, r.Attempt) }),
	)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestSender_Send_RetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := webhook.NewSender().Send(context.Background(), server.URL, event{ID: "evt_1"},
		fastRetry(), webhook.WithMaxRetries(2))
	assert.ErrorIs(t, err, webhook.ErrDeliveryFailed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSender_Send_PermanentFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	err := webhook.NewSender().Send(context.Background(), server.URL, event{ID: "evt_1"}, fastRetry())
	assert.ErrorIs(t, err, webhook.ErrPermanentFailure)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSender_Send_RateLimitedIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := webhook.NewSender().Send(context.Background(), server.URL, event{ID: "evt_1"}, fastRetry())
	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSender_Send_InvalidURL(t *testing.T) {
	t.Parallel()

	sender := webhook.NewSender()
	for _, u := range []string{"", "ftp://example.com/hook", "http://"} {
		err := sender.Send(context.Background(), u, event{ID: "evt_1"})
		assert.ErrorIs(t, err, webhook.ErrInvalidURL, u)
	}
}

func TestSender_Send_ContextCancelledBetweenRetries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	err := webhook.NewSender().Send(ctx, server.URL, event{ID: "evt_1"},
		webhook.WithBackoff(webhook.FixedBackoff{Interval: time.Minute}),
		webhook.WithOnDelivery(func(webhook.DeliveryResult) { cancel() }),
	)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	b := webhook.ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}

	assert.Equal(t, time.Duration(0), b.NextInterval(0))
	assert.Equal(t, 100*time.Millisecond, b.NextInterval(1))
	assert.Equal(t, 200*time.Millisecond, b.NextInterval(2))
	assert.Equal(t, 400*time.Millisecond, b.NextInterval(3))
	assert.Equal(t, time.Second, b.NextInterval(10))

	jittered := webhook.ExponentialBackoff{InitialInterval: time.Second, JitterFactor: 0.1}
	for range 20 {
		d := jittered.NextInterval(1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}
