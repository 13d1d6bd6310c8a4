package notifications_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/notifications"
)

func renewed() licensing.Notification {
	subID, licID := uuid.New(), uuid.New()
	expires := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	return licensing.Notification{
		Kind:           licensing.NotifyRenewed,
		UserID:         uuid.New(),
		SubscriptionID: &subID,
		LicenseID:      &licID,
		Plan:           licensing.PlanProfessional,
		ExpiresAt:      &expires,
		OccurredAt:     time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC),
	}
}

type recorder struct {
	mu   sync.Mutex
	seen []licensing.Notification
}

func (r *recorder) Deliver(_ context.Context, n licensing.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestDispatcher_Sync(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	first, last := &recorder{}, &recorder{}
	failing := notifications.DelivererFunc(func(context.Context, licensing.Notification) error {
		return errors.New("smtp down")
	})

	d := notifications.NewDispatcher([]notifications.Deliverer{first, failing, nil, last}, notifications.WithLogger(log))
	n := renewed()

	require.NoError(t, d.Notify(context.Background(), n), "delivery errors are never returned")
	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, last.count())
	assert.Equal(t, n, last.seen[0])
	assert.Contains(t, buf.String(), "notification delivery failed")
	assert.Contains(t, buf.String(), "smtp down")
}

func TestDispatcher_NoDeliverers(t *testing.T) {
	t.Parallel()

	d := notifications.NewDispatcher(nil)
	assert.NoError(t, d.Notify(context.Background(), renewed()))
	assert.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_Async(t *testing.T) {
	t.Parallel()

	t.Run("outlives the caller context", func(t *testing.T) {
		t.Parallel()

		var delivered atomic.Bool
		release := make(chan struct{})
		slow := notifications.DelivererFunc(func(ctx context.Context, _ licensing.Notification) error {
			<-release
			if ctx.Err() == nil {
				delivered.Store(true)
			}
			return nil
		})

		d := notifications.NewDispatcher([]notifications.Deliverer{slow}, notifications.WithAsync(time.Minute))

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, d.Notify(ctx, renewed()))
		cancel()
		close(release)

		require.NoError(t, d.Close(context.Background()))
		assert.True(t, delivered.Load())
	})

	t.Run("timeout bounds delivery", func(t *testing.T) {
		t.Parallel()

		var deadlineHit atomic.Bool
		stuck := notifications.DelivererFunc(func(ctx context.Context, _ licensing.Notification) error {
			<-ctx.Done()
			deadlineHit.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		})

		d := notifications.NewDispatcher([]notifications.Deliverer{stuck}, notifications.WithAsync(20*time.Millisecond))
		require.NoError(t, d.Notify(context.Background(), renewed()))
		require.NoError(t, d.Close(context.Background()))
		assert.True(t, deadlineHit.Load())
	})

	t.Run("close honours its context", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		defer close(release)
		blocked := notifications.DelivererFunc(func(context.Context, licensing.Notification) error {
			<-release
			return nil
		})

		d := notifications.NewDispatcher([]notifications.Deliverer{blocked}, notifications.WithAsync(time.Minute))
		require.NoError(t, d.Notify(context.Background(), renewed()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	})
}

func TestLogDeliverer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := notifications.NewLogDeliverer(slog.New(slog.NewJSONHandler(&buf, nil)))
	n := renewed()

	require.NoError(t, d.Deliver(context.Background(), n))
	out := buf.String()
	assert.Contains(t, out, `"msg":"license notification"`)
	assert.Contains(t, out, n.UserID.String())
	assert.Contains(t, out, n.LicenseID.String())
	assert.Contains(t, out, `"plan":"professional"`)
}

func TestCompose(t *testing.T) {
	t.Parallel()

	kinds := []licensing.NotificationKind{
		licensing.NotifyRenewed,
		licensing.NotifyCancelled,
		licensing.NotifyExpired,
		licensing.NotifyPaymentFailed,
		licensing.NotifyTrialIssued,
	}
	subjects := map[string]bool{}
	for _, kind := range kinds {
		msg := notifications.Compose(licensing.Notification{Kind: kind})
		assert.NotEmpty(t, msg.Subject)
		assert.NotEmpty(t, msg.Body)
		assert.Equal(t, "license-"+string(kind), msg.Tag)
		subjects[msg.Subject] = true
	}
	assert.Len(t, subjects, len(kinds), "every kind has its own subject")

	fallback := notifications.Compose(licensing.Notification{Kind: "unknown"})
	assert.Equal(t, "Your license was updated", fallback.Subject)
}
