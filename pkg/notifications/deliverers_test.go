package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/email"
	"github.com/dmitrymomot/keygate/pkg/notifications"
	"github.com/dmitrymomot/keygate/pkg/webhook"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendEmail(ctx context.Context, params email.SendEmailParams) error {
	return m.Called(ctx, params).Error(0)
}

func staticRecipient(addr string, err error) notifications.RecipientResolver {
	return notifications.RecipientResolverFunc(func(context.Context, uuid.UUID) (string, error) {
		return addr, err
	})
}

func TestEmailDeliverer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("renders and sends", func(t *testing.T) {
		t.Parallel()

		sender := &mockSender{}
		sender.On("SendEmail", ctx, mock.MatchedBy(func(p email.SendEmailParams) bool {
			return p.SendTo == "user@example.com" &&
				p.Subject == "Your subscription was renewed" &&
				p.Tag == "license-renewed" &&
				strings.Contains(p.BodyHTML, "professional") &&
				strings.Contains(p.BodyHTML, "March 1, 2025") &&
				strings.Contains(p.BodyHTML, "https://app.example.com/licenses")
		})).Return(nil).Once()

		d := notifications.NewEmailDeliverer(sender, staticRecipient("user@example.com", nil),
			notifications.WithActionURL("https://app.example.com/licenses"))
		require.NoError(t, d.Deliver(ctx, renewed()))
		sender.AssertExpectations(t)
	})

	t.Run("unknown recipient is skipped", func(t *testing.T) {
		t.Parallel()

		sender := &mockSender{}
		d := notifications.NewEmailDeliverer(sender, staticRecipient("", notifications.ErrNoRecipient))
		require.NoError(t, d.Deliver(ctx, renewed()))

		d = notifications.NewEmailDeliverer(sender, staticRecipient("", nil))
		require.NoError(t, d.Deliver(ctx, renewed()))
		sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	})

	t.Run("resolver failure", func(t *testing.T) {
		t.Parallel()

		d := notifications.NewEmailDeliverer(&mockSender{}, staticRecipient("", errors.New("accounts api down")))
		assert.ErrorContains(t, d.Deliver(ctx, renewed()), "accounts api down")
	})

	t.Run("send failure", func(t *testing.T) {
		t.Parallel()

		sender := &mockSender{}
		sender.On("SendEmail", ctx, mock.Anything).Return(email.ErrFailedToSendEmail)
		d := notifications.NewEmailDeliverer(sender, staticRecipient("user@example.com", nil))
		assert.ErrorIs(t, d.Deliver(ctx, renewed()), email.ErrFailedToSendEmail)
	})

	t.Run("requires collaborators", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { notifications.NewEmailDeliverer(nil, staticRecipient("", nil)) })
		assert.Panics(t, func() { notifications.NewEmailDeliverer(&mockSender{}, nil) })
	})
}

func TestWebhookDeliverer(t *testing.T) {
	t.Parallel()

	t.Run("posts a signed event", func(t *testing.T) {
		t.Parallel()

		const secret = "whsec_test"
		var got notifications.WebhookEvent
		var verifyErr error
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			sig, err := webhook.VerifyRequest(secret, body, r.Header, time.Minute)
			verifyErr = err
			if err == nil {
				_ = json.Unmarshal(body, &got)
				assert.Equal(t, got.ID, sig.ID)
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		t.Cleanup(srv.Close)

		n := renewed()
		d := notifications.NewWebhookDeliverer(webhook.NewSender(), srv.URL, secret)
		require.NoError(t, d.Deliver(context.Background(), n))

		require.NoError(t, verifyErr)
		assert.Equal(t, "license.renewed", got.Type)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, n.UserID, got.Data.UserID)
		assert.Equal(t, n.LicenseID, got.Data.LicenseID)
		assert.Equal(t, "professional", got.Data.Plan)
		assert.True(t, n.OccurredAt.Equal(got.OccurredAt))
	})

	t.Run("retries server errors", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		d := notifications.NewWebhookDeliverer(nil, srv.URL, "",
			webhook.WithBackoff(webhook.FixedBackoff{Interval: time.Millisecond}))
		require.NoError(t, d.Deliver(context.Background(), renewed()))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusGone)
		}))
		t.Cleanup(srv.Close)

		d := notifications.NewWebhookDeliverer(nil, srv.URL, "")
		assert.ErrorIs(t, d.Deliver(context.Background(), renewed()), webhook.ErrPermanentFailure)
	})
}
