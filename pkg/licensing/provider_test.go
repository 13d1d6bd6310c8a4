package licensing_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/webhook"
)

func TestCadenceFromInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want licensing.Cadence
		ok   bool
	}{
		{"month", licensing.CadenceMonthly, true},
		{"monthly", licensing.CadenceMonthly, true},
		{"year", licensing.CadenceAnnual, true},
		{"annual", licensing.CadenceAnnual, true},
		{"week", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := licensing.CadenceFromInterval(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestSignedProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	p := licensing.NewSignedProvider(licensing.SignedConfig{}, nil)

	tests := []struct {
		eventType string
		want      licensing.EventKind
	}{
		{licensing.SignedPaymentConfirmed, licensing.EventPaymentConfirmed},
		{licensing.SignedPaymentFailed, licensing.EventPaymentFailed},
		{licensing.SignedSubscriptionCancelled, licensing.EventProviderCancelled},
		{licensing.SignedSubscriptionExpired, licensing.EventProviderExpired},
		{"customer.updated", ""},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			t.Parallel()
			payload := fmt.Sprintf(`{"id":"evt_1","type":%q,"subscription_id":"sub_1","occurred_at":"2025-03-01T10:00:00Z"}`, tt.eventType)

			e, err := p.ParseWebhook(context.Background(), []byte(payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Kind)
			assert.Equal(t, "evt_1", e.ID)
			assert.Equal(t, time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC), e.OccurredAt)
		})
	}
}

func TestSignedProvider_Lookup(t *testing.T) {
	t.Parallel()

	p := licensing.NewSignedProvider(licensing.SignedConfig{}, nil)
	_, err := p.GetSubscriptionDetails(context.Background(), "sub_1")
	assert.ErrorIs(t, err, licensing.ErrLookupUnsupported)

	// Without a cancel endpoint the cancellation is only mirrored locally.
	assert.NoError(t, p.CancelSubscription(context.Background(), "sub_1"))
}

func TestSignedProvider_CancelSubscription(t *testing.T) {
	t.Parallel()

	const secret = "cancel-secret"
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if _, err := webhook.VerifyRequest(secret, body, r.Header, time.Minute); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		received <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := licensing.NewSignedProvider(licensing.SignedConfig{CancelURL: srv.URL, CancelSecret: secret}, nil)
	require.NoError(t, p.CancelSubscription(context.Background(), "sub_42"))

	select {
	case body := <-received:
		assert.Contains(t, string(body), `"subscription_id":"sub_42"`)
	default:
		t.Fatal("cancel request not delivered")
	}

	bad := licensing.NewSignedProvider(licensing.SignedConfig{CancelURL: srv.URL, CancelSecret: "other"}, nil)
	err := bad.CancelSubscription(context.Background(), "sub_42")
	assert.ErrorIs(t, err, licensing.ErrProviderFailed)
}

func stripeSignature(secret string, payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeProvider_VerifyWebhook(t *testing.T) {
	t.Parallel()

	p, err := licensing.NewStripeProvider(licensing.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: "whsec_abc"})
	require.NoError(t, err)
	assert.True(t, p.SigningEnabled())

	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)

	h := http.Header{}
	h.Set("Stripe-Signature", stripeSignature("whsec_abc", payload, time.Now()))
	assert.NoError(t, p.VerifyWebhook(context.Background(), payload, h))

	h.Set("Stripe-Signature", stripeSignature("whsec_other", payload, time.Now()))
	assert.ErrorIs(t, p.VerifyWebhook(context.Background(), payload, h), licensing.ErrSignatureInvalid)

	h.Set("Stripe-Signature", stripeSignature("whsec_abc", payload, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, p.VerifyWebhook(context.Background(), payload, h), licensing.ErrSignatureInvalid)

	assert.ErrorIs(t, p.VerifyWebhook(context.Background(), payload, http.Header{}), licensing.ErrSignatureInvalid)
}

func TestStripeProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	p, err := licensing.NewStripeProvider(licensing.StripeConfig{SecretKey: "sk_test_123"})
	require.NoError(t, err)
	assert.False(t, p.SigningEnabled())

	tests := []struct {
		name    string
		payload string
		kind    licensing.EventKind
		subID   string
	}{
		{
			name:    "renewal invoice",
			payload: `{"id":"evt_1","type":"invoice.paid","created":1740823200,"data":{"object":{"object":"invoice","subscription":"sub_1","billing_reason":"subscription_cycle"}}}`,
			kind:    licensing.EventPaymentConfirmed,
			subID:   "sub_1",
		},
		{
			name:    "renewal invoice with parent details",
			payload: `{"id":"evt_2","type":"invoice.paid","created":1740823200,"data":{"object":{"object":"invoice","billing_reason":"subscription_cycle","parent":{"subscription_details":{"subscription":"sub_2"}}}}}`,
			kind:    licensing.EventPaymentConfirmed,
			subID:   "sub_2",
		},
		{
			name:    "first invoice is not a renewal",
			payload: `{"id":"evt_3","type":"invoice.paid","created":1740823200,"data":{"object":{"object":"invoice","subscription":"sub_1","billing_reason":"subscription_create"}}}`,
			kind:    "",
			subID:   "sub_1",
		},
		{
			name:    "payment failed",
			payload: `{"id":"evt_4","type":"invoice.payment_failed","created":1740823200,"data":{"object":{"object":"invoice","subscription":"sub_1","billing_reason":"subscription_cycle"}}}`,
			kind:    licensing.EventPaymentFailed,
			subID:   "sub_1",
		},
		{
			name:    "cancel at period end",
			payload: `{"id":"evt_5","type":"customer.subscription.updated","created":1740823200,"data":{"object":{"object":"subscription","id":"sub_1","status":"active","cancel_at_period_end":true}}}`,
			kind:    licensing.EventProviderCancelled,
			subID:   "sub_1",
		},
		{
			name:    "plain update",
			payload: `{"id":"evt_6","type":"customer.subscription.updated","created":1740823200,"data":{"object":{"object":"subscription","id":"sub_1","status":"active"}}}`,
			kind:    "",
			subID:   "sub_1",
		},
		{
			name:    "deleted",
			payload: `{"id":"evt_7","type":"customer.subscription.deleted","created":1740823200,"data":{"object":{"object":"subscription","id":"sub_1","status":"canceled"}}}`,
			kind:    licensing.EventProviderExpired,
			subID:   "sub_1",
		},
		{
			name:    "unrelated",
			payload: `{"id":"evt_8","type":"customer.created","created":1740823200,"data":{"object":{"object":"customer","id":"cus_1"}}}`,
			kind:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, err := p.ParseWebhook(context.Background(), []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.subID, e.ExternalSubscriptionID)
			assert.Equal(t, time.Unix(1740823200, 0).UTC(), e.OccurredAt)
		})
	}

	_, err = p.ParseWebhook(context.Background(), []byte(`{"type":"invoice.paid"}`))
	assert.ErrorIs(t, err, licensing.ErrMalformedEvent)
}

func TestNewStripeProvider_RequiresKey(t *testing.T) {
	t.Parallel()

	_, err := licensing.NewStripeProvider(licensing.StripeConfig{})
	assert.ErrorIs(t, err, licensing.ErrMissingAPIKey)
}

func TestPaddleProvider(t *testing.T) {
	t.Parallel()

	_, err := licensing.NewPaddleProvider(licensing.PaddleConfig{})
	assert.ErrorIs(t, err, licensing.ErrMissingAPIKey)

	_, err = licensing.NewPaddleProvider(licensing.PaddleConfig{APIKey: "key", Environment: "staging"})
	assert.ErrorIs(t, err, licensing.ErrInvalidEnvironment)

	unsigned, err := licensing.NewPaddleProvider(licensing.PaddleConfig{APIKey: "key", Environment: "sandbox"})
	require.NoError(t, err)
	assert.False(t, unsigned.SigningEnabled())
	assert.NoError(t, unsigned.VerifyWebhook(context.Background(), []byte(`{}`), http.Header{}))

	signed, err := licensing.NewPaddleProvider(licensing.PaddleConfig{APIKey: "key", WebhookSecret: "pdl_ntfset_secret"})
	require.NoError(t, err)
	assert.True(t, signed.SigningEnabled())

	h := http.Header{}
	h.Set("Paddle-Signature", "ts=1700000000;h1=deadbeef")
	assert.ErrorIs(t, signed.VerifyWebhook(context.Background(), []byte(`{"event_id":"evt_1"}`), h), licensing.ErrSignatureInvalid)
	assert.ErrorIs(t, signed.VerifyWebhook(context.Background(), []byte(`{"event_id":"evt_1"}`), http.Header{}), licensing.ErrSignatureInvalid)
}

func TestPaddleProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	p, err := licensing.NewPaddleProvider(licensing.PaddleConfig{APIKey: "key"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
		kind    licensing.EventKind
		subID   string
	}{
		{
			name:    "recurring transaction",
			payload: `{"event_id":"evt_1","event_type":"transaction.completed","occurred_at":"2025-03-01T10:00:00Z","data":{"id":"txn_1","subscription_id":"sub_1","origin":"subscription_recurring"}}`,
			kind:    licensing.EventPaymentConfirmed,
			subID:   "sub_1",
		},
		{
			name:    "checkout transaction",
			payload: `{"event_id":"evt_2","event_type":"transaction.completed","occurred_at":"2025-03-01T10:00:00Z","data":{"id":"txn_1","subscription_id":"sub_1","origin":"web"}}`,
		},
		{
			name:    "payment failed",
			payload: `{"event_id":"evt_3","event_type":"transaction.payment_failed","occurred_at":"2025-03-01T10:00:00Z","data":{"id":"txn_1","subscription_id":"sub_1"}}`,
			kind:    licensing.EventPaymentFailed,
			subID:   "sub_1",
		},
		{
			name:    "past due",
			payload: `{"event_id":"evt_4","event_type":"subscription.past_due","occurred_at":"2025-03-01T10:00:00Z","data":{"id":"sub_1","status":"past_due"}}`,
			kind:    licensing.EventPaymentFailed,
			subID:   "sub_1",
		},
		{
			name:    "scheduled cancel",
			payload: `{"event_id":"evt_5","event_type":"subscription.updated","occurred_at":"2025-03-01T10:00:00Z","data":{"id":"sub_1","status":"active","scheduled_change":{"action":"cancel"}}}`,
			kind:    licensing.EventProviderCancelled,
			subID:   "sub_1",
		},
		{
			name:    "canceled",
			payload: `{"event_id":"evt_6","event_type":"subscription.canceled","occurred_at":"2025-03-01T10:00:00Z","data":{"id":"sub_1","status":"canceled"}}`,
			kind:    licensing.EventProviderExpired,
			subID:   "sub_1",
		},
		{
			name:    "unrelated",
			payload: `{"event_id":"evt_7","event_type":"customer.created","occurred_at":"2025-03-01T10:00:00Z","data":{"id":"ctm_1"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, err := p.ParseWebhook(context.Background(), []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.subID, e.ExternalSubscriptionID)
		})
	}

	_, err = p.ParseWebhook(context.Background(), []byte(`{"event_type":"subscription.canceled","data":{"id":"sub_1"}}`))
	assert.ErrorIs(t, err, licensing.ErrMalformedEvent)
	_, err = p.ParseWebhook(context.Background(), []byte(`{"event_id":"evt_8","event_type":"subscription.canceled","data":{}}`))
	assert.ErrorIs(t, err, licensing.ErrMalformedEvent)
}
