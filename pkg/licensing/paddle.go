package licensing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider for Paddle Billing.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle provider. An empty webhook secret
// disables signature verification; the ingress decides whether that is allowed.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	p := &PaddleProvider{client: client}
	if config.WebhookSecret != "" {
		p.verifier = paddle.NewWebhookVerifier(config.WebhookSecret)
	}
	return p, nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

func (p *PaddleProvider) SigningEnabled() bool { return p.verifier != nil }

// VerifyWebhook checks the Paddle-Signature header. The SDK verifier works on
// an *http.Request, so one is rebuilt from the payload.
func (p *PaddleProvider) VerifyWebhook(ctx context.Context, payload []byte, header http.Header) error {
	if p.verifier == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", header.Get("Paddle-Signature"))

	valid, err := p.verifier.Verify(req)
	if err != nil || !valid {
		return ErrSignatureInvalid
	}
	return nil
}

type paddleNotification struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		ID             string `json:"id"`
		SubscriptionID string `json:"subscription_id"`
		Origin         string `json:"origin"`
		Status         string `json:"status"`

		ScheduledChange *struct {
			Action string `json:"action"`
		} `json:"scheduled_change"`
	} `json:"data"`
}

// ParseWebhook maps Paddle notifications onto lifecycle events:
//
//	transaction.completed (recurring)         -> payment confirmed
//	transaction.payment_failed, .past_due     -> payment failed
//	subscription.updated with scheduled cancel -> provider cancelled
//	subscription.canceled                      -> provider expired
//
// subscription.canceled is sent when the subscription actually ends, which is
// why it expires the local mirror rather than cancelling it.
func (p *PaddleProvider) ParseWebhook(_ context.Context, payload []byte) (*ProviderEvent, error) {
	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if n.EventID == "" || n.EventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}

	event := &ProviderEvent{
		ID:         n.EventID,
		Type:       n.EventType,
		OccurredAt: n.OccurredAt,
	}

	switch n.EventType {
	case "transaction.completed":
		if n.Data.SubscriptionID != "" && n.Data.Origin == "subscription_recurring" {
			event.Kind = EventPaymentConfirmed
			event.ExternalSubscriptionID = n.Data.SubscriptionID
		}
	case "transaction.payment_failed":
		if n.Data.SubscriptionID != "" {
			event.Kind = EventPaymentFailed
			event.ExternalSubscriptionID = n.Data.SubscriptionID
		}
	case "subscription.past_due":
		event.Kind = EventPaymentFailed
		event.ExternalSubscriptionID = n.Data.ID
	case "subscription.updated":
		if n.Data.ScheduledChange != nil && n.Data.ScheduledChange.Action == "cancel" {
			event.Kind = EventProviderCancelled
			event.ExternalSubscriptionID = n.Data.ID
		}
	case "subscription.canceled":
		event.Kind = EventProviderExpired
		event.ExternalSubscriptionID = n.Data.ID
	}

	if event.Kind != "" && event.ExternalSubscriptionID == "" {
		return nil, fmt.Errorf("%w: %s without subscription id", ErrMalformedEvent, n.EventType)
	}
	return event, nil
}

func (p *PaddleProvider) GetSubscriptionDetails(ctx context.Context, externalID string) (*SubscriptionDetails, error) {
	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: externalID,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderFailed, fmt.Errorf("paddle get subscription %s: %w", externalID, err))
	}

	details := &SubscriptionDetails{
		ExternalID: sub.ID,
		Interval:   string(sub.BillingCycle.Interval),
		Status:     string(sub.Status),
	}
	if len(sub.Items) > 0 {
		details.PriceID = sub.Items[0].Price.ID
	}
	return details, nil
}

// CancelSubscription schedules cancellation at the next billing period so the
// paid time already granted stays usable.
func (p *PaddleProvider) CancelSubscription(ctx context.Context, externalID string) error {
	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: externalID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromNextBillingPeriod),
	})
	if err != nil {
		return errors.Join(ErrProviderFailed, fmt.Errorf("paddle cancel subscription %s: %w", externalID, err))
	}
	return nil
}
