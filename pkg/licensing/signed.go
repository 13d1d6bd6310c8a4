package licensing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrymomot/keygate/pkg/webhook"
)

// SignedConfig configures the generic HMAC-signed provider.
type SignedConfig struct {
	WebhookSecret string        `env:"SIGNED_WEBHOOK_SECRET"`
	MaxAge        time.Duration `env:"SIGNED_WEBHOOK_MAX_AGE" envDefault:"5m"`
	// CancelURL receives cancellation requests. Empty means cancellations are
	// only mirrored locally.
	CancelURL    string `env:"SIGNED_CANCEL_URL"`
	CancelSecret string `env:"SIGNED_CANCEL_SECRET"`
}

// Event types accepted by SignedProvider.
const (
	SignedPaymentConfirmed      = "payment.confirmed"
	SignedPaymentFailed         = "payment.failed"
	SignedSubscriptionCancelled = "subscription.cancelled"
	SignedSubscriptionExpired   = "subscription.expired"
)

// SignedEvent is the payload accepted by SignedProvider.
type SignedEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	SubscriptionID string    `json:"subscription_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// SignedProvider accepts events from any billing backend able to sign JSON
// payloads with the webhook package scheme. It has no subscription API.
type SignedProvider struct {
	config SignedConfig
	sender *webhook.Sender
}

// NewSignedProvider creates a signed provider. A nil sender gets a default one.
func NewSignedProvider(config SignedConfig, sender *webhook.Sender) *SignedProvider {
	if sender == nil {
		sender = webhook.NewSender()
	}
	return &SignedProvider{config: config, sender: sender}
}

func (p *SignedProvider) Name() string { return "signed" }

func (p *SignedProvider) SigningEnabled() bool { return p.config.WebhookSecret != "" }

func (p *SignedProvider) VerifyWebhook(_ context.Context, payload []byte, header http.Header) error {
	if p.config.WebhookSecret == "" {
		return nil
	}
	if _, err := webhook.VerifyRequest(p.config.WebhookSecret, payload, header, p.config.MaxAge); err != nil {
		return errors.Join(ErrSignatureInvalid, err)
	}
	return nil
}

func (p *SignedProvider) ParseWebhook(_ context.Context, payload []byte) (*ProviderEvent, error) {
	var e SignedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}

	event := &ProviderEvent{
		ID:                     e.ID,
		Type:                   e.Type,
		ExternalSubscriptionID: e.SubscriptionID,
		OccurredAt:             e.OccurredAt,
	}
	switch e.Type {
	case SignedPaymentConfirmed:
		event.Kind = EventPaymentConfirmed
	case SignedPaymentFailed:
		event.Kind = EventPaymentFailed
	case SignedSubscriptionCancelled:
		event.Kind = EventProviderCancelled
	case SignedSubscriptionExpired:
		event.Kind = EventProviderExpired
	}

	if event.Kind != "" && event.ExternalSubscriptionID == "" {
		return nil, fmt.Errorf("%w: %s without subscription_id", ErrMalformedEvent, e.Type)
	}
	return event, nil
}

func (p *SignedProvider) GetSubscriptionDetails(context.Context, string) (*SubscriptionDetails, error) {
	return nil, ErrLookupUnsupported
}

type cancelRequest struct {
	SubscriptionID string    `json:"subscription_id"`
	RequestedAt    time.Time `json:"requested_at"`
}

func (p *SignedProvider) CancelSubscription(ctx context.Context, externalID string) error {
	if p.config.CancelURL == "" {
		return nil
	}

	err := p.sender.Send(ctx, p.config.CancelURL,
		cancelRequest{SubscriptionID: externalID, RequestedAt: time.Now().UTC()},
		webhook.WithSignature(p.config.CancelSecret),
		webhook.WithMaxRetries(2),
	)
	if err != nil {
		return errors.Join(ErrProviderFailed, fmt.Errorf("cancel subscription %s: %w", externalID, err))
	}
	return nil
}
