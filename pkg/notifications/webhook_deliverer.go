package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/webhook"
)

// WebhookEvent is the JSON body posted to the outbound webhook.
type WebhookEvent struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Data       WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	UserID         uuid.UUID  `json:"user_id"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	LicenseID      *uuid.UUID `json:"license_id,omitempty"`
	Plan           string     `json:"plan,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// WebhookDeliverer posts signed JSON events to one URL with retries.
// The event id doubles as the delivery id header so receivers can deduplicate.
type WebhookDeliverer struct {
	sender *webhook.Sender
	url    string
	opts   []webhook.SendOption
}

// NewWebhookDeliverer creates the webhook channel. When secret is empty the
// requests are sent unsigned. Extra options are passed to every Send.
func NewWebhookDeliverer(sender *webhook.Sender, url, secret string, opts ...webhook.SendOption) *WebhookDeliverer {
	if sender == nil {
		sender = webhook.NewSender()
	}
	if secret != "" {
		opts = append([]webhook.SendOption{webhook.WithSignature(secret)}, opts...)
	}
	return &WebhookDeliverer{sender: sender, url: url, opts: opts}
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, n licensing.Notification) error {
	event := WebhookEvent{
		ID:         uuid.NewString(),
		Type:       "license." + string(n.Kind),
		OccurredAt: n.OccurredAt.UTC(),
		Data: WebhookEventData{
			UserID:         n.UserID,
			SubscriptionID: n.SubscriptionID,
			LicenseID:      n.LicenseID,
			Plan:           string(n.Plan),
			ExpiresAt:      n.ExpiresAt,
		},
	}
	opts := append([]webhook.SendOption{webhook.WithDeliveryID(event.ID)}, d.opts...)
	return d.sender.Send(ctx, d.url, event, opts...)
}
