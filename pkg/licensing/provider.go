package licensing

import (
	"context"
	"net/http"
	"time"
)

// Provider is the payment provider boundary. Implementations translate the
// provider's webhook payloads into lifecycle events and expose the two API
// calls the service needs.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// SigningEnabled reports whether a webhook secret is configured.
	// VerifyWebhook accepts every payload when it returns false.
	SigningEnabled() bool

	// VerifyWebhook checks the payload signature carried in header.
	// Returns ErrSignatureInvalid on mismatch.
	VerifyWebhook(ctx context.Context, payload []byte, header http.Header) error

	// ParseWebhook decodes a verified payload. Events the engine has no use
	// for come back with an empty Kind rather than an error.
	ParseWebhook(ctx context.Context, payload []byte) (*ProviderEvent, error)

	// GetSubscriptionDetails returns ErrLookupUnsupported when the provider
	// exposes no subscription API.
	GetSubscriptionDetails(ctx context.Context, externalID string) (*SubscriptionDetails, error)

	// CancelSubscription asks the provider to stop renewing the subscription
	// at the end of the paid period.
	CancelSubscription(ctx context.Context, externalID string) error
}

// ProviderEvent is a decoded provider notification.
type ProviderEvent struct {
	ID                     string
	Type                   string    // provider event name, e.g. "invoice.paid"
	Kind                   EventKind // empty when the event is not relevant
	ExternalSubscriptionID string
	OccurredAt             time.Time
}

// Recognized reports whether the event maps onto a lifecycle event.
func (e *ProviderEvent) Recognized() bool {
	return e != nil && e.Kind != ""
}

// SubscriptionDetails is the provider's view of a subscription.
type SubscriptionDetails struct {
	ExternalID string
	PriceID    string
	Interval   string // provider billing interval, e.g. "month" or "year"
	Status     string
}

// CadenceFromInterval maps a provider billing interval onto a Cadence.
func CadenceFromInterval(interval string) (Cadence, bool) {
	switch interval {
	case "month", "monthly":
		return CadenceMonthly, true
	case "year", "annual", "yearly":
		return CadenceAnnual, true
	}
	return "", false
}
