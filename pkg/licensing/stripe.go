package licensing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// StripeProvider implements Provider for Stripe Billing.
type StripeProvider struct {
	subscriptions *subscription.Client
	webhookSecret string
}

// NewStripeProvider creates a Stripe provider bound to its own API key rather
// than the package-global stripe.Key.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &StripeProvider{
		subscriptions: &subscription.Client{
			B:   stripelib.GetBackend(stripelib.APIBackend),
			Key: config.SecretKey,
		},
		webhookSecret: config.WebhookSecret,
	}, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) SigningEnabled() bool { return p.webhookSecret != "" }

func (p *StripeProvider) VerifyWebhook(_ context.Context, payload []byte, header http.Header) error {
	if p.webhookSecret == "" {
		return nil
	}
	sig := header.Get("Stripe-Signature")
	if sig == "" {
		return ErrSignatureInvalid
	}
	if err := webhook.ValidatePayload(payload, sig, p.webhookSecret); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

type stripeInvoice struct {
	Subscription  string `json:"subscription"`
	BillingReason string `json:"billing_reason"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// subscriptionID handles both the legacy top-level field and the newer
// parent.subscription_details location.
func (i stripeInvoice) subscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

type stripeSubscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

// ParseWebhook maps Stripe events onto lifecycle events:
//
//	invoice.paid (subscription_cycle)                   -> payment confirmed
//	invoice.payment_failed                              -> payment failed
//	customer.subscription.updated, cancel_at_period_end -> provider cancelled
//	customer.subscription.deleted                       -> provider expired
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte) (*ProviderEvent, error) {
	var evt stripelib.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if evt.ID == "" || evt.Type == "" || evt.Data == nil {
		return nil, fmt.Errorf("%w: missing event id, type or data", ErrMalformedEvent)
	}

	event := &ProviderEvent{
		ID:         evt.ID,
		Type:       string(evt.Type),
		OccurredAt: time.Unix(evt.Created, 0).UTC(),
	}

	switch evt.Type {
	case "invoice.paid", "invoice.payment_failed":
		var inv stripeInvoice
		if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		subID := inv.subscriptionID()
		if subID == "" {
			break
		}
		if evt.Type == "invoice.payment_failed" {
			event.Kind = EventPaymentFailed
		} else if inv.BillingReason == "subscription_cycle" {
			event.Kind = EventPaymentConfirmed
		}
		event.ExternalSubscriptionID = subID

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeSubscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		if sub.ID == "" {
			return nil, fmt.Errorf("%w: %s without subscription id", ErrMalformedEvent, evt.Type)
		}
		event.ExternalSubscriptionID = sub.ID
		if evt.Type == "customer.subscription.deleted" {
			event.Kind = EventProviderExpired
		} else if sub.CancelAtPeriodEnd {
			event.Kind = EventProviderCancelled
		}
	}

	return event, nil
}

func (p *StripeProvider) GetSubscriptionDetails(ctx context.Context, externalID string) (*SubscriptionDetails, error) {
	params := &stripelib.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.subscriptions.Get(externalID, params)
	if err != nil {
		return nil, errors.Join(ErrProviderFailed, fmt.Errorf("stripe get subscription %s: %w", externalID, err))
	}

	details := &SubscriptionDetails{
		ExternalID: sub.ID,
		Status:     string(sub.Status),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		details.PriceID = price.ID
		if price.Recurring != nil {
			details.Interval = string(price.Recurring.Interval)
		}
	}
	return details, nil
}

// CancelSubscription sets cancel_at_period_end; Stripe later sends
// customer.subscription.deleted when the period runs out.
func (p *StripeProvider) CancelSubscription(ctx context.Context, externalID string) error {
	params := &stripelib.SubscriptionParams{
		CancelAtPeriodEnd: stripelib.Bool(true),
	}
	params.Context = ctx

	if _, err := p.subscriptions.Update(externalID, params); err != nil {
		return errors.Join(ErrProviderFailed, fmt.Errorf("stripe cancel subscription %s: %w", externalID, err))
	}
	return nil
}
