package notifications

import (
	"time"

	"github.com/dmitrymomot/keygate/pkg/licensing"
)

// Message is the human-facing text for a notification.
type Message struct {
	Subject string
	Heading string
	Body    string
	Tag     string
}

// Compose returns the text shown to the user for n.
func Compose(n licensing.Notification) Message {
	tag := "license-" + string(n.Kind)
	switch n.Kind {
	case licensing.NotifyRenewed:
		return Message{
			Subject: "Your subscription was renewed",
			Heading: "Thanks for renewing",
			Body:    "Your payment went through and your license has been extended.",
			Tag:     tag,
		}
	case licensing.NotifyCancelled:
		return Message{
			Subject: "Your subscription was cancelled",
			Heading: "Subscription cancelled",
			Body:    "Your subscription will not renew. The license keeps working until the end of the paid period.",
			Tag:     tag,
		}
	case licensing.NotifyExpired:
		return Message{
			Subject: "Your license has expired",
			Heading: "License expired",
			Body:    "Your subscription has ended and the license is no longer active. Subscribe again to keep using the product.",
			Tag:     tag,
		}
	case licensing.NotifyPaymentFailed:
		return Message{
			Subject: "We could not process your payment",
			Heading: "Payment failed",
			Body:    "The latest payment for your subscription failed. Please update your payment method to avoid interruption.",
			Tag:     tag,
		}
	case licensing.NotifyTrialIssued:
		return Message{
			Subject: "Your trial has started",
			Heading: "Welcome to your trial",
			Body:    "Your trial license is ready. You can find the key in your account.",
			Tag:     tag,
		}
	}
	return Message{
		Subject: "Your license was updated",
		Heading: "License update",
		Body:    "There is a change to your license.",
		Tag:     tag,
	}
}

// expiryText formats the expiry for display, or "" when unknown.
func expiryText(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("January 2, 2006")
}
