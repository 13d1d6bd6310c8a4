package licensing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies the outcome being reported.
type NotificationKind string

const (
	NotifyRenewed       NotificationKind = "renewed"
	NotifyCancelled     NotificationKind = "cancelled"
	NotifyExpired       NotificationKind = "expired"
	NotifyPaymentFailed NotificationKind = "payment_failed"
	NotifyTrialIssued   NotificationKind = "trial_issued"
)

// Notification describes a committed lifecycle outcome.
type Notification struct {
	Kind           NotificationKind
	UserID         uuid.UUID
	SubscriptionID *uuid.UUID
	LicenseID      *uuid.UUID
	Plan           Plan
	ExpiresAt      *time.Time
	OccurredAt     time.Time
}

// Notifier delivers outcome notifications. It is called after the state change
// has been committed; its errors are logged and never undo the change.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error { return nil }
