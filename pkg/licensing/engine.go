package licensing

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/keygate/pkg/statemachine"
)

// EventKind is the lifecycle vocabulary every provider event is translated into.
type EventKind string

const (
	EventPaymentConfirmed    EventKind = "payment_confirmed"
	EventPaymentFailed       EventKind = "payment_failed"
	EventProviderCancelled   EventKind = "provider_cancelled"
	EventProviderExpired     EventKind = "provider_expired"
	EventUserCancelRequested EventKind = "user_cancel_requested"
)

// Valid reports whether k is a known lifecycle event.
func (k EventKind) Valid() bool {
	switch k {
	case EventPaymentConfirmed, EventPaymentFailed, EventProviderCancelled,
		EventProviderExpired, EventUserCancelRequested:
		return true
	}
	return false
}

// Decision is the outcome of applying one event to a subscription/license pair.
type Decision struct {
	Event   EventKind
	From    Status
	To      Status
	Changes ChangeSet
	Notify  NotificationKind
	// Skipped explains why a recognised event changed nothing.
	Skipped string
}

// Noop reports whether the decision neither writes nor notifies.
func (d Decision) Noop() bool {
	return d.Changes.Empty() && d.Notify == ""
}

type transitionInput struct {
	license *License
}

// Engine holds the subscription transition table and computes decisions.
// It performs no I/O; callers persist Decision.Changes.
type Engine struct {
	table *statemachine.Table[Status, EventKind, *transitionInput]
}

// NewEngine builds the transition table.
func NewEngine() *Engine {
	hasLicense := func(_ context.Context, _ Status, _ EventKind, in *transitionInput) bool {
		return in.license != nil
	}

	table := statemachine.New[Status, EventKind, *transitionInput]().
		Add(StatusActive, StatusActive, EventPaymentConfirmed, hasLicense).
		Add(StatusActive, StatusActive, EventPaymentFailed).
		Add(StatusCancelled, StatusCancelled, EventPaymentFailed).
		Add(StatusExpired, StatusExpired, EventPaymentFailed).
		Add(StatusActive, StatusCancelled, EventProviderCancelled).
		Add(StatusActive, StatusExpired, EventProviderExpired).
		Add(StatusCancelled, StatusExpired, EventProviderExpired).
		Add(StatusActive, StatusCancelled, EventUserCancelRequested)

	return &Engine{table: table}
}

// Decide computes the next state of sub (and its linked license, if any) for
// event at now. Inputs are never mutated.
//
// Provider events whose guard does not hold produce a skipped decision rather
// than an error, which keeps redelivery of an already-applied event harmless.
// A user cancellation on a non-active subscription is a policy rejection.
func (e *Engine) Decide(ctx context.Context, sub *Subscription, lic *License, event EventKind, now time.Time) (Decision, error) {
	if sub == nil {
		return Decision{}, ErrSubscriptionNotFound
	}
	if !event.Valid() {
		return Decision{}, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, event)
	}
	if !sub.Cadence.Valid() {
		return Decision{}, fmt.Errorf("%w: subscription %s has cadence %q", ErrInvalidCadence, sub.ID, sub.Cadence)
	}

	d := Decision{Event: event, From: sub.Status, To: sub.Status}

	to, err := e.table.Next(ctx, sub.Status, event, &transitionInput{license: lic})
	if err != nil {
		switch {
		case event == EventUserCancelRequested:
			return d, ErrCancelNotAllowed
		case statemachine.IsRejected(err):
			return d, fmt.Errorf("%w: subscription %s has no license", ErrLicenseNotFound, sub.ID)
		}
		d.Skipped = fmt.Sprintf("subscription is already %s", sub.Status)
		return d, nil
	}

	d.To = to
	next := sub.Clone()
	next.Status = to
	next.UpdatedAt = now

	switch event {
	case EventPaymentConfirmed:
		renewed := lic.Clone()
		renewed.ExpiresAt = sub.Cadence.Advance(lic.ExpiresAt)
		renewed.Active = true
		renewed.UpdatedAt = now
		if !renewed.ExpiresAt.Before(next.StartedAt) {
			end := renewed.ExpiresAt
			next.EndsAt = &end
		}
		d.Changes = ChangeSet{Subscription: next, License: renewed}
		d.Notify = NotifyRenewed

	case EventPaymentFailed:
		d.Notify = NotifyPaymentFailed

	case EventProviderCancelled, EventUserCancelRequested:
		cancelledAt := now
		next.CancelledAt = &cancelledAt
		d.Changes = ChangeSet{Subscription: next}
		d.Notify = NotifyCancelled

	case EventProviderExpired:
		if next.EndsAt == nil || next.EndsAt.After(now) {
			end := now
			if end.Before(next.StartedAt) {
				end = next.StartedAt
			}
			next.EndsAt = &end
		}
		d.Changes = ChangeSet{Subscription: next}
		if lic != nil && lic.Active {
			deactivated := lic.Clone()
			deactivated.Active = false
			deactivated.UpdatedAt = now
			d.Changes.License = deactivated
		}
		d.Notify = NotifyExpired
	}

	return d, nil
}
