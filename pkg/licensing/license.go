package licensing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// License is an issued key granting access to the desktop application.
type License struct {
	ID             uuid.UUID
	Key            string
	UserID         uuid.UUID
	SubscriptionID *uuid.UUID // nil for trials
	Active         bool
	ExpiresAt      time.Time
	Seats          int
	TrialNumber    int   // 0 for paid licenses, 1.. for trials; unique per user
	Version        int64 // optimistic concurrency token, bumped by the store on every write
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsTrial reports whether the license has no linked subscription.
func (l *License) IsTrial() bool {
	return l.SubscriptionID == nil
}

// OwnedBy reports whether userID owns the license.
func (l *License) OwnedBy(userID uuid.UUID) bool {
	return l.UserID == userID
}

// EffectivelyActive is the single place where the stored flag and the expiry
// are combined. The flag alone can be stale, so nothing else should read it
// as "grants access".
func EffectivelyActive(l *License, now time.Time) bool {
	if l == nil {
		return false
	}
	return l.Active && !now.After(l.ExpiresAt)
}

// EffectivelyActive is a convenience wrapper around the package function.
func (l *License) EffectivelyActive(now time.Time) bool {
	return EffectivelyActive(l, now)
}

// Validate checks the record invariants enforced before every write.
func (l *License) Validate() error {
	switch {
	case l.ID == uuid.Nil:
		return fmt.Errorf("%w: license id is empty", ErrInvalidRecord)
	case l.UserID == uuid.Nil:
		return fmt.Errorf("%w: license user id is empty", ErrInvalidRecord)
	case l.Key == "":
		return fmt.Errorf("%w: license key is empty", ErrInvalidRecord)
	case l.ExpiresAt.IsZero():
		return fmt.Errorf("%w: license expiry is empty", ErrInvalidRecord)
	case l.Seats < 1:
		return fmt.Errorf("%w: license must have at least one seat", ErrInvalidRecord)
	case l.SubscriptionID != nil && *l.SubscriptionID == uuid.Nil:
		return fmt.Errorf("%w: linked subscription id is empty", ErrInvalidRecord)
	case l.SubscriptionID != nil && l.TrialNumber != 0:
		return fmt.Errorf("%w: paid license cannot carry a trial number", ErrInvalidRecord)
	case l.SubscriptionID == nil && l.TrialNumber < 1:
		return fmt.Errorf("%w: trial license needs a trial number", ErrInvalidRecord)
	}
	return nil
}

// Clone returns a deep copy.
func (l *License) Clone() *License {
	if l == nil {
		return nil
	}
	c := *l
	if l.SubscriptionID != nil {
		id := *l.SubscriptionID
		c.SubscriptionID = &id
	}
	return &c
}

// CheckReactivation applies the reactivation guard. sub is the linked
// subscription and must be nil for trials.
func CheckReactivation(l *License, sub *Subscription, now time.Time) error {
	if l.IsTrial() {
		if now.After(l.ExpiresAt) {
			return ErrTrialExpired
		}
		return nil
	}
	if sub == nil || !sub.IsActiveAt(now) {
		return ErrSubscriptionNotActive
	}
	return nil
}
