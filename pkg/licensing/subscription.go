package licensing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subscription mirrors a recurring billing agreement held by the payment provider.
type Subscription struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ExternalID  string // provider subscription id, unique and immutable
	Plan        Plan
	Cadence     Cadence
	Status      Status
	StartedAt   time.Time
	EndsAt      *time.Time
	CancelledAt *time.Time
	Version     int64 // optimistic concurrency token, bumped by the store on every write
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActiveAt reports whether the subscription is active and its paid period
// has not ended at now.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	return s.EndsAt == nil || s.EndsAt.After(now)
}

// OwnedBy reports whether userID owns the subscription.
func (s *Subscription) OwnedBy(userID uuid.UUID) bool {
	return s.UserID == userID
}

// Validate checks the record invariants enforced before every write.
func (s *Subscription) Validate() error {
	switch {
	case s.ID == uuid.Nil:
		return fmt.Errorf("%w: subscription id is empty", ErrInvalidRecord)
	case s.UserID == uuid.Nil:
		return fmt.Errorf("%w: subscription user id is empty", ErrInvalidRecord)
	case s.ExternalID == "":
		return fmt.Errorf("%w: subscription external id is empty", ErrInvalidRecord)
	case !s.Plan.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidPlan, s.Plan)
	case !s.Cadence.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidCadence, s.Cadence)
	case !s.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, s.Status)
	case s.EndsAt != nil && s.EndsAt.Before(s.StartedAt):
		return fmt.Errorf("%w: subscription ends before it starts", ErrInvalidRecord)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.EndsAt = cloneTime(s.EndsAt)
	c.CancelledAt = cloneTime(s.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
