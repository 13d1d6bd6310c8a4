package licensing

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTrialDuration is how long a trial license stays valid.
	DefaultTrialDuration = 30 * 24 * time.Hour
	// DefaultTrialSeats is the seat count of a trial license.
	DefaultTrialSeats = 1
)

// TrialPolicy decides trial eligibility.
type TrialPolicy struct {
	Duration time.Duration
	Seats    int
	// Bypass lists users allowed to take repeated trials. It overrides the
	// one-trial-per-account rule only; an active license still blocks a trial.
	Bypass map[uuid.UUID]struct{}
}

// DefaultTrialPolicy returns the policy used when nothing is configured.
func DefaultTrialPolicy() TrialPolicy {
	return TrialPolicy{Duration: DefaultTrialDuration, Seats: DefaultTrialSeats}
}

// Check evaluates the eligibility rules in order against every license the
// user holds and returns the trial number the new license must carry.
// A license whose flag is still set but whose expiry has passed does not
// count as active, so an expired trial is reported as already used.
func (p TrialPolicy) Check(userID uuid.UUID, held []*License, now time.Time) (int, error) {
	for _, l := range held {
		if EffectivelyActive(l, now) {
			return 0, ErrAlreadyHasActiveLicense
		}
	}

	last := 0
	for _, l := range held {
		if l.IsTrial() && l.TrialNumber > last {
			last = l.TrialNumber
		}
	}
	if last > 0 {
		if _, ok := p.Bypass[userID]; !ok {
			return 0, ErrTrialAlreadyUsed
		}
	}
	return last + 1, nil
}

// ExpiryFrom returns the trial expiry for a license issued at now.
func (p TrialPolicy) ExpiryFrom(now time.Time) time.Time {
	d := p.Duration
	if d <= 0 {
		d = DefaultTrialDuration
	}
	return now.Add(d)
}

func (p TrialPolicy) seats() int {
	if p.Seats < 1 {
		return DefaultTrialSeats
	}
	return p.Seats
}
