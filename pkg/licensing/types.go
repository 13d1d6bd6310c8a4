package licensing

import "time"

// Plan is the subscription tier.
type Plan string

const (
	PlanStandard     Plan = "standard"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanStandard, PlanProfessional, PlanEnterprise:
		return true
	}
	return false
}

// ParsePlan converts external input into a Plan.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.Valid() {
		return "", ErrInvalidPlan
	}
	return p, nil
}

// Cadence is the billing period of a subscription.
type Cadence string

const (
	CadenceMonthly Cadence = "monthly"
	CadenceAnnual  Cadence = "annual"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	return c == CadenceMonthly || c == CadenceAnnual
}

// ParseCadence converts external input into a Cadence.
func ParseCadence(s string) (Cadence, error) {
	c := Cadence(s)
	if !c.Valid() {
		return "", ErrInvalidCadence
	}
	return c, nil
}

// Advance returns t moved forward by one billing period.
// Unknown cadences leave t unchanged; callers validate first.
func (c Cadence) Advance(t time.Time) time.Time {
	switch c {
	case CadenceMonthly:
		return AddMonths(t, 1)
	case CadenceAnnual:
		return AddMonths(t, 12)
	}
	return t
}

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// AddMonths adds n calendar months to t. The day of month is clamped to the
// last valid day of the resulting month, so Jan 31 + 1 month is Feb 28 (or 29).
// Clock time and location are preserved.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	// Normalise on the first of the month so time.Date never overflows into the next one.
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
