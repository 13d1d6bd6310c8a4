package licensing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/licensing"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestAddMonths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{"plain", date(2025, time.March, 15), 1, date(2025, time.April, 15)},
		{"clamps to february", date(2025, time.January, 31), 1, date(2025, time.February, 28)},
		{"clamps to leap february", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"clamps to 30-day month", date(2025, time.March, 31), 1, date(2025, time.April, 30)},
		{"crosses year", date(2025, time.December, 31), 1, date(2026, time.January, 31)},
		{"leap day plus a year", date(2024, time.February, 29), 12, date(2025, time.February, 28)},
		{"leap day plus four years", date(2024, time.February, 29), 48, date(2028, time.February, 29)},
		{"zero", date(2025, time.May, 5), 0, date(2025, time.May, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, licensing.AddMonths(tt.in, tt.n))
		})
	}
}

func TestAddMonths_PreservesClockAndLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+3", 3*60*60)
	in := time.Date(2025, time.January, 31, 23, 59, 58, 123, loc)

	got := licensing.AddMonths(in, 1)
	assert.Equal(t, time.Date(2025, time.February, 28, 23, 59, 58, 123, loc), got)
	assert.Equal(t, loc, got.Location())
}

func TestCadence_Advance(t *testing.T) {
	t.Parallel()

	assert.Equal(t, date(2025, time.February, 28), licensing.CadenceMonthly.Advance(date(2025, time.January, 31)))
	assert.Equal(t, date(2025, time.February, 28), licensing.CadenceAnnual.Advance(date(2024, time.February, 29)))
	assert.Equal(t, date(2025, time.January, 31), licensing.Cadence("weekly").Advance(date(2025, time.January, 31)))
}

func TestParsePlanAndCadence(t *testing.T) {
	t.Parallel()

	p, err := licensing.ParsePlan("professional")
	require.NoError(t, err)
	assert.Equal(t, licensing.PlanProfessional, p)

	_, err = licensing.ParsePlan("gold")
	assert.ErrorIs(t, err, licensing.ErrInvalidPlan)
	assert.ErrorIs(t, err, licensing.ErrValidation)

	c, err := licensing.ParseCadence("annual")
	require.NoError(t, err)
	assert.Equal(t, licensing.CadenceAnnual, c)

	_, err = licensing.ParseCadence("weekly")
	assert.ErrorIs(t, err, licensing.ErrInvalidCadence)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	assert.False(t, licensing.StatusActive.IsTerminal())
	assert.True(t, licensing.StatusCancelled.IsTerminal())
	assert.True(t, licensing.StatusExpired.IsTerminal())
	assert.False(t, licensing.Status("paused").Valid())
}
