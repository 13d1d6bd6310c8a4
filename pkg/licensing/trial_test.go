package licensing_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/licensing"
)

func TestTrialPolicy_Check(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	subID := uuid.New()

	now := date(2025, time.June, 1)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	paid := func(active bool) *licensing.License {
		return &licensing.License{SubscriptionID: &subID, Active: active, ExpiresAt: future}
	}
	trial := func(n int, active bool) *licensing.License {
		return &licensing.License{TrialNumber: n, Active: active, ExpiresAt: future}
	}
	expiredTrial := &licensing.License{TrialNumber: 1, Active: true, ExpiresAt: past}

	tests := []struct {
		name    string
		policy  licensing.TrialPolicy
		held    []*licensing.License
		want    int
		wantErr error
	}{
		{name: "first trial", policy: licensing.DefaultTrialPolicy(), want: 1},
		{name: "inactive paid license does not block", policy: licensing.DefaultTrialPolicy(), held: []*licensing.License{paid(false)}, want: 1},
		{name: "active paid license blocks", policy: licensing.DefaultTrialPolicy(), held: []*licensing.License{paid(true)}, wantErr: licensing.ErrAlreadyHasActiveLicense},
		{name: "lapsed paid license with stale flag does not block", policy: licensing.DefaultTrialPolicy(), held: []*licensing.License{{SubscriptionID: &subID, Active: true, ExpiresAt: past}}, want: 1},
		{name: "active trial blocks with rule two", policy: licensing.DefaultTrialPolicy(), held: []*licensing.License{trial(1, true)}, wantErr: licensing.ErrAlreadyHasActiveLicense},
		{name: "expired trial with stale flag counts as used", policy: licensing.DefaultTrialPolicy(), held: []*licensing.License{expiredTrial}, wantErr: licensing.ErrTrialAlreadyUsed},
		{name: "deactivated trial blocks", policy: licensing.DefaultTrialPolicy(), held: []*licensing.License{trial(1, false)}, wantErr: licensing.ErrTrialAlreadyUsed},
		{
			name:   "bypass allows a repeat trial",
			policy: licensing.TrialPolicy{Bypass: map[uuid.UUID]struct{}{userID: {}}},
			held:   []*licensing.License{trial(1, false), trial(2, false)},
			want:   3,
		},
		{
			name:    "bypass does not override an active license",
			policy:  licensing.TrialPolicy{Bypass: map[uuid.UUID]struct{}{userID: {}}},
			held:    []*licensing.License{trial(1, true)},
			wantErr: licensing.ErrAlreadyHasActiveLicense,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.policy.Check(userID, tt.held, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				reason, ok := licensing.PolicyReason(err)
				assert.True(t, ok)
				assert.NotEmpty(t, reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrialPolicy_ExpiryFrom(t *testing.T) {
	t.Parallel()

	now := date(2025, time.January, 1)
	assert.Equal(t, now.Add(720*time.Hour), licensing.DefaultTrialPolicy().ExpiryFrom(now))
	assert.Equal(t, now.Add(licensing.DefaultTrialDuration), licensing.TrialPolicy{}.ExpiryFrom(now))
	assert.Equal(t, now.Add(48*time.Hour), licensing.TrialPolicy{Duration: 48 * time.Hour}.ExpiryFrom(now))
}
