// Package storetest holds the behaviour every licensing.Store must share.
// Backends call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/licensing"
)

// Factory returns a store for one subtest. Stores may be shared between
// subtests; every fixture uses fresh ids, keys and external ids.
type Factory func(t *testing.T) licensing.Store

// Run executes the conformance suite against the store returned by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("create and lookup", func(t *testing.T) { testCreateAndLookup(t, newStore(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("unique constraints", func(t *testing.T) { testUniqueConstraints(t, newStore(t)) })
	t.Run("license needs subscription", func(t *testing.T) { testLicenseNeedsSubscription(t, newStore(t)) })
	t.Run("conditional update", func(t *testing.T) { testConditionalUpdate(t, newStore(t)) })
	t.Run("immutable fields", func(t *testing.T) { testImmutableFields(t, newStore(t)) })
	t.Run("atomic change set", func(t *testing.T) { testAtomicChangeSet(t, newStore(t)) })
}

var start = time.Date(2025, time.January, 31, 10, 30, 0, 0, time.UTC)

func subscription(userID uuid.UUID) *licensing.Subscription {
	end := licensing.CadenceMonthly.Advance(start)
	return &licensing.Subscription{
		ID:         uuid.New(),
		UserID:     userID,
		ExternalID: "sub_" + uuid.NewString(),
		Plan:       licensing.PlanProfessional,
		Cadence:    licensing.CadenceMonthly,
		Status:     licensing.StatusActive,
		StartedAt:  start,
		EndsAt:     &end,
		CreatedAt:  start,
		UpdatedAt:  start,
	}
}

func paidLicense(sub *licensing.Subscription) *licensing.License {
	id := sub.ID
	return &licensing.License{
		ID:             uuid.New(),
		Key:            "KG-" + uuid.NewString(),
		UserID:         sub.UserID,
		SubscriptionID: &id,
		Active:         true,
		ExpiresAt:      *sub.EndsAt,
		Seats:          3,
		CreatedAt:      start,
		UpdatedAt:      start,
	}
}

func trialLicense(userID uuid.UUID, number int) *licensing.License {
	return &licensing.License{
		ID:          uuid.New(),
		Key:         "KG-" + uuid.NewString(),
		UserID:      userID,
		Active:      true,
		ExpiresAt:   start.Add(licensing.DefaultTrialDuration),
		Seats:       1,
		TrialNumber: number,
		CreatedAt:   start,
		UpdatedAt:   start,
	}
}

func seed(t *testing.T, store licensing.Store) (*licensing.Subscription, *licensing.License) {
	t.Helper()
	sub := subscription(uuid.New())
	lic := paidLicense(sub)
	require.NoError(t, store.Apply(context.Background(), licensing.ChangeSet{NewSubscription: sub, NewLicense: lic}))
	return sub, lic
}

func testCreateAndLookup(t *testing.T, store licensing.Store) {
	ctx := context.Background()
	sub, lic := seed(t, store)
	trial := trialLicense(sub.UserID, 1)
	require.NoError(t, store.Apply(ctx, licensing.ChangeSet{NewLicense: trial}))

	assert.Equal(t, int64(1), sub.Version)
	assert.Equal(t, int64(1), lic.Version)

	got, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	got, err = store.GetSubscriptionByExternalID(ctx, sub.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	byKey, err := store.GetLicenseByKey(ctx, lic.Key)
	require.NoError(t, err)
	assert.Equal(t, lic, byKey)

	bySub, err := store.GetLicenseBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, lic.ID, bySub.ID)

	byID, err := store.GetLicense(ctx, trial.ID)
	require.NoError(t, err)
	assert.Nil(t, byID.SubscriptionID)
	assert.Equal(t, 1, byID.TrialNumber)

	subs, err := store.ListSubscriptionsByUser(ctx, sub.UserID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	lics, err := store.ListLicensesByUser(ctx, sub.UserID)
	require.NoError(t, err)
	assert.Len(t, lics, 2)
}

func testNotFound(t *testing.T, store licensing.Store) {
	ctx := context.Background()

	_, err := store.GetSubscription(ctx, uuid.New())
	assert.ErrorIs(t, err, licensing.ErrSubscriptionNotFound)
	_, err = store.GetSubscriptionByExternalID(ctx, "sub_missing")
	assert.ErrorIs(t, err, licensing.ErrSubscriptionNotFound)
	_, err = store.GetLicense(ctx, uuid.New())
	assert.ErrorIs(t, err, licensing.ErrLicenseNotFound)
	_, err = store.GetLicenseByKey(ctx, "KG-MISSING")
	assert.ErrorIs(t, err, licensing.ErrLicenseNotFound)
	_, err = store.GetLicenseBySubscription(ctx, uuid.New())
	assert.ErrorIs(t, err, licensing.ErrLicenseNotFound)

	subs, err := store.ListSubscriptionsByUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func testUniqueConstraints(t *testing.T, store licensing.Store) {
	ctx := context.Background()
	sub, lic := seed(t, store)

	dupExternal := subscription(uuid.New())
	dupExternal.ExternalID = sub.ExternalID
	assert.ErrorIs(t, store.Apply(ctx, licensing.ChangeSet{NewSubscription: dupExternal}), licensing.ErrDuplicate)

	dupKey := trialLicense(uuid.New(), 1)
	dupKey.Key = lic.Key
	assert.ErrorIs(t, store.Apply(ctx, licensing.ChangeSet{NewLicense: dupKey}), licensing.ErrDuplicate)

	second := paidLicense(sub)
	assert.ErrorIs(t, store.Apply(ctx, licensing.ChangeSet{NewLicense: second}), licensing.ErrDuplicate)

	userID := uuid.New()
	require.NoError(t, store.Apply(ctx, licensing.ChangeSet{NewLicense: trialLicense(userID, 1)}))
	assert.ErrorIs(t, store.Apply(ctx, licensing.ChangeSet{NewLicense: trialLicense(userID, 1)}), licensing.ErrDuplicate)
	require.NoError(t, store.Apply(ctx, licensing.ChangeSet{NewLicense: trialLicense(userID, 2)}))
}

func testLicenseNeedsSubscription(t *testing.T, store licensing.Store) {
	orphan := paidLicense(subscription(uuid.New()))
	err := store.Apply(context.Background(), licensing.ChangeSet{NewLicense: orphan})
	assert.ErrorIs(t, err, licensing.ErrNotFound)
}

func testConditionalUpdate(t *testing.T, store licensing.Store) {
	ctx := context.Background()
	sub, lic := seed(t, store)

	fresh, err := store.GetLicense(ctx, lic.ID)
	require.NoError(t, err)
	stale, err := store.GetLicense(ctx, lic.ID)
	require.NoError(t, err)

	fresh.ExpiresAt = licensing.CadenceMonthly.Advance(fresh.ExpiresAt)
	require.NoError(t, store.Apply(ctx, licensing.ChangeSet{License: fresh}))
	assert.Equal(t, int64(2), fresh.Version)

	stale.ExpiresAt = licensing.CadenceMonthly.Advance(stale.ExpiresAt)
	assert.ErrorIs(t, store.Apply(ctx, licensing.ChangeSet{License: stale}), licensing.ErrConflict)

	got, err := store.GetLicense(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, int64(2), got.Version)

	next, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	cancelledAt := start.Add(time.Hour)
	next.Status = licensing.StatusCancelled
	next.CancelledAt = &cancelledAt
	require.NoError(t, store.Apply(ctx, licensing.ChangeSet{Subscription: next}))

	stored, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, licensing.StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
	assert.Equal(t, cancelledAt, *stored.CancelledAt)

	ghost := subscription(uuid.New())
	ghost.Version = 1
	assert.ErrorIs(t, store.Apply(ctx, licensing.ChangeSet{Subscription: ghost}), licensing.ErrConflict)
}

func testImmutableFields(t *testing.T, store licensing.Store) {
	ctx := context.Background()
	sub, lic := seed(t, store)

	moved := sub.Clone()
	moved.ExternalID = "sub_" + uuid.NewString()
	assert.ErrorIs(t, store.Apply(ctx, licensing.ChangeSet{Subscription: moved}), licensing.ErrInvalidRecord)

	rekeyed := lic.Clone()
	rekeyed.Key = "KG-" + uuid.NewString()
	assert.ErrorIs(t, store.Apply(ctx, licensing.ChangeSet{License: rekeyed}), licensing.ErrInvalidRecord)
}

func testAtomicChangeSet(t *testing.T, store licensing.Store) {
	ctx := context.Background()
	sub, lic := seed(t, store)

	stale, err := store.GetLicense(ctx, lic.ID)
	require.NoError(t, err)
	require.NoError(t, store.Apply(ctx, licensing.ChangeSet{License: stale.Clone()}))

	next := sub.Clone()
	next.Status = licensing.StatusExpired
	stale.Active = false

	err = store.Apply(ctx, licensing.ChangeSet{Subscription: next, License: stale})
	require.ErrorIs(t, err, licensing.ErrConflict)

	got, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, licensing.StatusActive, got.Status)
	assert.Equal(t, int64(1), got.Version)

	// A failed insert rolls back the subscription created in the same set.
	fresh := subscription(uuid.New())
	dup := paidLicense(fresh)
	dup.Key = lic.Key
	require.ErrorIs(t, store.Apply(ctx, licensing.ChangeSet{NewSubscription: fresh, NewLicense: dup}), licensing.ErrDuplicate)

	_, err = store.GetSubscription(ctx, fresh.ID)
	assert.ErrorIs(t, err, licensing.ErrSubscriptionNotFound)
}
