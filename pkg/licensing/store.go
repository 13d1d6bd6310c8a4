package licensing

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionReader provides indexed subscription lookups.
// Lookups return ErrSubscriptionNotFound when nothing matches.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetSubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error)
}

// LicenseReader provides indexed license lookups.
// Lookups return ErrLicenseNotFound when nothing matches.
type LicenseReader interface {
	GetLicense(ctx context.Context, id uuid.UUID) (*License, error)
	GetLicenseByKey(ctx context.Context, key string) (*License, error)
	GetLicenseBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*License, error)
	ListLicensesByUser(ctx context.Context, userID uuid.UUID) ([]*License, error)
}

// Store persists subscriptions and licenses.
//
// Apply commits a change set atomically. Inserts fail with ErrDuplicate when
// a unique index (id, external id, key, subscription link, user trial number)
// is violated. Updates are conditional on the Version the caller read and
// fail with ErrVersionConflict when the stored row has moved on. On success
// the store bumps Version on the records it was handed.
type Store interface {
	SubscriptionReader
	LicenseReader
	Apply(ctx context.Context, cs ChangeSet) error
}

// ChangeSet groups the writes produced by one lifecycle decision.
// Writes are applied in field order so a new license may link to a new subscription.
type ChangeSet struct {
	NewSubscription *Subscription
	Subscription    *Subscription
	NewLicense      *License
	License         *License
}

// Empty reports whether the change set carries no writes.
func (cs ChangeSet) Empty() bool {
	return cs.NewSubscription == nil && cs.Subscription == nil && cs.NewLicense == nil && cs.License == nil
}

// Validate checks every record in the change set.
func (cs ChangeSet) Validate() error {
	for _, s := range []*Subscription{cs.NewSubscription, cs.Subscription} {
		if s != nil {
			if err := s.Validate(); err != nil {
				return err
			}
		}
	}
	for _, l := range []*License{cs.NewLicense, cs.License} {
		if l != nil {
			if err := l.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Commit bumps versions on the records after a successful write.
// Store implementations call it once their transaction has committed.
func (cs ChangeSet) Commit() {
	if cs.NewSubscription != nil {
		cs.NewSubscription.Version = 1
	}
	if cs.Subscription != nil {
		cs.Subscription.Version++
	}
	if cs.NewLicense != nil {
		cs.NewLicense.Version = 1
	}
	if cs.License != nil {
		cs.License.Version++
	}
}
