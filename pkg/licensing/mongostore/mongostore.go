// Package mongostore implements licensing.Store on MongoDB.
//
// Change sets are written inside a multi-document transaction, so the
// server must run as a replica set. Call EnsureIndexes once at startup.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/keygate/pkg/licensing"
)

const (
	subscriptionsCollection = "subscriptions"
	licensesCollection      = "licenses"
)

// Store implements licensing.Store on a MongoDB database.
type Store struct {
	client        *mongo.Client
	subscriptions *mongo.Collection
	licenses      *mongo.Collection
}

var _ licensing.Store = (*Store)(nil)

// New creates a store on db. Panics if db is nil.
func New(db *mongo.Database) *Store {
	if db == nil {
		panic("mongostore: database is required")
	}
	return &Store{
		client:        db.Client(),
		subscriptions: db.Collection(subscriptionsCollection),
		licenses:      db.Collection(licensesCollection),
	}
}

// EnsureIndexes creates the unique indexes the store relies on.
// It is safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.subscriptions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("subscriptions_external_id"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("subscriptions_user_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: subscription indexes: %w", err)
	}

	_, err = s.licenses.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("licenses_key"),
		},
		{
			Keys: bson.D{{Key: "subscription_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("licenses_subscription_id").
				SetPartialFilterExpression(bson.D{{Key: "subscription_id", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "trial_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("licenses_user_trial").
				SetPartialFilterExpression(bson.D{{Key: "trial_number", Value: bson.D{{Key: "$gt", Value: 0}}}}),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("licenses_user_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: license indexes: %w", err)
	}
	return nil
}

type subscriptionDoc struct {
	ID          string     `bson:"_id"`
	UserID      string     `bson:"user_id"`
	ExternalID  string     `bson:"external_id"`
	Plan        string     `bson:"plan"`
	Cadence     string     `bson:"cadence"`
	Status      string     `bson:"status"`
	StartedAt   time.Time  `bson:"started_at"`
	EndsAt      *time.Time `bson:"ends_at,omitempty"`
	CancelledAt *time.Time `bson:"cancelled_at,omitempty"`
	Version     int64      `bson:"version"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

type licenseDoc struct {
	ID             string    `bson:"_id"`
	Key            string    `bson:"key"`
	UserID         string    `bson:"user_id"`
	SubscriptionID string    `bson:"subscription_id,omitempty"`
	Active         bool      `bson:"active"`
	ExpiresAt      time.Time `bson:"expires_at"`
	Seats          int       `bson:"seats"`
	TrialNumber    int       `bson:"trial_number"`
	Version        int64     `bson:"version"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*licensing.Subscription, error) {
	return s.findSubscription(ctx, bson.D{{Key: "_id", Value: id.String()}})
}

func (s *Store) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*licensing.Subscription, error) {
	return s.findSubscription(ctx, bson.D{{Key: "external_id", Value: externalID}})
}

func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]*licensing.Subscription, error) {
	cur, err := s.subscriptions.Find(ctx,
		bson.D{{Key: "user_id", Value: userID.String()}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list subscriptions: %w", err)
	}

	var docs []subscriptionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list subscriptions: %w", err)
	}

	out := make([]*licensing.Subscription, 0, len(docs))
	for i := range docs {
		sub, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *Store) GetLicense(ctx context.Context, id uuid.UUID) (*licensing.License, error) {
	return s.findLicense(ctx, bson.D{{Key: "_id", Value: id.String()}})
}

func (s *Store) GetLicenseByKey(ctx context.Context, key string) (*licensing.License, error) {
	return s.findLicense(ctx, bson.D{{Key: "key", Value: key}})
}

func (s *Store) GetLicenseBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*licensing.License, error) {
	return s.findLicense(ctx, bson.D{{Key: "subscription_id", Value: subscriptionID.String()}})
}

func (s *Store) ListLicensesByUser(ctx context.Context, userID uuid.UUID) ([]*licensing.License, error) {
	cur, err := s.licenses.Find(ctx,
		bson.D{{Key: "user_id", Value: userID.String()}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list licenses: %w", err)
	}

	var docs []licenseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list licenses: %w", err)
	}

	out := make([]*licensing.License, 0, len(docs))
	for i := range docs {
		lic, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, lic)
	}
	return out, nil
}

// Apply writes the change set inside one transaction.
func (s *Store) Apply(ctx context.Context, cs licensing.ChangeSet) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongostore: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, s.apply(ctx, cs)
	})
	if err != nil {
		return err
	}
	cs.Commit()
	return nil
}

func (s *Store) apply(ctx context.Context, cs licensing.ChangeSet) error {
	if sub := cs.NewSubscription; sub != nil {
		doc := subscriptionToDoc(sub)
		doc.Version = 1
		if _, err := s.subscriptions.InsertOne(ctx, doc); err != nil {
			return writeError("insert subscription", err)
		}
	}

	if sub := cs.Subscription; sub != nil {
		var cur subscriptionDoc
		err := s.subscriptions.FindOne(ctx, bson.D{{Key: "_id", Value: sub.ID.String()}}).Decode(&cur)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return licensing.ErrVersionConflict
		case err != nil:
			return fmt.Errorf("mongostore: load subscription: %w", err)
		case cur.Version != sub.Version:
			return licensing.ErrVersionConflict
		case cur.ExternalID != sub.ExternalID || cur.UserID != sub.UserID.String():
			return licensing.ErrInvalidRecord
		}

		doc := subscriptionToDoc(sub)
		doc.CreatedAt = cur.CreatedAt
		doc.Version = sub.Version + 1
		if err := replaceVersioned(ctx, s.subscriptions, doc.ID, sub.Version, doc); err != nil {
			return err
		}
	}

	if lic := cs.NewLicense; lic != nil {
		if lic.SubscriptionID != nil {
			err := s.subscriptions.FindOne(ctx, bson.D{{Key: "_id", Value: lic.SubscriptionID.String()}}).Err()
			if errors.Is(err, mongo.ErrNoDocuments) {
				return licensing.ErrSubscriptionNotFound
			}
			if err != nil {
				return fmt.Errorf("mongostore: load subscription: %w", err)
			}
		}
		doc := licenseToDoc(lic)
		doc.Version = 1
		if _, err := s.licenses.InsertOne(ctx, doc); err != nil {
			return writeError("insert license", err)
		}
	}

	if lic := cs.License; lic != nil {
		var cur licenseDoc
		err := s.licenses.FindOne(ctx, bson.D{{Key: "_id", Value: lic.ID.String()}}).Decode(&cur)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return licensing.ErrVersionConflict
		case err != nil:
			return fmt.Errorf("mongostore: load license: %w", err)
		case cur.Version != lic.Version:
			return licensing.ErrVersionConflict
		case cur.Key != lic.Key || cur.UserID != lic.UserID.String() || cur.SubscriptionID != idString(lic.SubscriptionID):
			return licensing.ErrInvalidRecord
		}

		doc := licenseToDoc(lic)
		doc.CreatedAt = cur.CreatedAt
		doc.Version = lic.Version + 1
		if err := replaceVersioned(ctx, s.licenses, doc.ID, lic.Version, doc); err != nil {
			return err
		}
	}
	return nil
}

// replaceVersioned swaps the document only while it still carries version.
func replaceVersioned(ctx context.Context, coll *mongo.Collection, id string, version int64, doc any) error {
	res, err := coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "version", Value: version}}, doc)
	if err != nil {
		return writeError("replace "+coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return licensing.ErrVersionConflict
	}
	return nil
}

func writeError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return errors.Join(licensing.ErrDuplicate, err)
	}
	return fmt.Errorf("mongostore: %s: %w", op, err)
}

func (s *Store) findSubscription(ctx context.Context, filter bson.D) (*licensing.Subscription, error) {
	var doc subscriptionDoc
	err := s.subscriptions.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, licensing.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get subscription: %w", err)
	}
	return doc.toDomain()
}

func (s *Store) findLicense(ctx context.Context, filter bson.D) (*licensing.License, error) {
	var doc licenseDoc
	err := s.licenses.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, licensing.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get license: %w", err)
	}
	return doc.toDomain()
}

func subscriptionToDoc(sub *licensing.Subscription) subscriptionDoc {
	return subscriptionDoc{
		ID:          sub.ID.String(),
		UserID:      sub.UserID.String(),
		ExternalID:  sub.ExternalID,
		Plan:        string(sub.Plan),
		Cadence:     string(sub.Cadence),
		Status:      string(sub.Status),
		StartedAt:   sub.StartedAt.UTC(),
		EndsAt:      utcPtr(sub.EndsAt),
		CancelledAt: utcPtr(sub.CancelledAt),
		CreatedAt:   sub.CreatedAt.UTC(),
		UpdatedAt:   sub.UpdatedAt.UTC(),
	}
}

func (d *subscriptionDoc) toDomain() (*licensing.Subscription, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("mongostore: subscription id %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("mongostore: subscription user id %q: %w", d.UserID, err)
	}
	return &licensing.Subscription{
		ID:          id,
		UserID:      userID,
		ExternalID:  d.ExternalID,
		Plan:        licensing.Plan(d.Plan),
		Cadence:     licensing.Cadence(d.Cadence),
		Status:      licensing.Status(d.Status),
		StartedAt:   d.StartedAt.UTC(),
		EndsAt:      utcPtr(d.EndsAt),
		CancelledAt: utcPtr(d.CancelledAt),
		Version:     d.Version,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

func licenseToDoc(lic *licensing.License) licenseDoc {
	return licenseDoc{
		ID:             lic.ID.String(),
		Key:            lic.Key,
		UserID:         lic.UserID.String(),
		SubscriptionID: idString(lic.SubscriptionID),
		Active:         lic.Active,
		ExpiresAt:      lic.ExpiresAt.UTC(),
		Seats:          lic.Seats,
		TrialNumber:    lic.TrialNumber,
		CreatedAt:      lic.CreatedAt.UTC(),
		UpdatedAt:      lic.UpdatedAt.UTC(),
	}
}

func (d *licenseDoc) toDomain() (*licensing.License, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("mongostore: license id %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("mongostore: license user id %q: %w", d.UserID, err)
	}

	lic := &licensing.License{
		ID:          id,
		Key:         d.Key,
		UserID:      userID,
		Active:      d.Active,
		ExpiresAt:   d.ExpiresAt.UTC(),
		Seats:       d.Seats,
		TrialNumber: d.TrialNumber,
		Version:     d.Version,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if d.SubscriptionID != "" {
		subID, err := uuid.Parse(d.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("mongostore: license subscription id %q: %w", d.SubscriptionID, err)
		}
		lic.SubscriptionID = &subID
	}
	return lic, nil
}

func idString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
