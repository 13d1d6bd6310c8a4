package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/pg"
)

// Migrations holds the schema owned by this store. Pass it to pg.Migrate
// together with MigrationsDir.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements licensing.Store on PostgreSQL. Unique indexes enforce the
// identity constraints; updates lock the row and compare versions inside the
// change-set transaction.
type Store struct {
	db DB
}

var _ licensing.Store = (*Store)(nil)

// New creates a store on db. Panics if db is nil.
func New(db DB) *Store {
	if db == nil {
		panic("pgstore: DB is required")
	}
	return &Store{db: db}
}

const subscriptionColumns = `id, user_id, external_id, plan, cadence, status, started_at, ends_at, cancelled_at, version, created_at, updated_at`

const licenseColumns = `id, license_key, user_id, subscription_id, active, expires_at, seats, trial_number, version, created_at, updated_at`

func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*licensing.Subscription, error) {
	return s.getSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (s *Store) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*licensing.Subscription, error) {
	return s.getSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_id = $1`, externalID)
}

func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]*licensing.Subscription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list subscriptions: %w", err)
	}
	defer rows.Close()

	out := make([]*licensing.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list subscriptions: %w", err)
	}
	return out, nil
}

func (s *Store) GetLicense(ctx context.Context, id uuid.UUID) (*licensing.License, error) {
	return s.getLicense(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id)
}

func (s *Store) GetLicenseByKey(ctx context.Context, key string) (*licensing.License, error) {
	return s.getLicense(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE license_key = $1`, key)
}

func (s *Store) GetLicenseBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*licensing.License, error) {
	return s.getLicense(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE subscription_id = $1`, subscriptionID)
}

func (s *Store) ListLicensesByUser(ctx context.Context, userID uuid.UUID) ([]*licensing.License, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list licenses: %w", err)
	}
	defer rows.Close()

	out := make([]*licensing.License, 0)
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan license: %w", err)
		}
		out = append(out, lic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list licenses: %w", err)
	}
	return out, nil
}

// Apply writes the change set in one transaction.
func (s *Store) Apply(ctx context.Context, cs licensing.ChangeSet) error {
	if err := cs.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("pgstore: begin: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if sub := cs.NewSubscription; sub != nil {
		if err := insertSubscription(ctx, tx, sub); err != nil {
			return err
		}
	}
	if sub := cs.Subscription; sub != nil {
		if err := updateSubscription(ctx, tx, sub); err != nil {
			return err
		}
	}
	if lic := cs.NewLicense; lic != nil {
		if err := insertLicense(ctx, tx, lic); err != nil {
			return err
		}
	}
	if lic := cs.License; lic != nil {
		if err := updateLicense(ctx, tx, lic); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: commit: %w", err)
	}
	cs.Commit()
	return nil
}

func insertSubscription(ctx context.Context, tx pgx.Tx, sub *licensing.Subscription) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)`,
		sub.ID, sub.UserID, sub.ExternalID, string(sub.Plan), string(sub.Cadence), string(sub.Status),
		sub.StartedAt.UTC(), utcPtr(sub.EndsAt), utcPtr(sub.CancelledAt), sub.CreatedAt.UTC(), sub.UpdatedAt.UTC(),
	)
	if err != nil {
		return writeError("insert subscription", err)
	}
	return nil
}

func updateSubscription(ctx context.Context, tx pgx.Tx, sub *licensing.Subscription) error {
	var (
		version    int64
		externalID string
		userID     uuid.UUID
	)
	err := tx.QueryRow(ctx,
		`SELECT version, external_id, user_id FROM subscriptions WHERE id = $1 FOR UPDATE`, sub.ID,
	).Scan(&version, &externalID, &userID)
	switch {
	case pg.IsNotFoundError(err):
		return licensing.ErrVersionConflict
	case err != nil:
		return fmt.Errorf("pgstore: lock subscription: %w", err)
	case version != sub.Version:
		return licensing.ErrVersionConflict
	case externalID != sub.ExternalID || userID != sub.UserID:
		return licensing.ErrInvalidRecord
	}

	_, err = tx.Exec(ctx, `
		UPDATE subscriptions
		SET plan = $2, cadence = $3, status = $4, ends_at = $5, cancelled_at = $6,
		    updated_at = $7, version = version + 1
		WHERE id = $1`,
		sub.ID, string(sub.Plan), string(sub.Cadence), string(sub.Status),
		utcPtr(sub.EndsAt), utcPtr(sub.CancelledAt), sub.UpdatedAt.UTC(),
	)
	if err != nil {
		return writeError("update subscription", err)
	}
	return nil
}

func insertLicense(ctx context.Context, tx pgx.Tx, lic *licensing.License) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO licenses (`+licenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)`,
		lic.ID, lic.Key, lic.UserID, lic.SubscriptionID, lic.Active, lic.ExpiresAt.UTC(),
		lic.Seats, lic.TrialNumber, lic.CreatedAt.UTC(), lic.UpdatedAt.UTC(),
	)
	if err != nil {
		return writeError("insert license", err)
	}
	return nil
}

func updateLicense(ctx context.Context, tx pgx.Tx, lic *licensing.License) error {
	var (
		version        int64
		key            string
		userID         uuid.UUID
		subscriptionID *uuid.UUID
	)
	err := tx.QueryRow(ctx,
		`SELECT version, license_key, user_id, subscription_id FROM licenses WHERE id = $1 FOR UPDATE`, lic.ID,
	).Scan(&version, &key, &userID, &subscriptionID)
	switch {
	case pg.IsNotFoundError(err):
		return licensing.ErrVersionConflict
	case err != nil:
		return fmt.Errorf("pgstore: lock license: %w", err)
	case version != lic.Version:
		return licensing.ErrVersionConflict
	case key != lic.Key || userID != lic.UserID || !sameID(subscriptionID, lic.SubscriptionID):
		return licensing.ErrInvalidRecord
	}

	_, err = tx.Exec(ctx, `
		UPDATE licenses
		SET active = $2, expires_at = $3, seats = $4, updated_at = $5, version = version + 1
		WHERE id = $1`,
		lic.ID, lic.Active, lic.ExpiresAt.UTC(), lic.Seats, lic.UpdatedAt.UTC(),
	)
	if err != nil {
		return writeError("update license", err)
	}
	return nil
}

// writeError maps constraint violations onto licensing error kinds.
func writeError(op string, err error) error {
	switch {
	case pg.IsDuplicateKeyError(err):
		return errors.Join(licensing.ErrDuplicate, err)
	case pg.IsForeignKeyViolationError(err):
		return errors.Join(licensing.ErrSubscriptionNotFound, err)
	case pg.IsCheckViolationError(err):
		return errors.Join(licensing.ErrInvalidRecord, err)
	}
	return fmt.Errorf("pgstore: %s: %w", op, err)
}

func (s *Store) getSubscription(ctx context.Context, query string, arg any) (*licensing.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, query, arg))
	if pg.IsNotFoundError(err) {
		return nil, licensing.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) getLicense(ctx context.Context, query string, arg any) (*licensing.License, error) {
	lic, err := scanLicense(s.db.QueryRow(ctx, query, arg))
	if pg.IsNotFoundError(err) {
		return nil, licensing.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get license: %w", err)
	}
	return lic, nil
}

func scanSubscription(row pgx.Row) (*licensing.Subscription, error) {
	var (
		sub                   licensing.Subscription
		plan, cadence, status string
	)
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.ExternalID,
		&plan,
		&cadence,
		&status,
		&sub.StartedAt,
		&sub.EndsAt,
		&sub.CancelledAt,
		&sub.Version,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Plan = licensing.Plan(plan)
	sub.Cadence = licensing.Cadence(cadence)
	sub.Status = licensing.Status(status)
	sub.StartedAt = sub.StartedAt.UTC()
	sub.EndsAt = utcPtr(sub.EndsAt)
	sub.CancelledAt = utcPtr(sub.CancelledAt)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

func scanLicense(row pgx.Row) (*licensing.License, error) {
	var lic licensing.License
	err := row.Scan(
		&lic.ID,
		&lic.Key,
		&lic.UserID,
		&lic.SubscriptionID,
		&lic.Active,
		&lic.ExpiresAt,
		&lic.Seats,
		&lic.TrialNumber,
		&lic.Version,
		&lic.CreatedAt,
		&lic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lic.ExpiresAt = lic.ExpiresAt.UTC()
	lic.CreatedAt = lic.CreatedAt.UTC()
	lic.UpdatedAt = lic.UpdatedAt.UTC()
	return &lic, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
