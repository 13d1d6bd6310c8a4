package licensing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/keygate/pkg/logger"
)

// Service is the inbound API of the lifecycle engine.
type Service interface {
	// Checkout and trials
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Checkout, error)
	RequestTrial(ctx context.Context, userID uuid.UUID) (*License, error)

	// Owner actions
	CancelSubscription(ctx context.Context, subscriptionID, userID uuid.UUID) (*Subscription, error)
	DeactivateLicense(ctx context.Context, licenseID, userID uuid.UUID) (*License, error)
	ReactivateLicense(ctx context.Context, licenseID, userID uuid.UUID) (*License, error)

	// Provider events, already verified and parsed
	ApplyEvent(ctx context.Context, event *ProviderEvent) (Outcome, error)

	// Read side
	ListLicenses(ctx context.Context, userID uuid.UUID) ([]*License, error)
	ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]*Subscription, error)
	VerifyLicense(ctx context.Context, key string) (*LicenseStatus, error)
}

// KeyGenerator issues new license keys.
type KeyGenerator interface {
	Generate() (string, error)
}

// KeyValidator rejects malformed keys before they reach the store.
type KeyValidator interface {
	Validate(key string) bool
}

// KeyNormalizer maps a user-typed key to the form it was stored in. It
// returns "" for keys it cannot decode.
type KeyNormalizer interface {
	Normalize(key string) string
}

// CreateSubscriptionRequest is the checkout completion callback.
// Plan and Cadence are optional when the provider supports lookups; when
// given they must agree with the provider's view.
type CreateSubscriptionRequest struct {
	UserID                 uuid.UUID
	ExternalSubscriptionID string
	Plan                   Plan
	Cadence                Cadence
}

// Checkout is the result of a completed checkout.
type Checkout struct {
	Subscription *Subscription
	License      *License
}

// LicenseStatus is the public view of a license key.
type LicenseStatus struct {
	LicenseID         uuid.UUID
	EffectivelyActive bool
	ExpiresAt         time.Time
	Seats             int
	Trial             bool
}

// Outcome describes what happened to a provider event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInFlight  Outcome = "in_flight"
	OutcomeDropped   Outcome = "dropped"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// DefaultMaxAttempts bounds the optimistic concurrency retry loop.
const DefaultMaxAttempts = 3

type service struct {
	store        Store
	provider     Provider
	engine       *Engine
	notifier     Notifier
	catalog      *Catalog
	keys         KeyGenerator
	keyValidator KeyValidator
	keyNormal    KeyNormalizer
	trial        TrialPolicy
	logger       *slog.Logger
	metrics      *Metrics
	now          func() time.Time
	maxAttempts  int
}

// NewService wires the lifecycle service. Panics if store or provider is nil.
func NewService(store Store, provider Provider, opts ...ServiceOption) Service {
	if store == nil {
		panic("licensing: Store is required")
	}
	if provider == nil {
		panic("licensing: Provider is required")
	}

	s := &service{
		store:       store,
		provider:    provider,
		engine:      NewEngine(),
		notifier:    noopNotifier{},
		catalog:     DefaultCatalog(),
		keys:        defaultKeyGenerator(),
		keyNormal:   defaultKeyNormalizer(),
		trial:       DefaultTrialPolicy(),
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("licensing"))
	return s
}

// CreateSubscription records a completed checkout. Redelivery of the same
// checkout for the same user returns the existing records.
func (s *service) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Checkout, error) {
	externalID := strings.TrimSpace(req.ExternalSubscriptionID)
	switch {
	case req.UserID == uuid.Nil:
		return nil, ErrInvalidUserID
	case externalID == "":
		return nil, ErrInvalidExternalID
	case req.Plan != "" && !req.Plan.Valid():
		return nil, ErrInvalidPlan
	case req.Cadence != "" && !req.Cadence.Valid():
		return nil, ErrInvalidCadence
	}

	var (
		out      *Checkout
		plan     Plan
		cadence  Cadence
		resolved bool
	)
	err := s.withRetry(ctx, "create_subscription", func() error {
		existing, err := s.store.GetSubscriptionByExternalID(ctx, externalID)
		switch {
		case err == nil:
			if !existing.OwnedBy(req.UserID) {
				return ErrNotOwner
			}
			lic, err := s.store.GetLicenseBySubscription(ctx, existing.ID)
			if err != nil && !errors.Is(err, ErrLicenseNotFound) {
				return err
			}
			out = &Checkout{Subscription: existing, License: lic}
			return nil
		case !errors.Is(err, ErrSubscriptionNotFound):
			return err
		}

		if !resolved {
			if plan, cadence, err = s.resolvePlan(ctx, externalID, req); err != nil {
				return err
			}
			resolved = true
		}

		key, err := s.keys.Generate()
		if err != nil {
			return err
		}

		now := s.now()
		end := cadence.Advance(now)
		sub := &Subscription{
			ID:         uuid.New(),
			UserID:     req.UserID,
			ExternalID: externalID,
			Plan:       plan,
			Cadence:    cadence,
			Status:     StatusActive,
			StartedAt:  now,
			EndsAt:     &end,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		lic := &License{
			ID:             uuid.New(),
			Key:            key,
			UserID:         req.UserID,
			SubscriptionID: &sub.ID,
			Active:         true,
			ExpiresAt:      end,
			Seats:          s.catalog.Seats(plan),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.Apply(ctx, ChangeSet{NewSubscription: sub, NewLicense: lic}); err != nil {
			return err
		}

		out = &Checkout{Subscription: sub, License: lic}
		s.logger.InfoContext(ctx, "subscription created",
			logger.UserID(req.UserID),
			logger.SubscriptionID(sub.ID),
			logger.LicenseID(lic.ID),
			logger.ExternalID(externalID),
			slog.String("plan", string(plan)),
			slog.String("cadence", string(cadence)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolvePlan asks the provider which price the subscription was bought at
// and maps it through the catalogue.
func (s *service) resolvePlan(ctx context.Context, externalID string, req CreateSubscriptionRequest) (Plan, Cadence, error) {
	details, err := s.provider.GetSubscriptionDetails(ctx, externalID)
	if errors.Is(err, ErrLookupUnsupported) {
		if !req.Plan.Valid() || !req.Cadence.Valid() {
			return "", "", ErrPlanRequired
		}
		return req.Plan, req.Cadence, nil
	}
	if err != nil {
		return "", "", collaboratorError(err)
	}

	plan, cadence, err := s.catalog.Resolve(details.PriceID)
	if err != nil {
		// A catalogue without price ids can still be used when the caller
		// names the plan and the provider reports the interval.
		c, ok := CadenceFromInterval(details.Interval)
		if !ok || !req.Plan.Valid() {
			return "", "", err
		}
		plan, cadence = req.Plan, c
	}

	if (req.Plan != "" && req.Plan != plan) || (req.Cadence != "" && req.Cadence != cadence) {
		return "", "", ErrPlanMismatch
	}
	return plan, cadence, nil
}

// RequestTrial issues a trial license when the eligibility rules allow it.
func (s *service) RequestTrial(ctx context.Context, userID uuid.UUID) (*License, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}

	var issued *License
	err := s.withRetry(ctx, "request_trial", func() error {
		held, err := s.store.ListLicensesByUser(ctx, userID)
		if err != nil {
			return err
		}
		now := s.now()
		number, err := s.trial.Check(userID, held, now)
		if err != nil {
			return err
		}

		key, err := s.keys.Generate()
		if err != nil {
			return err
		}

		lic := &License{
			ID:          uuid.New(),
			Key:         key,
			UserID:      userID,
			Active:      true,
			ExpiresAt:   s.trial.ExpiryFrom(now),
			Seats:       s.trial.seats(),
			TrialNumber: number,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.Apply(ctx, ChangeSet{NewLicense: lic}); err != nil {
			return err
		}
		issued = lic
		return nil
	})
	if err != nil {
		if reason, ok := PolicyReason(err); ok {
			s.logger.InfoContext(ctx, "trial rejected", logger.UserID(userID), slog.String("reason", reason))
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "trial issued",
		logger.UserID(userID),
		logger.LicenseID(issued.ID),
		slog.Int("trial_number", issued.TrialNumber),
	)
	s.notify(ctx, NotifyTrialIssued, nil, issued)
	return issued, nil
}

// CancelSubscription cancels at the provider first; the local mirror changes
// only after the provider accepted the cancellation.
func (s *service) CancelSubscription(ctx context.Context, subscriptionID, userID uuid.UUID) (*Subscription, error) {
	switch {
	case subscriptionID == uuid.Nil:
		return nil, ErrInvalidSubscriptionID
	case userID == uuid.Nil:
		return nil, ErrInvalidUserID
	}

	var (
		decision          Decision
		lic               *License
		providerCancelled bool
		out               *Subscription
	)
	err := s.withRetry(ctx, "cancel_subscription", func() error {
		sub, err := s.store.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if !sub.OwnedBy(userID) {
			return ErrNotOwner
		}
		if lic, err = s.store.GetLicenseBySubscription(ctx, sub.ID); err != nil && !errors.Is(err, ErrLicenseNotFound) {
			return err
		}

		decision, err = s.engine.Decide(ctx, sub, lic, EventUserCancelRequested, s.now())
		if err != nil {
			// The provider's own cancellation webhook may have landed between
			// our provider call and the write.
			if providerCancelled && sub.Status == StatusCancelled {
				decision = Decision{}
				out = sub
				return nil
			}
			return err
		}

		if !providerCancelled {
			if err := s.provider.CancelSubscription(ctx, sub.ExternalID); err != nil {
				return collaboratorError(err)
			}
			providerCancelled = true
		}

		if err := s.store.Apply(ctx, decision.Changes); err != nil {
			return err
		}
		out = decision.Changes.Subscription
		return nil
	})
	if err != nil {
		s.metrics.transition(EventUserCancelRequested, outcomeOf(err))
		return nil, err
	}

	if decision.Notify != "" {
		s.metrics.transition(EventUserCancelRequested, string(OutcomeApplied))
		s.logger.InfoContext(ctx, "subscription cancelled by owner",
			logger.UserID(userID),
			logger.SubscriptionID(out.ID),
			logger.ExternalID(out.ExternalID),
		)
		s.notify(ctx, decision.Notify, out, lic)
	}
	return out, nil
}

// DeactivateLicense clears the active flag. It is idempotent.
func (s *service) DeactivateLicense(ctx context.Context, licenseID, userID uuid.UUID) (*License, error) {
	return s.setActive(ctx, "deactivate_license", licenseID, userID, false)
}

// ReactivateLicense sets the active flag when the reactivation guard allows it.
func (s *service) ReactivateLicense(ctx context.Context, licenseID, userID uuid.UUID) (*License, error) {
	return s.setActive(ctx, "reactivate_license", licenseID, userID, true)
}

func (s *service) setActive(ctx context.Context, op string, licenseID, userID uuid.UUID, active bool) (*License, error) {
	switch {
	case licenseID == uuid.Nil:
		return nil, ErrInvalidLicenseID
	case userID == uuid.Nil:
		return nil, ErrInvalidUserID
	}

	var out *License
	err := s.withRetry(ctx, op, func() error {
		lic, err := s.store.GetLicense(ctx, licenseID)
		if err != nil {
			return err
		}
		if !lic.OwnedBy(userID) {
			return ErrNotOwner
		}

		now := s.now()
		if active {
			var sub *Subscription
			if !lic.IsTrial() {
				sub, err = s.store.GetSubscription(ctx, *lic.SubscriptionID)
				if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
					return err
				}
			}
			if err := CheckReactivation(lic, sub, now); err != nil {
				return err
			}
		}

		if lic.Active == active {
			out = lic
			return nil
		}

		next := lic.Clone()
		next.Active = active
		next.UpdatedAt = now
		if err := s.store.Apply(ctx, ChangeSet{License: next}); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "license active flag set",
		logger.UserID(userID),
		logger.LicenseID(out.ID),
		slog.Bool("active", out.Active),
	)
	return out, nil
}

// ApplyEvent runs a provider event through the engine and commits the result.
// Events for unknown subscriptions, and renewals of subscriptions without a
// license, are dropped rather than failed so the provider stops redelivering.
func (s *service) ApplyEvent(ctx context.Context, event *ProviderEvent) (Outcome, error) {
	if !event.Recognized() {
		return OutcomeIgnored, nil
	}

	log := s.logger.With(
		logger.EventID(event.ID),
		logger.EventType(event.Type),
		logger.ExternalID(event.ExternalSubscriptionID),
	)

	var (
		decision Decision
		sub      *Subscription
		lic      *License
	)
	err := s.withRetry(ctx, "apply_event", func() error {
		var err error
		if sub, err = s.store.GetSubscriptionByExternalID(ctx, event.ExternalSubscriptionID); err != nil {
			return err
		}
		if lic, err = s.store.GetLicenseBySubscription(ctx, sub.ID); err != nil && !errors.Is(err, ErrLicenseNotFound) {
			return err
		}
		if decision, err = s.engine.Decide(ctx, sub, lic, event.Kind, s.now()); err != nil {
			return err
		}
		if decision.Changes.Empty() {
			return nil
		}
		return s.store.Apply(ctx, decision.Changes)
	})

	switch {
	case errors.Is(err, ErrNotFound):
		s.metrics.transition(event.Kind, string(OutcomeDropped))
		log.WarnContext(ctx, "provider event dropped", logger.Error(err))
		return OutcomeDropped, nil
	case err != nil:
		s.metrics.transition(event.Kind, outcomeOf(err))
		return OutcomeFailed, err
	case decision.Skipped != "":
		s.metrics.transition(event.Kind, string(OutcomeSkipped))
		log.InfoContext(ctx, "provider event skipped",
			logger.SubscriptionID(sub.ID),
			slog.String("reason", decision.Skipped),
		)
		return OutcomeSkipped, nil
	}

	s.metrics.transition(event.Kind, string(OutcomeApplied))
	log.InfoContext(ctx, "provider event applied",
		logger.SubscriptionID(sub.ID),
		slog.String("from", string(decision.From)),
		slog.String("to", string(decision.To)),
	)

	if decision.Changes.Subscription != nil {
		sub = decision.Changes.Subscription
	}
	if decision.Changes.License != nil {
		lic = decision.Changes.License
	}
	s.notify(ctx, decision.Notify, sub, lic)
	return OutcomeApplied, nil
}

func (s *service) ListLicenses(ctx context.Context, userID uuid.UUID) ([]*License, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	return s.store.ListLicensesByUser(ctx, userID)
}

func (s *service) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]*Subscription, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	return s.store.ListSubscriptionsByUser(ctx, userID)
}

// VerifyLicense reports whether a key currently grants access.
func (s *service) VerifyLicense(ctx context.Context, key string) (*LicenseStatus, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidLicenseKey
	}
	if s.keyValidator != nil && !s.keyValidator.Validate(key) {
		return nil, ErrInvalidLicenseKey
	}
	if canonical := s.keyNormal.Normalize(key); canonical != "" {
		key = canonical
	}

	lic, err := s.store.GetLicenseByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return &LicenseStatus{
		LicenseID:         lic.ID,
		EffectivelyActive: EffectivelyActive(lic, s.now()),
		ExpiresAt:         lic.ExpiresAt,
		Seats:             lic.Seats,
		Trial:             lic.IsTrial(),
	}, nil
}

// withRetry re-runs fn while it fails with a concurrency conflict, up to
// maxAttempts times. fn must re-read everything it decides on.
func (s *service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err = fn(); !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.metrics.conflictRetry(op)
		s.logger.DebugContext(ctx, "retrying after conflict",
			logger.Event(op),
			logger.RetryCount(attempt),
			logger.Error(err),
		)
	}
	return err
}

func (s *service) notify(ctx context.Context, kind NotificationKind, sub *Subscription, lic *License) {
	if kind == "" {
		return
	}

	n := Notification{Kind: kind, OccurredAt: s.now()}
	if sub != nil {
		id := sub.ID
		n.UserID = sub.UserID
		n.SubscriptionID = &id
		n.Plan = sub.Plan
	}
	if lic != nil {
		id, exp := lic.ID, lic.ExpiresAt
		n.UserID = lic.UserID
		n.LicenseID = &id
		n.ExpiresAt = &exp
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			logger.Event(string(kind)),
			logger.UserID(n.UserID),
			logger.Error(err),
		)
	}
}

// collaboratorError tags provider failures that the adapter did not classify.
func collaboratorError(err error) error {
	if errors.Is(err, ErrCollaborator) {
		return err
	}
	return errors.Join(ErrProviderFailed, err)
}

func outcomeOf(err error) string {
	if errors.Is(err, ErrPolicyRejected) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrValidation) {
		return string(OutcomeRejected)
	}
	return string(OutcomeFailed)
}
