package licensing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/keygate/pkg/logger"
)

// IngressResult reports how a webhook delivery was handled.
type IngressResult struct {
	EventID string
	Type    string
	Outcome Outcome
}

// Ingress authenticates, decodes and deduplicates provider webhooks before
// handing them to the service.
type Ingress struct {
	provider       Provider
	service        Service
	ledger         Ledger
	ledgerTTL      time.Duration
	claimTTL       time.Duration
	requireSigning bool
	logger         *slog.Logger
	metrics        *Metrics
}

// IngressOption configures an Ingress.
type IngressOption func(*Ingress)

// WithLedger sets the event-id ledger and how long applied ids are remembered.
// Default is a MemoryLedger with DefaultLedgerTTL.
func WithLedger(l Ledger, ttl time.Duration) IngressOption {
	return func(in *Ingress) {
		if l != nil {
			in.ledger = l
		}
		if ttl > 0 {
			in.ledgerTTL = ttl
		}
	}
}

// WithClaimTTL sets how long an in-flight claim holds back redeliveries of
// the same event. Keep it above the request timeout. Default is
// DefaultClaimTTL.
func WithClaimTTL(ttl time.Duration) IngressOption {
	return func(in *Ingress) {
		if ttl > 0 {
			in.claimTTL = ttl
		}
	}
}

// WithRequireSigning makes NewIngress fail when the provider has no webhook
// secret. Production deployments set it.
func WithRequireSigning(required bool) IngressOption {
	return func(in *Ingress) {
		in.requireSigning = required
	}
}

func WithIngressLogger(l *slog.Logger) IngressOption {
	return func(in *Ingress) {
		if l != nil {
			in.logger = l
		}
	}
}

func WithIngressMetrics(m *Metrics) IngressOption {
	return func(in *Ingress) {
		in.metrics = m
	}
}

// NewIngress creates the webhook ingress. Panics if provider or svc is nil.
func NewIngress(provider Provider, svc Service, opts ...IngressOption) (*Ingress, error) {
	if provider == nil {
		panic("licensing: Provider is required")
	}
	if svc == nil {
		panic("licensing: Service is required")
	}

	in := &Ingress{
		provider:  provider,
		service:   svc,
		ledger:    NewMemoryLedger(),
		ledgerTTL: DefaultLedgerTTL,
		claimTTL:  DefaultClaimTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = in.logger.With(logger.Component("ingress"), logger.Provider(provider.Name()))

	if !provider.SigningEnabled() {
		if in.requireSigning {
			return nil, ErrSigningRequired
		}
		in.logger.Warn("webhook signature verification is disabled; configure a webhook secret")
	}
	return in, nil
}

// Handle processes one webhook delivery. A nil error means the delivery can
// be acknowledged: either its effects are committed or it needs none.
func (in *Ingress) Handle(ctx context.Context, payload []byte, header http.Header) (*IngressResult, error) {
	name := in.provider.Name()

	if err := in.provider.VerifyWebhook(ctx, payload, header); err != nil {
		in.metrics.webhookEvent(name, "unknown", OutcomeRejected)
		in.logger.WarnContext(ctx, "webhook signature rejected", logger.Error(err))
		if !errors.Is(err, ErrSignatureInvalid) {
			err = errors.Join(ErrSignatureInvalid, err)
		}
		return nil, err
	}
	if !in.provider.SigningEnabled() {
		in.logger.DebugContext(ctx, "accepting unsigned webhook")
	}

	event, err := in.provider.ParseWebhook(ctx, payload)
	if err != nil {
		in.metrics.webhookEvent(name, "unknown", OutcomeRejected)
		in.logger.WarnContext(ctx, "malformed webhook", logger.Error(err))
		if !errors.Is(err, ErrValidation) {
			err = errors.Join(ErrMalformedEvent, err)
		}
		return nil, err
	}

	res := &IngressResult{EventID: event.ID, Type: event.Type}
	log := in.logger.With(logger.EventID(event.ID), logger.EventType(event.Type))

	if !event.Recognized() {
		res.Outcome = OutcomeIgnored
		in.metrics.webhookEvent(name, event.Type, res.Outcome)
		log.DebugContext(ctx, "webhook ignored")
		return res, nil
	}

	state, err := in.ledger.Claim(ctx, event.ID, in.claimTTL)
	if err != nil {
		in.metrics.webhookEvent(name, event.Type, OutcomeFailed)
		log.ErrorContext(ctx, "event ledger claim failed", logger.Error(err))
		return nil, errors.Join(ErrLedgerFailed, err)
	}
	switch state {
	case ClaimDone:
		res.Outcome = OutcomeDuplicate
		in.metrics.webhookEvent(name, event.Type, res.Outcome)
		log.InfoContext(ctx, "duplicate webhook acknowledged")
		return res, nil
	case ClaimPending:
		// Not acknowledged: the other delivery may still fail.
		res.Outcome = OutcomeInFlight
		in.metrics.webhookEvent(name, event.Type, res.Outcome)
		log.InfoContext(ctx, "webhook already in flight; asking provider to retry")
		return res, ErrEventInFlight
	}

	outcome, err := in.service.ApplyEvent(ctx, event)
	if err != nil {
		// Let a redelivery retry the event.
		if rerr := in.ledger.Release(context.WithoutCancel(ctx), event.ID); rerr != nil {
			log.ErrorContext(ctx, "event ledger release failed", logger.Error(rerr))
		}
		res.Outcome = OutcomeFailed
		in.metrics.webhookEvent(name, event.Type, res.Outcome)
		log.ErrorContext(ctx, "webhook processing failed", logger.Error(err))
		return res, err
	}

	if err := in.ledger.Complete(context.WithoutCancel(ctx), event.ID, in.ledgerTTL); err != nil {
		// The change is committed; a redelivery is still absorbed by the guards.
		log.WarnContext(ctx, "event ledger completion failed", logger.Error(err))
	}

	res.Outcome = outcome
	in.metrics.webhookEvent(name, event.Type, outcome)
	return res, nil
}
