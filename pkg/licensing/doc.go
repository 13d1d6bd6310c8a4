// Package licensing keeps subscriptions, license keys and payment provider
// events consistent.
//
// A Subscription mirrors a recurring agreement held by the payment provider.
// A License is the key the desktop application checks; paid licenses link to
// exactly one subscription, trials link to none. Access is granted only when
// EffectivelyActive reports true, which combines the stored active flag with
// the expiry.
//
// # Components
//
//   - Engine is the pure transition table. Decide turns a subscription, its
//     license and a lifecycle event into a Decision: the next status, a
//     ChangeSet to persist and the notification to send.
//   - Store persists records. Apply commits a ChangeSet atomically and
//     conditionally on the Version each record was read at. MemoryStore ships
//     here; pgstore and mongostore provide durable backends.
//   - Provider adapts a payment provider (Paddle, Stripe or any HMAC-signing
//     backend through SignedProvider).
//   - Ingress verifies, decodes and deduplicates provider webhooks using a
//     Ledger of processed event ids, then calls Service.ApplyEvent.
//   - Service exposes checkout completion, trials, cancellation and license
//     activation to the HTTP layer.
//
// # Concurrency
//
// Nothing is locked across calls. Every write is conditional on the version
// observed at read time; a stale write fails with ErrVersionConflict (kind
// ErrConflict) and the service re-reads, re-decides and retries up to
// DefaultMaxAttempts times. Trial issuance is serialised by the unique
// (user, trial number) index in the same way.
//
// # Errors
//
// Every error matches one kind sentinel with errors.Is: ErrValidation,
// ErrNotFound, ErrUnauthenticated, ErrForbidden, ErrPolicyRejected,
// ErrConflict or ErrCollaborator. PolicyReason extracts the user-facing
// reason of a policy rejection.
//
// # Usage
//
//	svc := licensing.NewService(store, provider,
//	    licensing.WithNotifier(dispatcher),
//	    licensing.WithCatalog(catalog),
//	    licensing.WithKeyGenerator(keys),
//	)
//	ingress, err := licensing.NewIngress(provider, svc,
//	    licensing.WithLedger(ledger, 72*time.Hour),
//	    licensing.WithRequireSigning(env.IsProduction()),
//	)
package licensing
