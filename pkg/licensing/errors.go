package licensing

import "errors"

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is, so callers can branch on kind without string matching.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrPolicyRejected  = errors.New("rejected by policy")
	ErrConflict        = errors.New("concurrent update conflict")
	ErrCollaborator    = errors.New("collaborator call failed")
)

// Error is a specific failure tagged with its kind. Package-level *Error
// values are compared by identity, so errors.Is matches both the specific
// value and its kind.
type Error struct {
	kind   error
	reason string
}

func newError(kind error, reason string) *Error {
	return &Error{kind: kind, reason: reason}
}

func (e *Error) Error() string { return e.reason }

// Unwrap exposes the kind.
func (e *Error) Unwrap() error { return e.kind }

// Kind returns the error kind sentinel.
func (e *Error) Kind() error { return e.kind }

// Reason returns the human-readable reason shown to callers.
func (e *Error) Reason() string { return e.reason }

var (
	ErrInvalidPlan           = newError(ErrValidation, "invalid plan")
	ErrInvalidCadence        = newError(ErrValidation, "invalid billing cadence")
	ErrInvalidUserID         = newError(ErrValidation, "invalid user id")
	ErrInvalidSubscriptionID = newError(ErrValidation, "invalid subscription id")
	ErrInvalidLicenseID      = newError(ErrValidation, "invalid license id")
	ErrInvalidExternalID     = newError(ErrValidation, "invalid external subscription id")
	ErrInvalidLicenseKey     = newError(ErrValidation, "invalid license key")
	ErrInvalidRecord         = newError(ErrValidation, "invalid record")
	ErrPlanMismatch          = newError(ErrValidation, "plan or cadence does not match the provider subscription")
	ErrUnknownPrice          = newError(ErrValidation, "provider price is not in the plan catalogue")
	ErrPlanRequired          = newError(ErrValidation, "plan and billing cadence are required")
	ErrMalformedEvent        = newError(ErrValidation, "malformed provider event")

	ErrSubscriptionNotFound = newError(ErrNotFound, "subscription not found")
	ErrLicenseNotFound      = newError(ErrNotFound, "license not found")

	ErrSignatureInvalid = newError(ErrUnauthenticated, "invalid webhook signature")
	ErrNotOwner         = newError(ErrForbidden, "not owned by requester")

	ErrAlreadyHasActiveLicense = newError(ErrPolicyRejected, "already has active license")
	ErrTrialAlreadyUsed        = newError(ErrPolicyRejected, "trial already used")
	ErrSubscriptionNotActive   = newError(ErrPolicyRejected, "associated subscription not active")
	ErrTrialExpired            = newError(ErrPolicyRejected, "trial period has expired")
	ErrCancelNotAllowed        = newError(ErrPolicyRejected, "subscription not active")

	ErrVersionConflict = newError(ErrConflict, "record changed since it was read")
	ErrDuplicate       = newError(ErrConflict, "record already exists")
	ErrEventInFlight   = newError(ErrConflict, "event is already being processed")

	ErrProviderFailed = newError(ErrCollaborator, "payment provider call failed")
	ErrLedgerFailed   = newError(ErrCollaborator, "event ledger unavailable")
)

// Configuration errors returned by constructors.
var (
	ErrSigningRequired     = errors.New("webhook signing secret is required in production")
	ErrMissingAPIKey       = errors.New("billing provider API key is required")
	ErrInvalidEnvironment  = errors.New("invalid billing provider environment")
	ErrLookupUnsupported   = errors.New("billing provider does not support subscription lookups")
	ErrInvalidCatalog      = errors.New("invalid plan catalogue")
	ErrFailedToLoadCatalog = errors.New("failed to load plan catalogue")
)

// PolicyReason returns the rejection reason when err is a policy rejection.
func PolicyReason(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && errors.Is(e.kind, ErrPolicyRejected) {
		return e.reason, true
	}
	return "", false
}

// KindOf returns the kind sentinel matched by err, or nil for foreign errors.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrNotFound,
		ErrUnauthenticated,
		ErrForbidden,
		ErrPolicyRejected,
		ErrConflict,
		ErrCollaborator,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
