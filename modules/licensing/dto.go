package licensing

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/keygate/pkg/licensing"
)

type createSubscriptionRequest struct {
	ExternalSubscriptionID string `json:"external_subscription_id" validate:"required,max=255"`
	Plan                   string `json:"plan" validate:"omitempty,oneof=standard professional enterprise"`
	Cadence                string `json:"cadence" validate:"omitempty,oneof=monthly annual"`
}

type idRequest struct {
	ID uuid.UUID `path:"id" validate:"required"`
}

type verifyRequest struct {
	Key string `query:"key" validate:"required,max=128"`
}

type trialResponse struct {
	LicenseID  uuid.UUID `json:"license_id"`
	LicenseKey string    `json:"license_key"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type checkoutResponse struct {
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	LicenseID      *uuid.UUID `json:"license_id,omitempty"`
	LicenseKey     string     `json:"license_key,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type subscriptionResponse struct {
	ID          uuid.UUID  `json:"id"`
	ExternalID  string     `json:"external_subscription_id"`
	Plan        string     `json:"plan"`
	Cadence     string     `json:"cadence"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

type licenseResponse struct {
	ID                uuid.UUID  `json:"id"`
	Key               string     `json:"key"`
	SubscriptionID    *uuid.UUID `json:"subscription_id,omitempty"`
	Active            bool       `json:"active"`
	EffectivelyActive bool       `json:"effectively_active"`
	Trial             bool       `json:"trial"`
	Seats             int        `json:"seats"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

type verifyResponse struct {
	EffectivelyActive bool      `json:"effectively_active"`
	ExpiresAt         time.Time `json:"expires_at"`
	Seats             int       `json:"seats"`
	Trial             bool      `json:"trial"`
}

func toSubscription(s *licensing.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:          s.ID,
		ExternalID:  s.ExternalID,
		Plan:        string(s.Plan),
		Cadence:     string(s.Cadence),
		Status:      string(s.Status),
		StartedAt:   s.StartedAt,
		EndsAt:      s.EndsAt,
		CancelledAt: s.CancelledAt,
	}
}

func toLicense(l *licensing.License, now time.Time) licenseResponse {
	return licenseResponse{
		ID:                l.ID,
		Key:               l.Key,
		SubscriptionID:    l.SubscriptionID,
		Active:            l.Active,
		EffectivelyActive: licensing.EffectivelyActive(l, now),
		Trial:             l.IsTrial(),
		Seats:             l.Seats,
		ExpiresAt:         l.ExpiresAt,
		CreatedAt:         l.CreatedAt,
	}
}
