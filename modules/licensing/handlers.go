package licensing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrymomot/keygate/handler"
	"github.com/dmitrymomot/keygate/pkg/binder"
	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/logger"
)

type handlers struct {
	svc      licensing.Service
	webhooks WebhookHandler
	logger   *slog.Logger
	validate *validator.Validate
	errors   handler.ErrorHandler
	maxBody  int64
	now      func() time.Time
}

func (h *handlers) check(req any) error {
	if err := h.validate.Struct(req); err != nil {
		return newValidationError(err)
	}
	return nil
}

// userID is set by requireUser for every owner route.
func userID(ctx handler.Context) uuid.UUID {
	id, _ := UserIDFromContext(ctx)
	return id
}

// webhook reads the raw body because signatures cover the exact bytes.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := handler.NewContext(w, r)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = errors.Join(binder.ErrBodyTooLarge, err)
		}
		h.errors(ctx, err)
		return
	}

	res, err := h.webhooks.Handle(r.Context(), payload, r.Header)
	if err != nil {
		h.errors(ctx, err)
		return
	}

	h.logger.DebugContext(r.Context(), "webhook acknowledged",
		logger.EventID(res.EventID),
		logger.EventType(res.Type),
		logger.Outcome(string(res.Outcome)),
	)
	if err := handler.JSON(http.StatusOK, map[string]any{"received": true}).Render(w, r); err != nil {
		h.errors(ctx, err)
	}
}

func (h *handlers) requestTrial(ctx handler.Context, _ struct{}) handler.Response {
	lic, err := h.svc.RequestTrial(ctx, userID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(http.StatusCreated, trialResponse{
		LicenseID:  lic.ID,
		LicenseKey: lic.Key,
		ExpiresAt:  lic.ExpiresAt,
	})
}

func (h *handlers) createSubscription(ctx handler.Context, req createSubscriptionRequest) handler.Response {
	if err := h.check(req); err != nil {
		return handler.Fail(err)
	}

	out, err := h.svc.CreateSubscription(ctx, licensing.CreateSubscriptionRequest{
		UserID:                 userID(ctx),
		ExternalSubscriptionID: req.ExternalSubscriptionID,
		Plan:                   licensing.Plan(req.Plan),
		Cadence:                licensing.Cadence(req.Cadence),
	})
	if err != nil {
		return handler.Fail(err)
	}

	resp := checkoutResponse{SubscriptionID: out.Subscription.ID}
	if out.License != nil {
		resp.LicenseID = &out.License.ID
		resp.LicenseKey = out.License.Key
		resp.ExpiresAt = &out.License.ExpiresAt
	}
	return handler.JSON(http.StatusCreated, resp)
}

func (h *handlers) listSubscriptions(ctx handler.Context, _ struct{}) handler.Response {
	subs, err := h.svc.ListSubscriptions(ctx, userID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	items := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		items = append(items, toSubscription(s))
	}
	return handler.JSON(http.StatusOK, map[string]any{"subscriptions": items})
}

func (h *handlers) cancelSubscription(ctx handler.Context, req idRequest) handler.Response {
	if err := h.check(req); err != nil {
		return handler.Fail(err)
	}
	sub, err := h.svc.CancelSubscription(ctx, req.ID, userID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(http.StatusOK, toSubscription(sub))
}

func (h *handlers) listLicenses(ctx handler.Context, _ struct{}) handler.Response {
	lics, err := h.svc.ListLicenses(ctx, userID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	now := h.now()
	items := make([]licenseResponse, 0, len(lics))
	for _, l := range lics {
		items = append(items, toLicense(l, now))
	}
	return handler.JSON(http.StatusOK, map[string]any{"licenses": items})
}

func (h *handlers) deactivate(ctx handler.Context, req idRequest) handler.Response {
	if err := h.check(req); err != nil {
		return handler.Fail(err)
	}
	lic, err := h.svc.DeactivateLicense(ctx, req.ID, userID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(http.StatusOK, toLicense(lic, h.now()))
}

func (h *handlers) reactivate(ctx handler.Context, req idRequest) handler.Response {
	if err := h.check(req); err != nil {
		return handler.Fail(err)
	}
	lic, err := h.svc.ReactivateLicense(ctx, req.ID, userID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(http.StatusOK, toLicense(lic, h.now()))
}

func (h *handlers) verify(ctx handler.Context, req verifyRequest) handler.Response {
	if err := h.check(req); err != nil {
		return handler.Fail(err)
	}
	status, err := h.svc.VerifyLicense(ctx, req.Key)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(http.StatusOK, verifyResponse{
		EffectivelyActive: status.EffectivelyActive,
		ExpiresAt:         status.ExpiresAt,
		Seats:             status.Seats,
		Trial:             status.Trial,
	})
}
