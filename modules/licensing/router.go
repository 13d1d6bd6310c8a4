package licensing

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/keygate/handler"
	"github.com/dmitrymomot/keygate/pkg/binder"
	"github.com/dmitrymomot/keygate/pkg/licensing"
)

// WebhookHandler processes one raw provider delivery. *licensing.Ingress
// implements it.
type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, header http.Header) (*licensing.IngressResult, error)
}

// RouterOptions configures the licensing HTTP module. Service is required.
type RouterOptions struct {
	Service licensing.Service

	// Webhooks serves POST /webhooks/billing. The route is not mounted when nil.
	Webhooks WebhookHandler

	// ResolveUser identifies the caller of owner routes.
	// Default is ContextUserResolver.
	ResolveUser UserResolver

	Logger *slog.Logger

	// MaxBodyBytes caps request bodies, webhooks included.
	// Default is binder.DefaultMaxJSONSize.
	MaxBodyBytes int64

	// VerifyMiddleware wraps GET /licenses/verify, typically with a rate
	// limiter keyed by client address.
	VerifyMiddleware []func(http.Handler) http.Handler
}

// Router mounts the licensing routes:
//
//	POST /webhooks/billing               provider webhooks
//	GET  /licenses/verify?key=           public key lookup
//	POST /trial                          request a trial license
//	POST /subscriptions                  record a completed checkout
//	GET  /subscriptions                  caller's subscriptions
//	POST /subscriptions/{id}/cancel      cancel at period end
//	GET  /licenses                       caller's licenses
//	POST /licenses/{id}/deactivate
//	POST /licenses/{id}/reactivate
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware, auth)
//	r.Mount("/v1", licensing.Router(licensing.RouterOptions{
//		Service:  svc,
//		Webhooks: ingress,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Service == nil {
		panic("licensing: RouterOptions.Service is required")
	}
	if opts.ResolveUser == nil {
		opts.ResolveUser = ContextUserResolver
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = binder.DefaultMaxJSONSize
	}

	h := &handlers{
		svc:      opts.Service,
		webhooks: opts.Webhooks,
		logger:   opts.Logger,
		validate: newValidator(),
		errors:   handler.NewErrorHandler(opts.Logger, classify),
		maxBody:  opts.MaxBodyBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
	errs := handler.WithErrorHandler(h.errors)

	jsonBody := binder.JSON(opts.MaxBodyBytes)
	path := binder.Path(chi.URLParam)

	r := chi.NewRouter()
	if opts.Webhooks != nil {
		r.Post("/webhooks/billing", h.webhook)
	}
	r.With(opts.VerifyMiddleware...).Get("/licenses/verify", handler.Wrap(h.verify, handler.WithBinders(binder.Query()), errs))

	r.Group(func(r chi.Router) {
		r.Use(h.requireUser(opts.ResolveUser))

		r.Post("/trial", handler.Wrap(h.requestTrial, errs))
		r.Post("/subscriptions", handler.Wrap(h.createSubscription, handler.WithBinders(jsonBody), errs))
		r.Get("/subscriptions", handler.Wrap(h.listSubscriptions, errs))
		r.Post("/subscriptions/{id}/cancel", handler.Wrap(h.cancelSubscription, handler.WithBinders(path), errs))
		r.Get("/licenses", handler.Wrap(h.listLicenses, errs))
		r.Post("/licenses/{id}/deactivate", handler.Wrap(h.deactivate, handler.WithBinders(path), errs))
		r.Post("/licenses/{id}/reactivate", handler.Wrap(h.reactivate, handler.WithBinders(path), errs))
	})

	return r
}

// requireUser resolves the caller and stores the id in the request context.
func (h *handlers) requireUser(resolve UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := resolve(r)
			if !ok {
				h.errors(handler.NewContext(w, r), errUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

// newValidator reports fields under their wire names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "path"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}
