// Package requestid correlates log records that belong to one HTTP request.
//
// Middleware keeps a client supplied X-Request-ID when it is short and made
// of letters, digits, '-' and '_'; anything else is replaced with a fresh
// UUID. The chosen id is echoed in the response header and stored in the
// request context, where LoggerExtractor picks it up:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
package requestid
