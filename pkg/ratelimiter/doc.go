// Package ratelimiter implements token bucket rate limiting with in-memory
// and Redis backed stores, plus an HTTP middleware.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. Each request takes one token; a request that finds too few
// tokens is denied without consuming any.
//
//	store := ratelimiter.NewRedisStore(client)
//	bucket, err := ratelimiter.NewBucket(store, cfg)
//	if err != nil {
//		return err
//	}
//	r.With(ratelimiter.Middleware(bucket, func(r *http.Request) string {
//		return clientip.FromContext(r.Context())
//	}, log)).Get("/licenses/verify", verify)
//
// Responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; denied requests get 429 with Retry-After.
package ratelimiter
