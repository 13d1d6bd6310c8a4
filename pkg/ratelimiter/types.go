package ratelimiter

import "time"

// Result contains the result of a rate limit check.
type Result struct {
	Limit     int       // Maximum tokens (bucket capacity)
	Remaining int       // Tokens left; negative when the request was denied
	ResetAt   time.Time // Time of the next refill
}

// Allowed returns whether the request is allowed based on remaining tokens.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter returns how long to wait before the next request.
// Returns 0 if the request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}

// Config defines the token bucket configuration.
type Config struct {
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"60"`        // Burst limit
	RefillRate     int           `env:"RATE_LIMIT_REFILL_RATE" envDefault:"1"`      // Tokens added per interval
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"` // How often tokens are added
}

// refill returns the token count after the intervals elapsed since last,
// and the time the latest refill is accounted to.
func (c Config) refill(tokens int, last, now time.Time) (int, time.Time) {
	if !now.After(last) {
		return tokens, last
	}
	// Capped so high-capacity/low-rate buckets cannot overflow.
	maxIntervals := int64(c.Capacity/c.RefillRate + 1)
	intervals := min(int64(now.Sub(last)/c.RefillInterval), maxIntervals)
	if intervals <= 0 {
		return tokens, last
	}
	tokens = min(tokens+int(intervals)*c.RefillRate, c.Capacity)
	if tokens == c.Capacity {
		return tokens, now
	}
	return tokens, last.Add(time.Duration(intervals) * c.RefillInterval)
}

// idleTTL is how long a bucket takes to fill up from empty, plus one interval.
func (c Config) idleTTL() time.Duration {
	steps := (c.Capacity + c.RefillRate - 1) / c.RefillRate
	return time.Duration(steps+1) * c.RefillInterval
}
