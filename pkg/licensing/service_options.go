package licensing

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/keygate/pkg/licensekey"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithNotifier sets the outcome notifier. Default discards notifications.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithCatalog sets the plan catalogue used for price lookups and seat counts.
func WithCatalog(c *Catalog) ServiceOption {
	return func(s *service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithKeyGenerator sets the license key generator. When it also implements
// KeyValidator, VerifyLicense rejects malformed keys without a store lookup.
// When it implements KeyNormalizer, VerifyLicense looks keys up in its
// canonical form instead of the default one.
func WithKeyGenerator(g KeyGenerator) ServiceOption {
	return func(s *service) {
		if g == nil {
			return
		}
		s.keys = g
		if v, ok := g.(KeyValidator); ok {
			s.keyValidator = v
		}
		if n, ok := g.(KeyNormalizer); ok {
			s.keyNormal = n
		}
	}
}

// WithTrialPolicy sets trial duration, seats and the bypass list.
func WithTrialPolicy(p TrialPolicy) ServiceOption {
	return func(s *service) {
		s.trial = p
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *Metrics) ServiceOption {
	return func(s *service) {
		s.metrics = m
	}
}

// WithClock overrides time.Now. Returned times should be UTC.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxAttempts bounds the conflict retry loop. Values below 1 are ignored.
func WithMaxAttempts(n int) ServiceOption {
	return func(s *service) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// defaultKeyGenerator issues keys under a per-process secret. Its keys are
// not validated on lookup because the secret does not survive a restart.
func defaultKeyGenerator() KeyGenerator {
	g := licensekey.NewRandom()
	return KeyGeneratorFunc(g.Generate)
}

func defaultKeyNormalizer() KeyNormalizer {
	return keyNormalizerFunc(licensekey.Normalize)
}

type keyNormalizerFunc func(string) string

func (f keyNormalizerFunc) Normalize(key string) string { return f(key) }

// KeyGeneratorFunc adapts a function to KeyGenerator.
type KeyGeneratorFunc func() (string, error)

func (f KeyGeneratorFunc) Generate() (string, error) { return f() }
