package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/keygate/pkg/email"
	"github.com/dmitrymomot/keygate/pkg/environment"
	"github.com/dmitrymomot/keygate/pkg/httpserver"
	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/logger"
	"github.com/dmitrymomot/keygate/pkg/mongo"
	"github.com/dmitrymomot/keygate/pkg/notifications"
	"github.com/dmitrymomot/keygate/pkg/pg"
	"github.com/dmitrymomot/keygate/pkg/ratelimiter"
	"github.com/dmitrymomot/keygate/pkg/redis"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
	storeMongo    = "mongo"

	providerPaddle = "paddle"
	providerStripe = "stripe"
	providerSigned = "signed"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Env environment.Environment `env:"APP_ENV" envDefault:"development"`

	StoreDriver     string `env:"STORE_DRIVER" envDefault:"memory"`
	BillingProvider string `env:"BILLING_PROVIDER" envDefault:"signed"`

	TrialDuration      time.Duration `env:"TRIAL_DURATION" envDefault:"720h"`
	TrialBypassUserIDs []string      `env:"TRIAL_BYPASS_USER_IDS" envSeparator:","`
	LicenseKeySecret   string        `env:"LICENSE_KEY_SECRET"`
	PlanCatalogPath    string        `env:"PLAN_CATALOG_PATH"`
	LedgerTTL          time.Duration `env:"LEDGER_TTL" envDefault:"72h"`
	LedgerClaimTTL     time.Duration `env:"LEDGER_CLAIM_TTL" envDefault:"2m"`
	ConflictRetries    int           `env:"CONFLICT_RETRIES" envDefault:"3"`

	NotifyWebhookURL    string        `env:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string        `env:"NOTIFY_WEBHOOK_SECRET"`
	NotifyTimeout       time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"30s"`
	AccountURL          string        `env:"ACCOUNT_URL"`

	// UserHeader carries the caller id set by the authenticating gateway.
	UserHeader        string `env:"AUTH_USER_HEADER" envDefault:"X-User-ID"`
	TrustProxyHeaders bool   `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
	MetricsEnabled    bool   `env:"METRICS_ENABLED" envDefault:"true"`

	Log       logger.Config
	HTTP      httpserver.Config
	Postgres  pg.Config
	Mongo     mongo.Config
	Redis     redis.Config
	Email     email.Config
	Directory notifications.DirectoryConfig
	RateLimit ratelimiter.Config
	Paddle    licensing.PaddleConfig
	Stripe    licensing.StripeConfig
	Signed    licensing.SignedConfig
}

var errConfig = errors.New("config")

// Validate checks cross-field rules. Production refuses settings that are
// only safe on a laptop.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{errConfig}, args...)...))
	}

	switch c.StoreDriver {
	case storeMemory:
		if c.Env.IsProduction() {
			add("STORE_DRIVER=memory is not allowed in production")
		}
	case storePostgres:
		if c.Postgres.ConnectionString == "" {
			add("PG_CONN_URL is required for STORE_DRIVER=postgres")
		}
	case storeMongo:
		if c.Mongo.ConnectionURL == "" {
			add("MONGODB_URL is required for STORE_DRIVER=mongo")
		}
	default:
		add("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.BillingProvider {
	case providerPaddle, providerStripe, providerSigned:
		if c.Env.IsProduction() && c.webhookSecret() == "" {
			add("a webhook secret for %s is required in production", c.BillingProvider)
		}
	default:
		add("unknown BILLING_PROVIDER %q", c.BillingProvider)
	}
	if c.BillingProvider == providerPaddle && c.Paddle.APIKey == "" {
		add("PADDLE_API_KEY is required for BILLING_PROVIDER=paddle")
	}
	if c.BillingProvider == providerStripe && c.Stripe.SecretKey == "" {
		add("STRIPE_SECRET_KEY is required for BILLING_PROVIDER=stripe")
	}

	if c.Env.IsProduction() && c.LicenseKeySecret == "" {
		add("LICENSE_KEY_SECRET is required in production")
	}
	if c.TrialDuration <= 0 {
		add("TRIAL_DURATION must be positive")
	}
	if c.LedgerTTL <= 0 {
		add("LEDGER_TTL must be positive")
	}
	switch {
	case c.LedgerClaimTTL <= 0:
		add("LEDGER_CLAIM_TTL must be positive")
	case c.LedgerClaimTTL >= c.LedgerTTL:
		add("LEDGER_CLAIM_TTL must be shorter than LEDGER_TTL")
	case c.LedgerClaimTTL <= c.HTTP.WriteTimeout:
		add("LEDGER_CLAIM_TTL must exceed HTTP_WRITE_TIMEOUT")
	}
	if c.ConflictRetries < 1 {
		add("CONFLICT_RETRIES must be at least 1")
	}
	if c.UserHeader == "" {
		add("AUTH_USER_HEADER must not be empty")
	}
	if _, err := c.trialBypass(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) webhookSecret() string {
	switch c.BillingProvider {
	case providerPaddle:
		return c.Paddle.WebhookSecret
	case providerStripe:
		return c.Stripe.WebhookSecret
	default:
		return c.Signed.WebhookSecret
	}
}

func (c *Config) trialBypass() (map[uuid.UUID]struct{}, error) {
	if len(c.TrialBypassUserIDs) == 0 {
		return nil, nil
	}
	ids := make(map[uuid.UUID]struct{}, len(c.TrialBypassUserIDs))
	for _, raw := range c.TrialBypassUserIDs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: TRIAL_BYPASS_USER_IDS: %q: %w", errConfig, raw, err)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (c *Config) trialPolicy() (licensing.TrialPolicy, error) {
	bypass, err := c.trialBypass()
	if err != nil {
		return licensing.TrialPolicy{}, err
	}
	policy := licensing.DefaultTrialPolicy()
	policy.Duration = c.TrialDuration
	policy.Bypass = bypass
	return policy, nil
}
