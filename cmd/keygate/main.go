// Command keygate runs the license and subscription lifecycle service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	licensingmod "github.com/dmitrymomot/keygate/modules/licensing"
	"github.com/dmitrymomot/keygate/pkg/clientip"
	"github.com/dmitrymomot/keygate/pkg/config"
	"github.com/dmitrymomot/keygate/pkg/email"
	"github.com/dmitrymomot/keygate/pkg/environment"
	"github.com/dmitrymomot/keygate/pkg/httpserver"
	"github.com/dmitrymomot/keygate/pkg/licensekey"
	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/licensing/mongostore"
	"github.com/dmitrymomot/keygate/pkg/licensing/pgstore"
	"github.com/dmitrymomot/keygate/pkg/licensing/redisledger"
	"github.com/dmitrymomot/keygate/pkg/logger"
	"github.com/dmitrymomot/keygate/pkg/mongo"
	"github.com/dmitrymomot/keygate/pkg/notifications"
	"github.com/dmitrymomot/keygate/pkg/pg"
	"github.com/dmitrymomot/keygate/pkg/ratelimiter"
	"github.com/dmitrymomot/keygate/pkg/redis"
	"github.com/dmitrymomot/keygate/pkg/requestid"
	"github.com/dmitrymomot/keygate/pkg/webhook"
)

const healthTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := run(ctx)
	stop()
	if err != nil {
		slog.Error("keygate stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, "keygate"),
		logger.WithConfig(cfg.Log),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
		),
	)
	logger.SetAsDefault(log)

	checks := httpserver.HealthChecks{}

	store, closeStore, err := openStore(ctx, &cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	ledger, limits, closeRedis, err := openRedis(ctx, &cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeRedis()

	provider, err := newProvider(&cfg)
	if err != nil {
		return err
	}

	keys, err := newKeyGenerator(&cfg, log)
	if err != nil {
		return err
	}

	catalog := licensing.DefaultCatalog()
	if cfg.PlanCatalogPath != "" {
		if catalog, err = licensing.LoadCatalogFile(cfg.PlanCatalogPath); err != nil {
			return err
		}
	}

	trials, err := cfg.trialPolicy()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	var metrics *licensing.Metrics
	if cfg.MetricsEnabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = licensing.NewMetrics(registry)
	}

	dispatcher, err := newDispatcher(&cfg, log)
	if err != nil {
		return err
	}

	svc := licensing.NewService(store, provider,
		licensing.WithNotifier(dispatcher),
		licensing.WithCatalog(catalog),
		licensing.WithKeyGenerator(keys),
		licensing.WithTrialPolicy(trials),
		licensing.WithLogger(log),
		licensing.WithMetrics(metrics),
		licensing.WithMaxAttempts(cfg.ConflictRetries),
	)

	ingress, err := licensing.NewIngress(provider, svc,
		licensing.WithLedger(ledger, cfg.LedgerTTL),
		licensing.WithClaimTTL(cfg.LedgerClaimTTL),
		licensing.WithRequireSigning(cfg.Env.IsProduction()),
		licensing.WithIngressLogger(log),
		licensing.WithIngressMetrics(metrics),
	)
	if err != nil {
		return err
	}

	bucket, err := ratelimiter.NewBucket(limits, cfg.RateLimit)
	if err != nil {
		return err
	}
	byClient := func(r *http.Request) string { return clientip.FromContext(r.Context()) }

	ips := clientip.Resolver{}
	if cfg.TrustProxyHeaders {
		ips = clientip.Trusted()
	}

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		environment.Middleware(cfg.Env),
		clientip.Middleware(ips),
		middleware.Recoverer,
	)
	r.Get("/health", httpserver.HealthCheckHandler(log, healthTimeout, checks))
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	r.Mount("/v1", licensingmod.Router(licensingmod.RouterOptions{
		Service:          svc,
		Webhooks:         ingress,
		ResolveUser:      licensingmod.HeaderUserResolver(cfg.UserHeader),
		Logger:           log,
		VerifyMiddleware: []func(http.Handler) http.Handler{ratelimiter.Middleware(bucket, byClient, log)},
	}))

	log.InfoContext(ctx, "keygate configured",
		slog.String("store", cfg.StoreDriver),
		logger.Provider(provider.Name()),
		slog.Bool("metrics", cfg.MetricsEnabled),
	)

	srv := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithStopHook(dispatcher.Close),
	)
	return srv.Run(ctx, r)
}

func openStore(ctx context.Context, cfg *Config, log *slog.Logger, checks httpserver.HealthChecks) (licensing.Store, func(), error) {
	switch cfg.StoreDriver {
	case storePostgres:
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg.Postgres, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		checks["postgres"] = pg.Healthcheck(pool)
		return pgstore.New(pool), pool.Close, nil

	case storeMongo:
		client, err := mongo.New(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		disconnect := func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.ConnectTimeout)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				log.Error("mongo disconnect failed", logger.Error(err))
			}
		}
		store := mongostore.New(client.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, err
		}
		checks["mongo"] = mongo.Healthcheck(client)
		return store, disconnect, nil

	default:
		log.Warn("using the in-memory store; data is lost on restart")
		return licensing.NewMemoryStore(), func() {}, nil
	}
}

// openRedis returns the webhook ledger and the rate limit store. Both fall
// back to process memory when REDIS_URL is unset.
func openRedis(ctx context.Context, cfg *Config, log *slog.Logger, checks httpserver.HealthChecks) (licensing.Ledger, ratelimiter.Store, func(), error) {
	if cfg.Redis.ConnectionURL == "" {
		log.Warn("REDIS_URL is not set; webhook ledger and rate limits are per process")
		limits := ratelimiter.NewMemoryStore()
		return licensing.NewMemoryLedger(), limits, limits.Close, nil
	}

	client, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	checks["redis"] = redis.Healthcheck(client)
	closeClient := func() {
		if err := client.Close(); err != nil {
			log.Error("redis close failed", logger.Error(err))
		}
	}
	return redisledger.New(client, redisledger.WithPrefix(cfg.Redis.KeyPrefix)),
		ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix(cfg.Redis.KeyPrefix+":ratelimit")),
		closeClient,
		nil
}

func newProvider(cfg *Config) (licensing.Provider, error) {
	switch cfg.BillingProvider {
	case providerPaddle:
		return licensing.NewPaddleProvider(cfg.Paddle)
	case providerStripe:
		return licensing.NewStripeProvider(cfg.Stripe)
	case providerSigned:
		return licensing.NewSignedProvider(cfg.Signed, webhook.NewSender()), nil
	}
	return nil, fmt.Errorf("%w: unknown BILLING_PROVIDER %q", errConfig, cfg.BillingProvider)
}

func newKeyGenerator(cfg *Config, log *slog.Logger) (licensing.KeyGenerator, error) {
	if cfg.LicenseKeySecret == "" {
		log.Warn("LICENSE_KEY_SECRET is not set; license keys are random and not validated offline")
		return licensing.KeyGeneratorFunc(licensekey.NewRandom().Generate), nil
	}
	return licensekey.New([]byte(cfg.LicenseKeySecret))
}

func newDispatcher(cfg *Config, log *slog.Logger) (*notifications.Dispatcher, error) {
	deliverers := []notifications.Deliverer{notifications.NewLogDeliverer(log)}

	if cfg.Email.Enabled() && cfg.Directory.BaseURL != "" {
		sender, err := email.NewSender(cfg.Email)
		if err != nil {
			return nil, err
		}
		directory, err := notifications.NewDirectoryResolver(cfg.Directory)
		if err != nil {
			return nil, err
		}
		deliverers = append(deliverers,
			notifications.NewEmailDeliverer(sender, directory, notifications.WithActionURL(cfg.AccountURL)))
	}

	if cfg.NotifyWebhookURL != "" {
		deliverers = append(deliverers,
			notifications.NewWebhookDeliverer(webhook.NewSender(), cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret))
	}

	return notifications.NewDispatcher(deliverers,
		notifications.WithLogger(log),
		notifications.WithAsync(cfg.NotifyTimeout),
	), nil
}
