package app

import (
	"os"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/assistly/server/internal/module/account"
	"github.com/assistly/server/internal/module/billing/provider"
	"github.com/assistly/server/internal/module/reset"
	"github.com/assistly/server/internal/module/subscription"
	"github.com/assistly/server/internal/module/usage"
	"github.com/assistly/server/internal/module/webhook"
	"github.com/assistly/server/internal/shared/auth"
	"github.com/assistly/server/internal/shared/cache"
	"github.com/assistly/server/internal/shared/config"
	"github.com/assistly/server/internal/shared/database"
	"github.com/assistly/server/internal/shared/logger"
	"github.com/assistly/server/internal/shared/metrics"
	"github.com/assistly/server/internal/shared/retry"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideDatabase,
	ProvideRedisClient,
	ProvideRetryPolicy,
	ProvideJWTManager,
)

// ProvideLogger creates the root logger.
func ProvideLogger(cfg *config.Config) *zap.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideRegistry creates the Prometheus registry with the runtime collectors.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the application metrics.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(cfg.Metrics.Namespace, reg)
}

// ProvideDatabase opens the database and migrates it when configured to.
func ProvideDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			log.Warn("close database", zap.Error(err))
		}
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, Models()...); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	return db, cleanup, nil
}

// Models returns every persisted model.
func Models() []any {
	return []any{&account.Account{}, &webhook.Event{}}
}

// ProvideRedisClient connects to Redis. It returns nil when Redis is disabled or
// unreachable; dependants fall back to their database or no-op variants.
func ProvideRedisClient(cfg *config.Config, log *zap.Logger) (goredis.UniversalClient, func()) {
	if !cfg.Redis.Enabled {
		return nil, func() {}
	}
	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, continuing without it", zap.Error(err))
		return nil, func() {}
	}
	return client, func() { _ = cache.Close(client) }
}

// ProvideRetryPolicy builds the shared retry policy.
func ProvideRetryPolicy(cfg *config.Config) retry.Policy {
	return provider.RetryPolicy(cfg.Billing.Retry)
}

// ProvideJWTManager creates the token validator.
func ProvideJWTManager(cfg *config.Config) *auth.JWTManager {
	return auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
}

// ===== Domain Providers =====

// DomainSet provides the billing and usage components.
var DomainSet = wire.NewSet(
	account.NewRepository,
	ProvideGateway,
	ProvideLifecycle,
	wire.Bind(new(subscription.LifecycleInterface), new(*subscription.Lifecycle)),
	ProvideUsageService,
	wire.Bind(new(usage.ServiceInterface), new(*usage.Service)),
	ProvideSubscriptionService,
	wire.Bind(new(subscription.ServiceInterface), new(*subscription.Service)),
	ProvideDedupeStore,
	ProvideDispatcher,
	wire.Bind(new(webhook.DispatcherInterface), new(*webhook.Dispatcher)),
	ProvideResetLocker,
	ProvideResetRunner,
)

// ProvideGateway creates the configured billing gateway.
func ProvideGateway(cfg *config.Config, m *metrics.Metrics, log *zap.Logger) (provider.Gateway, error) {
	return provider.New(cfg, m, log)
}

// ProvideLifecycle creates the lifecycle controller.
func ProvideLifecycle(repo account.Repository, policy retry.Policy, m *metrics.Metrics, log *zap.Logger) *subscription.Lifecycle {
	return subscription.NewLifecycle(repo, policy, m, log.Named("lifecycle"))
}

// ProvideUsageService creates the usage service.
func ProvideUsageService(cfg *config.Config, repo account.Repository, policy retry.Policy, m *metrics.Metrics, log *zap.Logger) *usage.Service {
	return usage.NewService(repo, usage.Config{
		DailyLimit:   cfg.Billing.FreeDailyLimit,
		ToolkitsFree: cfg.Billing.ToolkitsFree,
		ToolkitsPaid: cfg.Billing.ToolkitsPaid,
		UpgradeURL:   cfg.Billing.UpgradeURL,
		Retry:        policy,
	}, m, log.Named("usage"))
}

// ProvideSubscriptionService creates the subscription service.
func ProvideSubscriptionService(
	cfg *config.Config,
	repo account.Repository,
	gateway provider.Gateway,
	lifecycle subscription.LifecycleInterface,
	usageService *usage.Service,
	policy retry.Policy,
	log *zap.Logger,
) *subscription.Service {
	return subscription.NewService(repo, gateway, lifecycle, usageService.Accountant(), subscription.Config{
		PlanID:    cfg.Billing.PlanID,
		ReturnURL: cfg.Billing.ReturnURL(),
		CancelURL: cfg.Billing.CancelURL(),
		BrandName: cfg.PayPal.BrandName,
		Retry:     policy,
	}, log.Named("subscription"))
}

// ProvideDedupeStore picks Redis when available and the webhook_events table otherwise.
func ProvideDedupeStore(cfg *config.Config, db *gorm.DB, client goredis.UniversalClient) webhook.Store {
	if client != nil {
		return webhook.NewRedisStore(client, cfg.Billing.WebhookDedupe)
	}
	return webhook.NewGormStore(db)
}

// ProvideDispatcher creates the webhook dispatcher.
func ProvideDispatcher(
	gateway provider.Gateway,
	repo account.Repository,
	lifecycle subscription.LifecycleInterface,
	store webhook.Store,
	policy retry.Policy,
	m *metrics.Metrics,
	log *zap.Logger,
) *webhook.Dispatcher {
	return webhook.NewDispatcher(gateway, repo, lifecycle, store, policy, m, log.Named("webhook"))
}

// ProvideResetLocker creates the per-day lock of the scheduled reset.
func ProvideResetLocker(client goredis.UniversalClient) reset.Locker {
	if client == nil {
		return reset.NopLocker{}
	}
	host, _ := os.Hostname()
	return reset.NewRedisLocker(client, host)
}

// ProvideResetRunner creates the daily reset runner. It also purges the
// webhook_events table past the dedupe window.
func ProvideResetRunner(cfg *config.Config, lifecycle *subscription.Lifecycle, db *gorm.DB, lock reset.Locker, m *metrics.Metrics, log *zap.Logger) *reset.Runner {
	return reset.NewRunner(lifecycle, webhook.NewGormStore(db), lock, cfg.Billing.WebhookDedupe, m, log.Named("reset"))
}

// ===== HTTP Providers =====

// HTTPSet provides the HTTP handlers and the application.
var HTTPSet = wire.NewSet(
	usage.NewHandler,
	ProvideSubscriptionHandler,
	webhook.NewHandler,
	reset.NewHandler,
	ProvideScheduler,
	NewApp,
)

// ProvideSubscriptionHandler creates the subscription handler.
func ProvideSubscriptionHandler(cfg *config.Config, service subscription.ServiceInterface) *subscription.Handler {
	return subscription.NewHandler(service, cfg.Billing.AppURL)
}

// ProvideScheduler creates the in-process reset scheduler, or nil when disabled.
func ProvideScheduler(cfg *config.Config, runner *reset.Runner, log *zap.Logger) (*reset.Scheduler, error) {
	if !cfg.Cron.Enabled {
		return nil, nil
	}
	return reset.NewScheduler(runner, cfg.Cron.Schedule, log.Named("scheduler"))
}

// AppSet is the full server graph.
var AppSet = wire.NewSet(InfraSet, DomainSet, HTTPSet)

// OperatorSet is the graph used by the operator CLI.
var OperatorSet = wire.NewSet(InfraSet, DomainSet)
