// Package app assembles the HTTP server from the billing and usage modules.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/assistly/server/internal/module/reset"
	"github.com/assistly/server/internal/module/subscription"
	"github.com/assistly/server/internal/module/usage"
	"github.com/assistly/server/internal/module/webhook"
	"github.com/assistly/server/internal/shared/auth"
	"github.com/assistly/server/internal/shared/config"
	"github.com/assistly/server/internal/shared/metrics"
	"github.com/assistly/server/internal/shared/middleware"
)

// App represents the application.
type App struct {
	config    *config.Config
	router    *gin.Engine
	server    *http.Server
	scheduler *reset.Scheduler
	logger    *zap.Logger
}

// NewApp creates the application and its router.
func NewApp(
	cfg *config.Config,
	log *zap.Logger,
	reg *prometheus.Registry,
	m *metrics.Metrics,
	jwt *auth.JWTManager,
	usageHandler *usage.Handler,
	subscriptionHandler *subscription.Handler,
	webhookHandler *webhook.Handler,
	resetHandler *reset.Handler,
	scheduler *reset.Scheduler,
) *App {
	a := &App{
		config:    cfg,
		scheduler: scheduler,
		logger:    log,
	}
	a.router = a.setupRouter(reg, m)

	api := a.router.Group("/api")

	// Provider callbacks and redirects carry no user token.
	subscriptionHandler.RegisterRedirectRoutes(api)
	webhookHandler.RegisterRoutes(api)

	cronRoutes := api.Group("")
	cronRoutes.Use(middleware.CronToken(cfg.Cron.SecretToken))
	resetHandler.RegisterRoutes(cronRoutes)

	authed := api.Group("")
	authed.Use(middleware.RequireAuth(jwt))
	usageHandler.RegisterRoutes(authed)
	subscriptionHandler.RegisterRoutes(authed)

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      a.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return a
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter(reg *prometheus.Registry, m *metrics.Metrics) *gin.Engine {
	switch a.config.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(a.config.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID(a.logger))
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(a.config.Server.AllowedOrigins))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if a.config.Metrics.Enabled {
		r.GET(a.config.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	return r
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Run starts the scheduler and serves HTTP until Shutdown is called.
func (a *App) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start()
	}
	a.logger.Info("starting server", zap.String("address", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight work to finish.
func (a *App) Shutdown(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
