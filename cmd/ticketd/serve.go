package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	httptransport "github.com/unityvault/ticketflow/internal/api/http"
	"github.com/unityvault/ticketflow/internal/api/http/handlers"
	"github.com/unityvault/ticketflow/internal/auth"
	"github.com/unityvault/ticketflow/internal/command"
	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/events"
	"github.com/unityvault/ticketflow/internal/observability"
	"github.com/unityvault/ticketflow/internal/persistence"
	"github.com/unityvault/ticketflow/internal/ratelimit"
	"github.com/unityvault/ticketflow/internal/service"
	"github.com/unityvault/ticketflow/internal/worker"
)

const (
	janitorInterval = time.Minute
	shutdownTimeout = 15 * time.Second
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP command API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serveRun(cmd.Context(), cfg)
		},
	}
}

func serveRun(ctx context.Context, cfg *config.Config) error {
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("unable to set GOMAXPROCS", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, cfg.App)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()
	deps := []handlers.Dependency{store.health}

	var redisClient *redis.Client
	if cfg.RateLimit.Backend == config.RateLimitBackendRedis || cfg.Notification.PublishRedis {
		rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer rdb.Close()
		redisClient = rdb.Client
		deps = append(deps, handlers.Dependency{Name: "redis", Pinger: rdb})
	}

	var limiterStore ratelimit.Store = store.rateLimits
	if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		limiterStore = ratelimit.NewRedisStore(redisClient)
	} else {
		janitor := worker.NewRateLimitJanitor(store.rateLimits, janitorInterval, logger)
		janitor.Start(ctx)
		defer janitor.Stop()
	}
	limiter := ratelimit.NewLimiter(limiterStore, ratelimit.PoliciesFromConfig(cfg.RateLimit),
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(metrics),
		ratelimit.WithTimeout(cfg.Store.OperationTimeout),
	)

	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NotificationDependencies{
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
		Config:     cfg.Notification,
	}
	if redisClient != nil {
		notifications.Redis = redisClient
	}
	service.NewNotificationService(notifications).RegisterHandlers()

	notifier := worker.NewNotificationWorker(dispatcher, cfg.Notification.QueueSize, logger, metrics)
	notifier.Start()

	gate := auth.NewPermissionGate(store.configs)
	tickets := service.NewTicketService(service.TicketDependencies{
		ConfigRepo:       store.configs,
		TicketRepo:       store.tickets,
		Gate:             gate,
		Sink:             notifier,
		Config:           cfg.Tickets,
		OperationTimeout: cfg.Store.OperationTimeout,
		Logger:           logger,
		Metrics:          metrics,
	})
	configs := service.NewConfigService(service.ConfigDependencies{
		ConfigRepo:       store.configs,
		Gate:             gate,
		Config:           cfg.Tickets,
		OperationTimeout: cfg.Store.OperationTimeout,
		Logger:           logger,
		Metrics:          metrics,
	})
	router := command.NewRouter(limiter, tickets, configs, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps...),
		Tickets:        handlers.NewTicketsHandler(router),
		Config:         handlers.NewConfigHandler(router),
		Commands:       handlers.NewCommandsHandler(router),
		Workflow:       handlers.NewWorkflowHandler(tickets, configs),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)),
		Gatherer:       registry,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("store", cfg.Store.Driver))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		logger.Error("fiber listen", zap.Error(err))
	case <-waitForShutdown(logger):
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := notifier.Stop(shutdownCtx); err != nil {
		logger.Warn("notification worker shutdown", zap.Error(err))
	}
	return nil
}

func waitForShutdown(logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		close(done)
	}()
	return done
}
