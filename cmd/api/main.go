package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-sync/internal/api/http"
	"github.com/spec-kit/ticket-sync/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/freshdesk"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/persistence"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/service"
	"github.com/spec-kit/ticket-sync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Store
	checks := []handlers.DependencyCheck{}
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
		checks = append(checks, handlers.DependencyCheck{Name: "postgres", Pinger: pg})
	} else {
		store = repository.NewMemoryStore()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var publisher events.Publisher
	if redis.Enabled() {
		publisher = events.NewRedisStreamPublisher(redis.Client, cfg.Broker.StreamPrefix, cfg.Broker.StreamMaxLen, cfg.Broker.PublishTimeout())
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Pinger: redis})
	} else {
		publisher = events.NewInMemoryPublisher()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewTaskDispatcher(publisher, logger, metrics)
	freshdeskClient := freshdesk.NewClient(cfg.Freshdesk, logger)

	syncLogs := service.NewSyncLogService(store.SyncLogs(), logger)
	if _, err := syncLogs.RecoverInterrupted(ctx); err != nil {
		logger.Fatal("failed to recover interrupted sync runs", zap.Error(err))
	}

	syncConfig := service.NewSyncConfigService(service.SyncConfigDependencies{
		Settings:     store.SyncSettings(),
		Defaults:     cfg.Sync,
		Logger:       logger,
		ValidateCron: worker.ValidateCron,
	})
	if err := syncConfig.InitDefaults(ctx); err != nil {
		logger.Fatal("failed to init sync settings", zap.Error(err))
	}

	engine := service.NewSyncEngine(service.SyncDependencies{
		Store:               store,
		Source:              freshdeskClient,
		Dispatcher:          dispatcher,
		Lock:                service.NewSyncLock(),
		Logs:                syncLogs,
		Settings:            syncConfig,
		Logger:              logger,
		Metrics:             metrics,
		ConversationWorkers: cfg.Sync.ConversationWorkers,
		FetchTimeout:        cfg.Sync.RunTimeout(),
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Replies:    freshdeskClient,
		Logger:     logger,
	})

	scheduler := worker.NewSyncScheduler(engine, syncConfig,
		worker.WithLogger(logger),
		worker.WithLocation(cfg.Sync.Location()),
	)
	syncConfig.OnCronChange(scheduler.Reschedule)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("failed to start sync scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks...),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Sync:           handlers.NewSyncHandler(engine, syncConfig),
		Metrics:        metrics,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("addr", cfg.App.Addr()))

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
