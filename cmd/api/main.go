package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/sla-engine/internal/api/http"
	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/notify"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/queue"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/scheduler"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	clk := clock.NewSystemClock()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewTicketMessageRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	policyRepo := repository.NewSLAPolicyRepository(pool)
	slaRepo := repository.NewTicketSLARepository(pool)

	var jobQueue queue.Queue
	var healthRedis *persistence.Redis
	if redis.Ping(ctx) == nil {
		jobQueue = queue.NewRedisQueue(redis.Client, clk, cfg.Queue.Namespace)
		healthRedis = redis
	} else {
		logger.Warn("redis unavailable; using in-memory notification queue")
		jobQueue = queue.NewMemoryQueue(clk)
	}

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		MessageRepo:  messageRepo,
		CategoryRepo: categoryRepo,
		PolicyRepo:   policyRepo,
		SLARepo:      slaRepo,
		Dispatcher:   dispatcher,
		Clock:        clk,
	})
	slaService := service.NewSLAService(service.SLADependencies{
		SLARepo:    slaRepo,
		TicketRepo: ticketRepo,
		PolicyRepo: policyRepo,
		Dispatcher: dispatcher,
		Clock:      clk,
		Logger:     logger,
		Metrics:    metrics,
		Config:     cfg.SLA,
	})
	maintenanceService := service.NewMaintenanceService(service.MaintenanceDependencies{
		TicketRepo:    ticketRepo,
		CategoryRepo:  categoryRepo,
		SLARepo:       slaRepo,
		TicketService: ticketService,
		Dispatcher:    dispatcher,
		Clock:         clk,
		Logger:        logger,
		Config:        cfg.Scheduler,
	})
	reportService := service.NewReportService(ticketRepo, slaRepo, dispatcher, clk, logger)

	notificationService := service.NewNotificationService(jobQueue, logger, cfg.Queue)
	notificationService.Register(dispatcher)

	sender := notify.NewLogSender(logger)
	workerPool := worker.NewPool(worker.PoolOptions{
		Queue:        jobQueue,
		Handlers:     worker.NotificationHandlers(sender),
		Backoff:      queue.ExponentialBackoff(cfg.Queue.BackoffBase(), cfg.Queue.BackoffCap()),
		Logger:       logger,
		Metrics:      metrics,
		Size:         cfg.Queue.WorkerCount,
		PollInterval: cfg.Queue.PollInterval(),
	})

	sched := scheduler.New(logger, cfg.Scheduler.TickTimeout(),
		scheduler.Task{
			Name:     "sla-breach-scan",
			Interval: cfg.SLA.ScanInterval(),
			Run: func(ctx context.Context) error {
				_, err := slaService.EvaluatePass(ctx)
				return err
			},
		},
		scheduler.Task{
			Name:     "activity-sweep",
			Interval: cfg.Scheduler.SweepInterval(),
			Run: func(ctx context.Context) error {
				if _, err := maintenanceService.SweepIdle(ctx); err != nil {
					return err
				}
				_, err := maintenanceService.SweepStale(ctx)
				return err
			},
		},
		scheduler.Task{
			Name:     "auto-assign",
			Interval: cfg.Scheduler.AutoAssignInterval(),
			Run: func(ctx context.Context) error {
				_, err := maintenanceService.AutoAssign(ctx)
				return err
			},
		},
		scheduler.Task{
			Name:     "self-heal",
			Interval: cfg.Scheduler.SelfHealInterval(),
			Run: func(ctx context.Context) error {
				if _, err := maintenanceService.RecoverStuck(ctx); err != nil {
					return err
				}
				_, err := maintenanceService.CleanupOrphans(ctx)
				return err
			},
		},
		scheduler.Task{
			Name:     "daily-report",
			Interval: cfg.Scheduler.ReportInterval(),
			Run: func(ctx context.Context) error {
				_, err := reportService.GenerateDaily(ctx)
				return err
			},
		},
	)

	tokenManager := auth.NewTokenManager(cfg.Auth, clk)
	operatorMiddleware := auth.NewOperatorMiddleware(tokenManager)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:             handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, healthRedis),
		Auth:               handlers.NewAuthHandler(tokenManager, cfg.Auth),
		Tickets:            handlers.NewTicketsHandler(ticketService, messageRepo),
		Jobs:               handlers.NewJobsHandler(jobQueue, metrics),
		OperatorMiddleware: operatorMiddleware,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return workerPool.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})

	waitForShutdown(logger)
	cancel()
	_ = app.Shutdown()
	if err := g.Wait(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("stopped")
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
