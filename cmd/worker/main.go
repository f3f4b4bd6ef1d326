package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/stocklot-erp/stocklot/internal/app"
	"github.com/stocklot-erp/stocklot/internal/forecast"
	"github.com/stocklot-erp/stocklot/internal/inventory"
	"github.com/stocklot-erp/stocklot/internal/platform/cache"
	"github.com/stocklot-erp/stocklot/internal/platform/db"
	"github.com/stocklot-erp/stocklot/internal/shared"
	"github.com/stocklot-erp/stocklot/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{
		MaxConns:        cfg.PGMaxConns,
		MaxConnLifetime: cfg.PGConnLifetime,
	})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	mailer, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailer.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	// The digest needs balance reads only, so the inventory service runs
	// without alerting or audit wiring here.
	inventoryService := inventory.NewService(
		inventory.NewRepository(pool), nil, nil, nil, nil, nil, nil, logger,
		inventory.ServiceConfig{},
	)
	forecastCache := forecast.NewCache(redisClient, cfg.ForecastCacheTTL)
	forecastService := forecast.NewService(
		forecast.NewRepository(pool),
		inventoryService,
		forecastCache,
		logger,
		forecast.DefaultConfig(cfg.ForecastLookbackDays, cfg.ForecastSafetyDays),
	)

	defectJob := &jobs.DefectAlertJob{Logger: logger, Mailer: mailer, Recipient: cfg.AlertRecipient}
	digestJob := jobs.NewReorderDigestJob(pool, forecastService, logger, mailer, cfg.AlertRecipient)
	cleanupJob := &jobs.IdempotencyCleanupJob{Store: shared.NewIdempotencyStore(pool), Logger: logger}

	digestTask, err := jobs.NewReorderDigestTask(jobs.ReorderDigestPayload{})
	if err != nil {
		logger.Error("build digest task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeDefectAlert, Handler: defectJob.Handle},
			{Type: jobs.TaskTypeReorderDigest, Handler: digestJob.Handle},
			{Type: jobs.TaskTypeIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: digestTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
