package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/stocklot-erp/stocklot/internal/app"
	"github.com/stocklot-erp/stocklot/internal/bom"
	"github.com/stocklot-erp/stocklot/internal/forecast"
	"github.com/stocklot-erp/stocklot/internal/inventory"
	"github.com/stocklot-erp/stocklot/internal/masterdata/companies"
	"github.com/stocklot-erp/stocklot/internal/masterdata/components"
	"github.com/stocklot-erp/stocklot/internal/masterdata/locations"
	"github.com/stocklot-erp/stocklot/internal/observability"
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

	alertClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := alertClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	companyService := companies.NewService(companies.NewRepository(pool))
	componentService := components.NewService(components.NewRepository(pool))
	locationService := locations.NewService(locations.NewRepository(pool))
	bomService := bom.NewService(bom.NewRepository(pool))

	inventoryService := inventory.NewService(
		inventory.NewRepository(pool),
		companyService,
		bomService,
		alertClient,
		auditLogger,
		idempotency,
		metrics,
		logger,
		inventory.ServiceConfig{DefectRateThreshold: cfg.DefectRateThreshold},
	)

	forecastCache := forecast.NewCache(redisClient, cfg.ForecastCacheTTL)
	forecastService := forecast.NewService(
		forecast.NewRepository(pool),
		inventoryService,
		forecastCache,
		logger,
		forecast.DefaultConfig(cfg.ForecastLookbackDays, cfg.ForecastSafetyDays),
	)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             pool,
		CompanyHandler:   companies.NewHandler(logger, companyService),
		ComponentHandler: components.NewHandler(logger, componentService),
		LocationHandler:  locations.NewHandler(logger, locationService),
		BOMHandler:       bom.NewHandler(logger, bomService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		ForecastHandler:  forecast.NewHandler(logger, forecastService),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
