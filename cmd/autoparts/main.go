package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/autoparts-erp/autoparts-erp/cmd/autoparts/cli"
	"github.com/autoparts-erp/autoparts-erp/internal/app"
	"github.com/autoparts-erp/autoparts-erp/internal/closing"
	"github.com/autoparts-erp/autoparts-erp/internal/observability"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/cache"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/db"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/recordstore"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/supersede"
	"github.com/autoparts-erp/autoparts-erp/internal/receivables"
	"github.com/autoparts-erp/autoparts-erp/internal/shared"
	"github.com/autoparts-erp/autoparts-erp/internal/stock"
	"github.com/autoparts-erp/autoparts-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if len(os.Args) > 1 {
		os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, stop); err != nil {
		slog.Default().Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("load stores: %w", err)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	store := recordstore.New(dbpool)
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	receivablesCache := receivables.NewCache(redisClient, cfg.CacheTTL)
	if err := receivablesCache.ListenForInvalidation(ctx, receivables.BumpChannel); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}
	receivablesService := receivables.NewService(store, receivablesCache, receivables.Options{
		BucketMode: cfg.BucketMode(),
		Logger:     logger,
		Metrics:    metrics,
	})
	mutationService := receivables.NewMutationService(store, registry, receivablesCache, auditLogger, idempotencyStore, logger)
	receivablesHandler := receivables.NewHandler(logger, receivablesService, mutationService, registry, supersede.NewGroup())

	closingService := closing.NewService(store, logger)
	closingHandler := closing.NewHandler(logger, closingService, registry)

	stockService := stock.NewService(store, registry, auditLogger, receivablesCache, stock.Options{
		AllowNegative: cfg.AllowNegativeStock,
		Logger:        logger,
	})
	stockHandler := stock.NewHandler(logger, stockService)

	inspector := asynq.NewInspector(cfg.Redis().Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	go cleanupIdempotency(ctx, idempotencyStore, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Registry:           registry,
		ReceivablesHandler: receivablesHandler,
		ClosingHandler:     closingHandler,
		StockHandler:       stockHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Any("stores", registry.Codes()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

// cleanupIdempotency purges expired idempotency keys hourly.
func cleanupIdempotency(ctx context.Context, store *shared.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx, 24*time.Hour); err != nil {
				logger.Warn("idempotency cleanup", slog.Any("error", err))
			}
		}
	}
}
