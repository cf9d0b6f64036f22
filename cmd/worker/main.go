package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/autoparts-erp/autoparts-erp/internal/app"
	jobmetrics "github.com/autoparts-erp/autoparts-erp/internal/jobs"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/cache"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/db"
	"github.com/autoparts-erp/autoparts-erp/internal/platform/recordstore"
	"github.com/autoparts-erp/autoparts-erp/internal/receivables"
	"github.com/autoparts-erp/autoparts-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	registry, err := cfg.Registry()
	if err != nil {
		logger.Error("load stores", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	receivablesCache := receivables.NewCache(redisClient, cfg.CacheTTL)
	receivablesService := receivables.NewService(recordstore.New(pool), receivablesCache, receivables.Options{
		BucketMode: cfg.BucketMode(),
		Logger:     logger,
	})

	warmupJob := jobs.NewWarmupJob(receivablesService, registry, logger, jobmetrics.NewMetrics(nil))
	warmupTask, err := jobs.NewWarmupTask(jobs.WarmupPayload{Months: cfg.WarmupMonths})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	location := registry.All()[0].Loc()
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.Redis().Asynq(),
		Logger:    logger,
		Location:  location,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReceivablesWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
