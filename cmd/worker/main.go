package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/novahr/nova-authz/internal/app"
	"github.com/novahr/nova-authz/internal/authz"
	"github.com/novahr/nova-authz/internal/directory"
	"github.com/novahr/nova-authz/internal/grants"
	"github.com/novahr/nova-authz/internal/platform/cache"
	"github.com/novahr/nova-authz/internal/platform/db"
	"github.com/novahr/nova-authz/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var manifestCache authz.CacheStore
	if !cfg.CacheDisabled {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, warmup will recompute without caching", slog.Any("error", err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
			manifestCache = authz.NewRedisCache(redisClient)
		}
	}

	directoryRepo := directory.NewRepository(pool)
	grantsRepo := grants.NewRepository(pool)

	engine, err := authz.NewEngine(authz.EngineConfig{
		Identity:    directoryRepo,
		Grants:      grantsRepo,
		Cache:       manifestCache,
		Logger:      logger,
		ManifestTTL: cfg.ManifestTTL,
	})
	if err != nil {
		logger.Error("init engine", slog.Any("error", err))
		os.Exit(1)
	}

	warmupJob := jobs.NewManifestWarmupJob(engine, directoryRepo, logger, nil, cfg.WarmupConcurrency)

	warmupTask, err := jobs.NewManifestWarmupTask(jobs.ManifestWarmupPayload{Scope: "active"})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskManifestWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
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
