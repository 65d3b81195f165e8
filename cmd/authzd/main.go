package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/novahr/nova-authz/internal/app"
	"github.com/novahr/nova-authz/internal/auth"
	"github.com/novahr/nova-authz/internal/authz"
	"github.com/novahr/nova-authz/internal/directory"
	"github.com/novahr/nova-authz/internal/grants"
	"github.com/novahr/nova-authz/internal/observability"
	"github.com/novahr/nova-authz/internal/platform/cache"
	"github.com/novahr/nova-authz/internal/platform/db"
	"github.com/novahr/nova-authz/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
			logger.Warn("redis unavailable, continuing without manifest cache", slog.Any("error", err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
			manifestCache = authz.NewRedisCache(redisClient)
		}
	}

	metrics := observability.NewMetrics()

	directoryRepo := directory.NewRepository(pool)
	grantsRepo := grants.NewRepository(pool)

	engine, err := authz.NewEngine(authz.EngineConfig{
		Identity:    directoryRepo,
		Grants:      grantsRepo,
		Cache:       manifestCache,
		Logger:      logger,
		Metrics:     metrics,
		ManifestTTL: cfg.ManifestTTL,
	})
	if err != nil {
		logger.Error("init engine", slog.Any("error", err))
		os.Exit(1)
	}

	gate := authz.Middleware{Authorizer: engine, Logger: logger}

	directoryService := directory.NewService(directoryRepo)
	grantsService := grants.NewService(grantsRepo, engine, logger)

	authzHandler := authz.NewHandler(logger, engine, gate)
	grantsHandler := grants.NewHandler(logger, grantsService, gate)
	directoryHandler := directory.NewHandler(logger, directoryService, gate)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Auth:             auth.Middleware{Verifier: auth.NewVerifier(cfg.JWTSecret), Logger: logger},
		AuthzHandler:     authzHandler,
		GrantsHandler:    grantsHandler,
		DirectoryHandler: directoryHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
}
