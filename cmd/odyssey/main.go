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

	"github.com/odyssey-erp/odyssey-authz/internal/app"
	"github.com/odyssey-erp/odyssey-authz/internal/approval"
	"github.com/odyssey-erp/odyssey-authz/internal/auth"
	"github.com/odyssey-erp/odyssey-authz/internal/gate"
	"github.com/odyssey-erp/odyssey-authz/internal/observability"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/roles"
	"github.com/odyssey-erp/odyssey-authz/internal/sections"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
	"github.com/odyssey-erp/odyssey-authz/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	matrix := rbac.NewMatrix(roles.Default(), rbac.DefaultModules())
	if err := matrix.MustComplete(); err != nil {
		logger.Error("permission matrix incomplete", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	rbacService := rbac.NewService(matrix, rbac.NewRepository(dbpool), auditLogger, logger)
	if err := rbacService.Reload(ctx); err != nil {
		logger.Error("load permission overrides", slog.Any("error", err))
		os.Exit(1)
	}

	authzGate := gate.New(matrix, logger, gate.Options{
		PanicOnInvariant: cfg.PanicOnInvariant(),
		Decisions:        metrics,
	})
	rbacMiddleware := rbac.Middleware{Authorizer: authzGate, Logger: logger}

	sectionsService := sections.NewService(roles.Default(), sections.NewRedisStore(redisClient), auditLogger, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	approvalService := approval.NewService(
		approval.NewRepository(dbpool),
		authzGate,
		approvalRecorder,
		idempotencyStore,
		logger,
		approval.ServiceConfig{
			Locker:   approval.NewRedisLocker(redisClient, cfg.ApprovalLockTTL),
			Notifier: jobClient,
			Metrics:  metrics,
		},
	)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             tokens,
		AuthHandler:        auth.NewHandler(logger, authService),
		PermissionsHandler: rbac.NewHandler(logger, rbacService, rbacMiddleware),
		SectionsHandler:    sections.NewHandler(logger, sectionsService, rbacMiddleware),
		RecordsHandler:     gate.NewHandler(authzGate),
		ApprovalHandler:    approval.NewHandler(logger, approvalService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
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
