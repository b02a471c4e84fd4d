package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-docflow/internal/app"
	"github.com/odyssey-erp/odyssey-docflow/internal/audit"
	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/db"
	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
	"github.com/odyssey-erp/odyssey-docflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := rbac.NewPgStore(pool)
	matrix := rbac.NewMatrix(store, catalog.Default(), logger)
	if err := matrix.Load(ctx); err != nil {
		return err
	}
	// Keeps the worker copy current so snapshots reflect committed changes.
	if err := rbac.NewInvalidationBus(redisClient, "", logger).Attach(ctx, matrix); err != nil {
		return err
	}
	auditService := audit.NewService(audit.NewPgRepository(pool), logger)

	transitionJob := jobs.NewTransitionJob(logger, nil, nil)
	snapshotJob := jobs.NewMatrixSnapshotJob(matrix, store, logger, nil)
	verifyJob := jobs.NewAuditVerifyJob(auditService, logger, nil)

	snapshotTask, err := jobs.NewMatrixSnapshotTask(cfg.MatrixSnapshotKeep)
	if err != nil {
		return err
	}
	verifyTask, err := jobs.NewAuditVerifyTask(0, 0)
	if err != nil {
		return err
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.AsynqConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskWorkflowTransition, Handler: transitionJob.Handle},
			{Type: jobs.TaskMatrixSnapshot, Handler: snapshotJob.Handle},
			{Type: jobs.TaskAuditVerify, Handler: verifyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.MatrixSnapshotCron, Task: snapshotTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.AuditVerifyCron, Task: verifyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		return err
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
