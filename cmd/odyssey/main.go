package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-docflow/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-docflow/internal/app"
	"github.com/odyssey-erp/odyssey-docflow/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-docflow/internal/audit/http"
	"github.com/odyssey-erp/odyssey-docflow/internal/catalog"
	"github.com/odyssey-erp/odyssey-docflow/internal/observability"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-docflow/internal/platform/db"
	"github.com/odyssey-erp/odyssey-docflow/internal/rbac"
	"github.com/odyssey-erp/odyssey-docflow/internal/registry"
	"github.com/odyssey-erp/odyssey-docflow/internal/workflow"
	"github.com/odyssey-erp/odyssey-docflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	var code int
	switch command {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			code = 1
		}
	case "matrix":
		code = runMatrix(ctx, cfg, logger, args)
	case "jobs":
		code = runJobs(ctx, cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (serve | matrix | jobs)\n", command)
		code = 2
	}
	if code != 0 {
		stop()
		os.Exit(code)
	}
}

func loadMatrix(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*rbac.Matrix, error) {
	matrix := rbac.NewMatrix(rbac.NewPgStore(pool), catalog.Default(), logger)
	seeded, err := matrix.SeedDefaults(ctx, rbac.SystemActor(""))
	if err != nil {
		return nil, err
	}
	if seeded {
		logger.Info("rbac default grants seeded")
	}
	if err := matrix.Load(ctx); err != nil {
		return nil, err
	}
	return matrix, nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer closeRedis(redisClient, logger)

	metrics := observability.NewMetrics()

	matrix, err := loadMatrix(ctx, pool, logger)
	if err != nil {
		return err
	}
	evaluator := rbac.NewEvaluator(matrix, rbac.NewCapabilityCache(cfg.PermissionCacheTTL, rbac.WithObserver(metrics)))
	if err := rbac.NewInvalidationBus(redisClient, "", logger).Attach(ctx, matrix); err != nil {
		return err
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	engine := workflow.NewEngine(
		workflow.NewRepository(pool),
		registry.New(registry.Config{FinanceThreshold: cfg.PurchaseFinanceThreshold}),
		evaluator,
		logger,
		workflow.WithEventSink(jobs.NewPublisher(jobClient)),
		workflow.WithMetrics(metrics),
	)
	auditService := audit.NewService(audit.NewPgRepository(pool), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Metrics:         metrics,
		WorkflowHandler: workflow.NewHandler(logger, engine),
		RBACHandler:     rbac.NewHandler(logger, matrix, evaluator),
		AuditHandler:    audithttp.NewHandler(logger, auditService, evaluator, cfg.AuditRateLimitPerMinute),
		JobHandler:      jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func runMatrix(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	matrix, err := loadMatrix(ctx, pool, logger)
	if err != nil {
		logger.Error("load matrix", slog.Any("error", err))
		return 1
	}
	// Import commits through the store; other instances reload on the bus.
	if redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}); err == nil {
		defer closeRedis(redisClient, logger)
		bus := rbac.NewInvalidationBus(redisClient, "", logger)
		matrix.Subscribe(func(ev rbac.ChangeEvent) {
			if err := bus.Publish(ctx, ev); err != nil {
				logger.Warn("rbac invalidation publish", slog.Any("error", err))
			}
		})
	} else {
		logger.Warn("redis unavailable, peers reload on their next restart", slog.Any("error", err))
	}
	return cli.NewMatrixCLI(matrix).Run(ctx, args, cli.MatrixOptions{})
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	helper := cli.NewJobsCLI(cfg.RedisAddr)
	defer helper.Close()

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: odyssey jobs trigger <task> | inspect")
		return 2
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: task name is required")
			return 2
		}
		info, err := helper.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s as %s on %s\n", args[1], info.ID, info.Queue)
	case "inspect":
		stats, err := helper.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs inspect: %v\n", err)
			return 1
		}
		for _, s := range stats {
			fmt.Printf("%-8s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown command %q\n", args[0])
		return 2
	}
	return 0
}

func closeRedis(client *redis.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
