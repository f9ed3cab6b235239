package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/storefront/internal/app"
	"github.com/odyssey-erp/storefront/internal/auth"
	"github.com/odyssey-erp/storefront/internal/platform/db"
	"github.com/odyssey-erp/storefront/internal/shared"
	"github.com/odyssey-erp/storefront/jobs"
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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	authService := auth.NewService(auth.NewRepository(pool))

	auditJob := jobs.NewPruneJob(jobs.TaskAuditPrune, auditLogger.Prune, cfg.AuditRetention, logger, nil)
	sessionsJob := jobs.NewPruneJob(jobs.TaskSessionsPrune, func(ctx context.Context, _ time.Duration) (int64, error) {
		return authService.PruneExpiredSessions(ctx, time.Now())
	}, cfg.SessionTTL, logger, nil)
	idempotencyJob := jobs.NewPruneJob(jobs.TaskIdempotencyPrune, idempotencyStore.Cleanup, cfg.IdempotencyRetention, logger, nil)

	cron := make([]jobs.CronRegistration, 0, 3)
	for _, entry := range []struct {
		spec      string
		task      string
		retention time.Duration
	}{
		{"15 3 * * *", jobs.TaskAuditPrune, cfg.AuditRetention},
		{"*/30 * * * *", jobs.TaskSessionsPrune, 0},
		{"45 3 * * *", jobs.TaskIdempotencyPrune, cfg.IdempotencyRetention},
	} {
		task, err := jobs.NewPruneTask(entry.task, entry.retention)
		if err != nil {
			logger.Error("build prune task", slog.String("task", entry.task), slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: entry.spec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditPrune, Handler: auditJob.Handle},
			{Type: jobs.TaskSessionsPrune, Handler: sessionsJob.Handle},
			{Type: jobs.TaskIdempotencyPrune, Handler: idempotencyJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Duration("audit_retention", cfg.AuditRetention))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
