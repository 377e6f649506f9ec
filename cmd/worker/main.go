package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foliohq/folio/internal/app"
	"github.com/foliohq/folio/internal/audit"
	"github.com/foliohq/folio/internal/sharelink"
	"github.com/foliohq/folio/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	secretRepo := sharelink.NewRepository(pool)
	recorder := audit.NewRecorder(pool, logger)

	auditTask, err := jobs.NewSweepAuditLogTask(jobs.SweepAuditPayload{RetentionDays: 90})
	if err != nil {
		logger.Error("build audit sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSweepShareSecrets, Handler: jobs.SweepShareSecretsHandler(secretRepo, logger)},
			{Type: jobs.TaskTypeSweepAuditLog, Handler: jobs.SweepAuditLogHandler(recorder, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "17 2 * * *", Task: jobs.NewSweepShareSecretsTask()},
			{Spec: "43 3 * * 0", Task: auditTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
