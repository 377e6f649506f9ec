package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/foliohq/folio/internal/audit"
	"github.com/foliohq/folio/internal/sharelink"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSweepShareSecrets purges share secrets past their expiry.
	TaskTypeSweepShareSecrets = "sharelink:sweep"
	// TaskTypeSweepAuditLog trims old auth-decision rows.
	TaskTypeSweepAuditLog = "audit:sweep"
)

// SweepAuditPayload configures the audit-log retention sweep.
type SweepAuditPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewSweepShareSecretsTask constructs the share-secret sweep task.
func NewSweepShareSecretsTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweepShareSecrets, nil)
}

// NewSweepAuditLogTask constructs the audit retention task.
func NewSweepAuditLogTask(payload SweepAuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSweepAuditLog, data), nil
}

// SweepShareSecretsHandler deletes expired share secrets.
func SweepShareSecretsHandler(repo sharelink.Repository, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := repo.DeleteExpired(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if n > 0 && logger != nil {
			logger.Info("swept expired share secrets", slog.Int64("count", n))
		}
		return nil
	}
}

// SweepAuditLogHandler trims auth decisions past retention.
func SweepAuditLogHandler(recorder *audit.PGRecorder, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepAuditPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.RetentionDays <= 0 {
			payload.RetentionDays = 90
		}
		n, err := recorder.Cleanup(ctx, time.Duration(payload.RetentionDays)*24*time.Hour)
		if err != nil {
			return err
		}
		if n > 0 && logger != nil {
			logger.Info("swept auth decisions", slog.Int64("count", n))
		}
		return nil
	}
}
