// Package audit records auth decisions (logins, share-code attempts) in an
// append-only log. Presentation of the log lives elsewhere.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Decision is one recorded auth event.
type Decision struct {
	Kind       string
	Subject    string
	Outcome    string
	TrustScore int
	Reasons    []string
	At         time.Time
}

// Recorder appends decisions to the log.
type Recorder interface {
	Record(ctx context.Context, d Decision)
}

// PGRecorder persists decisions in PostgreSQL. Failures are logged, never
// surfaced: auditing must not take the auth path down.
type PGRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRecorder constructs a PGRecorder.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *PGRecorder {
	return &PGRecorder{pool: pool, logger: logger}
}

// Record appends one decision.
func (r *PGRecorder) Record(ctx context.Context, d Decision) {
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_decisions (kind, subject, outcome, trust_score, reasons, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.Kind, d.Subject, d.Outcome, d.TrustScore, d.Reasons, d.At)
	if err != nil && r.logger != nil {
		r.logger.Warn("record auth decision", slog.String("kind", d.Kind), slog.Any("error", err))
	}
}

// Cleanup removes decisions older than the retention cutoff.
func (r *PGRecorder) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_decisions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Recorder = (*PGRecorder)(nil)

// NopRecorder discards decisions, for tests.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(ctx context.Context, d Decision) {}
