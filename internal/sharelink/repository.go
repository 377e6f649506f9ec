package sharelink

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists access secrets per resource slug.
type Repository interface {
	FindBySlug(ctx context.Context, slug string) (*AccessSecret, error)
	Upsert(ctx context.Context, secret AccessSecret) error
	Delete(ctx context.Context, slug string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindBySlug fetches the secret for a resource.
func (r *PGRepository) FindBySlug(ctx context.Context, slug string) (*AccessSecret, error) {
	var secret AccessSecret
	var expiresAt *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT resource_slug, code_hash, expires_at, created_at FROM access_secrets WHERE resource_slug = $1`,
		slug).Scan(&secret.ResourceSlug, &secret.CodeHash, &expiresAt, &secret.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if expiresAt != nil {
		secret.ExpiresAt = *expiresAt
	}
	return &secret, nil
}

// Upsert stores or replaces the secret for a resource. A zero expiry is
// stored as NULL so the sweep never touches non-expiring links.
func (r *PGRepository) Upsert(ctx context.Context, secret AccessSecret) error {
	var expiresAt *time.Time
	if !secret.ExpiresAt.IsZero() {
		expiresAt = &secret.ExpiresAt
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO access_secrets (resource_slug, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (resource_slug) DO UPDATE SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at`,
		secret.ResourceSlug, secret.CodeHash, expiresAt, secret.CreatedAt)
	return err
}

// Delete revokes a share link entirely.
func (r *PGRepository) Delete(ctx context.Context, slug string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM access_secrets WHERE resource_slug = $1`, slug)
	return err
}

// DeleteExpired sweeps secrets whose expiry passed before the cutoff.
func (r *PGRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_secrets WHERE expires_at IS NOT NULL AND expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
