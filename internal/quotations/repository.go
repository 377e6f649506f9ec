package quotations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foliohq/folio/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const quotationColumns = `id, slug, client_name, title, currency, total, status, created_at, updated_at`

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.Slug, &q.ClientName, &q.Title, &q.Currency, &q.Total, &q.Status, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

// List returns all quotations, newest first.
func (r *Repository) List(ctx context.Context) ([]Quotation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+quotationColumns+` FROM quotations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// FindBySlug fetches one quotation by its share slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*Quotation, error) {
	return scanQuotation(r.pool.QueryRow(ctx,
		`SELECT `+quotationColumns+` FROM quotations WHERE slug = $1`, slug))
}

// Create inserts a quotation.
func (r *Repository) Create(ctx context.Context, q Quotation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO quotations (id, slug, client_name, title, currency, total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		q.ID, q.Slug, q.ClientName, q.Title, q.Currency, q.Total, q.Status, q.CreatedAt, q.UpdatedAt)
	return err
}

// UpdateStatus moves a quotation through its lifecycle.
func (r *Repository) UpdateStatus(ctx context.Context, slug, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE quotations SET status = $2, updated_at = now() WHERE slug = $1`, slug, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
