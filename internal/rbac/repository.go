package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines catalog-store persistence for the resolver.
type Repository interface {
	ListDefinitions(ctx context.Context) ([]Definition, error)
	UpsertDefinition(ctx context.Context, def Definition) error
	ListOverrides(ctx context.Context, principalID int64) ([]Override, error)
	UpsertOverride(ctx context.Context, ov Override) error
	DeleteOverride(ctx context.Context, principalID int64, code string) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListDefinitions returns the synced permission catalog.
func (r *PGRepository) ListDefinitions(ctx context.Context) ([]Definition, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, description, default_roles FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var defs []Definition
	for rows.Next() {
		var def Definition
		var roles []string
		if err := rows.Scan(&def.Code, &def.Description, &roles); err != nil {
			return nil, err
		}
		for _, raw := range roles {
			role, err := ParseRole(raw)
			if err != nil {
				continue
			}
			def.DefaultRoles = append(def.DefaultRoles, role)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// UpsertDefinition syncs one catalog entry, keyed by code.
func (r *PGRepository) UpsertDefinition(ctx context.Context, def Definition) error {
	roles := make([]string, len(def.DefaultRoles))
	for i, role := range def.DefaultRoles {
		roles[i] = string(role)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permissions (code, description, default_roles)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, default_roles = EXCLUDED.default_roles`,
		def.Code, def.Description, roles)
	return err
}

// ListOverrides returns every override recorded for a principal.
func (r *PGRepository) ListOverrides(ctx context.Context, principalID int64) ([]Override, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT principal_id, code, granted FROM permission_overrides WHERE principal_id = $1`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []Override
	for rows.Next() {
		var ov Override
		if err := rows.Scan(&ov.PrincipalID, &ov.Code, &ov.Granted); err != nil {
			return nil, err
		}
		overrides = append(overrides, ov)
	}
	return overrides, rows.Err()
}

// UpsertOverride writes or updates one override record.
func (r *PGRepository) UpsertOverride(ctx context.Context, ov Override) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permission_overrides (principal_id, code, granted)
		VALUES ($1, $2, $3)
		ON CONFLICT (principal_id, code) DO UPDATE SET granted = EXCLUDED.granted`,
		ov.PrincipalID, ov.Code, ov.Granted)
	return err
}

// DeleteOverride removes an override, reverting the code to its role default.
func (r *PGRepository) DeleteOverride(ctx context.Context, principalID int64, code string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM permission_overrides WHERE principal_id = $1 AND code = $2`, principalID, code)
	return err
}

var _ Repository = (*PGRepository)(nil)
