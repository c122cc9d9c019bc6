package tenantadmin

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicq/clinicq/internal/apperr"
	"github.com/clinicq/clinicq/internal/platform/db"
)

// repoPG runs against the registry pool (public schema); it deliberately
// ignores any tenant pool on the context.
type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const tenantCols = `slug, name, status, created_at, updated_at`

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.Slug, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &t, nil
}

func (r *repoPG) Insert(ctx context.Context, t *Tenant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO public.tenants (slug, name, status)
		VALUES ($1, $2, $3)`,
		t.Slug, t.Name, t.Status)
	return db.MapError(err)
}

func (r *repoPG) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantCols+` FROM public.tenants WHERE slug = $1`, slug))
}

func (r *repoPG) SetStatus(ctx context.Context, slug string, status TenantStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE public.tenants SET status = $2, updated_at = NOW() WHERE slug = $1`,
		slug, status)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("tenant %s not found", slug)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tenantCols+` FROM public.tenants ORDER BY slug ASC`)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var items []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
