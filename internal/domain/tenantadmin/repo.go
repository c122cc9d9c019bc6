package tenantadmin

import "context"

// Repository persists registry rows. All queries run against the shared
// public.tenants table, never a tenant schema.
type Repository interface {
	Insert(ctx context.Context, t *Tenant) error
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	SetStatus(ctx context.Context, slug string, status TenantStatus) error
	List(ctx context.Context) ([]*Tenant, error)
}
