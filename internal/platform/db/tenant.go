package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/apperr"
)

type contextKey string

const (
	tenantKey contextKey = "tenant"
	poolKey   contextKey = "tenant_pool"
)

// Tenant is the per-request resolved tenant identity. It is threaded
// explicitly through context to every downstream call; nothing reads
// tenant state from globals.
type Tenant struct {
	Schema string
	UserID string
	Role   string
}

// TenantMiddleware resolves the request's tenant: extract the slug,
// normalize it into a schema name, confirm it against the allow-list,
// resolve (or build) the tenant's connection pool, and lazily bring the
// schema up to date. The resolved Tenant and pool are attached to the
// request context.
func TenantMiddleware(mgr *Manager, allow *AllowList, migrator *Migrator, logger zerolog.Logger, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			slug := extractTenantSlug(c, defaultTenant)

			schema, err := NormalizeSchema(slug)
			if err != nil {
				return echo.NewHTTPError(apperr.HTTPStatus(err), "invalid tenant identifier")
			}
			if err := allow.Assert(c.Request().Context(), schema); err != nil {
				return echo.NewHTTPError(apperr.HTTPStatus(err), "tenant not allowed")
			}

			ctx := c.Request().Context()
			pool, err := mgr.Get(ctx, schema)
			if err != nil {
				logger.Error().Err(err).Str("tenant", schema).Msg("tenant pool initialization failed")
				return echo.NewHTTPError(apperr.HTTPStatus(err), "tenant database unavailable")
			}

			// Best-effort bootstrap: a failure here is logged and swallowed
			// so the subsequent query produces a more specific error
			// instead of being masked by a setup problem.
			if err := migrator.EnsureTenant(ctx, pool, schema); err != nil {
				logger.Warn().Err(err).Str("tenant", schema).Msg("tenant schema bootstrap failed")
			}

			tenant := Tenant{Schema: schema}
			if uid, ok := c.Get("user_id").(string); ok {
				tenant.UserID = uid
			}
			if roles, ok := c.Get("user_roles").([]string); ok && len(roles) > 0 {
				tenant.Role = roles[0]
			}

			ctx = context.WithValue(ctx, tenantKey, tenant)
			ctx = context.WithValue(ctx, poolKey, pool)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_schema", schema)

			return next(c)
		}
	}
}

// extractTenantSlug resolves the tenant identifier in priority order:
// JWT claim (set by auth middleware), X-Tenant-ID header, query parameter,
// then the configured default.
func extractTenantSlug(c echo.Context, defaultTenant string) string {
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}
	if tid := c.QueryParam("tenant"); tid != "" {
		return tid
	}
	return defaultTenant
}

// TenantFromContext retrieves the resolved tenant identity.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(Tenant)
	return t, ok
}

// PoolFromContext retrieves the tenant-scoped pool, or nil outside a
// tenant-resolved request.
func PoolFromContext(ctx context.Context) *pgxpool.Pool {
	pool, _ := ctx.Value(poolKey).(*pgxpool.Pool)
	return pool
}

// WithTenant returns a context carrying the given tenant identity. Used by
// the CLI and tests, where no HTTP middleware runs.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// WithPool returns a context carrying a tenant pool.
func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, poolKey, pool)
}
