package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicq/clinicq/internal/apperr"
)

// MaxSchemaLen is the Postgres identifier length limit.
const MaxSchemaLen = 63

var schemaPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedSchemas can never be used as tenant schemas, regardless of case.
var reservedSchemas = map[string]struct{}{
	"public":             {},
	"pg_catalog":         {},
	"pg_toast":           {},
	"information_schema": {},
	"admin":              {},
}

// NormalizeSchema trims and validates a raw tenant identifier into a safe
// schema name. Schema names end up interpolated into DDL, so everything
// that is not a plain identifier is rejected here.
func NormalizeSchema(raw string) (string, error) {
	schema := strings.TrimSpace(raw)
	if schema == "" {
		return "", apperr.Validation("tenant identifier is empty")
	}
	if len(schema) > MaxSchemaLen {
		return "", apperr.Validation("tenant identifier exceeds %d characters", MaxSchemaLen)
	}
	if !schemaPattern.MatchString(schema) {
		return "", apperr.Validation("tenant identifier %q is not a valid schema name", schema)
	}
	if _, ok := reservedSchemas[strings.ToLower(schema)]; ok {
		return "", apperr.Validation("tenant identifier %q is reserved", schema)
	}
	return schema, nil
}

// TenantDirectory answers whether a schema is a registered, active tenant
// that actually exists in the database catalog.
type TenantDirectory interface {
	IsRegistered(ctx context.Context, schema string) (bool, error)
}

// PGTenantDirectory checks the public.tenants registry and the catalog.
type PGTenantDirectory struct {
	pool *pgxpool.Pool
}

func NewPGTenantDirectory(pool *pgxpool.Pool) *PGTenantDirectory {
	return &PGTenantDirectory{pool: pool}
}

func (d *PGTenantDirectory) IsRegistered(ctx context.Context, schema string) (bool, error) {
	var registered bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM public.tenants WHERE slug = $1 AND status = 'active'
		) AND EXISTS (
			SELECT 1 FROM information_schema.schemata WHERE schema_name = $1
		)`, schema).Scan(&registered)
	if err != nil {
		return false, fmt.Errorf("check tenant registration for %s: %w", schema, err)
	}
	return registered, nil
}

// DefaultAllowTTL bounds how long a cached allow-list decision may be
// served. Revocations in other processes take up to this long to be seen;
// the local process invalidates immediately.
const DefaultAllowTTL = 60 * time.Second

type allowEntry struct {
	allowed   bool
	expiresAt time.Time
}

// AllowList caches tenant registration checks with a TTL.
type AllowList struct {
	dir TenantDirectory
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]allowEntry
	now     func() time.Time
}

func NewAllowList(dir TenantDirectory, ttl time.Duration) *AllowList {
	if ttl <= 0 {
		ttl = DefaultAllowTTL
	}
	return &AllowList{
		dir:     dir,
		ttl:     ttl,
		entries: make(map[string]allowEntry),
		now:     time.Now,
	}
}

// Assert confirms the schema is an allow-listed tenant. Negative results
// are cached too, so a flood of requests for an unknown tenant does not
// hammer the registry.
func (a *AllowList) Assert(ctx context.Context, schema string) error {
	a.mu.Lock()
	entry, ok := a.entries[schema]
	now := a.now()
	a.mu.Unlock()

	if ok && now.Before(entry.expiresAt) {
		if !entry.allowed {
			return apperr.Unauthorized("tenant %q is not allow-listed", schema)
		}
		return nil
	}

	allowed, err := a.dir.IsRegistered(ctx, schema)
	if err != nil {
		return apperr.Infra("tenant allow-list lookup failed", err)
	}

	a.mu.Lock()
	a.entries[schema] = allowEntry{allowed: allowed, expiresAt: now.Add(a.ttl)}
	a.mu.Unlock()

	if !allowed {
		return apperr.Unauthorized("tenant %q is not allow-listed", schema)
	}
	return nil
}

// Invalidate drops the cached decision for a schema. Called on revocation
// so the local process stops serving the tenant right away.
func (a *AllowList) Invalidate(schema string) {
	a.mu.Lock()
	delete(a.entries, schema)
	a.mu.Unlock()
}
