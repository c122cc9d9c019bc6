package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/apperr"
)

// Migration is one versioned, idempotent schema change. The list is built
// once at startup; Up bodies must be safe to re-run against a partially
// migrated schema (existence-checked DDL), because two processes may race
// to migrate the same tenant.
type Migration struct {
	Version string
	Name    string
	Up      func(ctx context.Context, tx pgx.Tx) error
	Down    func(ctx context.Context, tx pgx.Tx) error
}

// MigrationStatus reports whether a known migration has been applied to a
// given tenant schema.
type MigrationStatus struct {
	Version    string
	Name       string
	Applied    bool
	ExecutedAt *time.Time
}

// Querier is the subset of pgxpool.Pool the migrator needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrator applies the static migration catalog to tenant schemas and
// tracks per-tenant progress in a schema-local schema_migrations table.
type Migrator struct {
	migrations []Migration
	logger     zerolog.Logger

	mu      sync.Mutex
	ensured map[string]struct{}
}

func NewMigrator(migrations []Migration, logger zerolog.Logger) (*Migrator, error) {
	if err := validateCatalog(migrations); err != nil {
		return nil, err
	}
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{
		migrations: sorted,
		logger:     logger,
		ensured:    make(map[string]struct{}),
	}, nil
}

func validateCatalog(migrations []Migration) error {
	seen := make(map[string]struct{}, len(migrations))
	for _, m := range migrations {
		if m.Version == "" {
			return fmt.Errorf("migration %q has an empty version", m.Name)
		}
		if m.Up == nil {
			return fmt.Errorf("migration %s (%s) has no up procedure", m.Version, m.Name)
		}
		if _, dup := seen[m.Version]; dup {
			return fmt.Errorf("duplicate migration version %s", m.Version)
		}
		seen[m.Version] = struct{}{}
	}
	return nil
}

// EnsureTenant brings a tenant schema fully up to date: creates the schema
// and tracking table if absent, then applies pending migrations in version
// order, recording each one immediately after it succeeds. On failure it
// stops and propagates; prior successes stay recorded, so the next call
// resumes from the first unrecorded version.
//
// A process-local marker skips the whole check once a schema has been
// brought up to date in this process. That is an optimization, not a
// correctness mechanism.
func (m *Migrator) EnsureTenant(ctx context.Context, q Querier, schema string) error {
	m.mu.Lock()
	_, done := m.ensured[schema]
	m.mu.Unlock()
	if done {
		return nil
	}

	// schema has passed NormalizeSchema, so interpolation is safe.
	if _, err := q.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
		return apperr.Infra(fmt.Sprintf("create schema %s", schema), err)
	}
	if err := m.ensureTrackingTable(ctx, q, schema); err != nil {
		return err
	}

	executed, err := m.executedVersions(ctx, q, schema)
	if err != nil {
		return err
	}

	for _, mig := range pendingMigrations(m.migrations, executed) {
		if err := m.apply(ctx, q, schema, mig); err != nil {
			return apperr.Infra(fmt.Sprintf("apply migration %s (%s) to %s", mig.Version, mig.Name, schema), err)
		}
		m.logger.Info().
			Str("tenant", schema).
			Str("version", mig.Version).
			Str("name", mig.Name).
			Msg("migration applied")
	}

	m.mu.Lock()
	m.ensured[schema] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Migrator) ensureTrackingTable(ctx context.Context, q Querier, schema string) error {
	_, err := q.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.schema_migrations (
			version     VARCHAR(14) PRIMARY KEY,
			name        VARCHAR(255) NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, schema))
	if err != nil {
		return apperr.Infra(fmt.Sprintf("create schema_migrations in %s", schema), err)
	}
	return nil
}

func (m *Migrator) executedVersions(ctx context.Context, q Querier, schema string) (map[string]bool, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT version FROM %s.schema_migrations`, schema))
	if err != nil {
		return nil, apperr.Infra(fmt.Sprintf("read executed migrations in %s", schema), err)
	}
	defer rows.Close()

	executed := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, apperr.Infra("scan migration version", err)
		}
		executed[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Infra("iterate executed migrations", err)
	}
	return executed, nil
}

// pendingMigrations returns the version-ordered subset of migrations not
// yet recorded as executed.
func pendingMigrations(all []Migration, executed map[string]bool) []Migration {
	var pending []Migration
	for _, m := range all {
		if !executed[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// apply runs one migration and its tracking record in a single
// transaction, scoped to the tenant schema.
func (m *Migrator) apply(ctx context.Context, q Querier, schema string, mig Migration) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	if err := mig.Up(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s.schema_migrations (version, name) VALUES ($1, $2)`, schema),
		mig.Version, mig.Name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit(ctx)
}

// Status lists every known migration with its applied state for a schema.
func (m *Migrator) Status(ctx context.Context, q Querier, schema string) ([]MigrationStatus, error) {
	if err := m.ensureTrackingTable(ctx, q, schema); err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT version, executed_at FROM %s.schema_migrations`, schema))
	if err != nil {
		return nil, apperr.Infra(fmt.Sprintf("read migration status in %s", schema), err)
	}
	defer rows.Close()

	executedAt := make(map[string]time.Time)
	for rows.Next() {
		var v string
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, apperr.Infra("scan migration status", err)
		}
		executedAt[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Infra("iterate migration status", err)
	}

	return mergeStatus(m.migrations, executedAt), nil
}

func mergeStatus(all []Migration, executedAt map[string]time.Time) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(all))
	for _, mig := range all {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := executedAt[mig.Version]; ok {
			s.Applied = true
			t := at
			s.ExecutedAt = &t
		}
		statuses = append(statuses, s)
	}
	return statuses
}

// Forget clears the process-local ensured marker for a schema. Used by
// tenant revocation so a re-registered tenant is re-checked.
func (m *Migrator) Forget(schema string) {
	m.mu.Lock()
	delete(m.ensured, schema)
	m.mu.Unlock()
}
