package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Catalog returns the full, version-ordered migration list applied to
// every tenant schema. Versions are lexicographically sortable strings;
// never reuse or reorder them. All DDL is existence-checked so a re-run
// against a partially migrated schema is a no-op.
func Catalog() []Migration {
	return []Migration{
		{
			Version: "0001",
			Name:    "directory",
			Up: func(ctx context.Context, tx pgx.Tx) error {
				return execAll(ctx, tx,
					`CREATE TABLE IF NOT EXISTS doctors (
						id                   UUID PRIMARY KEY,
						name                 TEXT NOT NULL,
						specialty            TEXT,
						last_sequence_number BIGINT NOT NULL DEFAULT 0,
						active               BOOLEAN NOT NULL DEFAULT TRUE,
						created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
						updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
					)`,
					`CREATE TABLE IF NOT EXISTS patients (
						id         UUID PRIMARY KEY,
						name       TEXT NOT NULL,
						phone      TEXT,
						email      TEXT,
						birth_date DATE,
						created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
						updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
					)`,
				)
			},
			Down: func(ctx context.Context, tx pgx.Tx) error {
				return execAll(ctx, tx,
					`DROP TABLE IF EXISTS patients`,
					`DROP TABLE IF EXISTS doctors`,
				)
			},
		},
		{
			Version: "0002",
			Name:    "queue_entries",
			Up: func(ctx context.Context, tx pgx.Tx) error {
				return execAll(ctx, tx,
					`CREATE TABLE IF NOT EXISTS queue_entries (
						id              UUID PRIMARY KEY,
						patient_id      UUID NOT NULL REFERENCES patients(id),
						doctor_id       UUID NOT NULL REFERENCES doctors(id),
						status          VARCHAR(20) NOT NULL,
						sequence_number BIGINT NOT NULL,
						skip_count      INT NOT NULL DEFAULT 0,
						call_count      INT NOT NULL DEFAULT 0,
						clock_in_count  INT NOT NULL DEFAULT 0,
						payment_mode    VARCHAR(10) NOT NULL,
						payment_id      UUID,
						booked_by       UUID,
						completed_by    UUID,
						remark          TEXT,
						prescription    JSONB,
						created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
						started_at      TIMESTAMPTZ,
						completed_at    TIMESTAMPTZ,
						updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
					)`,
					`CREATE INDEX IF NOT EXISTS idx_queue_doctor_day
						ON queue_entries (doctor_id, ((created_at AT TIME ZONE 'UTC')::date))`,
					// Backstop for the application-level duplicate check:
					// one active booking per patient per doctor per day.
					`CREATE UNIQUE INDEX IF NOT EXISTS uq_queue_active_booking
						ON queue_entries (doctor_id, patient_id, ((created_at AT TIME ZONE 'UTC')::date))
						WHERE status NOT IN ('COMPLETED', 'CANCELLED')`,
				)
			},
			Down: func(ctx context.Context, tx pgx.Tx) error {
				return execAll(ctx, tx, `DROP TABLE IF EXISTS queue_entries`)
			},
		},
		{
			Version: "0003",
			Name:    "payments",
			Up: func(ctx context.Context, tx pgx.Tx) error {
				return execAll(ctx, tx,
					`CREATE TABLE IF NOT EXISTS payments (
						id             UUID PRIMARY KEY,
						reference_type VARCHAR(20) NOT NULL,
						reference_id   UUID NOT NULL,
						provider       VARCHAR(20) NOT NULL,
						order_id       TEXT NOT NULL,
						payment_id     TEXT,
						signature      TEXT,
						amount         BIGINT NOT NULL,
						currency       VARCHAR(8) NOT NULL,
						status         VARCHAR(10) NOT NULL,
						created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
						updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
					)`,
					`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_order ON payments (order_id)`,
				)
			},
			Down: func(ctx context.Context, tx pgx.Tx) error {
				return execAll(ctx, tx, `DROP TABLE IF EXISTS payments`)
			},
		},
		{
			Version: "0004",
			Name:    "activity_logs",
			Up: func(ctx context.Context, tx pgx.Tx) error {
				return execAll(ctx, tx,
					`CREATE TABLE IF NOT EXISTS activity_logs (
						id          UUID PRIMARY KEY,
						actor_id    TEXT,
						action      TEXT NOT NULL,
						entity_type TEXT NOT NULL,
						entity_id   TEXT,
						detail      JSONB,
						created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
					)`,
					`CREATE INDEX IF NOT EXISTS idx_activity_entity
						ON activity_logs (entity_type, entity_id)`,
				)
			},
			Down: func(ctx context.Context, tx pgx.Tx) error {
				return execAll(ctx, tx, `DROP TABLE IF EXISTS activity_logs`)
			},
		},
	}
}

// RegistrySchema creates the shared tenant registry in the public schema.
// Run once by `tenant` CLI commands and at server startup; idempotent.
const RegistrySchema = `
	CREATE TABLE IF NOT EXISTS public.tenants (
		slug       VARCHAR(63) PRIMARY KEY,
		name       TEXT NOT NULL,
		status     VARCHAR(10) NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

func execAll(ctx context.Context, tx pgx.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
