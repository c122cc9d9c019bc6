package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a connection pool against the default schema. Used for the
// tenant registry and the admin CLI; tenant-scoped pools are built by the
// Manager.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	return newPool(ctx, databaseURL, "", maxConns, minConns)
}

// NewSchemaPool opens a connection pool whose search_path is pinned to the
// given tenant schema for the lifetime of every connection.
func NewSchemaPool(ctx context.Context, databaseURL, schema string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	return newPool(ctx, databaseURL, schema, maxConns, minConns)
}

func newPool(ctx context.Context, databaseURL, schema string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	if schema != "" {
		// Pinning search_path here means every connection the pool hands
		// out is already scoped to the tenant; repositories never name the
		// schema in their SQL.
		cfg.ConnConfig.RuntimeParams["search_path"] = schema + ", public"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
