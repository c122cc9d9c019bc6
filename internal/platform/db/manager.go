package db

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/clinicq/clinicq/internal/apperr"
)

// Manager owns one connection pool per tenant schema. Pools are created
// lazily on first access and live until CloseAll. Concurrent first access
// for the same schema is collapsed into a single initialization; losers
// wait for and share the winner's pool.
type Manager struct {
	databaseURL string
	maxConns    int32
	minConns    int32

	mu    sync.RWMutex
	pools map[string]*pgxpool.Pool

	group singleflight.Group
	inits atomic.Int64

	// opener is swapped out in tests.
	opener func(ctx context.Context, schema string) (*pgxpool.Pool, error)
}

func NewManager(databaseURL string, maxConns, minConns int32) *Manager {
	m := &Manager{
		databaseURL: databaseURL,
		maxConns:    maxConns,
		minConns:    minConns,
		pools:       make(map[string]*pgxpool.Pool),
	}
	m.opener = func(ctx context.Context, schema string) (*pgxpool.Pool, error) {
		return NewSchemaPool(ctx, m.databaseURL, schema, m.maxConns, m.minConns)
	}
	return m
}

// Get returns the pool for a tenant schema, building it on first use.
// The schema must already be normalized and allow-listed.
func (m *Manager) Get(ctx context.Context, schema string) (*pgxpool.Pool, error) {
	m.mu.RLock()
	pool, ok := m.pools[schema]
	m.mu.RUnlock()
	if ok {
		return pool, nil
	}

	v, err, _ := m.group.Do(schema, func() (interface{}, error) {
		// Re-check under the flight: a previous winner may have already
		// registered the pool.
		m.mu.RLock()
		pool, ok := m.pools[schema]
		m.mu.RUnlock()
		if ok {
			return pool, nil
		}

		pool, err := m.opener(ctx, schema)
		if err != nil {
			// Nothing is cached on failure; the next caller retries.
			return nil, apperr.Infra("initialize tenant connection", err)
		}
		m.inits.Add(1)

		m.mu.Lock()
		m.pools[schema] = pool
		m.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pgxpool.Pool), nil
}

// CloseAll closes every cached pool and clears the cache. Called once at
// process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*pgxpool.Pool)
	m.mu.Unlock()

	for _, pool := range pools {
		if pool != nil {
			pool.Close()
		}
	}
}

// InitCount reports how many pools have been initialized over the process
// lifetime. Exposed for tests and the health endpoint.
func (m *Manager) InitCount() int64 {
	return m.inits.Load()
}

// Cached reports whether a pool exists for the schema without creating one.
func (m *Manager) Cached(schema string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pools[schema]
	return ok
}
