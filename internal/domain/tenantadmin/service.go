package tenantadmin

import (
	"context"

	"github.com/clinicq/clinicq/internal/apperr"
	"github.com/clinicq/clinicq/internal/platform/activitylog"
	"github.com/clinicq/clinicq/internal/platform/db"
)

// Bootstrapper provisions a tenant's schema on registration and drops
// cached routing state on revocation.
type Bootstrapper interface {
	Provision(ctx context.Context, slug string) error
	Evict(slug string)
}

// DBBootstrapper wires the connection manager, migrator and allow-list
// into the registry lifecycle.
type DBBootstrapper struct {
	mgr      *db.Manager
	migrator *db.Migrator
	allow    *db.AllowList
}

func NewDBBootstrapper(mgr *db.Manager, migrator *db.Migrator, allow *db.AllowList) *DBBootstrapper {
	return &DBBootstrapper{mgr: mgr, migrator: migrator, allow: allow}
}

func (b *DBBootstrapper) Provision(ctx context.Context, slug string) error {
	pool, err := b.mgr.Get(ctx, slug)
	if err != nil {
		return err
	}
	// The registry row was just written; clear any cached negative
	// allow-list answer so the tenant is usable immediately.
	b.allow.Invalidate(slug)
	return b.migrator.EnsureTenant(ctx, pool, slug)
}

func (b *DBBootstrapper) Evict(slug string) {
	b.allow.Invalidate(slug)
	b.migrator.Forget(slug)
}

type Service struct {
	repo     Repository
	boot     Bootstrapper
	activity activitylog.Recorder
}

func NewService(repo Repository, boot Bootstrapper, activity activitylog.Recorder) *Service {
	return &Service{repo: repo, boot: boot, activity: activity}
}

// Register normalizes the slug, writes the registry row, and provisions
// the tenant's schema up front so the first request pays no bootstrap
// cost.
func (s *Service) Register(ctx context.Context, slug, name string) (*Tenant, error) {
	schema, err := db.NormalizeSchema(slug)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperr.Validation("name is required")
	}

	t := &Tenant{Slug: schema, Name: name, Status: StatusActive}
	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, err
	}
	if err := s.boot.Provision(ctx, schema); err != nil {
		// The registry row stays; the request-path bootstrap will retry
		// the schema work lazily.
		return nil, err
	}
	s.activity.Record(ctx, activitylog.Entry{
		Action: "tenant.register", EntityType: "tenant", EntityID: schema,
	})
	return t, nil
}

// Revoke flips the registry row and drops this process's cached routing
// state. Other processes keep serving the tenant until their allow-list
// TTL expires.
func (s *Service) Revoke(ctx context.Context, slug string) error {
	schema, err := db.NormalizeSchema(slug)
	if err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, schema, StatusRevoked); err != nil {
		return err
	}
	s.boot.Evict(schema)
	s.activity.Record(ctx, activitylog.Entry{
		Action: "tenant.revoke", EntityType: "tenant", EntityID: schema,
	})
	return nil
}

// Reactivate restores a revoked tenant.
func (s *Service) Reactivate(ctx context.Context, slug string) error {
	schema, err := db.NormalizeSchema(slug)
	if err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, schema, StatusActive); err != nil {
		return err
	}
	// Clear any cached denial so the tenant is served again at once.
	s.boot.Evict(schema)
	s.activity.Record(ctx, activitylog.Entry{
		Action: "tenant.reactivate", EntityType: "tenant", EntityID: schema,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, slug string) (*Tenant, error) {
	schema, err := db.NormalizeSchema(slug)
	if err != nil {
		return nil, err
	}
	return s.repo.GetBySlug(ctx, schema)
}

func (s *Service) List(ctx context.Context) ([]*Tenant, error) {
	return s.repo.List(ctx)
}
