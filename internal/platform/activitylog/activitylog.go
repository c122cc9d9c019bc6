// Package activitylog defines the activity recording boundary. Durable
// persistence of activity entries is owned by an external collaborator;
// services only emit through the Recorder interface.
package activitylog

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/domain/identity"
	"github.com/clinicq/clinicq/internal/platform/db"
)

// Entry describes one recorded action against a tenant-scoped entity.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	Detail     map[string]interface{}
}

// Recorder receives activity entries. Implementations must not fail the
// business operation: recording is fire-and-forget.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// LogRecorder writes activity entries to the structured log, tagged with
// the acting user and tenant from context.
type LogRecorder struct {
	logger zerolog.Logger
}

func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, e Entry) {
	actor := identity.FromContext(ctx).Projection()
	evt := r.logger.Info().
		Str("action", e.Action).
		Str("entity_type", e.EntityType).
		Str("entity_id", e.EntityID).
		Str("realm", string(actor.Realm))

	if actor.ID != "" {
		evt = evt.Str("actor", actor.ID)
	}
	if actor.Tenant != "" {
		evt = evt.Str("tenant", actor.Tenant)
	}
	if len(e.Detail) > 0 {
		evt = evt.Interface("detail", e.Detail)
	}
	evt.Msg("activity")
}

// PGRecorder persists entries to the tenant's activity_logs table using
// the request's pool. Outside a tenant-resolved request, or when the
// insert fails, it degrades to the structured log.
type PGRecorder struct {
	logger zerolog.Logger
}

func NewPGRecorder(logger zerolog.Logger) *PGRecorder {
	return &PGRecorder{logger: logger}
}

func (r *PGRecorder) Record(ctx context.Context, e Entry) {
	pool := db.PoolFromContext(ctx)
	if pool == nil {
		(&LogRecorder{logger: r.logger}).Record(ctx, e)
		return
	}

	var actor *string
	if proj := identity.FromContext(ctx).Projection(); proj.ID != "" {
		actor = &proj.ID
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO activity_logs (id, actor_id, action, entity_type, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), actor, e.Action, e.EntityType, e.EntityID, e.Detail)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("action", e.Action).
			Msg("activity log insert failed")
	}
}

// Nop discards all entries. Used in tests.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}
