package queue

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists queue entries. Create owns the whole booking
// transaction: duplicate detection, doctor sequence assignment, and the
// insert commit together or not at all.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Update(ctx context.Context, e *Entry) error
	ListForDoctorToday(ctx context.Context, doctorID uuid.UUID) ([]*Entry, error)
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error)
}
