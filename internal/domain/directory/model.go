// Package directory manages the per-tenant doctor and patient registers
// that queue entries reference.
package directory

import (
	"time"

	"github.com/google/uuid"
)

// Doctor is a practicing clinician. LastSequenceNumber is the booking
// counter the queue increments under a row lock; it is read-only here.
type Doctor struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Specialty          *string   `json:"specialty,omitempty"`
	LastSequenceNumber int64     `json:"last_sequence_number"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Patient is a clinic patient record.
type Patient struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Phone     *string    `json:"phone,omitempty"`
	Email     *string    `json:"email,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
