// Package queue implements the appointment-queue lifecycle: booking with
// atomic per-doctor sequence assignment, the status-transition graph, and
// the doctor-facing queue view.
package queue

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/apperr"
)

// Status is the lifecycle state of a queue entry. Entries are created in
// BOOKED or one of the payment states and only ever move through the
// named transitions; COMPLETED and CANCELLED are terminal.
type Status string

const (
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusPaymentFailed  Status = "PAYMENT_FAILED"
	StatusBooked         Status = "BOOKED"
	StatusCalled         Status = "CALLED"
	StatusInConsultation Status = "IN_CONSULTATION"
	StatusSkipped        Status = "SKIPPED"
	StatusCancelled      Status = "CANCELLED"
	StatusCompleted      Status = "COMPLETED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the entry occupies a place in the doctor's
// working queue: not terminal and not waiting on payment.
func (s Status) Active() bool {
	switch s {
	case StatusBooked, StatusCalled, StatusInConsultation, StatusSkipped:
		return true
	}
	return false
}

// rank orders active statuses for the doctor view: waiting entries come
// before in-progress ones, skipped entries rotate to the back.
func (s Status) rank() int {
	switch s {
	case StatusBooked:
		return 0
	case StatusCalled:
		return 1
	case StatusInConsultation:
		return 2
	case StatusSkipped:
		return 3
	}
	return 9
}

// PaymentMode is how the booking is paid for.
type PaymentMode string

const (
	ModeCash   PaymentMode = "cash"
	ModeOnline PaymentMode = "online"
)

// Channel is who initiated the booking.
type Channel string

const (
	ChannelStaff       Channel = "staff"
	ChannelSelfService Channel = "self_service"
)

// InitialStatus maps booking channel and payment mode to the entry state:
// staff-recorded cash is immediately BOOKED, self-service cash waits at
// the desk as PAYMENT_PENDING, and online payments sit in PAYMENT_FAILED
// until the gateway verification succeeds.
func InitialStatus(ch Channel, mode PaymentMode) Status {
	if mode == ModeOnline {
		return StatusPaymentFailed
	}
	if ch == ChannelStaff {
		return StatusBooked
	}
	return StatusPaymentPending
}

// Entry is one appointment-queue row. Mutated only through the service's
// named transitions; terminal entries are retained for history, never
// hard-deleted.
type Entry struct {
	ID             uuid.UUID       `json:"id"`
	PatientID      uuid.UUID       `json:"patient_id"`
	DoctorID       uuid.UUID       `json:"doctor_id"`
	Status         Status          `json:"status"`
	SequenceNumber int64           `json:"sequence_number"`
	SkipCount      int             `json:"skip_count"`
	CallCount      int             `json:"call_count"`
	ClockInCount   int             `json:"clock_in_count"`
	PaymentMode    PaymentMode     `json:"payment_mode"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"`
	BookedBy       *uuid.UUID      `json:"booked_by,omitempty"`
	CompletedBy    *uuid.UUID      `json:"completed_by,omitempty"`
	Remark         *string         `json:"remark,omitempty"`
	Prescription   json.RawMessage `json:"prescription,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Navigation pointers, populated only in doctor-view responses.
	NextQueueID     *uuid.UUID `json:"next_queue_id,omitempty"`
	PreviousQueueID *uuid.UUID `json:"previous_queue_id,omitempty"`
}

// transitions lists the statuses each operation may start from.
var transitions = map[string][]Status{
	"call":           {StatusBooked, StatusSkipped, StatusCalled},
	"clock-in":       {StatusCalled},
	"skip":           {StatusBooked, StatusSkipped, StatusCalled, StatusInConsultation},
	"complete":       {StatusInConsultation},
	"verify-payment": {StatusPaymentPending, StatusPaymentFailed},
}

// guard checks that op is legal from the given status, returning a
// StateConflict naming the required prior states otherwise.
func guard(op string, from Status) error {
	allowed := transitions[op]
	for _, s := range allowed {
		if s == from {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return apperr.StateConflict("cannot %s from %s: requires status %s",
		op, from, strings.Join(names, " or "))
}

// sortActive orders the doctor's working queue: status rank, then skip
// count (least-skipped first), then sequence number.
func sortActive(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Status.rank() != b.Status.rank() {
			return a.Status.rank() < b.Status.rank()
		}
		if a.SkipCount != b.SkipCount {
			return a.SkipCount < b.SkipCount
		}
		return a.SequenceNumber < b.SequenceNumber
	})
}
