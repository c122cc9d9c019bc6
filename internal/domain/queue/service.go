package queue

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/apperr"
	"github.com/clinicq/clinicq/internal/platform/activitylog"
)

type Service struct {
	entries  Repository
	activity activitylog.Recorder
	now      func() time.Time
}

func NewService(entries Repository, activity activitylog.Recorder) *Service {
	return &Service{entries: entries, activity: activity, now: time.Now}
}

// CreateRequest is a booking. The initial status is derived from the
// channel and payment mode, never supplied by the caller.
type CreateRequest struct {
	PatientID   uuid.UUID   `json:"patient_id"`
	DoctorID    uuid.UUID   `json:"doctor_id"`
	Channel     Channel     `json:"channel"`
	PaymentMode PaymentMode `json:"payment_mode"`
	BookedBy    *uuid.UUID  `json:"booked_by,omitempty"`
	Remark      *string     `json:"remark,omitempty"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Entry, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	switch req.PaymentMode {
	case ModeCash, ModeOnline:
	default:
		return nil, apperr.Validation("invalid payment_mode: %s", req.PaymentMode)
	}
	if req.Channel == "" {
		req.Channel = ChannelStaff
	}

	e := &Entry{
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		Status:      InitialStatus(req.Channel, req.PaymentMode),
		PaymentMode: req.PaymentMode,
		BookedBy:    req.BookedBy,
		Remark:      req.Remark,
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activitylog.Entry{
		Action: "queue.create", EntityType: "queue_entry", EntityID: e.ID.String(),
		Detail: map[string]interface{}{"doctor_id": e.DoctorID, "sequence": e.SequenceNumber},
	})
	return e, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.entries.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	return s.entries.List(ctx, params, limit, offset)
}

// UpdateRemark is the only free-form mutation; status, counters and
// sequence move exclusively through the named transitions.
func (s *Service) UpdateRemark(ctx context.Context, id uuid.UUID, remark string) (*Entry, error) {
	e, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Remark = &remark
	if err := s.entries.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Call(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, "call", func(e *Entry) {
		e.Status = StatusCalled
		e.CallCount++
	})
}

func (s *Service) ClockIn(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, "clock-in", func(e *Entry) {
		e.Status = StatusInConsultation
		e.ClockInCount++
		now := s.now()
		e.StartedAt = &now
	})
}

// Skip rotates the entry to the back of the queue; the sequence number
// is never reassigned.
func (s *Service) Skip(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, "skip", func(e *Entry) {
		e.Status = StatusSkipped
		e.SkipCount++
	})
}

// Complete finishes the consultation. Completing an already-COMPLETED
// entry is a no-op success so a double-submitted form cannot fail.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, completedBy uuid.UUID, prescription json.RawMessage) (*Entry, error) {
	e, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status == StatusCompleted {
		return e, nil
	}
	if err := guard("complete", e.Status); err != nil {
		return nil, err
	}
	e.Status = StatusCompleted
	e.CompletedBy = &completedBy
	now := s.now()
	e.CompletedAt = &now
	if len(prescription) > 0 {
		e.Prescription = prescription
	}
	if err := s.entries.Update(ctx, e); err != nil {
		return nil, err
	}
	s.record(ctx, "queue.complete", e)
	return e, nil
}

// Cancel is allowed from any non-terminal status and doubles as the
// delete operation: terminal entries are retained for history.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor uuid.UUID, remark string) (*Entry, error) {
	e, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, apperr.StateConflict("cannot cancel from %s: entry is terminal", e.Status)
	}
	e.Status = StatusCancelled
	e.CompletedBy = &actor
	if remark != "" {
		e.Remark = &remark
	}
	if err := s.entries.Update(ctx, e); err != nil {
		return nil, err
	}
	s.record(ctx, "queue.cancel", e)
	return e, nil
}

// VerifyPayment moves a payment-gated entry into the working queue. The
// signature check itself lives in the payment domain; this is the queue
// side of a successful verification.
func (s *Service) VerifyPayment(ctx context.Context, id uuid.UUID, paymentID uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, "verify-payment", func(e *Entry) {
		e.Status = StatusBooked
		e.PaymentID = &paymentID
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, op string, apply func(*Entry)) (*Entry, error) {
	e, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard(op, e.Status); err != nil {
		return nil, err
	}
	apply(e)
	if err := s.entries.Update(ctx, e); err != nil {
		return nil, err
	}
	s.record(ctx, "queue."+op, e)
	return e, nil
}

func (s *Service) record(ctx context.Context, action string, e *Entry) {
	s.activity.Record(ctx, activitylog.Entry{
		Action: action, EntityType: "queue_entry", EntityID: e.ID.String(),
		Detail: map[string]interface{}{"status": e.Status},
	})
}

// DoctorQueue is the doctor-facing view of today's entries.
type DoctorQueue struct {
	Current  *Entry   `json:"current"`
	Next     []*Entry `json:"next"`
	Previous []*Entry `json:"previous"`
}

// QueueForDoctor assembles the view from today's entries: "next" is the
// working set ordered for fair rotation (status, then least-skipped,
// then lowest sequence), "previous" is today's terminal entries newest
// first, and "current" is the explicit id when given or the head of
// next. Every entry carries navigation pointers into its list.
func (s *Service) QueueForDoctor(ctx context.Context, doctorID uuid.UUID, explicitID *uuid.UUID) (*DoctorQueue, error) {
	today, err := s.entries.ListForDoctorToday(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	var next, previous []*Entry
	for _, e := range today {
		switch {
		case e.Status.Active():
			next = append(next, e)
		case e.Status.Terminal():
			previous = append(previous, e)
		}
	}
	sortActive(next)
	sortBySequenceDesc(previous)
	linkEntries(next)
	linkEntries(previous)

	view := &DoctorQueue{Next: next, Previous: previous}
	if explicitID != nil {
		for _, e := range today {
			if e.ID == *explicitID {
				view.Current = e
				break
			}
		}
		if view.Current == nil {
			return nil, apperr.NotFound("queue entry %s not found in today's queue", *explicitID)
		}
	} else if len(next) > 0 {
		view.Current = next[0]
	}
	if view.Current != nil && len(next) > 0 && view.Current.ID == next[0].ID {
		// The head of next is being served; the remaining list starts
		// after it.
		view.Next = next[1:]
	}
	return view, nil
}

func sortBySequenceDesc(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SequenceNumber > entries[j].SequenceNumber
	})
}

// linkEntries sets next/previous pointers from list position.
func linkEntries(entries []*Entry) {
	for i, e := range entries {
		e.NextQueueID, e.PreviousQueueID = nil, nil
		if i > 0 {
			id := entries[i-1].ID
			e.PreviousQueueID = &id
		}
		if i < len(entries)-1 {
			id := entries[i+1].ID
			e.NextQueueID = &id
		}
	}
}
