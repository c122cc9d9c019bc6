package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/apperr"
	"github.com/clinicq/clinicq/internal/platform/activitylog"
)

// mockRepo keeps entries in memory and mirrors the repository's booking
// contract: same-day duplicate detection and per-doctor sequencing. All
// stored entries count as created today.
type mockRepo struct {
	entries map[uuid.UUID]*Entry
	order   []uuid.UUID
	lastSeq map[uuid.UUID]int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		entries: make(map[uuid.UUID]*Entry),
		lastSeq: make(map[uuid.UUID]int64),
	}
}

func (m *mockRepo) seedDoctor(id uuid.UUID, lastSequence int64) {
	m.lastSeq[id] = lastSequence
}

func (m *mockRepo) Create(_ context.Context, e *Entry) error {
	for _, existing := range m.entries {
		if existing.DoctorID == e.DoctorID && existing.PatientID == e.PatientID && !existing.Status.Terminal() {
			return apperr.Conflict("patient already has an active booking with this doctor today").
				WithRef(existing.ID.String())
		}
	}
	last, ok := m.lastSeq[e.DoctorID]
	if !ok {
		return apperr.NotFound("doctor %s not found", e.DoctorID)
	}
	e.SequenceNumber = last + 1
	m.lastSeq[e.DoctorID] = e.SequenceNumber
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	copy := *e
	m.entries[e.ID] = &copy
	m.order = append(m.order, e.ID)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, apperr.NotFound("queue entry %s not found", id)
	}
	copy := *e
	return &copy, nil
}

func (m *mockRepo) Update(_ context.Context, e *Entry) error {
	if _, ok := m.entries[e.ID]; !ok {
		return apperr.NotFound("queue entry %s not found", e.ID)
	}
	copy := *e
	m.entries[e.ID] = &copy
	return nil
}

func (m *mockRepo) ListForDoctorToday(_ context.Context, doctorID uuid.UUID) ([]*Entry, error) {
	var items []*Entry
	for _, id := range m.order {
		if e := m.entries[id]; e.DoctorID == doctorID {
			copy := *e
			items = append(items, &copy)
		}
	}
	return items, nil
}

func (m *mockRepo) List(_ context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	var items []*Entry
	for _, id := range m.order {
		e := m.entries[id]
		if s, ok := params["status"]; ok && string(e.Status) != s {
			continue
		}
		copy := *e
		items = append(items, &copy)
	}
	total := len(items)
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func newTestService(repo *mockRepo) *Service {
	return NewService(repo, activitylog.Nop{})
}

func mustCreate(t *testing.T, svc *Service, req CreateRequest) *Entry {
	t.Helper()
	e, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return e
}

func TestCreate_SequenceAssignment(t *testing.T) {
	repo := newMockRepo()
	doctor := uuid.New()
	repo.seedDoctor(doctor, 5)
	svc := newTestService(repo)

	e := mustCreate(t, svc, CreateRequest{
		PatientID: uuid.New(), DoctorID: doctor, Channel: ChannelStaff, PaymentMode: ModeCash,
	})

	if e.SequenceNumber != 6 {
		t.Errorf("expected sequence 6, got %d", e.SequenceNumber)
	}
	if repo.lastSeq[doctor] != 6 {
		t.Errorf("expected doctor counter 6, got %d", repo.lastSeq[doctor])
	}
	if e.Status != StatusBooked {
		t.Errorf("expected BOOKED for staff cash, got %s", e.Status)
	}
}

func TestCreate_DuplicateSameDay(t *testing.T) {
	repo := newMockRepo()
	doctor, patient := uuid.New(), uuid.New()
	repo.seedDoctor(doctor, 0)
	svc := newTestService(repo)

	first := mustCreate(t, svc, CreateRequest{
		PatientID: patient, DoctorID: doctor, Channel: ChannelStaff, PaymentMode: ModeCash,
	})

	_, err := svc.Create(context.Background(), CreateRequest{
		PatientID: patient, DoctorID: doctor, Channel: ChannelStaff, PaymentMode: ModeCash,
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Ref != first.ID.String() {
		t.Errorf("conflict should reference the existing entry")
	}

	// A completed booking no longer blocks a new one.
	if _, err := svc.ClockIn(context.Background(), first.ID); err == nil {
		t.Fatal("expected clock-in from BOOKED to fail")
	}
	if _, err := svc.Call(context.Background(), first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ClockIn(context.Background(), first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(context.Background(), first.ID, uuid.New(), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(context.Background(), CreateRequest{
		PatientID: patient, DoctorID: doctor, Channel: ChannelStaff, PaymentMode: ModeCash,
	}); err != nil {
		t.Errorf("expected rebooking after completion to succeed, got %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"missing patient", CreateRequest{DoctorID: uuid.New(), PaymentMode: ModeCash}},
		{"missing doctor", CreateRequest{PatientID: uuid.New(), PaymentMode: ModeCash}},
		{"bad payment mode", CreateRequest{PatientID: uuid.New(), DoctorID: uuid.New(), PaymentMode: "card"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.req); !apperr.IsKind(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreate_UnknownDoctor(t *testing.T) {
	svc := newTestService(newMockRepo())
	_, err := svc.Create(context.Background(), CreateRequest{
		PatientID: uuid.New(), DoctorID: uuid.New(), PaymentMode: ModeCash,
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTransitionMatrix(t *testing.T) {
	ops := map[string]func(svc *Service, id uuid.UUID) error{
		"call": func(svc *Service, id uuid.UUID) error {
			_, err := svc.Call(context.Background(), id)
			return err
		},
		"clock-in": func(svc *Service, id uuid.UUID) error {
			_, err := svc.ClockIn(context.Background(), id)
			return err
		},
		"skip": func(svc *Service, id uuid.UUID) error {
			_, err := svc.Skip(context.Background(), id)
			return err
		},
		"complete": func(svc *Service, id uuid.UUID) error {
			_, err := svc.Complete(context.Background(), id, uuid.New(), nil)
			return err
		},
		"verify-payment": func(svc *Service, id uuid.UUID) error {
			_, err := svc.VerifyPayment(context.Background(), id, uuid.New())
			return err
		},
	}
	legal := map[string][]Status{
		"call":           {StatusBooked, StatusSkipped, StatusCalled},
		"clock-in":       {StatusCalled},
		"skip":           {StatusBooked, StatusSkipped, StatusCalled, StatusInConsultation},
		"complete":       {StatusInConsultation, StatusCompleted},
		"verify-payment": {StatusPaymentPending, StatusPaymentFailed},
	}
	all := []Status{StatusPaymentPending, StatusPaymentFailed, StatusBooked, StatusCalled,
		StatusInConsultation, StatusSkipped, StatusCancelled, StatusCompleted}

	for op, run := range ops {
		for _, from := range all {
			allowed := false
			for _, s := range legal[op] {
				if s == from {
					allowed = true
				}
			}
			t.Run(op+" from "+string(from), func(t *testing.T) {
				repo := newMockRepo()
				id := uuid.New()
				repo.entries[id] = &Entry{ID: id, Status: from, DoctorID: uuid.New(), PatientID: uuid.New()}
				repo.order = append(repo.order, id)
				svc := newTestService(repo)

				err := run(svc, id)
				if allowed && err != nil {
					t.Errorf("expected success, got %v", err)
				}
				if !allowed && !apperr.IsKind(err, apperr.KindStateConflict) {
					t.Errorf("expected state conflict, got %v", err)
				}
			})
		}
	}
}

func TestSkip_IncrementsCounterPreservesSequence(t *testing.T) {
	repo := newMockRepo()
	doctor := uuid.New()
	repo.seedDoctor(doctor, 2)
	svc := newTestService(repo)

	e := mustCreate(t, svc, CreateRequest{
		PatientID: uuid.New(), DoctorID: doctor, Channel: ChannelStaff, PaymentMode: ModeCash,
	})

	skipped, err := svc.Skip(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if skipped.SkipCount != 1 {
		t.Errorf("expected skip count 1, got %d", skipped.SkipCount)
	}
	if skipped.SequenceNumber != e.SequenceNumber {
		t.Errorf("sequence changed: %d → %d", e.SequenceNumber, skipped.SequenceNumber)
	}

	again, err := svc.Skip(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.SkipCount != 2 {
		t.Errorf("expected skip count 2, got %d", again.SkipCount)
	}
}

func TestCall_IncrementsCounter(t *testing.T) {
	repo := newMockRepo()
	doctor := uuid.New()
	repo.seedDoctor(doctor, 0)
	svc := newTestService(repo)

	e := mustCreate(t, svc, CreateRequest{
		PatientID: uuid.New(), DoctorID: doctor, Channel: ChannelStaff, PaymentMode: ModeCash,
	})
	called, err := svc.Call(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if called.Status != StatusCalled || called.CallCount != 1 {
		t.Errorf("unexpected entry after call: status=%s call_count=%d", called.Status, called.CallCount)
	}
}

func TestClockIn_SetsStartedAt(t *testing.T) {
	repo := newMockRepo()
	id := uuid.New()
	repo.entries[id] = &Entry{ID: id, Status: StatusCalled, DoctorID: uuid.New(), PatientID: uuid.New()}
	repo.order = append(repo.order, id)
	svc := newTestService(repo)
	fixed := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	e, err := svc.ClockIn(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != StatusInConsultation {
		t.Errorf("expected IN_CONSULTATION, got %s", e.Status)
	}
	if e.StartedAt == nil || !e.StartedAt.Equal(fixed) {
		t.Errorf("expected started_at %v, got %v", fixed, e.StartedAt)
	}
	if e.ClockInCount != 1 {
		t.Errorf("expected clock-in count 1, got %d", e.ClockInCount)
	}
}

func TestComplete_Idempotent(t *testing.T) {
	repo := newMockRepo()
	id := uuid.New()
	repo.entries[id] = &Entry{ID: id, Status: StatusInConsultation, DoctorID: uuid.New(), PatientID: uuid.New()}
	repo.order = append(repo.order, id)
	svc := newTestService(repo)
	doctor := uuid.New()
	rx := json.RawMessage(`{"drug":"paracetamol","dose":"500mg"}`)

	first, err := svc.Complete(context.Background(), id, doctor, rx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", first.Status)
	}
	if first.CompletedBy == nil || *first.CompletedBy != doctor {
		t.Error("completed_by not set")
	}
	if first.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if string(first.Prescription) != string(rx) {
		t.Errorf("prescription not stored: %s", first.Prescription)
	}

	second, err := svc.Complete(context.Background(), id, uuid.New(), nil)
	if err != nil {
		t.Fatalf("re-completing must be a no-op success, got %v", err)
	}
	if second.CompletedBy == nil || *second.CompletedBy != doctor {
		t.Error("re-completion must not overwrite the original actor")
	}
}

func TestCancel(t *testing.T) {
	repo := newMockRepo()
	id := uuid.New()
	repo.entries[id] = &Entry{ID: id, Status: StatusCalled, DoctorID: uuid.New(), PatientID: uuid.New()}
	repo.order = append(repo.order, id)
	svc := newTestService(repo)
	actor := uuid.New()

	e, err := svc.Cancel(context.Background(), id, actor, "patient left")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", e.Status)
	}
	if e.Remark == nil || *e.Remark != "patient left" {
		t.Error("remark not stored")
	}

	if _, err := svc.Cancel(context.Background(), id, actor, ""); !apperr.IsKind(err, apperr.KindStateConflict) {
		t.Errorf("cancelling a terminal entry should be a state conflict, got %v", err)
	}
}

func TestVerifyPayment_TransitionsToBooked(t *testing.T) {
	for _, from := range []Status{StatusPaymentPending, StatusPaymentFailed} {
		repo := newMockRepo()
		id := uuid.New()
		repo.entries[id] = &Entry{ID: id, Status: from, DoctorID: uuid.New(), PatientID: uuid.New()}
		repo.order = append(repo.order, id)
		svc := newTestService(repo)
		paymentID := uuid.New()

		e, err := svc.VerifyPayment(context.Background(), id, paymentID)
		if err != nil {
			t.Fatalf("from %s: %v", from, err)
		}
		if e.Status != StatusBooked {
			t.Errorf("from %s: expected BOOKED, got %s", from, e.Status)
		}
		if e.PaymentID == nil || *e.PaymentID != paymentID {
			t.Errorf("from %s: payment id not linked", from)
		}
	}
}

func TestQueueForDoctor_OrderingScenario(t *testing.T) {
	repo := newMockRepo()
	doctor := uuid.New()
	seed := []*Entry{
		{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusBooked, SequenceNumber: 3},
		{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusSkipped, SkipCount: 1, SequenceNumber: 1},
		{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusBooked, SequenceNumber: 2},
	}
	for _, e := range seed {
		repo.entries[e.ID] = e
		repo.order = append(repo.order, e.ID)
	}
	svc := newTestService(repo)

	view, err := svc.QueueForDoctor(context.Background(), doctor, nil)
	if err != nil {
		t.Fatal(err)
	}
	if view.Current == nil || view.Current.SequenceNumber != 2 {
		t.Fatalf("expected current = sequence 2, got %+v", view.Current)
	}
	if len(view.Next) != 2 {
		t.Fatalf("expected 2 remaining entries, got %d", len(view.Next))
	}
	if view.Next[0].SequenceNumber != 3 || view.Next[1].SequenceNumber != 1 {
		t.Errorf("expected next order [3, 1], got [%d, %d]",
			view.Next[0].SequenceNumber, view.Next[1].SequenceNumber)
	}
}

func TestQueueForDoctor_ExplicitCurrent(t *testing.T) {
	repo := newMockRepo()
	doctor := uuid.New()
	a := &Entry{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusBooked, SequenceNumber: 1}
	b := &Entry{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusBooked, SequenceNumber: 2}
	for _, e := range []*Entry{a, b} {
		repo.entries[e.ID] = e
		repo.order = append(repo.order, e.ID)
	}
	svc := newTestService(repo)

	view, err := svc.QueueForDoctor(context.Background(), doctor, &b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Current == nil || view.Current.ID != b.ID {
		t.Errorf("expected explicit current %s", b.ID)
	}

	missing := uuid.New()
	if _, err := svc.QueueForDoctor(context.Background(), doctor, &missing); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found for unknown explicit id, got %v", err)
	}
}

func TestQueueForDoctor_PreviousAndPointers(t *testing.T) {
	repo := newMockRepo()
	doctor := uuid.New()
	entries := []*Entry{
		{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusCompleted, SequenceNumber: 1},
		{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusCancelled, SequenceNumber: 2},
		{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusBooked, SequenceNumber: 3},
		{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusBooked, SequenceNumber: 4},
		{ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(), Status: StatusPaymentPending, SequenceNumber: 5},
	}
	for _, e := range entries {
		repo.entries[e.ID] = e
		repo.order = append(repo.order, e.ID)
	}
	svc := newTestService(repo)

	view, err := svc.QueueForDoctor(context.Background(), doctor, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Payment-gated entries appear in neither list.
	if len(view.Previous) != 2 {
		t.Fatalf("expected 2 previous entries, got %d", len(view.Previous))
	}
	if view.Previous[0].SequenceNumber != 2 || view.Previous[1].SequenceNumber != 1 {
		t.Errorf("previous should be sequence-descending, got [%d, %d]",
			view.Previous[0].SequenceNumber, view.Previous[1].SequenceNumber)
	}

	if view.Current == nil || view.Current.SequenceNumber != 3 {
		t.Fatalf("expected current = sequence 3, got %+v", view.Current)
	}
	if view.Current.NextQueueID == nil || *view.Current.NextQueueID != view.Next[0].ID {
		t.Error("current should point at the following entry")
	}
	if view.Next[0].PreviousQueueID == nil || *view.Next[0].PreviousQueueID != view.Current.ID {
		t.Error("next entry should point back at current")
	}
	if view.Previous[0].NextQueueID == nil || *view.Previous[0].NextQueueID != view.Previous[1].ID {
		t.Error("previous list should be internally linked")
	}
}

func TestUpdateRemark(t *testing.T) {
	repo := newMockRepo()
	id := uuid.New()
	repo.entries[id] = &Entry{ID: id, Status: StatusBooked, DoctorID: uuid.New(), PatientID: uuid.New()}
	repo.order = append(repo.order, id)
	svc := newTestService(repo)

	e, err := svc.UpdateRemark(context.Background(), id, "walk-in")
	if err != nil {
		t.Fatal(err)
	}
	if e.Remark == nil || *e.Remark != "walk-in" {
		t.Error("remark not updated")
	}
	if e.Status != StatusBooked {
		t.Error("remark update must not change status")
	}
}
