package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/apperr"
	"github.com/clinicq/clinicq/internal/domain/queue"
	"github.com/clinicq/clinicq/internal/platform/activitylog"
	"github.com/clinicq/clinicq/internal/platform/payments"
)

type mockRepo struct {
	byID    map[uuid.UUID]*Payment
	byOrder map[string]uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{byID: make(map[uuid.UUID]*Payment), byOrder: make(map[string]uuid.UUID)}
}

func (m *mockRepo) Create(_ context.Context, p *Payment) error {
	p.ID = uuid.New()
	cp := *p
	m.byID[p.ID] = &cp
	m.byOrder[p.OrderID] = p.ID
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Payment, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("payment %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByOrderID(_ context.Context, orderID string) (*Payment, error) {
	id, ok := m.byOrder[orderID]
	if !ok {
		return nil, apperr.NotFound("payment for order %s not found", orderID)
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockRepo) Update(_ context.Context, p *Payment) error {
	if _, ok := m.byID[p.ID]; !ok {
		return apperr.NotFound("payment %s not found", p.ID)
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockRepo) ListForReference(_ context.Context, refType string, refID uuid.UUID) ([]*Payment, error) {
	var items []*Payment
	for _, p := range m.byID {
		if p.ReferenceType == refType && p.ReferenceID == refID {
			cp := *p
			items = append(items, &cp)
		}
	}
	return items, nil
}

type mockProvider struct {
	orders  int
	lastErr error
}

func (m *mockProvider) CreateOrder(_ context.Context, amount int64, currency, receipt string) (*payments.Order, error) {
	if m.lastErr != nil {
		return nil, m.lastErr
	}
	m.orders++
	return &payments.Order{ID: "order_test", Amount: amount, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

type mockGate struct {
	calls []uuid.UUID
	err   error
}

func (m *mockGate) VerifyPayment(_ context.Context, id uuid.UUID, paymentID uuid.UUID) (*queue.Entry, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, id)
	return &queue.Entry{ID: id, Status: queue.StatusBooked}, nil
}

const testSecret = "test-secret"
const testWebhookSecret = "test-webhook-secret"

func newTestService() (*Service, *mockRepo, *mockProvider, *mockGate) {
	repo := newMockRepo()
	provider := &mockProvider{}
	gate := &mockGate{}
	svc := NewService(repo, provider, gate, Secrets{
		Provider: "razorpay", Secret: testSecret, WebhookSecret: testWebhookSecret,
	}, activitylog.Nop{})
	return svc, repo, provider, gate
}

func createTestOrder(t *testing.T, svc *Service) *Payment {
	t.Helper()
	p, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		EntryID: uuid.New(), Amount: 50000, Currency: "INR",
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCreateOrder(t *testing.T) {
	svc, repo, provider, _ := newTestService()

	p := createTestOrder(t, svc)

	if p.Status != StatusCreated {
		t.Errorf("expected CREATED, got %s", p.Status)
	}
	if p.OrderID != "order_test" {
		t.Errorf("unexpected order id %q", p.OrderID)
	}
	if provider.orders != 1 {
		t.Errorf("expected one provider call, got %d", provider.orders)
	}
	if _, ok := repo.byOrder["order_test"]; !ok {
		t.Error("payment not persisted under its order id")
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error for missing entry, got %v", err)
	}
	if _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{EntryID: uuid.New()}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error for zero amount, got %v", err)
	}
}

func TestVerify_Success(t *testing.T) {
	svc, repo, _, gate := newTestService()
	p := createTestOrder(t, svc)

	sig := payments.Sign(p.OrderID, "pay_1", testSecret)
	out, err := svc.Verify(context.Background(), p.OrderID, "pay_1", sig)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusPaid {
		t.Errorf("expected PAID, got %s", out.Status)
	}
	if repo.byID[p.ID].Status != StatusPaid {
		t.Error("paid status not persisted")
	}
	if len(gate.calls) != 1 || gate.calls[0] != p.ReferenceID {
		t.Error("queue entry not confirmed")
	}
}

func TestVerify_ForgedSignature(t *testing.T) {
	svc, repo, _, gate := newTestService()
	p := createTestOrder(t, svc)

	_, err := svc.Verify(context.Background(), p.OrderID, "pay_1", "forged")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.byID[p.ID].Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", repo.byID[p.ID].Status)
	}
	if len(gate.calls) != 0 {
		t.Error("queue must be untouched on a forged signature")
	}
}

func TestVerify_Idempotent(t *testing.T) {
	svc, _, _, gate := newTestService()
	p := createTestOrder(t, svc)

	sig := payments.Sign(p.OrderID, "pay_1", testSecret)
	if _, err := svc.Verify(context.Background(), p.OrderID, "pay_1", sig); err != nil {
		t.Fatal(err)
	}

	// Second call (webhook replay) must succeed without re-confirming.
	out, err := svc.Verify(context.Background(), p.OrderID, "pay_1", sig)
	if err != nil {
		t.Fatalf("re-verifying a paid payment must be a no-op success, got %v", err)
	}
	if out.Status != StatusPaid {
		t.Errorf("expected PAID, got %s", out.Status)
	}
	if len(gate.calls) != 1 {
		t.Errorf("expected one queue confirmation, got %d", len(gate.calls))
	}
}

func TestVerify_RetryAfterFailure(t *testing.T) {
	svc, _, _, _ := newTestService()
	p := createTestOrder(t, svc)

	if _, err := svc.Verify(context.Background(), p.OrderID, "pay_1", "forged"); err == nil {
		t.Fatal("expected forged signature to fail")
	}

	// A later legitimate verification still succeeds.
	sig := payments.Sign(p.OrderID, "pay_1", testSecret)
	out, err := svc.Verify(context.Background(), p.OrderID, "pay_1", sig)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusPaid {
		t.Errorf("expected PAID after retry, got %s", out.Status)
	}
}

func TestVerify_GateStateConflictTolerated(t *testing.T) {
	svc, _, _, gate := newTestService()
	p := createTestOrder(t, svc)
	gate.err = apperr.StateConflict("cannot verify-payment from BOOKED")

	sig := payments.Sign(p.OrderID, "pay_1", testSecret)
	out, err := svc.Verify(context.Background(), p.OrderID, "pay_1", sig)
	if err != nil {
		t.Fatalf("an already-booked entry must not fail the settlement, got %v", err)
	}
	if out.Status != StatusPaid {
		t.Errorf("expected PAID, got %s", out.Status)
	}
}

func TestVerify_UnknownOrder(t *testing.T) {
	svc, _, _, _ := newTestService()
	if _, err := svc.Verify(context.Background(), "order_missing", "pay_1", "sig"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHandleWebhook(t *testing.T) {
	svc, _, _, gate := newTestService()
	p := createTestOrder(t, svc)

	body, _ := json.Marshal(map[string]string{
		"order_id":   p.OrderID,
		"payment_id": "pay_1",
		"signature":  payments.Sign(p.OrderID, "pay_1", testSecret),
	})
	bodySig := webhookSig(body, testWebhookSecret)

	out, err := svc.HandleWebhook(context.Background(), body, bodySig)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusPaid {
		t.Errorf("expected PAID, got %s", out.Status)
	}
	if len(gate.calls) != 1 {
		t.Error("queue entry not confirmed via webhook")
	}
}

func TestHandleWebhook_BadBodySignature(t *testing.T) {
	svc, _, _, gate := newTestService()
	p := createTestOrder(t, svc)

	body, _ := json.Marshal(map[string]string{
		"order_id":   p.OrderID,
		"payment_id": "pay_1",
		"signature":  payments.Sign(p.OrderID, "pay_1", testSecret),
	})

	if _, err := svc.HandleWebhook(context.Background(), body, "forged"); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
	if len(gate.calls) != 0 {
		t.Error("queue must be untouched when the webhook signature fails")
	}
}

func TestHandleWebhook_MalformedPayload(t *testing.T) {
	svc, _, _, _ := newTestService()

	body := []byte(`not-json`)
	if _, err := svc.HandleWebhook(context.Background(), body, webhookSig(body, testWebhookSecret)); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	empty := []byte(`{}`)
	if _, err := svc.HandleWebhook(context.Background(), empty, webhookSig(empty, testWebhookSecret)); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error for missing order_id, got %v", err)
	}
}

// webhookSig mirrors the provider's webhook signing for tests.
func webhookSig(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
