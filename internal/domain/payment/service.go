package payment

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/apperr"
	"github.com/clinicq/clinicq/internal/domain/queue"
	"github.com/clinicq/clinicq/internal/platform/activitylog"
	"github.com/clinicq/clinicq/internal/platform/payments"
)

// QueueGate is the queue-side confirmation of a verified payment.
// Satisfied by *queue.Service.
type QueueGate interface {
	VerifyPayment(ctx context.Context, id uuid.UUID, paymentID uuid.UUID) (*queue.Entry, error)
}

// Secrets holds the provider credentials the gate verifies against.
type Secrets struct {
	Provider      string
	Secret        string
	WebhookSecret string
}

type Service struct {
	repo     Repository
	provider payments.Provider
	gate     QueueGate
	secrets  Secrets
	activity activitylog.Recorder
}

func NewService(repo Repository, provider payments.Provider, gate QueueGate, secrets Secrets, activity activitylog.Recorder) *Service {
	return &Service{repo: repo, provider: provider, gate: gate, secrets: secrets, activity: activity}
}

// CreateOrderRequest starts an online payment for a queue entry.
type CreateOrderRequest struct {
	EntryID  uuid.UUID `json:"entry_id"`
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency"`
}

func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Payment, error) {
	if req.EntryID == uuid.Nil {
		return nil, apperr.Validation("entry_id is required")
	}
	if req.Amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}

	order, err := s.provider.CreateOrder(ctx, req.Amount, req.Currency, req.EntryID.String())
	if err != nil {
		return nil, apperr.Infra("payment order creation failed", err)
	}

	p := &Payment{
		ReferenceType: ReferenceQueueEntry,
		ReferenceID:   req.EntryID,
		Provider:      s.secrets.Provider,
		OrderID:       order.ID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        StatusCreated,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, activitylog.Entry{
		Action: "payment.create_order", EntityType: "payment", EntityID: p.ID.String(),
		Detail: map[string]interface{}{"order_id": p.OrderID, "amount": p.Amount},
	})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListForEntry(ctx context.Context, entryID uuid.UUID) ([]*Payment, error) {
	return s.repo.ListForReference(ctx, ReferenceQueueEntry, entryID)
}

// Verify checks the provider signature for an order. On success the
// payment is marked PAID and the linked queue entry moves to BOOKED; on
// a forged signature the payment is marked FAILED and the queue entry
// is left untouched. Verifying an already-PAID payment is a no-op
// success, so the explicit client call and the provider webhook can
// both land without conflict.
func (s *Service) Verify(ctx context.Context, orderID, paymentID, signature string) (*Payment, error) {
	p, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusPaid {
		return p, nil
	}

	if !payments.VerifySignature(orderID, paymentID, signature, s.secrets.Secret) {
		p.Status = StatusFailed
		if err := s.repo.Update(ctx, p); err != nil {
			return nil, err
		}
		s.activity.Record(ctx, activitylog.Entry{
			Action: "payment.verify_failed", EntityType: "payment", EntityID: p.ID.String(),
			Detail: map[string]interface{}{"order_id": orderID},
		})
		return nil, apperr.Validation("invalid payment signature").WithRef(p.ID.String())
	}

	p.Status = StatusPaid
	p.PaymentID = &paymentID
	p.Signature = &signature
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	if _, err := s.gate.VerifyPayment(ctx, p.ReferenceID, p.ID); err != nil {
		// The entry may already be BOOKED if a concurrent verification
		// won; the payment itself is settled either way.
		if !apperr.IsKind(err, apperr.KindStateConflict) {
			return nil, err
		}
	}
	s.activity.Record(ctx, activitylog.Entry{
		Action: "payment.verified", EntityType: "payment", EntityID: p.ID.String(),
		Detail: map[string]interface{}{"order_id": orderID},
	})
	return p, nil
}

// webhookEvent is the provider's callback payload: the same triple the
// client submits, delivered server-to-server.
type webhookEvent struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// HandleWebhook authenticates the raw body against the webhook secret
// and runs the regular verification for the delivered triple.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, bodySignature string) (*Payment, error) {
	if !payments.VerifyWebhook(body, bodySignature, s.secrets.WebhookSecret) {
		return nil, apperr.Unauthorized("invalid webhook signature")
	}
	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, apperr.Validation("malformed webhook payload").Wrap(err)
	}
	if evt.OrderID == "" {
		return nil, apperr.Validation("webhook payload missing order_id")
	}
	return s.Verify(ctx, evt.OrderID, evt.PaymentID, evt.Signature)
}
