// Package payment persists provider payments and gates queue entries on
// signature verification.
package payment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of a payment row.
type Status string

const (
	StatusCreated Status = "CREATED"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
)

// ReferenceQueueEntry is the only reference type today; the column
// exists so receipts or invoices can share the table later.
const ReferenceQueueEntry = "queue_entry"

// Payment links a provider order to the booking it pays for.
type Payment struct {
	ID            uuid.UUID `json:"id"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   uuid.UUID `json:"reference_id"`
	Provider      string    `json:"provider"`
	OrderID       string    `json:"order_id"`
	PaymentID     *string   `json:"payment_id,omitempty"`
	Signature     *string   `json:"signature,omitempty"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
