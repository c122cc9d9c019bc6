package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicq/clinicq/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if p := db.PoolFromContext(ctx); p != nil {
		return p
	}
	return r.pool
}

const paymentCols = `id, reference_type, reference_id, provider, order_id, payment_id,
	signature, amount, currency, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ReferenceType, &p.ReferenceID, &p.Provider, &p.OrderID, &p.PaymentID,
		&p.Signature, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payments (id, reference_type, reference_id, provider, order_id,
			payment_id, signature, amount, currency, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.ReferenceType, p.ReferenceID, p.Provider, p.OrderID,
		p.PaymentID, p.Signature, p.Amount, p.Currency, p.Status)
	return db.MapError(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE id = $1`, id))
}

func (r *repoPG) GetByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE order_id = $1`, orderID))
}

func (r *repoPG) Update(ctx context.Context, p *Payment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE payments SET payment_id=$2, signature=$3, status=$4, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.PaymentID, p.Signature, p.Status)
	return db.MapError(err)
}

func (r *repoPG) ListForReference(ctx context.Context, refType string, refID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+paymentCols+` FROM payments
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at DESC`, refType, refID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
