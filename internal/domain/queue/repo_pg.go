package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicq/clinicq/internal/apperr"
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

func (r *repoPG) beginner(ctx context.Context) *pgxpool.Pool {
	if p := db.PoolFromContext(ctx); p != nil {
		return p
	}
	return r.pool
}

const entryCols = `id, patient_id, doctor_id, status, sequence_number,
	skip_count, call_count, clock_in_count, payment_mode, payment_id,
	booked_by, completed_by, remark, prescription,
	created_at, started_at, completed_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.PatientID, &e.DoctorID, &e.Status, &e.SequenceNumber,
		&e.SkipCount, &e.CallCount, &e.ClockInCount, &e.PaymentMode, &e.PaymentID,
		&e.BookedBy, &e.CompletedBy, &e.Remark, &e.Prescription,
		&e.CreatedAt, &e.StartedAt, &e.CompletedAt, &e.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &e, nil
}

// Create books the entry in one transaction: reject a same-day active
// duplicate, lock the doctor row, take the next sequence number, and
// insert. No two concurrent bookings for one doctor can observe the same
// pre-increment value because both must hold the doctor row lock.
func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	tx, err := r.beginner(ctx).Begin(ctx)
	if err != nil {
		return db.MapError(err)
	}
	defer tx.Rollback(ctx)

	var existing uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM queue_entries
		WHERE doctor_id = $1 AND patient_id = $2
		  AND (created_at AT TIME ZONE 'UTC')::date = (NOW() AT TIME ZONE 'UTC')::date
		  AND status NOT IN ('COMPLETED', 'CANCELLED')`,
		e.DoctorID, e.PatientID).Scan(&existing)
	if err == nil {
		return apperr.Conflict("patient already has an active booking with this doctor today").
			WithRef(existing.String())
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return db.MapError(err)
	}

	var last int64
	err = tx.QueryRow(ctx,
		`SELECT last_sequence_number FROM doctors WHERE id = $1 FOR UPDATE`,
		e.DoctorID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("doctor %s not found", e.DoctorID)
	}
	if err != nil {
		return db.MapError(err)
	}
	e.SequenceNumber = last + 1

	if _, err := tx.Exec(ctx,
		`UPDATE doctors SET last_sequence_number = $2, updated_at = NOW() WHERE id = $1`,
		e.DoctorID, e.SequenceNumber); err != nil {
		return db.MapError(err)
	}

	e.ID = uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO queue_entries (id, patient_id, doctor_id, status, sequence_number,
			skip_count, call_count, clock_in_count, payment_mode, payment_id,
			booked_by, remark, prescription)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.PatientID, e.DoctorID, e.Status, e.SequenceNumber,
		e.SkipCount, e.CallCount, e.ClockInCount, e.PaymentMode, e.PaymentID,
		e.BookedBy, e.Remark, e.Prescription); err != nil {
		return db.MapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return db.MapError(err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, e *Entry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entries SET status=$2, skip_count=$3, call_count=$4,
			clock_in_count=$5, payment_id=$6, completed_by=$7, remark=$8,
			prescription=$9, started_at=$10, completed_at=$11, updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.Status, e.SkipCount, e.CallCount,
		e.ClockInCount, e.PaymentID, e.CompletedBy, e.Remark,
		e.Prescription, e.StartedAt, e.CompletedAt)
	return db.MapError(err)
}

func (r *repoPG) ListForDoctorToday(ctx context.Context, doctorID uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM queue_entries
		WHERE doctor_id = $1
		  AND (created_at AT TIME ZONE 'UTC')::date = (NOW() AT TIME ZONE 'UTC')::date
		ORDER BY sequence_number ASC`, doctorID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	query := `SELECT ` + entryCols + ` FROM queue_entries WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM queue_entries WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["doctor"]; ok {
		query += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["patient"]; ok {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["date"]; ok {
		query += fmt.Sprintf(` AND (created_at AT TIME ZONE 'UTC')::date = $%d`, idx)
		countQuery += fmt.Sprintf(` AND (created_at AT TIME ZONE 'UTC')::date = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
