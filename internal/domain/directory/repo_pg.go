package directory

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

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) queryable {
	if p := db.PoolFromContext(ctx); p != nil {
		return p
	}
	return r.pool
}

const doctorCols = `id, name, specialty, last_sequence_number, active, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.LastSequenceNumber, &d.Active,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctors (id, name, specialty, active)
		VALUES ($1, $2, $3, $4)`,
		d.ID, d.Name, d.Specialty, d.Active)
	return db.MapError(err)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

// Update never touches last_sequence_number; only the queue's booking
// transaction moves that counter.
func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors SET name=$2, specialty=$3, active=$4, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.Specialty, d.Active)
	return db.MapError(err)
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	return db.MapError(err)
}

func (r *doctorRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error) {
	where := ``
	if activeOnly {
		where = ` WHERE active`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`+where).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM doctors`+where+` ORDER BY name ASC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if p := db.PoolFromContext(ctx); p != nil {
		return p
	}
	return r.pool
}

const patientCols = `id, name, phone, email, birth_date, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.BirthDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, name, phone, email, birth_date)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Phone, p.Email, p.BirthDate)
	return db.MapError(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET name=$2, phone=$3, email=$4, birth_date=$5, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Phone, p.Email, p.BirthDate)
	return db.MapError(err)
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return db.MapError(err)
}

func (r *patientRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	where := ``
	var args []interface{}
	if search != "" {
		where = ` WHERE name ILIKE $1 OR phone = $2`
		args = append(args, "%"+search+"%", search)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	query := `SELECT ` + patientCols + ` FROM patients` + where
	if search != "" {
		query += ` ORDER BY name ASC LIMIT $3 OFFSET $4`
	} else {
		query += ` ORDER BY name ASC LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
