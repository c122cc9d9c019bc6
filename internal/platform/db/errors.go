package db

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicq/clinicq/internal/apperr"
)

// MapError translates driver errors into the shared taxonomy. Repositories
// call this at their boundary so services only ever see apperr kinds.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("record not found").Wrap(err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return apperr.Conflict("duplicate record").WithRef(pgErr.ConstraintName).Wrap(err)

	case pgerrcode.ForeignKeyViolation:
		return apperr.NotFound("referenced record does not exist").WithRef(pgErr.ConstraintName).Wrap(err)

	case pgerrcode.CheckViolation:
		return apperr.Validation("constraint %s violated", pgErr.ConstraintName).Wrap(err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return apperr.Conflict("transaction conflict, retry").Wrap(err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.TooManyConnections:
		return apperr.Infra("database connection error", err)

	default:
		return err
	}
}
