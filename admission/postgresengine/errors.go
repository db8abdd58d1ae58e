package postgresengine

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

const (
	sqlStateLockNotAvailable     = "55P03"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateSerializationFailure = "40001"
	sqlStateCheckViolation       = "23514"
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
)

// sqlState extracts the SQLSTATE from pgx and lib/pq errors.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return ""
}

// classify joins err with the admission error it represents, if any.
func classify(err error) error {
	switch sqlState(err) {
	case sqlStateLockNotAvailable, sqlStateDeadlockDetected, sqlStateSerializationFailure:
		return errors.Join(admission.ErrContention, err)
	case sqlStateCheckViolation:
		return errors.Join(admission.ErrInvariantViolated, err)
	case sqlStateForeignKeyViolation:
		return errors.Join(admission.ErrResourceNotFound, err)
	default:
		return err
	}
}

// errorType returns a metrics label for err.
func errorType(err error) string {
	switch sqlState(err) {
	case sqlStateLockNotAvailable:
		return "lock_timeout"
	case sqlStateDeadlockDetected:
		return "deadlock"
	case sqlStateSerializationFailure:
		return "serialization_failure"
	case sqlStateCheckViolation:
		return "check_violation"
	case sqlStateUniqueViolation:
		return "unique_violation"
	case sqlStateForeignKeyViolation:
		return "foreign_key_violation"
	default:
		return admission.RejectionReason(err)
	}
}
