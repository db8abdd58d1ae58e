package admission

import (
	"context"
	"errors"
)

// Business rejections.
var (
	ErrResourceNotFound    = errors.New("resource not found")
	ErrResourceUnavailable = errors.New("resource has no available copies")
	ErrActorHasOverdue     = errors.New("actor has overdue obligations")
	ErrActorQuotaExceeded  = errors.New("actor reached the concurrent loan limit")
	ErrObligationNotFound  = errors.New("obligation not found")
	ErrInvalidTransition   = errors.New("obligation status transition not allowed")
)

// ErrContention signals that the store gave up waiting for a lock (lock timeout, deadlock,
// serialization failure). It is transient and safe to retry, unlike ErrResourceUnavailable.
var ErrContention = errors.New("contention while waiting for exclusive access")

// ErrInvariantViolated signals a state that the admission algorithm must never produce.
var ErrInvariantViolated = errors.New("admission invariant violated")

var (
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrEmptyTableName        = errors.New("empty table name supplied")
	ErrInvalidPolicy         = errors.New("invalid admission policy")
	ErrNegativeLockTimeout   = errors.New("lock timeout must not be negative")
	ErrQueryFailed           = errors.New("querying the store failed")
	ErrWriteFailed           = errors.New("writing to the store failed")
	ErrScanFailed            = errors.New("scanning a database row failed")
	ErrBuildingQueryFailed   = errors.New("building the sql query failed")
	ErrTransactionFailed     = errors.New("transaction handling failed")
)

var businessRejections = []error{
	ErrResourceNotFound,
	ErrResourceUnavailable,
	ErrActorHasOverdue,
	ErrActorQuotaExceeded,
	ErrObligationNotFound,
	ErrInvalidTransition,
}

// IsBusinessRejection reports whether err is an expected business outcome rather than a fault.
func IsBusinessRejection(err error) bool {
	for _, rejection := range businessRejections {
		if errors.Is(err, rejection) {
			return true
		}
	}

	return false
}

// IsRetryable reports whether err is a transient store condition the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}

// RejectionReason maps an error onto a short, stable label for logs and metrics.
func RejectionReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrResourceNotFound):
		return "resource_not_found"
	case errors.Is(err, ErrResourceUnavailable):
		return "resource_unavailable"
	case errors.Is(err, ErrActorHasOverdue):
		return "actor_has_overdue"
	case errors.Is(err, ErrActorQuotaExceeded):
		return "actor_quota_exceeded"
	case errors.Is(err, ErrObligationNotFound):
		return "obligation_not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrInvariantViolated):
		return "invariant_violated"
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "context_deadline_exceeded"
	default:
		return "other"
	}
}
