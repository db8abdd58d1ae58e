package postgresengine

import (
	"time"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

// Option defines a functional option for configuring Store.
type Option func(*Store) error

// WithInventoryTableName sets the table name of the inventory records.
func WithInventoryTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return admission.ErrEmptyTableName
		}

		s.inventoryTableName = tableName

		return nil
	}
}

// WithObligationTableName sets the table name of the obligation records.
func WithObligationTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return admission.ErrEmptyTableName
		}

		s.obligationTableName = tableName

		return nil
	}
}

// WithLockTimeout bounds how long a transaction waits for a row or advisory lock.
// Zero keeps the server default.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) error {
		if timeout < 0 {
			return admission.ErrNegativeLockTimeout
		}

		s.lockTimeout = timeout

		return nil
	}
}

// WithLogger sets the logger for the Store.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: schema setup, overdue sweeps
// Warn level: lock contention, cleanup failures
// Error level: failures that abort an operation.
func WithLogger(logger admission.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. When set, it is used instead of the plain Logger.
func WithContextualLogger(logger admission.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store.
// It receives statement durations, transaction outcomes and database errors.
func WithMetrics(collector admission.MetricsCollector) Option {
	return func(s *Store) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Store. Each transaction gets one span.
func WithTracing(collector admission.TracingCollector) Option {
	return func(s *Store) error {
		s.tracingCollector = collector
		return nil
	}
}
