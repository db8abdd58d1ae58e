package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

// ErrNilDependency is returned when an option receives a nil function.
var ErrNilDependency = errors.New("engine dependency must not be nil")

// Option defines a functional option for configuring Engine.
type Option func(*Engine) error

// WithPolicy replaces the whole admission policy.
func WithPolicy(policy admission.Policy) Option {
	return func(e *Engine) error {
		if err := policy.Validate(); err != nil {
			return err
		}

		e.policy = policy

		return nil
	}
}

// WithLoanPeriod sets the time between creating an obligation and its due date.
func WithLoanPeriod(period time.Duration) Option {
	return func(e *Engine) error {
		policy := e.policy
		policy.LoanPeriod = period

		return WithPolicy(policy)(e)
	}
}

// WithMaxOpenLoans sets how many REQUESTED or ACTIVE obligations an actor may hold.
func WithMaxOpenLoans(limit int) Option {
	return func(e *Engine) error {
		policy := e.policy
		policy.MaxOpenLoans = limit

		return WithPolicy(policy)(e)
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now == nil {
			return ErrNilDependency
		}

		e.now = now

		return nil
	}
}

// WithIDGenerator sets the generator of new obligation IDs. The default is uuid.NewV7.
func WithIDGenerator(newID func() (uuid.UUID, error)) Option {
	return func(e *Engine) error {
		if newID == nil {
			return ErrNilDependency
		}

		e.newID = newID

		return nil
	}
}

// WithStrictActorQuota makes RequestLoan lock the actor before the inventory.
// Without it, two concurrent requests of the same actor for different resources
// may both pass the quota check.
func WithStrictActorQuota() Option {
	return func(e *Engine) error {
		e.strictActorQuota = true
		return nil
	}
}

// WithLogger sets the logger for the Engine.
//
// Info level: business rejections and completed operations
// Warn level: contention on locks
// Error level: infrastructure failures and invariant violations.
func WithLogger(logger admission.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. When set, it is used instead of the plain Logger.
func WithContextualLogger(logger admission.ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
func WithMetrics(collector admission.MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine. Each public operation gets one span.
func WithTracing(collector admission.TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}
