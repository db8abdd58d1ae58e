// Package retry provides the caller-side retry policy for transient admission failures.
//
// The admission engine never retries by itself. A caller that wants to ride out lock
// contention wraps its call in OnContention, which retries admission.ErrContention with
// exponential backoff and jitter and fails fast on everything else, business rejections included.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

const (
	metricRetries           = "admission_retries_total"
	metricRetryDelay        = "admission_retry_delay_seconds"
	metricMaxRetriesReached = "admission_max_retries_reached_total"
)

var (
	// ErrNilMetricsCollector is returned when a nil metrics collector is provided to WithMetrics.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	// ErrEmptyOperation is returned when an empty operation name is provided to WithMetrics.
	ErrEmptyOperation = errors.New("operation must not be empty")

	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// Func is a unit of work that may be retried.
type Func func(ctx context.Context) error

// Metrics describes how a retried call went.
type Metrics struct {
	Attempts      int
	TotalDelay    time.Duration
	LastErrorType string
}

type config struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	metricsCollector admission.MetricsCollector
	operation        string
}

// Option configures retry behavior.
type Option func(*config) error

// OnContention executes fn and retries it while it fails with admission.ErrContention.
//
// Retry Schedule (default): 0 ms, 10 ms, 20 ms, 40 ms, 80 ms, 160 ms (with 30% jitter)
//
// A context.DeadlineExceeded is not retried, neither are business rejections.
func OnContention(ctx context.Context, fn Func, options ...Option) (Metrics, error) {
	cfg := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}

	for _, option := range options {
		if err := option(cfg); err != nil {
			return Metrics{}, err
		}
	}

	var (
		meta    Metrics
		lastErr error
	)

	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // math/rand is sufficient for jitter
			backoffDelay := delay + time.Duration(jitter)

			cfg.recordDuration(ctx, metricRetryDelay, backoffDelay, map[string]string{
				"operation":      cfg.operation,
				"attempt_number": strconv.Itoa(attempt),
			})

			timer := time.NewTimer(backoffDelay)
			select {
			case <-timer.C:
				meta.TotalDelay += backoffDelay
			case <-ctx.Done():
				timer.Stop()
				meta.LastErrorType = admission.RejectionReason(ctx.Err())

				return meta, ctx.Err()
			}
		}

		meta.Attempts++

		lastErr = fn(ctx)
		meta.LastErrorType = admission.RejectionReason(lastErr)

		if lastErr == nil {
			return meta, nil
		}

		if !admission.IsRetryable(lastErr) {
			return meta, lastErr
		}

		if attempt < cfg.maxAttempts-1 {
			cfg.incrementCounter(ctx, metricRetries, map[string]string{
				"operation":      cfg.operation,
				"attempt_number": strconv.Itoa(attempt + 1),
			})
		}
	}

	cfg.incrementCounter(ctx, metricMaxRetriesReached, map[string]string{
		"operation":        cfg.operation,
		"final_error_type": meta.LastErrorType,
	})

	return meta, lastErr
}

// WithMaxAttempts sets the maximum number of attempts, the first one included.
func WithMaxAttempts(attempts int) Option {
	return func(c *config) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		c.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
// Actual delays: baseDelay, baseDelay*2, baseDelay*4, baseDelay*8, etc.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *config) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		c.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the jitter as a fraction of the backoff delay, from 0.0 to 1.0.
func WithJitterFactor(factor float64) Option {
	return func(c *config) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		c.jitterFactor = factor

		return nil
	}
}

// WithMetrics sets the metrics collector. operation labels all retry metrics.
func WithMetrics(collector admission.MetricsCollector, operation string) Option {
	return func(c *config) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		if operation == "" {
			return ErrEmptyOperation
		}

		c.metricsCollector = collector
		c.operation = operation

		return nil
	}
}

func (c *config) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(admission.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metric, labels)
}

func (c *config) recordDuration(ctx context.Context, metric string, d time.Duration, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(admission.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	c.metricsCollector.RecordDuration(metric, d, labels)
}
