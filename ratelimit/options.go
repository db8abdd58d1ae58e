package ratelimit

import (
	"errors"
	"time"
)

var (
	ErrInvalidThreshold     = errors.New("threshold must be at least 1")
	ErrInvalidBlockDuration = errors.New("block duration must be positive")
	ErrNilClock             = errors.New("clock must not be nil")
)

// Logger is the subset of *slog.Logger the Limiter logs to.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MetricsCollector receives limiter counters.
type MetricsCollector interface {
	IncrementCounter(metric string, labels map[string]string)
}

// Option defines a functional option for configuring Limiter.
type Option func(*Limiter) error

// WithThreshold sets the number of consecutive failures that blocks an origin. Default is 5.
func WithThreshold(threshold int) Option {
	return func(l *Limiter) error {
		if threshold < 1 {
			return ErrInvalidThreshold
		}

		l.threshold = threshold

		return nil
	}
}

// WithBlockDuration sets how long an origin stays blocked. Default is 15 minutes.
func WithBlockDuration(d time.Duration) Option {
	return func(l *Limiter) error {
		if d <= 0 {
			return ErrInvalidBlockDuration
		}

		l.blockDuration = d

		return nil
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) error {
		if now == nil {
			return ErrNilClock
		}

		l.now = now

		return nil
	}
}

// WithLogger sets the logger. Blocks are logged at Warn level, single failures at Debug level.
func WithLogger(logger Logger) Option {
	return func(l *Limiter) error {
		l.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector MetricsCollector) Option {
	return func(l *Limiter) error {
		l.metricsCollector = collector
		return nil
	}
}
