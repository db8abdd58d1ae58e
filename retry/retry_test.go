package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

type counterSpy struct {
	mu       sync.Mutex
	counters map[string]int
}

func (c *counterSpy) RecordDuration(string, time.Duration, map[string]string) {}
func (c *counterSpy) RecordValue(string, float64, map[string]string)          {}

func (c *counterSpy) IncrementCounter(metric string, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters[metric]++
}

func Test_OnContention_Success_NoRetries(t *testing.T) {
	callCount := 0

	meta, err := OnContention(context.Background(), func(_ context.Context) error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, time.Duration(0), meta.TotalDelay)
	assert.Equal(t, "none", meta.LastErrorType)
}

func Test_OnContention_RetriesContention(t *testing.T) {
	callCount := 0

	meta, err := OnContention(context.Background(), func(_ context.Context) error {
		callCount++
		if callCount < 3 {
			return fmt.Errorf("lock inventory: %w", admission.ErrContention)
		}
		return nil
	}, WithBaseDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 3, meta.Attempts)
	assert.Greater(t, meta.TotalDelay, time.Duration(0))
}

func Test_OnContention_BusinessRejectionFailsFast(t *testing.T) {
	callCount := 0

	meta, err := OnContention(context.Background(), func(_ context.Context) error {
		callCount++
		return admission.ErrResourceUnavailable
	})

	assert.ErrorIs(t, err, admission.ErrResourceUnavailable)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, "resource_unavailable", meta.LastErrorType)
}

func Test_OnContention_MaxAttemptsReached(t *testing.T) {
	// arrange
	spy := &counterSpy{counters: map[string]int{}}
	callCount := 0

	// act
	meta, err := OnContention(context.Background(), func(_ context.Context) error {
		callCount++
		return admission.ErrContention
	}, WithMaxAttempts(3), WithBaseDelay(time.Millisecond), WithJitterFactor(0), WithMetrics(spy, "request_loan"))

	// assert
	assert.ErrorIs(t, err, admission.ErrContention)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 3, meta.Attempts)
	assert.Equal(t, 3*time.Millisecond, meta.TotalDelay)
	assert.Equal(t, "contention", meta.LastErrorType)
	assert.Equal(t, 2, spy.counters[metricRetries])
	assert.Equal(t, 1, spy.counters[metricMaxRetriesReached])
}

func Test_OnContention_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	_, err := OnContention(ctx, func(_ context.Context) error {
		callCount++
		cancel()
		return admission.ErrContention
	}, WithBaseDelay(time.Hour))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func Test_OnContention_InvalidOptions(t *testing.T) {
	fn := func(_ context.Context) error { return nil }

	tests := []struct {
		name        string
		option      Option
		expectedErr error
	}{
		{name: "zero attempts", option: WithMaxAttempts(0), expectedErr: ErrInvalidMaxAttempts},
		{name: "negative delay", option: WithBaseDelay(-time.Millisecond), expectedErr: ErrNegativeBaseDelay},
		{name: "jitter above one", option: WithJitterFactor(1.5), expectedErr: ErrInvalidJitterFactor},
		{name: "nil collector", option: WithMetrics(nil, "x"), expectedErr: ErrNilMetricsCollector},
		{name: "empty operation", option: WithMetrics(&counterSpy{}, ""), expectedErr: ErrEmptyOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OnContention(context.Background(), fn, tt.option)

			assert.True(t, errors.Is(err, tt.expectedErr))
		})
	}
}
