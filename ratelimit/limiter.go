package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultThreshold     = 5
	DefaultBlockDuration = 15 * time.Minute
)

const (
	metricFailures      = "ratelimit_failures_total"
	metricBlocks        = "ratelimit_blocks_total"
	metricRejectedCheck = "ratelimit_blocked_checks_total"

	logMsgFailure = "authentication failure recorded"
	logMsgBlocked = "origin blocked after consecutive failures"

	logAttrOrigin       = "origin"
	logAttrFailures     = "failures"
	logAttrBlockedUntil = "blocked_until"
)

// entry is the state of one origin. evicted marks an entry that was removed from the map,
// so a goroutine still holding it retries with a fresh one.
type entry struct {
	mu           sync.Mutex
	failures     int
	blockedUntil time.Time
	evicted      bool
}

// blockElapsed reports whether the entry had a block that is over at now.
func (e *entry) blockElapsed(now time.Time) bool {
	return !e.blockedUntil.IsZero() && !now.Before(e.blockedUntil)
}

// Limiter tracks consecutive failures per origin. It is safe for concurrent use;
// operations on different origins never wait for each other.
type Limiter struct {
	entries          sync.Map // origin -> *entry
	threshold        int
	blockDuration    time.Duration
	now              func() time.Time
	logger           Logger
	metricsCollector MetricsCollector
}

// New creates a Limiter with threshold 5 and a 15 minute block.
func New(options ...Option) (*Limiter, error) {
	l := &Limiter{
		threshold:     DefaultThreshold,
		blockDuration: DefaultBlockDuration,
		now:           time.Now,
	}

	for _, option := range options {
		if err := option(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// IsBlocked reports whether origin is blocked right now. An elapsed block is removed.
func (l *Limiter) IsBlocked(origin string) bool {
	v, ok := l.entries.Load(origin)
	if !ok {
		return false
	}

	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.evicted || e.blockedUntil.IsZero() {
		return false
	}

	if l.now().Before(e.blockedUntil) {
		l.incrementCounter(metricRejectedCheck)
		return true
	}

	l.evict(origin, e)

	return false
}

// RecordFailure counts one failure of origin and blocks it once the threshold is reached.
func (l *Limiter) RecordFailure(origin string) {
	for {
		v, _ := l.entries.LoadOrStore(origin, &entry{})
		e := v.(*entry)

		e.mu.Lock()

		if e.evicted {
			e.mu.Unlock()
			continue
		}

		now := l.now()
		if e.blockElapsed(now) {
			e.failures = 0
			e.blockedUntil = time.Time{}
		}

		e.failures++
		failures := e.failures

		blocked := failures >= l.threshold
		if blocked {
			e.blockedUntil = now.Add(l.blockDuration)
		}

		blockedUntil := e.blockedUntil
		e.mu.Unlock()

		l.incrementCounter(metricFailures)

		if blocked {
			l.incrementCounter(metricBlocks)
			l.logWarn(logMsgBlocked, logAttrOrigin, origin, logAttrFailures, failures, logAttrBlockedUntil, blockedUntil)
		} else {
			l.logDebug(logMsgFailure, logAttrOrigin, origin, logAttrFailures, failures)
		}

		return
	}
}

// RecordSuccess clears all state of origin.
func (l *Limiter) RecordSuccess(origin string) {
	v, ok := l.entries.Load(origin)
	if !ok {
		return
	}

	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.evicted {
		l.evict(origin, e)
	}
}

// FailureCount returns the current consecutive failure count of origin.
// An elapsed block counts as zero.
func (l *Limiter) FailureCount(origin string) int {
	v, ok := l.entries.Load(origin)
	if !ok {
		return 0
	}

	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.evicted || e.blockElapsed(l.now()) {
		return 0
	}

	return e.failures
}

// Len returns the number of tracked origins, including elapsed ones not yet cleaned up.
func (l *Limiter) Len() int {
	n := 0

	l.entries.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

// evict removes e from the map. The caller must hold e.mu.
func (l *Limiter) evict(origin string, e *entry) {
	e.evicted = true
	l.entries.CompareAndDelete(origin, e)
}

func (l *Limiter) incrementCounter(metric string) {
	if l.metricsCollector != nil {
		l.metricsCollector.IncrementCounter(metric, nil)
	}
}

func (l *Limiter) logDebug(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

func (l *Limiter) logWarn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}
