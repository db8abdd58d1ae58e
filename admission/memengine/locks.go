package memengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

// lockTable hands out one exclusive lock per key.
// A lock is a buffered channel of capacity one, so waiting can be combined with ctx and a timer.
type lockTable struct {
	mu    sync.Mutex
	byKey map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{byKey: make(map[string]chan struct{})}
}

func (lt *lockTable) slot(key string) chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	ch, ok := lt.byKey[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lt.byKey[key] = ch
	}

	return ch
}

// acquire blocks until the lock for key is free, ctx is done, or timeout elapses (if positive).
func (lt *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := lt.slot(key)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("%w: lock timeout of %s exceeded on %s", admission.ErrContention, timeout, key)
	}
}

func (lt *lockTable) release(key string) {
	<-lt.slot(key)
}

func inventoryKey(id uuid.UUID) string  { return "inventory:" + id.String() }
func obligationKey(id uuid.UUID) string { return "obligation:" + id.String() }
func actorKey(id uuid.UUID) string      { return "actor:" + id.String() }
