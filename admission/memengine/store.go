package memengine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

// ErrTransactionClosed is returned when a Tx is used after its InTx function returned.
var ErrTransactionClosed = errors.New("transaction already closed")

// Store is an in-memory admission.Store.
type Store struct {
	mu          sync.RWMutex
	inventories map[uuid.UUID]admission.Inventory
	obligations map[uuid.UUID]admission.Obligation
	locks       *lockTable
	lockTimeout time.Duration
}

// NewStore creates an empty in-memory Store.
func NewStore(options ...Option) (*Store, error) {
	s := &Store{
		inventories: make(map[uuid.UUID]admission.Inventory),
		obligations: make(map[uuid.UUID]admission.Obligation),
		locks:       newLockTable(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// InTx runs fn in a transaction. Staged writes are applied on a nil return and discarded otherwise.
// All locks taken inside the transaction are released when it ends.
func (s *Store) InTx(ctx context.Context, fn admission.TxFunc) error {
	tx := &storeTx{
		store:       s,
		held:        make(map[string]struct{}),
		inventories: make(map[uuid.UUID]admission.Inventory),
		obligations: make(map[uuid.UUID]admission.Obligation),
	}
	defer tx.close()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return errors.Join(admission.ErrTransactionFailed, err)
	}

	tx.commit()

	return nil
}

// ObligationsByActor returns the committed obligations of the actor having one of the statuses.
func (s *Store) ObligationsByActor(
	ctx context.Context,
	actorID uuid.UUID,
	statuses ...admission.Status,
) (admission.Obligations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return collectByActor(s.obligations, nil, actorID, statuses), nil
}

// LoadInventory returns the committed inventory record without locking it.
func (s *Store) LoadInventory(ctx context.Context, resourceID uuid.UUID) (admission.Inventory, error) {
	if err := ctx.Err(); err != nil {
		return admission.Inventory{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inventory, ok := s.inventories[resourceID]
	if !ok {
		return admission.Inventory{}, fmt.Errorf("%w: %s", admission.ErrResourceNotFound, resourceID)
	}

	return inventory, nil
}

// PutInventory creates or replaces an inventory record. It waits for the inventory lock.
func (s *Store) PutInventory(ctx context.Context, inventory admission.Inventory) error {
	if err := inventory.Validate(); err != nil {
		return err
	}

	return s.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		t := tx.(*storeTx)
		if err := t.lock(ctx, inventoryKey(inventory.ResourceID)); err != nil {
			return err
		}

		t.inventories[inventory.ResourceID] = inventory

		return nil
	})
}

// MarkOverdue moves ACTIVE obligations due before asOf to OVERDUE.
func (s *Store) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	s.mu.RLock()
	candidates := make([]uuid.UUID, 0)
	for id, o := range s.obligations {
		if o.Status == admission.StatusActive && o.DueAt.Before(asOf) {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	var marked int64

	err := s.InTx(ctx, func(ctx context.Context, tx admission.Tx) error {
		marked = 0

		for _, id := range candidates {
			o, err := tx.LockObligation(ctx, id)
			if err != nil {
				return err
			}

			// status may have changed while waiting for the lock
			if o.Status != admission.StatusActive || !o.DueAt.Before(asOf) {
				continue
			}

			if err = tx.UpdateObligation(ctx, o.Overdue()); err != nil {
				return err
			}

			marked++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return marked, nil
}

// Snapshot returns copies of all committed records.
func (s *Store) Snapshot() (map[uuid.UUID]admission.Inventory, map[uuid.UUID]admission.Obligation) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.inventories), maps.Clone(s.obligations)
}

func collectByActor(
	committed map[uuid.UUID]admission.Obligation,
	staged map[uuid.UUID]admission.Obligation,
	actorID uuid.UUID,
	statuses []admission.Status,
) admission.Obligations {
	result := make(admission.Obligations, 0)

	for id, o := range committed {
		if s, ok := staged[id]; ok {
			o = s
		}

		if o.ActorID == actorID && o.HasStatus(statuses...) {
			result = append(result, o)
		}
	}

	for id, o := range staged {
		if _, ok := committed[id]; ok {
			continue
		}

		if o.ActorID == actorID && o.HasStatus(statuses...) {
			result = append(result, o)
		}
	}

	result.SortStable()

	return result
}
