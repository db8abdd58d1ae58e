package memengine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

// storeTx stages writes on top of the committed state of its Store.
type storeTx struct {
	store       *Store
	held        map[string]struct{}
	inventories map[uuid.UUID]admission.Inventory
	obligations map[uuid.UUID]admission.Obligation
	closed      bool
}

func (tx *storeTx) lock(ctx context.Context, key string) error {
	if tx.closed {
		return ErrTransactionClosed
	}

	if _, ok := tx.held[key]; ok {
		return nil
	}

	if err := tx.store.locks.acquire(ctx, key, tx.store.lockTimeout); err != nil {
		return err
	}

	tx.held[key] = struct{}{}

	return nil
}

func (tx *storeTx) LockInventory(ctx context.Context, resourceID uuid.UUID) (admission.Inventory, error) {
	if err := tx.lock(ctx, inventoryKey(resourceID)); err != nil {
		return admission.Inventory{}, err
	}

	if inventory, ok := tx.inventories[resourceID]; ok {
		return inventory, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	inventory, ok := tx.store.inventories[resourceID]
	if !ok {
		return admission.Inventory{}, fmt.Errorf("%w: %s", admission.ErrResourceNotFound, resourceID)
	}

	return inventory, nil
}

func (tx *storeTx) SaveInventory(_ context.Context, inventory admission.Inventory) error {
	if tx.closed {
		return ErrTransactionClosed
	}

	if _, ok := tx.held[inventoryKey(inventory.ResourceID)]; !ok {
		return fmt.Errorf("%w: inventory %s saved without holding its lock", admission.ErrInvariantViolated, inventory.ResourceID)
	}

	if err := inventory.Validate(); err != nil {
		return err
	}

	tx.inventories[inventory.ResourceID] = inventory

	return nil
}

func (tx *storeTx) LockActor(ctx context.Context, actorID uuid.UUID) error {
	return tx.lock(ctx, actorKey(actorID))
}

func (tx *storeTx) ObligationsByActor(
	_ context.Context,
	actorID uuid.UUID,
	statuses ...admission.Status,
) (admission.Obligations, error) {
	if tx.closed {
		return nil, ErrTransactionClosed
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	return collectByActor(tx.store.obligations, tx.obligations, actorID, statuses), nil
}

func (tx *storeTx) InsertObligation(_ context.Context, obligation admission.Obligation) error {
	if tx.closed {
		return ErrTransactionClosed
	}

	if err := obligation.Validate(); err != nil {
		return err
	}

	tx.store.mu.RLock()
	_, exists := tx.store.obligations[obligation.ObligationID]
	tx.store.mu.RUnlock()

	if _, staged := tx.obligations[obligation.ObligationID]; exists || staged {
		return fmt.Errorf("%w: obligation %s already exists", admission.ErrWriteFailed, obligation.ObligationID)
	}

	tx.obligations[obligation.ObligationID] = obligation

	return nil
}

func (tx *storeTx) LockObligation(ctx context.Context, obligationID uuid.UUID) (admission.Obligation, error) {
	if err := tx.lock(ctx, obligationKey(obligationID)); err != nil {
		return admission.Obligation{}, err
	}

	if o, ok := tx.obligations[obligationID]; ok {
		return o, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	o, ok := tx.store.obligations[obligationID]
	if !ok {
		return admission.Obligation{}, fmt.Errorf("%w: %s", admission.ErrObligationNotFound, obligationID)
	}

	return o, nil
}

func (tx *storeTx) UpdateObligation(_ context.Context, obligation admission.Obligation) error {
	if tx.closed {
		return ErrTransactionClosed
	}

	if _, ok := tx.held[obligationKey(obligation.ObligationID)]; !ok {
		return fmt.Errorf("%w: obligation %s updated without holding its lock", admission.ErrInvariantViolated, obligation.ObligationID)
	}

	if err := obligation.Validate(); err != nil {
		return err
	}

	tx.obligations[obligation.ObligationID] = obligation

	return nil
}

func (tx *storeTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for id, inventory := range tx.inventories {
		tx.store.inventories[id] = inventory
	}

	for id, o := range tx.obligations {
		tx.store.obligations[id] = o
	}
}

// close releases all held locks. Staged writes not committed by then are dropped.
func (tx *storeTx) close() {
	if tx.closed {
		return
	}

	tx.closed = true

	for key := range tx.held {
		tx.store.locks.release(key)
	}

	clear(tx.held)
}
