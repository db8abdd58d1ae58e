package postgresengine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-admission-go/admission"
	"github.com/AntonStoeckl/library-admission-go/admission/postgresengine/internal/adapters"
)

// storeTx is the admission.Tx of one database transaction.
type storeTx struct {
	store *Store
	db    adapters.DBTx
}

// LockInventory is SELECT ... FOR UPDATE on the inventory row.
func (tx *storeTx) LockInventory(ctx context.Context, resourceID uuid.UUID) (admission.Inventory, error) {
	return tx.store.queryInventory(ctx, tx.db, actionLockInventory, resourceID, true)
}

func (tx *storeTx) SaveInventory(ctx context.Context, inventory admission.Inventory) error {
	if err := inventory.Validate(); err != nil {
		return err
	}

	sqlQuery, args, err := tx.store.buildUpdateInventoryQuery(inventory)
	if err != nil {
		return tx.store.buildFailed(ctx, actionSaveInventory, err)
	}

	rowsAffected, err := tx.store.exec(ctx, tx.db, actionSaveInventory, sqlQuery, args...)
	if err != nil {
		return err
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%w: %s", admission.ErrResourceNotFound, inventory.ResourceID)
	}

	return nil
}

// LockActor takes a transaction-scoped advisory lock keyed by the actor ID.
func (tx *storeTx) LockActor(ctx context.Context, actorID uuid.UUID) error {
	sqlQuery, args, err := tx.store.buildLockActorQuery(actorID)
	if err != nil {
		return tx.store.buildFailed(ctx, actionLockActor, err)
	}

	_, err = tx.store.exec(ctx, tx.db, actionLockActor, sqlQuery, args...)

	return err
}

func (tx *storeTx) ObligationsByActor(
	ctx context.Context,
	actorID uuid.UUID,
	statuses ...admission.Status,
) (admission.Obligations, error) {
	return tx.store.queryObligationsByActor(ctx, tx.db, actorID, statuses)
}

func (tx *storeTx) InsertObligation(ctx context.Context, obligation admission.Obligation) error {
	if err := obligation.Validate(); err != nil {
		return err
	}

	sqlQuery, args, err := tx.store.buildInsertObligationQuery(obligation)
	if err != nil {
		return tx.store.buildFailed(ctx, actionInsertObligation, err)
	}

	_, err = tx.store.exec(ctx, tx.db, actionInsertObligation, sqlQuery, args...)

	return err
}

// LockObligation is SELECT ... FOR UPDATE on the obligation row.
func (tx *storeTx) LockObligation(ctx context.Context, obligationID uuid.UUID) (admission.Obligation, error) {
	return tx.store.queryObligation(ctx, tx.db, obligationID)
}

func (tx *storeTx) UpdateObligation(ctx context.Context, obligation admission.Obligation) error {
	if err := obligation.Validate(); err != nil {
		return err
	}

	sqlQuery, args, err := tx.store.buildUpdateObligationQuery(obligation)
	if err != nil {
		return tx.store.buildFailed(ctx, actionUpdateObligation, err)
	}

	rowsAffected, err := tx.store.exec(ctx, tx.db, actionUpdateObligation, sqlQuery, args...)
	if err != nil {
		return err
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%w: %s", admission.ErrObligationNotFound, obligation.ObligationID)
	}

	return nil
}
