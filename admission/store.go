package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TxFunc is the unit of work executed by Store.InTx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the storage boundary of the admission engine.
// It owns the transactional boundary over Inventory and Obligation records.
type Store interface {
	// InTx runs fn inside one transaction. It commits when fn returns nil and rolls back otherwise,
	// so no partial state survives a failed unit of work.
	InTx(ctx context.Context, fn TxFunc) error

	// ObligationsByActor is the non-locking read side. It honours the ConsistencyLevel in ctx.
	ObligationsByActor(ctx context.Context, actorID uuid.UUID, statuses ...Status) (Obligations, error)

	// LoadInventory reads an Inventory without locking it.
	LoadInventory(ctx context.Context, resourceID uuid.UUID) (Inventory, error)

	// PutInventory creates or replaces an Inventory. It is the hook for external catalog management.
	PutInventory(ctx context.Context, inventory Inventory) error

	// MarkOverdue moves ACTIVE obligations due before asOf to OVERDUE and returns how many moved.
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// Tx is the view of the Store inside one transaction.
type Tx interface {
	// LockInventory reads the Inventory with exclusive, read-for-update semantics.
	// Concurrent lockers of the same resource block until this transaction ends.
	LockInventory(ctx context.Context, resourceID uuid.UUID) (Inventory, error)

	SaveInventory(ctx context.Context, inventory Inventory) error

	// LockActor serializes transactions of the same actor until this transaction ends.
	LockActor(ctx context.Context, actorID uuid.UUID) error

	ObligationsByActor(ctx context.Context, actorID uuid.UUID, statuses ...Status) (Obligations, error)

	InsertObligation(ctx context.Context, obligation Obligation) error

	// LockObligation reads the Obligation with exclusive, read-for-update semantics.
	LockObligation(ctx context.Context, obligationID uuid.UUID) (Obligation, error)

	UpdateObligation(ctx context.Context, obligation Obligation) error
}
