// Package admission provides the core types for admitting loans of scarce, countable
// library resources under concurrent demand.
//
// This package defines the data records and the storage boundary shared by the
// admission engine and its store implementations:
//   - Inventory: total and available copies of one resource
//   - Obligation: one loan of one resource by one actor
//   - Policy: loan period and concurrent-loan limit
//   - Store / Tx: the transactional storage boundary the engine drives
//
// Business rejections (ErrResourceNotFound, ErrResourceUnavailable, ErrActorHasOverdue,
// ErrActorQuotaExceeded) are expected outcomes and are distinct from the transient
// ErrContention and the bug-class ErrInvariantViolated.
//
// Common usage pattern:
//
//	store, _ := postgresengine.NewStoreFromPGXPool(pool)
//	e, _ := engine.New(store, engine.WithLogger(logger))
//
//	obligation, err := e.RequestLoan(ctx, actorID, resourceID)
//	switch {
//	case admission.IsBusinessRejection(err):
//		// render an actionable message
//	case admission.IsRetryable(err):
//		// retry later
//	case err != nil:
//		// fault
//	}
package admission
