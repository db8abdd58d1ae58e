// Package memengine provides an in-memory implementation of admission.Store.
//
// It offers the same locking semantics as the PostgreSQL store: LockInventory, LockObligation
// and LockActor take exclusive per-key locks that are held until the transaction ends, and
// writes are staged inside the transaction and applied atomically on commit.
// Waiting for a lock honours context cancellation and the optional lock timeout, which
// surfaces as admission.ErrContention.
//
// It is meant for tests and for embedding the admission engine in a single process.
package memengine
