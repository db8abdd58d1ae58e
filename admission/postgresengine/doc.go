// Package postgresengine provides a PostgreSQL implementation of admission.Store.
//
// The store supports three PostgreSQL drivers through the internal adapters:
//   - pgxpool.Pool (NewStoreFromPGXPool, NewStoreFromPGXPoolWithReplica)
//   - sql.DB with lib/pq (NewStoreFromSQLDB)
//   - sqlx.DB (NewStoreFromSQLX)
//
// Tx.LockInventory and Tx.LockObligation are SELECT ... FOR UPDATE, Tx.LockActor is a
// transaction-scoped advisory lock. WithLockTimeout issues SET LOCAL lock_timeout at the start
// of every transaction; lock timeouts, deadlocks and serialization failures are reported as
// admission.ErrContention.
//
// EnsureSchema creates the tables with CHECK constraints mirroring the record invariants.
package postgresengine
