// Package adapters provide database adapter implementations for the PostgreSQL admission store.
//
// This package implements the adapter pattern to support multiple PostgreSQL database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// the DBAdapter and DBTx interfaces, so the store works with any supported connection type.
//
// Queries are passed with positional ($1, $2, ...) bind arguments.
package adapters
