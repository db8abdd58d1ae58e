// Package postgreswrapper hides the adapter choice from PostgreSQL integration tests.
//
// ADAPTER_TYPE selects the adapter: "pgx.pool" (default), "sql.db" or "sqlx.db".
// Tests are skipped when the test database cannot be reached.
package postgreswrapper
