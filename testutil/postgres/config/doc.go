// Package config provides PostgreSQL connections for admission store testing.
//
// The DSN comes from ADMISSION_TEST_DATABASE_URL and falls back to a local
// test database. Connections are offered for all three supported adapters
// (pgx.Pool, sql.DB, sqlx.DB).
package config
