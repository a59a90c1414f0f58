// Package pgtesthelpers provides test utilities for the PostgreSQL patch log with multi-adapter support.
//
// Tests run against one of the three supported drivers through a unified Wrapper interface.
// The adapter is selected via the ADAPTER_TYPE environment variable:
//
//	pgx.pool (default): wraps pgxpool.Pool
//	sql.db: wraps database/sql with the lib/pq driver
//	sqlx.db: wraps sqlx.DB with the lib/pq driver
//
// Every wrapper works on freshly named tables so tests can run in parallel. Tests are skipped
// when the database is unreachable.
package pgtesthelpers
