// Package adapters provide the database adapters of the PostgreSQL patch log.
//
// pgxpool.Pool, sql.DB, and sqlx.DB are wrapped behind the common DBAdapter interface,
// so the patch log builds and runs the same SQL on any of them.
package adapters
