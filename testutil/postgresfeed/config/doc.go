// Package config provides PostgreSQL connection configuration for patch log testing.
//
// It contains factory functions for the three supported adapters (pgx.Pool, sql.DB, sqlx.DB).
// The DSN is read from LIVEFEED_TEST_DSN and falls back to a local default.
package config
