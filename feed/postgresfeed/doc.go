// Package postgresfeed provides a PostgreSQL implementation of feed.PatchLog and feed.SnapshotStore.
//
// It supports three connection types through internal adapters:
//   - NewPatchLogFromPGXPool, optionally with a read replica (NewPatchLogFromPGXPoolWithReplica)
//   - NewPatchLogFromSQLDB for database/sql with the lib/pq driver
//   - NewPatchLogFromSQLX for sqlx
//
// Appends are guarded by a common table expression that inserts only if the room's highest
// sequence number still matches the expected one. Concurrent writers that both passed the guard
// collide on a unique index over (room_id, expected_sequence, batch_position), which is reported
// as feed.ErrConcurrencyConflict as well.
//
// Queries route to the replica only when the context carries feed.EventualConsistency.
//
// Logging, metrics, and tracing are optional and configured with WithLogger,
// WithContextualLogger, WithMetrics, and WithTracing.
package postgresfeed
