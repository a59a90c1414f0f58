// Package feed defines the change feed a session replays into a statetree snapshot.
//
// A room's state is an append-only log of patches. Each StorablePatch is one statetree
// operation serialized as scalars and JSON, so storage backends stay agnostic of the tree
// implementation. Appends are guarded optimistically: the writer passes the highest sequence
// number it has seen and the append fails with ErrConcurrencyConflict if the room advanced.
//
// Snapshots persist the materialized tree at a sequence number, so opening a room only
// replays the patches written after it.
//
// Implementations live in the subpackages postgresfeed (PostgreSQL via pgx, database/sql,
// or sqlx) and memfeed (in-process, for tests and demos).
//
// Read routing follows the consistency level carried in the context:
//
//	ctx = feed.WithEventualConsistency(ctx)
//	patches, maxSeq, err := log.Query(ctx, roomID, lastSeenSeq)
package feed
