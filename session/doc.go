// Package session connects a selector engine to a room's patch log.
//
// A Session owns the room's current *statetree.Object and the selectors.Engine built over it.
// Writes go through Update, which appends statetree operations to the patch log guarded by the
// room's current sequence number and retries on concurrency conflicts. Sync pulls patches other
// writers appended, applies them as one batch, and notifies the engine once per batch.
//
// Any feed.PatchLog works as the backing log. If it also implements feed.SnapshotStore,
// Open starts from the latest snapshot and Checkpoint persists the current tree.
package session
