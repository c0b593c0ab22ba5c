// Package store provides the SQLite-backed local replica of the user's
// remote content, plus a small per-user key-value state area.
//
// Records carry a composite identity (owner_id, remote_id) and are
// upserted idempotently: re-fetching the same remote id overwrites, never
// duplicates. The state area holds whole-unit JSON values (the task list,
// per-category sync cursors, the workflow list) keyed per user; values are
// read and replaced as a unit, never partially updated.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// The sync driver and the action executor are the only writers. Upserts
// are atomic per record, so interleaving between them never corrupts a
// single row; last-writer-wins per id is acceptable because both derive
// their data from the same remote source of truth.
package store
