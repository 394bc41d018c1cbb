// Package index is forester's secondary index: a single embedded
// relational database (DuckDB, via database/sql) providing metadata
// lookups, the lock table, review records, and repository state that
// is otherwise derivable from the object store. The commits, trees,
// blobs, meshes and repository_state tables are reconstructed from the
// object store and ref files by gc.Rebuild; stash rows, locks, comments
// and approvals have no on-disk object-store counterpart and are not
// restored by it.
package index
