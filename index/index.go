package index

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
)

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	hash TEXT PRIMARY KEY,
	parent_hash TEXT,
	tree_hash TEXT NOT NULL,
	branch TEXT NOT NULL,
	timestamp BIGINT NOT NULL,
	message TEXT NOT NULL,
	author TEXT NOT NULL,
	mesh_hashes TEXT,
	commit_type TEXT NOT NULL,
	selected_mesh_names TEXT,
	export_options TEXT,
	screenshot_hash TEXT,
	tag TEXT UNIQUE
);
CREATE TABLE IF NOT EXISTS trees (
	hash TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS tree_entries (
	tree_hash TEXT NOT NULL,
	path TEXT NOT NULL,
	blob_hash TEXT NOT NULL,
	size BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS blobs (
	hash TEXT PRIMARY KEY,
	size BIGINT NOT NULL,
	path TEXT
);
CREATE TABLE IF NOT EXISTS meshes (
	hash TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS stash (
	hash TEXT PRIMARY KEY,
	timestamp BIGINT NOT NULL,
	message TEXT,
	tree_hash TEXT NOT NULL,
	branch TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS repository_state (
	id INTEGER PRIMARY KEY,
	current_branch TEXT NOT NULL,
	head TEXT
);
CREATE TABLE IF NOT EXISTS locks (
	file_path TEXT PRIMARY KEY,
	locked_by TEXT NOT NULL,
	lock_type TEXT NOT NULL,
	branch TEXT NOT NULL,
	expires_at BIGINT
);
CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	asset_hash TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	author TEXT NOT NULL,
	text TEXT NOT NULL,
	x DOUBLE,
	y DOUBLE,
	status TEXT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS approvals (
	asset_hash TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	approver TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	PRIMARY KEY (asset_hash, asset_type, approver)
);
`

// DB wraps an embedded DuckDB connection implementing forester's
// Index DB contract. Concurrency mode is write-ahead
// journaling; a checkpoint is forced after every state-row write so a
// subsequent fresh connection (typical of a UI that re-reads state)
// observes it.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Open opens (creating if necessary) the DuckDB file at path and
// ensures the schema exists. Use ":memory:" for an ephemeral database.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	conn.SetMaxOpenConns(1) // single embedded file, single writer at a time

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

var resetTables = []string{
	"commits", "trees", "tree_entries", "blobs", "meshes",
	"stash", "repository_state", "locks", "comments", "approvals",
}

// Reset drops and recreates every table, used by rebuild-from-storage
// to discard a possibly-corrupt index before rescanning the object
// store.
func (d *DB) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range resetTables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	if _, err := d.conn.Exec(schema); err != nil {
		return fmt.Errorf("reinitialize schema: %w", err)
	}
	return nil
}

// checkpoint forces DuckDB to flush its write-ahead log, the analogue
// of SQLite's "PRAGMA wal_checkpoint(TRUNCATE)". Called after every
// state-row write.
func (d *DB) checkpoint() error {
	if _, err := d.conn.Exec("CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}
