package index

import (
	"fmt"

	"github.com/forestervcs/forester/objstore"
)

// addTreeLocked inserts tree and its entries. Caller holds d.mu.
func (d *DB) addTreeLocked(tree *objstore.Tree) error {
	if _, err := d.conn.Exec(`INSERT OR REPLACE INTO trees (hash) VALUES (?)`, tree.Hash); err != nil {
		return fmt.Errorf("insert tree %s: %w", tree.Hash, err)
	}
	if _, err := d.conn.Exec(`DELETE FROM tree_entries WHERE tree_hash = ?`, tree.Hash); err != nil {
		return fmt.Errorf("clear tree_entries for %s: %w", tree.Hash, err)
	}
	for _, e := range tree.Entries {
		if _, err := d.conn.Exec(`INSERT INTO tree_entries (tree_hash, path, blob_hash, size) VALUES (?, ?, ?, ?)`,
			tree.Hash, e.Path, e.Hash, e.Size); err != nil {
			return fmt.Errorf("insert tree_entries for %s: %w", tree.Hash, err)
		}
	}
	return nil
}

// AddTree inserts tree and its entries (public wrapper, used by
// rebuild which doesn't go through AddCommit).
func (d *DB) AddTree(tree *objstore.Tree) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addTreeLocked(tree)
}

// TreeExists reports whether hash has a row.
func (d *DB) TreeExists(hash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var exists bool
	err := d.conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM trees WHERE hash = ?)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tree exists: %w", err)
	}
	return exists, nil
}

// DeleteTree removes the tree row and its entries.
func (d *DB) DeleteTree(hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`DELETE FROM tree_entries WHERE tree_hash = ?`, hash); err != nil {
		return fmt.Errorf("delete tree_entries for %s: %w", hash, err)
	}
	if _, err := d.conn.Exec(`DELETE FROM trees WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("delete tree %s: %w", hash, err)
	}
	return nil
}

// GetBlobsInTree returns the blob hashes referenced by tree hash.
// Flat in practice (the schema would permit recursion but no
// producer emits nested tree entries).
func (d *DB) GetBlobsInTree(hash string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT DISTINCT blob_hash FROM tree_entries WHERE tree_hash = ?`, hash)
	if err != nil {
		return nil, fmt.Errorf("get blobs in tree %s: %w", hash, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListTreeHashes returns every tree hash with a row.
func (d *DB) ListTreeHashes() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT hash FROM trees`)
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
