package index

import "fmt"

// AddBlob inserts (or replaces) a blob row. path is a diagnostic,
// representative workspace path recovered by scanning trees; it is
// not authoritative (a blob may appear at many paths across commits).
func (d *DB) AddBlob(hash string, size int64, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(`INSERT OR REPLACE INTO blobs (hash, size, path) VALUES (?, ?, ?)`, hash, size, path)
	if err != nil {
		return fmt.Errorf("insert blob %s: %w", hash, err)
	}
	return nil
}

// BlobExists reports whether hash has a row.
func (d *DB) BlobExists(hash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var exists bool
	err := d.conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM blobs WHERE hash = ?)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check blob exists: %w", err)
	}
	return exists, nil
}

// DeleteBlob removes the blob row for hash.
func (d *DB) DeleteBlob(hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`DELETE FROM blobs WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("delete blob %s: %w", hash, err)
	}
	return nil
}

// ListBlobHashes returns every blob hash with a row.
func (d *DB) ListBlobHashes() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT hash FROM blobs`)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
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

// AddMesh inserts (or replaces) a mesh row.
func (d *DB) AddMesh(hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(`INSERT OR REPLACE INTO meshes (hash) VALUES (?)`, hash)
	if err != nil {
		return fmt.Errorf("insert mesh %s: %w", hash, err)
	}
	return nil
}

// MeshExists reports whether hash has a row.
func (d *DB) MeshExists(hash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var exists bool
	err := d.conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM meshes WHERE hash = ?)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check mesh exists: %w", err)
	}
	return exists, nil
}

// DeleteMesh removes the mesh row for hash.
func (d *DB) DeleteMesh(hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`DELETE FROM meshes WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("delete mesh %s: %w", hash, err)
	}
	return nil
}

// ListMeshHashes returns every mesh hash with a row.
func (d *DB) ListMeshHashes() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT hash FROM meshes`)
	if err != nil {
		return nil, fmt.Errorf("list meshes: %w", err)
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
