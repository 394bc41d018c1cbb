package index

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/forestervcs/forester/objstore"
)

// AddCommit inserts (or replaces) a commit row, including its tree's
// entries for fast get_blobs_in_tree lookups.
func (d *DB) AddCommit(c *objstore.Commit, tree *objstore.Tree) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	meshHashes, err := json.Marshal(c.MeshHashes)
	if err != nil {
		return fmt.Errorf("marshal mesh_hashes: %w", err)
	}
	selected, err := json.Marshal(c.SelectedMeshNames)
	if err != nil {
		return fmt.Errorf("marshal selected_mesh_names: %w", err)
	}
	exportOpts, err := json.Marshal(c.ExportOptions)
	if err != nil {
		return fmt.Errorf("marshal export_options: %w", err)
	}

	var parentHash, tag any
	if c.ParentHash != "" {
		parentHash = c.ParentHash
	}
	if c.Tag != "" {
		tag = c.Tag
	}

	_, err = d.conn.Exec(`INSERT INTO commits
		(hash, parent_hash, tree_hash, branch, timestamp, message, author,
		 mesh_hashes, commit_type, selected_mesh_names, export_options, screenshot_hash, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO UPDATE SET parent_hash = excluded.parent_hash, tree_hash = excluded.tree_hash,
		 branch = excluded.branch, timestamp = excluded.timestamp, message = excluded.message,
		 author = excluded.author, mesh_hashes = excluded.mesh_hashes, commit_type = excluded.commit_type,
		 selected_mesh_names = excluded.selected_mesh_names, export_options = excluded.export_options,
		 screenshot_hash = excluded.screenshot_hash`,
		c.Hash, parentHash, c.TreeHash, c.Branch, c.Timestamp, c.Message, c.Author,
		string(meshHashes), string(c.CommitType), string(selected), string(exportOpts), c.ScreenshotHash, tag)
	if err != nil {
		return fmt.Errorf("insert commit %s: %w", c.Hash, err)
	}
	// tag carries its own UNIQUE index, so it is set by a separate UPDATE
	// rather than in the DO UPDATE clause above.
	if _, err := d.conn.Exec(`UPDATE commits SET tag = ? WHERE hash = ?`, tag, c.Hash); err != nil {
		return fmt.Errorf("set tag for commit %s: %w", c.Hash, err)
	}

	if tree != nil {
		if err := d.addTreeLocked(tree); err != nil {
			return err
		}
	}
	return nil
}

// GetCommit returns the commit row for hash, or (nil, nil) if absent.
func (d *DB) GetCommit(hash string) (*objstore.Commit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := d.conn.QueryRow(`SELECT hash, parent_hash, tree_hash, branch, timestamp, message, author,
		mesh_hashes, commit_type, selected_mesh_names, export_options, screenshot_hash, tag
		FROM commits WHERE hash = ?`, hash)
	return scanCommit(row)
}

// GetCommitByTag returns the commit holding tag, or (nil, nil) if none.
func (d *DB) GetCommitByTag(tag string) (*objstore.Commit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := d.conn.QueryRow(`SELECT hash, parent_hash, tree_hash, branch, timestamp, message, author,
		mesh_hashes, commit_type, selected_mesh_names, export_options, screenshot_hash, tag
		FROM commits WHERE tag = ?`, tag)
	return scanCommit(row)
}

func scanCommit(row *sql.Row) (*objstore.Commit, error) {
	var c objstore.Commit
	var parentHash, meshHashesJSON, selectedJSON, exportJSON, screenshotHash, tag sql.NullString
	var commitType string

	err := row.Scan(&c.Hash, &parentHash, &c.TreeHash, &c.Branch, &c.Timestamp, &c.Message, &c.Author,
		&meshHashesJSON, &commitType, &selectedJSON, &exportJSON, &screenshotHash, &tag)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan commit: %w", err)
	}

	c.ParentHash = parentHash.String
	c.CommitType = objstore.CommitType(commitType)
	c.ScreenshotHash = screenshotHash.String
	c.Tag = tag.String

	if meshHashesJSON.String != "" {
		if err := json.Unmarshal([]byte(meshHashesJSON.String), &c.MeshHashes); err != nil {
			return nil, fmt.Errorf("unmarshal mesh_hashes: %w", err)
		}
	}
	if selectedJSON.String != "" {
		if err := json.Unmarshal([]byte(selectedJSON.String), &c.SelectedMeshNames); err != nil {
			return nil, fmt.Errorf("unmarshal selected_mesh_names: %w", err)
		}
	}
	if exportJSON.String != "" {
		if err := json.Unmarshal([]byte(exportJSON.String), &c.ExportOptions); err != nil {
			return nil, fmt.Errorf("unmarshal export_options: %w", err)
		}
	}
	return &c, nil
}

// CommitExists reports whether hash has a row.
func (d *DB) CommitExists(hash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var exists bool
	err := d.conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM commits WHERE hash = ?)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check commit exists: %w", err)
	}
	return exists, nil
}

// DeleteCommit removes the commit row for hash. Deletion does not
// cascade to trees/blobs/meshes: the caller verifies non-reachability
// first.
func (d *DB) DeleteCommit(hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`DELETE FROM commits WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("delete commit %s: %w", hash, err)
	}
	return nil
}

// ListCommits returns every commit row on branch. Row order is not
// history order; callers walk parent_hash when lineage matters.
func (d *DB) ListCommits(branch string) ([]*objstore.Commit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.Query(`SELECT hash, parent_hash, tree_hash, branch, timestamp, message, author,
		mesh_hashes, commit_type, selected_mesh_names, export_options, screenshot_hash, tag
		FROM commits WHERE branch = ?`, branch)
	if err != nil {
		return nil, fmt.Errorf("list commits for branch %s: %w", branch, err)
	}
	defer rows.Close()

	var out []*objstore.Commit
	for rows.Next() {
		var c objstore.Commit
		var parentHash, meshHashesJSON, selectedJSON, exportJSON, screenshotHash, tag sql.NullString
		var commitType string
		if err := rows.Scan(&c.Hash, &parentHash, &c.TreeHash, &c.Branch, &c.Timestamp, &c.Message, &c.Author,
			&meshHashesJSON, &commitType, &selectedJSON, &exportJSON, &screenshotHash, &tag); err != nil {
			return nil, fmt.Errorf("scan commit row: %w", err)
		}
		c.ParentHash = parentHash.String
		c.CommitType = objstore.CommitType(commitType)
		c.ScreenshotHash = screenshotHash.String
		c.Tag = tag.String
		if meshHashesJSON.String != "" {
			_ = json.Unmarshal([]byte(meshHashesJSON.String), &c.MeshHashes)
		}
		if selectedJSON.String != "" {
			_ = json.Unmarshal([]byte(selectedJSON.String), &c.SelectedMeshNames)
		}
		if exportJSON.String != "" {
			_ = json.Unmarshal([]byte(exportJSON.String), &c.ExportOptions)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetCommitsUsingMesh returns the hashes of commits whose mesh_hashes
// column contains hash. Unlike GetCommitsUsingTree/GetCommitsUsingBlob
// there is no join table for mesh membership (it's a JSON array
// column), so this scans every commit row.
func (d *DB) GetCommitsUsingMesh(hash string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT hash, mesh_hashes FROM commits WHERE mesh_hashes IS NOT NULL AND mesh_hashes != ''`)
	if err != nil {
		return nil, fmt.Errorf("get commits using mesh %s: %w", hash, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var commitHash, meshHashesJSON string
		if err := rows.Scan(&commitHash, &meshHashesJSON); err != nil {
			return nil, err
		}
		var meshHashes []string
		if err := json.Unmarshal([]byte(meshHashesJSON), &meshHashes); err != nil {
			continue
		}
		for _, m := range meshHashes {
			if m == hash {
				out = append(out, commitHash)
				break
			}
		}
	}
	return out, rows.Err()
}

// GetCommitsUsingTree returns the hashes of commits whose tree_hash is
// hash.
func (d *DB) GetCommitsUsingTree(hash string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT hash FROM commits WHERE tree_hash = ?`, hash)
	if err != nil {
		return nil, fmt.Errorf("get commits using tree %s: %w", hash, err)
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

// GetCommitsUsingBlob returns the hashes of commits whose tree
// contains a tree_entries row for blob hash.
func (d *DB) GetCommitsUsingBlob(hash string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT DISTINCT c.hash FROM commits c
		JOIN tree_entries te ON te.tree_hash = c.tree_hash
		WHERE te.blob_hash = ?`, hash)
	if err != nil {
		return nil, fmt.Errorf("get commits using blob %s: %w", hash, err)
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
