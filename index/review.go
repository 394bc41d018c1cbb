package index

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Comment is a review annotation anchored to an asset (a mesh or blob
// hash) at an optional 2D position, part of the review surface
// (comments plus approvals) layered over the index.
type Comment struct {
	ID        string
	AssetHash string
	AssetType string
	Author    string
	Text      string
	X, Y      float64
	Status    string
	CreatedAt int64
}

// AddComment inserts a new comment, assigning it a fresh ID.
func (d *DB) AddComment(c Comment) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c.ID = uuid.NewString()
	_, err := d.conn.Exec(`INSERT INTO comments (id, asset_hash, asset_type, author, text, x, y, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AssetHash, c.AssetType, c.Author, c.Text, c.X, c.Y, c.Status, c.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert comment: %w", err)
	}
	return c.ID, nil
}

// GetComments returns every comment anchored to (assetHash, assetType).
func (d *DB) GetComments(assetHash, assetType string) ([]Comment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT id, asset_hash, asset_type, author, text, x, y, status, created_at
		FROM comments WHERE asset_hash = ? AND asset_type = ? ORDER BY created_at`, assetHash, assetType)
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.AssetHash, &c.AssetType, &c.Author, &c.Text, &c.X, &c.Y, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveComment sets a comment's status to "resolved".
func (d *DB) ResolveComment(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(`UPDATE comments SET status = 'resolved' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("resolve comment %s: %w", id, err)
	}
	return nil
}

// DeleteComment removes a comment by ID.
func (d *DB) DeleteComment(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(`DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete comment %s: %w", id, err)
	}
	return nil
}

// Approval is one reviewer's sign-off on an asset.
type Approval struct {
	AssetHash string
	AssetType string
	Approver  string
	Status    string
	CreatedAt int64
}

// SetApproval records or updates approver's approval status for
// (assetHash, assetType).
func (d *DB) SetApproval(a Approval) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(`INSERT OR REPLACE INTO approvals (asset_hash, asset_type, approver, status, created_at)
		VALUES (?, ?, ?, ?, ?)`, a.AssetHash, a.AssetType, a.Approver, a.Status, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	return nil
}

// GetApproval returns approver's approval row for the asset, or
// (nil, nil) if none.
func (d *DB) GetApproval(assetHash, assetType, approver string) (*Approval, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var a Approval
	err := d.conn.QueryRow(`SELECT asset_hash, asset_type, approver, status, created_at FROM approvals
		WHERE asset_hash = ? AND asset_type = ? AND approver = ?`, assetHash, assetType, approver).
		Scan(&a.AssetHash, &a.AssetType, &a.Approver, &a.Status, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return &a, nil
}

// GetAllApprovals returns every approval row for the asset.
func (d *DB) GetAllApprovals(assetHash, assetType string) ([]Approval, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT asset_hash, asset_type, approver, status, created_at FROM approvals
		WHERE asset_hash = ? AND asset_type = ?`, assetHash, assetType)
	if err != nil {
		return nil, fmt.Errorf("get all approvals: %w", err)
	}
	defer rows.Close()

	var out []Approval
	for rows.Next() {
		var a Approval
		if err := rows.Scan(&a.AssetHash, &a.AssetType, &a.Approver, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
