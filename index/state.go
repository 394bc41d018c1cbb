package index

import (
	"database/sql"
	"fmt"
)

// State is the single repository_state row: the current branch name
// and the commit hash HEAD points to (empty if no commits yet).
type State struct {
	CurrentBranch string
	Head          string
}

const stateRowID = 1

// GetState reads the repository_state row, or a zero State if none
// has been written yet (a brand-new repository before its first
// branch is created).
func (d *DB) GetState() (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var branch string
	var head sql.NullString
	err := d.conn.QueryRow(`SELECT current_branch, head FROM repository_state WHERE id = ?`, stateRowID).
		Scan(&branch, &head)
	if err == sql.ErrNoRows {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read repository_state: %w", err)
	}
	return State{CurrentBranch: branch, Head: head.String}, nil
}

// SetState writes the repository_state row and forces a checkpoint
// so a fresh connection observes the new branch/HEAD
// immediately.
func (d *DB) SetState(s State) error {
	d.mu.Lock()
	var head any
	if s.Head != "" {
		head = s.Head
	}
	_, err := d.conn.Exec(`INSERT OR REPLACE INTO repository_state (id, current_branch, head) VALUES (?, ?, ?)`,
		stateRowID, s.CurrentBranch, head)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("write repository_state: %w", err)
	}
	d.mu.Unlock()
	return d.checkpoint()
}

// Stash is one stash row: a preserved tree outside the branch graph.
type Stash struct {
	Hash      string
	Timestamp int64
	Message   string
	TreeHash  string
	Branch    string
}

// AddStash inserts a stash row.
func (d *DB) AddStash(s Stash) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(`INSERT OR REPLACE INTO stash (hash, timestamp, message, tree_hash, branch)
		VALUES (?, ?, ?, ?, ?)`, s.Hash, s.Timestamp, s.Message, s.TreeHash, s.Branch)
	if err != nil {
		return fmt.Errorf("insert stash %s: %w", s.Hash, err)
	}
	return nil
}

// GetStash returns the stash row for hash, or (nil, nil) if absent.
func (d *DB) GetStash(hash string) (*Stash, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var s Stash
	err := d.conn.QueryRow(`SELECT hash, timestamp, message, tree_hash, branch FROM stash WHERE hash = ?`, hash).
		Scan(&s.Hash, &s.Timestamp, &s.Message, &s.TreeHash, &s.Branch)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stash %s: %w", hash, err)
	}
	return &s, nil
}

// ListStashes returns every stash row, most recent first.
func (d *DB) ListStashes() ([]Stash, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.conn.Query(`SELECT hash, timestamp, message, tree_hash, branch FROM stash ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("list stashes: %w", err)
	}
	defer rows.Close()
	var out []Stash
	for rows.Next() {
		var s Stash
		if err := rows.Scan(&s.Hash, &s.Timestamp, &s.Message, &s.TreeHash, &s.Branch); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteStash removes the stash row for hash.
func (d *DB) DeleteStash(hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.conn.Exec(`DELETE FROM stash WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("delete stash %s: %w", hash, err)
	}
	return nil
}
