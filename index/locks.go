package index

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/forestervcs/forester/core"
)

// LockType distinguishes exclusive holds from shared (read) holds.
type LockType string

const (
	LockExclusive LockType = "exclusive"
	LockShared    LockType = "shared"
)

// Lock is one advisory file-lock row.
type Lock struct {
	FilePath  string
	LockedBy  string
	LockType  LockType
	Branch    string
	ExpiresAt *time.Time
}

// sweepExpiredLocked deletes locks whose expires_at has passed. Caller
// holds d.mu.
func (d *DB) sweepExpiredLocked() error {
	_, err := d.conn.Exec(`DELETE FROM locks WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sweep expired locks: %w", err)
	}
	return nil
}

// LockFile inserts a lock row for path, failing if one already exists
// (after sweeping expired rows first).
func (d *DB) LockFile(path, owner string, lockType LockType, branch string, expiresAfter *time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.sweepExpiredLocked(); err != nil {
		return err
	}

	var expiresAt any
	if expiresAfter != nil {
		expiresAt = time.Now().Add(*expiresAfter).Unix()
	}

	_, err := d.conn.Exec(`INSERT INTO locks (file_path, locked_by, lock_type, branch, expires_at)
		VALUES (?, ?, ?, ?, ?)`, path, owner, string(lockType), branch, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: %s already locked", core.ErrLockedByOther, path)
	}
	return nil
}

// UnlockFile removes the lock row for path owned by owner.
func (d *DB) UnlockFile(path, owner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.conn.Exec(`DELETE FROM locks WHERE file_path = ? AND locked_by = ?`, path, owner)
	if err != nil {
		return fmt.Errorf("unlock %s: %w", path, err)
	}
	return nil
}

// IsFileLocked returns the current lock row for path, sweeping expired
// rows first, or (nil, nil) if unlocked.
func (d *DB) IsFileLocked(path string) (*Lock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.sweepExpiredLocked(); err != nil {
		return nil, err
	}

	var l Lock
	var lockType string
	var expiresAt sql.NullInt64
	err := d.conn.QueryRow(`SELECT file_path, locked_by, lock_type, branch, expires_at FROM locks WHERE file_path = ?`, path).
		Scan(&l.FilePath, &l.LockedBy, &lockType, &l.Branch, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check lock %s: %w", path, err)
	}
	l.LockType = LockType(lockType)
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0)
		l.ExpiresAt = &t
	}
	return &l, nil
}

// ListLocks returns every current lock row, sweeping expired rows
// first.
func (d *DB) ListLocks() ([]Lock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.sweepExpiredLocked(); err != nil {
		return nil, err
	}

	rows, err := d.conn.Query(`SELECT file_path, locked_by, lock_type, branch, expires_at FROM locks`)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	var out []Lock
	for rows.Next() {
		var l Lock
		var lockType string
		var expiresAt sql.NullInt64
		if err := rows.Scan(&l.FilePath, &l.LockedBy, &lockType, &l.Branch, &expiresAt); err != nil {
			return nil, err
		}
		l.LockType = LockType(lockType)
		if expiresAt.Valid {
			t := time.Unix(expiresAt.Int64, 0)
			l.ExpiresAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CheckCommitConflicts returns the lock rows among paths that are not
// owned by author, used by the commit path to refuse writes that
// would overwrite someone else's locked work.
func (d *DB) CheckCommitConflicts(paths []string, author string) ([]Lock, error) {
	locks, err := d.ListLocks()
	if err != nil {
		return nil, err
	}
	locked := make(map[string]Lock, len(locks))
	for _, l := range locks {
		locked[l.FilePath] = l
	}

	var conflicts []Lock
	for _, p := range paths {
		if l, ok := locked[p]; ok && l.LockedBy != author {
			conflicts = append(conflicts, l)
		}
	}
	return conflicts, nil
}
