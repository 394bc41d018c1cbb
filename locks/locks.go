// Package locks provides advisory file locking on top of the index's
// lock table, preventing concurrent modification of the same asset by
// different authors.
package locks

import (
	"time"

	"github.com/forestervcs/forester/index"
)

// Manager locks and unlocks workspace paths for one repository's
// index.
type Manager struct {
	db *index.DB
}

// New returns a Manager backed by db.
func New(db *index.DB) *Manager {
	return &Manager{db: db}
}

// Lock acquires lockType on path for owner, scoped to branch. It
// returns core.ErrLockedByOther (wrapped) if the path already holds
// an unexpired lock, including one held by owner itself. expiresAfter,
// if non-nil, makes the lock
// expire automatically; a nil duration means the lock never expires
// on its own.
func (m *Manager) Lock(path, owner string, lockType index.LockType, branch string, expiresAfter *time.Duration) error {
	return m.db.LockFile(path, owner, lockType, branch, expiresAfter)
}

// Unlock releases path's lock if owner holds it. Unlocking a path that
// isn't locked, or that's locked by someone else, is a silent no-op;
// callers treat release as advisory too.
func (m *Manager) Unlock(path, owner string) error {
	return m.db.UnlockFile(path, owner)
}

// Status returns the current lock on path, or nil if unlocked.
func (m *Manager) Status(path string) (*index.Lock, error) {
	return m.db.IsFileLocked(path)
}

// List returns every active lock, optionally filtered by branch and/or
// owner (either filter empty means "don't filter on this field").
func (m *Manager) List(branch, lockedBy string) ([]index.Lock, error) {
	all, err := m.db.ListLocks()
	if err != nil {
		return nil, err
	}
	if branch == "" && lockedBy == "" {
		return all, nil
	}
	var out []index.Lock
	for _, l := range all {
		if branch != "" && l.Branch != branch {
			continue
		}
		if lockedBy != "" && l.LockedBy != lockedBy {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// CheckConflicts returns the locks among paths not owned by author,
// the guard a commit runs before writing to refuse overwriting another
// author's locked work.
func (m *Manager) CheckConflicts(paths []string, author string) ([]index.Lock, error) {
	return m.db.CheckCommitConflicts(paths, author)
}
