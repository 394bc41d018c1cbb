package repo

import (
	"fmt"
	"time"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/hashing"
	"github.com/forestervcs/forester/index"
	"github.com/forestervcs/forester/workspace"
)

// CreateStash snapshots the current workspace tree outside the commit
// graph, then restores the workspace to the current HEAD's tree.
// Returns the new stash's hash, or core.ErrNoChanges if the workspace
// already matches HEAD.
func (r *Repository) CreateStash(message string) (string, error) {
	if err := r.ensureOpen(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	hash, err := r.createStashLocked(message)
	if err != nil {
		return "", err
	}
	if hash == "" {
		return "", core.ErrNoChanges
	}
	return hash, nil
}

// createStashLocked does CreateStash's work for a caller that already
// holds r.mu. It returns ("", nil), not an error, when the workspace
// already matches HEAD; ApplyStash's auto-stash path uses this to
// silently skip stashing nothing.
func (r *Repository) createStashLocked(message string) (string, error) {
	state, err := r.currentStateLocked()
	if err != nil {
		return "", err
	}
	rules, err := r.loadRules()
	if err != nil {
		return "", err
	}
	tree, err := workspace.Scan(r.root, rules, r.store, r.db)
	if err != nil {
		return "", err
	}
	headTree, err := r.headTree(state)
	if err != nil {
		return "", err
	}
	if tree.Hash == headTree.Hash {
		return "", nil
	}

	if _, err := r.store.SaveTree(tree); err != nil {
		return "", err
	}
	now := time.Now().Unix()
	hash := hashing.Hash(fmt.Appendf(nil, "%s%d%s%s", tree.Hash, now, message, state.Branch))
	if err := r.db.AddStash(index.Stash{
		Hash:      hash,
		Timestamp: now,
		Message:   message,
		TreeHash:  tree.Hash,
		Branch:    state.Branch,
	}); err != nil {
		return "", err
	}

	if err := removeStaleTrackedFiles(r.root, tree, headTree); err != nil {
		return "", err
	}
	if err := writeTreeEntries(r.root, r.store, headTree.Entries); err != nil {
		return "", err
	}
	return hash, nil
}

// ApplyStash restores a stash's tree onto the workspace, first removing
// every non-ignored workspace file that the stash tree does not
// contain (untracked files included). If the workspace is
// dirty and force is false, the current state is auto-stashed before
// applying so no work is lost silently.
func (r *Repository) ApplyStash(hash string, force bool) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stash, err := r.db.GetStash(hash)
	if err != nil {
		return err
	}
	if stash == nil {
		return fmt.Errorf("%w: %s", core.ErrNoSuchStash, hash)
	}

	dirty, err := r.hasUncommittedChangesLocked()
	if err != nil {
		return err
	}
	if dirty && !force {
		if _, err := r.createStashLocked("auto-stash before apply"); err != nil {
			return err
		}
	}

	rules, err := r.loadRules()
	if err != nil {
		return err
	}
	liveTree, err := workspace.Scan(r.root, rules, r.store, r.db)
	if err != nil {
		return err
	}

	stashTree, err := r.store.LoadTree(stash.TreeHash)
	if err != nil {
		return err
	}

	if err := removeStaleTrackedFiles(r.root, liveTree, stashTree); err != nil {
		return err
	}
	return writeTreeEntries(r.root, r.store, stashTree.Entries)
}

// DeleteStash removes a stash row. Its tree becomes eligible for
// collection on the next GC pass if nothing else references it.
func (r *Repository) DeleteStash(hash string) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stash, err := r.db.GetStash(hash)
	if err != nil {
		return err
	}
	if stash == nil {
		return fmt.Errorf("%w: %s", core.ErrNoSuchStash, hash)
	}
	return r.db.DeleteStash(hash)
}

// ListStashes returns every stash, most recent first.
func (r *Repository) ListStashes() ([]index.Stash, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db.ListStashes()
}
