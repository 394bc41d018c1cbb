package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/index"
	"github.com/forestervcs/forester/objstore"
	"github.com/forestervcs/forester/workspace"
)

// CommitOptions tunes one Commit call.
type CommitOptions struct {
	// SkipHooks bypasses pre/post-commit hook execution entirely; the
	// CLI sets it for commit --no-verify.
	SkipHooks bool
}

// maxReportedConflicts caps how many lock conflicts a failed commit
// reports by name before summarizing the rest, keeping the error
// message readable on a heavily-locked tree.
const maxReportedConflicts = 5

// Commit scans the workspace, and if its tree differs from the
// current HEAD's, writes a new project commit on the current branch
// Returns core.ErrNoChanges (never a partial write) if nothing
// changed. Fails with core.ErrDetachedHead if HEAD is detached:
// forester has no merge operation, so committing from a detached HEAD
// would silently orphan the result.
func (r *Repository) Commit(identity core.Identity, message string, opts CommitOptions) (*objstore.Commit, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.currentStateLocked()
	if err != nil {
		return nil, err
	}
	if state.Detached {
		return nil, fmt.Errorf("%w: commit is not supported while detached", core.ErrDetachedHead)
	}
	branch := state.Branch

	parentHash, err := r.readRef(branch)
	if err != nil {
		return nil, err
	}
	var parentTree string
	if parentHash != "" {
		parent, err := r.store.LoadCommit(parentHash)
		if err != nil {
			return nil, err
		}
		parentTree = parent.TreeHash
	}

	rules, err := r.loadRules()
	if err != nil {
		return nil, err
	}
	tree, err := workspace.Scan(r.root, rules, r.store, r.db)
	if err != nil {
		return nil, err
	}
	if parentHash != "" && tree.Hash == parentTree {
		return nil, core.ErrNoChanges
	}

	if err := r.checkLockConflicts(tree, identity.Name); err != nil {
		return nil, err
	}

	if !opts.SkipHooks {
		if err := r.hooks.RunPreCommit(branch, identity.String(), message); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrHookFailed, err)
		}
	}

	if _, err := r.store.SaveTree(tree); err != nil {
		return nil, err
	}

	c := &objstore.Commit{
		ParentHash: parentHash,
		TreeHash:   tree.Hash,
		Branch:     branch,
		Timestamp:  time.Now().Unix(),
		Message:    message,
		Author:     identity.String(),
		CommitType: objstore.CommitProject,
	}
	if _, err := c.ComputeHash(); err != nil {
		return nil, err
	}
	if _, err := r.store.SaveCommit(c); err != nil {
		return nil, err
	}
	if err := r.db.AddCommit(c, tree); err != nil {
		return nil, err
	}

	if err := r.writeRef(branch, c.Hash); err != nil {
		return nil, err
	}
	if err := r.db.SetState(index.State{CurrentBranch: branch, Head: c.Hash}); err != nil {
		return nil, err
	}

	if !opts.SkipHooks {
		r.hooks.RunPostCommit(c.Hash, branch, identity.String(), message)
	}

	return c, nil
}

func (r *Repository) checkLockConflicts(tree *objstore.Tree, author string) error {
	paths := make([]string, len(tree.Entries))
	for i, e := range tree.Entries {
		paths[i] = e.Path
	}
	conflicts, err := r.locks.CheckConflicts(paths, author)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		return nil
	}
	var names []string
	for i, c := range conflicts {
		if i >= maxReportedConflicts {
			names = append(names, fmt.Sprintf("and %d more", len(conflicts)-maxReportedConflicts))
			break
		}
		names = append(names, fmt.Sprintf("%s (locked by %s)", c.FilePath, c.LockedBy))
	}
	return fmt.Errorf("%w: %s", core.ErrLockedByOther, strings.Join(names, ", "))
}
