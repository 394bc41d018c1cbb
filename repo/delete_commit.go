package repo

import (
	"fmt"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/index"
)

// removeIfUnused filters commitHash out of the caller's own usage
// check before deciding whether an object is orphaned by this very
// deletion.
func removeIfUnused(users []string, commitHash string) bool {
	for _, u := range users {
		if u != commitHash {
			return false
		}
	}
	return true
}

// DeleteCommit removes a single commit, and any tree/blob/mesh objects
// it alone referenced, from both the index and the object store. HEAD
// or branch-tip commits require force; deleting the current branch's
// HEAD rewinds it to the deleted commit's parent.
func (r *Repository) DeleteCommit(commitHash string, force bool) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.db.GetCommit(commitHash)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s", core.ErrNoSuchCommit, commitHash)
	}

	state, err := r.currentStateLocked()
	if err != nil {
		return err
	}
	isHead := state.Head == commitHash

	referencingBranch := ""
	branches, err := r.branchNames()
	if err != nil {
		return err
	}
	for _, b := range branches {
		ref, err := r.readRef(b)
		if err != nil {
			continue
		}
		if ref == commitHash {
			referencingBranch = b
			break
		}
	}

	if (isHead || referencingBranch != "") && !force {
		if isHead {
			return fmt.Errorf("%w: commit is the current HEAD", core.ErrInvalidName)
		}
		return fmt.Errorf("%w: commit is referenced by branch %q", core.ErrInvalidName, referencingBranch)
	}

	if err := r.db.DeleteCommit(commitHash); err != nil {
		return err
	}
	if err := r.store.DeleteCommit(commitHash); err != nil {
		return err
	}

	if c.TreeHash != "" {
		users, err := r.db.GetCommitsUsingTree(c.TreeHash)
		if err != nil {
			return err
		}
		if removeIfUnused(users, commitHash) {
			blobs, err := r.db.GetBlobsInTree(c.TreeHash)
			if err != nil {
				return err
			}
			for _, b := range blobs {
				blobUsers, err := r.db.GetCommitsUsingBlob(b)
				if err != nil {
					return err
				}
				if removeIfUnused(blobUsers, commitHash) {
					if err := r.db.DeleteBlob(b); err != nil {
						return err
					}
					if err := r.store.DeleteBlob(b); err != nil {
						return err
					}
				}
			}
			if err := r.db.DeleteTree(c.TreeHash); err != nil {
				return err
			}
			if err := r.store.DeleteTree(c.TreeHash); err != nil {
				return err
			}
		}
	}

	for _, meshHash := range c.MeshHashes {
		users, err := r.db.GetCommitsUsingMesh(meshHash)
		if err != nil {
			return err
		}
		if removeIfUnused(users, commitHash) {
			if err := r.db.DeleteMesh(meshHash); err != nil {
				return err
			}
			if err := r.store.DeleteMesh(meshHash); err != nil {
				return err
			}
		}
	}

	if isHead {
		branch := state.Branch
		if err := r.writeRef(branch, c.ParentHash); err != nil {
			return err
		}
		if err := r.db.SetState(index.State{CurrentBranch: branch, Head: c.ParentHash}); err != nil {
			return err
		}
	}

	return nil
}
