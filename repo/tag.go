package repo

import (
	"fmt"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/objstore"
)

// CreateTag labels commitHash with name. Tags live on the commit row
// itself (a single tag column per commit; the column's UNIQUE
// constraint keeps a tag name on at most one commit) rather than as
// separate ref files, since forester
// tags are fixed labels on history, never moving pointers.
func (r *Repository) CreateTag(name, commitHash string) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if err := ValidateRefName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, err := r.db.GetCommitByTag(name); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("%w: %s", core.ErrTagExists, name)
	}

	c, err := r.store.LoadCommit(commitHash)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrNoSuchCommit, commitHash)
	}
	if c.Tag != "" {
		return fmt.Errorf("%w: commit %s already tagged %q", core.ErrTagExists, commitHash, c.Tag)
	}
	c.Tag = name

	tree, err := r.store.LoadTree(c.TreeHash)
	if err != nil {
		return err
	}
	return r.db.AddCommit(c, tree)
}

// DeleteTag removes name from whichever commit holds it.
func (r *Repository) DeleteTag(name string) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.db.GetCommitByTag(name)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s", core.ErrNoSuchTag, name)
	}
	c.Tag = ""
	return r.db.AddCommit(c, nil)
}

// ShowTag returns the commit name tags.
func (r *Repository) ShowTag(name string) (*objstore.Commit, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.db.GetCommitByTag(name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNoSuchTag, name)
	}
	return c, nil
}

// ListTags returns every tagged commit.
func (r *Repository) ListTags() ([]*objstore.Commit, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Tags aren't enumerable by a dedicated query in the index schema
	// (tag is a column on commits, not its own table); walk every
	// branch's history collecting tagged commits, deduplicated by hash.
	// Commits are read from the index rows, which carry the tag; the
	// commit object files do not.
	seen := make(map[string]bool)
	var out []*objstore.Commit
	branches, err := r.branchNames()
	if err != nil {
		return nil, err
	}
	for _, branch := range branches {
		hash, err := r.readRef(branch)
		if err != nil {
			continue
		}
		for hash != "" {
			if seen[hash] {
				break
			}
			seen[hash] = true
			c, err := r.db.GetCommit(hash)
			if err != nil || c == nil {
				break
			}
			if c.Tag != "" {
				out = append(out, c)
			}
			hash = c.ParentHash
		}
	}
	return out, nil
}
