package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/index"
)

// invalidBranchChars mirrors the restrictions git itself places on ref
// names, applied here to branch and tag names alike.
const invalidBranchChars = `/\~^:?*[`

// ValidateRefName checks name against the branch/tag naming rules:
// non-empty, no path separators, no "..", no "~^:?*[", no control
// characters, and no leading/trailing dot or space.
func ValidateRefName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", core.ErrInvalidName)
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: name exceeds 255 characters", core.ErrInvalidName)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: name contains '..'", core.ErrInvalidName)
	}
	if strings.ContainsAny(name, invalidBranchChars) {
		return fmt.Errorf("%w: name contains a reserved character", core.ErrInvalidName)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: name contains a control character", core.ErrInvalidName)
		}
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") ||
		strings.HasPrefix(name, " ") || strings.HasSuffix(name, " ") {
		return fmt.Errorf("%w: name has a leading or trailing dot or space", core.ErrInvalidName)
	}
	return nil
}

// CreateBranch creates branch pointing at the current HEAD (or an
// explicit fromCommit, if non-empty) without switching to it.
func (r *Repository) CreateBranch(name, fromCommit string) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if err := ValidateRefName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refExists(name) {
		return fmt.Errorf("%w: %s", core.ErrBranchExists, name)
	}

	hash := fromCommit
	if hash == "" {
		state, err := r.currentStateLocked()
		if err != nil {
			return err
		}
		hash = state.Head
	}
	if hash != "" && !r.store.CommitExists(hash) {
		return fmt.Errorf("%w: %s", core.ErrNoSuchCommit, hash)
	}
	return r.writeRef(name, hash)
}

// ListBranches returns every branch name, sorted.
func (r *Repository) ListBranches() ([]string, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names, err := r.branchNames()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// BranchHead returns the commit hash branch's ref file holds ("" if
// the branch has no commits yet), used by callers (e.g. the CLI's
// `branch create --from`) that accept either a branch name or a raw
// commit hash for a reference point.
func (r *Repository) BranchHead(branch string) (string, error) {
	if err := r.ensureOpen(); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.refExists(branch) {
		return "", fmt.Errorf("%w: %s", core.ErrNoSuchBranch, branch)
	}
	return r.readRef(branch)
}

// DeleteBranch removes branch's ref file. Deleting the current branch
// requires force, guarding against leaving HEAD pointing at nothing.
func (r *Repository) DeleteBranch(name string, force bool) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.refExists(name) {
		return fmt.Errorf("%w: %s", core.ErrNoSuchBranch, name)
	}
	state, err := r.currentStateLocked()
	if err != nil {
		return err
	}
	if state.Branch == name && !force {
		return fmt.Errorf("%w: cannot delete the current branch without force", core.ErrInvalidName)
	}
	return r.deleteRef(name)
}

// SwitchBranch repoints the state row at (name, ref(name)) without
// touching the workspace; the checkpoint SetState forces guarantees a
// fresh connection sees the switch immediately. Use Checkout to also
// materialize the branch's tree.
func (r *Repository) SwitchBranch(name string) (*index.State, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.refExists(name) {
		return nil, fmt.Errorf("%w: %s", core.ErrNoSuchBranch, name)
	}
	hash, err := r.readRef(name)
	if err != nil {
		return nil, err
	}
	st := index.State{CurrentBranch: name, Head: hash}
	if err := r.db.SetState(st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CurrentBranch returns the branch state.CurrentBranch names, even
// while detached (detached HEAD still remembers the branch it left).
func (r *Repository) CurrentBranch() (string, error) {
	state, err := r.CurrentState()
	if err != nil {
		return "", err
	}
	return state.Branch, nil
}
