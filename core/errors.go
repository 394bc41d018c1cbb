package core

import "errors"

// Sentinel errors surfaced to callers. Names follow the taxonomy the
// core contract is built against; callers should match with errors.Is.
var (
	ErrNotARepository     = errors.New("not a forester repository")
	ErrAlreadyInitialized = errors.New("repository already initialized")
	ErrNoSuchObject       = errors.New("no such object")
	ErrNoSuchBranch       = errors.New("no such branch")
	ErrNoSuchTag          = errors.New("no such tag")
	ErrNoSuchStash        = errors.New("no such stash")
	ErrNoSuchCommit       = errors.New("no such commit")
	ErrBranchExists       = errors.New("branch already exists")
	ErrTagExists          = errors.New("tag already exists")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidHash        = errors.New("invalid hash")

	// ErrUncommittedChanges is a sentinel, never wrapped with context:
	// checkout/apply-stash return it so the caller can offer auto-stash.
	ErrUncommittedChanges = errors.New("uncommitted changes")

	// ErrNoChanges is returned (not as an error to most callers, but as
	// a typed sentinel) when a commit would be empty.
	ErrNoChanges = errors.New("no changes to commit")

	ErrLockedByOther = errors.New("locked by another owner")
	ErrHookFailed    = errors.New("hook failed")
	ErrCorrupt       = errors.New("corrupt object")

	ErrDetachedHead = errors.New("HEAD is detached")
)
