// Package repo implements the ref/state machine at the center of a
// forester repository: commit, branch, checkout, stash and tag
// operations over the object store and index.
package repo

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"

	billy "github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-billy/v6/util"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/hooks"
	"github.com/forestervcs/forester/ignore"
	"github.com/forestervcs/forester/index"
	"github.com/forestervcs/forester/locks"
	"github.com/forestervcs/forester/objstore"
	"github.com/forestervcs/forester/workspace"
)

// DFMDir is the repository metadata directory, relative to the
// workspace root.
const DFMDir = ".DFM"

const dbFileName = "forester.db"

// DefaultBranch is the branch a fresh repository starts on.
const DefaultBranch = "main"

// Repository is the top-level handle on one forester repository: its
// workspace, object store, index, locks and hooks. All exported
// methods are safe for concurrent use; a single mutex guards the
// state-machine operations (commit/checkout/branch/stash/tag) so GC
// never races a concurrent commit or checkout.
type Repository struct {
	mu sync.RWMutex

	root     billy.Filesystem // workspace root
	dfm      billy.Filesystem // chroot(".DFM")
	repoPath string           // real OS path, used only by hooks' subprocess invocation

	store *objstore.Store
	db    *index.DB
	locks *locks.Manager
	hooks *hooks.Runner

	closed bool
}

func (r *Repository) ensureOpen() error {
	if r == nil || r.closed {
		return core.ErrNotARepository
	}
	return nil
}

// Close releases the index database connection.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

// InitFS creates a new repository rooted at root (an arbitrary
// billy.Filesystem, real or in-memory) and returns a handle to it.
// repoPath is the real on-disk path backing root, used only so hooks
// can be exec'd; pass "" for a filesystem with no real backing path
// (hooks then simply never find a script to run).
func InitFS(root billy.Filesystem, repoPath string) (*Repository, error) {
	if _, err := root.Stat(DFMDir); err == nil {
		return nil, core.ErrAlreadyInitialized
	}

	dfm, err := root.Chroot(DFMDir)
	if err != nil {
		return nil, fmt.Errorf("chroot %s: %w", DFMDir, err)
	}

	store, err := objstore.New(dfm)
	if err != nil {
		return nil, err
	}

	if err := dfm.MkdirAll(path.Join(BranchRefsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create refs directory: %w", err)
	}
	if err := util.WriteFile(dfm, path.Join(BranchRefsDir, DefaultBranch), nil, 0o644); err != nil {
		return nil, fmt.Errorf("create default branch ref: %w", err)
	}

	if err := ignore.CreateDefaultFile(root, ignore.DefaultFileName); err != nil {
		return nil, err
	}

	db, err := index.Open(dbPathFor(repoPath))
	if err != nil {
		return nil, err
	}
	if err := db.SetState(index.State{CurrentBranch: DefaultBranch, Head: ""}); err != nil {
		db.Close()
		return nil, err
	}

	return newRepository(root, dfm, store, db, repoPath), nil
}

// OpenFS opens an existing repository rooted at root.
func OpenFS(root billy.Filesystem, repoPath string) (*Repository, error) {
	if _, err := root.Stat(DFMDir); err != nil {
		return nil, core.ErrNotARepository
	}
	dfm, err := root.Chroot(DFMDir)
	if err != nil {
		return nil, fmt.Errorf("chroot %s: %w", DFMDir, err)
	}
	store, err := objstore.New(dfm)
	if err != nil {
		return nil, err
	}
	db, err := index.Open(dbPathFor(repoPath))
	if err != nil {
		return nil, err
	}
	return newRepository(root, dfm, store, db, repoPath), nil
}

// dbPathFor returns the on-disk database path for a real repository,
// or ":memory:" when there is no backing path (an in-memory fixture).
func dbPathFor(repoPath string) string {
	if repoPath == "" {
		return ":memory:"
	}
	return path.Join(repoPath, DFMDir, dbFileName)
}

func newRepository(root, dfm billy.Filesystem, store *objstore.Store, db *index.DB, repoPath string) *Repository {
	return &Repository{
		root:     root,
		dfm:      dfm,
		repoPath: repoPath,
		store:    store,
		db:       db,
		locks:    locks.New(db),
		hooks:    hooks.New(repoPath, slog.Default()),
	}
}

// Init creates a new repository on disk at path. If force is false
// and path already has a .DFM directory, core.ErrAlreadyInitialized is
// returned.
func Init(repoRoot string, force bool) (*Repository, error) {
	if err := os.MkdirAll(repoRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create repository root: %w", err)
	}
	root := osfs.New(repoRoot)
	if force {
		if err := util.RemoveAll(root, DFMDir); err != nil {
			return nil, fmt.Errorf("remove existing %s: %w", DFMDir, err)
		}
	}
	return InitFS(root, repoRoot)
}

// Open opens an existing repository on disk at path.
func Open(repoRoot string) (*Repository, error) {
	return OpenFS(osfs.New(repoRoot), repoRoot)
}

// Store returns the repository's object store, for callers (e.g. the
// CLI's show/log commands) that need direct object access.
func (r *Repository) Store() *objstore.Store { return r.store }

// DB returns the repository's index database.
func (r *Repository) DB() *index.DB { return r.db }

// Locks returns the repository's lock manager.
func (r *Repository) Locks() *locks.Manager { return r.locks }

// Root returns the workspace root filesystem.
func (r *Repository) Root() billy.Filesystem { return r.root }

// loadRules re-reads .dfmignore, so edits made between operations take
// effect immediately. The returned rules carry the extended meshes/
// exclusion: every scan the repository itself runs is a project-tree
// scan, and meshes go through the mesh-only commit pipeline instead.
func (r *Repository) loadRules() (workspace.Ignorer, error) {
	base, err := ignore.Load(r.root, ignore.DefaultFileName)
	if err != nil {
		return nil, err
	}
	return ignore.NewExtended(base), nil
}

// BranchRefsDir is the directory of branch ref files, relative to
// .DFM.
const BranchRefsDir = "refs/branches"

func (r *Repository) refPath(branch string) string {
	return path.Join(BranchRefsDir, branch)
}

// readRef returns the commit hash branch's ref file holds, "" if the
// branch has no commits yet.
func (r *Repository) readRef(branch string) (string, error) {
	f, err := r.dfm.Open(r.refPath(branch))
	if err != nil {
		return "", fmt.Errorf("%w: %s", core.ErrNoSuchBranch, branch)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read ref %s: %w", branch, err)
	}
	return trimRef(string(data)), nil
}

func trimRef(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func (r *Repository) refExists(branch string) bool {
	_, err := r.dfm.Stat(r.refPath(branch))
	return err == nil
}

// writeRef writes hash to branch's ref file, creating it if absent.
func (r *Repository) writeRef(branch, hash string) error {
	if err := r.dfm.MkdirAll(BranchRefsDir, 0o755); err != nil {
		return fmt.Errorf("create refs directory: %w", err)
	}
	if err := util.WriteFile(r.dfm, r.refPath(branch), []byte(hash), 0o644); err != nil {
		return fmt.Errorf("write ref %s: %w", branch, err)
	}
	return nil
}

func (r *Repository) deleteRef(branch string) error {
	if err := r.dfm.Remove(r.refPath(branch)); err != nil {
		return fmt.Errorf("delete ref %s: %w", branch, err)
	}
	return nil
}

func (r *Repository) branchNames() ([]string, error) {
	infos, err := r.dfm.ReadDir(BranchRefsDir)
	if err != nil {
		return nil, nil
	}
	var out []string
	for _, info := range infos {
		if !info.IsDir() {
			out = append(out, info.Name())
		}
	}
	return out, nil
}

// State is the current branch/HEAD pair.
type State struct {
	Branch   string
	Head     string
	Detached bool
}

// CurrentState returns the repository's current branch/HEAD state.
func (r *Repository) CurrentState() (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentStateLocked()
}

func (r *Repository) currentStateLocked() (State, error) {
	st, err := r.db.GetState()
	if err != nil {
		return State{}, err
	}
	ref, err := r.readRef(st.CurrentBranch)
	if err != nil {
		ref = ""
	}
	return State{
		Branch:   st.CurrentBranch,
		Head:     st.Head,
		Detached: st.Head != "" && st.Head != ref,
	}, nil
}

// HasUncommittedChanges rescans the workspace and compares its tree
// hash against the current HEAD commit's tree.
func (r *Repository) HasUncommittedChanges() (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasUncommittedChangesLocked()
}

// hasUncommittedChangesLocked is hasUncommittedChanges for callers
// that already hold r.mu.
func (r *Repository) hasUncommittedChangesLocked() (bool, error) {
	st, err := r.currentStateLocked()
	if err != nil {
		return false, err
	}
	var headTree string
	if st.Head != "" {
		c, err := r.store.LoadCommit(st.Head)
		if err != nil {
			return false, err
		}
		headTree = c.TreeHash
	}

	rules, err := r.loadRules()
	if err != nil {
		return false, err
	}
	tree, err := workspace.Scan(r.root, rules, r.store, r.db)
	if err != nil {
		return false, err
	}
	if headTree == "" {
		return len(tree.Entries) > 0, nil
	}
	return tree.Hash != headTree, nil
}
