// Package gc computes the commit reachability set from branch refs and
// HEAD, garbage-collects unreachable objects, and rebuilds the index
// database from the object store.
package gc

import (
	"fmt"
	"io"
	"path"

	billy "github.com/go-git/go-billy/v6"

	"github.com/forestervcs/forester/hashing"
	"github.com/forestervcs/forester/index"
	"github.com/forestervcs/forester/objstore"
)

// BranchRefsDir is the directory of branch ref files, relative to the
// repository's .DFM directory.
const BranchRefsDir = "refs/branches"

// readRef returns the commit hash a branch ref file holds, or "" if
// the branch has no commits yet.
func readRef(dfm billy.Filesystem, branch string) (string, error) {
	f, err := dfm.Open(path.Join(BranchRefsDir, branch))
	if err != nil {
		return "", nil
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read ref %s: %w", branch, err)
	}
	return trimNewline(string(data)), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

// branchNames lists every branch with a ref file.
func branchNames(dfm billy.Filesystem) ([]string, error) {
	infos, err := dfm.ReadDir(BranchRefsDir)
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

// CommitsUsedByBranches traces the parent chain from every branch ref
// and the current HEAD (excluding excludeBranch, if non-empty) and
// returns the full set of reachable commit hashes. Traversal is
// iterative with a visited set, not recursive, so a long branch
// history never risks a stack overflow.
func CommitsUsedByBranches(dfm billy.Filesystem, db *index.DB, excludeBranch string) (map[string]bool, error) {
	roots := make(map[string]bool)

	names, err := branchNames(dfm)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if excludeBranch != "" && name == excludeBranch {
			continue
		}
		hash, err := readRef(dfm, name)
		if err != nil {
			return nil, err
		}
		if hash != "" {
			roots[hash] = true
		}
	}

	state, err := db.GetState()
	if err != nil {
		return nil, err
	}
	if state.Head != "" {
		roots[state.Head] = true
	}

	used := make(map[string]bool)
	var queue []string
	for hash := range roots {
		queue = append(queue, hash)
	}
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		if hash == "" || used[hash] {
			continue
		}
		used[hash] = true

		c, err := db.GetCommit(hash)
		if err != nil {
			return nil, err
		}
		if c == nil || c.ParentHash == "" {
			continue
		}
		queue = append(queue, c.ParentHash)
	}
	return used, nil
}

// Stats reports what a GarbageCollect pass deleted and kept, per
// object kind.
type Stats struct {
	CommitsDeleted, CommitsKept int
	TreesDeleted, TreesKept     int
	BlobsDeleted, BlobsKept     int
	MeshesDeleted, MeshesKept   int
	TempFilesDeleted            int
}

// GarbageCollect deletes every object not reachable from a branch ref,
// the current HEAD, or a surviving stash's tree. With dryRun set,
// nothing is deleted; Stats still report what would be.
func GarbageCollect(dfm billy.Filesystem, store *objstore.Store, db *index.DB, dryRun bool) (Stats, error) {
	var stats Stats

	usedCommits, err := CommitsUsedByBranches(dfm, db, "")
	if err != nil {
		return stats, err
	}

	usedTrees := make(map[string]bool)
	usedBlobs := make(map[string]bool)
	usedMeshes := make(map[string]bool)

	// Blob membership comes from the tree objects on disk, not the
	// index's tree_entries cache: GC must survive a stale or partially
	// rebuilt index.
	markTree := func(treeHash string) {
		usedTrees[treeHash] = true
		t, err := store.LoadTree(treeHash)
		if err != nil {
			return
		}
		for _, e := range t.Entries {
			usedBlobs[e.Hash] = true
		}
	}

	for hash := range usedCommits {
		c, err := store.LoadCommit(hash)
		if err != nil {
			// Already gone or corrupt; nothing more to preserve
			// through it.
			continue
		}
		markTree(c.TreeHash)
		for _, m := range c.MeshHashes {
			usedMeshes[m] = true
		}
	}

	stashes, err := db.ListStashes()
	if err != nil {
		return stats, err
	}
	for _, s := range stashes {
		markTree(s.TreeHash)
	}

	if err := sweepKind(store.FS, hashing.KindCommit, usedCommits, dryRun,
		&stats.CommitsDeleted, &stats.CommitsKept, store.DeleteCommit); err != nil {
		return stats, err
	}
	if err := sweepKind(store.FS, hashing.KindTree, usedTrees, dryRun,
		&stats.TreesDeleted, &stats.TreesKept, store.DeleteTree); err != nil {
		return stats, err
	}
	if err := sweepKind(store.FS, hashing.KindBlob, usedBlobs, dryRun,
		&stats.BlobsDeleted, &stats.BlobsKept, store.DeleteBlob); err != nil {
		return stats, err
	}
	if err := sweepKind(store.FS, hashing.KindMesh, usedMeshes, dryRun,
		&stats.MeshesDeleted, &stats.MeshesKept, store.DeleteMesh); err != nil {
		return stats, err
	}

	n, err := cleanScratchDir(store.FS, "preview_temp", dryRun)
	if err != nil {
		return stats, err
	}
	stats.TempFilesDeleted += n
	n, err = cleanScratchDir(store.FS, "compare_temp", dryRun)
	if err != nil {
		return stats, err
	}
	stats.TempFilesDeleted += n

	return stats, nil
}

// sweepKind walks objects/<kind>'s fanout tree, deleting (or, under
// dryRun, counting) every hash not in used.
func sweepKind(fs billy.Filesystem, kind hashing.Kind, used map[string]bool, dryRun bool, deleted, kept *int, delete func(string) error) error {
	hashes, err := walkFanout(fs, path.Join("objects", string(kind)))
	if err != nil {
		return err
	}
	for _, h := range hashes {
		if used[h] {
			*kept++
			continue
		}
		*deleted++
		if dryRun {
			continue
		}
		if err := delete(h); err != nil {
			return fmt.Errorf("delete %s %s: %w", kind, h, err)
		}
	}
	return nil
}

// walkFanout reconstructs every hash present under a 2+2 fanout
// directory (objects/<kind>/aa/bb/rest) by concatenating its path
// components.
func walkFanout(fs billy.Filesystem, kindDir string) ([]string, error) {
	var hashes []string

	level1, err := fs.ReadDir(kindDir)
	if err != nil {
		return nil, nil
	}
	for _, l1 := range level1 {
		if !l1.IsDir() {
			continue
		}
		level2, err := fs.ReadDir(path.Join(kindDir, l1.Name()))
		if err != nil {
			continue
		}
		for _, l2 := range level2 {
			if !l2.IsDir() {
				continue
			}
			leaves, err := fs.ReadDir(path.Join(kindDir, l1.Name(), l2.Name()))
			if err != nil {
				continue
			}
			for _, leaf := range leaves {
				hashes = append(hashes, l1.Name()+l2.Name()+leaf.Name())
			}
		}
	}
	return hashes, nil
}

// cleanScratchDir unconditionally removes every entry under name
// (relative to fs's root), counting what it removed. Under dryRun
// nothing is deleted.
func cleanScratchDir(fs billy.Filesystem, name string, dryRun bool) (int, error) {
	infos, err := fs.ReadDir(name)
	if err != nil {
		return 0, nil
	}
	count := len(infos)
	if dryRun {
		return count, nil
	}
	for _, info := range infos {
		p := path.Join(name, info.Name())
		if info.IsDir() {
			if err := removeAll(fs, p); err != nil {
				return count, err
			}
		} else if err := fs.Remove(p); err != nil {
			return count, err
		}
	}
	return count, nil
}

func removeAll(fs billy.Filesystem, dir string) error {
	infos, err := fs.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, info := range infos {
		p := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := removeAll(fs, p); err != nil {
				return err
			}
		} else if err := fs.Remove(p); err != nil {
			return err
		}
	}
	return fs.Remove(dir)
}
