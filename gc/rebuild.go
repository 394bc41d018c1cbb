package gc

import (
	"log/slog"
	"path"

	billy "github.com/go-git/go-billy/v6"

	"github.com/forestervcs/forester/hashing"
	"github.com/forestervcs/forester/index"
	"github.com/forestervcs/forester/objstore"
)

// RebuildResult counts how many rows of each kind were rescanned from
// storage.
type RebuildResult struct {
	Commits, Trees, Blobs, Meshes int
}

// Rebuild discards db's tables and rescans every object directly from
// store, the disaster-recovery path used when the index is missing or
// suspected corrupt. Branch ref files are validated (a ref
// pointing at a nonexistent commit is logged, never repaired) and the
// repository_state row is rebuilt preferring "main".
//
// Backing up the previous database file, if one exists, is the
// caller's responsibility; this function only resets and repopulates
// tables.
func Rebuild(dfm billy.Filesystem, store *objstore.Store, db *index.DB, log *slog.Logger) (RebuildResult, error) {
	if log == nil {
		log = slog.Default()
	}
	var result RebuildResult

	if err := db.Reset(); err != nil {
		return result, err
	}

	commitHashes, err := walkFanout(store.FS, path.Join("objects", string(hashing.KindCommit)))
	if err != nil {
		return result, err
	}
	for _, h := range commitHashes {
		c, err := store.LoadCommit(h)
		if err != nil {
			log.Warn("skipping unreadable commit during rebuild", "hash", h, "error", err)
			continue
		}
		if c.Branch == "" {
			c.Branch = "main"
		}
		if c.Author == "" {
			c.Author = "Unknown"
		}
		if c.CommitType == "" {
			c.CommitType = objstore.CommitProject
		}
		if err := db.AddCommit(c, nil); err != nil {
			return result, err
		}
		result.Commits++
	}

	treeHashes, err := walkFanout(store.FS, path.Join("objects", string(hashing.KindTree)))
	if err != nil {
		return result, err
	}
	trees := make(map[string]*objstore.Tree, len(treeHashes))
	for _, h := range treeHashes {
		t, err := store.LoadTree(h)
		if err != nil {
			log.Warn("skipping unreadable tree during rebuild", "hash", h, "error", err)
			continue
		}
		if err := db.AddTree(t); err != nil {
			return result, err
		}
		trees[h] = t
		result.Trees++
	}

	blobHashes, err := walkFanout(store.FS, path.Join("objects", string(hashing.KindBlob)))
	if err != nil {
		return result, err
	}
	for _, h := range blobHashes {
		p, err := hashing.ObjectPath("", hashing.KindBlob, h)
		if err != nil {
			continue
		}
		info, err := store.FS.Stat(p)
		if err != nil {
			log.Warn("skipping unreadable blob during rebuild", "hash", h, "error", err)
			continue
		}
		representativePath := representativeBlobPath(trees, h)
		if err := db.AddBlob(h, info.Size(), representativePath); err != nil {
			return result, err
		}
		result.Blobs++
	}

	meshHashes, err := walkFanout(store.FS, path.Join("objects", string(hashing.KindMesh)))
	if err != nil {
		return result, err
	}
	for _, h := range meshHashes {
		if err := db.AddMesh(h); err != nil {
			return result, err
		}
		result.Meshes++
	}

	names, err := branchNames(dfm)
	if err != nil {
		return result, err
	}
	for _, name := range names {
		hash, err := readRef(dfm, name)
		if err != nil {
			return result, err
		}
		if hash == "" {
			continue
		}
		exists, err := db.CommitExists(hash)
		if err != nil {
			return result, err
		}
		if !exists {
			log.Warn("branch ref points to a commit missing from the rebuilt index", "branch", name, "commit", hash)
		}
	}

	branch, head := "main", ""
	found := false
	for _, name := range names {
		if name == "main" {
			branch, found = "main", true
			break
		}
	}
	if !found && len(names) > 0 {
		branch, found = names[0], true
	}
	if found {
		head, err = readRef(dfm, branch)
		if err != nil {
			return result, err
		}
	}
	if err := db.SetState(index.State{CurrentBranch: branch, Head: head}); err != nil {
		return result, err
	}

	return result, nil
}

// representativeBlobPath scans trees for one entry matching hash,
// returning its path as a diagnostic aid. A blob may legitimately
// appear at many paths across commits, so this is not authoritative.
func representativeBlobPath(trees map[string]*objstore.Tree, hash string) string {
	for _, t := range trees {
		for _, e := range t.Entries {
			if e.Hash == hash {
				return e.Path
			}
		}
	}
	return ""
}
