// Package workspace scans a working directory into a content-addressed
// Tree, writing any new file content through the object store and
// index along the way.
package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"

	billy "github.com/go-git/go-billy/v6"

	"github.com/forestervcs/forester/index"
	"github.com/forestervcs/forester/objstore"
)

// Ignorer decides whether a workspace-relative path should be skipped
// during a scan. *ignore.Rules and *ignore.ExtendedRules both satisfy
// this.
type Ignorer interface {
	ShouldIgnore(rel string) bool
}

// DFMDir is the repository metadata directory, always excluded from a
// scan regardless of ignore rules.
const DFMDir = ".DFM"

// MeshesDir is the subdirectory scanned separately by the mesh-only
// commit path, never included in a project scan's file walk.
const MeshesDir = "meshes"

// Scan walks fs from its root, skipping DFMDir and MeshesDir and any
// path rules reports should be ignored, and returns the resulting
// Tree. Every file's content is written to store and recorded in db as
// it is encountered (deduplicated by content hash: an unchanged file is
// read and hashed, but its blob is not rewritten).
func Scan(bfs billy.Filesystem, rules Ignorer, store *objstore.Store, db *index.DB) (*objstore.Tree, error) {
	var entries []objstore.TreeEntry

	var walk func(dir string) error
	walk = func(dir string) error {
		infos, err := bfs.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read dir %s: %w", dir, err)
		}
		for _, info := range infos {
			name := info.Name()
			full := name
			if dir != "" && dir != "." {
				full = path.Join(dir, name)
			}
			if full == DFMDir || full == MeshesDir {
				continue
			}

			if info.IsDir() {
				if rules != nil && rules.ShouldIgnore(full+"/") {
					continue
				}
				if err := walk(full); err != nil {
					return err
				}
				continue
			}

			if rules != nil && rules.ShouldIgnore(full) {
				continue
			}

			entry, err := scanFile(bfs, store, db, full, info)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	}

	if err := walk(""); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	tree := &objstore.Tree{Entries: entries}
	if _, err := tree.ComputeHash(); err != nil {
		return nil, err
	}
	return tree, nil
}

func scanFile(bfs billy.Filesystem, store *objstore.Store, db *index.DB, rel string, info fs.DirEntry) (objstore.TreeEntry, error) {
	f, err := bfs.Open(rel)
	if err != nil {
		return objstore.TreeEntry{}, fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return objstore.TreeEntry{}, fmt.Errorf("read %s: %w", rel, err)
	}

	hash, err := store.SaveBlob(data)
	if err != nil {
		return objstore.TreeEntry{}, fmt.Errorf("save blob for %s: %w", rel, err)
	}
	if db != nil {
		if err := db.AddBlob(hash, int64(len(data)), rel); err != nil {
			return objstore.TreeEntry{}, err
		}
	}

	return objstore.TreeEntry{Path: rel, Kind: "blob", Hash: hash, Size: int64(len(data))}, nil
}
