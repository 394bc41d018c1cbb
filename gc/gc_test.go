package gc

import (
	"testing"

	billy "github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"

	"github.com/forestervcs/forester/index"
	"github.com/forestervcs/forester/objstore"
)

func newFixture(t *testing.T) (billy.Filesystem, *objstore.Store, *index.DB) {
	t.Helper()
	fs := memfs.New()
	store, err := objstore.New(fs)
	if err != nil {
		t.Fatalf("objstore.New: %v", err)
	}
	db, err := index.Open(":memory:")
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return fs, store, db
}

func writeRef(t *testing.T, fs billy.Filesystem, branch, hash string) {
	t.Helper()
	if err := util.WriteFile(fs, "refs/branches/"+branch, []byte(hash), 0o644); err != nil {
		t.Fatalf("write ref %s: %v", branch, err)
	}
}

func commitWithTree(t *testing.T, store *objstore.Store, db *index.DB, content, parent, branch string) *objstore.Commit {
	t.Helper()
	blobHash, err := store.SaveBlob([]byte(content))
	if err != nil {
		t.Fatalf("SaveBlob: %v", err)
	}
	tree := &objstore.Tree{Entries: []objstore.TreeEntry{
		{Path: "file.txt", Kind: "blob", Hash: blobHash, Size: int64(len(content))},
	}}
	if _, err := store.SaveTree(tree); err != nil {
		t.Fatalf("SaveTree: %v", err)
	}
	c := &objstore.Commit{
		ParentHash: parent,
		TreeHash:   tree.Hash,
		Branch:     branch,
		Timestamp:  1,
		Message:    "m",
		Author:     "a",
		CommitType: objstore.CommitProject,
	}
	if _, err := c.ComputeHash(); err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if _, err := store.SaveCommit(c); err != nil {
		t.Fatalf("SaveCommit: %v", err)
	}
	if err := db.AddCommit(c, tree); err != nil {
		t.Fatalf("AddCommit: %v", err)
	}
	if err := db.AddBlob(blobHash, int64(len(content)), "file.txt"); err != nil {
		t.Fatalf("AddBlob: %v", err)
	}
	return c
}

func TestCommitsUsedByBranchesTracesParentChain(t *testing.T) {
	fs, store, db := newFixture(t)

	c1 := commitWithTree(t, store, db, "A", "", "main")
	c2 := commitWithTree(t, store, db, "B", c1.Hash, "main")
	writeRef(t, fs, "main", c2.Hash)
	if err := db.SetState(index.State{CurrentBranch: "main", Head: c2.Hash}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	used, err := CommitsUsedByBranches(fs, db, "")
	if err != nil {
		t.Fatalf("CommitsUsedByBranches: %v", err)
	}
	if !used[c1.Hash] || !used[c2.Hash] {
		t.Errorf("expected both commits reachable, got %v", used)
	}
}

func TestGarbageCollectDeletesUnreachable(t *testing.T) {
	fs, store, db := newFixture(t)

	c1 := commitWithTree(t, store, db, "A", "", "main")
	c2 := commitWithTree(t, store, db, "B", c1.Hash, "main")
	writeRef(t, fs, "main", c2.Hash)
	if err := db.SetState(index.State{CurrentBranch: "main", Head: c2.Hash}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	// An orphan commit with its own tree/blob, reachable from nothing.
	orphan := commitWithTree(t, store, db, "ORPHAN", "", "gone")

	stats, err := GarbageCollect(fs, store, db, false)
	if err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
	if stats.CommitsKept != 2 || stats.CommitsDeleted != 1 {
		t.Errorf("stats = %+v, want 2 kept / 1 deleted commits", stats)
	}
	if store.CommitExists(orphan.Hash) {
		t.Error("orphan commit should have been deleted")
	}
	if !store.CommitExists(c2.Hash) {
		t.Error("reachable commit should survive GC")
	}
}

func TestGarbageCollectDryRunDeletesNothing(t *testing.T) {
	fs, store, db := newFixture(t)
	orphan := commitWithTree(t, store, db, "ORPHAN", "", "gone")

	stats, err := GarbageCollect(fs, store, db, true)
	if err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
	if stats.CommitsDeleted != 1 {
		t.Errorf("dry-run should still count the deletable commit, got %+v", stats)
	}
	if !store.CommitExists(orphan.Hash) {
		t.Error("dry-run must not delete anything")
	}
}

func TestGarbageCollectPreservesStashTree(t *testing.T) {
	fs, store, db := newFixture(t)

	blobHash, err := store.SaveBlob([]byte("stashed"))
	if err != nil {
		t.Fatalf("SaveBlob: %v", err)
	}
	tree := &objstore.Tree{Entries: []objstore.TreeEntry{
		{Path: "file.txt", Kind: "blob", Hash: blobHash, Size: 7},
	}}
	if _, err := tree.ComputeHash(); err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if _, err := store.SaveTree(tree); err != nil {
		t.Fatalf("SaveTree: %v", err)
	}
	if err := db.AddBlob(blobHash, 7, "file.txt"); err != nil {
		t.Fatalf("AddBlob: %v", err)
	}
	if err := db.AddTree(tree); err != nil {
		t.Fatalf("AddTree: %v", err)
	}
	if err := db.AddStash(index.Stash{Hash: "stash1", Timestamp: 1, TreeHash: tree.Hash, Branch: "main"}); err != nil {
		t.Fatalf("AddStash: %v", err)
	}

	stats, err := GarbageCollect(fs, store, db, false)
	if err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
	if stats.TreesKept < 1 || stats.BlobsKept < 1 {
		t.Errorf("stash tree/blob should be kept, got %+v", stats)
	}
	if !store.TreeExists(tree.Hash) || !store.BlobExists(blobHash) {
		t.Error("stash-referenced tree/blob should survive GC")
	}
}

func TestRebuildRescansStorage(t *testing.T) {
	fs, store, db := newFixture(t)
	c1 := commitWithTree(t, store, db, "A", "", "main")
	writeRef(t, fs, "main", c1.Hash)
	if err := db.SetState(index.State{CurrentBranch: "main", Head: c1.Hash}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	result, err := Rebuild(fs, store, db, nil)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if result.Commits != 1 || result.Trees != 1 || result.Blobs != 1 {
		t.Errorf("Rebuild result = %+v, want 1/1/1", result)
	}

	state, err := db.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.CurrentBranch != "main" || state.Head != c1.Hash {
		t.Errorf("rebuilt state = %+v, want main/%s", state, c1.Hash)
	}

	exists, err := db.CommitExists(c1.Hash)
	if err != nil {
		t.Fatalf("CommitExists: %v", err)
	}
	if !exists {
		t.Error("rebuilt index should contain the commit")
	}
}
