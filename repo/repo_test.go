package repo

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/objstore"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	fs := memfs.New()
	r, err := InitFS(fs, "")
	if err != nil {
		t.Fatalf("InitFS: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

var alice = core.Identity{Name: "Alice", Email: "alice@example.com"}

func writeFile(t *testing.T, r *Repository, path, content string) {
	t.Helper()
	if err := util.WriteFile(r.root, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, r *Repository, path string) string {
	t.Helper()
	data, err := util.ReadFile(r.root, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestInitFSCreatesMainBranch(t *testing.T) {
	r := newTestRepo(t)
	state, err := r.CurrentState()
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if state.Branch != "main" || state.Head != "" {
		t.Errorf("state = %+v, want main/<empty>", state)
	}
}

func TestInitFSTwiceFails(t *testing.T) {
	fs := memfs.New()
	if _, err := InitFS(fs, ""); err != nil {
		t.Fatalf("first InitFS: %v", err)
	}
	if _, err := InitFS(fs, ""); !errors.Is(err, core.ErrAlreadyInitialized) {
		t.Errorf("second InitFS error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestCommitCreatesSnapshotAndAdvancesHead(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "v1")

	c, err := r.Commit(alice, "first", CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.ParentHash != "" {
		t.Errorf("first commit ParentHash = %q, want empty", c.ParentHash)
	}

	state, err := r.CurrentState()
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if state.Head != c.Hash {
		t.Errorf("HEAD = %s, want %s", state.Head, c.Hash)
	}
}

func TestCommitWithNoChangesReturnsErrNoChanges(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "v1")
	if _, err := r.Commit(alice, "first", CommitOptions{}); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if _, err := r.Commit(alice, "second", CommitOptions{}); !errors.Is(err, core.ErrNoChanges) {
		t.Errorf("second commit error = %v, want ErrNoChanges", err)
	}
}

func TestCommitChainsParents(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "v1")
	c1, err := r.Commit(alice, "first", CommitOptions{})
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	writeFile(t, r, "model.txt", "v2")
	c2, err := r.Commit(alice, "second", CommitOptions{})
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if c2.ParentHash != c1.Hash {
		t.Errorf("second.ParentHash = %s, want %s", c2.ParentHash, c1.Hash)
	}
}

func TestCommitRejectsLockedFileFromOtherAuthor(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "v1")
	if err := r.locks.Lock("model.txt", "Bob", "exclusive", "main", nil); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := r.Commit(alice, "first", CommitOptions{}); !errors.Is(err, core.ErrLockedByOther) {
		t.Errorf("Commit error = %v, want ErrLockedByOther", err)
	}
}

func TestBranchCreateListDelete(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "v1")
	if _, err := r.Commit(alice, "first", CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := r.CreateBranch("feature", ""); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.CreateBranch("feature", ""); !errors.Is(err, core.ErrBranchExists) {
		t.Errorf("duplicate CreateBranch error = %v, want ErrBranchExists", err)
	}

	names, err := r.ListBranches()
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("ListBranches = %v, want 2 branches", names)
	}

	if err := r.DeleteBranch("feature", false); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if err := r.DeleteBranch("main", false); err == nil {
		t.Error("DeleteBranch(current, false) should fail without force")
	}
}

func TestCheckoutSwitchesBranchAndRestoresTree(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "main-content")
	mainCommit, err := r.Commit(alice, "main commit", CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := r.CreateBranch("feature", mainCommit.Hash); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if _, err := r.Checkout("feature", false, nil, nil, false); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	writeFile(t, r, "model.txt", "feature-content")
	if _, err := r.Commit(alice, "feature commit", CommitOptions{}); err != nil {
		t.Fatalf("Commit on feature: %v", err)
	}

	if _, err := r.Checkout("main", false, nil, nil, false); err != nil {
		t.Fatalf("Checkout back to main: %v", err)
	}
	data, err := r.root.Open("model.txt")
	if err != nil {
		t.Fatalf("open model.txt: %v", err)
	}
	buf := make([]byte, 64)
	n, _ := data.Read(buf)
	data.Close()
	if string(buf[:n]) != "main-content" {
		t.Errorf("model.txt after checkout = %q, want main-content", string(buf[:n]))
	}
}

func TestCheckoutDetachesAtCommitHash(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "v1")
	c1, err := r.Commit(alice, "first", CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	writeFile(t, r, "model.txt", "v2")
	if _, err := r.Commit(alice, "second", CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := r.Checkout(c1.Hash, false, nil, nil, false); err != nil {
		t.Fatalf("Checkout detached: %v", err)
	}
	state, err := r.CurrentState()
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if !state.Detached {
		t.Error("expected Detached after checking out a commit hash")
	}

	if _, err := r.Commit(alice, "should fail", CommitOptions{}); !errors.Is(err, core.ErrDetachedHead) {
		t.Errorf("commit while detached error = %v, want ErrDetachedHead", err)
	}
}

func TestStashCreateApplyDelete(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "committed")
	if _, err := r.Commit(alice, "first", CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeFile(t, r, "model.txt", "dirty")
	hash, err := r.CreateStash("wip")
	if err != nil {
		t.Fatalf("CreateStash: %v", err)
	}

	f, err := r.root.Open("model.txt")
	if err != nil {
		t.Fatalf("open after stash: %v", err)
	}
	buf := make([]byte, 64)
	n, _ := f.Read(buf)
	f.Close()
	if string(buf[:n]) != "committed" {
		t.Errorf("workspace after stash = %q, want committed", string(buf[:n]))
	}

	if err := r.ApplyStash(hash, false); err != nil {
		t.Fatalf("ApplyStash: %v", err)
	}
	f, err = r.root.Open("model.txt")
	if err != nil {
		t.Fatalf("open after apply: %v", err)
	}
	n, _ = f.Read(buf)
	f.Close()
	if string(buf[:n]) != "dirty" {
		t.Errorf("workspace after apply = %q, want dirty", string(buf[:n]))
	}

	if err := r.DeleteStash(hash); err != nil {
		t.Fatalf("DeleteStash: %v", err)
	}
	if err := r.DeleteStash(hash); err == nil {
		t.Error("DeleteStash on an already-deleted stash should fail")
	}
}

func TestCheckoutWithUncommittedChangesReturnsSentinel(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "v1")
	if _, err := r.Commit(alice, "first", CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := r.CreateBranch("feature", ""); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	writeFile(t, r, "model.txt", "dirty")
	if _, err := r.Checkout("feature", false, nil, nil, false); !errors.Is(err, core.ErrUncommittedChanges) {
		t.Errorf("Checkout error = %v, want ErrUncommittedChanges", err)
	}
	if got := readFile(t, r, "model.txt"); got != "dirty" {
		t.Errorf("workspace after refused checkout = %q, want dirty (untouched)", got)
	}
}

func TestSwitchBranchDoesNotTouchWorkspace(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "main-content")
	mainCommit, err := r.Commit(alice, "main commit", CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := r.CreateBranch("feature", mainCommit.Hash); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	writeFile(t, r, "model.txt", "edited")

	st, err := r.SwitchBranch("feature")
	if err != nil {
		t.Fatalf("SwitchBranch: %v", err)
	}
	if st.CurrentBranch != "feature" || st.Head != mainCommit.Hash {
		t.Errorf("state after switch = %+v, want feature/%s", st, mainCommit.Hash)
	}
	if got := readFile(t, r, "model.txt"); got != "edited" {
		t.Errorf("workspace after switch = %q, want edited (untouched)", got)
	}

	if _, err := r.SwitchBranch("nope"); !errors.Is(err, core.ErrNoSuchBranch) {
		t.Errorf("SwitchBranch(nope) error = %v, want ErrNoSuchBranch", err)
	}
}

func TestTagCreateShowDelete(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "v1")
	c, err := r.Commit(alice, "first", CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := r.CreateTag("v1.0", c.Hash); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if err := r.CreateTag("v1.0", c.Hash); !errors.Is(err, core.ErrTagExists) {
		t.Errorf("duplicate CreateTag error = %v, want ErrTagExists", err)
	}

	tagged, err := r.ShowTag("v1.0")
	if err != nil {
		t.Fatalf("ShowTag: %v", err)
	}
	if tagged.Hash != c.Hash {
		t.Errorf("ShowTag hash = %s, want %s", tagged.Hash, c.Hash)
	}

	if err := r.DeleteTag("v1.0"); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}
	if _, err := r.ShowTag("v1.0"); !errors.Is(err, core.ErrNoSuchTag) {
		t.Errorf("ShowTag after delete error = %v, want ErrNoSuchTag", err)
	}
}

func TestDeleteCommitRequiresForceForHead(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "v1")
	c, err := r.Commit(alice, "first", CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := r.DeleteCommit(c.Hash, false); err == nil {
		t.Error("DeleteCommit(HEAD, false) should fail")
	}
	if err := r.DeleteCommit(c.Hash, true); err != nil {
		t.Fatalf("DeleteCommit(HEAD, true): %v", err)
	}
	if r.store.CommitExists(c.Hash) {
		t.Error("forced DeleteCommit should remove the commit object")
	}
}

func TestCommitMeshOnlyDeduplicatesUnchangedTextures(t *testing.T) {
	r := newTestRepo(t)

	writeFile(t, r, "tex/wood.png", "pixels-v1")
	mesh := MeshInput{
		Name:       "Crate",
		ObjectName: "Crate",
		Fragment:   []byte("fragment-v1"),
		Geometry:   map[string]any{"vertices": []any{1.0, 2.0, 3.0}},
		Material:   map[string]any{"shader": "principled"},
		Textures: []objstore.MeshTexture{
			{NodeName: "Base Color", ImageName: "wood", OriginalPath: "tex/wood.png", FileHash: "h1"},
		},
	}
	c1, err := r.CommitMeshOnly(alice, "mesh v1", []MeshInput{mesh}, nil, nil, CommitOptions{})
	if err != nil {
		t.Fatalf("CommitMeshOnly: %v", err)
	}
	if len(c1.MeshHashes) != 1 {
		t.Fatalf("MeshHashes = %v, want 1 entry", c1.MeshHashes)
	}

	mesh2 := mesh
	mesh2.Fragment = []byte("fragment-v2")
	c2, err := r.CommitMeshOnly(alice, "mesh v2", []MeshInput{mesh2}, nil, nil, CommitOptions{})
	if err != nil {
		t.Fatalf("second CommitMeshOnly: %v", err)
	}
	if c2.MeshHashes[0] == c1.MeshHashes[0] {
		t.Error("changing the fragment should produce a new mesh hash")
	}

	m2, err := r.store.LoadMesh(c2.MeshHashes[0])
	if err != nil {
		t.Fatalf("LoadMesh: %v", err)
	}
	textures := extractTextures(m2.Metadata.MaterialJSON)
	if len(textures) != 1 || textures[0].Copied {
		t.Errorf("textures = %+v, want the unchanged wood texture marked Copied=false", textures)
	}
	if textures[0].CommitPath != "textures/wood.png" {
		t.Errorf("inherited CommitPath = %q, want textures/wood.png", textures[0].CommitPath)
	}

	// The payload was copied exactly once, into the first mesh's storage.
	if _, err := r.store.ReadMeshTexture(c1.MeshHashes[0], "wood.png"); err != nil {
		t.Errorf("first mesh should hold the texture payload: %v", err)
	}
	if _, err := r.store.ReadMeshTexture(c2.MeshHashes[0], "wood.png"); err == nil {
		t.Error("second mesh should not hold its own copy of the unchanged texture")
	}
}

func TestCommitMeshOnlyRecordsCommitPathInStoredMetadata(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "tex/wood.png", "pixels")

	mesh := MeshInput{
		Name:       "Crate",
		ObjectName: "Crate",
		Fragment:   []byte("fragment"),
		Geometry:   map[string]any{"vertices": []any{1.0}},
		Material:   map[string]any{"shader": "principled"},
		Textures: []objstore.MeshTexture{
			{NodeName: "Base Color", ImageName: "wood", OriginalPath: "tex/wood.png", FileHash: "h1"},
		},
	}
	c, err := r.CommitMeshOnly(alice, "mesh", []MeshInput{mesh}, nil, nil, CommitOptions{})
	if err != nil {
		t.Fatalf("CommitMeshOnly: %v", err)
	}

	stored, err := r.store.LoadMesh(c.MeshHashes[0])
	if err != nil {
		t.Fatalf("LoadMesh: %v", err)
	}
	textures := extractTextures(stored.Metadata.MaterialJSON)
	if len(textures) != 1 || !textures[0].Copied || textures[0].CommitPath != "textures/wood.png" {
		t.Errorf("stored textures = %+v, want Copied=true with CommitPath textures/wood.png", textures)
	}
	if _, err := r.store.ReadMeshTexture(c.MeshHashes[0], "wood.png"); err != nil {
		t.Errorf("texture payload missing from mesh storage: %v", err)
	}
}

func TestCheckoutMeshOnlyCommitMaterializesMeshes(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "tex/wood.png", "pixels")

	mesh := MeshInput{
		Name:       "Crate",
		ObjectName: "Crate",
		Fragment:   []byte("fragment"),
		Geometry:   map[string]any{"vertices": []any{1.0}},
		Material:   map[string]any{"shader": "principled"},
		Textures: []objstore.MeshTexture{
			{NodeName: "Base Color", ImageName: "wood", OriginalPath: "tex/wood.png", FileHash: "h1"},
		},
	}
	c, err := r.CommitMeshOnly(alice, "mesh", []MeshInput{mesh}, nil, nil, CommitOptions{})
	if err != nil {
		t.Fatalf("CommitMeshOnly: %v", err)
	}

	// Wipe the workspace copies, then restore from the commit.
	if err := r.root.Remove("tex/wood.png"); err != nil {
		t.Fatalf("remove texture: %v", err)
	}
	if _, err := r.Checkout(c.Hash, true, nil, nil, false); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	dir := "meshes/" + c.MeshHashes[0][:meshPathHashLen]
	if got := readFile(t, r, dir+"/mesh.blend"); got != "fragment" {
		t.Errorf("restored fragment = %q, want fragment", got)
	}
	if got := readFile(t, r, dir+"/textures/wood.png"); got != "pixels" {
		t.Errorf("restored texture = %q, want pixels", got)
	}

	var meta objstore.MeshMetadata
	if err := json.Unmarshal([]byte(readFile(t, r, dir+"/mesh_metadata.json")), &meta); err != nil {
		t.Fatalf("parse restored metadata: %v", err)
	}
	textures := extractTextures(meta.MaterialJSON)
	if len(textures) != 1 || textures[0].CommitPath != dir+"/textures/wood.png" {
		t.Errorf("restored textures = %+v, want workspace-relative commit_path %s/textures/wood.png", textures, dir)
	}
}

func TestCreateStashHashIsDeterministicDigest(t *testing.T) {
	r := newTestRepo(t)
	writeFile(t, r, "model.txt", "committed")
	if _, err := r.Commit(alice, "first", CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	writeFile(t, r, "model.txt", "dirty")

	hash, err := r.CreateStash("wip")
	if err != nil {
		t.Fatalf("CreateStash: %v", err)
	}
	if len(hash) != 64 {
		t.Errorf("stash hash %q is not a sha256 hex digest", hash)
	}
}
