package objstore

import (
	"testing"

	"github.com/go-git/go-billy/v6/memfs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(memfs.New())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveLoadBlobRoundTrip(t *testing.T) {
	s := newTestStore(t)
	hash, err := s.SaveBlob([]byte("A"))
	if err != nil {
		t.Fatal(err)
	}
	if !s.BlobExists(hash) {
		t.Fatalf("blob %s should exist", hash)
	}
	data, err := s.LoadBlob(hash)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "A" {
		t.Fatalf("LoadBlob = %q, want %q", data, "A")
	}
}

func TestSaveTreeRehashesToSameHash(t *testing.T) {
	s := newTestStore(t)
	blobHash, err := s.SaveBlob([]byte("A"))
	if err != nil {
		t.Fatal(err)
	}
	tree := &Tree{Entries: []TreeEntry{{Path: "file.txt", Kind: "blob", Hash: blobHash, Size: 1}}}
	hash, err := s.SaveTree(tree)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := s.LoadTree(hash)
	if err != nil {
		t.Fatal(err)
	}
	rehash, err := loaded.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}
	if rehash != hash {
		t.Fatalf("rehashed tree = %s, want %s", rehash, hash)
	}
}

func TestSaveTreeRejectsDuplicatePath(t *testing.T) {
	s := newTestStore(t)
	tree := &Tree{Entries: []TreeEntry{
		{Path: "a.txt", Kind: "blob", Hash: "h1", Size: 1},
		{Path: "a.txt", Kind: "blob", Hash: "h2", Size: 1},
	}}
	if _, err := s.SaveTree(tree); err == nil {
		t.Fatal("expected duplicate path error")
	}
}

func TestDeleteBlobRemovesEmptyFanoutParents(t *testing.T) {
	s := newTestStore(t)
	hash, err := s.SaveBlob([]byte("only one"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteBlob(hash); err != nil {
		t.Fatal(err)
	}
	if s.BlobExists(hash) {
		t.Fatal("blob should no longer exist")
	}
	if _, err := s.FS.Stat("objects/blobs/" + hash[:2]); err == nil {
		t.Fatal("empty fanout parent directory should be removed")
	}
}

func TestSaveLoadMeshRoundTrip(t *testing.T) {
	s := newTestStore(t)
	mesh := &Mesh{Metadata: MeshMetadata{
		MeshJSON:     map[string]any{"vertices": 3},
		MaterialJSON: map[string]any{"textures": []any{}},
		ObjectName:   "Cube",
	}}
	fragment := []byte("fragment-bytes")
	hash, err := s.SaveMesh(mesh, fragment)
	if err != nil {
		t.Fatal(err)
	}
	if !s.MeshExists(hash) {
		t.Fatalf("mesh %s should exist", hash)
	}
	loaded, err := s.LoadMesh(hash)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Metadata.ObjectName != "Cube" {
		t.Fatalf("ObjectName = %q, want Cube", loaded.Metadata.ObjectName)
	}
	gotFragment, err := s.LoadMeshFragment(hash)
	if err != nil {
		t.Fatal(err)
	}
	if string(gotFragment) != "fragment-bytes" {
		t.Fatalf("fragment = %q, want fragment-bytes", gotFragment)
	}
}

func TestWriteReadMeshTexture(t *testing.T) {
	s := newTestStore(t)
	mesh := &Mesh{Metadata: MeshMetadata{MeshJSON: map[string]any{}, MaterialJSON: map[string]any{}}}
	hash, err := s.SaveMesh(mesh, []byte("frag"))
	if err != nil {
		t.Fatal(err)
	}
	commitPath, err := s.WriteMeshTexture(hash, "diffuse.png", []byte("pixels"))
	if err != nil {
		t.Fatal(err)
	}
	if commitPath != "textures/diffuse.png" {
		t.Fatalf("commitPath = %q, want textures/diffuse.png", commitPath)
	}
	data, err := s.ReadMeshTexture(hash, "diffuse.png")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pixels" {
		t.Fatalf("texture data = %q, want pixels", data)
	}
}

func TestCommitCanonicalHashEmptyStringWhenFalsy(t *testing.T) {
	c := &Commit{
		CommitType: CommitProject,
		TreeHash:   "treehash",
		Timestamp:  1000,
		Message:    "m",
	}
	hash1, err := c.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}

	c2 := &Commit{
		CommitType:        CommitProject,
		TreeHash:          "treehash",
		Timestamp:         1000,
		Message:           "m",
		MeshHashes:        []string{},
		SelectedMeshNames: nil,
		ExportOptions:     map[string]bool{},
	}
	hash2, err := c2.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}
	if hash1 != hash2 {
		t.Fatalf("empty/nil slices and maps should hash identically to unset fields: %s != %s", hash1, hash2)
	}
}
