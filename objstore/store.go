package objstore

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/hashing"
)

// Store is the durable content-addressed object store. It writes
// through a billy.Filesystem rooted at the repository's .DFM
// directory, so the same Store works against a real on-disk
// repository or an in-memory fixture.
type Store struct {
	FS billy.Filesystem
}

// New returns a Store rooted at fs, ensuring the four object-kind
// directories exist.
func New(fs billy.Filesystem) (*Store, error) {
	s := &Store{FS: fs}
	for _, kind := range []hashing.Kind{hashing.KindBlob, hashing.KindTree, hashing.KindCommit, hashing.KindMesh} {
		dir := path.Join("objects", string(kind))
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", kind, err)
		}
	}
	return s, nil
}

func objectPath(kind hashing.Kind, hash string) (string, error) {
	return hashing.ObjectPath("", kind, hash)
}

func (s *Store) exists(p string) bool {
	_, err := s.FS.Stat(p)
	return err == nil
}

// removeEmptyParents best-effort removes the two fanout parent
// directories of p if they are now empty, swallowing any error.
func (s *Store) removeEmptyParents(p string) {
	parent := path.Dir(p)
	if parent == "." || parent == "/" {
		return
	}
	if s.FS.Remove(parent) != nil {
		return
	}
	grandparent := path.Dir(parent)
	if grandparent == "." || grandparent == "/" {
		return
	}
	_ = s.FS.Remove(grandparent)
}

// ---------- Blob ----------

// SaveBlob writes data verbatim to its content-addressed path and
// returns the blob's hash.
func (s *Store) SaveBlob(data []byte) (string, error) {
	h := hashing.Hash(data)
	p, err := objectPath(hashing.KindBlob, h)
	if err != nil {
		return "", err
	}
	if s.exists(p) {
		return h, nil
	}
	if err := util.WriteFile(s.FS, p, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", h, err)
	}
	return h, nil
}

// LoadBlob reads the blob bytes for hash.
func (s *Store) LoadBlob(hash string) ([]byte, error) {
	p, err := objectPath(hashing.KindBlob, hash)
	if err != nil {
		return nil, err
	}
	data, err := util.ReadFile(s.FS, p)
	if err != nil {
		return nil, fmt.Errorf("%w: blob %s", core.ErrNoSuchObject, hash)
	}
	return data, nil
}

// BlobExists reports whether hash is present in the store.
func (s *Store) BlobExists(hash string) bool {
	p, err := objectPath(hashing.KindBlob, hash)
	if err != nil {
		return false
	}
	return s.exists(p)
}

// DeleteBlob removes the blob for hash, best-effort cleaning empty
// fanout parent directories.
func (s *Store) DeleteBlob(hash string) error {
	p, err := objectPath(hashing.KindBlob, hash)
	if err != nil {
		return err
	}
	if !s.exists(p) {
		return nil
	}
	if err := s.FS.Remove(p); err != nil {
		return fmt.Errorf("delete blob %s: %w", hash, err)
	}
	s.removeEmptyParents(p)
	return nil
}

// ---------- Tree ----------

// SaveTree computes t's hash if unset, writes the pretty-printed JSON
// serialization, and returns the hash.
func (s *Store) SaveTree(t *Tree) (string, error) {
	if t.Hash == "" {
		if _, err := t.ComputeHash(); err != nil {
			return "", err
		}
	}
	if dup, found := t.HasDuplicatePath(); found {
		return "", fmt.Errorf("%w: duplicate tree path %q", core.ErrCorrupt, dup)
	}
	p, err := objectPath(hashing.KindTree, t.Hash)
	if err != nil {
		return "", err
	}
	if s.exists(p) {
		return t.Hash, nil
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tree: %w", err)
	}
	if err := util.WriteFile(s.FS, p, data, 0o644); err != nil {
		return "", fmt.Errorf("write tree %s: %w", t.Hash, err)
	}
	return t.Hash, nil
}

// LoadTree reads and parses the tree for hash.
func (s *Store) LoadTree(hash string) (*Tree, error) {
	p, err := objectPath(hashing.KindTree, hash)
	if err != nil {
		return nil, err
	}
	data, err := util.ReadFile(s.FS, p)
	if err != nil {
		return nil, fmt.Errorf("%w: tree %s", core.ErrNoSuchObject, hash)
	}
	var t Tree
	if jsonErr := json.Unmarshal(data, &t); jsonErr != nil {
		return nil, fmt.Errorf("%w: tree %s: %v", core.ErrCorrupt, hash, jsonErr)
	}
	for _, e := range t.Entries {
		if e.Kind != "blob" {
			return nil, fmt.Errorf("%w: tree %s has unsupported entry kind %q", core.ErrCorrupt, hash, e.Kind)
		}
	}
	return &t, nil
}

// TreeExists reports whether hash is present in the store.
func (s *Store) TreeExists(hash string) bool {
	p, err := objectPath(hashing.KindTree, hash)
	if err != nil {
		return false
	}
	return s.exists(p)
}

// DeleteTree removes the tree for hash.
func (s *Store) DeleteTree(hash string) error {
	p, err := objectPath(hashing.KindTree, hash)
	if err != nil {
		return err
	}
	if !s.exists(p) {
		return nil
	}
	if err := s.FS.Remove(p); err != nil {
		return fmt.Errorf("delete tree %s: %w", hash, err)
	}
	s.removeEmptyParents(p)
	return nil
}

// ---------- Commit ----------

// SaveCommit computes c's hash if unset and writes its JSON.
func (s *Store) SaveCommit(c *Commit) (string, error) {
	if c.Hash == "" {
		if _, err := c.ComputeHash(); err != nil {
			return "", err
		}
	}
	p, err := objectPath(hashing.KindCommit, c.Hash)
	if err != nil {
		return "", err
	}
	if s.exists(p) {
		return c.Hash, nil
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal commit: %w", err)
	}
	if err := util.WriteFile(s.FS, p, data, 0o644); err != nil {
		return "", fmt.Errorf("write commit %s: %w", c.Hash, err)
	}
	return c.Hash, nil
}

// LoadCommit reads and parses the commit for hash.
func (s *Store) LoadCommit(hash string) (*Commit, error) {
	p, err := objectPath(hashing.KindCommit, hash)
	if err != nil {
		return nil, err
	}
	data, err := util.ReadFile(s.FS, p)
	if err != nil {
		return nil, fmt.Errorf("%w: commit %s", core.ErrNoSuchObject, hash)
	}
	var c Commit
	if jsonErr := json.Unmarshal(data, &c); jsonErr != nil {
		return nil, fmt.Errorf("%w: commit %s: %v", core.ErrCorrupt, hash, jsonErr)
	}
	return &c, nil
}

// CommitExists reports whether hash is present in the store.
func (s *Store) CommitExists(hash string) bool {
	p, err := objectPath(hashing.KindCommit, hash)
	if err != nil {
		return false
	}
	return s.exists(p)
}

// DeleteCommit removes the commit for hash.
func (s *Store) DeleteCommit(hash string) error {
	p, err := objectPath(hashing.KindCommit, hash)
	if err != nil {
		return err
	}
	if !s.exists(p) {
		return nil
	}
	if err := s.FS.Remove(p); err != nil {
		return fmt.Errorf("delete commit %s: %w", hash, err)
	}
	s.removeEmptyParents(p)
	return nil
}

// ---------- Mesh ----------

const (
	meshFragmentFile = "mesh.blend"
	meshMetadataFile = "mesh_metadata.json"
	meshTexturesDir  = "textures"
)

// SaveMesh computes m's hash from fragment if unset, then writes the
// mesh directory: mesh.blend, mesh_metadata.json, and an (initially
// empty) textures/ directory.
func (s *Store) SaveMesh(m *Mesh, fragment []byte) (string, error) {
	if m.Hash == "" {
		if _, err := m.ComputeHash(fragment); err != nil {
			return "", err
		}
	}
	dir, err := objectPath(hashing.KindMesh, m.Hash)
	if err != nil {
		return "", err
	}
	if err := s.FS.MkdirAll(path.Join(dir, meshTexturesDir), 0o755); err != nil {
		return "", fmt.Errorf("create mesh directory %s: %w", m.Hash, err)
	}
	if err := util.WriteFile(s.FS, path.Join(dir, meshFragmentFile), fragment, 0o644); err != nil {
		return "", fmt.Errorf("write mesh fragment %s: %w", m.Hash, err)
	}
	metaData, err := json.MarshalIndent(m.Metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal mesh metadata: %w", err)
	}
	if err := util.WriteFile(s.FS, path.Join(dir, meshMetadataFile), metaData, 0o644); err != nil {
		return "", fmt.Errorf("write mesh metadata %s: %w", m.Hash, err)
	}
	return m.Hash, nil
}

// LoadMesh reads a mesh's metadata document (not its fragment bytes;
// see LoadMeshFragment).
func (s *Store) LoadMesh(hash string) (*Mesh, error) {
	dir, err := objectPath(hashing.KindMesh, hash)
	if err != nil {
		return nil, err
	}
	metaData, err := util.ReadFile(s.FS, path.Join(dir, meshMetadataFile))
	if err != nil {
		return nil, fmt.Errorf("%w: mesh %s", core.ErrNoSuchObject, hash)
	}
	var meta MeshMetadata
	if jsonErr := json.Unmarshal(metaData, &meta); jsonErr != nil {
		return nil, fmt.Errorf("%w: mesh %s: %v", core.ErrCorrupt, hash, jsonErr)
	}
	return &Mesh{Hash: hash, Metadata: meta}, nil
}

// LoadMeshFragment reads the binary fragment bytes for hash.
func (s *Store) LoadMeshFragment(hash string) ([]byte, error) {
	dir, err := objectPath(hashing.KindMesh, hash)
	if err != nil {
		return nil, err
	}
	data, err := util.ReadFile(s.FS, path.Join(dir, meshFragmentFile))
	if err != nil {
		return nil, fmt.Errorf("%w: mesh fragment %s", core.ErrNoSuchObject, hash)
	}
	return data, nil
}

// MeshExists reports whether hash is present (its directory and
// metadata file both exist).
func (s *Store) MeshExists(hash string) bool {
	dir, err := objectPath(hashing.KindMesh, hash)
	if err != nil {
		return false
	}
	return s.exists(path.Join(dir, meshMetadataFile))
}

// DeleteMesh removes the mesh directory for hash.
func (s *Store) DeleteMesh(hash string) error {
	dir, err := objectPath(hashing.KindMesh, hash)
	if err != nil {
		return err
	}
	if !s.exists(dir) {
		return nil
	}
	if err := util.RemoveAll(s.FS, dir); err != nil {
		return fmt.Errorf("delete mesh %s: %w", hash, err)
	}
	s.removeEmptyParents(dir)
	return nil
}

// WriteMeshTexture copies data into mesh hash's textures/ directory
// under basename, returning the commit_path relative to the mesh's own
// directory (textures/<basename>).
func (s *Store) WriteMeshTexture(hash, basename string, data []byte) (string, error) {
	dir, err := objectPath(hashing.KindMesh, hash)
	if err != nil {
		return "", err
	}
	texPath := path.Join(dir, meshTexturesDir, basename)
	if err := util.WriteFile(s.FS, texPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write texture %s for mesh %s: %w", basename, hash, err)
	}
	return path.Join(meshTexturesDir, basename), nil
}

// ReadMeshTexture reads a texture previously written with
// WriteMeshTexture.
func (s *Store) ReadMeshTexture(hash, basename string) ([]byte, error) {
	dir, err := objectPath(hashing.KindMesh, hash)
	if err != nil {
		return nil, err
	}
	data, err := util.ReadFile(s.FS, path.Join(dir, meshTexturesDir, basename))
	if err != nil {
		return nil, fmt.Errorf("%w: texture %s for mesh %s", core.ErrNoSuchObject, basename, hash)
	}
	return data, nil
}
