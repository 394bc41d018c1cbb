package objstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// TreeEntry is one workspace path inside a Tree. The serialized schema
// would permit a "tree" kind for nested subtrees, but no producer in
// this core emits one, so Kind is constrained to "blob" and anything
// else is rejected at load time.
type TreeEntry struct {
	Path string `json:"path"`
	Kind string `json:"type"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Tree is the flat, ordered manifest of one commit's workspace.
type Tree struct {
	Hash    string      `json:"hash"`
	Entries []TreeEntry `json:"entries"`
}

// sortedEntries returns a copy of entries sorted by path.
func sortedEntries(entries []TreeEntry) []TreeEntry {
	out := make([]TreeEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// CanonicalBytes returns the JSON of entries sorted by path, the bytes
// that are hashed to produce Tree.Hash.
func (t *Tree) CanonicalBytes() ([]byte, error) {
	entries := sortedEntries(t.Entries)
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal tree entries: %w", err)
	}
	return data, nil
}

// ComputeHash sorts Entries by path and sets Hash to the SHA-256 of the
// canonical form, returning the computed hash.
func (t *Tree) ComputeHash() (string, error) {
	t.Entries = sortedEntries(t.Entries)
	data, err := t.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	t.Hash = hex.EncodeToString(sum[:])
	return t.Hash, nil
}

// HasDuplicatePath reports whether two entries in t share the same
// path, which would violate the no-duplicate-paths invariant.
func (t *Tree) HasDuplicatePath() (string, bool) {
	seen := make(map[string]bool, len(t.Entries))
	for _, e := range t.Entries {
		if seen[e.Path] {
			return e.Path, true
		}
		seen[e.Path] = true
	}
	return "", false
}

// CommitType distinguishes a full-workspace project commit from a
// mesh-only commit that versions a subset of the scene plus textures.
type CommitType string

const (
	CommitProject  CommitType = "project"
	CommitMeshOnly CommitType = "mesh_only"
)

// Commit is a snapshot: a tree plus authorship, lineage, and for
// mesh-only commits the set of meshes and export options involved.
type Commit struct {
	Hash              string          `json:"hash"`
	ParentHash        string          `json:"parent_hash,omitempty"`
	TreeHash          string          `json:"tree_hash"`
	Branch            string          `json:"branch"`
	Timestamp         int64           `json:"timestamp"`
	Message           string          `json:"message"`
	Author            string          `json:"author"`
	MeshHashes        []string        `json:"mesh_hashes"`
	CommitType        CommitType      `json:"commit_type"`
	SelectedMeshNames []string        `json:"selected_mesh_names"`
	ExportOptions     map[string]bool `json:"export_options"`
	ScreenshotHash    string          `json:"screenshot_hash,omitempty"`
	Tag               string          `json:"tag,omitempty"`
}

// jsonOrEmptyStrings JSON-encodes v sorted, but returns the empty
// string instead of "[]" when v is nil or empty: unset and empty
// collections must hash identically.
func jsonOrEmptyStrings(v []string) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	sorted := append([]string(nil), v...)
	sort.Strings(sorted)
	data, err := json.Marshal(sorted)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func jsonOrEmptyMap(v map[string]bool) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	data, err := json.Marshal(v) // Go maps always marshal with sorted keys
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalBytes returns the concatenation hashed to produce
// Commit.Hash: commit_type ‖ parent_hash ‖ tree_hash ‖ timestamp ‖
// message ‖ sorted(mesh_hashes) ‖ sorted(selected_mesh_names) ‖
// export_options(JSON sort_keys), with the empty-string-if-falsy rule
// for the three JSON-encoded fields.
func (c *Commit) CanonicalBytes() ([]byte, error) {
	meshHashesJSON, err := jsonOrEmptyStrings(c.MeshHashes)
	if err != nil {
		return nil, fmt.Errorf("encode mesh_hashes: %w", err)
	}
	selectedJSON, err := jsonOrEmptyStrings(c.SelectedMeshNames)
	if err != nil {
		return nil, fmt.Errorf("encode selected_mesh_names: %w", err)
	}
	exportJSON, err := jsonOrEmptyMap(c.ExportOptions)
	if err != nil {
		return nil, fmt.Errorf("encode export_options: %w", err)
	}

	var b []byte
	b = append(b, []byte(c.CommitType)...)
	b = append(b, []byte(c.ParentHash)...)
	b = append(b, []byte(c.TreeHash)...)
	b = append(b, []byte(fmt.Sprintf("%d", c.Timestamp))...)
	b = append(b, []byte(c.Message)...)
	b = append(b, []byte(meshHashesJSON)...)
	b = append(b, []byte(selectedJSON)...)
	b = append(b, []byte(exportJSON)...)
	return b, nil
}

// ComputeHash sets and returns Hash from CanonicalBytes.
func (c *Commit) ComputeHash() (string, error) {
	data, err := c.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	c.Hash = hex.EncodeToString(sum[:])
	return c.Hash, nil
}

// MeshTexture describes one texture referenced by a Mesh's material
// graph, addressed within the material JSON by node and image name.
type MeshTexture struct {
	NodeName     string `json:"node_name"`
	ImageName    string `json:"image_name"`
	OriginalPath string `json:"original_path"`
	FileHash     string `json:"file_hash"`
	Copied       bool   `json:"copied"`
	CommitPath   string `json:"commit_path,omitempty"`
	IsPacked     bool   `json:"is_packed"`
}

// MeshMetadata is the structured document stored alongside a mesh's
// binary fragment: geometry, the material node-graph description
// (including its texture references), and the originating object name.
type MeshMetadata struct {
	MeshJSON     map[string]any `json:"mesh_json"`
	MaterialJSON map[string]any `json:"material_json"`
	ObjectName   string         `json:"object_name"`
}

// Mesh is a versioned 3D asset group: a binary fragment plus structured
// metadata plus a textures/ directory of deduplicated texture payloads.
type Mesh struct {
	Hash     string
	Metadata MeshMetadata
}

// CanonicalBytes returns SHA256(fragment_bytes) ‖ JSON(metadata,
// sort_keys), the bytes hashed to produce Mesh.Hash. Go's
// encoding/json sorts map keys, so MeshMetadata's top-level fields are
// marshalled through a map too, giving sorted keys at every level.
func (m *Mesh) CanonicalBytes(fragment []byte) ([]byte, error) {
	fragmentSum := sha256.Sum256(fragment)
	norm := sortedMeshMetadata(m.Metadata)
	metaJSON, err := json.Marshal(map[string]any{
		"mesh_json":     norm.MeshJSON,
		"material_json": norm.MaterialJSON,
		"object_name":   norm.ObjectName,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal mesh metadata: %w", err)
	}
	out := make([]byte, 0, len(fragmentSum)+len(metaJSON))
	out = append(out, hex.EncodeToString(fragmentSum[:])...)
	out = append(out, metaJSON...)
	return out, nil
}

// ComputeHash sets and returns Hash from CanonicalBytes(fragment).
func (m *Mesh) ComputeHash(fragment []byte) (string, error) {
	data, err := m.CanonicalBytes(fragment)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	m.Hash = hex.EncodeToString(sum[:])
	return m.Hash, nil
}

// sortedMeshMetadata recursively normalizes nested maps so
// json.Marshal's natural key-sort is applied at every level, since
// MeshJSON/MaterialJSON are themselves freeform nested documents.
func sortedMeshMetadata(m MeshMetadata) MeshMetadata {
	return MeshMetadata{
		MeshJSON:     normalizeAny(m.MeshJSON).(map[string]any),
		MaterialJSON: normalizeAny(m.MaterialJSON).(map[string]any),
		ObjectName:   m.ObjectName,
	}
}

func normalizeAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = normalizeAny(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = normalizeAny(sub)
		}
		return out
	default:
		return v
	}
}
