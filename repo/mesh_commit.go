package repo

import (
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/index"
	"github.com/forestervcs/forester/objstore"
)

// MeshInput is one mesh a caller selects for a mesh-only commit: the
// binary fragment plus the geometry/material description a DCC
// bridge has already extracted from the scene (the caller supplies
// exactly the data to version; there is no in-process DCC
// registry).
type MeshInput struct {
	Name       string
	ObjectName string
	Fragment   []byte
	Geometry   map[string]any
	Material   map[string]any
	Textures   []objstore.MeshTexture
}

// ExportOptions selects which geometry channels a mesh-only commit
// retains, mirroring filter_mesh_data's vertices/faces/uv/normals/
// materials toggles.
type ExportOptions map[string]bool

// MaterialHook lets an external collaborator (a DCC-specific plugin)
// fold a mesh's reconciled texture list into its own material JSON
// shape, invoked once per mesh after texture reconciliation and
// before hashing. Hooks are an explicit parameter, not a global
// callback registry.
type MaterialHook func(material map[string]any, textures []objstore.MeshTexture) map[string]any

const meshPathHashLen = 16

// CommitMeshOnly versions a caller-selected subset of meshes without
// touching the rest of the workspace tree. Each mesh's textures are
// reconciled against the same image_name (falling back to node_name)
// in the nearest ancestor commit that carried it: an unchanged texture
// is never recopied, keeping repeated mesh commits cheap.
func (r *Repository) CommitMeshOnly(identity core.Identity, message string, meshes []MeshInput, exportOptions ExportOptions, materialHooks []MaterialHook, opts CommitOptions) (*objstore.Commit, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	if len(meshes) == 0 {
		return nil, fmt.Errorf("%w: no meshes selected", core.ErrNoChanges)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.currentStateLocked()
	if err != nil {
		return nil, err
	}
	if state.Detached {
		return nil, fmt.Errorf("%w: commit is not supported while detached", core.ErrDetachedHead)
	}
	branch := state.Branch

	parentHash, err := r.readRef(branch)
	if err != nil {
		return nil, err
	}

	previousTextures, err := r.previousTexturesByName(parentHash)
	if err != nil {
		return nil, err
	}

	var entries []objstore.TreeEntry
	var meshHashes, selectedNames []string

	for _, m := range meshes {
		geometry := filterMeshData(m.Geometry, exportOptions)
		textures := reconcileTextures(m.Textures, previousTextures)

		material := cloneJSONMap(m.Material)
		material["textures"] = texturesToJSON(textures)
		for _, hook := range materialHooks {
			material = hook(material, textures)
		}

		mesh := &objstore.Mesh{Metadata: objstore.MeshMetadata{
			MeshJSON:     geometry,
			MaterialJSON: material,
			ObjectName:   m.ObjectName,
		}}
		meshHash, err := mesh.ComputeHash(m.Fragment)
		if err != nil {
			return nil, err
		}

		if !r.store.MeshExists(meshHash) {
			if _, err := r.store.SaveMesh(mesh, m.Fragment); err != nil {
				return nil, err
			}
			for _, t := range textures {
				if !t.Copied || t.IsPacked || t.OriginalPath == "" {
					continue
				}
				data, err := readWorkspaceFile(r.root, t.OriginalPath)
				if err != nil {
					return nil, fmt.Errorf("read texture %s: %w", t.OriginalPath, err)
				}
				if _, err := r.store.WriteMeshTexture(meshHash, path.Base(t.OriginalPath), data); err != nil {
					return nil, err
				}
			}
			if err := r.db.AddMesh(meshHash); err != nil {
				return nil, err
			}
		} else if err := r.refreshStoredTextures(meshHash, textures); err != nil {
			return nil, err
		}

		meshHashes = append(meshHashes, meshHash)
		selectedNames = append(selectedNames, m.Name)

		fragmentHash, err := r.store.SaveBlob(m.Fragment)
		if err != nil {
			return nil, err
		}
		metaJSON, err := json.MarshalIndent(mesh.Metadata, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal mesh metadata: %w", err)
		}
		metaHash, err := r.store.SaveBlob(metaJSON)
		if err != nil {
			return nil, err
		}

		dir := path.Join("meshes", meshHash[:meshPathHashLen])
		entries = append(entries,
			objstore.TreeEntry{Path: path.Join(dir, "mesh.blend"), Kind: "blob", Hash: fragmentHash, Size: int64(len(m.Fragment))},
			objstore.TreeEntry{Path: path.Join(dir, "mesh_metadata.json"), Kind: "blob", Hash: metaHash, Size: int64(len(metaJSON))},
		)
	}

	tree := &objstore.Tree{Entries: entries}
	if _, err := tree.ComputeHash(); err != nil {
		return nil, err
	}

	if parentHash != "" {
		parent, err := r.store.LoadCommit(parentHash)
		if err != nil {
			return nil, err
		}
		if parent.TreeHash == tree.Hash {
			return nil, core.ErrNoChanges
		}
	}

	if !opts.SkipHooks {
		if err := r.hooks.RunPreCommit(branch, identity.String(), message); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrHookFailed, err)
		}
	}

	if _, err := r.store.SaveTree(tree); err != nil {
		return nil, err
	}

	exportMap := map[string]bool(exportOptions)
	c := &objstore.Commit{
		ParentHash:        parentHash,
		TreeHash:          tree.Hash,
		Branch:            branch,
		Timestamp:         time.Now().Unix(),
		Message:           message,
		Author:            identity.String(),
		CommitType:        objstore.CommitMeshOnly,
		MeshHashes:        meshHashes,
		SelectedMeshNames: selectedNames,
		ExportOptions:     exportMap,
	}
	if _, err := c.ComputeHash(); err != nil {
		return nil, err
	}
	if _, err := r.store.SaveCommit(c); err != nil {
		return nil, err
	}
	if err := r.db.AddCommit(c, tree); err != nil {
		return nil, err
	}

	if err := r.writeRef(branch, c.Hash); err != nil {
		return nil, err
	}
	if err := r.db.SetState(index.State{CurrentBranch: branch, Head: c.Hash}); err != nil {
		return nil, err
	}

	if !opts.SkipHooks {
		r.hooks.RunPostCommit(c.Hash, branch, identity.String(), message)
	}

	return c, nil
}

// previousTexturesByName walks parentHash's own ancestry (never other
// branches) collecting the most recent texture record seen for each
// image_name, falling back to node_name when image_name is blank.
func (r *Repository) previousTexturesByName(parentHash string) (map[string]objstore.MeshTexture, error) {
	out := make(map[string]objstore.MeshTexture)
	hash := parentHash
	for hash != "" {
		c, err := r.store.LoadCommit(hash)
		if err != nil {
			return nil, err
		}
		for _, meshHash := range c.MeshHashes {
			mesh, err := r.store.LoadMesh(meshHash)
			if err != nil {
				continue
			}
			for _, t := range extractTextures(mesh.Metadata.MaterialJSON) {
				key := textureKey(t)
				if _, seen := out[key]; !seen {
					out[key] = t
				}
			}
		}
		hash = c.ParentHash
	}
	return out, nil
}

func textureKey(t objstore.MeshTexture) string {
	if t.ImageName != "" {
		return t.ImageName
	}
	return t.NodeName
}

// extractTextures pulls the "textures" array material JSON stores
// (written by an earlier CommitMeshOnly call) back into typed form.
func extractTextures(material map[string]any) []objstore.MeshTexture {
	raw, ok := material["textures"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var textures []objstore.MeshTexture
	if err := json.Unmarshal(data, &textures); err != nil {
		return nil
	}
	return textures
}

// reconcileTextures marks each texture Copied/CommitPath against the
// nearest prior record sharing its name: unchanged content (same
// file_hash) is never recopied, only relinked to its existing path. A
// texture that does need copying gets its commit_path assigned here,
// before the metadata is hashed, so the stored material JSON always
// carries the final path.
func reconcileTextures(textures []objstore.MeshTexture, previous map[string]objstore.MeshTexture) []objstore.MeshTexture {
	out := make([]objstore.MeshTexture, len(textures))
	for i, t := range textures {
		if t.IsPacked || t.OriginalPath == "" {
			t.Copied = false
			out[i] = t
			continue
		}
		if prior, ok := previous[textureKey(t)]; ok && prior.FileHash == t.FileHash && prior.CommitPath != "" {
			t.Copied = false
			t.CommitPath = prior.CommitPath
		} else {
			t.Copied = true
			t.CommitPath = path.Join("textures", path.Base(t.OriginalPath))
		}
		out[i] = t
	}
	return out
}

// refreshStoredTextures reconciles an already-stored mesh's textures
// against the incoming set: any texture whose content hash differs from
// the record in the stored material JSON is recopied into the mesh's
// textures/ directory. The mesh hash covers the fragment and metadata,
// not the texture payloads, so a changed texture under an unchanged
// hash is possible and handled here.
func (r *Repository) refreshStoredTextures(meshHash string, textures []objstore.MeshTexture) error {
	stored, err := r.store.LoadMesh(meshHash)
	if err != nil {
		return err
	}
	byName := make(map[string]objstore.MeshTexture)
	for _, t := range extractTextures(stored.Metadata.MaterialJSON) {
		byName[textureKey(t)] = t
	}
	for _, t := range textures {
		if t.IsPacked || t.OriginalPath == "" {
			continue
		}
		if prior, ok := byName[textureKey(t)]; ok && prior.FileHash == t.FileHash {
			continue
		}
		data, err := readWorkspaceFile(r.root, t.OriginalPath)
		if err != nil {
			return fmt.Errorf("read texture %s: %w", t.OriginalPath, err)
		}
		if _, err := r.store.WriteMeshTexture(meshHash, path.Base(t.OriginalPath), data); err != nil {
			return err
		}
	}
	return nil
}

func texturesToJSON(textures []objstore.MeshTexture) []any {
	out := make([]any, 0, len(textures))
	for _, t := range textures {
		data, _ := json.Marshal(t)
		var m map[string]any
		_ = json.Unmarshal(data, &m)
		out = append(out, m)
	}
	return out
}

// filterMeshData drops geometry channels exportOptions (if non-nil)
// turns off: vertices, faces, uv, normals, materials. A nil or empty
// exportOptions keeps every channel present: the default is to
// export everything.
func filterMeshData(geometry map[string]any, exportOptions ExportOptions) map[string]any {
	if len(exportOptions) == 0 {
		return cloneJSONMap(geometry)
	}
	out := cloneJSONMap(geometry)
	for _, channel := range []string{"vertices", "faces", "uv", "normals", "materials"} {
		if enabled, set := exportOptions[channel]; set && !enabled {
			delete(out, channel)
		}
	}
	return out
}

func cloneJSONMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
