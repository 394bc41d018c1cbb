package repo

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	billy "github.com/go-git/go-billy/v6"

	"github.com/forestervcs/forester/core"
	"github.com/forestervcs/forester/index"
	"github.com/forestervcs/forester/objstore"
	"github.com/forestervcs/forester/workspace"
)

// Checkout switches the workspace to target, which may name a branch
// (checkout stays on that branch, tracking its tip) or a commit hash
// (checkout detaches HEAD at that commit). With force false, uncommitted
// changes abort with core.ErrUncommittedChanges so the caller can offer
// to stash first.
//
// filePatterns/meshNames request a selective restore: only tree
// entries matching a glob in filePatterns, or belonging to a mesh
// named in meshNames, are written, and the destructive "remove every
// currently tracked file first" step is skipped. With both empty the
// checkout is a full restore: every path tracked by the current HEAD
// but absent from target is removed, then every target entry is
// written. Untracked files are never touched either way.
//
// skipHooks bypasses both the blocking pre-checkout hook and the
// advisory post-checkout hook, mirroring commit's --no-verify.
func (r *Repository) Checkout(target string, force bool, filePatterns, meshNames []string, skipHooks bool) (*objstore.Commit, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !skipHooks {
		if err := r.hooks.RunPreCheckout(target); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrHookFailed, err)
		}
	}

	if !force {
		dirty, err := r.hasUncommittedChangesLocked()
		if err != nil {
			return nil, err
		}
		if dirty {
			return nil, core.ErrUncommittedChanges
		}
	}

	state, err := r.currentStateLocked()
	if err != nil {
		return nil, err
	}

	var branch, hash string
	if r.refExists(target) {
		branch = target
		hash, err = r.readRef(target)
		if err != nil {
			return nil, err
		}
	} else {
		branch = state.Branch
		hash = target
		if !r.store.CommitExists(hash) {
			return nil, fmt.Errorf("%w: %s", core.ErrNoSuchCommit, target)
		}
	}

	var targetTree *objstore.Tree
	var commit *objstore.Commit
	if hash != "" {
		commit, err = r.store.LoadCommit(hash)
		if err != nil {
			return nil, err
		}
		targetTree, err = r.store.LoadTree(commit.TreeHash)
		if err != nil {
			return nil, err
		}
	} else {
		targetTree = &objstore.Tree{}
	}

	selective := len(filePatterns) > 0 || len(meshNames) > 0

	switch {
	case commit != nil && commit.CommitType == objstore.CommitMeshOnly:
		// Mesh-only commits touch only the meshes/<prefix>/ directories
		// of the listed meshes; the rest of the workspace is left alone.
		if err := r.materializeMeshes(commit, meshNames); err != nil {
			return nil, err
		}
	case !selective:
		currentTree, err := r.headTree(state)
		if err != nil {
			return nil, err
		}
		if err := removeStaleTrackedFiles(r.root, currentTree, targetTree); err != nil {
			return nil, err
		}
		if err := writeTreeEntries(r.root, r.store, targetTree.Entries); err != nil {
			return nil, err
		}
	default:
		entries, err := selectEntries(targetTree.Entries, commit, filePatterns, meshNames)
		if err != nil {
			return nil, err
		}
		if err := writeTreeEntries(r.root, r.store, entries); err != nil {
			return nil, err
		}
	}

	if err := r.db.SetState(index.State{CurrentBranch: branch, Head: hash}); err != nil {
		return nil, err
	}

	if !skipHooks {
		r.hooks.RunPostCheckout(target)
	}

	return commit, nil
}

// headTree returns the Tree for state's HEAD commit, or an empty Tree
// if there is none yet.
func (r *Repository) headTree(state State) (*objstore.Tree, error) {
	if state.Head == "" {
		return &objstore.Tree{}, nil
	}
	c, err := r.store.LoadCommit(state.Head)
	if err != nil {
		return nil, err
	}
	return r.store.LoadTree(c.TreeHash)
}

// removeStaleTrackedFiles deletes every path current tracks that
// target does not, leaving paths present in both (they get
// overwritten next) and paths tracked by neither (untracked files)
// alone.
func removeStaleTrackedFiles(fs billy.Filesystem, current, target *objstore.Tree) error {
	inTarget := make(map[string]bool, len(target.Entries))
	for _, e := range target.Entries {
		inTarget[e.Path] = true
	}
	for _, e := range current.Entries {
		if inTarget[e.Path] {
			continue
		}
		_ = removeWorkspacePath(fs, e.Path) // best-effort; a missing file is not an error here
	}
	return nil
}

// writeTreeEntries materializes every entry's blob content to its
// workspace path.
func writeTreeEntries(ws billy.Filesystem, store *objstore.Store, entries []objstore.TreeEntry) error {
	for _, e := range entries {
		data, err := store.LoadBlob(e.Hash)
		if err != nil {
			return fmt.Errorf("load blob for %s: %w", e.Path, err)
		}
		if err := writeWorkspaceFile(ws, e.Path, data); err != nil {
			return fmt.Errorf("restore %s: %w", e.Path, err)
		}
	}
	return nil
}

// materializeMeshes restores a mesh-only commit's meshes into the
// workspace: each listed mesh (all of them when meshNames is empty)
// gets its fragment, its textures copied out of storage, and a
// regenerated mesh_metadata.json whose commit_path fields point at the
// workspace-relative texture locations. Texture copy-out failures are
// warnings, not rollbacks: by this point the caller is committed to
// the checkout.
func (r *Repository) materializeMeshes(c *objstore.Commit, meshNames []string) error {
	selected := make(map[string]bool, len(meshNames))
	for _, n := range meshNames {
		selected[n] = true
	}

	for i, meshHash := range c.MeshHashes {
		if len(meshNames) > 0 {
			if i >= len(c.SelectedMeshNames) || !selected[c.SelectedMeshNames[i]] {
				continue
			}
		}

		mesh, err := r.store.LoadMesh(meshHash)
		if err != nil {
			return err
		}
		fragment, err := r.store.LoadMeshFragment(meshHash)
		if err != nil {
			return err
		}

		dir := path.Join(workspace.MeshesDir, meshHash[:meshPathHashLen])
		if err := writeWorkspaceFile(r.root, path.Join(dir, "mesh.blend"), fragment); err != nil {
			return fmt.Errorf("restore mesh %s: %w", meshHash, err)
		}

		textures := extractTextures(mesh.Metadata.MaterialJSON)
		for j, t := range textures {
			if t.CommitPath == "" {
				continue
			}
			basename := path.Base(t.CommitPath)
			data, err := r.findTextureBytes(c, meshHash, basename)
			if err != nil {
				slog.Warn("texture missing from storage, skipping", "mesh", meshHash, "texture", basename, "error", err)
				continue
			}
			wsPath := path.Join(dir, "textures", basename)
			if err := writeWorkspaceFile(r.root, wsPath, data); err != nil {
				slog.Warn("failed to restore texture", "mesh", meshHash, "texture", basename, "error", err)
				continue
			}
			textures[j].CommitPath = wsPath
		}

		meta := mesh.Metadata
		meta.MaterialJSON = cloneJSONMap(meta.MaterialJSON)
		meta.MaterialJSON["textures"] = texturesToJSON(textures)
		metaJSON, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal mesh metadata %s: %w", meshHash, err)
		}
		if err := writeWorkspaceFile(r.root, path.Join(dir, "mesh_metadata.json"), metaJSON); err != nil {
			return fmt.Errorf("restore mesh metadata %s: %w", meshHash, err)
		}
	}
	return nil
}

// findTextureBytes locates basename's bytes for one of c's meshes. A
// texture deduplicated against an earlier commit lives in that earlier
// Mesh's storage, so the search starts at the owning mesh and then
// walks the commit ancestry's meshes until a copy turns up.
func (r *Repository) findTextureBytes(c *objstore.Commit, meshHash, basename string) ([]byte, error) {
	if data, err := r.store.ReadMeshTexture(meshHash, basename); err == nil {
		return data, nil
	}

	hash := c.Hash
	for hash != "" {
		ancestor, err := r.store.LoadCommit(hash)
		if err != nil {
			break
		}
		for _, mh := range ancestor.MeshHashes {
			if mh == meshHash {
				continue
			}
			if data, err := r.store.ReadMeshTexture(mh, basename); err == nil {
				return data, nil
			}
		}
		hash = ancestor.ParentHash
	}
	return nil, fmt.Errorf("%w: texture %s", core.ErrNoSuchObject, basename)
}

// selectEntries filters entries to those matching a filePatterns glob
// or belonging to a mesh named in meshNames.
func selectEntries(entries []objstore.TreeEntry, commit *objstore.Commit, filePatterns, meshNames []string) ([]objstore.TreeEntry, error) {
	meshDirs := make(map[string]bool)
	if commit != nil {
		for i, name := range commit.SelectedMeshNames {
			for _, want := range meshNames {
				if name == want && i < len(commit.MeshHashes) {
					meshDirs[path.Join("meshes", commit.MeshHashes[i][:meshPathHashLen])] = true
				}
			}
		}
	}

	var out []objstore.TreeEntry
	for _, e := range entries {
		matched := false
		for _, pattern := range filePatterns {
			if ok, err := path.Match(pattern, e.Path); err == nil && ok {
				matched = true
				break
			}
		}
		if !matched {
			for dir := range meshDirs {
				if strings.HasPrefix(e.Path, dir+"/") {
					matched = true
					break
				}
			}
		}
		if matched {
			out = append(out, e)
		}
	}
	return out, nil
}
