package repo

import (
	"fmt"
	"io"
	"path"

	billy "github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
)

// readWorkspaceFile reads rel (forward-slash, workspace-relative)
// from fs in full.
func readWorkspaceFile(fs billy.Filesystem, rel string) ([]byte, error) {
	f, err := fs.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeWorkspaceFile writes data to rel, creating parent directories
// as needed.
func writeWorkspaceFile(fs billy.Filesystem, rel string, data []byte) error {
	dir := path.Dir(rel)
	if dir != "." && dir != "/" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return util.WriteFile(fs, rel, data, 0o644)
}

// removeWorkspacePath removes rel, best-effort cleaning now-empty
// parent directories up to the workspace root.
func removeWorkspacePath(fs billy.Filesystem, rel string) error {
	if err := fs.Remove(rel); err != nil {
		return err
	}
	dir := path.Dir(rel)
	for dir != "." && dir != "/" && dir != "" {
		if err := fs.Remove(dir); err != nil {
			break
		}
		dir = path.Dir(dir)
	}
	return nil
}
