package repo

import (
	"log/slog"
	"os"
	"path"

	"github.com/forestervcs/forester/gc"
)

// GarbageCollect deletes every object unreachable from a branch ref,
// the current HEAD, or a surviving stash's tree.
func (r *Repository) GarbageCollect(dryRun bool) (gc.Stats, error) {
	if err := r.ensureOpen(); err != nil {
		return gc.Stats{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return gc.GarbageCollect(r.dfm, r.store, r.db, dryRun)
}

// Rebuild discards the index and rescans it from the object store, the
// disaster-recovery path for a missing or corrupt database. With
// backup set, a real on-disk repository's existing database file is
// copied aside as forester.db.backup first.
func (r *Repository) Rebuild(log *slog.Logger, backup bool) (gc.RebuildResult, error) {
	if err := r.ensureOpen(); err != nil {
		return gc.RebuildResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if backup && r.repoPath != "" {
		dbPath := path.Join(r.repoPath, DFMDir, dbFileName)
		if data, err := os.ReadFile(dbPath); err == nil {
			_ = os.WriteFile(dbPath+".backup", data, 0o644)
		}
	}

	return gc.Rebuild(r.dfm, r.store, r.db, log)
}
