package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunInitCreatesDFMDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if code := run([]string{"init"}); code != 0 {
		t.Fatalf("init exit code = %d, want 0", code)
	}
	if _, err := os.Stat(filepath.Join(dir, ".DFM")); err != nil {
		t.Fatalf(".DFM missing after init: %v", err)
	}
}

func TestRunInitTwiceFailsWithoutForce(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if code := run([]string{"init"}); code != 0 {
		t.Fatalf("first init exit code = %d, want 0", code)
	}
	if code := run([]string{"init"}); code == 0 {
		t.Fatalf("second init exit code = 0, want nonzero")
	}
}

func TestRunFirstCommitOnFreshRepoSucceeds(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	mustInit(t)

	if code := run([]string{"commit", "-m", "empty", "-a", "tester"}); code != 0 {
		t.Fatalf("commit exit code = %d, want 0", code)
	}
}

func TestRunCommitThenStatusReportsClean(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	mustInit(t)

	if err := os.WriteFile(filepath.Join(dir, "asset.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	if code := run([]string{"commit", "-m", "add asset", "-a", "tester"}); code != 0 {
		t.Fatalf("commit exit code = %d, want 0", code)
	}
	if code := run([]string{"status"}); code != 0 {
		t.Fatalf("status exit code = %d, want 0", code)
	}
}

func TestRunBranchCreateAndList(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	mustInit(t)

	if code := run([]string{"branch", "create", "feature"}); code != 0 {
		t.Fatalf("branch create exit code = %d, want 0", code)
	}
	if code := run([]string{"branch", "list"}); code != 0 {
		t.Fatalf("branch list exit code = %d, want 0", code)
	}
	if code := run([]string{"branch", "create", "bad/name"}); code == 0 {
		t.Fatalf("branch create with a slash exit code = 0, want nonzero")
	}
}

func TestRunUnknownCommandFails(t *testing.T) {
	if code := run([]string{"frobnicate"}); code == 0 {
		t.Fatalf("unknown command exit code = 0, want nonzero")
	}
}

func mustInit(t *testing.T) {
	t.Helper()
	if code := run([]string{"init"}); code != 0 {
		t.Fatalf("init exit code = %d, want 0", code)
	}
}
