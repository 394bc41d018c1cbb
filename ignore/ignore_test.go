package ignore

import (
	"testing"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"
)

func TestDefaultRulesIgnoreDFMButNotMeshes(t *testing.T) {
	fs := memfs.New()
	rules, err := Load(fs, DefaultFileName)
	if err != nil {
		t.Fatal(err)
	}
	if !rules.ShouldIgnore(".DFM/forester.db") {
		t.Fatal(".DFM/ contents should be ignored by default")
	}
	if rules.ShouldIgnore("meshes/cube.blend") {
		t.Fatal("meshes/ should NOT be ignored by the base rule set")
	}
	if !rules.ShouldIgnore("scene.blend1") {
		t.Fatal("*.blend1 backups should be ignored")
	}
}

func TestExtendedRulesIgnoreMeshes(t *testing.T) {
	fs := memfs.New()
	base, err := Load(fs, DefaultFileName)
	if err != nil {
		t.Fatal(err)
	}
	ext := NewExtended(base)
	if !ext.ShouldIgnore("meshes/cube.blend") {
		t.Fatal("extended rules must exclude meshes/")
	}
	if !ext.ShouldIgnore(".DFM/forester.db") {
		t.Fatal("extended rules must still apply the base rules")
	}
}

func TestCustomRulesFromFile(t *testing.T) {
	fs := memfs.New()
	if err := util.WriteFile(fs, DefaultFileName, []byte("# comment\n\n*.bak\n/secrets.txt\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := Load(fs, DefaultFileName)
	if err != nil {
		t.Fatal(err)
	}
	if !rules.ShouldIgnore("anything.bak") {
		t.Fatal("*.bak should be ignored anywhere")
	}
	if !rules.ShouldIgnore("secrets.txt") {
		t.Fatal("root-relative rule should match root file")
	}
	if rules.ShouldIgnore("nested/secrets.txt") {
		t.Fatal("root-relative rule should not match nested path")
	}
	// Default rules should not apply once a custom file supplies rules.
	if rules.ShouldIgnore(".DFM/x") {
		t.Fatal("custom rule file should replace defaults, not augment them")
	}
}

func TestCreateDefaultFileIsIdempotent(t *testing.T) {
	fs := memfs.New()
	if err := CreateDefaultFile(fs, DefaultFileName); err != nil {
		t.Fatal(err)
	}
	data1, err := util.ReadFile(fs, DefaultFileName)
	if err != nil {
		t.Fatal(err)
	}
	if err := util.WriteFile(fs, DefaultFileName, append(data1, []byte("extra\n")...), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CreateDefaultFile(fs, DefaultFileName); err != nil {
		t.Fatal(err)
	}
	data2, err := util.ReadFile(fs, DefaultFileName)
	if err != nil {
		t.Fatal(err)
	}
	if string(data2) == string(data1) {
		t.Fatal("expected CreateDefaultFile to leave the already-modified file untouched")
	}
}
