package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPermissionCheckerExactMatch(t *testing.T) {
	pc := NewPermissionChecker("test", []Capability{CapabilityFiles})

	if !pc.HasCapability(CapabilityFiles) {
		t.Error("HasCapability(files) = false")
	}
	// A parent never implies its children.
	if pc.HasCapability(CapabilityFilesExternal) {
		t.Error("HasCapability(files.external) = true without declaration")
	}
	if err := pc.CheckCapability(CapabilityGit); err == nil {
		t.Error("CheckCapability(git) should fail")
	}
}

func TestPermissionCheckerCapabilitiesOrdered(t *testing.T) {
	pc := NewPermissionChecker("test", []Capability{CapabilityThemes, CapabilityFiles})
	got := pc.Capabilities()
	if len(got) != 2 || got[0] != CapabilityFiles || got[1] != CapabilityThemes {
		t.Errorf("Capabilities() = %v", got)
	}
}

func TestCheckFileRead(t *testing.T) {
	root := t.TempDir()
	external := t.TempDir()

	pc := NewPermissionChecker("test", []Capability{CapabilityFiles})
	pc.SetProjectRoot(root)

	if err := pc.CheckFileRead("src/main.go"); err != nil {
		t.Errorf("relative path inside project: %v", err)
	}
	if err := pc.CheckFileRead(filepath.Join(root, "a.txt")); err != nil {
		t.Errorf("absolute path inside project: %v", err)
	}
	if err := pc.CheckFileRead("../escape.txt"); err == nil {
		t.Error("path escaping the project should be rejected")
	}
	if err := pc.CheckFileRead(filepath.Join(external, "x")); err == nil {
		t.Error("external path without files.external should be rejected")
	}
}

func TestCheckFileReadExternal(t *testing.T) {
	root := t.TempDir()
	external := t.TempDir()
	other := t.TempDir()

	pc := NewPermissionChecker("test", []Capability{CapabilityFiles, CapabilityFilesExternal})
	pc.SetProjectRoot(root)
	pc.AllowExternalRoot(external)

	if err := pc.CheckFileRead(filepath.Join(external, "notes.md")); err != nil {
		t.Errorf("declared external root: %v", err)
	}
	err := pc.CheckFileRead(filepath.Join(other, "notes.md"))
	var capErr *CapabilityError
	if !errors.As(err, &capErr) || capErr.Capability != CapabilityFilesExternal {
		t.Errorf("undeclared root error = %v", err)
	}
}

func TestCheckFileSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "src"), filepath.Join(root, "alias")); err != nil {
		t.Fatal(err)
	}

	pc := NewPermissionChecker("test", []Capability{CapabilityFiles})
	pc.SetProjectRoot(root)

	if err := pc.CheckFileRead("escape/secret"); err == nil {
		t.Error("read through a symlink leaving the project was allowed")
	}
	if err := pc.CheckFileWrite("escape/new.txt"); err == nil {
		t.Error("write through a symlink leaving the project was allowed")
	}
	if err := pc.CheckFileRead("alias/main.go"); err != nil {
		t.Errorf("symlink inside the project: %v", err)
	}
	if err := pc.CheckFileWrite("alias/new.go"); err != nil {
		t.Errorf("write through a symlink inside the project: %v", err)
	}
	if _, ok := ResolveWithin(root, "escape/secret"); ok {
		t.Error("ResolveWithin followed a symlink out of root")
	}

	ext := NewPermissionChecker("test", []Capability{CapabilityFiles, CapabilityFilesExternal})
	ext.SetProjectRoot(root)
	ext.AllowExternalRoot(outside)
	if err := ext.CheckFileRead("escape/secret"); err != nil {
		t.Errorf("symlink into a declared external root: %v", err)
	}
}

func TestCheckFileReadNotGranted(t *testing.T) {
	pc := NewPermissionChecker("test", nil)
	pc.SetProjectRoot(t.TempDir())
	if err := pc.CheckFileRead("a.txt"); err == nil {
		t.Error("read without files capability should fail")
	}
}

func TestCheckFileWrite(t *testing.T) {
	root := t.TempDir()
	external := t.TempDir()

	pc := NewPermissionChecker("test", []Capability{CapabilityFiles, CapabilityFilesExternal})
	pc.SetProjectRoot(root)
	pc.AllowExternalRoot(external)

	if err := pc.CheckFileWrite("out/report.txt"); err != nil {
		t.Errorf("write inside project: %v", err)
	}
	if err := pc.CheckFileWrite(filepath.Join(external, "x")); err == nil {
		t.Error("write to external root should be rejected")
	}

	noRoot := NewPermissionChecker("test", []Capability{CapabilityFiles})
	if err := noRoot.CheckFileWrite("/tmp/x"); err == nil {
		t.Error("write without a project root should be rejected")
	}
}

func TestCheckCommand(t *testing.T) {
	pc := NewPermissionChecker("test", []Capability{CapabilityProcess})
	pc.AllowCommand("git")

	if err := pc.CheckCommand("git"); err != nil {
		t.Errorf("allowed command: %v", err)
	}
	if err := pc.CheckCommand("rm"); err == nil {
		t.Error("unlisted command should be rejected")
	}

	denied := NewPermissionChecker("test", nil)
	denied.AllowCommand("git")
	if err := denied.CheckCommand("git"); err == nil {
		t.Error("command without process capability should be rejected")
	}
}

func TestIsWithinPath(t *testing.T) {
	tests := []struct {
		target, base string
		want         bool
	}{
		{"/tmp/a/b", "/tmp/a", true},
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/ab", "/tmp/a", false},
		{"/tmp", "/tmp/a", false},
		{"/tmp/a/..b", "/tmp/a", true},
	}
	for _, tt := range tests {
		if got := isWithinPath(tt.target, tt.base); got != tt.want {
			t.Errorf("isWithinPath(%q, %q) = %v, want %v", tt.target, tt.base, got, tt.want)
		}
	}
}

func TestResolveWithin(t *testing.T) {
	root := t.TempDir()
	if got, ok := ResolveWithin(root, "docs/a.md"); !ok || got != filepath.Join(root, "docs", "a.md") {
		t.Errorf("ResolveWithin(docs/a.md) = %q, %v", got, ok)
	}
	if _, ok := ResolveWithin(root, "../other"); ok {
		t.Error("ResolveWithin(../other) should escape")
	}
}
