package security

import (
	"testing"
)

func TestCapabilityConstants(t *testing.T) {
	tests := []struct {
		cap      Capability
		expected string
	}{
		{CapabilityFiles, "files"},
		{CapabilityFilesExternal, "files.external"},
		{CapabilityFilesWatch, "files.watch"},
		{CapabilityGit, "git"},
		{CapabilityProcess, "process"},
		{CapabilityStorage, "storage"},
		{CapabilityNotifications, "notifications"},
		{CapabilityCommands, "commands"},
		{CapabilityEvents, "events"},
		{CapabilityLogging, "logging"},
		{CapabilityProjects, "projects"},
		{CapabilityProjectsCrossProject, "projects.cross-project"},
		{CapabilityNavigation, "navigation"},
		{CapabilityThemes, "themes"},
	}

	for _, tt := range tests {
		if string(tt.cap) != tt.expected {
			t.Errorf("Capability %q != %q", tt.cap, tt.expected)
		}
	}
}

// Every capability must carry a risk level and a description, and every
// hierarchy edge must point between known capabilities.
func TestCatalogComplete(t *testing.T) {
	for _, cap := range All() {
		if _, ok := riskLevels[cap]; !ok {
			t.Errorf("capability %q has no risk level", cap)
		}
		if descriptions[cap] == "" {
			t.Errorf("capability %q has no description", cap)
		}
	}

	if len(riskLevels) != len(catalog) {
		t.Errorf("riskLevels has %d entries, catalog has %d", len(riskLevels), len(catalog))
	}
	if len(descriptions) != len(catalog) {
		t.Errorf("descriptions has %d entries, catalog has %d", len(descriptions), len(catalog))
	}

	for child, parent := range hierarchy {
		if !IsKnown(child) {
			t.Errorf("hierarchy child %q is not in the catalog", child)
		}
		if !IsKnown(parent) {
			t.Errorf("hierarchy parent %q of %q is not in the catalog", parent, child)
		}
	}
}

func TestHierarchyAcyclic(t *testing.T) {
	for _, cap := range All() {
		seen := map[Capability]bool{cap: true}
		cur := cap
		for {
			parent, ok := hierarchy[cur]
			if !ok {
				break
			}
			if seen[parent] {
				t.Fatalf("capability %q is its own ancestor via %q", cap, parent)
			}
			seen[parent] = true
			cur = parent
		}
	}
}

func TestParentOf(t *testing.T) {
	parent, ok := ParentOf(CapabilityFilesExternal)
	if !ok || parent != CapabilityFiles {
		t.Errorf("ParentOf(files.external) = %q, %v; want files, true", parent, ok)
	}

	parent, ok = ParentOf(CapabilityProjectsCrossProject)
	if !ok || parent != CapabilityProjects {
		t.Errorf("ParentOf(projects.cross-project) = %q, %v; want projects, true", parent, ok)
	}

	if _, ok := ParentOf(CapabilityStorage); ok {
		t.Error("ParentOf(storage) should report no parent")
	}
}

func TestRequiredAncestors(t *testing.T) {
	got := RequiredAncestors(CapabilityFilesWatch)
	if len(got) != 1 || got[0] != CapabilityFiles {
		t.Errorf("RequiredAncestors(files.watch) = %v, want [files]", got)
	}

	if got := RequiredAncestors(CapabilityFiles); len(got) != 0 {
		t.Errorf("RequiredAncestors(files) = %v, want empty", got)
	}
}

func TestIsKnown(t *testing.T) {
	if !IsKnown(CapabilityFiles) {
		t.Error("IsKnown(files) = false")
	}
	if IsKnown("nonexistent") {
		t.Error("IsKnown(nonexistent) = true")
	}
	if IsKnown("files.") {
		t.Error("IsKnown(files.) = true")
	}
}

func TestInfo(t *testing.T) {
	info, ok := Info(CapabilityProcess)
	if !ok {
		t.Fatal("Info(process) ok = false")
	}
	if info.RiskLevel != RiskDangerous {
		t.Errorf("process risk = %v, want dangerous", info.RiskLevel)
	}
	if info.Description == "" {
		t.Error("process description is empty")
	}

	if _, ok := Info("nonexistent"); ok {
		t.Error("Info(nonexistent) should return ok = false")
	}
}

func TestByRisk(t *testing.T) {
	dangerous := ByRisk(RiskDangerous)
	want := map[Capability]bool{CapabilityFilesExternal: true, CapabilityProcess: true}
	if len(dangerous) != len(want) {
		t.Fatalf("ByRisk(dangerous) = %v", dangerous)
	}
	for _, cap := range dangerous {
		if !want[cap] {
			t.Errorf("unexpected dangerous capability %q", cap)
		}
	}
}

func TestHighestRisk(t *testing.T) {
	if got := HighestRisk(nil); got != RiskSafe {
		t.Errorf("HighestRisk(nil) = %v", got)
	}
	got := HighestRisk([]Capability{CapabilityStorage, CapabilityFiles, "bogus"})
	if got != RiskElevated {
		t.Errorf("HighestRisk = %v, want elevated", got)
	}
}

func TestRiskLevelString(t *testing.T) {
	tests := []struct {
		level    RiskLevel
		expected string
	}{
		{RiskSafe, "safe"},
		{RiskElevated, "elevated"},
		{RiskDangerous, "dangerous"},
		{RiskLevel(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("RiskLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestCapabilityError(t *testing.T) {
	err := NewCapabilityError(CapabilityFiles, "read file", "not granted")
	if err.Capability != CapabilityFiles {
		t.Errorf("err.Capability = %q, want %q", err.Capability, CapabilityFiles)
	}
	if err.Error() != `capability "files" required for read file: not granted` {
		t.Errorf("err.Error() = %q", err.Error())
	}

	err2 := NewCapabilityError(CapabilityProcess, "", "blocked")
	if err2.Error() != `capability "process": blocked` {
		t.Errorf("err2.Error() = %q", err2.Error())
	}
}
