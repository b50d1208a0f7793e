package builtin

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
)

func TestManifestsValidate(t *testing.T) {
	for _, b := range All() {
		res := manifest.ValidateValue(b.Manifest)
		if !res.Valid {
			t.Errorf("%s: %v", b.Manifest.ID, res.Errors)
		}
	}
}

func newHost(t *testing.T, projects ...api.ProjectInfo) *plugin.Host {
	t.Helper()
	h := plugin.NewHost(plugin.WithServices(api.Services{Projects: api.StaticProjects(projects)}))
	if err := RegisterAll(h); err != nil {
		t.Fatal(err)
	}
	if err := RegisterAll(h); err == nil {
		t.Error("second RegisterAll() succeeded")
	}
	return h
}

func TestHub(t *testing.T) {
	projects := []api.ProjectInfo{{ID: "p1", Name: "One", Path: "/work/p1"}}
	h := newHost(t, projects...)
	ctx := context.Background()

	if err := h.EnableApp(ctx, HubID); err != nil {
		t.Fatal(err)
	}
	bus := h.Services().Commands

	got, err := bus.Execute(ctx, api.QualifiedCommand(HubID, "projects"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(projects, got); diff != "" {
		t.Errorf("projects mismatch (-want +got):\n%s", diff)
	}

	p1 := api.ProjectInfo{ID: "p1", Path: t.TempDir()}
	h.EnableProject(ctx, p1, GitStatusID)
	h.DisableProject(ctx, "p1", GitStatusID)

	got, err = bus.Execute(ctx, api.QualifiedCommand(HubID, "activity"), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []Activity{
		{Event: api.EventPluginDeactivated, PluginID: GitStatusID, ProjectID: "p1"},
		{Event: api.EventPluginActivated, PluginID: GitStatusID, ProjectID: "p1"},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Activity{}, "Time")); diff != "" {
		t.Errorf("activity mismatch (-want +got):\n%s", diff)
	}
}

func TestHubActivityLimit(t *testing.T) {
	h := &hub{}
	h.now = func() time.Time { return time.Time{} }
	for i := 0; i < hubActivityLimit+5; i++ {
		h.record(api.EventPluginActivated, map[string]any{"pluginId": "notes"})
	}
	h.record(api.EventPluginActivated, map[string]any{"pluginId": HubID})
	if n := len(h.recent()); n != hubActivityLimit {
		t.Errorf("recent() = %d entries", n)
	}
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-c", "user.email=t@example.com", "-c", "user.name=t"}, args...)...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestGitStatus(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	git(t, dir, "init", "-q", "-b", "main")
	git(t, dir, "commit", "-q", "--allow-empty", "-m", "init")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := newHost(t)
	ctx := context.Background()
	if err := h.EnableProject(ctx, api.ProjectInfo{ID: "p1", Name: "One", Path: dir}, GitStatusID); err != nil {
		t.Fatal(err)
	}
	if e, _ := h.Registry().Get(GitStatusID); e.Status != plugin.StatusActivated {
		t.Fatalf("status = %s %q", e.Status, e.Error)
	}
	bus := h.Services().Commands

	got, err := bus.Execute(ctx, api.QualifiedCommand(GitStatusID, "refresh"), nil)
	if err != nil {
		t.Fatal(err)
	}
	s := got.(Summary)
	if s.Branch != "main" || s.Changed != 1 || s.Staged != 0 {
		t.Errorf("refresh = %+v", s)
	}

	last, err := bus.Execute(ctx, api.QualifiedCommand(GitStatusID, "last"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s, last); diff != "" {
		t.Errorf("last mismatch (-want +got):\n%s", diff)
	}

	commits, err := bus.Execute(ctx, api.QualifiedCommand(GitStatusID, "log"), map[string]any{"n": 1.0})
	if err != nil {
		t.Fatal(err)
	}
	if c := commits.([]api.GitCommit); len(c) != 1 || c[0].Subject != "init" {
		t.Errorf("log = %+v", c)
	}

	if _, ok := h.Services().Keys.Lookup("Meta+Shift+G"); !ok {
		t.Error("refresh binding not wired")
	}
}

func TestGitStatusLastEmpty(t *testing.T) {
	h := newHost(t)
	ctx := context.Background()
	h.EnableProject(ctx, api.ProjectInfo{ID: "p1", Path: t.TempDir()}, GitStatusID)

	got, err := h.Services().Commands.Execute(ctx, api.QualifiedCommand(GitStatusID, "last"), nil)
	if err != nil || got != nil {
		t.Errorf("last = %v, %v", got, err)
	}
}
