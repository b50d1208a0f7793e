package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/keybind"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/theme"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/store"
)

func testManifest(perms ...security.Capability) *manifest.Manifest {
	return &manifest.Manifest{
		ID:          "notes",
		Name:        "Notes",
		Version:     "1.0.0",
		Engine:      manifest.Engine{API: manifest.APIVersion07},
		Scope:       manifest.ScopeDual,
		Permissions: perms,
		Contributes: manifest.Contributes{
			Commands: []manifest.CommandContribution{{ID: "open", Title: "Open Notes"}},
		},
	}
}

func testServices() Services {
	return Services{
		Commands: NewCommandBus(),
		Events:   NewEventBus(zerolog.Nop()),
		Keys:     keybind.NewRegistry(),
		Themes:   theme.NewRegistry(),
		Store:    store.NewMemory(),
		Logger:   zerolog.Nop(),
	}
}

type tracker struct {
	items []Disposable
}

func (tr *tracker) track(d Disposable) { tr.items = append(tr.items, d) }

func (tr *tracker) disposeAll() {
	for i := len(tr.items) - 1; i >= 0; i-- {
		tr.items[i].Dispose()
	}
	tr.items = nil
}

func TestNamespacesMatchPermissions(t *testing.T) {
	tests := []struct {
		name    string
		perms   []security.Capability
		project bool
		want    []string
	}{
		{"app no permissions", nil, false, []string{"context", "settings"}},
		{"project no permissions", nil, true, []string{"context", "settings", "project"}},
		{
			"files and commands",
			[]security.Capability{security.CapabilityFiles, security.CapabilityCommands},
			true,
			[]string{"context", "settings", "project", "files", "commands"},
		},
		{
			"child does not expose extra namespace",
			[]security.Capability{security.CapabilityFiles, security.CapabilityFilesWatch, security.CapabilityProjects, security.CapabilityProjectsCrossProject},
			false,
			[]string{"context", "settings", "projects", "files"},
		},
		{
			"everything",
			security.All(),
			true,
			[]string{"context", "settings", "project", "projects", "files", "git", "process", "storage",
				"notifications", "commands", "events", "logging", "navigation", "themes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Binding{PluginID: "notes"}
			if tt.project {
				b.ProjectID = "p1"
				b.ProjectPath = t.TempDir()
			}
			m := testManifest(tt.perms...)
			a := New(b, m, testServices())

			if diff := cmp.Diff(tt.want, a.Namespaces()); diff != "" {
				t.Errorf("Namespaces() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(ExpectedNamespaces(m, b.Mode()), a.Namespaces()); diff != "" {
				t.Errorf("ExpectedNamespaces disagrees with New (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNamespaceCapabilityCoversCatalog(t *testing.T) {
	for ns := range namespaceTypes() {
		if ns == "context" || ns == "settings" || ns == "project" {
			continue
		}
		c, ok := NamespaceCapability(ns)
		if !ok || !security.IsKnown(c) {
			t.Errorf("namespace %q has no known capability", ns)
		}
	}
}

func TestFilesConfinement(t *testing.T) {
	root := t.TempDir()
	vault := t.TempDir()
	if err := os.MkdirAll(filepath.Join(vault, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(vault, "notes", "todo.md"), []byte("- milk"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := testManifest(security.CapabilityFiles, security.CapabilityFilesExternal)
	m.ExternalRoots = []manifest.ExternalRoot{{SettingKey: "vault", Root: "notes"}}

	b := Binding{
		PluginID:    "notes",
		ProjectID:   "p1",
		ProjectPath: root,
		Settings:    map[string]any{"vault": vault},
	}
	a := New(b, m, testServices())

	if err := a.Files.Write("out/today.md", "hello"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := a.Files.Read("out/today.md")
	if err != nil || got != "hello" {
		t.Errorf("Read() = %q, %v", got, err)
	}
	names, err := a.Files.List(".")
	if err != nil || len(names) != 1 || names[0] != "out/" {
		t.Errorf("List() = %v, %v", names, err)
	}

	ext, err := a.Files.Read(filepath.Join(vault, "notes", "todo.md"))
	if err != nil || ext != "- milk" {
		t.Errorf("external Read() = %q, %v", ext, err)
	}

	var capErr *security.CapabilityError
	if _, err := a.Files.Read(filepath.Join(vault, "secret.txt")); !errors.As(err, &capErr) {
		t.Errorf("read outside external root error = %v", err)
	}
	if err := a.Files.Write(filepath.Join(vault, "notes", "x.md"), "x"); !errors.As(err, &capErr) {
		t.Errorf("write to external root error = %v", err)
	}
	if _, err := a.Files.Watch(".", func([]string) {}); !errors.As(err, &capErr) || capErr.Capability != security.CapabilityFilesWatch {
		t.Errorf("Watch without files.watch error = %v", err)
	}
}

func TestExternalRootNeedsSetting(t *testing.T) {
	vault := t.TempDir()
	m := testManifest(security.CapabilityFiles, security.CapabilityFilesExternal)
	m.ExternalRoots = []manifest.ExternalRoot{{SettingKey: "vault", Root: "."}}

	a := New(Binding{PluginID: "notes"}, m, testServices())
	if _, err := a.Files.Exists(filepath.Join(vault, "a")); err == nil {
		t.Error("external root allowed without its setting")
	}
}

func TestFilesWatchTracked(t *testing.T) {
	tr := &tracker{}
	m := testManifest(security.CapabilityFiles, security.CapabilityFilesWatch)
	a := New(Binding{PluginID: "notes", ProjectID: "p", ProjectPath: t.TempDir(), Track: tr.track}, m, testServices())

	if _, err := a.Files.Watch(".", func([]string) {}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if len(tr.items) != 1 {
		t.Fatalf("tracked = %d, want 1", len(tr.items))
	}
	tr.disposeAll()
}

func TestSettings(t *testing.T) {
	var saved map[string]any
	b := Binding{
		PluginID: "notes",
		Settings: map[string]any{"interval": float64(30), "enabled": true, "mode": "fast"},
		SaveSettings: func(s map[string]any) error {
			saved = s
			return nil
		},
	}
	a := New(b, testManifest(), testServices())

	if got := a.Settings.Number("interval", 0); got != 30 {
		t.Errorf("Number() = %v", got)
	}
	if !a.Settings.Bool("enabled", false) || a.Settings.String("mode", "") != "fast" {
		t.Error("typed getters returned defaults")
	}
	if got := a.Settings.String("missing", "def"); got != "def" {
		t.Errorf("String(missing) = %q", got)
	}

	if err := a.Settings.Set("mode", "slow"); err != nil {
		t.Fatal(err)
	}
	if saved["mode"] != "slow" || saved["interval"] != float64(30) {
		t.Errorf("saved snapshot = %v", saved)
	}
	all := a.Settings.All()
	all["mode"] = "mutated"
	if a.Settings.String("mode", "") != "slow" {
		t.Error("All() exposed internal map")
	}
}

func TestCommands(t *testing.T) {
	tr := &tracker{}
	svc := testServices()
	m := testManifest(security.CapabilityCommands)
	a := New(Binding{PluginID: "notes", Track: tr.track}, m, svc)

	ctx := context.Background()
	err := a.Commands.Register("open", func(_ context.Context, args map[string]any) (any, error) {
		return "opened " + args["name"].(string), nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := a.Commands.Register("open", nil); err == nil {
		t.Error("duplicate Register should fail")
	}

	got, err := a.Commands.Execute(ctx, "open", map[string]any{"name": "inbox"})
	if err != nil || got != "opened inbox" {
		t.Errorf("Execute() = %v, %v", got, err)
	}
	if list := a.Commands.List(); len(list) != 1 || list[0].Title != "Open Notes" || list[0].ID != "notes:open" {
		t.Errorf("List() = %+v", list)
	}

	if err := a.Commands.BindKey("open", "Meta+N", false); err != nil {
		t.Fatalf("BindKey() error = %v", err)
	}
	if !svc.Keys.HasBinding("notes", "open") {
		t.Error("binding not recorded")
	}

	tr.disposeAll()
	if svc.Commands.Has("notes:open") {
		t.Error("command survived disposal")
	}
	if _, err := a.Commands.Execute(ctx, "open", nil); !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("Execute after disposal error = %v", err)
	}
}

func TestCommandPanicRecovered(t *testing.T) {
	bus := NewCommandBus()
	bus.Register(CommandInfo{ID: "x:boom", Owner: "x"}, func(context.Context, map[string]any) (any, error) {
		panic("boom")
	})
	if _, err := bus.Execute(context.Background(), "x:boom", nil); err == nil {
		t.Error("panicking handler returned nil error")
	}
	if n := bus.UnregisterOwner("x"); n != 1 {
		t.Errorf("UnregisterOwner() = %d", n)
	}
}

func TestEvents(t *testing.T) {
	tr := &tracker{}
	svc := testServices()
	a := New(Binding{PluginID: "notes", Track: tr.track}, testManifest(security.CapabilityEvents), svc)

	var got []string
	if _, err := a.Events.On("notes:saved", func(d map[string]any) { got = append(got, d["file"].(string)) }); err != nil {
		t.Fatal(err)
	}
	svc.Events.Subscribe("other", "notes:saved", func(map[string]any) { panic("bad handler") })

	a.Events.Emit("saved", map[string]any{"file": "a.md"})
	if len(got) != 1 || got[0] != "a.md" {
		t.Errorf("received %v", got)
	}
	if n := svc.Events.Emit("notes:saved", map[string]any{"file": "b.md"}); n != 1 {
		t.Errorf("Emit() delivered %d, want 1 (panicking handler excluded)", n)
	}

	tr.disposeAll()
	if svc.Events.Count("notes:saved") != 1 {
		t.Errorf("Count() = %d after disposal", svc.Events.Count("notes:saved"))
	}
}

func TestStorageIsolation(t *testing.T) {
	svc := testServices()
	ctx := context.Background()
	a := New(Binding{PluginID: "notes"}, testManifest(security.CapabilityStorage), svc)

	other := testManifest(security.CapabilityStorage)
	other.ID = "other"
	b := New(Binding{PluginID: "other"}, other, svc)

	if err := a.Storage.Set(ctx, "last", "inbox"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.Storage.Get(ctx, "last"); ok {
		t.Error("storage leaked between plugins")
	}
	v, ok, err := a.Storage.Get(ctx, "last")
	if err != nil || !ok || v != "inbox" {
		t.Errorf("Get() = %q, %v, %v", v, ok, err)
	}
	keys, _ := a.Storage.Keys(ctx)
	if diff := cmp.Diff([]string{"last"}, keys); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectsCrossProject(t *testing.T) {
	other := t.TempDir()
	os.WriteFile(filepath.Join(other, "README"), []byte("other project"), 0o644)

	svc := testServices()
	svc.Projects = StaticProjects{{ID: "p2", Name: "Other", Path: other}, {ID: "p1", Path: t.TempDir()}}

	limited := New(Binding{PluginID: "notes"}, testManifest(security.CapabilityProjects), svc)
	if list := limited.Projects.List(); len(list) != 2 || list[0].ID != "p1" {
		t.Errorf("List() = %v", list)
	}
	if _, err := limited.Projects.ReadFile("p2", "README"); err == nil {
		t.Error("ReadFile without projects.cross-project should fail")
	}

	full := New(Binding{PluginID: "notes"},
		testManifest(security.CapabilityProjects, security.CapabilityProjectsCrossProject), svc)
	got, err := full.Projects.ReadFile("p2", "README")
	if err != nil || got != "other project" {
		t.Errorf("ReadFile() = %q, %v", got, err)
	}
	if _, err := full.Projects.ReadFile("p2", "../escape"); err == nil {
		t.Error("ReadFile escaping the project should fail")
	}
	if _, err := full.Projects.ReadFile("p9", "README"); err == nil {
		t.Error("ReadFile of unknown project should fail")
	}
}

func TestProcessAllowlist(t *testing.T) {
	m := testManifest(security.CapabilityProcess)
	m.AllowedCommands = []string{"git"}
	a := New(Binding{PluginID: "notes"}, m, testServices())

	if _, err := a.Process.Run(context.Background(), "rm", "-rf", "/"); err == nil {
		t.Error("unlisted command was allowed")
	}
}

func TestGitWithoutProject(t *testing.T) {
	a := New(Binding{PluginID: "notes"}, testManifest(security.CapabilityGit), testServices())
	if _, err := a.Git.Branch(context.Background()); !errors.Is(err, ErrNoProject) {
		t.Errorf("Branch() in app mode error = %v", err)
	}
}

func TestParsePorcelain(t *testing.T) {
	out := " M internal/a.go\n?? notes.md\nR  old.go -> new.go\n"
	want := []GitFileStatus{
		{Path: "internal/a.go", Index: "", Worktree: "M"},
		{Path: "notes.md", Index: "?", Worktree: "?"},
		{Path: "new.go", Index: "R", Worktree: ""},
	}
	if diff := cmp.Diff(want, parsePorcelain(out)); diff != "" {
		t.Errorf("parsePorcelain mismatch (-want +got):\n%s", diff)
	}
}

type recordingNotifier struct {
	got []Notification
}

func (r *recordingNotifier) Notify(n Notification) { r.got = append(r.got, n) }

func TestNotificationsAndThemes(t *testing.T) {
	svc := testServices()
	rec := &recordingNotifier{}
	svc.Notifier = rec
	svc.Themes.RegisterPack("solar", []manifest.ThemeContribution{
		{ID: "dark", Name: "Dark", Type: "dark", Colors: map[string]string{"background": "#000000"}},
	})

	a := New(Binding{PluginID: "notes"}, testManifest(security.CapabilityNotifications, security.CapabilityThemes), svc)
	a.Notifications.Warn("disk almost full")
	if len(rec.got) != 1 || rec.got[0].Level != LevelWarning || rec.got[0].PluginID != "notes" {
		t.Errorf("notifications = %+v", rec.got)
	}

	if len(a.Themes.List()) != 1 {
		t.Errorf("Themes.List() = %v", a.Themes.List())
	}
	if err := a.Themes.Apply("solar:dark"); err != nil {
		t.Fatal(err)
	}
	if th, ok := a.Themes.Active(); !ok || th.Name != "Dark" {
		t.Errorf("Active() = %v, %v", th, ok)
	}
}

func TestNavigationUnavailable(t *testing.T) {
	a := New(Binding{PluginID: "notes"}, testManifest(security.CapabilityNavigation), testServices())
	if err := a.Navigation.OpenFile("a.go"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("OpenFile() without navigator error = %v", err)
	}
}
