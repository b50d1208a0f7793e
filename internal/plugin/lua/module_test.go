package lua

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/keybind"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/theme"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/store"
)

func writeModule(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.lua")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newAPI(t *testing.T, svc api.Services, perms ...security.Capability) *api.API {
	t.Helper()
	m := &manifest.Manifest{
		ID:          "notes",
		Version:     "1.0.0",
		Engine:      manifest.Engine{API: manifest.APIVersion07},
		Scope:       manifest.ScopeDual,
		Permissions: perms,
	}
	return api.New(api.Binding{PluginID: "notes", InstanceID: "i-1"}, m, svc)
}

func services() api.Services {
	return api.Services{
		Commands: api.NewCommandBus(),
		Events:   api.NewEventBus(zerolog.Nop()),
		Keys:     keybind.NewRegistry(),
		Themes:   theme.NewRegistry(),
		Store:    store.NewMemory(),
		Logger:   zerolog.Nop(),
	}
}

func TestLoadReturnedTable(t *testing.T) {
	path := writeModule(t, `
local M = { title = "Notes", sizes = {1, 2, 3} }
function M.activate(ctx, api) end
function M.deactivate() end
return M
`)
	m, err := Load(path, 1)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer m.Close()

	if !m.HasActivate() || !m.HasDeactivate() {
		t.Error("hooks not found in returned table")
	}
	want := map[string]any{"title": "Notes", "sizes": []any{int64(1), int64(2), int64(3)}}
	if diff := cmp.Diff(want, m.Components()); diff != "" {
		t.Errorf("Components() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadGlobals(t *testing.T) {
	path := writeModule(t, `function activate(ctx, api) end`)
	m, err := Load(path, 1)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer m.Close()

	if !m.HasActivate() || m.HasDeactivate() {
		t.Errorf("HasActivate=%v HasDeactivate=%v", m.HasActivate(), m.HasDeactivate())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		notExp  bool
		contain string
	}{
		{"nothing exported", `local x = 1`, true, ""},
		{"number exported", `return 42`, true, "number"},
		{"syntax error", `function (`, false, "main.lua?v=7"},
		{"runtime error", `error("boom")`, false, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeModule(t, tt.src), 7)
			if err == nil {
				t.Fatal("Load() succeeded")
			}
			if errors.Is(err, ErrNotExported) != tt.notExp {
				t.Errorf("errors.Is(ErrNotExported) = %v for %v", !tt.notExp, err)
			}
			if !strings.Contains(err.Error(), tt.contain) {
				t.Errorf("error %q does not contain %q", err, tt.contain)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.lua"), 1); err == nil {
		t.Error("Load() of missing file succeeded")
	}
}

// Each generation gets its own state, so module-level values start over.
func TestLoadFreshState(t *testing.T) {
	path := writeModule(t, `
counter = (counter or 0) + 1
local M = {}
function M.activate(ctx, api) api.settings.set("counter", counter) end
return M
`)
	for gen := 1; gen <= 2; gen++ {
		m, err := Load(path, gen)
		if err != nil {
			t.Fatal(err)
		}
		a := newAPI(t, services())
		if err := m.Activate(a); err != nil {
			t.Fatal(err)
		}
		if got := a.Settings.Number("counter", 0); got != 1 {
			t.Errorf("generation %d counter = %v, want 1", gen, got)
		}
		m.Close()
	}

	if got := ChunkName("/p/main.lua", 3); got != "/p/main.lua?v=3" {
		t.Errorf("ChunkName() = %q", got)
	}
}

func TestActivateSeesOnlyGrantedNamespaces(t *testing.T) {
	path := writeModule(t, `
local M = {}
function M.activate(ctx, api)
  local names = {}
  for k in pairs(api) do names[#names + 1] = k end
  table.sort(names)
  api.settings.set("namespaces", table.concat(names, ","))
  api.settings.set("plugin", ctx.pluginId)
  api.settings.set("mode", ctx.mode)
end
return M
`)
	m, err := Load(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	a := newAPI(t, services(), security.CapabilityStorage, security.CapabilityLogging)
	if err := m.Activate(a); err != nil {
		t.Fatal(err)
	}
	if got := a.Settings.String("namespaces", ""); got != "context,logging,settings,storage" {
		t.Errorf("namespaces = %q", got)
	}
	if a.Settings.String("plugin", "") != "notes" || a.Settings.String("mode", "") != "app" {
		t.Errorf("context table = %v", a.Settings.All())
	}
}

func TestActivateErrorCarriesChunkName(t *testing.T) {
	path := writeModule(t, `
function activate(ctx, api) error("cannot start") end
`)
	m, err := Load(path, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	err = m.Activate(newAPI(t, services()))
	if err == nil || !strings.Contains(err.Error(), "cannot start") || !strings.Contains(err.Error(), "?v=4") {
		t.Errorf("Activate() error = %v", err)
	}
}

func TestCommandsAndEvents(t *testing.T) {
	path := writeModule(t, `
local M = {}
function M.activate(ctx, api)
  api.commands.register("greet", function(args) return "hello " .. args.name end)
  api.events.on("notes:ping", function(data) api.storage.set("ping", data.value) end)
  local ok = pcall(api.storage.get)
  api.storage.set("pcall", tostring(ok))
end
return M
`)
	m, err := Load(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	svc := services()
	a := newAPI(t, svc, security.CapabilityCommands, security.CapabilityEvents, security.CapabilityStorage)
	if err := m.Activate(a); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	got, err := svc.Commands.Execute(ctx, "notes:greet", map[string]any{"name": "ada"})
	if err != nil || got != "hello ada" {
		t.Errorf("Execute() = %v, %v", got, err)
	}

	svc.Events.Emit("notes:ping", map[string]any{"value": "pong"})
	if v, _, _ := a.Storage.Get(ctx, "ping"); v != "pong" {
		t.Errorf("event handler stored %q", v)
	}
	if v, _, _ := a.Storage.Get(ctx, "pcall"); v != "false" {
		t.Errorf("bad argument did not raise: %q", v)
	}
}

func TestCallbackTimeout(t *testing.T) {
	path := writeModule(t, `
function activate(ctx, api)
  api.commands.register("spin", function() while true do end end)
end
`)
	m, err := Load(path, 1, WithCallTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	svc := services()
	if err := m.Activate(newAPI(t, svc, security.CapabilityCommands)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Commands.Execute(context.Background(), "notes:spin", nil); !errors.Is(err, ErrCallTimeout) {
		t.Errorf("Execute() error = %v, want ErrCallTimeout", err)
	}
}

func TestClosedModule(t *testing.T) {
	m, err := Load(writeModule(t, `function deactivate() end`), 1)
	if err != nil {
		t.Fatal(err)
	}
	m.Close()
	if err := m.Deactivate(); !errors.Is(err, ErrStateClosed) {
		t.Errorf("Deactivate() after Close error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
