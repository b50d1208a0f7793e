package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/store"
)

var startupProjects = []api.ProjectInfo{
	{ID: "p1", Name: "One", Path: "/work/p1"},
	{ID: "p2", Name: "Two", Path: "/work/p2"},
}

func TestActivateStartupOrder(t *testing.T) {
	f := newFixture(t)
	f.register(testManifest("hub", manifest.ScopeApp))
	f.register(testManifest("notes", manifest.ScopeDual))
	f.register(testManifest("board", manifest.ScopeProject))
	f.reg.SetAppEnabled([]string{"notes", "hub"})
	f.reg.SetProjectEnabled("p1", []string{"board", "notes"})
	f.reg.SetProjectEnabled("p2", []string{"board"})

	var attempts []int
	f.loader.setFail(func(*Context, int) error {
		m, _ := f.state.StartupMarker(context.Background())
		if m != nil {
			attempts = append(attempts, m.Attempt)
		}
		return nil
	})

	if err := f.orch.ActivateStartup(context.Background(), startupProjects); err != nil {
		t.Fatal(err)
	}

	want := []string{"notes", "hub", "board:p1", "notes:p1", "board:p2"}
	if diff := cmp.Diff(want, f.hooks.activations()); diff != "" {
		t.Errorf("activation order mismatch (-want +got):\n%s", diff)
	}
	for _, a := range attempts {
		if a != 1 {
			t.Errorf("marker attempt during startup = %d, want 1", a)
		}
	}
	if m, _ := f.state.StartupMarker(context.Background()); m != nil {
		t.Errorf("marker left behind: %+v", m)
	}
}

func TestStartupCountsUnfinishedAttempts(t *testing.T) {
	f := newFixture(t)
	f.register(testManifest("hub", manifest.ScopeApp))
	f.reg.SetAppEnabled([]string{"hub"})
	ctx := context.Background()

	f.state.WriteStartupMarker(ctx, store.StartupMarker{Timestamp: time.Now(), Attempt: 1})

	var seen int
	f.loader.setFail(func(*Context, int) error {
		m, _ := f.state.StartupMarker(ctx)
		seen = m.Attempt
		return nil
	})
	if err := f.orch.ActivateStartup(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if seen != 2 {
		t.Errorf("attempt during startup = %d, want 2", seen)
	}
}

func TestSafeMode(t *testing.T) {
	f := newFixture(t)
	f.register(testManifest("hub", manifest.ScopeApp))
	f.reg.SetAppEnabled([]string{"hub"})
	ctx := context.Background()

	f.state.WriteStartupMarker(ctx, store.StartupMarker{Timestamp: time.Now(), Attempt: 2, LastEnabledPluginIDs: []string{"hub"}})

	if err := f.orch.ActivateStartup(ctx, startupProjects); !errors.Is(err, ErrSafeMode) {
		t.Fatalf("ActivateStartup() = %v, want ErrSafeMode", err)
	}
	if !f.orch.SafeMode() {
		t.Error("SafeMode() = false")
	}
	if len(f.orch.ActiveContexts("")) != 0 {
		t.Error("plugins activated in safe mode")
	}

	if err := f.orch.ExitSafeMode(ctx); err != nil {
		t.Fatal(err)
	}
	if f.orch.SafeMode() {
		t.Error("SafeMode() still true")
	}
	if err := f.orch.ActivateStartup(ctx, startupProjects); err != nil {
		t.Fatal(err)
	}
	if !f.orch.IsActive("hub", "") {
		t.Error("hub not activated after leaving safe mode")
	}
}

func TestStartupCancelled(t *testing.T) {
	f := newFixture(t)
	f.register(testManifest("hub", manifest.ScopeApp))
	f.register(testManifest("notes", manifest.ScopeApp))
	f.reg.SetAppEnabled([]string{"hub", "notes"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.loader.setFail(func(*Context, int) error {
		cancel()
		return nil
	})

	if err := f.orch.ActivateStartup(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("ActivateStartup() = %v", err)
	}
	if f.orch.IsActive("notes", "") {
		t.Error("notes activated after cancellation")
	}
	m, err := f.state.StartupMarker(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Attempt != 1 {
		t.Errorf("marker after a cancelled startup = %+v, want attempt 1", m)
	}
}
