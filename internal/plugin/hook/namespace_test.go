package hook

import (
	"context"
	"errors"
	"testing"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		action  string
		plugin  string
		command string
		wantErr bool
	}{
		{"plugin.git-status.refresh", "git-status", "refresh", false},
		{"plugin.hub.open.recent", "hub", "open.recent", false},
		{"plugin.hub", "", "", true},
		{"plugin.hub.", "", "", true},
		{"plugin..refresh", "", "", true},
		{"editor.save", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			p, c, err := ParseAction(tt.action)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAction() error = %v, wantErr %v", err, tt.wantErr)
			}
			if p != tt.plugin || c != tt.command {
				t.Errorf("ParseAction() = %q, %q", p, c)
			}
		})
	}
}

func TestNamespaceHandler(t *testing.T) {
	_, bus := setup(t)
	h := NewNamespaceHandler(bus)
	ctx := context.Background()

	if h.Namespace() != "plugin" {
		t.Errorf("Namespace() = %q", h.Namespace())
	}

	action := ActionName("git-status", "echo")
	if !h.CanHandle(action) {
		t.Fatalf("CanHandle(%q) = false", action)
	}
	res := h.HandleAction(ctx, action, map[string]any{"message": "hi"})
	if !res.Handled || res.Err != nil || res.Message != "hi" {
		t.Errorf("HandleAction() = %+v", res)
	}

	if h.CanHandle("plugin.git-status.missing") {
		t.Error("CanHandle() true for unregistered command")
	}
	res = h.HandleAction(ctx, "plugin.git-status.missing", nil)
	if !errors.Is(res.Err, api.ErrCommandNotFound) {
		t.Errorf("HandleAction(missing) error = %v", res.Err)
	}

	res = h.HandleAction(ctx, "plugin.bad", nil)
	if res.Err == nil {
		t.Error("HandleAction(malformed) returned no error")
	}
}
