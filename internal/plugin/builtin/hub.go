package builtin

import (
	"context"
	"sync"
	"time"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
)

// HubID is the id of the hub plugin.
const HubID = "hub"

// hubActivityLimit caps the remembered lifecycle events.
const hubActivityLimit = 50

// Activity is one plugin lifecycle event seen by the hub.
type Activity struct {
	Time      time.Time `json:"time"`
	Event     string    `json:"event"`
	PluginID  string    `json:"pluginId"`
	ProjectID string    `json:"projectId,omitempty"`
}

type hub struct {
	mu       sync.Mutex
	activity []Activity
	now      func() time.Time
}

// Hub returns the application-level overview plugin. It lists open projects
// and keeps a short log of plugin lifecycle events.
func Hub() Builtin {
	h := &hub{now: time.Now}
	m := &manifest.Manifest{
		ID:          HubID,
		Name:        "Hub",
		Version:     "1.0.0",
		Description: "Open projects and recent plugin activity",
		Author:      "plughost",
		Engine:      manifest.Engine{API: manifest.CurrentVersion()},
		Scope:       manifest.ScopeApp,
		Permissions: perms(
			security.CapabilityProjects,
			security.CapabilityCommands,
			security.CapabilityEvents,
			security.CapabilityLogging,
		),
		Contributes: manifest.Contributes{
			RailItem: &manifest.RailContribution{Label: "Hub", Icon: "home", Position: "top"},
			Commands: []manifest.CommandContribution{
				{ID: "projects", Title: "Hub: List Projects", DefaultBinding: "Meta+Shift+P"},
				{ID: "activity", Title: "Hub: Recent Plugin Activity"},
			},
			Help: &manifest.HelpContribution{Topics: []manifest.HelpTopic{{
				ID:      "overview",
				Title:   "Hub",
				Content: "The hub lists open projects and the plugins that recently started or stopped.",
			}}},
		},
	}
	return Builtin{Manifest: m, Module: &plugin.Module{Activate: h.activate}}
}

func (h *hub) activate(_ *plugin.Context, a *api.API) error {
	for _, event := range []string{api.EventPluginActivated, api.EventPluginDeactivated, api.EventPluginReloaded} {
		event := event
		if _, err := a.Events.On(event, func(data map[string]any) { h.record(event, data) }); err != nil {
			return err
		}
	}

	if err := a.Commands.Register("projects", func(context.Context, map[string]any) (any, error) {
		return a.Projects.List(), nil
	}); err != nil {
		return err
	}
	if err := a.Commands.Register("activity", func(context.Context, map[string]any) (any, error) {
		return h.recent(), nil
	}); err != nil {
		return err
	}
	a.Logging.Debug("hub ready")
	return nil
}

func (h *hub) record(event string, data map[string]any) {
	id, _ := data["pluginId"].(string)
	if id == HubID {
		return
	}
	project, _ := data["projectId"].(string)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.activity = append(h.activity, Activity{Time: h.now(), Event: event, PluginID: id, ProjectID: project})
	if over := len(h.activity) - hubActivityLimit; over > 0 {
		h.activity = append([]Activity(nil), h.activity[over:]...)
	}
}

// recent returns the activity log, newest first.
func (h *hub) recent() []Activity {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Activity, len(h.activity))
	for i, a := range h.activity {
		out[len(out)-1-i] = a
	}
	return out
}
