package api

import (
	"sort"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
)

// Surfaces frozen per API version as "namespace.Method". A plugin written
// against version N may call every entry of surface N; the current API must
// keep providing all of them for as long as N is supported.
var (
	surface05 = []string{
		"context.PluginID", "context.InstanceID", "context.ProjectID", "context.Mode", "context.APIVersion",
		"settings.Get", "settings.String", "settings.Bool", "settings.Number", "settings.All", "settings.Set",
		"project.ID", "project.Path", "project.Name",
		"projects.List", "projects.ReadFile",
		"files.Read", "files.Write", "files.Exists", "files.List", "files.Watch",
		"git.Branch", "git.Status", "git.Log",
		"process.Run",
		"storage.Get", "storage.Set", "storage.Delete", "storage.Keys",
		"notifications.Notify", "notifications.Info", "notifications.Warn", "notifications.Error",
		"commands.Register", "commands.Execute", "commands.List",
		"events.On", "events.Emit",
		"logging.Debug", "logging.Info", "logging.Warn", "logging.Error",
		"navigation.OpenProject", "navigation.Focus", "navigation.OpenFile",
	}

	surface06 = extend(surface05,
		"commands.BindKey",
	)

	surface07 = extend(surface06,
		"themes.List", "themes.Active", "themes.Apply",
	)
)

var surfaces = map[manifest.APIVersion][]string{
	manifest.APIVersion05: surface05,
	manifest.APIVersion06: surface06,
	manifest.APIVersion07: surface07,
}

func extend(base []string, added ...string) []string {
	out := make([]string, 0, len(base)+len(added))
	out = append(out, base...)
	return append(out, added...)
}

// Surface returns the frozen method set of an API version, sorted.
func Surface(v manifest.APIVersion) ([]string, bool) {
	s, ok := surfaces[v]
	if !ok {
		return nil, false
	}
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out, true
}
