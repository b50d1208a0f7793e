package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/discovery"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
)

// ContextFailure is one context that did not come back after a reload.
type ContextFailure struct {
	ProjectID string
	Err       error
}

// ReloadError lists the contexts a reload could not restore. Contexts not
// listed are running the new code.
type ReloadError struct {
	PluginID string
	Failures []ContextFailure
}

func (e *ReloadError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		scope := "app"
		if f.ProjectID != "" {
			scope = "project " + f.ProjectID
		}
		parts = append(parts, fmt.Sprintf("%s: %v", scope, f.Err))
	}
	return fmt.Sprintf("reload %s: %s", e.PluginID, strings.Join(parts, "; "))
}

// Unwrap returns the per-context errors.
func (e *ReloadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// HotReload replaces a third-party plugin's code without restarting the
// host. Every live context is torn down, the manifest is re-read and
// validated, a fresh module generation is loaded and each captured context
// is restored in turn. A failing context does not stop the others; the
// failures are returned as a *ReloadError.
func (o *Orchestrator) HotReload(ctx context.Context, pluginID string) error {
	entry, ok := o.registry.Get(pluginID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, pluginID)
	}
	if entry.Source == SourceBuiltin {
		return fmt.Errorf("%w: %s", ErrBuiltinReload, pluginID)
	}
	log := o.log.With().Str("plugin", pluginID).Logger()

	captured := o.ActiveContexts(pluginID)
	for _, c := range captured {
		if err := o.Deactivate(context.WithoutCancel(ctx), c.PluginID, c.ProjectID); err != nil {
			log.Warn().Err(err).Str("context_key", c.Key).Msg("reload: deactivate")
		}
	}
	l := o.pluginLock(pluginID)
	l.Lock()
	o.evict(entry)
	l.Unlock()

	m, err := reloadManifest(entry.Path, pluginID)
	if err != nil {
		o.registry.SetStatus(pluginID, StatusIncompatible, err.Error())
		o.obs.Reload(pluginID, false)
		log.Error().Err(err).Msg("reload: manifest rejected")
		return err
	}
	if err := o.registry.Replace(pluginID, m, StatusRegistered); err != nil {
		return err
	}
	if entry.Status == StatusDisabled {
		o.registry.SetStatus(pluginID, StatusDisabled, "")
		o.obs.Reload(pluginID, true)
		return nil
	}

	rerr := &ReloadError{PluginID: pluginID}
	for _, c := range captured {
		if err := ctx.Err(); err != nil {
			rerr.Failures = append(rerr.Failures, ContextFailure{ProjectID: c.ProjectID, Err: err})
			continue
		}
		if !o.anyLive(pluginID) {
			o.registry.SetStatus(pluginID, StatusReactivating, "")
		}
		if err := o.activate(pluginID, c.ProjectID, c.ProjectPath); err != nil {
			rerr.Failures = append(rerr.Failures, ContextFailure{ProjectID: c.ProjectID, Err: err})
			// Keep trying the remaining contexts against a clean slate.
			if !o.anyLive(pluginID) {
				o.registry.SetStatus(pluginID, StatusReactivating, err.Error())
			}
		}
	}

	if len(captured) == 0 && m.RunsInApp() && o.registry.IsEnabledInApp(pluginID) {
		if err := o.activate(pluginID, "", ""); err != nil {
			rerr.Failures = append(rerr.Failures, ContextFailure{Err: err})
		}
	}

	switch {
	case o.anyLive(pluginID):
		msg := ""
		if len(rerr.Failures) > 0 {
			msg = rerr.Error()
		}
		o.registry.SetStatus(pluginID, StatusActivated, msg)
	case len(rerr.Failures) > 0:
		o.registry.SetStatus(pluginID, StatusErrored, rerr.Error())
	default:
		o.registry.SetStatus(pluginID, StatusRegistered, "")
	}

	ok = len(rerr.Failures) == 0
	o.obs.Reload(pluginID, ok)
	o.svc.Events.Emit(api.EventPluginReloaded, map[string]any{"pluginId": pluginID, "ok": ok})
	log.Info().Int("contexts", len(captured)).Int("failed", len(rerr.Failures)).Msg("plugin reloaded")
	if !ok {
		return rerr
	}
	return nil
}

func (o *Orchestrator) anyLive(pluginID string) bool {
	return o.liveCount(pluginID) > 0
}

// reloadManifest re-reads and validates a plugin's manifest. The id must
// not change across a reload.
func reloadManifest(dir, id string) (*manifest.Manifest, error) {
	found, err := discovery.Read(dir)
	if err != nil {
		return nil, err
	}
	res := manifest.Validate(found.Manifest)
	if !res.Valid {
		return nil, &manifest.InvalidError{Errors: res.Errors}
	}
	if res.Manifest.ID != id {
		return nil, &manifest.InvalidError{Errors: []string{fmt.Sprintf("id changed from %q to %q", id, res.Manifest.ID)}}
	}
	return res.Manifest, nil
}

// lenientManifest decodes whatever it can of an invalid manifest so the
// plugin can still be listed.
func lenientManifest(raw []byte, id string) *manifest.Manifest {
	var m manifest.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		m = manifest.Manifest{}
	}
	m.ID = id
	return &m
}

// IsReloadError reports whether err carries per-context reload failures.
func IsReloadError(err error) (*ReloadError, bool) {
	var rerr *ReloadError
	ok := errors.As(err, &rerr)
	return rerr, ok
}
