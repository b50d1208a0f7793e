package plugin

import (
	"context"
	"time"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/store"
)

// SafeModeAttempts is the number of unfinished startups after which the
// host stops activating plugins.
const SafeModeAttempts = 2

// ActivateStartup activates every enabled plugin: application scope first,
// then each project in order. A marker is persisted for the duration of the
// batch and cleared once every plugin has been attempted. If earlier
// batches left a marker behind SafeModeAttempts times, nothing is activated
// and ErrSafeMode is returned.
func (o *Orchestrator) ActivateStartup(ctx context.Context, projects []api.ProjectInfo) error {
	prev, err := o.state.StartupMarker(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("could not read startup marker")
	}

	attempt := 0
	if prev != nil {
		attempt = prev.Attempt
	}
	if attempt >= SafeModeAttempts {
		o.mu.Lock()
		o.safeMode = true
		o.mu.Unlock()
		o.obs.SafeMode(true)
		o.log.Warn().Int("attempt", attempt).Strs("plugins", prev.LastEnabledPluginIDs).Msg("previous startups did not finish, entering safe mode")
		return ErrSafeMode
	}

	ids := o.registry.AppEnabled()
	for _, p := range projects {
		for _, id := range o.registry.ProjectEnabled(p.ID) {
			ids = appendUnique(ids, id)
		}
	}
	marker := store.StartupMarker{
		Timestamp:            time.Now().UTC(),
		Attempt:              attempt + 1,
		LastEnabledPluginIDs: ids,
	}
	if err := o.state.WriteStartupMarker(ctx, marker); err != nil {
		o.log.Warn().Err(err).Msg("could not write startup marker")
	}

	// A cancelled batch leaves the marker behind; it counts as unfinished.
	for _, id := range o.registry.AppEnabled() {
		if err := o.Activate(ctx, id, "", ""); err != nil {
			return err
		}
	}
	for _, p := range projects {
		for _, id := range o.registry.ProjectEnabled(p.ID) {
			if err := o.Activate(ctx, id, p.ID, p.Path); err != nil {
				return err
			}
		}
	}
	if err := o.state.ClearStartupMarker(ctx); err != nil {
		o.log.Warn().Err(err).Msg("could not clear startup marker")
	}
	o.log.Info().Int("contexts", len(o.ActiveContexts(""))).Int("attempt", marker.Attempt).Msg("startup activation finished")
	return nil
}

// SafeMode reports whether the last startup was skipped.
func (o *Orchestrator) SafeMode() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.safeMode
}

// ExitSafeMode clears the crash marker so the next startup activates
// plugins again.
func (o *Orchestrator) ExitSafeMode(ctx context.Context) error {
	if err := o.state.ClearStartupMarker(ctx); err != nil {
		return err
	}
	o.mu.Lock()
	o.safeMode = false
	o.mu.Unlock()
	o.obs.SafeMode(false)
	return nil
}
