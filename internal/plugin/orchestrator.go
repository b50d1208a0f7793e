package plugin

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/keybind"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/store"
)

// Observer receives lifecycle measurements.
type Observer interface {
	Activation(pluginID string, ok bool, d time.Duration)
	Contexts(n int)
	Reload(pluginID string, ok bool)
	SafeMode(on bool)
}

type nopObserver struct{}

func (nopObserver) Activation(string, bool, time.Duration) {}
func (nopObserver) Contexts(int)                           {}
func (nopObserver) Reload(string, bool)                    {}
func (nopObserver) SafeMode(bool)                          {}

// ContextInfo describes a live context.
type ContextInfo struct {
	Key         string `json:"key"`
	PluginID    string `json:"pluginId"`
	ProjectID   string `json:"projectId,omitempty"`
	ProjectPath string `json:"projectPath,omitempty"`
	InstanceID  string `json:"instanceId"`
}

// Orchestrator activates and deactivates plugin contexts.
//
// Activation never returns a plugin's failure: it is logged and recorded on
// the registry entry so one broken plugin cannot stop the others.
type Orchestrator struct {
	registry *Registry
	svc      api.Services
	loader   ModuleLoader
	state    *store.PluginState
	log      zerolog.Logger
	obs      Observer

	mu       sync.RWMutex
	contexts map[string]*Context
	pending  map[string]int         // activations in flight, by plugin
	deferred map[string]bool        // teardown skipped while an activation was in flight
	locks    map[string]*sync.Mutex // module lifecycle, by plugin
	group    singleflight.Group
	safeMode bool
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithModuleLoader sets the loader for third-party modules.
func WithModuleLoader(l ModuleLoader) OrchestratorOption {
	return func(o *Orchestrator) {
		o.loader = l
	}
}

// WithPluginState sets where settings and the startup marker persist.
func WithPluginState(s *store.PluginState) OrchestratorOption {
	return func(o *Orchestrator) {
		o.state = s
	}
}

// WithObserver sets the metrics observer.
func WithObserver(obs Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.obs = obs
	}
}

// NewOrchestrator creates an orchestrator over reg. Plugin APIs delegate to
// svc.
func NewOrchestrator(reg *Registry, svc api.Services, opts ...OrchestratorOption) *Orchestrator {
	if svc.Commands == nil {
		svc.Commands = api.NewCommandBus()
	}
	if svc.Events == nil {
		svc.Events = api.NewEventBus(svc.Logger)
	}
	if svc.Keys == nil {
		svc.Keys = keybind.NewRegistry()
	}
	o := &Orchestrator{
		registry: reg,
		svc:      svc,
		log:      svc.Logger,
		obs:      nopObserver{},
		contexts: make(map[string]*Context),
		pending:  make(map[string]int),
		deferred: make(map[string]bool),
		locks:    make(map[string]*sync.Mutex),
	}
	o.loader = LuaLoader{Logger: svc.Logger}
	for _, opt := range opts {
		opt(o)
	}
	if o.state == nil {
		o.state = store.NewPluginState(store.NewMemory())
	}
	return o
}

// Services returns the services plugin APIs delegate to.
func (o *Orchestrator) Services() api.Services {
	return o.svc
}

// Activate starts pluginID at application scope (projectID == "") or inside
// a project. Unknown, blocked and already running plugins are skipped.
// Concurrent calls for the same context collapse into one attempt. Only
// ctx's cancellation is returned.
func (o *Orchestrator) Activate(ctx context.Context, pluginID, projectID, projectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.activate(pluginID, projectID, projectPath)
	return nil
}

// activate runs one collapsed activation attempt and returns the plugin's
// failure, if any.
func (o *Orchestrator) activate(pluginID, projectID, projectPath string) error {
	key := ContextKey(pluginID, projectID)
	_, err, _ := o.group.Do(key, func() (any, error) {
		return nil, o.activateKey(key, pluginID, projectID, projectPath)
	})
	return err
}

func (o *Orchestrator) activateKey(key, pluginID, projectID, projectPath string) error {
	log := o.log.With().Str("plugin", pluginID).Str("context_key", key).Logger()

	entry, ok := o.registry.Get(pluginID)
	if !ok {
		log.Warn().Msg("activate: unknown plugin")
		return nil
	}
	if entry.Status.Blocked() {
		log.Debug().Str("status", entry.Status.String()).Msg("activate: skipped")
		return nil
	}
	if o.IsActive(pluginID, projectID) {
		return nil
	}
	m := entry.Manifest
	if (projectID == "" && !m.RunsInApp()) || (projectID != "" && !m.RunsInProject()) {
		log.Warn().Str("scope", string(m.Scope)).Msg("activate: plugin does not run in this scope")
		return nil
	}

	o.mu.Lock()
	o.pending[pluginID]++
	o.mu.Unlock()

	start := time.Now()
	c := newContext(pluginID, projectID, projectPath)
	c.Settings = o.loadSettings(key, entry)

	if err := o.run(c, entry); err != nil {
		o.obs.Activation(pluginID, false, time.Since(start))
		o.fail(c, entry, err)
		return err
	}

	o.mu.Lock()
	o.contexts[key] = c
	o.done(pluginID)
	delete(o.deferred, pluginID)
	n := len(o.contexts)
	o.mu.Unlock()

	o.registry.SetStatus(pluginID, StatusActivated, "")
	o.obs.Activation(pluginID, true, time.Since(start))
	o.obs.Contexts(n)
	log.Info().Str("instance", c.InstanceID).Dur("took", time.Since(start)).Msg("plugin activated")
	o.svc.Events.Emit(api.EventPluginActivated, map[string]any{"pluginId": pluginID, "projectId": projectID})
	return nil
}

// run resolves the module, builds the API and calls the activation hook.
// Panics anywhere in the chain are returned as errors with a stack.
func (o *Orchestrator) run(c *Context, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	mod, err := o.resolveModule(entry)
	if err != nil {
		return err
	}

	key := c.Key()
	a := api.New(api.Binding{
		PluginID:    c.PluginID,
		InstanceID:  c.InstanceID,
		ProjectID:   c.ProjectID,
		ProjectPath: c.ProjectPath,
		Settings:    c.Settings,
		Track:       c.Track,
		SaveSettings: func(s map[string]any) error {
			return o.state.SaveSettings(context.Background(), key, s)
		},
	}, entry.Manifest, o.svc)

	if mod.Activate != nil {
		if err := mod.Activate(c, a); err != nil {
			return err
		}
	}
	o.wireDefaultBindings(entry)
	return nil
}

// resolveModule returns the resident module, or builds one: synthetic for
// packs, freshly loaded for third-party code.
func (o *Orchestrator) resolveModule(entry Entry) (*Module, error) {
	id := entry.Manifest.ID
	l := o.pluginLock(id)
	l.Lock()
	defer l.Unlock()

	if mod, ok := o.registry.ModuleFor(id); ok {
		return mod, nil
	}
	if entry.Manifest.IsPack() {
		mod := packModule(entry.Manifest, o.svc.Themes)
		o.registry.SetModule(id, mod)
		return mod, nil
	}
	if entry.Source == SourceBuiltin {
		return nil, fmt.Errorf("%w: builtin %s has no resident module", ErrNoEntryPoint, id)
	}

	mod, err := o.loader.Load(entry, o.registry.NextGeneration(id))
	if err != nil {
		return nil, fmt.Errorf("load module: %w", err)
	}
	if mod == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotExported, id)
	}
	o.registry.SetModule(id, mod)
	return mod, nil
}

// wireDefaultBindings binds manifest default keys for commands the plugin
// did not bind itself. Conflicts are logged.
func (o *Orchestrator) wireDefaultBindings(entry Entry) {
	for _, cmd := range entry.Manifest.Contributes.Commands {
		if cmd.DefaultBinding == "" || o.svc.Keys.HasBinding(entry.Manifest.ID, cmd.ID) {
			continue
		}
		_, err := o.svc.Keys.Bind(keybind.Binding{
			PluginID:  entry.Manifest.ID,
			CommandID: cmd.ID,
			Keys:      cmd.DefaultBinding,
			Global:    cmd.Global,
			Default:   true,
		})
		if err != nil {
			o.log.Warn().Err(err).Str("plugin", entry.Manifest.ID).Str("command", cmd.ID).Msg("default key binding not applied")
		}
	}
}

// fail cleans up a failed activation and records the error. The entry only
// becomes errored when no other context of the plugin is running or still
// activating.
func (o *Orchestrator) fail(c *Context, entry Entry, err error) {
	id := entry.Manifest.ID
	o.log.Error().Err(err).Str("plugin", id).Str("context_key", c.Key()).Msg("plugin activation failed")

	c.dispose(o.log)

	l := o.pluginLock(id)
	l.Lock()
	defer l.Unlock()

	o.mu.Lock()
	o.done(id)
	running := o.recordedLocked(id)
	live := running + o.pending[id]
	deferred := o.deferred[id]
	if live == 0 {
		delete(o.deferred, id)
	}
	o.mu.Unlock()

	switch {
	case running > 0:
		o.registry.SetStatus(id, StatusActivated, err.Error())
	case live > 0:
		// Another context is mid-activation and settles the status.
		if cur, ok := o.registry.Get(id); ok {
			o.registry.SetStatus(id, cur.Status, err.Error())
		}
	default:
		if deferred {
			o.teardownLocked(id)
		} else {
			o.evict(entry)
		}
		o.registry.SetStatus(id, StatusErrored, err.Error())
	}
}

// done marks one activation of pluginID as settled. o.mu must be held.
func (o *Orchestrator) done(pluginID string) {
	if o.pending[pluginID] <= 1 {
		delete(o.pending, pluginID)
		return
	}
	o.pending[pluginID]--
}

// pluginLock returns the mutex serialising module resolution and teardown
// for pluginID.
func (o *Orchestrator) pluginLock(pluginID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[pluginID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[pluginID] = l
	}
	return l
}

func (o *Orchestrator) loadSettings(key string, entry Entry) map[string]any {
	settings := entry.Manifest.SettingDefaults()
	saved, err := o.state.Settings(context.Background(), key)
	if err != nil {
		o.log.Warn().Err(err).Str("context_key", key).Msg("could not load settings")
	}
	for k, v := range saved {
		settings[k] = v
	}
	return settings
}

// SaveSettings persists settings for a context key. A live context sees the
// new values on its next activation.
func (o *Orchestrator) SaveSettings(ctx context.Context, pluginID, projectID string, settings map[string]any) error {
	if _, ok := o.registry.Get(pluginID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, pluginID)
	}
	return o.state.SaveSettings(ctx, ContextKey(pluginID, projectID), settings)
}

// Deactivate destroys a context. Disposal failures are logged and
// swallowed. When the last context of a plugin goes away its teardown hook
// runs, its themes and key bindings are dropped and, unless builtin, its
// module is evicted.
func (o *Orchestrator) Deactivate(ctx context.Context, pluginID, projectID string) error {
	key := ContextKey(pluginID, projectID)

	o.mu.Lock()
	c, ok := o.contexts[key]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	delete(o.contexts, key)
	remaining := o.recordedLocked(pluginID)
	n := len(o.contexts)
	o.mu.Unlock()

	c.dispose(o.log)
	o.obs.Contexts(n)

	if remaining == 0 {
		o.teardown(pluginID)
	}
	o.log.Info().Str("plugin", pluginID).Str("context_key", key).Int("remaining", remaining).Msg("plugin deactivated")
	o.svc.Events.Emit(api.EventPluginDeactivated, map[string]any{"pluginId": pluginID, "projectId": projectID})
	return ctx.Err()
}

// teardown runs the last-context cleanup unless an activation started in
// the meantime; that activation then owns the module.
func (o *Orchestrator) teardown(pluginID string) {
	l := o.pluginLock(pluginID)
	l.Lock()
	defer l.Unlock()

	o.mu.Lock()
	if o.liveCountLocked(pluginID) > 0 {
		o.deferred[pluginID] = true
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	o.teardownLocked(pluginID)
}

// teardownLocked runs the deactivate hook and drops everything the plugin
// registered globally. The plugin lock must be held.
func (o *Orchestrator) teardownLocked(pluginID string) {
	entry, ok := o.registry.Get(pluginID)
	if !ok {
		return
	}

	if mod, ok := o.registry.ModuleFor(pluginID); ok && mod.Deactivate != nil {
		if err := safeCall(mod.Deactivate); err != nil {
			o.log.Warn().Err(err).Str("plugin", pluginID).Msg("deactivate hook failed")
		}
	}
	if o.svc.Themes != nil {
		o.svc.Themes.UnregisterPlugin(pluginID)
	}
	o.svc.Keys.ClearPlugin(pluginID)
	o.evict(entry)

	if entry.Status == StatusActivated {
		o.registry.SetStatus(pluginID, StatusDeactivated, "")
	}
}

// evict drops a non-builtin plugin's module so the next activation loads it
// again. The plugin lock must be held.
func (o *Orchestrator) evict(entry Entry) {
	mod, ok := o.registry.RemoveModule(entry.Manifest.ID)
	if !ok || mod.Close == nil {
		return
	}
	if err := safeCall(mod.Close); err != nil {
		o.log.Warn().Err(err).Str("plugin", entry.Manifest.ID).Msg("module close failed")
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// DeactivateAll destroys every context, project contexts first.
func (o *Orchestrator) DeactivateAll(ctx context.Context) error {
	o.mu.RLock()
	list := make([]*Context, 0, len(o.contexts))
	for _, c := range o.contexts {
		list = append(list, c)
	}
	o.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if (list[i].ProjectID == "") != (list[j].ProjectID == "") {
			return list[i].ProjectID != ""
		}
		return list[i].Key() < list[j].Key()
	})

	var errs []error
	for _, c := range list {
		if err := o.Deactivate(context.WithoutCancel(ctx), c.PluginID, c.ProjectID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsActive reports whether a context exists for the pair.
func (o *Orchestrator) IsActive(pluginID, projectID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.contexts[ContextKey(pluginID, projectID)]
	return ok
}

// Context returns the live context for the pair.
func (o *Orchestrator) Context(pluginID, projectID string) (*Context, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.contexts[ContextKey(pluginID, projectID)]
	return c, ok
}

// ActiveContexts lists a plugin's live contexts, or every context when
// pluginID is empty, sorted by key.
func (o *Orchestrator) ActiveContexts(pluginID string) []ContextInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []ContextInfo
	for key, c := range o.contexts {
		if pluginID != "" && c.PluginID != pluginID {
			continue
		}
		out = append(out, ContextInfo{
			Key:         key,
			PluginID:    c.PluginID,
			ProjectID:   c.ProjectID,
			ProjectPath: c.ProjectPath,
			InstanceID:  c.InstanceID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (o *Orchestrator) liveCount(pluginID string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.liveCountLocked(pluginID)
}

// liveCountLocked counts pluginID's contexts, including those still
// activating.
func (o *Orchestrator) liveCountLocked(pluginID string) int {
	return o.recordedLocked(pluginID) + o.pending[pluginID]
}

func (o *Orchestrator) recordedLocked(pluginID string) int {
	n := 0
	for _, c := range o.contexts {
		if c.PluginID == pluginID {
			n++
		}
	}
	return n
}
