package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/discovery"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/hook"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/keybind"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/theme"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/watcher"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/store"
)

// Host ties the registry, the orchestrator and persistence together. It is
// the surface the application talks to.
type Host struct {
	registry *Registry
	orch     *Orchestrator
	state    *store.PluginState
	feed     discovery.Feed
	log      zerolog.Logger
	delay    time.Duration
	keys     *hook.KeyHandler
	actions  *hook.NamespaceHandler

	mu      sync.Mutex
	watcher *watcher.Watcher
}

type hostConfig struct {
	svc         api.Services
	kv          store.KV
	feed        discovery.Feed
	loader      ModuleLoader
	obs         Observer
	callTimeout time.Duration
	watchDelay  time.Duration
}

// HostOption configures a Host.
type HostOption func(*hostConfig)

// WithServices sets the services plugin APIs delegate to.
func WithServices(svc api.Services) HostOption {
	return func(c *hostConfig) {
		c.svc = svc
	}
}

// WithStore sets the KV store for enablement, settings and plugin storage.
func WithStore(kv store.KV) HostOption {
	return func(c *hostConfig) {
		c.kv = kv
	}
}

// WithFeed sets the source of third-party plugins.
func WithFeed(feed discovery.Feed) HostOption {
	return func(c *hostConfig) {
		c.feed = feed
	}
}

// WithLoader replaces the Lua module loader.
func WithLoader(l ModuleLoader) HostOption {
	return func(c *hostConfig) {
		c.loader = l
	}
}

// WithHostObserver sets the metrics observer.
func WithHostObserver(obs Observer) HostOption {
	return func(c *hostConfig) {
		c.obs = obs
	}
}

// WithCallTimeout bounds Lua callbacks such as command handlers.
func WithCallTimeout(d time.Duration) HostOption {
	return func(c *hostConfig) {
		c.callTimeout = d
	}
}

// WithWatchDelay sets how long Watch waits for a plugin directory to settle
// before reloading it.
func WithWatchDelay(d time.Duration) HostOption {
	return func(c *hostConfig) {
		c.watchDelay = d
	}
}

// NewHost creates a host. Missing services get in-memory defaults.
func NewHost(opts ...HostOption) *Host {
	cfg := hostConfig{svc: api.Services{Logger: zerolog.Nop()}}
	for _, opt := range opts {
		opt(&cfg)
	}

	svc := cfg.svc
	if cfg.kv != nil {
		svc.Store = cfg.kv
	}
	if svc.Store == nil {
		svc.Store = store.NewMemory()
	}
	if svc.Themes == nil {
		svc.Themes = theme.NewRegistry()
	}
	if svc.Keys == nil {
		svc.Keys = keybind.NewRegistry()
	}
	if svc.Notifier == nil {
		svc.Notifier = api.LogNotifier{Logger: svc.Logger}
	}
	if cfg.feed == nil {
		cfg.feed = discovery.Static(nil)
	}
	if cfg.loader == nil {
		cfg.loader = LuaLoader{Logger: svc.Logger, CallTimeout: cfg.callTimeout}
	}

	state := store.NewPluginState(svc.Store)
	reg := NewRegistry()
	orchOpts := []OrchestratorOption{WithModuleLoader(cfg.loader), WithPluginState(state)}
	if cfg.obs != nil {
		orchOpts = append(orchOpts, WithObserver(cfg.obs))
	}

	orch := NewOrchestrator(reg, svc, orchOpts...)
	shared := orch.Services()
	return &Host{
		registry: reg,
		orch:     orch,
		state:    state,
		feed:     cfg.feed,
		log:      svc.Logger,
		delay:    cfg.watchDelay,
		keys:     hook.NewKeyHandler(shared.Keys, shared.Commands),
		actions:  hook.NewNamespaceHandler(shared.Commands),
	}
}

// Registry returns the plugin registry.
func (h *Host) Registry() *Registry {
	return h.registry
}

// Orchestrator returns the lifecycle orchestrator.
func (h *Host) Orchestrator() *Orchestrator {
	return h.orch
}

// Services returns the shared services.
func (h *Host) Services() api.Services {
	return h.orch.Services()
}

// HandleKey runs the plugin command bound to chord. While a text field has
// focus only bindings declared global fire.
func (h *Host) HandleKey(ctx context.Context, chord string, textFocused bool) hook.Result {
	res := h.keys.HandleKey(ctx, chord, textFocused)
	h.logResult(res)
	return res
}

// RunAction runs an action named plugin.<pluginID>.<commandID>.
func (h *Host) RunAction(ctx context.Context, action string, args map[string]any) hook.Result {
	res := h.actions.HandleAction(ctx, action, args)
	h.logResult(res)
	return res
}

func (h *Host) logResult(res hook.Result) {
	if res.Handled && res.Err != nil {
		h.log.Warn().Err(res.Err).Str("command", res.Command).Msg("plugin command failed")
	}
}

// RegisterBuiltin registers a plugin compiled into the host. Its module
// stays resident for the life of the host.
func (h *Host) RegisterBuiltin(m *manifest.Manifest, mod *Module) error {
	res := manifest.ValidateValue(m)
	if !res.Valid {
		return &manifest.InvalidError{Errors: res.Errors}
	}
	if !h.registry.Register(res.Manifest, SourceBuiltin, "", StatusRegistered) {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, m.ID)
	}
	if mod == nil {
		mod = &Module{}
	}
	h.registry.SetModule(res.Manifest.ID, mod)
	return nil
}

// Discover registers every plugin the feed reports. Plugins whose manifest
// does not validate are registered as incompatible when they carry a
// usable id and skipped otherwise. Ids already known are ignored.
func (h *Host) Discover(ctx context.Context) (int, error) {
	found, err := h.feed.Discover(ctx)
	if err != nil {
		return 0, fmt.Errorf("discover plugins: %w", err)
	}

	added := 0
	for _, f := range found {
		source := SourceCommunity
		if f.FromMarketplace {
			source = SourceMarketplace
		}
		log := h.log.With().Str("path", f.Path).Logger()

		res := manifest.Validate(f.Manifest)
		if res.Valid {
			if h.registry.Register(res.Manifest, source, f.Path, StatusRegistered) {
				added++
			} else {
				log.Warn().Str("plugin", res.Manifest.ID).Msg("plugin id already registered")
			}
			continue
		}

		id := f.ID()
		if !manifest.ValidID(id) {
			log.Warn().Strs("errors", res.Errors).Msg("skipping plugin without a usable id")
			continue
		}
		if h.registry.Register(lenientManifest(f.Manifest, id), source, f.Path, StatusIncompatible) {
			added++
			h.registry.SetStatus(id, StatusIncompatible, (&manifest.InvalidError{Errors: res.Errors}).Error())
			log.Warn().Str("plugin", id).Strs("errors", res.Errors).Msg("plugin manifest rejected")
		}
	}
	return added, nil
}

// Restore loads persisted enablement lists for the application and the
// given projects.
func (h *Host) Restore(ctx context.Context, projects []api.ProjectInfo) error {
	app, err := h.state.AppEnabled(ctx)
	if err != nil {
		return fmt.Errorf("restore app enablement: %w", err)
	}
	h.registry.SetAppEnabled(app)

	for _, p := range projects {
		ids, err := h.state.ProjectEnabled(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("restore enablement of project %s: %w", p.ID, err)
		}
		h.registry.SetProjectEnabled(p.ID, ids)
	}
	return nil
}

// Start restores enablement and runs the startup batch.
func (h *Host) Start(ctx context.Context, projects []api.ProjectInfo) error {
	if err := h.Restore(ctx, projects); err != nil {
		return err
	}
	return h.orch.ActivateStartup(ctx, projects)
}

// EnableApp enables a plugin at application scope, persists the list and
// activates it.
func (h *Host) EnableApp(ctx context.Context, id string) error {
	if _, ok := h.registry.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	h.registry.EnableApp(id)
	if err := h.state.SaveAppEnabled(ctx, h.registry.AppEnabled()); err != nil {
		return err
	}
	return h.orch.Activate(ctx, id, "", "")
}

// DisableApp disables a plugin at application scope and deactivates it.
func (h *Host) DisableApp(ctx context.Context, id string) error {
	h.registry.DisableApp(id)
	if err := h.state.SaveAppEnabled(ctx, h.registry.AppEnabled()); err != nil {
		return err
	}
	return h.orch.Deactivate(ctx, id, "")
}

// EnableProject enables a plugin in a project and activates it there.
func (h *Host) EnableProject(ctx context.Context, p api.ProjectInfo, id string) error {
	if _, ok := h.registry.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	h.registry.EnableProject(p.ID, id)
	if err := h.state.SaveProjectEnabled(ctx, p.ID, h.registry.ProjectEnabled(p.ID)); err != nil {
		return err
	}
	return h.orch.Activate(ctx, id, p.ID, p.Path)
}

// DisableProject disables a plugin in a project and deactivates it there.
func (h *Host) DisableProject(ctx context.Context, projectID, id string) error {
	h.registry.DisableProject(projectID, id)
	if err := h.state.SaveProjectEnabled(ctx, projectID, h.registry.ProjectEnabled(projectID)); err != nil {
		return err
	}
	return h.orch.Deactivate(ctx, id, projectID)
}

// Disable switches a plugin off everywhere until Enable is called.
func (h *Host) Disable(ctx context.Context, id string) error {
	if _, ok := h.registry.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	for _, c := range h.orch.ActiveContexts(id) {
		if err := h.orch.Deactivate(ctx, id, c.ProjectID); err != nil {
			return err
		}
	}
	return h.registry.SetStatus(id, StatusDisabled, "")
}

// Enable lifts a Disable or clears an activation error. Enabled scopes are
// not reactivated until the next start or enablement change.
func (h *Host) Enable(id string) error {
	e, ok := h.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	if e.Status != StatusDisabled && e.Status != StatusErrored {
		return nil
	}
	return h.registry.SetStatus(id, StatusRegistered, "")
}

// HotReload reloads a third-party plugin's code.
func (h *Host) HotReload(ctx context.Context, id string) error {
	return h.orch.HotReload(ctx, id)
}

// Watch hot-reloads plugins whose directory under one of roots changes.
func (h *Host) Watch(roots ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watcher != nil {
		return errors.New("already watching")
	}

	opts := []watcher.Option{watcher.WithGroup(watcher.ChildGroup(roots...)), watcher.WithLogger(h.log)}
	if h.delay > 0 {
		opts = append(opts, watcher.WithDelay(h.delay))
	}
	w, err := watcher.New(h.onChange, opts...)
	if err != nil {
		return err
	}
	for _, root := range roots {
		if err := w.AddRecursive(root); err != nil && !errors.Is(err, watcher.ErrPathNotExist) {
			w.Close()
			return fmt.Errorf("watch %s: %w", root, err)
		}
	}
	h.watcher = w
	return nil
}

func (h *Host) onChange(dir string, paths []string) {
	id := h.pluginAt(dir)
	if id == "" {
		h.log.Debug().Str("dir", dir).Msg("change outside known plugins")
		return
	}
	h.log.Info().Str("plugin", id).Int("changes", len(paths)).Msg("plugin files changed, reloading")
	if err := h.orch.HotReload(context.Background(), id); err != nil {
		h.log.Error().Err(err).Str("plugin", id).Msg("hot reload failed")
	}
}

func (h *Host) pluginAt(dir string) string {
	dir = filepath.Clean(dir)
	for _, e := range h.registry.List() {
		if e.Source != SourceBuiltin && e.Path != "" && filepath.Clean(e.Path) == dir {
			return e.Manifest.ID
		}
	}
	return ""
}

// HostStats summarizes the host.
type HostStats struct {
	Plugins  int            `json:"plugins"`
	Contexts int            `json:"contexts"`
	ByStatus map[Status]int `json:"byStatus"`
	SafeMode bool           `json:"safeMode"`
}

// Stats returns a snapshot of the host.
func (h *Host) Stats() HostStats {
	entries := h.registry.List()
	s := HostStats{
		Plugins:  len(entries),
		Contexts: len(h.orch.ActiveContexts("")),
		ByStatus: make(map[Status]int),
		SafeMode: h.orch.SafeMode(),
	}
	for _, e := range entries {
		s.ByStatus[e.Status]++
	}
	return s
}

// Shutdown stops watching and destroys every context.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	w := h.watcher
	h.watcher = nil
	h.mu.Unlock()

	var errs []error
	if w != nil {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.orch.DeactivateAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
