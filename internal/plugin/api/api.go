package api

import (
	"errors"
	"path/filepath"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/keybind"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/theme"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/store"
)

// Errors returned by API namespaces.
var (
	ErrUnavailable = errors.New("host service unavailable")
	ErrNoProject   = errors.New("no project bound to this context")
)

// RenderMode says where the activation runs.
type RenderMode string

// Render modes.
const (
	ModeApp     RenderMode = "app"
	ModeProject RenderMode = "project"
)

// Disposable releases something a plugin registered during activation.
type Disposable interface {
	Dispose() error
}

// DisposeFunc adapts a function to Disposable.
type DisposeFunc func() error

// Dispose implements Disposable.
func (f DisposeFunc) Dispose() error {
	if f == nil {
		return nil
	}
	return f()
}

// Binding describes the activation an API is built for.
type Binding struct {
	PluginID    string
	InstanceID  string
	ProjectID   string
	ProjectPath string

	// Settings is the merged settings snapshot of the context.
	Settings map[string]any

	// Track registers a disposable with the owning context.
	Track func(Disposable)

	// SaveSettings persists the settings snapshot.
	SaveSettings func(map[string]any) error
}

// Mode returns ModeProject for project-bound bindings.
func (b Binding) Mode() RenderMode {
	if b.ProjectID != "" {
		return ModeProject
	}
	return ModeApp
}

// Services are the host collaborators namespaces delegate to.
type Services struct {
	Commands  *CommandBus
	Events    *EventBus
	Keys      *keybind.Registry
	Themes    *theme.Registry
	Store     store.KV
	Notifier  Notifier
	Navigator Navigator
	Projects  ProjectDirectory
	Logger    zerolog.Logger
}

// API is the capability-scoped object handed to a plugin's activation hook.
// A namespace is nil unless the plugin's scope and permissions expose it.
type API struct {
	Context       *Context       `ns:"context"`
	Settings      *Settings      `ns:"settings"`
	Project       *Project       `ns:"project"`
	Projects      *Projects      `ns:"projects"`
	Files         *Files         `ns:"files"`
	Git           *Git           `ns:"git"`
	Process       *Process       `ns:"process"`
	Storage       *Storage       `ns:"storage"`
	Notifications *Notifications `ns:"notifications"`
	Commands      *Commands      `ns:"commands"`
	Events        *Events        `ns:"events"`
	Logging       *Logging       `ns:"logging"`
	Navigation    *Navigation    `ns:"navigation"`
	Themes        *Themes        `ns:"themes"`
}

// namespaceCapabilities maps gated namespaces to the capability exposing them.
var namespaceCapabilities = map[string]security.Capability{
	"projects":      security.CapabilityProjects,
	"files":         security.CapabilityFiles,
	"git":           security.CapabilityGit,
	"process":       security.CapabilityProcess,
	"storage":       security.CapabilityStorage,
	"notifications": security.CapabilityNotifications,
	"commands":      security.CapabilityCommands,
	"events":        security.CapabilityEvents,
	"logging":       security.CapabilityLogging,
	"navigation":    security.CapabilityNavigation,
	"themes":        security.CapabilityThemes,
}

// NamespaceCapability returns the capability gating a namespace.
func NamespaceCapability(ns string) (security.Capability, bool) {
	c, ok := namespaceCapabilities[ns]
	return c, ok
}

// ExpectedNamespaces returns the namespaces a plugin with manifest m sees in
// the given mode, in declaration order.
func ExpectedNamespaces(m *manifest.Manifest, mode RenderMode) []string {
	var out []string
	for _, ns := range namespaceOrder() {
		switch ns {
		case "context", "settings":
		case "project":
			if mode != ModeProject {
				continue
			}
		default:
			if !m.HasPermission(namespaceCapabilities[ns]) {
				continue
			}
		}
		out = append(out, ns)
	}
	return out
}

// New builds the API for one activation.
func New(b Binding, m *manifest.Manifest, svc Services) *API {
	if b.Track == nil {
		b.Track = func(Disposable) {}
	}
	if b.Settings == nil {
		b.Settings = make(map[string]any)
	}
	if svc.Notifier == nil {
		svc.Notifier = LogNotifier{Logger: svc.Logger}
	}

	checker := newChecker(b, m)
	log := svc.Logger.With().Str("plugin", m.ID).Logger()
	if b.ProjectID != "" {
		log = log.With().Str("project", b.ProjectID).Logger()
	}

	a := &API{
		Context:  &Context{binding: b, manifest: m},
		Settings: &Settings{binding: b},
	}
	if b.Mode() == ModeProject {
		a.Project = &Project{binding: b, dir: svc.Projects}
	}

	has := checker.HasCapability
	if has(security.CapabilityProjects) {
		a.Projects = &Projects{checker: checker, dir: svc.Projects}
	}
	if has(security.CapabilityFiles) {
		a.Files = &Files{checker: checker, track: b.Track, log: log}
	}
	if has(security.CapabilityGit) {
		a.Git = &Git{root: b.ProjectPath}
	}
	if has(security.CapabilityProcess) {
		a.Process = &Process{checker: checker, dir: b.ProjectPath}
	}
	if has(security.CapabilityStorage) {
		a.Storage = &Storage{pluginID: m.ID, kv: svc.Store}
	}
	if has(security.CapabilityNotifications) {
		a.Notifications = &Notifications{pluginID: m.ID, notifier: svc.Notifier}
	}
	if has(security.CapabilityCommands) {
		a.Commands = &Commands{pluginID: m.ID, manifest: m, bus: svc.Commands, keys: svc.Keys, track: b.Track}
	}
	if has(security.CapabilityEvents) {
		a.Events = &Events{pluginID: m.ID, bus: svc.Events, track: b.Track}
	}
	if has(security.CapabilityLogging) {
		a.Logging = &Logging{log: log}
	}
	if has(security.CapabilityNavigation) {
		a.Navigation = &Navigation{pluginID: m.ID, nav: svc.Navigator}
	}
	if has(security.CapabilityThemes) {
		a.Themes = &Themes{registry: svc.Themes}
	}
	return a
}

// newChecker builds the permission checker, resolving declared external
// roots through the plugin's settings.
func newChecker(b Binding, m *manifest.Manifest) *security.PermissionChecker {
	pc := security.NewPermissionChecker(m.ID, m.Permissions)
	pc.SetProjectRoot(b.ProjectPath)
	for _, er := range m.ExternalRoots {
		base, _ := b.Settings[er.SettingKey].(string)
		if base == "" {
			continue
		}
		pc.AllowExternalRoot(filepath.Join(base, er.Root))
	}
	for _, name := range m.AllowedCommands {
		pc.AllowCommand(name)
	}
	return pc
}

// Namespaces returns the names of the exposed namespaces in declaration order.
func (a *API) Namespaces() []string {
	var out []string
	v := reflect.ValueOf(a).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if !v.Field(i).IsNil() {
			out = append(out, t.Field(i).Tag.Get("ns"))
		}
	}
	return out
}

// Has reports whether a namespace is exposed.
func (a *API) Has(ns string) bool {
	for _, n := range a.Namespaces() {
		if n == ns {
			return true
		}
	}
	return false
}

func namespaceOrder() []string {
	t := reflect.TypeOf(API{})
	out := make([]string, t.NumField())
	for i := range out {
		out[i] = t.Field(i).Tag.Get("ns")
	}
	return out
}
