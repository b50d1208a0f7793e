package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
)

// Entry is the registry's record of one plugin.
type Entry struct {
	Manifest *manifest.Manifest
	Status   Status
	Error    string
	Source   Source
	Path     string

	// Generation counts module loads; it names the loaded chunk so a stale
	// copy is never reused.
	Generation int
}

// Registry holds known plugins, their enablement per scope and their loaded
// modules. Create one per host.
type Registry struct {
	mu sync.RWMutex

	entries map[string]*Entry
	modules map[string]*Module

	appEnabled     []string
	projectEnabled map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:        make(map[string]*Entry),
		modules:        make(map[string]*Module),
		projectEnabled: make(map[string][]string),
	}
}

// Register adds a plugin. It returns false and changes nothing if the id is
// already known.
func (r *Registry) Register(m *manifest.Manifest, source Source, path string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[m.ID]; exists {
		return false
	}
	r.entries[m.ID] = &Entry{Manifest: m, Status: status, Source: source, Path: path}
	return true
}

// Replace swaps in a new manifest for a known plugin, keeping its source,
// path and generation and clearing its error.
func (r *Registry) Replace(id string, m *manifest.Manifest, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	r.entries[id] = &Entry{
		Manifest:   m,
		Status:     status,
		Source:     e.Source,
		Path:       e.Path,
		Generation: e.Generation,
	}
	return nil
}

// SetStatus updates a plugin's status and error message.
func (r *Registry) SetStatus(id string, status Status, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	e.Status = status
	e.Error = msg
	return nil
}

// Get returns a copy of a plugin's entry.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns every entry sorted by id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.ID < out[j].Manifest.ID })
	return out
}

// NextGeneration increments and returns a plugin's module generation.
func (r *Registry) NextGeneration(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return 0
	}
	e.Generation++
	return e.Generation
}

// EnableApp adds id to the application-scope enablement list.
func (r *Registry) EnableApp(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appEnabled = appendUnique(r.appEnabled, id)
}

// DisableApp removes id from the application-scope enablement list.
func (r *Registry) DisableApp(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appEnabled = without(r.appEnabled, id)
}

// EnableProject adds id to a project's enablement list.
func (r *Registry) EnableProject(projectID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projectEnabled[projectID] = appendUnique(r.projectEnabled[projectID], id)
}

// DisableProject removes id from a project's enablement list.
func (r *Registry) DisableProject(projectID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := without(r.projectEnabled[projectID], id)
	if len(list) == 0 {
		delete(r.projectEnabled, projectID)
		return
	}
	r.projectEnabled[projectID] = list
}

// AppEnabled returns the application-scope enablement list in enable order.
func (r *Registry) AppEnabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.appEnabled...)
}

// ProjectEnabled returns a project's enablement list in enable order.
func (r *Registry) ProjectEnabled(projectID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.projectEnabled[projectID]...)
}

// IsEnabledInApp reports whether id is enabled at application scope.
func (r *Registry) IsEnabledInApp(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return contains(r.appEnabled, id)
}

// IsEnabledInProject reports whether id is enabled in a project.
func (r *Registry) IsEnabledInProject(projectID, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return contains(r.projectEnabled[projectID], id)
}

// SetAppEnabled replaces the application-scope list, dropping duplicates.
func (r *Registry) SetAppEnabled(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appEnabled = dedupe(ids)
}

// SetProjectEnabled replaces a project's list, dropping duplicates.
func (r *Registry) SetProjectEnabled(projectID string, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ids) == 0 {
		delete(r.projectEnabled, projectID)
		return
	}
	r.projectEnabled[projectID] = dedupe(ids)
}

// ModuleFor returns a plugin's loaded module.
func (r *Registry) ModuleFor(id string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// SetModule records a plugin's loaded module.
func (r *Registry) SetModule(id string, m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[id] = m
}

// RemoveModule evicts and returns a plugin's module. Builtin modules stay
// resident and are never returned.
func (r *Registry) RemoveModule(id string) (*Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok && e.Source == SourceBuiltin {
		return nil, false
	}
	m, ok := r.modules[id]
	if ok {
		delete(r.modules, id)
	}
	return m, ok
}

func appendUnique(list []string, id string) []string {
	if contains(list, id) {
		return list
	}
	return append(list, id)
}

func without(list []string, id string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = appendUnique(out, id)
	}
	return out
}
