// Package theme holds colour themes contributed by pack plugins.
package theme

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
)

// Theme errors.
var (
	ErrThemeNotFound = errors.New("theme not found")
	ErrInvalidColor  = errors.New("invalid theme colour")
)

// Theme is a registered palette. Its ID is namespaced by the owning plugin.
type Theme struct {
	ID       string
	PluginID string
	Name     string
	Type     string
	Colors   map[string]string // canonical lowercase #rrggbb
}

// QualifiedID returns the registry id of a theme contributed by pluginID.
func QualifiedID(pluginID, themeID string) string {
	return pluginID + ":" + themeID
}

// Color returns a named colour.
func (t *Theme) Color(name string) (colorful.Color, bool) {
	hex, ok := t.Colors[name]
	if !ok {
		return colorful.Color{}, false
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}, false
	}
	return c, true
}

// Contrast returns the lightness difference between two named colours in
// CIE L*a*b* space, in the range [0, 1].
func (t *Theme) Contrast(a, b string) (float64, bool) {
	ca, ok := t.Color(a)
	if !ok {
		return 0, false
	}
	cb, ok := t.Color(b)
	if !ok {
		return 0, false
	}
	la, _, _ := ca.Lab()
	lb, _, _ := cb.Lab()
	d := la - lb
	if d < 0 {
		d = -d
	}
	return d, true
}

// Registry stores themes by qualified id.
type Registry struct {
	mu     sync.RWMutex
	themes map[string]*Theme
	active string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{themes: make(map[string]*Theme)}
}

// RegisterPack registers every theme a pack contributes. Either all themes
// are registered or none are.
func (r *Registry) RegisterPack(pluginID string, contribs []manifest.ThemeContribution) ([]string, error) {
	themes := make([]*Theme, 0, len(contribs))
	for _, c := range contribs {
		t := &Theme{
			ID:       QualifiedID(pluginID, c.ID),
			PluginID: pluginID,
			Name:     c.Name,
			Type:     c.Type,
			Colors:   make(map[string]string, len(c.Colors)),
		}
		for name, hex := range c.Colors {
			col, err := colorful.Hex(strings.TrimSpace(hex))
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s = %q", ErrInvalidColor, t.ID, name, hex)
			}
			t.Colors[name] = col.Hex()
		}
		themes = append(themes, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(themes))
	for _, t := range themes {
		r.themes[t.ID] = t
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// UnregisterPlugin removes every theme owned by a plugin and returns the
// count. The active theme is cleared if it belonged to the plugin.
func (r *Registry) UnregisterPlugin(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, t := range r.themes {
		if t.PluginID == pluginID {
			delete(r.themes, id)
			n++
		}
	}
	if _, ok := r.themes[r.active]; !ok {
		r.active = ""
	}
	return n
}

// Get returns a theme by qualified id.
func (r *Registry) Get(id string) (*Theme, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.themes[id]
	return t, ok
}

// List returns all themes sorted by id.
func (r *Registry) List() []*Theme {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Theme, 0, len(r.themes))
	for _, t := range r.themes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetActive selects the active theme.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.themes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrThemeNotFound, id)
	}
	r.active = id
	return nil
}

// Active returns the active theme, if any.
func (r *Registry) Active() (*Theme, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.themes[r.active]
	return t, ok
}
