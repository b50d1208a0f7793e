// Package keybind tracks keyboard shortcuts claimed by plugin commands.
package keybind

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrConflict is returned when a chord is already bound by another command.
var ErrConflict = errors.New("key binding already in use")

// Binding maps a chord to a plugin command.
type Binding struct {
	PluginID  string
	CommandID string
	Keys      string // canonical chord
	Global    bool   // fires while a text field has focus
	Default   bool   // wired from the manifest rather than by the plugin
}

// Registry holds the active bindings of all plugins.
type Registry struct {
	mu     sync.RWMutex
	byKeys map[string]Binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKeys: make(map[string]Binding)}
}

// Bind claims b.Keys for a command. Rebinding the same command replaces its
// previous chord.
func (r *Registry) Bind(b Binding) (Binding, error) {
	keys, err := Normalize(b.Keys)
	if err != nil {
		return Binding{}, err
	}
	b.Keys = keys

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byKeys[keys]; ok && (cur.PluginID != b.PluginID || cur.CommandID != b.CommandID) {
		return Binding{}, fmt.Errorf("%w: %s is bound to %s:%s", ErrConflict, keys, cur.PluginID, cur.CommandID)
	}

	for k, cur := range r.byKeys {
		if cur.PluginID == b.PluginID && cur.CommandID == b.CommandID {
			delete(r.byKeys, k)
		}
	}
	r.byKeys[keys] = b
	return b, nil
}

// Unbind removes the binding of one command.
func (r *Registry) Unbind(pluginID, commandID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, cur := range r.byKeys {
		if cur.PluginID == pluginID && cur.CommandID == commandID {
			delete(r.byKeys, k)
			return true
		}
	}
	return false
}

// HasBinding reports whether the command already has a binding.
func (r *Registry) HasBinding(pluginID, commandID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cur := range r.byKeys {
		if cur.PluginID == pluginID && cur.CommandID == commandID {
			return true
		}
	}
	return false
}

// ClearPlugin removes every binding owned by a plugin and returns the count.
func (r *Registry) ClearPlugin(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k, cur := range r.byKeys {
		if cur.PluginID == pluginID {
			delete(r.byKeys, k)
			n++
		}
	}
	return n
}

// Lookup returns the binding for a chord.
func (r *Registry) Lookup(keys string) (Binding, bool) {
	norm, err := Normalize(keys)
	if err != nil {
		return Binding{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byKeys[norm]
	return b, ok
}

// ForPlugin returns a plugin's bindings sorted by chord.
func (r *Registry) ForPlugin(pluginID string) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Binding
	for _, b := range r.byKeys {
		if b.PluginID == pluginID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keys < out[j].Keys })
	return out
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKeys)
}
