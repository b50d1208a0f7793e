package hook

import (
	"context"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/keybind"
)

// KeyHandler runs the command bound to a key chord.
type KeyHandler struct {
	keys *keybind.Registry
	bus  *api.CommandBus
}

// NewKeyHandler creates a handler over a binding registry and command bus.
func NewKeyHandler(keys *keybind.Registry, bus *api.CommandBus) *KeyHandler {
	return &KeyHandler{keys: keys, bus: bus}
}

// HandleKey runs the command bound to chord. While a text field has focus
// only global bindings fire. Chords bound to commands that are no longer
// registered are reported as not handled.
func (h *KeyHandler) HandleKey(ctx context.Context, chord string, textFocused bool) Result {
	b, ok := h.keys.Lookup(chord)
	if !ok {
		return notHandled()
	}
	if textFocused && !b.Global {
		return notHandled()
	}

	id := api.QualifiedCommand(b.PluginID, b.CommandID)
	if !h.bus.Has(id) {
		return notHandled()
	}
	v, err := h.bus.Execute(ctx, id, map[string]any{"keys": b.Keys})
	return fromValue(id, v, err)
}

// CanHandle reports whether chord would run a command.
func (h *KeyHandler) CanHandle(chord string, textFocused bool) bool {
	b, ok := h.keys.Lookup(chord)
	if !ok || (textFocused && !b.Global) {
		return false
	}
	return h.bus.Has(api.QualifiedCommand(b.PluginID, b.CommandID))
}
