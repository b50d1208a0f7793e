package hook

import (
	"context"
	"fmt"
	"strings"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
)

// Namespace is the action prefix routed to plugins.
const Namespace = "plugin"

// NamespaceHandler runs actions of the form plugin.<pluginID>.<commandID>.
// Command ids may themselves contain dots.
type NamespaceHandler struct {
	bus *api.CommandBus
}

// NewNamespaceHandler creates a handler over bus.
func NewNamespaceHandler(bus *api.CommandBus) *NamespaceHandler {
	return &NamespaceHandler{bus: bus}
}

// Namespace returns the handled prefix.
func (h *NamespaceHandler) Namespace() string {
	return Namespace
}

// HandleAction runs action with args.
func (h *NamespaceHandler) HandleAction(ctx context.Context, action string, args map[string]any) Result {
	pluginID, commandID, err := ParseAction(action)
	if err != nil {
		return Result{Handled: true, Command: action, Err: err}
	}
	id := api.QualifiedCommand(pluginID, commandID)
	v, err := h.bus.Execute(ctx, id, args)
	return fromValue(id, v, err)
}

// CanHandle reports whether action names a registered command.
func (h *NamespaceHandler) CanHandle(action string) bool {
	pluginID, commandID, err := ParseAction(action)
	if err != nil {
		return false
	}
	return h.bus.Has(api.QualifiedCommand(pluginID, commandID))
}

// ParseAction splits plugin.<pluginID>.<commandID>.
func ParseAction(action string) (pluginID, commandID string, err error) {
	rest, ok := strings.CutPrefix(action, Namespace+".")
	if !ok {
		return "", "", fmt.Errorf("action %q does not start with %q", action, Namespace+".")
	}
	pluginID, commandID, ok = strings.Cut(rest, ".")
	if !ok || commandID == "" {
		return "", "", fmt.Errorf("action %q missing command name after plugin id", action)
	}
	if pluginID == "" {
		return "", "", fmt.Errorf("action %q has empty plugin id", action)
	}
	return pluginID, commandID, nil
}

// ActionName returns the action that runs a plugin command.
func ActionName(pluginID, commandID string) string {
	return Namespace + "." + pluginID + "." + commandID
}
