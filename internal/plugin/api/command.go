package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/keybind"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
)

// Command errors.
var (
	ErrCommandExists   = errors.New("command already registered")
	ErrCommandNotFound = errors.New("command not found")
)

// CommandHandler runs a command.
type CommandHandler func(ctx context.Context, args map[string]any) (any, error)

// CommandInfo describes a registered command.
type CommandInfo struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Title string `json:"title"`
}

type commandEntry struct {
	info    CommandInfo
	handler CommandHandler
}

// CommandBus is the host-wide command table. Command ids are qualified as
// "pluginID:commandID".
type CommandBus struct {
	mu       sync.RWMutex
	commands map[string]commandEntry
}

// NewCommandBus creates an empty bus.
func NewCommandBus() *CommandBus {
	return &CommandBus{commands: make(map[string]commandEntry)}
}

// QualifiedCommand returns the bus id of a plugin command.
func QualifiedCommand(pluginID, commandID string) string {
	return pluginID + ":" + commandID
}

// Register adds a command. The returned Disposable removes it.
func (b *CommandBus) Register(info CommandInfo, h CommandHandler) (Disposable, error) {
	if info.ID == "" || h == nil {
		return nil, fmt.Errorf("command id and handler are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.commands[info.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrCommandExists, info.ID)
	}
	b.commands[info.ID] = commandEntry{info: info, handler: h}

	var once sync.Once
	return DisposeFunc(func() error {
		once.Do(func() { b.unregister(info.ID) })
		return nil
	}), nil
}

func (b *CommandBus) unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.commands, id)
}

// Execute runs a command. A panicking handler is reported as an error.
func (b *CommandBus) Execute(ctx context.Context, id string, args map[string]any) (result any, err error) {
	b.mu.RLock()
	entry, ok := b.commands[id]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, id)
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v", id, r)
		}
	}()
	return entry.handler(ctx, args)
}

// Has reports whether a command is registered.
func (b *CommandBus) Has(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.commands[id]
	return ok
}

// List returns every command sorted by id.
func (b *CommandBus) List() []CommandInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]CommandInfo, 0, len(b.commands))
	for _, e := range b.commands {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnregisterOwner removes every command owned by a plugin.
func (b *CommandBus) UnregisterOwner(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for id, e := range b.commands {
		if e.info.Owner == owner {
			delete(b.commands, id)
			n++
		}
	}
	return n
}

// Commands is the plugin-facing command namespace.
type Commands struct {
	pluginID string
	manifest *manifest.Manifest
	bus      *CommandBus
	keys     *keybind.Registry
	track    func(Disposable)
}

func (c *Commands) title(id string) string {
	for _, cmd := range c.manifest.Contributes.Commands {
		if cmd.ID == id {
			return cmd.Title
		}
	}
	return id
}

// Register binds a handler to one of the plugin's commands.
func (c *Commands) Register(id string, h CommandHandler) error {
	if c.bus == nil {
		return ErrUnavailable
	}
	d, err := c.bus.Register(CommandInfo{
		ID:    QualifiedCommand(c.pluginID, id),
		Owner: c.pluginID,
		Title: c.title(id),
	}, h)
	if err != nil {
		return err
	}
	c.track(d)
	return nil
}

// Execute runs a command. Unqualified ids refer to the plugin's own commands.
func (c *Commands) Execute(ctx context.Context, id string, args map[string]any) (any, error) {
	if c.bus == nil {
		return nil, ErrUnavailable
	}
	if !strings.Contains(id, ":") {
		id = QualifiedCommand(c.pluginID, id)
	}
	return c.bus.Execute(ctx, id, args)
}

// List returns every registered command.
func (c *Commands) List() []CommandInfo {
	if c.bus == nil {
		return nil
	}
	return c.bus.List()
}

// BindKey claims a key chord for one of the plugin's commands. Bindings are
// cleared when the plugin's last context goes away.
func (c *Commands) BindKey(id, keys string, global bool) error {
	if c.keys == nil {
		return ErrUnavailable
	}
	_, err := c.keys.Bind(keybind.Binding{
		PluginID:  c.pluginID,
		CommandID: id,
		Keys:      keys,
		Global:    global,
	})
	return err
}
