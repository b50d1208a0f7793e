package api

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/theme"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/store"
)

// Storage is a per-plugin key/value area.
type Storage struct {
	pluginID string
	kv       store.KV
}

// Get returns a stored value.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	if s.kv == nil {
		return "", false, ErrUnavailable
	}
	v, err := s.kv.Get(ctx, store.DataKey(s.pluginID, key))
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

// Set stores a value.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	if s.kv == nil {
		return ErrUnavailable
	}
	return s.kv.Set(ctx, store.DataKey(s.pluginID, key), []byte(value))
}

// Delete removes a value.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if s.kv == nil {
		return ErrUnavailable
	}
	return s.kv.Delete(ctx, store.DataKey(s.pluginID, key))
}

// Keys returns the plugin's keys, sorted.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	if s.kv == nil {
		return nil, ErrUnavailable
	}
	prefix := store.DataPrefix(s.pluginID)
	full, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(full))
	for i, k := range full {
		keys[i] = strings.TrimPrefix(k, prefix)
	}
	return keys, nil
}

// Level is a notification severity.
type Level string

// Notification levels.
const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a message shown to the user.
type Notification struct {
	PluginID string
	Level    Level
	Message  string
}

// Notifier displays notifications.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(n Notification) {
	ev := l.Logger.Info()
	switch n.Level {
	case LevelWarning:
		ev = l.Logger.Warn()
	case LevelError:
		ev = l.Logger.Error()
	}
	ev.Str("plugin", n.PluginID).Msg(n.Message)
}

// Notifications is the plugin-facing notification namespace.
type Notifications struct {
	pluginID string
	notifier Notifier
}

// Notify shows a message at the given level.
func (n *Notifications) Notify(level Level, message string) {
	n.notifier.Notify(Notification{PluginID: n.pluginID, Level: level, Message: message})
}

// Info shows an informational message.
func (n *Notifications) Info(message string) { n.Notify(LevelInfo, message) }

// Warn shows a warning.
func (n *Notifications) Warn(message string) { n.Notify(LevelWarning, message) }

// Error shows an error.
func (n *Notifications) Error(message string) { n.Notify(LevelError, message) }

// Logging writes to the host log under the plugin's name.
type Logging struct {
	log zerolog.Logger
}

// Debug logs at debug level.
func (l *Logging) Debug(msg string) { l.log.Debug().Msg(msg) }

// Info logs at info level.
func (l *Logging) Info(msg string) { l.log.Info().Msg(msg) }

// Warn logs at warn level.
func (l *Logging) Warn(msg string) { l.log.Warn().Msg(msg) }

// Error logs at error level.
func (l *Logging) Error(msg string) { l.log.Error().Msg(msg) }

// Navigator moves the host UI.
type Navigator interface {
	OpenProject(projectID string) error
	FocusPlugin(pluginID, projectID string) error
	OpenFile(path string) error
}

// Navigation is the plugin-facing navigation namespace.
type Navigation struct {
	pluginID string
	nav      Navigator
}

// OpenProject switches to a project.
func (n *Navigation) OpenProject(projectID string) error {
	if n.nav == nil {
		return ErrUnavailable
	}
	return n.nav.OpenProject(projectID)
}

// Focus brings the plugin's own surface forward.
func (n *Navigation) Focus(projectID string) error {
	if n.nav == nil {
		return ErrUnavailable
	}
	return n.nav.FocusPlugin(n.pluginID, projectID)
}

// OpenFile opens a file in the host.
func (n *Navigation) OpenFile(path string) error {
	if n.nav == nil {
		return ErrUnavailable
	}
	return n.nav.OpenFile(path)
}

// Themes reads and selects registered themes.
type Themes struct {
	registry *theme.Registry
}

// List returns every registered theme.
func (t *Themes) List() []*theme.Theme {
	if t.registry == nil {
		return nil
	}
	return t.registry.List()
}

// Active returns the active theme.
func (t *Themes) Active() (*theme.Theme, bool) {
	if t.registry == nil {
		return nil, false
	}
	return t.registry.Active()
}

// Apply selects the active theme.
func (t *Themes) Apply(id string) error {
	if t.registry == nil {
		return ErrUnavailable
	}
	return t.registry.SetActive(id)
}
