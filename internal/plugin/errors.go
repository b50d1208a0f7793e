package plugin

import (
	"errors"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/lua"
)

// Plugin host errors.
var (
	// ErrUnknownPlugin is returned for ids the registry has never seen.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrBuiltinReload is returned when hot reload targets a builtin plugin.
	ErrBuiltinReload = errors.New("builtin plugins cannot be hot-reloaded")

	// ErrSafeMode is returned when startup is skipped after repeated crashes.
	ErrSafeMode = errors.New("plugin host is in safe mode")

	// ErrNoEntryPoint is returned when a code plugin has no module to load.
	ErrNoEntryPoint = errors.New("plugin has no entry point")

	// ErrNotExported is returned when a loaded module exports nothing.
	ErrNotExported = lua.ErrNotExported

	// ErrAlreadyRegistered is returned when a builtin id is registered twice.
	ErrAlreadyRegistered = errors.New("plugin is already registered")
)
