package plugin

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/lua"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/theme"
)

// ModuleLoader loads the code of a third-party plugin. generation increases
// on every load of the same plugin and must defeat any cache of an earlier
// load.
type ModuleLoader interface {
	Load(e Entry, generation int) (*Module, error)
}

// LuaLoader loads a plugin's main file into a fresh Lua state.
type LuaLoader struct {
	Logger      zerolog.Logger
	CallTimeout time.Duration
}

// Load implements ModuleLoader.
func (l LuaLoader) Load(e Entry, generation int) (*Module, error) {
	if e.Manifest.Main == "" {
		return nil, fmt.Errorf("%w: %s declares no main", ErrNoEntryPoint, e.Manifest.ID)
	}

	opts := []lua.StateOption{lua.WithLogger(l.Logger.With().Str("plugin", e.Manifest.ID).Logger())}
	if l.CallTimeout > 0 {
		opts = append(opts, lua.WithCallTimeout(l.CallTimeout))
	}
	lm, err := lua.Load(filepath.Join(e.Path, filepath.FromSlash(e.Manifest.Main)), generation, opts...)
	if err != nil {
		return nil, err
	}

	mod := &Module{Components: lm.Components(), Close: lm.Close}
	if lm.HasActivate() {
		mod.Activate = func(_ *Context, a *api.API) error { return lm.Activate(a) }
	}
	if lm.HasDeactivate() {
		mod.Deactivate = lm.Deactivate
	}
	return mod, nil
}

// packModule is the synthetic module of a pack plugin: activating it
// registers the pack's themes, nothing else runs.
func packModule(m *manifest.Manifest, themes *theme.Registry) *Module {
	return &Module{
		Activate: func(*Context, *api.API) error {
			if themes == nil {
				return nil
			}
			_, err := themes.RegisterPack(m.ID, m.Contributes.Themes)
			return err
		},
	}
}
