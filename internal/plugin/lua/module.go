package lua

import (
	"bytes"
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
)

// Module is a loaded Lua plugin entry file. Each Load builds a new state, so
// a module never shares globals or upvalues with an earlier generation of the
// same file.
type Module struct {
	Path       string
	Generation int

	state      *State
	activate   *lua.LFunction
	deactivate *lua.LFunction
	components map[string]any
}

// ChunkName returns the name the entry file was compiled under.
func ChunkName(path string, generation int) string {
	return fmt.Sprintf("%s?v=%d", path, generation)
}

// Load reads and runs the entry file at path in a fresh state. The hooks are
// taken from the table the chunk returns or, failing that, from the
// activate/deactivate globals.
func Load(path string, generation int, opts ...StateOption) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}

	s := NewState(opts...)
	results, err := s.Run(bytes.NewReader(src), ChunkName(path, generation))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("load module %s: %w", path, err)
	}

	m := &Module{Path: path, Generation: generation, state: s}

	var exported lua.LValue = lua.LNil
	if len(results) > 0 {
		exported = results[0]
	}
	switch v := exported.(type) {
	case *lua.LTable:
		m.activate, _ = v.RawGetString("activate").(*lua.LFunction)
		m.deactivate, _ = v.RawGetString("deactivate").(*lua.LFunction)
		m.components = exportedComponents(v)
	case *lua.LNilType:
		m.activate, _ = s.Global("activate").(*lua.LFunction)
		m.deactivate, _ = s.Global("deactivate").(*lua.LFunction)
		if m.activate == nil && m.deactivate == nil {
			s.Close()
			return nil, fmt.Errorf("%w: %s", ErrNotExported, path)
		}
	default:
		s.Close()
		return nil, fmt.Errorf("%w: %s returned %s", ErrNotExported, path, exported.Type())
	}
	return m, nil
}

// exportedComponents collects the non-hook fields of a module table.
func exportedComponents(t *lua.LTable) map[string]any {
	out := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || name == "activate" || name == "deactivate" {
			return
		}
		if _, fn := v.(*lua.LFunction); fn {
			return
		}
		out[string(name)] = toGo(v)
	})
	return out
}

// HasActivate reports whether the module defines an activation hook.
func (m *Module) HasActivate() bool { return m.activate != nil }

// HasDeactivate reports whether the module defines a deactivation hook.
func (m *Module) HasDeactivate() bool { return m.deactivate != nil }

// Components returns the module's exported non-function values.
func (m *Module) Components() map[string]any { return m.components }

// Activate calls activate(ctx, api) with a Lua view of a.
func (m *Module) Activate(a *api.API) error {
	if m.activate == nil {
		return nil
	}
	var ctxTable, apiTable *lua.LTable
	if err := m.state.do(func(L *lua.LState) error {
		ctxTable = contextTable(L, a)
		apiTable = bindAPI(L, m.state, a)
		return nil
	}); err != nil {
		return err
	}
	_, err := m.state.Invoke(m.activate, ctxTable, apiTable)
	return err
}

// Deactivate calls deactivate().
func (m *Module) Deactivate() error {
	if m.deactivate == nil {
		return nil
	}
	_, err := m.state.Invoke(m.deactivate)
	return err
}

// Close releases the module's state.
func (m *Module) Close() error {
	return m.state.Close()
}
