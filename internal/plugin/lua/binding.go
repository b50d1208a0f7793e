package lua

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
)

// raise turns a Go error into a Lua error. Plugins catch it with pcall.
func raise(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
}

// ret pushes v and returns 1, or raises err.
func ret(L *lua.LState, v any, err error) int {
	raise(L, err)
	L.Push(toLua(L, v))
	return 1
}

// contextTable builds the first argument of activate.
func contextTable(L *lua.LState, a *api.API) *lua.LTable {
	t := L.NewTable()
	c := a.Context
	t.RawSetString("pluginId", lua.LString(c.PluginID()))
	t.RawSetString("instanceId", lua.LString(c.InstanceID()))
	t.RawSetString("mode", lua.LString(c.Mode()))
	t.RawSetString("apiVersion", lua.LNumber(c.APIVersion()))
	if c.ProjectID() != "" {
		t.RawSetString("projectId", lua.LString(c.ProjectID()))
	}
	return t
}

// bindAPI builds the Lua view of a. Only the namespaces a exposes appear in
// the table. Commands and events are limited to registration: a callback
// runs with the state locked and must not call back into the same state.
func bindAPI(L *lua.LState, s *State, a *api.API) *lua.LTable {
	t := L.NewTable()
	ns := func(name string, funcs map[string]lua.LGFunction) {
		t.RawSetString(name, L.SetFuncs(L.NewTable(), funcs))
	}
	bg := context.Background()

	t.RawSetString("context", contextTable(L, a))
	bindSettings(L, t, a.Settings)

	if p := a.Project; p != nil {
		pt := L.NewTable()
		pt.RawSetString("id", lua.LString(p.ID()))
		pt.RawSetString("path", lua.LString(p.Path()))
		pt.RawSetString("name", lua.LString(p.Name()))
		t.RawSetString("project", pt)
	}

	if p := a.Projects; p != nil {
		ns("projects", map[string]lua.LGFunction{
			"list": func(L *lua.LState) int { return ret(L, p.List(), nil) },
			"readFile": func(L *lua.LState) int {
				data, err := p.ReadFile(L.CheckString(1), L.CheckString(2))
				return ret(L, data, err)
			},
		})
	}

	if f := a.Files; f != nil {
		ns("files", map[string]lua.LGFunction{
			"read": func(L *lua.LState) int {
				data, err := f.Read(L.CheckString(1))
				return ret(L, data, err)
			},
			"write": func(L *lua.LState) int {
				raise(L, f.Write(L.CheckString(1), L.CheckString(2)))
				return 0
			},
			"exists": func(L *lua.LState) int {
				ok, err := f.Exists(L.CheckString(1))
				return ret(L, ok, err)
			},
			"list": func(L *lua.LState) int {
				names, err := f.List(L.OptString(1, "."))
				return ret(L, names, err)
			},
			"watch": func(L *lua.LState) int {
				fn := L.CheckFunction(2)
				_, err := f.Watch(L.CheckString(1), func(paths []string) {
					if _, err := s.Callback(bg, fn, paths); err != nil {
						s.log.Warn().Err(err).Msg("watch callback failed")
					}
				})
				raise(L, err)
				return 0
			},
		})
	}

	if g := a.Git; g != nil {
		ns("git", map[string]lua.LGFunction{
			"branch": func(L *lua.LState) int {
				b, err := g.Branch(bg)
				return ret(L, b, err)
			},
			"status": func(L *lua.LState) int {
				st, err := g.Status(bg)
				return ret(L, st, err)
			},
			"log": func(L *lua.LState) int {
				commits, err := g.Log(bg, L.OptInt(1, 10))
				return ret(L, commits, err)
			},
		})
	}

	if p := a.Process; p != nil {
		ns("process", map[string]lua.LGFunction{
			"run": func(L *lua.LState) int {
				name := L.CheckString(1)
				args := make([]string, 0, L.GetTop())
				for i := 2; i <= L.GetTop(); i++ {
					args = append(args, L.CheckString(i))
				}
				res, err := p.Run(bg, name, args...)
				return ret(L, res, err)
			},
		})
	}

	if st := a.Storage; st != nil {
		ns("storage", map[string]lua.LGFunction{
			"get": func(L *lua.LState) int {
				v, ok, err := st.Get(bg, L.CheckString(1))
				raise(L, err)
				if !ok {
					L.Push(lua.LNil)
					return 1
				}
				L.Push(lua.LString(v))
				return 1
			},
			"set": func(L *lua.LState) int {
				raise(L, st.Set(bg, L.CheckString(1), L.CheckString(2)))
				return 0
			},
			"delete": func(L *lua.LState) int {
				raise(L, st.Delete(bg, L.CheckString(1)))
				return 0
			},
			"keys": func(L *lua.LState) int {
				keys, err := st.Keys(bg)
				return ret(L, keys, err)
			},
		})
	}

	if n := a.Notifications; n != nil {
		ns("notifications", map[string]lua.LGFunction{
			"info":  func(L *lua.LState) int { n.Info(L.CheckString(1)); return 0 },
			"warn":  func(L *lua.LState) int { n.Warn(L.CheckString(1)); return 0 },
			"error": func(L *lua.LState) int { n.Error(L.CheckString(1)); return 0 },
		})
	}

	if c := a.Commands; c != nil {
		ns("commands", map[string]lua.LGFunction{
			"register": func(L *lua.LState) int {
				id, fn := L.CheckString(1), L.CheckFunction(2)
				raise(L, c.Register(id, func(ctx context.Context, args map[string]any) (any, error) {
					out, err := s.Callback(ctx, fn, args)
					if err != nil || len(out) == 0 {
						return nil, err
					}
					return out[0], nil
				}))
				return 0
			},
			"list": func(L *lua.LState) int { return ret(L, c.List(), nil) },
			"bindKey": func(L *lua.LState) int {
				raise(L, c.BindKey(L.CheckString(1), L.CheckString(2), L.OptBool(3, false)))
				return 0
			},
		})
	}

	if e := a.Events; e != nil {
		ns("events", map[string]lua.LGFunction{
			"on": func(L *lua.LState) int {
				event, fn := L.CheckString(1), L.CheckFunction(2)
				_, err := e.On(event, func(data map[string]any) {
					if _, err := s.Callback(bg, fn, data); err != nil {
						s.log.Warn().Err(err).Str("event", event).Msg("event handler failed")
					}
				})
				raise(L, err)
				return 0
			},
		})
	}

	if lg := a.Logging; lg != nil {
		ns("logging", map[string]lua.LGFunction{
			"debug": func(L *lua.LState) int { lg.Debug(L.CheckString(1)); return 0 },
			"info":  func(L *lua.LState) int { lg.Info(L.CheckString(1)); return 0 },
			"warn":  func(L *lua.LState) int { lg.Warn(L.CheckString(1)); return 0 },
			"error": func(L *lua.LState) int { lg.Error(L.CheckString(1)); return 0 },
		})
	}

	if nav := a.Navigation; nav != nil {
		ns("navigation", map[string]lua.LGFunction{
			"openProject": func(L *lua.LState) int {
				raise(L, nav.OpenProject(L.CheckString(1)))
				return 0
			},
			"focus": func(L *lua.LState) int {
				raise(L, nav.Focus(L.OptString(1, "")))
				return 0
			},
			"openFile": func(L *lua.LState) int {
				raise(L, nav.OpenFile(L.CheckString(1)))
				return 0
			},
		})
	}

	if th := a.Themes; th != nil {
		ns("themes", map[string]lua.LGFunction{
			"list": func(L *lua.LState) int { return ret(L, th.List(), nil) },
			"active": func(L *lua.LState) int {
				cur, ok := th.Active()
				if !ok {
					L.Push(lua.LNil)
					return 1
				}
				return ret(L, cur, nil)
			},
			"apply": func(L *lua.LState) int {
				raise(L, th.Apply(L.CheckString(1)))
				return 0
			},
		})
	}

	return t
}

func bindSettings(L *lua.LState, t *lua.LTable, st *api.Settings) {
	t.RawSetString("settings", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"get": func(L *lua.LState) int {
			v, _ := st.Get(L.CheckString(1))
			return ret(L, v, nil)
		},
		"set": func(L *lua.LState) int {
			raise(L, st.Set(L.CheckString(1), toGo(L.Get(2))))
			return 0
		},
		"all": func(L *lua.LState) int { return ret(L, st.All(), nil) },
	}))
}
