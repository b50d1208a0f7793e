package lua

import (
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
)

// removedGlobals load code from disk or strings and would bypass the
// per-generation chunk naming.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "module"}

// requirable lists the modules require may return. They are already open as
// globals; require only hands them back.
var requirable = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// installSandbox strips loaders, replaces require with a whitelist and
// routes print to the plugin log.
func installSandbox(L *lua.LState, log zerolog.Logger) {
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !requirable[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(L.GetGlobal(name))
		return 1
	}))

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		log.Info().Str("source", "lua").Msg(strings.Join(parts, "\t"))
		return 0
	}))
}
