// Package lua runs third-party plugin modules on gopher-lua.
//
// # Loading
//
// Load compiles a plugin's entry file into a brand new State every time it
// is called. The chunk is named "<path>?v=<generation>", so stack traces say
// which generation of the file produced them and no state ever outlives the
// module it was created for:
//
//	mod, err := lua.Load("/plugins/notes/main.lua", 3, lua.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer mod.Close()
//
// A module exports its hooks either by returning a table
//
//	local M = {}
//	function M.activate(ctx, api) ... end
//	function M.deactivate() ... end
//	return M
//
// or by defining activate and deactivate as globals. A chunk that does
// neither fails with ErrNotExported.
//
// # Sandbox
//
// Only the base, table, string and math libraries are opened. dofile,
// loadfile, load and loadstring are removed, require only returns the
// opened libraries and print goes to the plugin log.
//
// # API table
//
// activate receives a context table and an api table mirroring the
// namespaces of the plugin's api.API. Namespaces the plugin was not granted
// are absent, so `if api.files then ... end` is the way to check for them.
// Host callbacks into Lua (commands, events, file watches) are serialized on
// the state and bounded by the call timeout.
package lua
