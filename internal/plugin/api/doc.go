// Package api builds the capability-scoped object handed to each plugin
// context.
//
// New returns an *API whose namespaces are non-nil only when the plugin's
// manifest grants the matching permission and the context's mode allows it:
//
//	context        always
//	settings       always
//	project        project mode only
//	projects       "projects" (+ "projects.cross-project" to read files)
//	files          "files"; "files.external" widens the root set
//	git            "git"
//	process        "process", limited to allowedCommands
//	storage        "storage"
//	notifications  "notifications"
//	commands       "commands"
//	events         "events"
//	logging        "logging"
//	navigation     "navigation"
//	themes         "themes"
//
// Namespaces reports exactly the exposed set, so a plugin (or the Lua
// binding) can feature-test instead of catching errors.
//
// # Disposal
//
// Anything a namespace registers on the plugin's behalf (commands, event
// subscriptions, file watches, key bindings) is handed to Binding.Track and
// released when the owning context is destroyed.
//
// # Versions
//
// Surface returns the frozen method set of each supported API version.
// Versions only ever add methods.
package api
