// Package plugin hosts third-party and builtin plugins.
//
// Plugins can:
//   - Contribute tabs, rail items, commands, settings and help topics
//   - Register commands and key bindings
//   - Subscribe to host events
//   - Read and write files inside their project or declared external roots
//   - Run allowlisted executables and query git
//   - Persist private key/value data
//
// Every capability beyond the basics is declared in the manifest and checked
// on each call.
//
// # Quick Start
//
// The Host type wires discovery, the registry and the orchestrator:
//
//	host := plugin.NewHost(
//	    plugin.WithServices(api.Services{Logger: log}),
//	    plugin.WithStore(kv),
//	    plugin.WithFeed(discovery.NewDirFeed(discovery.WithDirs(dirs...))),
//	)
//	builtin.RegisterAll(host)
//	if _, err := host.Discover(ctx); err != nil {
//	    return err
//	}
//	if err := host.Start(ctx, projects); errors.Is(err, plugin.ErrSafeMode) {
//	    // previous startups crashed; plugins stay off until ExitSafeMode
//	}
//	defer host.Shutdown(context.Background())
//
// # Plugin Structure
//
//	~/.config/plughost/plugins/notes/
//	├── plugin.json      # Manifest
//	└── main.lua         # Entry point named by "main"
//
// Pack plugins ("kind": "pack") carry no code. Activating one registers the
// themes it contributes.
//
// # Contexts
//
// A running plugin instance is a Context, keyed by the plugin id at
// application scope and by "pluginID:projectID" inside a project. A dual
// plugin may run in both at once. Everything a plugin registers through its
// API is tracked by its context and released, newest first, when the
// context is destroyed. The plugin's deactivate hook runs only when its last
// context goes away.
//
// # Statuses
//
//	registered    known and valid
//	activated     at least one context is running
//	deactivated   the last context was torn down
//	disabled      switched off by the user
//	errored       activation failed; skipped until enabled again
//	incompatible  manifest rejected; skipped
//	reactivating  hot reload is restoring contexts
//
// # Safe Mode
//
// The startup batch is bracketed by a persisted marker. If two startups in a
// row never cleared it, the next one activates nothing and reports
// ErrSafeMode.
//
// # Hot Reload
//
// HotReload (or Host.Watch) tears down every context of a third-party
// plugin, re-validates its manifest, loads a fresh module generation and
// restores the captured contexts one by one. Builtin plugins cannot be
// reloaded.
package plugin
