// Package config loads the plugin host's configuration.
//
// Settings are layered, later layers winning:
//
//  1. Built-in defaults
//  2. User config: $XDG_CONFIG_HOME/plughost/config.{toml,yaml}
//  3. Project config: <project>/.plughost/config.{toml,yaml}
//  4. An explicit file passed with WithFile
//  5. PLUGHOST_* environment variables
//
// A config file looks like:
//
//	[plugins]
//	dirs = ["~/.config/plughost/plugins"]
//	marketplaceDirs = ["~/.local/share/plughost/marketplace"]
//	watch = true
//	watchDelay = "300ms"
//	callTimeout = "5s"
//
//	[store]
//	path = "~/.local/share/plughost/state.db"
//
//	[logging]
//	level = "info"
//	format = "auto"
//
//	[metrics]
//	addr = ":9464"
//
//	[[projects]]
//	id = "web"
//	path = "~/src/web"
//
// Values are read by dotted path (GetString("logging.level")) or through the
// typed section accessors (Plugins, Store, Logging, Metrics, Projects).
package config
