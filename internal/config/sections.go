package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PluginsConfig locates plugins and tunes their runtime.
type PluginsConfig struct {
	Dirs            []string
	MarketplaceDirs []string
	Watch           bool
	WatchDelay      time.Duration
	CallTimeout     time.Duration
}

// StoreConfig locates the persistent key/value store. An empty Path or
// ":memory:" keeps state in memory.
type StoreConfig struct {
	Path string
}

// InMemory reports whether state is not persisted.
func (s StoreConfig) InMemory() bool {
	return s.Path == "" || s.Path == ":memory:"
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string
	Format string // auto, console or json
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// Project is a project open at startup.
type Project struct {
	ID   string
	Path string
}

// Plugins returns the plugins section.
func (c *Config) Plugins() PluginsConfig {
	var p PluginsConfig
	p.Dirs = expandAll(c.stringSlice("plugins.dirs"))
	p.MarketplaceDirs = expandAll(c.stringSlice("plugins.marketplaceDirs"))
	p.Watch, _ = c.GetBool("plugins.watch")
	p.WatchDelay, _ = c.GetDuration("plugins.watchDelay")
	p.CallTimeout, _ = c.GetDuration("plugins.callTimeout")
	return p
}

// Store returns the store section.
func (c *Config) Store() StoreConfig {
	path, _ := c.GetString("store.path")
	if path != ":memory:" {
		path = expandHome(path)
	}
	return StoreConfig{Path: path}
}

// Logging returns the logging section.
func (c *Config) Logging() LoggingConfig {
	level, _ := c.GetString("logging.level")
	format, _ := c.GetString("logging.format")
	return LoggingConfig{Level: level, Format: format}
}

// Metrics returns the metrics section.
func (c *Config) Metrics() MetricsConfig {
	addr, _ := c.GetString("metrics.addr")
	return MetricsConfig{Addr: addr}
}

// Projects returns the projects opened at startup. Entries without an id
// or path are skipped; Validate reports them.
func (c *Config) Projects() []Project {
	v, err := c.Get("projects")
	if err != nil {
		return nil
	}
	list, _ := v.([]any)
	var out []Project
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		path, _ := m["path"].(string)
		if id == "" || path == "" {
			continue
		}
		out = append(out, Project{ID: id, Path: expandHome(path)})
	}
	return out
}

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(path, format string, args ...any) {
		errs = append(errs, &FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	for _, path := range []string{"plugins.dirs", "plugins.marketplaceDirs"} {
		if _, err := c.GetStringSlice(path); err != nil && !errors.Is(err, ErrSettingNotFound) {
			bad(path, "must be a list of paths")
		}
	}
	if _, err := c.GetBool("plugins.watch"); err != nil {
		bad("plugins.watch", "must be true or false")
	}
	for _, path := range []string{"plugins.watchDelay", "plugins.callTimeout"} {
		d, err := c.GetDuration(path)
		if err != nil {
			bad(path, "must be a duration such as \"300ms\"")
		} else if d < 0 {
			bad(path, "must not be negative")
		}
	}

	lc := c.Logging()
	if _, err := zerolog.ParseLevel(strings.ToLower(lc.Level)); err != nil || lc.Level == "" {
		bad("logging.level", "unknown level %q", lc.Level)
	}
	switch lc.Format {
	case "auto", "console", "json":
	default:
		bad("logging.format", "must be auto, console or json, got %q", lc.Format)
	}

	if v, err := c.Get("projects"); err == nil {
		list, ok := v.([]any)
		if !ok {
			bad("projects", "must be a list of {id, path} tables")
		}
		seen := map[string]bool{}
		for i, item := range list {
			m, _ := item.(map[string]any)
			id, _ := m["id"].(string)
			path, _ := m["path"].(string)
			switch {
			case id == "" || path == "":
				bad(fmt.Sprintf("projects[%d]", i), "needs both id and path")
			case seen[id]:
				bad(fmt.Sprintf("projects[%d]", i), "duplicate id %q", id)
			}
			seen[id] = true
		}
	}

	return errors.Join(errs...)
}

func (c *Config) stringSlice(path string) []string {
	s, _ := c.GetStringSlice(path)
	return s
}

func expandAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, expandHome(p))
	}
	return out
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
