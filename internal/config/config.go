package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/config/loader"
)

// maxIncludeDepth bounds nested include directives.
const maxIncludeDepth = 8

// Config holds the merged host configuration. It is safe for concurrent use.
type Config struct {
	mu      sync.RWMutex
	data    map[string]any
	sources []string

	fs         loader.FileSystem
	env        *loader.EnvLoader
	userDir    string
	projectDir string
	file       string
}

// Option configures a Config.
type Option func(*Config)

// WithUserConfigDir overrides the user config directory.
func WithUserConfigDir(dir string) Option {
	return func(c *Config) {
		c.userDir = dir
	}
}

// WithProjectConfigDir sets the project root whose .plughost directory is
// consulted.
func WithProjectConfigDir(dir string) Option {
	return func(c *Config) {
		c.projectDir = dir
	}
}

// WithFile layers an explicit config file above the user and project
// files. Unlike those, it must exist.
func WithFile(path string) Option {
	return func(c *Config) {
		c.file = path
	}
}

// WithFileSystem replaces the OS file system.
func WithFileSystem(fs loader.FileSystem) Option {
	return func(c *Config) {
		c.fs = fs
	}
}

// WithEnvLoader replaces the environment layer.
func WithEnvLoader(l *loader.EnvLoader) Option {
	return func(c *Config) {
		c.env = l
	}
}

// New creates a Config holding the defaults. Call Load to read files and
// the environment.
func New(opts ...Option) *Config {
	c := &Config{
		fs:      loader.DefaultFS(),
		env:     loader.NewEnvLoader(loader.EnvPrefix),
		userDir: defaultUserConfigDir(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.data = defaultConfig(c.userDir)
	return c
}

// Load rebuilds the configuration from every layer.
func (c *Config) Load(ctx context.Context) error {
	data := defaultConfig(c.userDir)
	var sources []string

	layer := func(path string, required bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if required {
			if _, err := c.fs.Stat(path); err != nil {
				return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
		}
		m, err := loader.LoadWithIncludes(loader.ForPath(c.fs, path), path, maxIncludeDepth)
		if err != nil {
			return err
		}
		if m != nil {
			data = loader.DeepMerge(data, m)
			sources = append(sources, path)
		}
		return nil
	}

	if c.userDir != "" {
		if path := loader.Find(c.fs, c.userDir); path != "" {
			if err := layer(path, false); err != nil {
				return err
			}
		}
	}
	if c.projectDir != "" {
		if path := loader.Find(c.fs, filepath.Join(c.projectDir, ".plughost")); path != "" {
			if err := layer(path, false); err != nil {
				return err
			}
		}
	}
	if c.file != "" {
		if err := layer(c.file, true); err != nil {
			return err
		}
	}
	if c.env != nil {
		m, err := c.env.Load()
		if err != nil {
			return fmt.Errorf("loading environment: %w", err)
		}
		if len(m) > 0 {
			data = loader.DeepMerge(data, m)
			sources = append(sources, "env")
		}
	}

	c.mu.Lock()
	c.data = data
	c.sources = sources
	c.mu.Unlock()
	return nil
}

// Sources lists the files (and "env") that contributed to the last Load.
func (c *Config) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.sources...)
}

// Merged returns a deep copy of the merged settings.
func (c *Config) Merged() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return loader.Clone(c.data)
}

// Set overrides a setting in memory.
func (c *Config) Set(path string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	setPath(c.data, path, value)
}

// Get returns the raw value at path.
func (c *Config) Get(path string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := getPath(c.data, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSettingNotFound, path)
	}
	return v, nil
}

// GetString returns a string setting.
func (c *Config) GetString(path string) (string, error) {
	v, err := c.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return s, nil
}

// GetInt returns an integer setting.
func (c *Config) GetInt(path string) (int, error) {
	v, err := c.Get(path)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, &TypeError{Path: path, Expected: "int", Actual: typeName(v)}
}

// GetBool returns a boolean setting.
func (c *Config) GetBool(path string) (bool, error) {
	v, err := c.Get(path)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// GetDuration returns a duration setting written as a Go duration string
// ("300ms") or as whole milliseconds.
func (c *Config) GetDuration(path string) (time.Duration, error) {
	v, err := c.Get(path)
	if err != nil {
		return 0, err
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, &TypeError{Path: path, Expected: "duration", Actual: fmt.Sprintf("%q", d)}
		}
		return parsed, nil
	case int64:
		return time.Duration(d) * time.Millisecond, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	}
	return 0, &TypeError{Path: path, Expected: "duration", Actual: typeName(v)}
}

// GetStringSlice returns a list of strings.
func (c *Config) GetStringSlice(path string) ([]string, error) {
	v, err := c.Get(path)
	if err != nil {
		return nil, err
	}
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...), nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, &TypeError{Path: path, Expected: "[]string", Actual: "[]" + typeName(item)}
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, &TypeError{Path: path, Expected: "[]string", Actual: typeName(v)}
}

func getPath(data map[string]any, path string) (any, bool) {
	current := any(data)
	for _, part := range splitPath(path) {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(data map[string]any, path string, value any) {
	parts := splitPath(path)
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}

// defaultConfig returns the built-in settings for a user config directory.
func defaultConfig(userDir string) map[string]any {
	dataDir := defaultDataDir()
	return map[string]any{
		"plugins": map[string]any{
			"dirs":            []any{filepath.Join(userDir, "plugins")},
			"marketplaceDirs": []any{filepath.Join(dataDir, "marketplace")},
			"watch":           false,
			"watchDelay":      "300ms",
			"callTimeout":     "5s",
		},
		"store": map[string]any{
			"path": filepath.Join(dataDir, "state.db"),
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "auto",
		},
		"metrics": map[string]any{
			"addr": "",
		},
		"projects": []any{},
	}
}

// defaultUserConfigDir follows XDG: $XDG_CONFIG_HOME/plughost, falling back
// to ~/.config/plughost.
func defaultUserConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "plughost")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "plughost")
	}
	return ""
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "plughost")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "plughost")
	}
	return "."
}
