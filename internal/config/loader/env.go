package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix is the prefix of every host environment variable.
const EnvPrefix = "PLUGHOST_"

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string
	mapping map[string]string // env var -> config path
	environ func() []string
}

// NewEnvLoader creates an environment loader with the default mapping. The
// prefix includes the trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return NewEnvLoaderWithMapping(prefix, defaultEnvMapping())
}

// NewEnvLoaderWithMapping creates a loader with custom mappings.
func NewEnvLoaderWithMapping(prefix string, mapping map[string]string) *EnvLoader {
	return &EnvLoader{prefix: prefix, mapping: mapping, environ: os.Environ}
}

func defaultEnvMapping() map[string]string {
	return map[string]string{
		"PLUGHOST_PLUGIN_DIRS":      "plugins.dirs",
		"PLUGHOST_MARKETPLACE_DIRS": "plugins.marketplaceDirs",
		"PLUGHOST_WATCH":            "plugins.watch",
		"PLUGHOST_WATCH_DELAY":      "plugins.watchDelay",
		"PLUGHOST_CALL_TIMEOUT":     "plugins.callTimeout",
		"PLUGHOST_STORE":            "store.path",
		"PLUGHOST_LOG_LEVEL":        "logging.level",
		"PLUGHOST_LOG_FORMAT":       "logging.format",
		"PLUGHOST_METRICS_ADDR":     "metrics.addr",
	}
}

// listPaths are split on the OS path list separator when they come from a
// plain string.
var listPaths = map[string]bool{
	"plugins.dirs":            true,
	"plugins.marketplaceDirs": true,
}

// Load reads environment variables and returns a configuration map. Empty
// values count as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	cfg := make(map[string]any)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path, mapped := l.mapping[name]
		if !mapped {
			path = l.envToPath(name)
		}
		if path == "" {
			continue
		}
		if listPaths[path] && !strings.HasPrefix(value, "[") {
			setByPath(cfg, path, splitList(value))
			continue
		}
		setByPath(cfg, path, parseValue(value))
	}
	return cfg, nil
}

// AddMapping adds a custom environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// envToPath converts PLUGHOST_STORE_BUSY_TIMEOUT to store.busyTimeout.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.TrimPrefix(env, l.prefix)
	parts := strings.Split(strings.ToLower(name), "_")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	setting := parts[1]
	for _, p := range parts[2:] {
		if p != "" {
			setting += strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return parts[0] + "." + setting
}

func splitList(s string) []any {
	var out []any
	for _, p := range strings.Split(s, string(os.PathListSeparator)) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseValue converts an environment string to the closest config type.
// Durations stay strings; the config layer parses them on read.
func parseValue(s string) any {
	if s == "" {
		return s
	}
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
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
