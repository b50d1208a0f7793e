package plugin

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
)

// Module is the code behind a plugin. Every hook is optional; a missing hook
// is simply not called.
type Module struct {
	Activate   func(c *Context, a *api.API) error
	Deactivate func() error

	// Components are named UI exports read by the presentation layer.
	Components map[string]any

	// Close releases the runtime behind the module when it is evicted.
	Close func() error
}

// ContextKey returns the key of a plugin's context: the plugin id at
// application scope, "pluginID:projectID" inside a project.
func ContextKey(pluginID, projectID string) string {
	if projectID == "" {
		return pluginID
	}
	return pluginID + ":" + projectID
}

// Context is one running instance of a plugin.
type Context struct {
	PluginID    string
	ProjectID   string
	ProjectPath string
	InstanceID  string
	Settings    map[string]any

	mu          sync.Mutex
	disposables []api.Disposable
}

func newContext(pluginID, projectID, projectPath string) *Context {
	return &Context{
		PluginID:    pluginID,
		ProjectID:   projectID,
		ProjectPath: projectPath,
		InstanceID:  uuid.NewString(),
		Settings:    make(map[string]any),
	}
}

// Key returns the context key.
func (c *Context) Key() string {
	return ContextKey(c.PluginID, c.ProjectID)
}

// Mode returns the render mode of the context.
func (c *Context) Mode() api.RenderMode {
	if c.ProjectID != "" {
		return api.ModeProject
	}
	return api.ModeApp
}

// Track records a disposable to release when the context is destroyed.
func (c *Context) Track(d api.Disposable) {
	if d == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposables = append(c.disposables, d)
}

// Len returns the number of tracked disposables.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.disposables)
}

// dispose releases every disposable in reverse registration order. Failures
// and panics are logged and do not stop the remaining disposals.
func (c *Context) dispose(log zerolog.Logger) int {
	c.mu.Lock()
	list := c.disposables
	c.disposables = nil
	c.mu.Unlock()

	failed := 0
	for i := len(list) - 1; i >= 0; i-- {
		if err := safeDispose(list[i]); err != nil {
			failed++
			log.Warn().Err(err).Str("context_key", c.Key()).Int("index", i).Msg("dispose failed")
		}
	}
	return failed
}

func safeDispose(d api.Disposable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispose panicked: %v", r)
		}
	}()
	return d.Dispose()
}
