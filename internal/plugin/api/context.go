package api

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
)

// Context exposes the identity of the activation.
type Context struct {
	binding  Binding
	manifest *manifest.Manifest
}

// PluginID returns the plugin id.
func (c *Context) PluginID() string { return c.binding.PluginID }

// InstanceID returns the unique id of this activation.
func (c *Context) InstanceID() string { return c.binding.InstanceID }

// ProjectID returns the bound project, or "".
func (c *Context) ProjectID() string { return c.binding.ProjectID }

// Mode returns the render mode.
func (c *Context) Mode() RenderMode { return c.binding.Mode() }

// APIVersion returns the API version the plugin targets.
func (c *Context) APIVersion() manifest.APIVersion { return c.manifest.Engine.API }

// Settings reads and writes the plugin's settings for this context.
type Settings struct {
	binding Binding
	mu      sync.RWMutex
}

// Get returns a setting value.
func (s *Settings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.binding.Settings[key]
	return v, ok
}

// String returns a string setting or def.
func (s *Settings) String(key, def string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Bool returns a boolean setting or def.
func (s *Settings) Bool(key string, def bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Number returns a numeric setting or def.
func (s *Settings) Number(key string, def float64) float64 {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// All returns a copy of the settings.
func (s *Settings) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.binding.Settings))
	for k, v := range s.binding.Settings {
		out[k] = v
	}
	return out
}

// Set updates a setting and persists the snapshot.
func (s *Settings) Set(key string, value any) error {
	s.mu.Lock()
	s.binding.Settings[key] = value
	snapshot := make(map[string]any, len(s.binding.Settings))
	for k, v := range s.binding.Settings {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if s.binding.SaveSettings == nil {
		return nil
	}
	return s.binding.SaveSettings(snapshot)
}

// ProjectInfo describes an open project.
type ProjectInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// ProjectDirectory lists the projects known to the host.
type ProjectDirectory interface {
	Projects() []ProjectInfo
}

// StaticProjects is a fixed ProjectDirectory.
type StaticProjects []ProjectInfo

// Projects implements ProjectDirectory.
func (s StaticProjects) Projects() []ProjectInfo {
	out := make([]ProjectInfo, len(s))
	copy(out, s)
	return out
}

// Project describes the project a context is bound to.
type Project struct {
	binding Binding
	dir     ProjectDirectory
}

// ID returns the project id.
func (p *Project) ID() string { return p.binding.ProjectID }

// Path returns the project root.
func (p *Project) Path() string { return p.binding.ProjectPath }

// Name returns the project's display name, falling back to its id.
func (p *Project) Name() string {
	if p.dir != nil {
		for _, info := range p.dir.Projects() {
			if info.ID == p.binding.ProjectID && info.Name != "" {
				return info.Name
			}
		}
	}
	return p.binding.ProjectID
}

// Projects lists open projects. Reading another project's files needs
// projects.cross-project.
type Projects struct {
	checker *security.PermissionChecker
	dir     ProjectDirectory
}

// List returns the open projects sorted by id.
func (p *Projects) List() []ProjectInfo {
	if p.dir == nil {
		return nil
	}
	list := p.dir.Projects()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// ReadFile reads a file inside another project.
func (p *Projects) ReadFile(projectID, path string) (string, error) {
	if err := p.checker.CheckCapability(security.CapabilityProjectsCrossProject); err != nil {
		return "", err
	}
	for _, info := range p.List() {
		if info.ID != projectID {
			continue
		}
		target, ok := security.ResolveWithin(info.Path, path)
		if !ok {
			return "", security.NewCapabilityError(security.CapabilityProjectsCrossProject, "read file", "path outside project "+projectID)
		}
		data, err := os.ReadFile(target)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("unknown project %q", projectID)
}
