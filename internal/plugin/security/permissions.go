package security

import (
	"path/filepath"
	"strings"
	"sync"
)

// PermissionChecker enforces a plugin's declared capabilities at call time.
// Declared capabilities are matched exactly: a parent does not grant its
// children and a child does not grant its parent.
type PermissionChecker struct {
	mu sync.RWMutex

	capabilities map[Capability]bool

	// File system confinement (normalized absolute paths)
	projectRoot   string
	externalRoots []string

	// Executables allowed for CapabilityProcess
	allowedCommands map[string]bool

	pluginID string
}

// NewPermissionChecker creates a checker granting the given capabilities.
func NewPermissionChecker(pluginID string, caps []Capability) *PermissionChecker {
	pc := &PermissionChecker{
		capabilities:    make(map[Capability]bool, len(caps)),
		allowedCommands: make(map[string]bool),
		pluginID:        pluginID,
	}
	for _, cap := range caps {
		pc.capabilities[cap] = true
	}
	return pc
}

// PluginID returns the plugin the checker belongs to.
func (pc *PermissionChecker) PluginID() string {
	return pc.pluginID
}

// HasCapability returns true if the capability was declared.
func (pc *PermissionChecker) HasCapability(cap Capability) bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.capabilities[cap]
}

// CheckCapability returns an error if the capability is not granted.
func (pc *PermissionChecker) CheckCapability(cap Capability) error {
	if !pc.HasCapability(cap) {
		return NewCapabilityError(cap, "", "not granted")
	}
	return nil
}

// Capabilities returns all granted capabilities in catalog order.
func (pc *PermissionChecker) Capabilities() []Capability {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	caps := make([]Capability, 0, len(pc.capabilities))
	for _, cap := range catalog {
		if pc.capabilities[cap] {
			caps = append(caps, cap)
		}
	}
	return caps
}

// SetProjectRoot sets the project root used for file access checks.
func (pc *PermissionChecker) SetProjectRoot(path string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if path == "" {
		pc.projectRoot = ""
		return
	}
	pc.projectRoot = normalizePath(path)
}

// ProjectRoot returns the normalized project root, if any.
func (pc *PermissionChecker) ProjectRoot() string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.projectRoot
}

// AllowExternalRoot adds a directory readable under CapabilityFilesExternal.
func (pc *PermissionChecker) AllowExternalRoot(path string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.externalRoots = append(pc.externalRoots, normalizePath(path))
}

// AllowCommand adds an executable name runnable under CapabilityProcess.
func (pc *PermissionChecker) AllowCommand(name string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.allowedCommands[name] = true
}

// normalizePath returns an absolute, clean path.
func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// ResolvePath resolves a plugin-supplied path. Relative paths are taken
// relative to the project root.
func (pc *PermissionChecker) ResolvePath(path string) string {
	pc.mu.RLock()
	root := pc.projectRoot
	pc.mu.RUnlock()

	if !filepath.IsAbs(path) && root != "" {
		return filepath.Clean(filepath.Join(root, path))
	}
	return normalizePath(path)
}

// CheckFileRead checks if reading a file is permitted.
func (pc *PermissionChecker) CheckFileRead(path string) error {
	if !pc.HasCapability(CapabilityFiles) {
		return NewCapabilityError(CapabilityFiles, "read file", "not granted")
	}

	target := pc.ResolvePath(path)

	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if pc.projectRoot != "" && within(target, pc.projectRoot) {
		return nil
	}
	if !pc.capabilities[CapabilityFilesExternal] {
		return NewCapabilityError(CapabilityFilesExternal, "read file", "path outside project")
	}
	resolved := realPath(target)
	for _, root := range pc.externalRoots {
		if isWithinPath(resolved, realPath(root)) {
			return nil
		}
	}
	return NewCapabilityError(CapabilityFilesExternal, "read file", "path not in a declared external root")
}

// CheckFileWrite checks if writing a file is permitted. Writes are only
// allowed under the project root.
func (pc *PermissionChecker) CheckFileWrite(path string) error {
	if !pc.HasCapability(CapabilityFiles) {
		return NewCapabilityError(CapabilityFiles, "write file", "not granted")
	}

	target := pc.ResolvePath(path)

	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if pc.projectRoot == "" || !within(target, pc.projectRoot) {
		return NewCapabilityError(CapabilityFiles, "write file", "path outside project")
	}
	return nil
}

// CheckCommand checks if running an executable is permitted.
func (pc *PermissionChecker) CheckCommand(name string) error {
	if !pc.HasCapability(CapabilityProcess) {
		return NewCapabilityError(CapabilityProcess, "run command", "not granted")
	}

	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if !pc.allowedCommands[name] {
		return NewCapabilityError(CapabilityProcess, "run command", "command "+name+" not in allowedCommands")
	}
	return nil
}

// isWithinPath checks if target is within or equal to base using filepath.Rel.
// This properly handles edge cases like "/tmp/blocked" not matching "/tmp/blockedfile".
func isWithinPath(target, base string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// ResolveWithin resolves path against root and reports whether the result
// stays inside root.
func ResolveWithin(root, path string) (string, bool) {
	base := normalizePath(root)
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)
	return target, within(target, base)
}

// within reports whether target is inside base both as written and after
// symlinks are followed.
func within(target, base string) bool {
	return isWithinPath(target, base) && isWithinPath(realPath(target), realPath(base))
}

// realPath resolves symlinks in the longest existing prefix of path, so a
// file about to be created is judged by its real parent directory.
func realPath(path string) string {
	p := path
	var rest []string
	for {
		if r, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{r}, rest...)...)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}
