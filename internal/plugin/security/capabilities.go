// Package security provides the permission catalog for the plugin host.
package security

import (
	"fmt"
	"sort"
)

// Capability represents a permission that a plugin can request.
// Some capabilities extend a parent capability and may only be declared
// together with it (e.g. "files.external" requires "files").
type Capability string

// Capabilities that plugins can request.
const (
	// CapabilityFiles allows reading and writing files under the project root.
	CapabilityFiles Capability = "files"

	// CapabilityFilesExternal allows reading outside the project root, limited
	// to the roots declared in the manifest's externalRoots.
	CapabilityFilesExternal Capability = "files.external"

	// CapabilityFilesWatch allows subscribing to file change notifications.
	CapabilityFilesWatch Capability = "files.watch"

	// CapabilityGit allows reading repository state.
	CapabilityGit Capability = "git"

	// CapabilityProcess allows running the executables listed in allowedCommands.
	CapabilityProcess Capability = "process"

	// CapabilityStorage allows plugin-scoped key/value storage.
	CapabilityStorage Capability = "storage"

	// CapabilityNotifications allows showing notifications.
	CapabilityNotifications Capability = "notifications"

	// CapabilityCommands allows registering commands and key bindings.
	CapabilityCommands Capability = "commands"

	// CapabilityEvents allows subscribing to host events.
	CapabilityEvents Capability = "events"

	// CapabilityLogging allows writing to the host log.
	CapabilityLogging Capability = "logging"

	// CapabilityProjects allows listing open projects.
	CapabilityProjects Capability = "projects"

	// CapabilityProjectsCrossProject allows reading data belonging to projects
	// other than the one the plugin runs in.
	CapabilityProjectsCrossProject Capability = "projects.cross-project"

	// CapabilityNavigation allows focusing views and opening projects.
	CapabilityNavigation Capability = "navigation"

	// CapabilityThemes allows registering colour themes at runtime.
	CapabilityThemes Capability = "themes"
)

// RiskLevel indicates the security risk of a capability.
type RiskLevel int

const (
	// RiskSafe capabilities cannot affect anything outside the plugin.
	RiskSafe RiskLevel = iota

	// RiskElevated capabilities touch user data inside the current project.
	RiskElevated

	// RiskDangerous capabilities reach outside the project or the host process.
	RiskDangerous
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskElevated:
		return "elevated"
	case RiskDangerous:
		return "dangerous"
	default:
		return "unknown"
	}
}

// CapabilityInfo provides metadata about a capability.
type CapabilityInfo struct {
	Name        Capability
	Description string
	RiskLevel   RiskLevel
}

// hierarchy maps a child capability to the single parent it requires.
var hierarchy = map[Capability]Capability{
	CapabilityFilesExternal:        CapabilityFiles,
	CapabilityFilesWatch:           CapabilityFiles,
	CapabilityProjectsCrossProject: CapabilityProjects,
}

var riskLevels = map[Capability]RiskLevel{
	CapabilityFiles:                RiskElevated,
	CapabilityFilesExternal:        RiskDangerous,
	CapabilityFilesWatch:           RiskElevated,
	CapabilityGit:                  RiskElevated,
	CapabilityProcess:              RiskDangerous,
	CapabilityStorage:              RiskSafe,
	CapabilityNotifications:        RiskSafe,
	CapabilityCommands:             RiskSafe,
	CapabilityEvents:               RiskSafe,
	CapabilityLogging:              RiskSafe,
	CapabilityProjects:             RiskSafe,
	CapabilityProjectsCrossProject: RiskElevated,
	CapabilityNavigation:           RiskSafe,
	CapabilityThemes:               RiskSafe,
}

var descriptions = map[Capability]string{
	CapabilityFiles:                "Read and write files inside the project",
	CapabilityFilesExternal:        "Read files outside the project root in declared locations",
	CapabilityFilesWatch:           "Receive notifications when project files change",
	CapabilityGit:                  "Read branch and working tree status",
	CapabilityProcess:              "Run the external commands listed in the manifest",
	CapabilityStorage:              "Store plugin data",
	CapabilityNotifications:        "Show notifications",
	CapabilityCommands:             "Register commands and keyboard shortcuts",
	CapabilityEvents:               "Subscribe to application events",
	CapabilityLogging:              "Write to the application log",
	CapabilityProjects:             "List open projects",
	CapabilityProjectsCrossProject: "Read data from other projects",
	CapabilityNavigation:           "Switch views and open projects",
	CapabilityThemes:               "Register colour themes",
}

// catalog lists every capability in declaration order.
var catalog = []Capability{
	CapabilityFiles,
	CapabilityFilesExternal,
	CapabilityFilesWatch,
	CapabilityGit,
	CapabilityProcess,
	CapabilityStorage,
	CapabilityNotifications,
	CapabilityCommands,
	CapabilityEvents,
	CapabilityLogging,
	CapabilityProjects,
	CapabilityProjectsCrossProject,
	CapabilityNavigation,
	CapabilityThemes,
}

// IsKnown returns true if the capability is part of the catalog.
func IsKnown(cap Capability) bool {
	_, ok := riskLevels[cap]
	return ok
}

// All returns all known capabilities in catalog order.
func All() []Capability {
	out := make([]Capability, len(catalog))
	copy(out, catalog)
	return out
}

// ParentOf returns the parent capability and true, or "" and false for a
// root capability.
func ParentOf(cap Capability) (Capability, bool) {
	parent, ok := hierarchy[cap]
	return parent, ok
}

// RequiredAncestors walks the parent chain up to the root. The result is
// ordered nearest parent first and is empty for a root capability.
func RequiredAncestors(cap Capability) []Capability {
	var out []Capability
	seen := map[Capability]bool{cap: true}
	for {
		parent, ok := hierarchy[cap]
		if !ok || seen[parent] {
			return out
		}
		seen[parent] = true
		out = append(out, parent)
		cap = parent
	}
}

// RiskOf returns the risk level for a capability.
func RiskOf(cap Capability) (RiskLevel, bool) {
	r, ok := riskLevels[cap]
	return r, ok
}

// Describe returns the human-readable description of a capability.
func Describe(cap Capability) string {
	return descriptions[cap]
}

// Info returns the full catalog entry for a capability.
func Info(cap Capability) (CapabilityInfo, bool) {
	r, ok := riskLevels[cap]
	if !ok {
		return CapabilityInfo{}, false
	}
	return CapabilityInfo{Name: cap, Description: descriptions[cap], RiskLevel: r}, true
}

// ByRisk returns the capabilities with the given risk level, sorted by name.
func ByRisk(level RiskLevel) []Capability {
	var caps []Capability
	for cap, r := range riskLevels {
		if r == level {
			caps = append(caps, cap)
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// HighestRisk returns the highest risk level among caps. Unknown capabilities
// are ignored.
func HighestRisk(caps []Capability) RiskLevel {
	highest := RiskSafe
	for _, cap := range caps {
		if r, ok := riskLevels[cap]; ok && r > highest {
			highest = r
		}
	}
	return highest
}

// CapabilityError represents a capability-related error.
type CapabilityError struct {
	Capability Capability
	Operation  string
	Message    string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("capability %q required for %s: %s", e.Capability, e.Operation, e.Message)
	}
	return fmt.Sprintf("capability %q: %s", e.Capability, e.Message)
}

// NewCapabilityError creates a new capability error.
func NewCapabilityError(cap Capability, operation, message string) *CapabilityError {
	return &CapabilityError{
		Capability: cap,
		Operation:  operation,
		Message:    message,
	}
}
