// Package manifest defines the plugin manifest and its validator.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
)

// FileName is the manifest file expected in every plugin directory.
const FileName = "plugin.json"

// Scope determines where a plugin runs.
type Scope string

// Plugin scopes.
const (
	ScopeProject Scope = "project" // once per open project
	ScopeApp     Scope = "app"     // once per application
	ScopeDual    Scope = "dual"    // both, independently
)

// Kind distinguishes code plugins from asset-only packs.
type Kind string

// Plugin kinds.
const (
	KindPlugin Kind = "plugin"
	KindPack   Kind = "pack"
)

// Manifest describes a plugin's identity, targeted API and requirements.
// A Manifest is never mutated after validation.
type Manifest struct {
	// Identity
	ID          string `json:"id"`          // Unique identifier (e.g., "git-status")
	Name        string `json:"name"`        // Display name
	Version     string `json:"version"`     // Semver (e.g., "1.2.0")
	Description string `json:"description"` // Short description
	Author      string `json:"author"`

	Engine Engine `json:"engine"`
	Scope  Scope  `json:"scope"`
	Kind   Kind   `json:"kind,omitempty"`

	// Main is the entry file relative to the plugin directory.
	Main string `json:"main,omitempty"`

	// SettingsPanel is "declarative" or "custom".
	SettingsPanel string `json:"settingsPanel,omitempty"`

	Permissions     []security.Capability `json:"permissions,omitempty"`
	ExternalRoots   []ExternalRoot        `json:"externalRoots,omitempty"`
	AllowedCommands []string              `json:"allowedCommands,omitempty"`

	Contributes Contributes `json:"contributes"`
}

// Engine declares the host API the plugin targets.
type Engine struct {
	API APIVersion `json:"api"`
}

// ExternalRoot declares a directory outside the project the plugin may read.
// The directory is taken from the plugin setting named SettingKey; Root is a
// subdirectory appended to it.
type ExternalRoot struct {
	SettingKey string `json:"settingKey"`
	Root       string `json:"root"`
}

// Contributes describes the UI surface a plugin registers.
type Contributes struct {
	Tab      *TabContribution      `json:"tab,omitempty"`
	RailItem *RailContribution     `json:"railItem,omitempty"`
	Commands []CommandContribution `json:"commands,omitempty"`
	Settings []SettingContribution `json:"settings,omitempty"`
	Help     *HelpContribution     `json:"help,omitempty"`
	Themes   []ThemeContribution   `json:"themes,omitempty"`
}

// TabContribution is a project-level tab.
type TabContribution struct {
	Label  string `json:"label"`
	Icon   string `json:"icon,omitempty"`
	Layout string `json:"layout,omitempty"`
}

// RailContribution is an application-level rail item.
type RailContribution struct {
	Label    string `json:"label"`
	Icon     string `json:"icon,omitempty"`
	Position string `json:"position,omitempty"`
}

// CommandContribution declares a command the plugin provides.
type CommandContribution struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	DefaultBinding string `json:"defaultBinding,omitempty"` // e.g. "Meta+Shift+G"
	Global         bool   `json:"global,omitempty"`         // fires while a text field has focus
}

// SettingContribution declares a plugin setting.
type SettingContribution struct {
	Key         string   `json:"key"`
	Type        string   `json:"type"` // string, number, boolean, select
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Options     []Option `json:"options,omitempty"`
}

// Option is a choice for select-type settings.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// HelpContribution groups help topics.
type HelpContribution struct {
	Topics []HelpTopic `json:"topics,omitempty"`
}

// HelpTopic is a single help article.
type HelpTopic struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ThemeContribution is a colour theme shipped by a pack.
type ThemeContribution struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Type   string            `json:"type"` // dark or light
	Colors map[string]string `json:"colors"`
}

// EffectiveKind returns the manifest kind, defaulting to KindPlugin.
func (m *Manifest) EffectiveKind() Kind {
	if m.Kind == "" {
		return KindPlugin
	}
	return m.Kind
}

// IsPack returns true for asset-only pack plugins.
func (m *Manifest) IsPack() bool {
	return m.EffectiveKind() == KindPack
}

// HasPermission returns true if the plugin declares the capability.
func (m *Manifest) HasPermission(cap security.Capability) bool {
	for _, c := range m.Permissions {
		if c == cap {
			return true
		}
	}
	return false
}

// RunsInApp returns true if the plugin can run at application level.
func (m *Manifest) RunsInApp() bool {
	return m.Scope == ScopeApp || m.Scope == ScopeDual
}

// RunsInProject returns true if the plugin can run inside a project.
func (m *Manifest) RunsInProject() bool {
	return m.Scope == ScopeProject || m.Scope == ScopeDual
}

// SettingDefaults returns the default value of every declared setting.
func (m *Manifest) SettingDefaults() map[string]any {
	defaults := make(map[string]any)
	for _, s := range m.Contributes.Settings {
		if s.Default != nil {
			defaults[s.Key] = s.Default
		}
	}
	return defaults
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	display := m.Name
	if display == "" {
		display = m.ID
	}
	return fmt.Sprintf("%s v%s (api %s)", display, m.Version, m.Engine.API)
}

// Load reads and validates the manifest in a plugin directory.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	res := Validate(data)
	if !res.Valid {
		return nil, &InvalidError{Errors: res.Errors}
	}
	return res.Manifest, nil
}
