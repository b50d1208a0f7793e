// Package builtin holds the first-party plugins compiled into the host.
package builtin

import (
	"errors"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
)

// Registrar accepts builtin plugins.
type Registrar interface {
	RegisterBuiltin(m *manifest.Manifest, mod *plugin.Module) error
}

// Builtin is a first-party plugin.
type Builtin struct {
	Manifest *manifest.Manifest
	Module   *plugin.Module
}

// All returns fresh instances of every builtin plugin.
func All() []Builtin {
	return []Builtin{Hub(), GitStatus()}
}

// RegisterAll registers every builtin with r.
func RegisterAll(r Registrar) error {
	var errs []error
	for _, b := range All() {
		if err := r.RegisterBuiltin(b.Manifest, b.Module); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func perms(caps ...security.Capability) []security.Capability {
	return caps
}
