package keybind

import (
	"errors"
	"fmt"
	"strings"
)

// Parse errors.
var (
	ErrEmptyKeys   = errors.New("empty key binding")
	ErrInvalidKeys = errors.New("invalid key binding")
)

// Modifier is a set of keyboard modifier keys.
type Modifier uint8

// Modifiers.
const (
	ModNone  Modifier = 0
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Has returns true if m contains mod.
func (m Modifier) Has(mod Modifier) bool {
	return m&mod != 0
}

// String returns the canonical form, e.g. "Ctrl+Alt+Shift+Meta".
func (m Modifier) String() string {
	var parts []string
	if m.Has(ModCtrl) {
		parts = append(parts, "Ctrl")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "Alt")
	}
	if m.Has(ModShift) {
		parts = append(parts, "Shift")
	}
	if m.Has(ModMeta) {
		parts = append(parts, "Meta")
	}
	return strings.Join(parts, "+")
}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"shift":   ModShift,
	"meta":    ModMeta,
	"cmd":     ModMeta,
	"command": ModMeta,
	"super":   ModMeta,
	"win":     ModMeta,
}

// Chord is a parsed key combination.
type Chord struct {
	Mods Modifier
	Key  string
}

// String returns the canonical spelling of the chord.
func (c Chord) String() string {
	if c.Mods == ModNone {
		return c.Key
	}
	return c.Mods.String() + "+" + c.Key
}

// Parse parses a binding such as "Meta+Shift+G" or "ctrl+k".
// Modifier order and case are not significant; single letters are upper-cased.
func Parse(spec string) (Chord, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Chord{}, ErrEmptyKeys
	}

	parts := strings.Split(spec, "+")
	keyPart := strings.TrimSpace(parts[len(parts)-1])
	if keyPart == "" {
		// "Ctrl++" binds the plus key.
		if strings.HasSuffix(spec, "++") {
			keyPart = "+"
			parts = parts[:len(parts)-1]
		} else {
			return Chord{}, fmt.Errorf("%w: %q has no key", ErrInvalidKeys, spec)
		}
	}

	var mods Modifier
	for _, p := range parts[:len(parts)-1] {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		mod, ok := modifierNames[p]
		if !ok {
			return Chord{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidKeys, p)
		}
		mods |= mod
	}

	if _, ok := modifierNames[strings.ToLower(keyPart)]; ok {
		return Chord{}, fmt.Errorf("%w: %q has no key", ErrInvalidKeys, spec)
	}

	return Chord{Mods: mods, Key: normalizeKey(keyPart)}, nil
}

// Normalize returns the canonical spelling of spec.
func Normalize(spec string) (string, error) {
	c, err := Parse(spec)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

func normalizeKey(k string) string {
	if len([]rune(k)) == 1 {
		return strings.ToUpper(k)
	}
	lower := strings.ToLower(k)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
