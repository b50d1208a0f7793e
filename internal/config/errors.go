package config

import (
	"errors"
	"fmt"
)

var (
	// ErrSettingNotFound indicates the requested setting does not exist.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrConfigNotFound indicates an explicitly named config file is missing.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidConfig indicates the loaded configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// TypeError indicates a setting holds a value of the wrong type.
type TypeError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("setting %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// FieldError describes one invalid setting.
type FieldError struct {
	Path    string
	Message string
}

func (e *FieldError) Error() string {
	return e.Path + ": " + e.Message
}

// Is lets errors.Is match ErrInvalidConfig.
func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidConfig
}
