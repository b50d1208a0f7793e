// Package loader reads host configuration files and environment variables
// into nested maps.
//
// A config directory holds one file named config.toml, config.yaml or
// config.yml, tried in that order. Files may pull in others through the
// "include" key; see LoadWithIncludes.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// BaseName is the file name, without extension, looked up in a config
// directory.
const BaseName = "config"

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// extensions maps file extensions to formats, in lookup order.
var extensions = []struct {
	ext    string
	format Format
}{
	{".toml", FormatTOML},
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
}

// FormatOf returns the format of path by extension. Anything unknown is
// read as TOML.
func FormatOf(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if e.ext == ext {
			return e.format
		}
	}
	return FormatTOML
}

// Candidates lists the config files looked for in dir, first match wins.
func Candidates(dir string) []string {
	out := make([]string, 0, len(extensions))
	for _, e := range extensions {
		out = append(out, filepath.Join(dir, BaseName+e.ext))
	}
	return out
}

// Find returns the first candidate in dir that exists, or "".
func Find(fsys FileSystem, dir string) string {
	for _, path := range Candidates(dir) {
		if _, err := fsys.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FileLoader reads one configuration file. A missing file yields nil, nil.
type FileLoader interface {
	LoadFrom(path string) (map[string]any, error)
}

// ForPath returns the file loader for path's format.
func ForPath(fsys FileSystem, path string) FileLoader {
	if FormatOf(path) == FormatYAML {
		return NewYAMLLoaderWithFS(fsys, path)
	}
	return NewTOMLLoaderWithFS(fsys, path)
}

// FileSystem is the file access the loaders need. Tests substitute an
// in-memory implementation.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

type osFS struct{}

func (osFS) ReadFile(path string) ([]byte, error)  { return os.ReadFile(path) }
func (osFS) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }

// DefaultFS returns the OS file system.
func DefaultFS() FileSystem {
	return osFS{}
}

// readConfig reads path. ok is false when the file does not exist.
func readConfig(fsys FileSystem, path string) (data []byte, ok bool, err error) {
	data, err = fsys.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return data, true, nil
}

// ParseError reports a syntax error in a config file. Line and Column are
// zero when the parser did not say.
type ParseError struct {
	Path   string
	Format Format
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s: %s:%d:%d: %v", e.Format, e.Path, e.Line, e.Column, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("%s: %s:%d: %v", e.Format, e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Format, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
