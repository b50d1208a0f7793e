package api

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/watcher"
)

// Files gives confined file access: reads inside the project root or a
// declared external root, writes inside the project root only.
type Files struct {
	checker *security.PermissionChecker
	track   func(Disposable)
	log     zerolog.Logger
}

// Read returns the contents of a file.
func (f *Files) Read(path string) (string, error) {
	if err := f.checker.CheckFileRead(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(f.checker.ResolvePath(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces the contents of a file, creating parent directories.
func (f *Files) Write(path, content string) error {
	if err := f.checker.CheckFileWrite(path); err != nil {
		return err
	}
	target := f.checker.ResolvePath(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, []byte(content), 0o644)
}

// Exists reports whether a readable path exists.
func (f *Files) Exists(path string) (bool, error) {
	if err := f.checker.CheckFileRead(path); err != nil {
		return false, err
	}
	_, err := os.Stat(f.checker.ResolvePath(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// List returns the sorted entry names of a directory. Directories carry a
// trailing slash.
func (f *Files) List(dir string) ([]string, error) {
	if err := f.checker.CheckFileRead(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.checker.ResolvePath(dir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Watch calls fn with batches of changed paths under path. Requires
// files.watch; the watch is released with the context.
func (f *Files) Watch(path string, fn func(paths []string)) (Disposable, error) {
	if err := f.checker.CheckCapability(security.CapabilityFilesWatch); err != nil {
		return nil, err
	}
	if err := f.checker.CheckFileRead(path); err != nil {
		return nil, err
	}

	w, err := watcher.New(func(_ string, paths []string) { fn(paths) },
		watcher.WithGroup(func(string) string { return "changes" }),
		watcher.WithLogger(f.log))
	if err != nil {
		return nil, err
	}
	if err := w.AddRecursive(f.checker.ResolvePath(path)); err != nil {
		w.Close()
		return nil, err
	}

	d := DisposeFunc(w.Close)
	f.track(d)
	return d, nil
}
