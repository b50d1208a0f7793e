// Package discovery finds third-party plugin directories on disk.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
)

// ErrNoManifest is returned when a directory has no manifest file.
var ErrNoManifest = errors.New("no " + manifest.FileName + " in plugin directory")

// Found is one discovered plugin. The manifest is raw and unvalidated.
type Found struct {
	Manifest        json.RawMessage
	Path            string
	FromMarketplace bool
}

// ID returns the manifest's id field, or "" if it has none.
func (f Found) ID() string {
	return gjson.GetBytes(f.Manifest, "id").String()
}

// Feed lists third-party plugins.
type Feed interface {
	Discover(ctx context.Context) ([]Found, error)
}

// Static is a fixed Feed.
type Static []Found

// Discover implements Feed.
func (s Static) Discover(context.Context) ([]Found, error) {
	out := make([]Found, len(s))
	copy(out, s)
	return out, nil
}

// DirFeed scans plugin roots. Every immediate subdirectory holding a
// manifest file is a plugin.
type DirFeed struct {
	dirs        []string
	marketplace []string
	log         zerolog.Logger
}

// Option configures a DirFeed.
type Option func(*DirFeed)

// WithDirs adds community plugin roots.
func WithDirs(dirs ...string) Option {
	return func(f *DirFeed) {
		f.dirs = append(f.dirs, dirs...)
	}
}

// WithMarketplaceDirs adds roots whose plugins were installed from the
// marketplace.
func WithMarketplaceDirs(dirs ...string) Option {
	return func(f *DirFeed) {
		f.marketplace = append(f.marketplace, dirs...)
	}
}

// WithLogger sets the logger for skipped directories.
func WithLogger(log zerolog.Logger) Option {
	return func(f *DirFeed) {
		f.log = log
	}
}

// NewDirFeed creates a feed over the given roots.
func NewDirFeed(opts ...Option) *DirFeed {
	f := &DirFeed{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Roots returns every scanned root, community roots first.
func (f *DirFeed) Roots() []string {
	out := make([]string, 0, len(f.dirs)+len(f.marketplace))
	out = append(out, f.dirs...)
	return append(out, f.marketplace...)
}

// Discover scans the roots in order. When two directories declare the same
// id the first one wins. Missing roots are skipped.
func (f *DirFeed) Discover(ctx context.Context) ([]Found, error) {
	var (
		out  []Found
		seen = make(map[string]string)
	)
	scan := func(root string, market bool) error {
		entries, err := os.ReadDir(root)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("scan %s: %w", root, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !e.IsDir() {
				continue
			}
			found, err := Read(filepath.Join(root, e.Name()))
			if errors.Is(err, ErrNoManifest) {
				continue
			}
			if err != nil {
				f.log.Warn().Err(err).Str("path", filepath.Join(root, e.Name())).Msg("skipping plugin directory")
				continue
			}
			found.FromMarketplace = market
			if id := found.ID(); id != "" {
				if prev, dup := seen[id]; dup {
					f.log.Warn().Str("plugin", id).Str("path", found.Path).Str("kept", prev).Msg("duplicate plugin id")
					continue
				}
				seen[id] = found.Path
			}
			out = append(out, found)
		}
		return nil
	}

	for _, root := range f.dirs {
		if err := scan(root, false); err != nil {
			return nil, err
		}
	}
	for _, root := range f.marketplace {
		if err := scan(root, true); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read loads the manifest of the plugin directory dir.
func Read(dir string) (Found, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Found{}, err
	}
	data, err := os.ReadFile(filepath.Join(abs, manifest.FileName))
	if errors.Is(err, os.ErrNotExist) {
		return Found{}, fmt.Errorf("%w: %s", ErrNoManifest, abs)
	}
	if err != nil {
		return Found{}, fmt.Errorf("read manifest: %w", err)
	}
	return Found{Manifest: json.RawMessage(data), Path: abs}, nil
}

// DefaultDirs returns the default community plugin roots.
func DefaultDirs() []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "plughost", "plugins"))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(cwd, ".plughost", "plugins"))
	}
	return dirs
}
