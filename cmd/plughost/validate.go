package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/discovery"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
)

// validation is the outcome for one path.
type validation struct {
	Path    string   `json:"path"`
	ID      string   `json:"id,omitempty"`
	Version string   `json:"version,omitempty"`
	API     string   `json:"api,omitempty"`
	Valid   bool     `json:"valid"`
	Errors  []string `json:"errors,omitempty"`
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plugin-dir|plugin.json>...",
		Short: "Check plugin manifests",
		Long: `validate runs the manifest validator over each plugin directory or
manifest file and reports every problem found. The command fails if any
manifest is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(root.format); err != nil {
				return err
			}

			results := make([]validation, 0, len(args))
			invalid := 0
			for _, arg := range args {
				v := validatePath(arg)
				if !v.Valid {
					invalid++
				}
				results = append(results, v)
			}

			out := cmd.OutOrStdout()
			if root.format == "json" {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else {
				for _, v := range results {
					if v.Valid {
						fmt.Fprintf(out, "ok    %s  %s@%s (api %s)\n", v.Path, v.ID, v.Version, v.API)
						continue
					}
					fmt.Fprintf(out, "FAIL  %s\n", v.Path)
					for _, e := range v.Errors {
						fmt.Fprintf(out, "      - %s\n", e)
					}
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d manifests invalid", invalid, len(args))
			}
			return nil
		},
	}
}

func validatePath(path string) validation {
	v := validation{Path: path}

	var raw []byte
	info, err := os.Stat(path)
	switch {
	case err != nil:
		v.Errors = []string{err.Error()}
		return v
	case info.IsDir():
		found, err := discovery.Read(path)
		if err != nil {
			v.Errors = []string{err.Error()}
			return v
		}
		raw = found.Manifest
	default:
		raw, err = os.ReadFile(path)
		if err != nil {
			v.Errors = []string{err.Error()}
			return v
		}
		path = filepath.Dir(path)
	}

	res := manifest.Validate(raw)
	if !res.Valid {
		v.Errors = res.Errors
		return v
	}
	m := res.Manifest
	if m.Main != "" {
		if _, err := os.Stat(filepath.Join(path, m.Main)); err != nil {
			v.Errors = []string{fmt.Sprintf("main %q: %v", m.Main, err)}
			return v
		}
	}
	v.Valid = true
	v.ID = m.ID
	v.Version = m.Version
	v.API = m.Engine.API.String()
	return v
}
