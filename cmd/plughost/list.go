package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin"
)

// listing is one row of `plughost list`.
type listing struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Source   string   `json:"source"`
	Scope    string   `json:"scope"`
	Status   string   `json:"status"`
	Enabled  []string `json:"enabled,omitempty"`
	Error    string   `json:"error,omitempty"`
	Location string   `json:"path,omitempty"`
}

func newListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Long: `list registers the builtin plugins, scans the configured plugin
directories and prints every plugin with its status and where it is
enabled. Nothing is activated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(root.format); err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := boot(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close(context.WithoutCancel(ctx))

			if err := s.host.Restore(ctx, s.projects); err != nil {
				return err
			}
			rows := listings(s)

			out := cmd.OutOrStdout()
			if root.format == "json" {
				return writeJSON(out, rows)
			}
			t := &table{header: []string{"ID", "NAME", "VERSION", "SOURCE", "SCOPE", "STATUS", "ENABLED", "ERROR"}}
			for _, r := range rows {
				t.add(r.ID, r.Name, r.Version, r.Source, r.Scope, r.Status, strings.Join(r.Enabled, ","), r.Error)
			}
			t.sortByName(1)
			return t.write(out)
		},
	}
}

func listings(s *session) []listing {
	reg := s.host.Registry()
	var rows []listing
	for _, e := range reg.List() {
		m := e.Manifest
		r := listing{
			ID:       m.ID,
			Name:     m.Name,
			Version:  m.Version,
			Source:   string(e.Source),
			Scope:    string(m.Scope),
			Status:   e.Status.String(),
			Error:    e.Error,
			Location: e.Path,
		}
		if reg.IsEnabledInApp(m.ID) {
			r.Enabled = append(r.Enabled, "app")
		}
		for _, p := range s.projects {
			if reg.IsEnabledInProject(p.ID, m.ID) {
				r.Enabled = append(r.Enabled, p.ID)
			}
		}
		if r.Status == string(plugin.StatusIncompatible) && r.Name == "" {
			r.Name = m.ID
		}
		rows = append(rows, r)
	}
	return rows
}
