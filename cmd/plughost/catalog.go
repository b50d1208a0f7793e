package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
)

type permissionInfo struct {
	Name        string `json:"name"`
	Risk        string `json:"risk"`
	Requires    string `json:"requires,omitempty"`
	Description string `json:"description"`
}

type versionInfo struct {
	API     string   `json:"api"`
	Current bool     `json:"current"`
	Methods []string `json:"methods"`
}

type catalogInfo struct {
	Permissions []permissionInfo `json:"permissions"`
	Versions    []versionInfo    `json:"versions"`
}

func newCatalogCmd(root *rootOptions) *cobra.Command {
	var methods bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the permission catalog and supported API versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(root.format); err != nil {
				return err
			}
			c := buildCatalog()
			out := cmd.OutOrStdout()
			if root.format == "json" {
				return writeJSON(out, c)
			}

			t := &table{header: []string{"PERMISSION", "RISK", "REQUIRES", "DESCRIPTION"}}
			for _, p := range c.Permissions {
				t.add(p.Name, p.Risk, p.Requires, p.Description)
			}
			if err := t.write(out); err != nil {
				return err
			}

			fmt.Fprintln(out)
			for _, v := range c.Versions {
				marker := ""
				if v.Current {
					marker = " (current)"
				}
				fmt.Fprintf(out, "API %s%s: %d methods\n", v.API, marker, len(v.Methods))
				if methods {
					fmt.Fprintf(out, "  %s\n", strings.Join(v.Methods, "\n  "))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&methods, "methods", false, "List every method of each API version")
	return cmd
}

func buildCatalog() catalogInfo {
	var c catalogInfo
	for _, capability := range security.All() {
		info, ok := security.Info(capability)
		if !ok {
			continue
		}
		p := permissionInfo{
			Name:        string(capability),
			Risk:        info.RiskLevel.String(),
			Description: info.Description,
		}
		if parent, ok := security.ParentOf(capability); ok {
			p.Requires = string(parent)
		}
		c.Permissions = append(c.Permissions, p)
	}

	current := manifest.CurrentVersion()
	for _, v := range manifest.SupportedVersions() {
		surface, _ := api.Surface(v)
		c.Versions = append(c.Versions, versionInfo{API: v.String(), Current: v == current, Methods: surface})
	}
	return c
}
