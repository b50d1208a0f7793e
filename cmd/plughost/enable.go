package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
)

// newEnableCmd builds `enable` or `disable`. The change is persisted; when
// enabling, the plugin is activated once to prove it loads.
func newEnableCmd(root *rootOptions, enable bool) *cobra.Command {
	var project string
	verb := "disable"
	if enable {
		verb = "enable"
	}

	cmd := &cobra.Command{
		Use:   verb + " <plugin-id>",
		Short: fmt.Sprintf("Persistently %s a plugin for the app or a project", verb),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := boot(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close(context.WithoutCancel(ctx))

			if err := s.host.Restore(ctx, s.projects); err != nil {
				return err
			}

			id := args[0]
			if project == "" {
				if enable {
					err = s.host.EnableApp(ctx, id)
				} else {
					err = s.host.DisableApp(ctx, id)
				}
			} else {
				p, ok := findProject(s.projects, project)
				if !ok {
					return fmt.Errorf("unknown project %q", project)
				}
				if enable {
					err = s.host.EnableProject(ctx, p, id)
				} else {
					err = s.host.DisableProject(ctx, p.ID, id)
				}
			}
			if err != nil {
				return err
			}

			e, _ := s.host.Registry().Get(id)
			if e.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%sd %s (status %s: %s)\n", verb, id, e.Status, e.Error)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd %s (status %s)\n", verb, id, e.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project id from the config instead of the application scope")
	return cmd
}

func findProject(projects []api.ProjectInfo, id string) (api.ProjectInfo, bool) {
	for _, p := range projects {
		if p.ID == id {
			return p, true
		}
	}
	return api.ProjectInfo{}, false
}
