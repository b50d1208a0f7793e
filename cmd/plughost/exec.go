package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/hook"
)

// execResult is the JSON form of a routed command.
type execResult struct {
	Command string `json:"command,omitempty"`
	Handled bool   `json:"handled"`
	Message string `json:"message,omitempty"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newExecCmd(root *rootOptions) *cobra.Command {
	var (
		chord       string
		textFocused bool
	)

	cmd := &cobra.Command{
		Use:   "exec [plugin.<id>.<command>] [name=value...]",
		Short: "Run a plugin command by action name or key chord",
		Long: `exec starts the host like run does, then routes one input to a
plugin command and prints what the command returned.

Examples:
  # Run a command by action name with arguments
  plughost exec plugin.git-status.log n=5

  # Press a key chord as if no text field had focus
  plughost exec --key Meta+Shift+G

  # Only bindings declared global fire while typing
  plughost exec --key Meta+Shift+G --text-focused`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(root.format); err != nil {
				return err
			}
			if chord == "" && len(args) == 0 {
				return errors.New("exec needs an action name or --key")
			}
			if chord != "" && len(args) > 0 {
				return errors.New("--key does not take arguments")
			}
			var (
				action string
				params map[string]any
			)
			if chord == "" {
				action = args[0]
				var err error
				if params, err = parseParams(args[1:]); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			s, err := boot(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close(context.WithoutCancel(ctx))

			if err := s.host.Start(ctx, s.projects); err != nil {
				if !errors.Is(err, plugin.ErrSafeMode) {
					return err
				}
				s.log.Warn().Msg("safe mode: plugins are not running")
			}

			var res hook.Result
			input := action
			if chord != "" {
				input = chord
				res = s.host.HandleKey(ctx, chord, textFocused)
			} else {
				res = s.host.RunAction(ctx, action, params)
			}

			out := execResult{Command: res.Command, Handled: res.Handled, Message: res.Message, Value: res.Value}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			if root.format == "json" {
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			}

			switch {
			case !res.Handled:
				return fmt.Errorf("nothing handled %q", input)
			case res.Err != nil:
				return res.Err
			case root.format == "json":
				return nil
			case res.Message != "":
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			case res.Value != nil:
				return writeJSON(cmd.OutOrStdout(), res.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chord, "key", "", "Key chord to press instead of an action name")
	cmd.Flags().BoolVar(&textFocused, "text-focused", false, "Route the chord as if a text field had focus")
	return cmd
}

// parseParams turns name=value pairs into command arguments. Numbers and
// booleans are passed as such, everything else as a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q: want name=value", p)
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[name] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			params[name] = b
		} else {
			params[name] = value
		}
	}
	return params, nil
}
