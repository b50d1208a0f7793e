package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/manifest"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
)

// GitStatusID is the id of the git-status plugin.
const GitStatusID = "git-status"

// lastStatusKey is the storage key of the last refresh.
const lastStatusKey = "last"

// Summary is the result of a refresh.
type Summary struct {
	Branch  string              `json:"branch"`
	Changed int                 `json:"changed"`
	Staged  int                 `json:"staged"`
	Files   []api.GitFileStatus `json:"files"`
}

// GitStatus returns the project-level git plugin.
func GitStatus() Builtin {
	m := &manifest.Manifest{
		ID:          GitStatusID,
		Name:        "Git Status",
		Version:     "1.0.0",
		Description: "Branch and working tree status of the project",
		Author:      "plughost",
		Engine:      manifest.Engine{API: manifest.CurrentVersion()},
		Scope:       manifest.ScopeProject,
		Permissions: perms(
			security.CapabilityGit,
			security.CapabilityCommands,
			security.CapabilityStorage,
			security.CapabilityNotifications,
		),
		Contributes: manifest.Contributes{
			Tab: &manifest.TabContribution{Label: "Git", Icon: "branch"},
			Commands: []manifest.CommandContribution{
				{ID: "refresh", Title: "Git: Refresh Status", DefaultBinding: "Meta+Shift+G", Global: true},
				{ID: "log", Title: "Git: Recent Commits"},
				{ID: "last", Title: "Git: Last Refresh"},
			},
			Settings: []manifest.SettingContribution{
				{Key: "logLimit", Type: "number", Label: "Commits shown", Default: 10.0},
				{Key: "notify", Type: "boolean", Label: "Notify when the tree is dirty", Default: false},
			},
			Help: &manifest.HelpContribution{Topics: []manifest.HelpTopic{{
				ID:      "refresh",
				Title:   "Refreshing",
				Content: "Run Git: Refresh Status to re-read the branch and changed files.",
			}}},
		},
	}
	return Builtin{Manifest: m, Module: &plugin.Module{Activate: activateGitStatus}}
}

func activateGitStatus(_ *plugin.Context, a *api.API) error {
	cmds := map[string]api.CommandHandler{
		"refresh": func(ctx context.Context, _ map[string]any) (any, error) {
			s, err := refresh(ctx, a)
			if err != nil {
				return nil, err
			}
			if notify, _ := a.Settings.Get("notify"); notify == true && s.Changed > 0 {
				a.Notifications.Info(fmt.Sprintf("%s: %d changed files on %s", a.Project.Name(), s.Changed, s.Branch))
			}
			return s, nil
		},
		"log": func(ctx context.Context, args map[string]any) (any, error) {
			n := 10
			if v, ok := a.Settings.Get("logLimit"); ok {
				if f, ok := v.(float64); ok {
					n = int(f)
				}
			}
			if v, ok := args["n"].(float64); ok {
				n = int(v)
			}
			return a.Git.Log(ctx, n)
		},
		"last": func(ctx context.Context, _ map[string]any) (any, error) {
			raw, ok, err := a.Storage.Get(ctx, lastStatusKey)
			if err != nil || !ok {
				return nil, err
			}
			var s Summary
			if err := json.Unmarshal([]byte(raw), &s); err != nil {
				return nil, fmt.Errorf("decode last status: %w", err)
			}
			return s, nil
		},
	}
	for _, id := range []string{"refresh", "log", "last"} {
		if err := a.Commands.Register(id, cmds[id]); err != nil {
			return err
		}
	}
	return nil
}

func refresh(ctx context.Context, a *api.API) (Summary, error) {
	branch, err := a.Git.Branch(ctx)
	if err != nil {
		return Summary{}, err
	}
	files, err := a.Git.Status(ctx)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{Branch: branch, Files: files}
	for _, f := range files {
		if f.Worktree != "" {
			s.Changed++
		}
		if f.Index != "" && f.Index != "?" {
			s.Staged++
		}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return Summary{}, err
	}
	if err := a.Storage.Set(ctx, lastStatusKey, string(data)); err != nil {
		return Summary{}, err
	}
	return s, nil
}
