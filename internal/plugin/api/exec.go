package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
)

// ProcessResult is the outcome of a finished command.
type ProcessResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Process runs executables named in the manifest's allowedCommands.
type Process struct {
	checker *security.PermissionChecker
	dir     string
}

// Run executes name with args in the project root. A non-zero exit is
// reported in the result, not as an error.
func (p *Process) Run(ctx context.Context, name string, args ...string) (*ProcessResult, error) {
	if err := p.checker.CheckCommand(name); err != nil {
		return nil, err
	}
	return run(ctx, p.dir, name, args...)
}

func run(ctx context.Context, dir, name string, args ...string) (*ProcessResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &ProcessResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	return res, nil
}

// GitFileStatus is one line of porcelain status output.
type GitFileStatus struct {
	Path     string `json:"path"`
	Index    string `json:"index"`
	Worktree string `json:"worktree"`
}

// GitCommit is a log entry.
type GitCommit struct {
	Hash    string `json:"hash"`
	Subject string `json:"subject"`
}

// Git queries the repository at the project root.
type Git struct {
	root string
}

func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	if g.root == "" {
		return "", ErrNoProject
	}
	res, err := run(ctx, g.root, "git", args...)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git %s: exit %d: %s", args[0], res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// Branch returns the current branch name.
func (g *Git) Branch(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return strings.TrimSpace(out), err
}

// Status returns the working tree status.
func (g *Git) Status(ctx context.Context) ([]GitFileStatus, error) {
	out, err := g.git(ctx, "status", "--porcelain=v1")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

// Log returns the most recent n commits.
func (g *Git) Log(ctx context.Context, n int) ([]GitCommit, error) {
	if n <= 0 {
		n = 10
	}
	out, err := g.git(ctx, "log", "-n", strconv.Itoa(n), "--format=%H%x09%s")
	if err != nil {
		return nil, err
	}
	var commits []GitCommit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		hash, subject, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		commits = append(commits, GitCommit{Hash: hash, Subject: subject})
	}
	return commits, nil
}

func parsePorcelain(out string) []GitFileStatus {
	var files []GitFileStatus
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if _, to, ok := strings.Cut(path, " -> "); ok {
			path = to
		}
		files = append(files, GitFileStatus{
			Index:    strings.TrimSpace(line[0:1]),
			Worktree: strings.TrimSpace(line[1:2]),
			Path:     path,
		})
	}
	return files
}
