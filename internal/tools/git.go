// ABOUTME: Git tools: read-only status, log, and diff over sandboxed repos.
// ABOUTME: Refs are shape-checked to keep options out of the argument position.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/calder-labs/opsgate/internal/auth"
	"github.com/calder-labs/opsgate/internal/registry"
	"github.com/calder-labs/opsgate/internal/sandbox"
	"github.com/calder-labs/opsgate/internal/tool"
)

// GitConfig configures the git tools.
type GitConfig struct {
	Roots   []string // repositories must resolve inside these roots
	Timeout time.Duration
}

// refPattern constrains revision arguments to plain ref shapes. Anything
// starting with "-" would be parsed by git as an option.
var refPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/~^-]*$`)

const defaultLogLimit = 20

// gitTools holds the shared configuration and runner.
type gitTools struct {
	roots  []string
	runner *runner
}

// RegisterGit registers the read-only git tools and their scope
// requirements.
func RegisterGit(reg *registry.Registry, authz *auth.Authorizer, cfg GitConfig) {
	t := &gitTools{
		roots:  cfg.Roots,
		runner: &runner{timeout: cfg.Timeout},
	}

	repoSchema := `{
		"type": "object",
		"properties": {
			"repo": {"type": "string", "description": "Absolute path of the repository"}
		},
		"required": ["repo"]
	}`

	reg.Register(tool.Definition{
		Name:        "git_status",
		Description: "Show working tree status for a sandboxed repository.",
		InputSchema: json.RawMessage(repoSchema),
	}, t.status)
	authz.Require("git_status", "read:git")

	reg.Register(tool.Definition{
		Name:        "git_log",
		Description: "Show recent commit history for a sandboxed repository.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo": {"type": "string", "description": "Absolute path of the repository"},
				"limit": {"type": "integer", "description": "Maximum number of commits (default 20)"}
			},
			"required": ["repo"]
		}`),
	}, t.log)
	authz.Require("git_log", "read:git")

	reg.Register(tool.Definition{
		Name:        "git_diff",
		Description: "Show the diff of the working tree, optionally against a revision.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo": {"type": "string", "description": "Absolute path of the repository"},
				"ref": {"type": "string", "description": "Revision to diff against (optional)"}
			},
			"required": ["repo"]
		}`),
	}, t.diff)
	authz.Require("git_diff", "read:git")
}

// repoPath validates the repo argument against the sandbox roots.
func (t *gitTools) repoPath(repo string) (string, error) {
	return sandbox.ValidatePath(repo, t.roots)
}

// runGit executes a git subcommand in the repository and formats the result.
// The argument vector is passed to git directly; the repo path and the ref
// never travel through a shell.
func (t *gitTools) runGit(ctx context.Context, repo string, gitArgs ...string) *tool.Result {
	argv := append([]string{"-C", repo}, gitArgs...)
	res, err := t.runner.runArgv(ctx, "git", argv...)
	if err != nil {
		return tool.Errorf("running git: %s", err)
	}
	return formatRunResult(res)
}

func (t *gitTools) status(ctx context.Context, args json.RawMessage) *tool.Result {
	var a struct {
		Repo string `json:"repo"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}

	repo, err := t.repoPath(a.Repo)
	if err != nil {
		return tool.Errorf("repo rejected: %s", err)
	}
	return t.runGit(ctx, repo, "status", "--porcelain=v1", "--branch")
}

func (t *gitTools) log(ctx context.Context, args json.RawMessage) *tool.Result {
	var a struct {
		Repo  string `json:"repo"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}

	repo, err := t.repoPath(a.Repo)
	if err != nil {
		return tool.Errorf("repo rejected: %s", err)
	}

	limit := a.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	return t.runGit(ctx, repo, "log", "--oneline", fmt.Sprintf("--max-count=%d", limit))
}

func (t *gitTools) diff(ctx context.Context, args json.RawMessage) *tool.Result {
	var a struct {
		Repo string `json:"repo"`
		Ref  string `json:"ref"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}

	repo, err := t.repoPath(a.Repo)
	if err != nil {
		return tool.Errorf("repo rejected: %s", err)
	}

	gitArgs := []string{"diff"}
	if a.Ref != "" {
		if !refPattern.MatchString(a.Ref) {
			return tool.Errorf("ref rejected: %q is not a valid revision", a.Ref)
		}
		gitArgs = append(gitArgs, a.Ref)
	}
	return t.runGit(ctx, repo, gitArgs...)
}
