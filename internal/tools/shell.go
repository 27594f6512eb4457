// ABOUTME: Shell tool: run_command behind the command validator.
// ABOUTME: Execution is bounded by the runner's wall-clock timeout.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calder-labs/opsgate/internal/auth"
	"github.com/calder-labs/opsgate/internal/registry"
	"github.com/calder-labs/opsgate/internal/sandbox"
	"github.com/calder-labs/opsgate/internal/tool"
)

// ShellConfig configures the run_command tool.
type ShellConfig struct {
	Validator *sandbox.CommandValidator
	Timeout   time.Duration
}

// shellTools holds the validator and runner shared by shell handlers.
type shellTools struct {
	validator *sandbox.CommandValidator
	runner    *runner
}

// RegisterShell registers the run_command tool and its scope requirement.
func RegisterShell(reg *registry.Registry, authz *auth.Authorizer, cfg ShellConfig) {
	t := &shellTools{
		validator: cfg.Validator,
		runner:    &runner{timeout: cfg.Timeout},
	}

	reg.Register(tool.Definition{
		Name:        "run_command",
		Description: "Run an allowlisted shell command with optional arguments.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "The command to run, e.g. \"ls -la\""},
				"args": {"type": "array", "items": {"type": "string"}, "description": "Additional arguments"}
			},
			"required": ["command"]
		}`),
	}, t.runCommand)
	authz.Require("run_command", "exec:shell")
}

func (t *shellTools) runCommand(ctx context.Context, args json.RawMessage) *tool.Result {
	var a struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}

	commandLine, err := t.validator.Validate(a.Command, a.Args)
	if err != nil {
		return tool.Errorf("command rejected: %s", err)
	}

	res, err := t.runner.run(ctx, commandLine)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return tool.Errorf("command timed out after %s", t.runner.timeout)
		}
		return tool.Errorf("running command: %s", err)
	}

	return formatRunResult(res)
}

// formatRunResult renders a run's streams and exit code. A non-zero exit is
// an error result carrying the same output.
func formatRunResult(res *runResult) *tool.Result {
	var b strings.Builder
	if res.Stdout != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", strings.TrimRight(res.Stdout, "\n"))
	}
	if res.Stderr != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", strings.TrimRight(res.Stderr, "\n"))
	}
	fmt.Fprintf(&b, "exit code: %d", res.ExitCode)

	if res.ExitCode != 0 {
		return tool.Errorf("%s", b.String())
	}
	return tool.Text(b.String())
}
