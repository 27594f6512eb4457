// ABOUTME: Tests for the read-only git tools.
// ABOUTME: Sandbox rejection and ref shape checks run without a git binary.

package tools

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calder-labs/opsgate/internal/auth"
	"github.com/calder-labs/opsgate/internal/registry"
)

func setupGit(t *testing.T, root string) *registry.Registry {
	t.Helper()
	reg := registry.New(slog.Default())
	authz := auth.NewAuthorizer("admin:*")
	RegisterGit(reg, authz, GitConfig{Roots: []string{root}, Timeout: 10 * time.Second})
	return reg
}

func TestGitRepoOutsideSandbox(t *testing.T) {
	reg := setupGit(t, t.TempDir())
	outside := t.TempDir()

	for _, name := range []string{"git_status", "git_log", "git_diff"} {
		res := callJSON(t, reg, name, map[string]any{"repo": outside})
		if !res.IsError {
			t.Fatalf("%s: expected error for repo outside sandbox", name)
		}
		if !strings.Contains(res.Reason(), "repo rejected") {
			t.Fatalf("%s: reason = %q", name, res.Reason())
		}
	}
}

func TestGitDiffRejectsOptionShapedRef(t *testing.T) {
	root := t.TempDir()
	reg := setupGit(t, root)

	for _, ref := range []string{"--output=/tmp/x", "-p", "--", " "} {
		res := callJSON(t, reg, "git_diff", map[string]any{"repo": root, "ref": ref})
		if !res.IsError {
			t.Fatalf("ref %q accepted", ref)
		}
	}
}

func TestGitRepoPathNeverShellExpanded(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	reg := setupGit(t, root)

	// A repo path shaped like a command substitution validates (the final
	// component is treated as a not-yet-existing entry under the root), so it
	// must reach git verbatim as an argv element. If it ever travels through
	// a shell again, the substitution runs and drops a marker file in the
	// working directory.
	const marker = "shell-expansion-marker"
	t.Cleanup(func() { os.Remove(marker) })

	repo := root + "/$(touch " + marker + ")"
	res := callJSON(t, reg, "git_status", map[string]any{"repo": repo})
	if !res.IsError {
		t.Fatal("expected error result for a nonexistent repo")
	}
	if _, err := os.Stat(marker); err == nil {
		t.Fatal("repo path was interpreted by a shell")
	}
}

func TestGitStatusInRealRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	repo := filepath.Join(root, "proj")
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", repo)

	reg := setupGit(t, root)
	res := callJSON(t, reg, "git_status", map[string]any{"repo": repo})
	if res.IsError {
		t.Fatalf("git_status failed: %s", res.Reason())
	}
	if !strings.Contains(res.Content[0].Text, "exit code: 0") {
		t.Fatalf("unexpected output: %q", res.Content[0].Text)
	}
}
