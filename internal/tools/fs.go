// ABOUTME: Filesystem tools: read_file, write_file, list_dir.
// ABOUTME: Every path goes through sandbox validation immediately before I/O.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/calder-labs/opsgate/internal/auth"
	"github.com/calder-labs/opsgate/internal/registry"
	"github.com/calder-labs/opsgate/internal/sandbox"
	"github.com/calder-labs/opsgate/internal/tool"
)

// FSConfig configures the filesystem tools.
type FSConfig struct {
	Roots        []string // sandbox roots paths must resolve into
	MaxReadBytes int64    // cap on bytes returned by read_file
}

// fsTools holds the static configuration shared by the filesystem handlers.
type fsTools struct {
	cfg FSConfig
}

// RegisterFS registers the filesystem tools and their scope requirements.
func RegisterFS(reg *registry.Registry, authz *auth.Authorizer, cfg FSConfig) {
	t := &fsTools{cfg: cfg}

	reg.Register(tool.Definition{
		Name:        "read_file",
		Description: "Read the contents of a file inside the sandbox roots.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Absolute path of the file to read"}
			},
			"required": ["path"]
		}`),
	}, t.readFile)
	authz.Require("read_file", "read:filesystem")

	reg.Register(tool.Definition{
		Name:        "write_file",
		Description: "Write content to a file inside the sandbox roots, creating or replacing it.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Absolute path of the file to write"},
				"content": {"type": "string", "description": "Full file content"}
			},
			"required": ["path", "content"]
		}`),
	}, t.writeFile)
	authz.Require("write_file", "write:filesystem")

	reg.Register(tool.Definition{
		Name:        "list_dir",
		Description: "List the entries of a directory inside the sandbox roots.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Absolute path of the directory to list"}
			},
			"required": ["path"]
		}`),
	}, t.listDir)
	authz.Require("list_dir", "read:filesystem")
}

func (t *fsTools) readFile(ctx context.Context, args json.RawMessage) *tool.Result {
	var a struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}

	path, err := sandbox.ValidatePath(a.Path, t.cfg.Roots)
	if err != nil {
		return tool.Errorf("path rejected: %s", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return tool.Errorf("reading file: %s", err)
	}
	defer f.Close()

	// Read one byte past the cap to detect truncation.
	data, err := io.ReadAll(io.LimitReader(f, t.cfg.MaxReadBytes+1))
	if err != nil {
		return tool.Errorf("reading file: %s", err)
	}
	if int64(len(data)) > t.cfg.MaxReadBytes {
		return tool.Textf("%s\n[truncated at %d bytes]", data[:t.cfg.MaxReadBytes], t.cfg.MaxReadBytes)
	}
	return tool.Text(string(data))
}

func (t *fsTools) writeFile(ctx context.Context, args json.RawMessage) *tool.Result {
	var a struct {
		Path    string  `json:"path"`
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if a.Content == nil {
		return tool.Errorf("content is required")
	}

	path, err := sandbox.ValidatePath(a.Path, t.cfg.Roots)
	if err != nil {
		return tool.Errorf("path rejected: %s", err)
	}

	if err := os.WriteFile(path, []byte(*a.Content), 0o644); err != nil {
		return tool.Errorf("writing file: %s", err)
	}
	return tool.Textf("Wrote %d bytes to %s", len(*a.Content), path)
}

func (t *fsTools) listDir(ctx context.Context, args json.RawMessage) *tool.Result {
	var a struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}

	path, err := sandbox.ValidatePath(a.Path, t.cfg.Roots)
	if err != nil {
		return tool.Errorf("path rejected: %s", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return tool.Errorf("listing directory: %s", err)
	}

	var b strings.Builder
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintln(&b, name)
	}
	if b.Len() == 0 {
		return tool.Textf("%s is empty", path)
	}
	return tool.Text(strings.TrimRight(b.String(), "\n"))
}
