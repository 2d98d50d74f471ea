// Package builtin provides the built-in tool handlers: workspace file
// operations, retrieval search, task queue access, patch proposals, and
// agent memory.
package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/tool"
	"github.com/wyrmspire/agentcore/pkg/workspace"
)

const maxReadBytes = 256 * 1024

// ReadFile reads a file from the workspace, or from the project root when
// project=true (read-only, sensitive files blocked).
type ReadFile struct {
	Workspace *workspace.Workspace
}

// Name implements tool.Handler.
func (t *ReadFile) Name() string { return "read_file" }

// Description implements tool.Handler.
func (t *ReadFile) Description() string {
	return "Read a text file. Paths resolve inside the workspace; set project=true to read project source files read-only."
}

// Parameters implements tool.Handler.
func (t *ReadFile) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"path":    tool.StringProp("File path, relative to the workspace (or project root with project=true)"),
		"project": map[string]any{"type": "boolean", "description": "Read from the project root instead of the workspace"},
	}, "path")
}

// Execute implements tool.Handler.
func (t *ReadFile) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	path, _ := args["path"].(string)
	project, _ := args["project"].(bool)

	var resolved string
	var err error
	if project {
		resolved, err = t.Workspace.ResolveProjectRead(path)
	} else {
		resolved, err = t.Workspace.ResolveRead(path)
	}
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, err
	}
	if len(data) > maxReadBytes {
		return tool.OK(fmt.Sprintf("%s\n... [truncated, %d bytes total]", data[:maxReadBytes], len(data))), nil
	}
	return tool.OK(string(data)), nil
}

// WriteFile writes a file inside the workspace. Resource limits are checked
// before every write.
type WriteFile struct {
	Workspace *workspace.Workspace
}

// Name implements tool.Handler.
func (t *WriteFile) Name() string { return "write_file" }

// Description implements tool.Handler.
func (t *WriteFile) Description() string {
	return "Write content to a file inside the workspace, creating parent directories as needed."
}

// Parameters implements tool.Handler.
func (t *WriteFile) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"path":    tool.StringProp("Destination path relative to the workspace"),
		"content": tool.StringProp("Full file content to write"),
	}, "path", "content")
}

// Execute implements tool.Handler.
func (t *WriteFile) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)

	if err := t.Workspace.CheckResources(); err != nil {
		return nil, err
	}
	resolved, err := t.Workspace.ResolveWrite(path)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return nil, err
	}

	rel, _ := t.Workspace.Relative(resolved)
	return tool.OK(fmt.Sprintf("Wrote %d bytes to %s", len(content), rel)), nil
}

// ListFiles lists a workspace directory.
type ListFiles struct {
	Workspace *workspace.Workspace
}

// Name implements tool.Handler.
func (t *ListFiles) Name() string { return "list_files" }

// Description implements tool.Handler.
func (t *ListFiles) Description() string {
	return "List the contents of a workspace directory. Omit path to list the workspace root."
}

// Parameters implements tool.Handler.
func (t *ListFiles) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"path": tool.StringProp("Directory path relative to the workspace; omit for the root"),
	})
}

// Execute implements tool.Handler.
func (t *ListFiles) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	path, _ := args["path"].(string)
	entries, err := t.Workspace.ListContents(path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return tool.OK("(empty directory)"), nil
	}
	return tool.OK(strings.Join(entries, "\n")), nil
}
