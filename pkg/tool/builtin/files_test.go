package builtin

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyrmspire/agentcore/pkg/queue"
	"github.com/wyrmspire/agentcore/pkg/workspace"
)

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(filepath.Join(t.TempDir(), "workspace"), workspace.DefaultOptions())
	require.NoError(t, err)
	return ws
}

func TestWriteThenReadFile(t *testing.T) {
	ws := newWorkspace(t)
	ctx := context.Background()

	write := &WriteFile{Workspace: ws}
	result, err := write.Execute(ctx, map[string]any{"path": "notes/hello.md", "content": "# Hi"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "notes")

	read := &ReadFile{Workspace: ws}
	result, err = read.Execute(ctx, map[string]any{"path": "notes/hello.md"})
	require.NoError(t, err)
	assert.Equal(t, "# Hi", result.Output)
}

func TestReadFile_MissingSurfacesWorkspaceError(t *testing.T) {
	ws := newWorkspace(t)

	read := &ReadFile{Workspace: ws}
	_, err := read.Execute(context.Background(), map[string]any{"path": "nope.txt"})
	require.Error(t, err)

	wsErr, ok := err.(*workspace.Error)
	require.True(t, ok)
	assert.Equal(t, workspace.CodeNotFound, wsErr.Code)
}

func TestWriteFile_OutsideWorkspaceBlocked(t *testing.T) {
	ws := newWorkspace(t)

	write := &WriteFile{Workspace: ws}
	_, err := write.Execute(context.Background(), map[string]any{"path": "../escape.txt", "content": "x"})
	require.Error(t, err)

	wsErr, ok := err.(*workspace.Error)
	require.True(t, ok)
	assert.Equal(t, workspace.CodePathOutsideWorkspace, wsErr.Code)
}

func TestListFiles(t *testing.T) {
	ws := newWorkspace(t)
	ctx := context.Background()

	write := &WriteFile{Workspace: ws}
	_, err := write.Execute(ctx, map[string]any{"path": "data/a.csv", "content": "1,2"})
	require.NoError(t, err)

	list := &ListFiles{Workspace: ws}
	result, err := list.Execute(ctx, map[string]any{"path": "data"})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "a.csv")

	// Root listing shows the standard bins.
	result, err = list.Execute(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "queue/")
	assert.Contains(t, result.Output, "patches/")
}

func TestQueueTools_RoundTrip(t *testing.T) {
	ws := newWorkspace(t)
	q, err := queue.Open(filepath.Join(ws.Root(), "queue"))
	require.NoError(t, err)
	ctx := context.Background()

	add := &QueueAdd{Queue: q}
	result, err := add.Execute(ctx, map[string]any{
		"objective":      "demo",
		"max_tool_calls": float64(2),
		"max_steps":      float64(5),
	})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "task_0001")

	next := &QueueNext{Queue: q}
	result, err = next.Execute(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "task_0001")
	assert.FileExists(t, q.ActiveTaskPath())

	done := &QueueDone{Queue: q}
	result, err = done.Execute(ctx, map[string]any{
		"task_id":       "task_0001",
		"what_was_done": "work done",
		"what_next":     "DONE",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "marked done")
	assert.NoFileExists(t, q.ActiveTaskPath())

	// The queue's next pop finds nothing.
	result, err = next.Execute(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "empty")
}
