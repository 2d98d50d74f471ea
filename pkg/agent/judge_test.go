package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

func observeWithCall(name string, args map[string]any, success bool) sdk.Step {
	return sdk.Step{
		Kind:        sdk.StepObserve,
		ToolCalls:   []sdk.ToolCall{{ID: "x", Name: name, Arguments: args}},
		ToolResults: []sdk.ToolResult{{ToolCallID: "x", Success: success}},
	}
}

func TestCheckProgress(t *testing.T) {
	judge := NewJudge()

	assert.True(t, judge.CheckProgress(nil).Passed)

	steps := []sdk.Step{
		observeWithCall("echo", nil, false),
		observeWithCall("echo", nil, false),
	}
	j := judge.CheckProgress(steps)
	assert.False(t, j.Passed)
	assert.Equal(t, "warning", j.Severity)
}

func TestCheckToolLoop(t *testing.T) {
	judge := NewJudge()

	steps := []sdk.Step{
		observeWithCall("read_file", map[string]any{"path": "a"}, true),
		observeWithCall("read_file", map[string]any{"path": "b"}, true),
		observeWithCall("read_file", map[string]any{"path": "c"}, true),
	}
	j := judge.CheckToolLoop(steps)
	assert.False(t, j.Passed)
	assert.Contains(t, j.Reason, "read_file")

	mixed := []sdk.Step{
		observeWithCall("read_file", nil, true),
		observeWithCall("write_file", nil, true),
		observeWithCall("read_file", nil, true),
	}
	assert.True(t, judge.CheckToolLoop(mixed).Passed)
}

func TestCheckToolResult(t *testing.T) {
	judge := NewJudge()

	failed := judge.CheckToolResult(sdk.ToolResult{Success: false, Error: "boom\ndetail"})
	assert.False(t, failed.Passed)
	assert.Contains(t, failed.Reason, "boom")

	empty := judge.CheckToolResult(sdk.ToolResult{Success: true, Output: "  "})
	assert.True(t, empty.Passed)
	assert.Equal(t, "info", empty.Severity)

	good := judge.CheckToolResult(sdk.ToolResult{Success: true, Output: "data"})
	assert.True(t, good.Passed)
}

func TestCheckWorkflowDiscipline(t *testing.T) {
	judge := NewJudge()

	// Code written, no tests run.
	steps := []sdk.Step{
		observeWithCall("write_file", map[string]any{"path": "notes/server.py"}, true),
	}
	j := judge.CheckWorkflowDiscipline(steps)
	assert.False(t, j.Passed)
	assert.Contains(t, j.Suggestion, "tests")

	// Tests run after the write.
	steps = append(steps, observeWithCall("shell", map[string]any{"command": "pytest -q"}, true))
	assert.True(t, judge.CheckWorkflowDiscipline(steps).Passed)

	// Document writes don't demand tests.
	docs := []sdk.Step{observeWithCall("write_file", map[string]any{"path": "notes/readme.md"}, true)}
	assert.True(t, judge.CheckWorkflowDiscipline(docs).Passed)
}

func TestCheckPatchDiscipline(t *testing.T) {
	judge := NewJudge()

	direct := []sdk.Step{
		observeWithCall("write_file", map[string]any{"path": "repos/demo/main.go"}, true),
	}
	j := judge.CheckPatchDiscipline(direct)
	assert.False(t, j.Passed)
	assert.Contains(t, j.Suggestion, "propose_patch")

	viaPatch := []sdk.Step{
		observeWithCall("propose_patch", map[string]any{"title": "fix"}, true),
		observeWithCall("write_file", map[string]any{"path": "repos/demo/main.go"}, true),
	}
	assert.True(t, judge.CheckPatchDiscipline(viaPatch).Passed)

	workspaceWrite := []sdk.Step{
		observeWithCall("write_file", map[string]any{"path": "notes/scratch.py"}, true),
	}
	assert.True(t, judge.CheckPatchDiscipline(workspaceWrite).Passed)
}
