package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyrmspire/agentcore/pkg/gateway"
	"github.com/wyrmspire/agentcore/pkg/queue"
	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/tool"
	"github.com/wyrmspire/agentcore/pkg/workspace"
)

func echoTool() tool.Handler {
	return &tool.Func{
		ToolName:        "echo",
		ToolDescription: "Echo text back.",
		ToolParameters: tool.ObjectSchema(map[string]any{
			"text": tool.StringProp("Text to echo"),
		}, "text"),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			text, _ := args["text"].(string)
			return tool.OK("echo: " + text), nil
		},
	}
}

// missingReadTool mimics read_file against paths that never exist.
func missingReadTool() tool.Handler {
	return &tool.Func{
		ToolName:        "read_file",
		ToolDescription: "Read a file.",
		ToolParameters: tool.ObjectSchema(map[string]any{
			"path": tool.StringProp("File path"),
		}, "path"),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			path, _ := args["path"].(string)
			return nil, &workspace.Error{
				BlockedBy: workspace.BlockedByMissing,
				Code:      workspace.CodeNotFound,
				Message:   fmt.Sprintf("path does not exist: %s", path),
			}
		},
	}
}

func newTestLoop(t *testing.T, mock *gateway.Mock, tasks *queue.Queue, handlers ...tool.Handler) *Loop {
	t.Helper()
	registry := tool.NewRegistry()
	for _, h := range handlers {
		require.NoError(t, registry.Register(h))
	}
	executor := tool.NewExecutor(registry, tool.NewEngine(), tool.ExecutorConfig{Timeout: 2 * time.Second})
	return NewLoop(mock, registry, executor, tasks, Config{EnableJudge: true, EnablePreflight: true})
}

func echoCall(id, text string) sdk.ToolCall {
	return sdk.ToolCall{ID: id, Name: "echo", Arguments: map[string]any{"text": text}}
}

func systemMessages(state *State) []string {
	var out []string
	for _, m := range state.Conversation.Messages {
		if m.Role == sdk.RoleSystem {
			out = append(out, m.Content)
		}
	}
	return out
}

func toolMessages(state *State) []sdk.Message {
	var out []sdk.Message
	for _, m := range state.Conversation.Messages {
		if m.Role == sdk.RoleTool {
			out = append(out, m)
		}
	}
	return out
}

func TestRun_FinalAnswerWithoutTools(t *testing.T) {
	mock := gateway.NewMock().Script(&sdk.Response{Content: "All done.", FinishReason: "stop"})
	loop := newTestLoop(t, mock, nil, echoTool())
	state := NewState(10, 5)

	result := loop.Run(context.Background(), state, "hello")

	require.True(t, result.Success)
	assert.Equal(t, "All done.", result.FinalAnswer)
	assert.Equal(t, 1, result.StepsTaken)
}

func TestRun_ToolRoundTrip(t *testing.T) {
	mock := gateway.NewMock().Script(
		&sdk.Response{
			Content:      "Calling the tool.",
			ToolCalls:    []sdk.ToolCall{echoCall("c1", "ping")},
			FinishReason: "tool_calls",
		},
		&sdk.Response{Content: "Tool said ping.", FinishReason: "stop"},
	)
	loop := newTestLoop(t, mock, nil, echoTool())
	state := NewState(10, 5)

	result := loop.Run(context.Background(), state, "use the tool")

	require.True(t, result.Success)
	tools := toolMessages(state)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo: ping", tools[0].Content)
	assert.Equal(t, "c1", tools[0].ToolCallID)
	assert.Equal(t, 2, mock.Calls())
}

func TestRun_BudgetMidBatchHardStop(t *testing.T) {
	// Five proposals against a per-step budget of two.
	batch := []sdk.ToolCall{
		echoCall("c1", "one"), echoCall("c2", "two"), echoCall("c3", "three"),
		echoCall("c4", "four"), echoCall("c5", "five"),
	}
	mock := gateway.NewMock().Script(
		&sdk.Response{Content: "Batch.", ToolCalls: batch, FinishReason: "tool_calls"},
		&sdk.Response{Content: "Wrapped up.", FinishReason: "stop"},
	)
	loop := newTestLoop(t, mock, nil, echoTool())
	state := NewState(10, 2)

	result := loop.Run(context.Background(), state, "go")
	require.True(t, result.Success)

	// Exactly 2 executed, 3 skipped.
	tools := toolMessages(state)
	require.Len(t, tools, 2)
	assert.Equal(t, "echo: one", tools[0].Content)
	assert.Equal(t, "echo: two", tools[1].Content)

	budgetMsgs := 0
	for _, msg := range systemMessages(state) {
		if strings.Contains(msg, "3 tool(s) skipped") {
			budgetMsgs++
		}
	}
	assert.Equal(t, 1, budgetMsgs, "exactly one budget-exhausted guidance message")

	// Loop continued to the next turn with a reset counter.
	assert.Equal(t, 2, mock.Calls())
	assert.Equal(t, "Wrapped up.", result.FinalAnswer)
}

func TestRun_IntentExhaustionForcesPlannerMode(t *testing.T) {
	readCall := func(id, path string) sdk.ToolCall {
		return sdk.ToolCall{ID: id, Name: "read_file", Arguments: map[string]any{"path": path}}
	}
	mock := gateway.NewMock().Script(
		&sdk.Response{Content: "try a", ToolCalls: []sdk.ToolCall{readCall("r1", "a.csv")}},
		&sdk.Response{Content: "try b", ToolCalls: []sdk.ToolCall{readCall("r2", "b.csv")}},
		&sdk.Response{Content: "try c", ToolCalls: []sdk.ToolCall{readCall("r3", "c.csv")}},
		&sdk.Response{Content: "try d", ToolCalls: []sdk.ToolCall{readCall("r4", "d.csv")}},
		&sdk.Response{Content: "Giving up; here is my plan.", FinishReason: "stop"},
	)
	loop := newTestLoop(t, mock, nil, missingReadTool())
	state := NewState(20, 5)

	result := loop.Run(context.Background(), state, "find the data")
	require.True(t, result.Success)

	msgs := systemMessages(state)
	joined := strings.Join(msgs, "\n===\n")
	assert.Contains(t, joined, "INTENT EXHAUSTED", "deterministic failures must exhaust the intent")
	assert.Contains(t, joined, "Planner mode")
	assert.True(t, state.Execution.IsPlannerMode(), "loop switched to planner mode")

	// Later proposals were refused without execution.
	assert.Contains(t, joined, "Planner mode is active")
}

func TestRun_PathGateBlocksKnownBadPath(t *testing.T) {
	readCall := func(id, path string) sdk.ToolCall {
		return sdk.ToolCall{ID: id, Name: "read_file", Arguments: map[string]any{"path": path}}
	}
	mock := gateway.NewMock().Script(
		&sdk.Response{Content: "reading", ToolCalls: []sdk.ToolCall{readCall("r1", "ghost.txt")}},
		&sdk.Response{Content: "reading again", ToolCalls: []sdk.ToolCall{readCall("r2", "ghost.txt")}},
		&sdk.Response{Content: "ok, done", FinishReason: "stop"},
	)
	loop := newTestLoop(t, mock, nil, missingReadTool())
	state := NewState(20, 5)

	result := loop.Run(context.Background(), state, "read it")
	require.True(t, result.Success)

	joined := strings.Join(systemMessages(state), "\n")
	assert.Contains(t, joined, "PATH GATE")
	// Only the first attempt actually executed.
	assert.Len(t, toolMessages(state), 1)
}

func TestRun_RepeatedFailuresTriggerProgressGuidance(t *testing.T) {
	flaky := &tool.Func{
		ToolName:        "flaky",
		ToolDescription: "Always fails with a transient error.",
		ToolParameters: tool.ObjectSchema(map[string]any{
			"attempt": tool.StringProp("attempt marker"),
		}, "attempt"),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			return nil, errors.New("transient flake")
		},
	}
	flakyCall := func(id, attempt string) sdk.ToolCall {
		return sdk.ToolCall{ID: id, Name: "flaky", Arguments: map[string]any{"attempt": attempt}}
	}
	mock := gateway.NewMock().Script(
		&sdk.Response{Content: "try once", ToolCalls: []sdk.ToolCall{flakyCall("f1", "one")}},
		&sdk.Response{Content: "try twice", ToolCalls: []sdk.ToolCall{flakyCall("f2", "two")}},
		&sdk.Response{Content: "stopping here", FinishReason: "stop"},
	)
	loop := newTestLoop(t, mock, nil, flaky)
	state := NewState(20, 5)

	result := loop.Run(context.Background(), state, "do the thing")
	require.True(t, result.Success)

	joined := strings.Join(systemMessages(state), "\n")
	assert.Contains(t, joined, "different approach",
		"two failures in a row must surface the progress guidance")
	assert.Contains(t, joined, "do not repeat the call unchanged",
		"each failed result is judged")
}

func TestRun_EmptyOutputTriggersGuidance(t *testing.T) {
	silent := &tool.Func{
		ToolName:        "silent",
		ToolDescription: "Succeeds with no output.",
		ToolParameters:  tool.ObjectSchema(map[string]any{}),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			return tool.OK(""), nil
		},
	}
	mock := gateway.NewMock().Script(
		&sdk.Response{Content: "calling", ToolCalls: []sdk.ToolCall{{ID: "s1", Name: "silent"}}},
		&sdk.Response{Content: "done", FinishReason: "stop"},
	)
	loop := newTestLoop(t, mock, nil, silent)
	state := NewState(10, 5)

	result := loop.Run(context.Background(), state, "run it")
	require.True(t, result.Success)

	joined := strings.Join(systemMessages(state), "\n")
	assert.Contains(t, joined, "Verify this was expected")
}

func TestRun_GatewayErrorReturnsFailure(t *testing.T) {
	loop := NewLoop(&erroringGateway{}, tool.NewRegistry(), tool.NewExecutor(tool.NewRegistry(), nil, tool.ExecutorConfig{}), nil, Config{})
	state := NewState(5, 5)

	result := loop.Run(context.Background(), state, "hi")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "backend exploded")
	assert.Equal(t, "I encountered an error and cannot complete the request.", result.FinalAnswer)
}

func TestRun_MaxStepsReached(t *testing.T) {
	// The mock keeps proposing tools forever; the step limit halts it.
	mock := gateway.NewMock()
	for i := 0; i < 10; i++ {
		mock.Script(&sdk.Response{
			Content:   fmt.Sprintf("turn %d", i),
			ToolCalls: []sdk.ToolCall{echoCall(fmt.Sprintf("c%d", i), "x")},
		})
	}
	loop := newTestLoop(t, mock, nil, echoTool())
	state := NewState(4, 5)

	result := loop.Run(context.Background(), state, "loop forever")

	require.True(t, result.Success)
	assert.Contains(t, result.FinalAnswer, "maximum number of reasoning steps")
	assert.GreaterOrEqual(t, state.Execution.CurrentStep, 4)
}

func TestRun_ActiveTaskBudgetEnforced(t *testing.T) {
	tasks, err := queue.Open(t.TempDir())
	require.NoError(t, err)
	taskID, err := tasks.AddTask("bounded work", queue.AddOptions{
		Budget: queue.Budget{MaxToolCalls: 2, MaxSteps: 50},
	})
	require.NoError(t, err)
	active, err := tasks.GetNext()
	require.NoError(t, err)
	require.NotNil(t, active)

	// The model requests one tool per turn, forever.
	mock := gateway.NewMock()
	for i := 0; i < 6; i++ {
		mock.Script(&sdk.Response{
			Content:   fmt.Sprintf("step %d", i),
			ToolCalls: []sdk.ToolCall{echoCall(fmt.Sprintf("c%d", i), "x")},
		})
	}
	loop := newTestLoop(t, mock, tasks, echoTool())
	state := NewState(50, 5)

	result := loop.Run(context.Background(), state, "work the task")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, BudgetExhaustedCode)
	assert.LessOrEqual(t, mock.Calls(), 2, "two turns at one tool each reach the budget")
	assert.Len(t, toolMessages(state), 2)

	// Task is terminal with the error recorded, checkpoint written, pointer
	// cleared.
	task, ok := tasks.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusFailed, task.Status)
	assert.Contains(t, task.Metadata["error"], BudgetExhaustedCode)
	assert.FileExists(t, tasks.CheckpointPath(taskID))
	assert.NoFileExists(t, tasks.ActiveTaskPath())
}

func TestRun_SafeRewriteAppliedByExecutor(t *testing.T) {
	var seenPath string
	recorder := &tool.Func{
		ToolName:        "write_file",
		ToolDescription: "Record the path it was invoked with.",
		ToolParameters: tool.ObjectSchema(map[string]any{
			"path":    tool.StringProp("path"),
			"content": tool.StringProp("content"),
		}, "path", "content"),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			seenPath, _ = args["path"].(string)
			return tool.OK("written"), nil
		},
	}
	mock := gateway.NewMock().Script(
		&sdk.Response{Content: "writing", ToolCalls: []sdk.ToolCall{{
			ID:   "w1",
			Name: "write_file",
			Arguments: map[string]any{
				"path":    "workspace/workspace/notes/x.txt",
				"content": "hello",
			},
		}}},
		&sdk.Response{Content: "done", FinishReason: "stop"},
	)
	loop := newTestLoop(t, mock, nil, recorder)
	state := NewState(10, 5)

	result := loop.Run(context.Background(), state, "write the note")
	require.True(t, result.Success)
	assert.Equal(t, "workspace/notes/x.txt", seenPath,
		"executor applies the SAFE rewrite; preflight never mutates the proposal")
}

type erroringGateway struct{}

func (e *erroringGateway) Model() string { return "err" }

func (e *erroringGateway) Complete(ctx context.Context, messages []sdk.Message, tools []sdk.ToolDefinition) (*sdk.Response, error) {
	return nil, errors.New("backend exploded")
}
