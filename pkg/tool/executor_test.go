package tool

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/workspace"
)

func echoHandler() Handler {
	return &Func{
		ToolName:        "echo",
		ToolDescription: "Echo the input back.",
		ToolParameters: ObjectSchema(map[string]any{
			"text": StringProp("Text to echo"),
		}, "text"),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			text, _ := args["text"].(string)
			return OK(text), nil
		},
	}
}

func newTestExecutor(t *testing.T, handlers ...Handler) *Executor {
	t.Helper()
	registry := NewRegistry()
	for _, h := range handlers {
		require.NoError(t, registry.Register(h))
	}
	return NewExecutor(registry, DefaultEngine(), ExecutorConfig{Timeout: 2 * time.Second})
}

func TestExecute_Success(t *testing.T) {
	exec := newTestExecutor(t, echoHandler())

	result := exec.Execute(context.Background(), sdk.ToolCall{
		ID: "call_1", Name: "echo", Arguments: map[string]any{"text": "hello"},
	})

	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Output)
	assert.Equal(t, "call_1", result.ToolCallID, "call id is enforced by the executor")
}

func TestExecute_CallIDOverwritten(t *testing.T) {
	handler := &Func{
		ToolName:        "sloppy",
		ToolDescription: "Returns a result with the wrong call id.",
		ToolParameters:  ObjectSchema(map[string]any{}),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			return &sdk.ToolResult{ToolCallID: "bogus", Output: "ok", Success: true}, nil
		},
	}
	exec := newTestExecutor(t, handler)

	result := exec.Execute(context.Background(), sdk.ToolCall{ID: "call_9", Name: "sloppy"})
	assert.Equal(t, "call_9", result.ToolCallID)
}

func TestExecute_ValidationFailure(t *testing.T) {
	exec := newTestExecutor(t, echoHandler())

	result := exec.Execute(context.Background(), sdk.ToolCall{
		ID: "call_2", Name: "echo", Arguments: map[string]any{},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Invalid arguments")
	assert.Contains(t, result.Error, CodeValidationError)
}

func TestExecute_ValidationRejectsWrongType(t *testing.T) {
	exec := newTestExecutor(t, echoHandler())

	result := exec.Execute(context.Background(), sdk.ToolCall{
		ID: "call_3", Name: "echo", Arguments: map[string]any{"text": 42},
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Invalid arguments")
}

func TestExecute_ToolNotFound(t *testing.T) {
	exec := newTestExecutor(t)

	result := exec.Execute(context.Background(), sdk.ToolCall{ID: "call_4", Name: "ghost"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, CodeToolNotFound)
}

func TestExecute_RuleBlocked(t *testing.T) {
	exec := newTestExecutor(t, echoHandler())

	result := exec.Execute(context.Background(), sdk.ToolCall{
		ID: "call_5", Name: "echo", Arguments: map[string]any{"text": "rm -rf / --no-preserve-root"},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, CodeRuleBlocked)
	assert.Contains(t, result.Error, "no_dangerous_commands")
	assert.Contains(t, result.Error, "Blocked by: rules")
}

func TestExecute_Timeout(t *testing.T) {
	slow := &Func{
		ToolName:        "slow",
		ToolDescription: "Sleeps past its deadline.",
		ToolParameters:  ObjectSchema(map[string]any{}),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			select {
			case <-time.After(5 * time.Second):
				return OK("done"), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	registry := NewRegistry()
	require.NoError(t, registry.Register(slow))
	exec := NewExecutor(registry, nil, ExecutorConfig{
		Timeout:        time.Second,
		PerToolTimeout: map[string]time.Duration{"slow": 20 * time.Millisecond},
	})

	result := exec.Execute(context.Background(), sdk.ToolCall{ID: "call_6", Name: "slow"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, CodeTimeout)
}

func TestExecute_PanicBecomesResult(t *testing.T) {
	panicky := &Func{
		ToolName:        "panicky",
		ToolDescription: "Panics.",
		ToolParameters:  ObjectSchema(map[string]any{}),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			panic("boom")
		},
	}
	exec := newTestExecutor(t, panicky)

	result := exec.Execute(context.Background(), sdk.ToolCall{ID: "call_7", Name: "panicky"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "panic")
}

func TestExecute_WorkspaceErrorTaxonomy(t *testing.T) {
	failing := &Func{
		ToolName:        "reader",
		ToolDescription: "Always reports a missing path.",
		ToolParameters:  ObjectSchema(map[string]any{}),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			return nil, &workspace.Error{
				BlockedBy: workspace.BlockedByMissing,
				Code:      workspace.CodeNotFound,
				Message:   "path does not exist: nope.txt",
			}
		},
	}
	exec := newTestExecutor(t, failing)

	result := exec.Execute(context.Background(), sdk.ToolCall{ID: "call_8", Name: "reader"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Blocked by: missing")
	assert.Contains(t, result.Error, workspace.CodeNotFound)
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoHandler()))
	assert.Error(t, registry.Register(echoHandler()))
}

func TestRegistry_SchemaRootMustBeObject(t *testing.T) {
	registry := NewRegistry()
	bad := &Func{
		ToolName:        "bad",
		ToolDescription: "Schema root is not an object.",
		ToolParameters:  map[string]any{"type": "string"},
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			return OK(""), nil
		},
	}
	assert.Error(t, registry.Register(bad))
}

func TestRegistry_DefinitionsInOrder(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoHandler()))
	require.NoError(t, registry.Register(&Func{
		ToolName:        "second",
		ToolDescription: "Second tool.",
		ToolParameters:  ObjectSchema(map[string]any{}),
		Fn: func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
			return OK(""), nil
		},
	}))

	defs := registry.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "second", defs[1].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])
}

func TestFormatError_Envelope(t *testing.T) {
	text := FormatError("SOME_CODE", workspace.BlockedByWorkspace, "nope", map[string]any{"path": "x"})

	lines := strings.Split(text, "\n")
	assert.Equal(t, "ERROR [SOME_CODE]", lines[0])
	assert.Equal(t, "Blocked by: workspace", lines[1])
	assert.Equal(t, "Message: nope", lines[2])
	assert.Contains(t, lines[3], `"path":"x"`)
}
