package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/workspace"
)

// ExecutorConfig configures tool execution.
type ExecutorConfig struct {
	// Timeout is the wall-clock limit per handler invocation.
	Timeout time.Duration
	// PerToolTimeout overrides Timeout for specific tools.
	PerToolTimeout map[string]time.Duration
}

// Executor invokes handlers with validation, a timeout, and error
// normalization. It never returns an error: every failure becomes a
// success=false result. On success it enforces that the result's call id
// equals the proposal's id; handlers may omit it.
type Executor struct {
	registry *Registry
	rules    *Engine
	config   ExecutorConfig
}

// NewExecutor creates an executor over a registry and rule engine.
func NewExecutor(registry *Registry, rules *Engine, config ExecutorConfig) *Executor {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if rules == nil {
		rules = NewEngine()
	}
	return &Executor{registry: registry, rules: rules, config: config}
}

// Rules exposes the safety engine, e.g. for configuration at startup.
func (e *Executor) Rules() *Engine { return e.rules }

func (e *Executor) timeoutFor(name string) time.Duration {
	if d, ok := e.config.PerToolTimeout[name]; ok && d > 0 {
		return d
	}
	return e.config.Timeout
}

// Execute runs one proposal end to end: rule evaluation, lookup, argument
// validation, handler invocation under timeout, and result normalization.
func (e *Executor) Execute(ctx context.Context, call sdk.ToolCall) *sdk.ToolResult {
	if allowed, violations := e.rules.Evaluate(call); !allowed {
		v := violations[0]
		return ErrorResult(call.ID, CodeRuleBlocked, workspace.BlockedByRules,
			fmt.Sprintf("blocked by rule %q: %s", v.RuleName, v.Reason),
			map[string]any{"rule": v.RuleName, "severity": v.Severity})
	}

	handler, ok := e.registry.Get(call.Name)
	if !ok {
		return ErrorResult(call.ID, CodeToolNotFound, workspace.BlockedByRuntime,
			fmt.Sprintf("tool %q not found", call.Name), nil)
	}

	if schema, ok := e.registry.Schema(call.Name); ok {
		args := call.Arguments
		if args == nil {
			args = map[string]any{}
		}
		if err := schema.Validate(normalizeJSON(args)); err != nil {
			return ErrorResult(call.ID, CodeValidationError, workspace.BlockedByRules,
				fmt.Sprintf("Invalid arguments: %v", err), nil)
		}
	}

	result := e.invoke(ctx, handler, call)
	result.ToolCallID = call.ID
	return result
}

// invoke runs the handler in its own goroutine so a stuck tool cannot wedge
// the loop; cancellation is best-effort through the context.
func (e *Executor) invoke(ctx context.Context, handler Handler, call sdk.ToolCall) *sdk.ToolResult {
	timeout := e.timeoutFor(call.Name)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *sdk.ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		result, err := handler.Execute(execCtx, call.Arguments)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			logger.GetLogger().Warn().
				Err(out.err).
				Str("tool", call.Name).
				Msg("Tool execution failed")
			return ResultFromError(call.ID, out.err)
		}
		if out.result == nil {
			return ErrorResult(call.ID, CodeExecutionError, workspace.BlockedByRuntime,
				"handler returned no result", nil)
		}
		return out.result

	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return ErrorResult(call.ID, CodeTimeout, workspace.BlockedByRuntime,
				fmt.Sprintf("tool execution timed out after %s", timeout), nil)
		}
		return ErrorResult(call.ID, CodeCancelled, workspace.BlockedByRuntime,
			"tool execution cancelled", nil)
	}
}

// normalizeJSON coerces Go-typed argument values into the shapes the JSON
// schema validator expects (e.g. int → float64), matching what a decode from
// wire JSON would produce.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeJSON(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
