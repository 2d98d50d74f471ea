// Package agent implements the reasoning loop that drives a language model
// through cycles of proposal, preflight, execution, observation, and
// judgment, under hard step and tool budgets.
package agent

import (
	"fmt"

	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Trace emits grep-able structured log lines for every tool call. All lines
// carry run_id; CALL and RESULT lines also carry tool_call_id, so a run can be
// reconstructed from logs.
type Trace struct {
	runID string
}

// NewTrace creates a tracer for one run.
func NewTrace(runID string) *Trace {
	return &Trace{runID: runID}
}

// ToolCall logs a tool call initiation.
func (t *Trace) ToolCall(call sdk.ToolCall) {
	args := call.ArgumentsJSON()
	if len(args) > 200 {
		args = args[:200] + "..."
	}
	logger.GetLogger().Info().
		Str("run_id", t.runID).
		Str("tool_call_id", call.ID).
		Str("tool", call.Name).
		Str("args", args).
		Msg("CALL")
}

// ToolResult logs a tool call completion with its elapsed time.
func (t *Trace) ToolResult(result *sdk.ToolResult, elapsedMs float64, toolName string) {
	ev := logger.GetLogger().Info().
		Str("run_id", t.runID).
		Str("tool_call_id", result.ToolCallID).
		Str("tool", toolName).
		Bool("success", result.Success).
		Str("elapsed_ms", fmt.Sprintf("%.1f", elapsedMs))
	if result.Success {
		ev = ev.Int("output_len", len(result.Output))
	} else {
		errSnippet := result.Error
		if len(errSnippet) > 100 {
			errSnippet = errSnippet[:100]
		}
		ev = ev.Str("error", errSnippet)
	}
	ev.Msg("RESULT")
}

// BudgetExhausted logs a mid-batch hard stop.
func (t *Trace) BudgetExhausted(skipped int) {
	logger.GetLogger().Warn().
		Str("run_id", t.runID).
		Int("skipped", skipped).
		Msg("BUDGET_EXHAUSTED")
}

// Step logs step progression.
func (t *Trace) Step(stepNum, maxSteps int, kind sdk.StepKind) {
	logger.GetLogger().Debug().
		Str("run_id", t.runID).
		Int("step", stepNum).
		Int("max_steps", maxSteps).
		Str("kind", string(kind)).
		Msg("STEP")
}
