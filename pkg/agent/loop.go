package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/gateway"
	"github.com/wyrmspire/agentcore/pkg/preflight"
	"github.com/wyrmspire/agentcore/pkg/queue"
	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/tool"
)

// BudgetExhaustedCode is recorded in a task's metadata.error when the loop
// halts it for exceeding its packet budget.
const BudgetExhaustedCode = "BUDGET_EXHAUSTED"

// State pairs a conversation with its current execution context.
type State struct {
	Conversation *sdk.ConversationState
	Execution    *sdk.ExecutionContext
}

// NewState creates loop state with fresh budgets.
func NewState(maxSteps, maxToolsPerStep int) *State {
	conv := sdk.NewConversation()
	return &State{
		Conversation: conv,
		Execution:    sdk.NewExecutionContext(conv.ID, maxSteps, maxToolsPerStep),
	}
}

// Result is the outcome of one loop turn.
type Result struct {
	Success     bool
	FinalAnswer string
	StepsTaken  int
	Error       string
}

// Config tunes the loop.
type Config struct {
	EnableJudge     bool
	EnablePreflight bool
}

// Loop drives a single conversation turn to completion: model turn → tool
// batch → observation → guidance injection, until the model answers without
// tool calls, a budget exhausts, or an active task terminates.
type Loop struct {
	gateway  gateway.Gateway
	registry *tool.Registry
	executor *tool.Executor
	checker  *preflight.Checker
	judge    *Judge
	tasks    *queue.Queue // optional; enables active-task budget enforcement
	config   Config
}

// NewLoop creates a loop. tasks may be nil when no queue is in play.
func NewLoop(gw gateway.Gateway, registry *tool.Registry, executor *tool.Executor, tasks *queue.Queue, config Config) *Loop {
	l := &Loop{
		gateway:  gw,
		registry: registry,
		executor: executor,
		tasks:    tasks,
		config:   config,
	}
	if config.EnablePreflight {
		l.checker = preflight.NewChecker()
	}
	if config.EnableJudge {
		l.judge = NewJudge()
	}
	return l
}

// Checker exposes the preflight checker (nil when preflight is disabled).
func (l *Loop) Checker() *preflight.Checker { return l.checker }

// Run executes one turn for a user message. It never panics outward: a
// gateway or internal failure produces a Result with Success=false, a
// generic user-facing answer, and the underlying error attached for logs.
// The step list reflects exactly what ran.
func (l *Loop) Run(ctx context.Context, state *State, userMessage string) *Result {
	exec := state.Execution
	tracer := NewTrace(exec.RunID)

	state.Conversation.AddMessage(sdk.Message{Role: sdk.RoleUser, Content: userMessage})

	var activeTask *queue.TaskPacket
	taskToolCalls := 0
	taskStepsAtEntry := 0
	if l.tasks != nil {
		activeTask = l.tasks.ActiveTask()
		if activeTask != nil {
			taskStepsAtEntry = exec.CurrentStep
			logger.GetLogger().Info().
				Str("task_id", activeTask.TaskID).
				Int("max_tool_calls", activeTask.Budget.MaxToolCalls).
				Int("max_steps", activeTask.Budget.MaxSteps).
				Msg("Running under active task budget")
		}
	}

	for exec.ShouldContinue() {
		if err := ctx.Err(); err != nil {
			return l.failResult(exec, err)
		}

		var defs []sdk.ToolDefinition
		if l.registry != nil && l.registry.Count() > 0 {
			defs = l.registry.Definitions()
		}

		response, err := l.gateway.Complete(ctx, state.Conversation.Messages, defs)
		if err != nil {
			return l.failResult(exec, fmt.Errorf("gateway: %w", err))
		}

		exec.AddStep(sdk.Step{Kind: sdk.StepThink, Content: response.Content})
		tracer.Step(exec.CurrentStep, exec.MaxSteps, sdk.StepThink)
		if l.checker != nil {
			l.checker.Breaker.CurrentStep = exec.CurrentStep
		}

		if !response.HasToolCalls() {
			state.Conversation.AddMessage(sdk.Message{Role: sdk.RoleAssistant, Content: response.Content})
			return &Result{Success: true, FinalAnswer: response.Content, StepsTaken: exec.CurrentStep}
		}

		// Record the assistant's proposals so tool messages have antecedents.
		state.Conversation.AddMessage(sdk.Message{
			Role:      sdk.RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		var pf preflight.Result
		pf.Passed = true
		if l.checker != nil {
			pf = l.checker.Check(response.ToolCalls, exec.Mode, response.Content)
			if !pf.Passed {
				guidance := "Preflight blocked the requested tools:\n- " + strings.Join(pf.Failures, "\n- ")
				if len(pf.Warnings) > 0 {
					guidance += "\nNotes:\n- " + strings.Join(pf.Warnings, "\n- ")
				}
				state.Conversation.AddMessage(sdk.Message{Role: sdk.RoleSystem, Content: guidance})
				if pf.ForcedPlanMode {
					_ = exec.SetMode(sdk.ModePlanner)
					state.Conversation.AddMessage(sdk.Message{
						Role:    sdk.RoleSystem,
						Content: "Planner mode engaged: produce a plan before acting again. Emit OVERRIDE: with justification only if you are certain the approach is right.",
					})
				}
				// The think-step above is the step boundary; the next
				// iteration starts with a fresh per-step tool budget.
				continue
			}
			if len(pf.Warnings) > 0 {
				state.Conversation.AddMessage(sdk.Message{
					Role:    sdk.RoleSystem,
					Content: "Preflight notes:\n- " + strings.Join(pf.Warnings, "\n- "),
				})
			}
		}

		if !exec.CanUseTool() {
			exec.AddStep(sdk.Step{
				Kind:    sdk.StepThink,
				Content: "Budget exhausted; summarizing progress and replanning.",
			})
			state.Conversation.AddMessage(sdk.Message{
				Role:    sdk.RoleSystem,
				Content: "Tool budget exhausted. Summarize what you've learned and replan your next step.",
			})
			continue
		}

		results, executedCalls, budgetHit := l.executeBatch(ctx, exec, tracer, response.ToolCalls, pf.Rewrites)
		taskToolCalls += len(results)

		// One observe step per batch; the step boundary resets the per-step
		// tool counter for the next turn.
		exec.AddStep(observeStep(executedCalls, results))

		for _, result := range results {
			content := result.Output
			if !result.Success {
				content = result.Error
			}
			state.Conversation.AddMessage(sdk.Message{
				Role:       sdk.RoleTool,
				Content:    content,
				ToolCallID: result.ToolCallID,
			})
		}

		if budgetHit {
			skipped := len(response.ToolCalls) - len(results)
			tracer.BudgetExhausted(skipped)
			state.Conversation.AddMessage(sdk.Message{
				Role:    sdk.RoleSystem,
				Content: fmt.Sprintf("Tool budget hit mid-batch: %d tool(s) skipped. Summarize progress and replan the remaining work.", skipped),
			})
		}

		l.injectJudgeGuidance(state)

		if activeTask != nil {
			stepsUsed := exec.CurrentStep - taskStepsAtEntry
			if taskToolCalls >= activeTask.Budget.MaxToolCalls || stepsUsed >= activeTask.Budget.MaxSteps {
				return l.failActiveTask(state, activeTask, taskToolCalls, stepsUsed)
			}
		}
	}

	return &Result{
		Success:     true,
		FinalAnswer: "I've reached the maximum number of reasoning steps. Please try a simpler request.",
		StepsTaken:  exec.CurrentStep,
	}
}

// executeBatch runs proposals with the per-tool budget check before each one.
// A budget of 2 against a batch of 5 executes exactly 2 and skips 3.
func (l *Loop) executeBatch(ctx context.Context, exec *sdk.ExecutionContext, tracer *Trace, calls []sdk.ToolCall, rewrites map[string]*preflight.PathRewrite) ([]*sdk.ToolResult, []sdk.ToolCall, bool) {
	var results []*sdk.ToolResult
	var executed []sdk.ToolCall
	budgetHit := false

	for _, call := range calls {
		if !exec.CanUseTool() {
			budgetHit = true
			break
		}
		exec.RecordToolUse()

		// Apply safe path rewrites to a copy; the proposal is never mutated.
		run := call
		if rw, ok := rewrites[call.ID]; ok && rw.Safety == preflight.RewriteSafe {
			args := make(map[string]any, len(call.Arguments))
			for k, v := range call.Arguments {
				args[k] = v
			}
			args["path"] = rw.Rewritten
			run.Arguments = args
		}

		tracer.ToolCall(run)
		start := time.Now()
		result := l.executor.Execute(ctx, run)
		tracer.ToolResult(result, float64(time.Since(start).Microseconds())/1000.0, run.Name)

		if l.checker != nil {
			if result.Success {
				l.checker.Breaker.RecordSuccess(call)
			} else {
				l.checker.Breaker.RecordFailure(call, result.Error)
			}
		}

		results = append(results, result)
		executed = append(executed, call)
	}
	return results, executed, budgetHit
}

func observeStep(calls []sdk.ToolCall, results []*sdk.ToolResult) sdk.Step {
	step := sdk.Step{Kind: sdk.StepObserve, ToolCalls: calls}
	var contents []string
	for _, r := range results {
		step.ToolResults = append(step.ToolResults, *r)
		if r.Success {
			contents = append(contents, r.Output)
		} else {
			contents = append(contents, r.Error)
		}
	}
	step.Content = strings.Join(contents, "\n---\n")
	return step
}

// injectJudgeGuidance appends advisory system messages for failed judgments,
// each at most once per trigger.
func (l *Loop) injectJudgeGuidance(state *State) {
	if l.judge == nil {
		return
	}
	steps := state.Execution.Steps

	if j := l.judge.CheckProgress(steps); !j.Passed && j.Suggestion != "" {
		state.Conversation.AddMessage(sdk.Message{
			Role:    sdk.RoleSystem,
			Content: fmt.Sprintf("Guidance (%s): %s", j.Reason, j.Suggestion),
		})
	}

	// Inspect each result of the batch that just ran: failures and empty
	// outputs both deserve a nudge.
	if len(steps) > 0 {
		if last := steps[len(steps)-1]; last.Kind == sdk.StepObserve {
			for _, result := range last.ToolResults {
				j := l.judge.CheckToolResult(result)
				switch {
				case !j.Passed:
					state.Conversation.AddMessage(sdk.Message{
						Role:    sdk.RoleSystem,
						Content: fmt.Sprintf("Guidance: %s — do not repeat the call unchanged", j.Reason),
					})
				case j.Suggestion != "":
					state.Conversation.AddMessage(sdk.Message{
						Role:    sdk.RoleSystem,
						Content: fmt.Sprintf("Guidance (%s): %s", j.Reason, j.Suggestion),
					})
				}
			}
		}
	}

	if j := l.judge.CheckToolLoop(steps); !j.Passed && j.Suggestion != "" {
		state.Conversation.AddMessage(sdk.Message{
			Role:    sdk.RoleSystem,
			Content: fmt.Sprintf("Guidance (%s): %s", j.Reason, j.Suggestion),
		})
	}
	if j := l.judge.CheckWorkflowDiscipline(steps); !j.Passed && j.Suggestion != "" {
		state.Conversation.AddMessage(sdk.Message{
			Role:    sdk.RoleSystem,
			Content: fmt.Sprintf("Workflow guidance: %s", j.Suggestion),
		})
	}
	if j := l.judge.CheckPatchDiscipline(steps); !j.Passed && j.Suggestion != "" {
		state.Conversation.AddMessage(sdk.Message{
			Role:    sdk.RoleSystem,
			Content: fmt.Sprintf("Patch protocol: %s", j.Suggestion),
		})
	}
}

// failActiveTask marks the running task failed for budget exhaustion, writes
// its checkpoint, and ends the turn. The conversation may continue; the
// budget applied to the task, not the conversation.
func (l *Loop) failActiveTask(state *State, task *queue.TaskPacket, toolCalls, steps int) *Result {
	errText := fmt.Sprintf("%s: used %d tool calls / %d steps against budget {%d, %d}",
		BudgetExhaustedCode, toolCalls, steps, task.Budget.MaxToolCalls, task.Budget.MaxSteps)

	checkpoint := &queue.Checkpoint{
		TaskID:      task.TaskID,
		WhatWasDone: fmt.Sprintf("Task halted after %d tool calls and %d steps.", toolCalls, steps),
		WhatNext:    fmt.Sprintf("Next: requeue %s with a larger budget or a narrower objective", task.TaskID),
		Blockers:    []string{errText},
	}
	if err := l.tasks.MarkFailed(task.TaskID, errText, checkpoint); err != nil {
		logger.GetLogger().Error().Err(err).Str("task_id", task.TaskID).Msg("Failed to mark task failed")
	}

	state.Conversation.AddMessage(sdk.Message{
		Role:    sdk.RoleSystem,
		Content: fmt.Sprintf("Active task %s exhausted its budget and was marked failed. A checkpoint was written.", task.TaskID),
	})

	return &Result{
		Success:     false,
		FinalAnswer: fmt.Sprintf("Task %s stopped: its budget was exhausted. The checkpoint records what to do next.", task.TaskID),
		StepsTaken:  state.Execution.CurrentStep,
		Error:       errText,
	}
}

func (l *Loop) failResult(exec *sdk.ExecutionContext, err error) *Result {
	logger.GetLogger().Error().Err(err).Str("run_id", exec.RunID).Msg("Agent loop error")
	return &Result{
		Success:     false,
		FinalAnswer: "I encountered an error and cannot complete the request.",
		StepsTaken:  exec.CurrentStep,
		Error:       err.Error(),
	}
}
