package sdk

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode selects whether the agent may execute tools.
type Mode string

const (
	// ModePlanner disables all tool execution; the model may only reason.
	ModePlanner Mode = "planner"
	// ModeBuilder allows tool execution within budgets.
	ModeBuilder Mode = "builder"
)

// NewRunID generates a run identifier of the form run_<unix>_<uuid8>.
// Run ids are grep-able across trace logs.
func NewRunID() string {
	return fmt.Sprintf("run_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}

// NewConversationID generates a conversation identifier.
func NewConversationID() string {
	return "conv_" + uuid.NewString()
}

// ConversationState holds the message history of one conversation. A
// conversation owns its messages for as long as it lives.
type ConversationState struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation.
func NewConversation() *ConversationState {
	now := time.Now()
	return &ConversationState{
		ID:        NewConversationID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a message to the conversation.
func (c *ConversationState) AddMessage(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
}

// ExecutionContext tracks one execution run: step and tool budgets, the mode,
// and the append-only step history. It is mutable and belongs to a single
// conversation turn; it must only be touched from the loop goroutine.
//
// ShouldContinue gates each new loop iteration on CurrentStep < MaxSteps and
// CanUseTool gates each tool call on ToolsUsedThisStep < MaxToolsPerStep.
// AddStep resets the per-step tool counter but does not cap CurrentStep: an
// iteration that starts below MaxSteps adds its think and observe steps and
// may end past it.
type ExecutionContext struct {
	RunID             string
	ConversationID    string
	CurrentStep       int
	MaxSteps          int
	MaxToolsPerStep   int
	ToolsUsedThisStep int
	Mode              Mode
	Steps             []Step
	StartedAt         time.Time
	Metadata          map[string]any
}

// NewExecutionContext creates an execution context with the given budgets in
// builder mode.
func NewExecutionContext(conversationID string, maxSteps, maxToolsPerStep int) *ExecutionContext {
	if maxSteps <= 0 {
		maxSteps = 50
	}
	if maxToolsPerStep <= 0 {
		maxToolsPerStep = 10
	}
	return &ExecutionContext{
		RunID:           NewRunID(),
		ConversationID:  conversationID,
		MaxSteps:        maxSteps,
		MaxToolsPerStep: maxToolsPerStep,
		Mode:            ModeBuilder,
		StartedAt:       time.Now(),
		Metadata:        make(map[string]any),
	}
}

// AddStep appends a step to the history, advances the step counter, and
// resets the per-step tool counter. Every path that continues the loop
// without executing tools must cross a step boundary via AddStep, otherwise
// the per-step budget would never refresh.
func (e *ExecutionContext) AddStep(step Step) {
	e.Steps = append(e.Steps, step)
	e.CurrentStep++
	e.ToolsUsedThisStep = 0
}

// ShouldContinue reports whether the step budget allows another step.
func (e *ExecutionContext) ShouldContinue() bool {
	return e.CurrentStep < e.MaxSteps
}

// CanUseTool reports whether the per-step tool budget allows another tool
// call.
func (e *ExecutionContext) CanUseTool() bool {
	return e.ToolsUsedThisStep < e.MaxToolsPerStep
}

// RecordToolUse consumes one unit of the per-step tool budget.
func (e *ExecutionContext) RecordToolUse() {
	e.ToolsUsedThisStep++
}

// IsPlannerMode reports whether tools are disabled.
func (e *ExecutionContext) IsPlannerMode() bool {
	return e.Mode == ModePlanner
}

// SetMode switches between planner and builder mode.
func (e *ExecutionContext) SetMode(mode Mode) error {
	if mode != ModePlanner && mode != ModeBuilder {
		return fmt.Errorf("invalid mode %q", mode)
	}
	e.Mode = mode
	return nil
}

// ToolCallsUsed counts tool results recorded across all steps.
func (e *ExecutionContext) ToolCallsUsed() int {
	n := 0
	for _, s := range e.Steps {
		n += len(s.ToolResults)
	}
	return n
}
