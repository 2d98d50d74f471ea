package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wyrmspire/agentcore/pkg/queue"
	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/tool"
)

// QueueAdd adds a task packet to the queue.
type QueueAdd struct {
	Queue *queue.Queue
}

// Name implements tool.Handler.
func (t *QueueAdd) Name() string { return "queue_add" }

// Description implements tool.Handler.
func (t *QueueAdd) Description() string {
	return "Add a task to the execution queue. Use this to break complex work into bounded, resumable units."
}

// Parameters implements tool.Handler.
func (t *QueueAdd) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"objective":      tool.StringProp("Clear statement of what to accomplish"),
		"inputs":         tool.StringArrayProp("Input references: chunk ids, file paths, data sources"),
		"acceptance":     tool.StringProp("Acceptance criteria for completion"),
		"parent_id":      tool.StringProp("Parent task id, for subtasks"),
		"max_tool_calls": tool.IntProp("Tool-call budget (default 30)"),
		"max_steps":      tool.IntProp("Step budget (default 50)"),
	}, "objective")
}

// Execute implements tool.Handler.
func (t *QueueAdd) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	objective, _ := args["objective"].(string)
	acceptance, _ := args["acceptance"].(string)
	parentID, _ := args["parent_id"].(string)

	var inputs []string
	if raw, ok := args["inputs"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				inputs = append(inputs, s)
			}
		}
	}

	taskID, err := t.Queue.AddTask(objective, queue.AddOptions{
		Inputs:     inputs,
		Acceptance: acceptance,
		ParentID:   parentID,
		Budget: queue.Budget{
			MaxToolCalls: intArg(args, "max_tool_calls", 30),
			MaxSteps:     intArg(args, "max_steps", 50),
		},
	})
	if err != nil {
		return nil, err
	}
	return tool.OK(fmt.Sprintf("Task %s queued: %s\nUse queue_next to start it.", taskID, objective)), nil
}

// QueueNext pops the next queued task into the running state.
type QueueNext struct {
	Queue *queue.Queue
}

// Name implements tool.Handler.
func (t *QueueNext) Name() string { return "queue_next" }

// Description implements tool.Handler.
func (t *QueueNext) Description() string {
	return "Start the next queued task. The worker runs exactly one task, then checkpoints."
}

// Parameters implements tool.Handler.
func (t *QueueNext) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{})
}

// Execute implements tool.Handler.
func (t *QueueNext) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	task, err := t.Queue.GetNext()
	if err != nil {
		return nil, err
	}
	if task == nil {
		return tool.OK("Queue is empty: no queued tasks."), nil
	}
	packet, _ := json.MarshalIndent(task, "", "  ")
	return tool.OK(fmt.Sprintf("Now running %s.\n%s", task.TaskID, packet)), nil
}

// QueueDone marks the running task done with a checkpoint.
type QueueDone struct {
	Queue *queue.Queue
}

// Name implements tool.Handler.
func (t *QueueDone) Name() string { return "queue_done" }

// Description implements tool.Handler.
func (t *QueueDone) Description() string {
	return "Mark a task done and write its checkpoint. what_next must be 'Next: <task_id>', 'Spawned: <ids>', or 'DONE'."
}

// Parameters implements tool.Handler.
func (t *QueueDone) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"task_id":       tool.StringProp("Task to complete"),
		"what_was_done": tool.StringProp("Summary of completed work"),
		"what_changed":  tool.StringArrayProp("Artifacts created or modified (patch ids, file paths)"),
		"what_next":     tool.StringProp("Continuation pointer: Next: <task_id>, Spawned: <ids>, or DONE"),
		"citations":     tool.StringArrayProp("Chunk ids consulted"),
	}, "task_id", "what_was_done", "what_next")
}

// Execute implements tool.Handler.
func (t *QueueDone) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	taskID, _ := args["task_id"].(string)
	checkpoint := checkpointFromArgs(taskID, args)
	if err := t.Queue.MarkDone(taskID, checkpoint); err != nil {
		return nil, err
	}
	return tool.OK(fmt.Sprintf("Task %s marked done; checkpoint saved.", taskID)), nil
}

// QueueFail marks the running task failed with an error and checkpoint.
type QueueFail struct {
	Queue *queue.Queue
}

// Name implements tool.Handler.
func (t *QueueFail) Name() string { return "queue_fail" }

// Description implements tool.Handler.
func (t *QueueFail) Description() string {
	return "Mark a task failed, recording the error and a checkpoint for whoever resumes it."
}

// Parameters implements tool.Handler.
func (t *QueueFail) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"task_id":       tool.StringProp("Task to fail"),
		"error":         tool.StringProp("What went wrong"),
		"what_was_done": tool.StringProp("Summary of partial work"),
		"what_next":     tool.StringProp("Continuation pointer for the retry"),
	}, "task_id", "error")
}

// Execute implements tool.Handler.
func (t *QueueFail) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	taskID, _ := args["task_id"].(string)
	errText, _ := args["error"].(string)

	var checkpoint *queue.Checkpoint
	if done, _ := args["what_was_done"].(string); done != "" {
		checkpoint = checkpointFromArgs(taskID, args)
		checkpoint.Blockers = append(checkpoint.Blockers, errText)
	}
	if err := t.Queue.MarkFailed(taskID, errText, checkpoint); err != nil {
		return nil, err
	}
	return tool.OK(fmt.Sprintf("Task %s marked failed: %s", taskID, errText)), nil
}

func checkpointFromArgs(taskID string, args map[string]any) *queue.Checkpoint {
	cp := &queue.Checkpoint{TaskID: taskID}
	cp.WhatWasDone, _ = args["what_was_done"].(string)
	cp.WhatNext, _ = args["what_next"].(string)
	if raw, ok := args["what_changed"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				cp.WhatChanged = append(cp.WhatChanged, s)
			}
		}
	}
	if raw, ok := args["citations"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				cp.Citations = append(cp.Citations, s)
			}
		}
	}
	return cp
}
