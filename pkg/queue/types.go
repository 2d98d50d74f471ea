// Package queue implements the durable, append-only work queue: task packets
// persisted as JSONL, markdown checkpoints, and the active-task pointer that
// lets a worker run exactly one bounded task and leave a resume artifact.
package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status is a task's lifecycle state. queued → running → done|failed; done
// and failed are terminal.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Budget bounds a task's execution.
type Budget struct {
	MaxToolCalls int `json:"max_tool_calls"`
	MaxSteps     int `json:"max_steps"`
}

// TaskPacket is a bounded unit of work with an explicit budget and
// acceptance criterion.
type TaskPacket struct {
	TaskID     string         `json:"task_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Objective  string         `json:"objective"`
	Inputs     []string       `json:"inputs"`
	Acceptance string         `json:"acceptance"`
	Budget     Budget         `json:"budget"`
	Status     Status         `json:"status"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
	Metadata   map[string]any `json:"metadata"`
}

// Checkpoint is a markdown record of a task's terminal or mid state. The
// WhatNext field is contractual: `Next: <task_id>`, `Spawned: <task_id>…`,
// or an explicit done marker. Enforcement lives at the orchestration layer;
// the queue stores what it is given.
type Checkpoint struct {
	TaskID      string
	WhatWasDone string
	WhatChanged []string
	WhatNext    string
	Blockers    []string
	Citations   []string
	CreatedAt   string
}

// Markdown renders the checkpoint in the fixed on-disk layout.
func (c Checkpoint) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Checkpoint: %s\n\n", c.TaskID)
	fmt.Fprintf(&b, "**Created:** %s\n\n", c.CreatedAt)
	fmt.Fprintf(&b, "## What Was Done\n\n%s\n\n", c.WhatWasDone)
	fmt.Fprintf(&b, "## What Changed\n\n%s\n\n", bulleted(c.WhatChanged, "- No changes"))
	fmt.Fprintf(&b, "## What's Next\n\n%s\n\n", c.WhatNext)
	fmt.Fprintf(&b, "## Blockers/Errors\n\n%s\n\n", bulleted(c.Blockers, "- None"))
	fmt.Fprintf(&b, "## Citations Used\n\n%s\n", bulleted(c.Citations, "- None"))
	return b.String()
}

func bulleted(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
