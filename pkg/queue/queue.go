package queue

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/wyrmspire/agentcore/internal/fileutil"
	"github.com/wyrmspire/agentcore/internal/logger"
)

// Queue manages task packets and checkpoints under a dedicated directory
// (workspace/queue). tasks.jsonl holds every task's latest state and is
// rewritten wholesale on state changes; active_task.json points at the one
// running task; checkpoints/<task_id>.md hold resume artifacts.
//
// The queue is driven by a single worker per conversation; every method,
// readers included, holds the mutex for its whole duration.
type Queue struct {
	mu sync.Mutex

	dir            string
	tasksFile      string
	checkpointsDir string
	activeFile     string

	tasks map[string]*TaskPacket
	order []string // insertion order of task ids
}

// Open creates (if needed) and loads the queue at dir.
func Open(dir string) (*Queue, error) {
	q := &Queue{
		dir:            dir,
		tasksFile:      filepath.Join(dir, "tasks.jsonl"),
		checkpointsDir: filepath.Join(dir, "checkpoints"),
		activeFile:     filepath.Join(dir, "active_task.json"),
		tasks:          make(map[string]*TaskPacket),
	}
	if err := fileutil.EnsureDir(q.checkpointsDir); err != nil {
		return nil, fmt.Errorf("create queue dirs: %w", err)
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

// Dir returns the queue directory.
func (q *Queue) Dir() string { return q.dir }

// ActiveTaskPath returns the active-task pointer path.
func (q *Queue) ActiveTaskPath() string { return q.activeFile }

// CheckpointPath returns the checkpoint file path for a task.
func (q *Queue) CheckpointPath(taskID string) string {
	return filepath.Join(q.checkpointsDir, taskID+".md")
}

func (q *Queue) load() error {
	data, err := os.ReadFile(q.tasksFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tasks: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<22)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var task TaskPacket
		if err := json.Unmarshal(line, &task); err != nil {
			logger.GetLogger().Warn().Err(err).Msg("Skipping malformed task line")
			continue
		}
		if task.Metadata == nil {
			task.Metadata = make(map[string]any)
		}
		if _, seen := q.tasks[task.TaskID]; !seen {
			q.order = append(q.order, task.TaskID)
		}
		q.tasks[task.TaskID] = &task
	}
	return scanner.Err()
}

// rewrite persists every task's latest state; callers hold the mutex.
func (q *Queue) rewrite() error {
	var buf bytes.Buffer
	for _, id := range q.order {
		line, err := json.Marshal(q.tasks[id])
		if err != nil {
			return fmt.Errorf("marshal task %s: %w", id, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := fileutil.WriteFileAtomic(q.tasksFile, buf.Bytes()); err != nil {
		return fmt.Errorf("rewrite tasks: %w", err)
	}
	return nil
}

// AddOptions carries the optional fields of AddTask.
type AddOptions struct {
	Inputs     []string
	Acceptance string
	ParentID   string
	Budget     Budget
	Metadata   map[string]any
}

// AddTask appends a new queued task and returns its id. Ids are generated
// deterministically by position: task_ + zero-padded sequence.
func (q *Queue) AddTask(objective string, opts AddOptions) (string, error) {
	if objective == "" {
		return "", fmt.Errorf("objective must not be empty")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	budget := opts.Budget
	if budget.MaxToolCalls <= 0 {
		budget.MaxToolCalls = 30
	}
	if budget.MaxSteps <= 0 {
		budget.MaxSteps = 50
	}
	acceptance := opts.Acceptance
	if acceptance == "" {
		acceptance = "Task completed successfully"
	}
	metadata := opts.Metadata
	if metadata == nil {
		metadata = make(map[string]any)
	}
	inputs := opts.Inputs
	if inputs == nil {
		inputs = []string{}
	}

	now := nowISO()
	task := &TaskPacket{
		TaskID:     fmt.Sprintf("task_%04d", len(q.tasks)+1),
		ParentID:   opts.ParentID,
		Objective:  objective,
		Inputs:     inputs,
		Acceptance: acceptance,
		Budget:     budget,
		Status:     StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata:   metadata,
	}

	q.tasks[task.TaskID] = task
	q.order = append(q.order, task.TaskID)
	if err := q.rewrite(); err != nil {
		return "", err
	}

	logger.GetLogger().Info().
		Str("task_id", task.TaskID).
		Str("objective", truncate(objective, 50)).
		Msg("Task queued")
	return task.TaskID, nil
}

// GetNext returns the first queued task in insertion order, atomically
// flipping it to running, rewriting the log, and writing the active-task
// pointer. Returns nil when the queue has no queued tasks.
func (q *Queue) GetNext() (*TaskPacket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		task := q.tasks[id]
		if task.Status != StatusQueued {
			continue
		}
		task.Status = StatusRunning
		task.UpdatedAt = nowISO()
		if err := q.rewrite(); err != nil {
			return nil, err
		}

		pointer, err := json.MarshalIndent(task, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal active task: %w", err)
		}
		if err := fileutil.WriteFileAtomic(q.activeFile, pointer); err != nil {
			return nil, fmt.Errorf("write active task: %w", err)
		}

		logger.GetLogger().Info().Str("task_id", task.TaskID).Msg("Task started")
		snapshot := *task
		return &snapshot, nil
	}
	return nil, nil
}

// MarkDone transitions a running task to done, optionally writing a
// checkpoint, and clears the active-task pointer if it names this task.
func (q *Queue) MarkDone(taskID string, checkpoint *Checkpoint) error {
	return q.finish(taskID, StatusDone, "", checkpoint)
}

// MarkFailed transitions a running task to failed, storing the error in
// metadata.
func (q *Queue) MarkFailed(taskID, errText string, checkpoint *Checkpoint) error {
	return q.finish(taskID, StatusFailed, errText, checkpoint)
}

func (q *Queue) finish(taskID string, status Status, errText string, checkpoint *Checkpoint) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("task %s already terminal (%s)", taskID, task.Status)
	}

	task.Status = status
	task.UpdatedAt = nowISO()
	if errText != "" {
		task.Metadata["error"] = errText
	}
	if err := q.rewrite(); err != nil {
		return err
	}

	if checkpoint != nil {
		if err := q.saveCheckpointLocked(checkpoint); err != nil {
			return err
		}
	}

	q.clearActiveLocked(taskID)

	logger.GetLogger().Info().
		Str("task_id", taskID).
		Str("status", string(status)).
		Msg("Task finished")
	return nil
}

// clearActiveLocked deletes the active pointer when it references taskID.
func (q *Queue) clearActiveLocked(taskID string) {
	data, err := os.ReadFile(q.activeFile)
	if err != nil {
		return
	}
	var active TaskPacket
	if json.Unmarshal(data, &active) == nil && active.TaskID == taskID {
		_ = os.Remove(q.activeFile)
	}
}

// SaveCheckpoint writes a checkpoint markdown file; used for mid-task
// checkpoints. Checkpoint files are written directly: individual loss is
// tolerable since tasks.jsonl is the source of truth.
func (q *Queue) SaveCheckpoint(checkpoint *Checkpoint) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.saveCheckpointLocked(checkpoint)
}

func (q *Queue) saveCheckpointLocked(checkpoint *Checkpoint) error {
	if checkpoint.CreatedAt == "" {
		checkpoint.CreatedAt = nowISO()
	}
	path := q.CheckpointPath(checkpoint.TaskID)
	if err := fileutil.WriteFile(path, []byte(checkpoint.Markdown())); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// ActiveTask returns the task named by the active pointer, or nil when the
// worker is idle. A missing pointer is tolerated; it is reconstructible from
// the JSONL.
func (q *Queue) ActiveTask() *TaskPacket {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := os.ReadFile(q.activeFile)
	if err == nil {
		var active TaskPacket
		if json.Unmarshal(data, &active) == nil {
			if task, ok := q.tasks[active.TaskID]; ok && task.Status == StatusRunning {
				snapshot := *task
				return &snapshot
			}
		}
	}
	// Fall back to the log: at most one task should be running.
	for _, id := range q.order {
		if q.tasks[id].Status == StatusRunning {
			snapshot := *q.tasks[id]
			return &snapshot
		}
	}
	return nil
}

// Get returns a task by id.
func (q *Queue) Get(taskID string) (*TaskPacket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[taskID]
	if !ok {
		return nil, false
	}
	snapshot := *task
	return &snapshot, true
}

// List returns tasks in insertion order, optionally filtered by status
// (empty status = all).
func (q *Queue) List(status Status) []TaskPacket {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []TaskPacket
	for _, id := range q.order {
		task := q.tasks[id]
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, *task)
	}
	return out
}

// Stats returns per-status counts.
func (q *Queue) Stats() map[Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := map[Status]int{StatusQueued: 0, StatusRunning: 0, StatusDone: 0, StatusFailed: 0}
	for _, task := range q.tasks {
		counts[task.Status]++
	}
	return counts
}

// Checkpoints lists task ids that have checkpoint files.
func (q *Queue) Checkpoints() []string {
	entries, err := os.ReadDir(q.checkpointsDir)
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		if name, ok := cutSuffix(e.Name(), ".md"); ok {
			ids = append(ids, name)
		}
	}
	sort.Strings(ids)
	return ids
}

func cutSuffix(s, suffix string) (string, bool) {
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
