// Command agentcore runs the agent core: an interactive chat loop, a
// one-task queue worker, or repository ingestion.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wyrmspire/agentcore"
	"github.com/wyrmspire/agentcore/internal/config"
	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/agent"
	"github.com/wyrmspire/agentcore/pkg/queue"
)

func main() {
	configPath := flag.String("config", "agentcore.toml", "path to TOML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		LogDir:     cfg.Logging.Dir,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := agentcore.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	switch cmd {
	case "", "chat":
		runChat(ctx, rt, cfg)
	case "worker":
		runWorker(ctx, rt, cfg)
	case "ingest":
		runIngest(ctx, rt, flag.Arg(1))
	case "queue":
		runQueueList(rt)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want chat, worker, ingest, queue)\n", cmd)
		os.Exit(2)
	}
}

// runChat reads user messages from stdin and drives one loop turn each.
func runChat(ctx context.Context, rt *agentcore.Runtime, cfg *config.Config) {
	state := agent.NewState(cfg.Loop.MaxSteps, cfg.Loop.MaxToolsPerStep)
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("agentcore chat — empty line or Ctrl-D exits")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "" {
			return
		}

		result := rt.Loop.Run(ctx, state, line)
		if !result.Success {
			fmt.Printf("(!) %s\n", result.FinalAnswer)
			continue
		}
		fmt.Println(result.FinalAnswer)
	}
}

// runWorker pops the next queued task and runs the loop once under its
// budget. One task per invocation; every exit leaves a resume artifact.
func runWorker(ctx context.Context, rt *agentcore.Runtime, cfg *config.Config) {
	task, err := rt.Queue.GetNext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "queue: %v\n", err)
		os.Exit(1)
	}
	if task == nil {
		fmt.Println("queue empty; nothing to do")
		return
	}

	fmt.Printf("running %s: %s\n", task.TaskID, task.Objective)
	state := agent.NewState(cfg.Loop.MaxSteps, cfg.Loop.MaxToolsPerStep)
	result := rt.Loop.Run(ctx, state, workerPrompt(task))

	if current, ok := rt.Queue.Get(task.TaskID); ok && !current.Status.Terminal() {
		// The model finished talking without closing the task; record the
		// outcome so the queue never wedges in running state.
		checkpoint := &queue.Checkpoint{
			TaskID:      task.TaskID,
			WhatWasDone: result.FinalAnswer,
			WhatNext:    "DONE",
		}
		if result.Success {
			_ = rt.Queue.MarkDone(task.TaskID, checkpoint)
		} else {
			_ = rt.Queue.MarkFailed(task.TaskID, result.Error, checkpoint)
		}
	}
	fmt.Println(result.FinalAnswer)
}

func workerPrompt(task *queue.TaskPacket) string {
	return fmt.Sprintf(
		"You are executing task %s.\nObjective: %s\nInputs: %v\nAcceptance: %s\n"+
			"Budget: %d tool calls, %d steps. When finished call queue_done with a checkpoint; on failure call queue_fail.",
		task.TaskID, task.Objective, task.Inputs, task.Acceptance,
		task.Budget.MaxToolCalls, task.Budget.MaxSteps)
}

func runIngest(ctx context.Context, rt *agentcore.Runtime, path string) {
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: agentcore ingest <path>")
		os.Exit(2)
	}
	count, err := rt.Index.Ingest(ctx, path, rt.Embedder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ingested %d new chunk(s); index holds %d\n", count, rt.Index.Chunks().Count())
}

func runQueueList(rt *agentcore.Runtime) {
	tasks := rt.Queue.List("")
	if len(tasks) == 0 {
		fmt.Println("queue empty")
		return
	}
	for _, t := range tasks {
		fmt.Printf("%-10s %-8s %s\n", t.TaskID, t.Status, t.Objective)
	}
}
