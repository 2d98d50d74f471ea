// Package agentcore is a bounded, resumable, safety-gated execution engine
// for tool-using conversational agents.
//
// The value of the core is neither the model nor the tools but the
// coordination layer between them: hard step and tool budgets, a two-level
// circuit breaker with an auditable OVERRIDE escape hatch, a workspace
// sandbox that isolates writes, a durable task queue with markdown
// checkpoints, and a content-addressed retrieval index with crash-safe
// vector persistence.
//
// # Quick Start
//
//	cfg := config.DefaultConfig()
//	rt, err := agentcore.New(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	state := agent.NewState(cfg.Loop.MaxSteps, cfg.Loop.MaxToolsPerStep)
//	result := rt.Loop.Run(ctx, state, "ingest ./workspace/repos/demo and summarize it")
//
// # Architecture
//
// One process per conversation. The loop drives the gateway, preflight
// validates every tool batch against the circuit breaker, the executor runs
// accepted proposals under timeouts and safety rules, and observations feed
// back into the conversation until the model answers without tool calls or a
// budget exhausts. Tasks popped from the queue bound the whole cycle and
// leave checkpoints behind for resumption.
package agentcore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/wyrmspire/agentcore/internal/config"
	"github.com/wyrmspire/agentcore/pkg/agent"
	"github.com/wyrmspire/agentcore/pkg/gateway"
	"github.com/wyrmspire/agentcore/pkg/index"
	"github.com/wyrmspire/agentcore/pkg/memory"
	"github.com/wyrmspire/agentcore/pkg/patch"
	"github.com/wyrmspire/agentcore/pkg/queue"
	"github.com/wyrmspire/agentcore/pkg/tool"
	"github.com/wyrmspire/agentcore/pkg/tool/builtin"
	"github.com/wyrmspire/agentcore/pkg/workspace"
)

// Config is an alias for the configuration type.
type Config = config.Config

// Runtime wires the core subsystems for one conversation process.
type Runtime struct {
	Config    *config.Config
	Workspace *workspace.Workspace
	Queue     *queue.Queue
	Index     *index.Index
	Patches   *patch.Manager
	Memory    *memory.Memory // nil without an embedder
	Registry  *tool.Registry
	Executor  *tool.Executor
	Gateway   gateway.Gateway
	Embedder  gateway.Embedder // nil when embeddings are not configured
	Loop      *agent.Loop
}

// New builds a runtime from configuration: workspace, stores, gateway,
// registry with the built-in tools, executor, and loop.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	ws, err := workspace.New(cfg.Workspace.Root, workspace.Options{
		MaxSizeBytes:       int64(cfg.Workspace.MaxSizeGB * float64(1<<30)),
		MinFreeRAMPercent:  cfg.Workspace.MinFreeRAMPercent,
		AllowProjectRead:   cfg.Workspace.AllowProjectRead,
		CreateStandardBins: true,
	})
	if err != nil {
		return nil, err
	}

	tasks, err := queue.Open(cfg.QueueDir())
	if err != nil {
		return nil, err
	}

	ix, err := index.Open(filepath.Join(ws.Root(), cfg.Index.Name), true)
	if err != nil {
		return nil, err
	}

	patches, err := patch.NewManager(ws.Bin("patches"))
	if err != nil {
		return nil, err
	}

	gw, embedder, err := buildGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:    cfg,
		Workspace: ws,
		Queue:     tasks,
		Index:     ix,
		Patches:   patches,
		Gateway:   gw,
		Embedder:  embedder,
		Registry:  tool.NewRegistry(),
	}

	if embedder != nil {
		mem, err := memory.Open(filepath.Join(ws.Root(), "chunks", "memories"), embedder)
		if err != nil {
			return nil, err
		}
		rt.Memory = mem
	}

	if err := rt.registerBuiltins(); err != nil {
		return nil, err
	}

	rt.Executor = tool.NewExecutor(rt.Registry, tool.DefaultEngine(), tool.ExecutorConfig{
		Timeout: time.Duration(cfg.Loop.ToolTimeoutSecs) * time.Second,
	})
	rt.Loop = agent.NewLoop(gw, rt.Registry, rt.Executor, tasks, agent.Config{
		EnableJudge:     cfg.Loop.EnableJudge,
		EnablePreflight: cfg.Loop.EnablePreflight,
	})
	return rt, nil
}

func (rt *Runtime) registerBuiltins() error {
	handlers := []tool.Handler{
		&builtin.ReadFile{Workspace: rt.Workspace},
		&builtin.WriteFile{Workspace: rt.Workspace},
		&builtin.ListFiles{Workspace: rt.Workspace},
		&builtin.ChunkSearch{Index: rt.Index, Embedder: rt.Embedder},
		&builtin.IngestRepo{Index: rt.Index, Embedder: rt.Embedder},
		&builtin.QueueAdd{Queue: rt.Queue},
		&builtin.QueueNext{Queue: rt.Queue},
		&builtin.QueueDone{Queue: rt.Queue},
		&builtin.QueueFail{Queue: rt.Queue},
		&builtin.ProposePatch{Patches: rt.Patches},
	}
	if rt.Memory != nil {
		handlers = append(handlers,
			&builtin.MemoryStore{Memory: rt.Memory},
			&builtin.MemoryRecall{Memory: rt.Memory},
		)
	}
	for _, h := range handlers {
		if err := rt.Registry.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// buildGateway selects providers from configuration. With an escalation
// model configured, the primary is wrapped in the escalating gateway.
func buildGateway(ctx context.Context, cfg *config.Config) (gateway.Gateway, gateway.Embedder, error) {
	opts := gateway.Options{
		Temperature: cfg.Gateway.Temperature,
		MaxTokens:   cfg.Gateway.MaxTokens,
	}

	switch cfg.Gateway.Provider {
	case "mock":
		return gateway.NewMock(), gateway.NewMockEmbedder(8), nil

	case "gemini":
		primary, err := gateway.NewGemini(ctx, gateway.GeminiConfig{
			APIKey:  cfg.Gateway.APIKey,
			Model:   cfg.Gateway.Model,
			Options: opts,
		})
		if err != nil {
			return nil, nil, err
		}
		var gw gateway.Gateway = primary
		if cfg.Gateway.EscalationModel != "" {
			escalation, err := gateway.NewGemini(ctx, gateway.GeminiConfig{
				APIKey:  cfg.Gateway.APIKey,
				Model:   cfg.Gateway.EscalationModel,
				Options: opts,
			})
			if err != nil {
				return nil, nil, err
			}
			gw = gateway.NewEscalating(primary, escalation, cfg.Gateway.EscalationThreshold)
		}
		var embedder gateway.Embedder
		if cfg.Gateway.EmbeddingModel != "" {
			embedder, err = gateway.NewGeminiEmbedder(ctx, cfg.Gateway.APIKey, cfg.Gateway.EmbeddingModel)
			if err != nil {
				return nil, nil, err
			}
		}
		return gw, embedder, nil

	case "openai", "":
		primary := gateway.NewOpenAI(gateway.OpenAIConfig{
			APIKey:  cfg.Gateway.APIKey,
			BaseURL: cfg.Gateway.BaseURL,
			Model:   cfg.Gateway.Model,
			Options: opts,
		})
		var gw gateway.Gateway = primary
		if cfg.Gateway.EscalationModel != "" {
			escalation := gateway.NewOpenAI(gateway.OpenAIConfig{
				APIKey:  cfg.Gateway.APIKey,
				BaseURL: cfg.Gateway.BaseURL,
				Model:   cfg.Gateway.EscalationModel,
				Options: opts,
			})
			gw = gateway.NewEscalating(primary, escalation, cfg.Gateway.EscalationThreshold)
		}
		var embedder gateway.Embedder
		if cfg.Gateway.EmbeddingModel != "" {
			embedder = gateway.NewOpenAIEmbedder(gateway.OpenAIConfig{
				APIKey:  cfg.Gateway.APIKey,
				BaseURL: cfg.Gateway.BaseURL,
				Model:   cfg.Gateway.EmbeddingModel,
			})
		}
		return gw, embedder, nil
	}
	return nil, nil, fmt.Errorf("unknown gateway provider %q", cfg.Gateway.Provider)
}
