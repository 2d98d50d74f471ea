package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/wyrmspire/agentcore/pkg/memory"
	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/tool"
)

// MemoryStore saves a durable memory for later recall.
type MemoryStore struct {
	Memory *memory.Memory
}

// Name implements tool.Handler.
func (t *MemoryStore) Name() string { return "memory_store" }

// Description implements tool.Handler.
func (t *MemoryStore) Description() string {
	return "Store a short note in durable memory so it can be recalled in later sessions."
}

// Parameters implements tool.Handler.
func (t *MemoryStore) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"content": tool.StringProp("The note to remember"),
		"tags":    tool.StringArrayProp("Optional tags for grouping"),
	}, "content")
}

// Execute implements tool.Handler.
func (t *MemoryStore) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	content, _ := args["content"].(string)
	var tags []string
	if raw, ok := args["tags"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	id, err := t.Memory.Store(ctx, content, tags)
	if err != nil {
		return nil, err
	}
	return tool.OK(fmt.Sprintf("Memory stored as %s.", id)), nil
}

// MemoryRecall retrieves memories similar to a query.
type MemoryRecall struct {
	Memory *memory.Memory
}

// Name implements tool.Handler.
func (t *MemoryRecall) Name() string { return "memory_recall" }

// Description implements tool.Handler.
func (t *MemoryRecall) Description() string {
	return "Recall stored memories relevant to a query."
}

// Parameters implements tool.Handler.
func (t *MemoryRecall) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"query": tool.StringProp("What to recall"),
		"k":     tool.IntProp("Maximum results (default 5)"),
	}, "query")
}

// Execute implements tool.Handler.
func (t *MemoryRecall) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	query, _ := args["query"].(string)
	entries, err := t.Memory.Recall(ctx, query, intArg(args, "k", 5))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return tool.OK("No relevant memories."), nil
	}

	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, e.ID, e.Content)
		if len(e.Tags) > 0 {
			fmt.Fprintf(&b, " (tags: %s)", strings.Join(e.Tags, ", "))
		}
		b.WriteString("\n")
	}
	return tool.OK(b.String()), nil
}
