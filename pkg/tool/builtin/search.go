package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/wyrmspire/agentcore/pkg/gateway"
	"github.com/wyrmspire/agentcore/pkg/index"
	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/tool"
)

// ChunkSearch queries the retrieval index. Semantic search runs when an
// embedder is configured; keyword search is the fallback.
type ChunkSearch struct {
	Index    *index.Index
	Embedder gateway.Embedder // optional
}

// Name implements tool.Handler.
func (t *ChunkSearch) Name() string { return "chunk_search" }

// Description implements tool.Handler.
func (t *ChunkSearch) Description() string {
	return "Search ingested code and documents by meaning or keywords. Returns chunk ids usable as citations."
}

// Parameters implements tool.Handler.
func (t *ChunkSearch) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"query": tool.StringProp("What to search for"),
		"k":     tool.IntProp("Maximum number of results (default 8)"),
	}, "query")
}

// Execute implements tool.Handler.
func (t *ChunkSearch) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	query, _ := args["query"].(string)
	k := intArg(args, "k", 8)

	results := t.Index.Query(ctx, query, k, t.Embedder)
	if len(results) == 0 {
		return tool.OK("No matching chunks found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d result(s):\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%s] %s:L%d-L%d", i+1, r.ChunkID, r.SourcePath, r.StartLine, r.EndLine)
		if r.Name != "" {
			fmt.Fprintf(&b, " (%s %s)", r.Kind, r.Name)
		}
		fmt.Fprintf(&b, "\n   %s\n\n", strings.ReplaceAll(r.Snippet, "\n", "\n   "))
	}
	return tool.OK(b.String()), nil
}

// IngestRepo ingests a directory (typically under workspace/repos) into the
// retrieval index.
type IngestRepo struct {
	Index    *index.Index
	Embedder gateway.Embedder // optional
}

// Name implements tool.Handler.
func (t *IngestRepo) Name() string { return "ingest_repo" }

// Description implements tool.Handler.
func (t *IngestRepo) Description() string {
	return "Ingest a directory of source files into the retrieval index so chunk_search can find them."
}

// Parameters implements tool.Handler.
func (t *IngestRepo) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"path": tool.StringProp("Directory to ingest"),
	}, "path")
}

// Execute implements tool.Handler.
func (t *IngestRepo) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	path, _ := args["path"].(string)
	count, err := t.Index.Ingest(ctx, path, t.Embedder)
	if err != nil {
		return nil, err
	}
	return tool.OK(fmt.Sprintf("Ingested %d new chunk(s) from %s. Index now holds %d chunks.",
		count, path, t.Index.Chunks().Count())), nil
}

func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
