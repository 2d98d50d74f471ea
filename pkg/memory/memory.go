// Package memory gives the agent a durable prose memory: short notes stored
// with embeddings in a chromem-go persistent collection under the workspace,
// recalled by semantic similarity.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/gateway"
)

const collectionName = "agent-memories"

// Entry is one recalled memory.
type Entry struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at"`
	Score     float32  `json:"score,omitempty"`
}

// Memory wraps a persistent chromem collection.
type Memory struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Open creates or loads the memory store at dir, embedding through the given
// embedder.
func Open(dir string, embedder gateway.Embedder) (*Memory, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedSingle(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open memory collection: %w", err)
	}

	return &Memory{db: db, collection: collection}, nil
}

// Store saves a memory and returns its id.
func (m *Memory) Store(ctx context.Context, content string, tags []string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("memory content must not be empty")
	}
	id := "mem_" + uuid.NewString()[:12]
	doc := chromem.Document{
		ID:      id,
		Content: content,
		Metadata: map[string]string{
			"tags":       strings.Join(tags, ","),
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := m.collection.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	logger.GetLogger().Debug().Str("id", id).Msg("Memory stored")
	return id, nil
}

// Recall returns up to k memories most similar to query.
func (m *Memory) Recall(ctx context.Context, query string, k int) ([]Entry, error) {
	if k <= 0 {
		k = 5
	}
	count := m.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := m.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		entry := Entry{
			ID:        r.ID,
			Content:   r.Content,
			CreatedAt: r.Metadata["created_at"],
			Score:     r.Similarity,
		}
		if tags := r.Metadata["tags"]; tags != "" {
			entry.Tags = strings.Split(tags, ",")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Count returns the number of stored memories.
func (m *Memory) Count() int {
	return m.collection.Count()
}
