// Package index is the git-aware retrieval layer: a chunk store with an
// inverted keyword index paired with an atomically persisted vector store.
// It handles incremental re-ingestion (only affected chunks change), stale
// vector eviction, and self-healing when the vector artifacts are corrupted.
package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/chunk"
	"github.com/wyrmspire/agentcore/pkg/gateway"
	"github.com/wyrmspire/agentcore/pkg/vector"
)

// Result is one retrieval hit, from either semantic or keyword search.
type Result struct {
	ChunkID    string     `json:"chunk_id"`
	SourcePath string     `json:"source_path"`
	StartLine  int        `json:"start_line"`
	EndLine    int        `json:"end_line"`
	Kind       chunk.Kind `json:"chunk_type"`
	Name       string     `json:"name,omitempty"`
	Content    string     `json:"content"`
	Snippet    string     `json:"snippet"`
	Score      float64    `json:"score"`
}

// Index combines the chunk store and the vector store under one directory:
//
//	<dir>/manifest.json
//	<dir>/vectors/embeddings.npz
//	<dir>/vectors/vectors_manifest.json
type Index struct {
	dir      string
	chunks   *chunk.Store
	vectors  *vector.Store
	autoHeal bool

	corruptionDetected bool
}

// Open loads (or creates) the index at dir. With autoHeal set, vector
// corruption resets the vector store to empty and schedules a rebuild on the
// next embed operation instead of failing; the event is always logged.
func Open(dir string, autoHeal bool) (*Index, error) {
	chunks, err := chunk.NewStore(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	ix := &Index{dir: dir, chunks: chunks, autoHeal: autoHeal}

	vectors, err := vector.Open(filepath.Join(dir, "vectors"))
	if err != nil {
		if !errors.Is(err, vector.ErrCorruptedIndex) {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		if !autoHeal {
			return nil, err
		}
		logger.GetLogger().Error().
			Err(err).
			Str("dir", dir).
			Msg("Vector index corrupted; reset pending rebuild")
		vectors.Reset()
		ix.corruptionDetected = true
	}
	ix.vectors = vectors
	return ix, nil
}

// Dir returns the index directory.
func (ix *Index) Dir() string { return ix.dir }

// Chunks exposes the chunk store.
func (ix *Index) Chunks() *chunk.Store { return ix.chunks }

// Vectors exposes the vector store.
func (ix *Index) Vectors() *vector.Store { return ix.vectors }

// CorruptionDetected reports whether a corrupted vector store was reset and
// awaits rebuild.
func (ix *Index) CorruptionDetected() bool { return ix.corruptionDetected }

// Ingest chunks a file or directory tree into the store and, when an
// embedder is supplied, brings the vector store in sync: stale rows are
// evicted before new rows are written. Returns the number of chunks newly
// added.
func (ix *Index) Ingest(ctx context.Context, path string, embedder gateway.Embedder) (int, error) {
	count, err := ix.chunks.IngestDirectory(path, true)
	if err != nil {
		return 0, err
	}
	if err := ix.chunks.SaveManifest(); err != nil {
		return count, err
	}

	if embedder == nil {
		return count, nil
	}

	if ix.corruptionDetected {
		logger.GetLogger().Warn().Msg("Rebuilding vectors after corruption")
		if _, err := ix.Rebuild(ctx, embedder); err != nil {
			return count, err
		}
		return count, nil
	}

	// Global prune for chunks whose source files disappeared.
	if ix.vectors.Prune(ix.chunks.IDs()) {
		if err := ix.vectors.Save(); err != nil {
			return count, err
		}
	}

	// Evict rows replaced by this re-ingest.
	if stale := ix.chunks.StaleIDs(); len(stale) > 0 {
		if ix.vectors.RemoveIDs(stale) {
			if err := ix.vectors.Save(); err != nil {
				return count, err
			}
		}
		ix.chunks.ClearStale()
	}

	if err := ix.embedMissing(ctx, embedder); err != nil {
		return count, err
	}
	return count, nil
}

// embedMissing embeds every chunk absent from the vector store.
func (ix *Index) embedMissing(ctx context.Context, embedder gateway.Embedder) error {
	var ids []string
	var texts []string
	for _, id := range ix.chunks.IDs() {
		if ix.vectors.Has(id) {
			continue
		}
		meta, content, ok := ix.chunks.Get(id)
		if !ok || content == "" {
			continue
		}
		ids = append(ids, id)
		texts = append(texts, fmt.Sprintf("%s: %s\n%s", meta.Kind, meta.Name, content))
	}
	if len(ids) == 0 {
		return nil
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if err := ix.vectors.Add(ids, vectors, embedder.Model()); err != nil {
		return err
	}
	if err := ix.vectors.Save(); err != nil {
		return err
	}
	logger.GetLogger().Info().Int("embedded", len(ids)).Msg("Embeddings saved")
	return nil
}

// Rebuild erases the vector store and re-embeds every chunk in the index.
// This is the self-healing path after corruption and is never silent.
func (ix *Index) Rebuild(ctx context.Context, embedder gateway.Embedder) (int, error) {
	logger.GetLogger().Warn().Str("dir", ix.dir).Msg("Rebuilding vector store from chunks")
	ix.vectors.Reset()
	if err := ix.embedMissing(ctx, embedder); err != nil {
		return 0, err
	}
	ix.corruptionDetected = false
	return ix.vectors.Count(), nil
}

// Query searches the index. With an embedder, semantic search runs first and
// keyword search is the fallback; without one, keyword search is used
// directly. Ordering is deterministic: score descending, chunk id ascending.
func (ix *Index) Query(ctx context.Context, query string, k int, embedder gateway.Embedder) []Result {
	if k <= 0 {
		k = 8
	}

	if embedder != nil && ix.vectors.Count() > 0 {
		if results := ix.semanticQuery(ctx, query, k, embedder); len(results) > 0 {
			return results
		}
	}
	return ix.keywordQuery(query, k)
}

func (ix *Index) semanticQuery(ctx context.Context, query string, k int, embedder gateway.Embedder) []Result {
	qvec, err := embedder.EmbedSingle(ctx, query)
	if err != nil {
		logger.GetLogger().Warn().Err(err).Msg("Semantic search failed; falling back to keyword")
		return nil
	}

	hits := ix.vectors.Search(qvec, k)
	var results []Result
	for _, hit := range hits {
		meta, content, ok := ix.chunks.Get(hit.ChunkID)
		if !ok {
			continue
		}
		results = append(results, Result{
			ChunkID:    hit.ChunkID,
			SourcePath: meta.SourcePath,
			StartLine:  meta.StartLine,
			EndLine:    meta.EndLine,
			Kind:       meta.Kind,
			Name:       meta.Name,
			Content:    content,
			Snippet:    chunk.Snippet(content, strings.ToLower(query)),
			Score:      float64(hit.Score),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}

func (ix *Index) keywordQuery(query string, k int) []Result {
	hits := ix.chunks.Search(query, k, chunk.SearchOptions{})
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			ChunkID:    h.ChunkID,
			SourcePath: h.SourcePath,
			StartLine:  h.StartLine,
			EndLine:    h.EndLine,
			Kind:       h.Kind,
			Name:       h.Name,
			Content:    h.Content,
			Snippet:    h.Snippet,
			Score:      float64(h.Score),
		}
	}
	return results
}
