// Package vector implements the L2-normalized embedding store backing
// semantic retrieval. Cosine similarity is a dot product over normalized
// rows. Persistence is crash-safe: both on-disk artifacts are written via
// temp-file-plus-rename, and loading verifies count consistency between the
// matrix, the id list, and the manifest.
package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wyrmspire/agentcore/internal/logger"
)

// ErrCorruptedIndex is returned when the on-disk artifacts disagree about
// row counts. A higher layer may catch it, reset the store, and re-embed from
// the chunk index; that rebuild is always logged, never silent.
var ErrCorruptedIndex = errors.New("vector store corrupted")

// Meta is the vector store's manifest record.
type Meta struct {
	ChunkIDs       []string `json:"chunk_ids"`
	EmbeddingModel string   `json:"embedding_model"`
	Dim            int      `json:"dim"`
	Count          int      `json:"count"`
	Normalized     bool     `json:"normalized"`
	UpdatedAt      string   `json:"updated_at"`
}

// Hit is one similarity search result.
type Hit struct {
	ChunkID string
	Score   float32
}

// Store keeps an ordered id list and a matching matrix of normalized
// embeddings. It is not safe for concurrent use; within one conversation it
// is only touched from the loop goroutine.
type Store struct {
	dir     string
	ids     []string
	vectors [][]float32
	index   map[string]int // id -> row
	meta    Meta
}

// New creates an empty store rooted at dir (where embeddings.npz and
// vectors_manifest.json live).
func New(dir string) *Store {
	return &Store{
		dir:   dir,
		index: make(map[string]int),
		meta:  Meta{EmbeddingModel: "unknown", Normalized: true},
	}
}

// Open creates a store at dir and loads any persisted state. Corruption is
// surfaced as ErrCorruptedIndex with the store left empty.
func Open(dir string) (*Store, error) {
	s := New(dir)
	if err := s.Load(); err != nil {
		return s, err
	}
	return s, nil
}

// Count returns the number of stored vectors.
func (s *Store) Count() int { return len(s.ids) }

// Dim returns the established embedding dimension, 0 when empty.
func (s *Store) Dim() int { return s.meta.Dim }

// Model returns the embedding model name recorded in the manifest.
func (s *Store) Model() string { return s.meta.EmbeddingModel }

// ChunkIDs returns the ordered id list.
func (s *Store) ChunkIDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Has reports whether a chunk id is present.
func (s *Store) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Missing returns the subset of ids absent from the store.
func (s *Store) Missing(ids []string) []string {
	var missing []string
	for _, id := range ids {
		if !s.Has(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

// Reset drops all vectors, leaving an empty store.
func (s *Store) Reset() {
	s.ids = nil
	s.vectors = nil
	s.index = make(map[string]int)
	s.meta = Meta{EmbeddingModel: s.meta.EmbeddingModel, Normalized: true}
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Add inserts a batch of (chunk id, embedding) pairs. Vectors are
// L2-normalized; ids already present are overwritten in place, new ids are
// appended. A dimension mismatch fails the whole batch. A different model
// name than the stored one is logged but not rejected, since re-embed flows
// may be in progress.
func (s *Store) Add(ids []string, embeddings [][]float32, modelName string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(embeddings) {
		return fmt.Errorf("id/embedding count mismatch: %d vs %d", len(ids), len(embeddings))
	}

	dim := len(embeddings[0])
	if dim == 0 {
		return fmt.Errorf("empty embedding vector")
	}
	for i, v := range embeddings {
		if len(v) != dim {
			return fmt.Errorf("ragged embedding batch: row %d has dim %d, expected %d", i, len(v), dim)
		}
	}
	if s.meta.Dim != 0 && dim != s.meta.Dim {
		return fmt.Errorf("dimension mismatch: new=%d existing=%d", dim, s.meta.Dim)
	}

	if s.meta.EmbeddingModel == "unknown" || s.meta.EmbeddingModel == "" {
		s.meta.EmbeddingModel = modelName
	} else if modelName != "" && s.meta.EmbeddingModel != modelName {
		logger.GetLogger().Warn().
			Str("existing", s.meta.EmbeddingModel).
			Str("new", modelName).
			Msg("Embedding model mismatch")
	}
	s.meta.Dim = dim

	for i, id := range ids {
		vec := normalize(embeddings[i])
		if row, ok := s.index[id]; ok {
			s.vectors[row] = vec
			continue
		}
		s.index[id] = len(s.ids)
		s.ids = append(s.ids, id)
		s.vectors = append(s.vectors, vec)
	}
	s.meta.Count = len(s.ids)
	return nil
}

// RemoveIDs drops the given chunk ids. Returns true if anything was removed.
func (s *Store) RemoveIDs(ids []string) bool {
	if len(ids) == 0 || len(s.ids) == 0 {
		return false
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	return s.filter(func(id string) bool { return !drop[id] })
}

// Prune removes everything not in activeIDs, resyncing the store with the
// chunk index after deletions. Returns true if anything was removed.
func (s *Store) Prune(activeIDs []string) bool {
	if len(s.ids) == 0 {
		return false
	}
	active := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}
	return s.filter(func(id string) bool { return active[id] })
}

func (s *Store) filter(keep func(string) bool) bool {
	newIDs := s.ids[:0:0]
	newVecs := s.vectors[:0:0]
	for i, id := range s.ids {
		if keep(id) {
			newIDs = append(newIDs, id)
			newVecs = append(newVecs, s.vectors[i])
		}
	}
	if len(newIDs) == len(s.ids) {
		return false
	}
	removed := len(s.ids) - len(newIDs)
	s.ids = newIDs
	s.vectors = newVecs
	s.index = make(map[string]int, len(s.ids))
	for i, id := range s.ids {
		s.index[id] = i
	}
	s.meta.Count = len(s.ids)
	logger.GetLogger().Debug().Int("removed", removed).Msg("Removed stale embeddings")
	return true
}

// Search normalizes the query vector, scores every row by dot product, and
// returns the top k hits. The returned ordering is deterministic: score
// descending, chunk id ascending on ties.
func (s *Store) Search(query []float32, k int) []Hit {
	if len(s.ids) == 0 || k <= 0 {
		return nil
	}
	q := normalize(query)

	hits := make([]Hit, len(s.ids))
	for i, row := range s.vectors {
		var dot float32
		n := len(row)
		if len(q) < n {
			n = len(q)
		}
		for j := 0; j < n; j++ {
			dot += row[j] * q[j]
		}
		hits[i] = Hit{ChunkID: s.ids[i], Score: dot}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (s *Store) touch() {
	s.meta.ChunkIDs = s.ids
	s.meta.Count = len(s.ids)
	s.meta.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}
