package chunk

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/wyrmspire/agentcore/internal/fileutil"
	"github.com/wyrmspire/agentcore/internal/logger"
)

// sensitiveSourcePatterns exclude files from ingestion entirely.
var sensitiveSourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.env`),
	regexp.MustCompile(`(?i)\.ssh`),
	regexp.MustCompile(`(?i)\.git/`),
	regexp.MustCompile(`(?i)password`),
	regexp.MustCompile(`(?i)secret`),
	regexp.MustCompile(`(?i)credentials`),
	regexp.MustCompile(`(?i)\.pem$`),
	regexp.MustCompile(`(?i)\.key$`),
}

// SearchOptions narrow search candidates.
type SearchOptions struct {
	PathPrefix string
	Extension  string
	Kind       Kind
	Tag        string
}

// SearchResult is one keyword search hit.
type SearchResult struct {
	ChunkID    string `json:"chunk_id"`
	SourcePath string `json:"source_path"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Kind       Kind   `json:"chunk_type"`
	Name       string `json:"name,omitempty"`
	Content    string `json:"content"`
	Snippet    string `json:"snippet"`
	Score      int    `json:"score"`
}

// Store holds chunk metadata, content, the per-source id sets, and the
// inverted keyword index. Content is cached in memory during a session and
// can be re-derived from source files on demand; the manifest persists
// metadata and source mappings.
type Store struct {
	manifestPath string

	chunks   map[string]Metadata
	content  map[string]string
	sources  map[string][]string // source path -> chunk ids
	refs     map[string]int      // chunk id -> number of sources referencing it
	inverted map[string]map[string]bool
	stale    map[string]bool
	dirty    bool
}

// NewStore creates a chunk store persisting its manifest at manifestPath and
// loads any existing manifest.
func NewStore(manifestPath string) (*Store, error) {
	s := &Store{
		manifestPath: manifestPath,
		chunks:       make(map[string]Metadata),
		content:      make(map[string]string),
		sources:      make(map[string][]string),
		refs:         make(map[string]int),
		inverted:     make(map[string]map[string]bool),
		stale:        make(map[string]bool),
		dirty:        true,
	}
	if err := s.loadManifest(); err != nil {
		return nil, err
	}
	return s, nil
}

// Count returns the number of chunks in the store.
func (s *Store) Count() int { return len(s.chunks) }

// IDs returns all chunk ids in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.chunks))
	for id := range s.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StaleIDs returns the ids awaiting vector eviction, in sorted order.
func (s *Store) StaleIDs() []string {
	ids := make([]string, 0, len(s.stale))
	for id := range s.stale {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClearStale empties the stale set after the vector store has evicted the
// corresponding rows.
func (s *Store) ClearStale() {
	s.stale = make(map[string]bool)
}

// IsSensitivePath reports whether a path is excluded from ingestion.
func IsSensitivePath(path string) bool {
	p := filepath.ToSlash(path)
	for _, re := range sensitiveSourcePatterns {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// IngestFile parses one file into chunks and merges them into the store
// incrementally: chunks whose ids already exist for this source are
// preserved, removed ids go to the stale set, and new ids are indexed.
// Returns the number of chunks newly added to the store.
func (s *Store) IngestFile(path string) (int, error) {
	if IsSensitivePath(path) {
		logger.GetLogger().Debug().Str("path", path).Msg("Skipping sensitive file")
		return 0, nil
	}
	if !SupportedExtensions[filepath.Ext(path)] {
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		// Unreadable files are tolerated by skipping them.
		logger.GetLogger().Warn().Err(err).Str("path", path).Msg("Skipping unreadable file")
		return 0, nil
	}

	pieces := chunkContent(string(raw), path)

	newIDs := make([]string, 0, len(pieces))
	newSet := make(map[string]bool, len(pieces))
	for _, p := range pieces {
		if !newSet[p.meta.ID] {
			newSet[p.meta.ID] = true
			newIDs = append(newIDs, p.meta.ID)
		}
	}

	// Retire ids previously produced by this source that vanished.
	for _, oldID := range s.sources[path] {
		if newSet[oldID] {
			continue
		}
		s.refs[oldID]--
		if s.refs[oldID] <= 0 {
			delete(s.refs, oldID)
			delete(s.chunks, oldID)
			delete(s.content, oldID)
			s.stale[oldID] = true
			s.dirty = true
		}
	}

	prevSet := make(map[string]bool, len(s.sources[path]))
	for _, id := range s.sources[path] {
		prevSet[id] = true
	}

	added := 0
	for _, p := range pieces {
		id := p.meta.ID
		s.content[id] = p.content
		if _, exists := s.chunks[id]; !exists {
			s.chunks[id] = p.meta
			added++
			s.dirty = true
		}
		if !prevSet[id] {
			s.refs[id]++
			prevSet[id] = true // guard against duplicate text within the file
		}
	}
	s.sources[path] = newIDs

	return added, nil
}

// IngestDirectory ingests every supported file under dir.
func (s *Store) IngestDirectory(dir string, recursive bool) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("directory not found: %s", dir)
	}
	if !info.IsDir() {
		return s.IngestFile(dir)
	}

	total := 0
	if recursive {
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			n, _ := s.IngestFile(path)
			total += n
			return nil
		})
		if err != nil {
			return total, err
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			n, _ := s.IngestFile(filepath.Join(dir, e.Name()))
			total += n
		}
	}
	return total, nil
}

// Get returns metadata and content for a chunk id. Content evicted from the
// cache is re-derived from the source file's line range.
func (s *Store) Get(id string) (Metadata, string, bool) {
	meta, ok := s.chunks[id]
	if !ok {
		return Metadata{}, "", false
	}
	if content, ok := s.content[id]; ok {
		return meta, content, true
	}
	raw, err := os.ReadFile(meta.SourcePath)
	if err != nil {
		return meta, "", true
	}
	lines := strings.Split(string(raw), "\n")
	if meta.StartLine < 1 || meta.EndLine > len(lines) {
		return meta, "", true
	}
	content := strings.Join(lines[meta.StartLine-1:meta.EndLine], "\n")
	// Only cache if the file still matches the recorded hash.
	if HashContent(content) == meta.Hash {
		s.content[id] = content
	}
	return meta, content, true
}

// RebuildInvertedIndex rebuilds the token index from scratch and clears the
// dirty flag.
func (s *Store) RebuildInvertedIndex() {
	s.inverted = make(map[string]map[string]bool)
	for id := range s.chunks {
		_, content, _ := s.Get(id)
		s.indexChunk(id, content)
	}
	s.dirty = false
}

func (s *Store) indexChunk(id, content string) {
	for _, tok := range Tokenize(content) {
		set, ok := s.inverted[tok]
		if !ok {
			set = make(map[string]bool)
			s.inverted[tok] = set
		}
		set[id] = true
	}
}

func (s *Store) ensureIndex() {
	if s.dirty {
		s.RebuildInvertedIndex()
	}
}

// Search tokenizes the query, intersects posting lists (AND semantics),
// scores candidates by query-substring occurrences, and returns up to k
// results ordered score descending with chunk-id ascending tie-break.
func (s *Store) Search(query string, k int, opts SearchOptions) []SearchResult {
	if k <= 0 {
		k = 10
	}
	s.ensureIndex()

	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	// Intersect posting lists, smallest first.
	sort.Slice(tokens, func(i, j int) bool {
		return len(s.inverted[tokens[i]]) < len(s.inverted[tokens[j]])
	})
	var candidates map[string]bool
	for _, tok := range tokens {
		postings := s.inverted[tok]
		if len(postings) == 0 {
			return nil
		}
		if candidates == nil {
			candidates = make(map[string]bool, len(postings))
			for id := range postings {
				candidates[id] = true
			}
			continue
		}
		for id := range candidates {
			if !postings[id] {
				delete(candidates, id)
			}
		}
		if len(candidates) == 0 {
			return nil
		}
	}

	queryLower := strings.ToLower(query)
	var results []SearchResult
	for id := range candidates {
		meta, content, ok := s.Get(id)
		if !ok || !matchesFilters(meta, opts) {
			continue
		}
		contentLower := strings.ToLower(content)
		results = append(results, SearchResult{
			ChunkID:    id,
			SourcePath: meta.SourcePath,
			StartLine:  meta.StartLine,
			EndLine:    meta.EndLine,
			Kind:       meta.Kind,
			Name:       meta.Name,
			Content:    content,
			Snippet:    Snippet(content, queryLower),
			Score:      strings.Count(contentLower, queryLower),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

func matchesFilters(meta Metadata, opts SearchOptions) bool {
	if opts.PathPrefix != "" && !strings.HasPrefix(meta.SourcePath, opts.PathPrefix) {
		return false
	}
	if opts.Extension != "" && !strings.HasSuffix(meta.SourcePath, opts.Extension) {
		return false
	}
	if opts.Kind != "" && meta.Kind != opts.Kind {
		return false
	}
	if opts.Tag != "" {
		found := false
		for _, t := range meta.Tags {
			if t == opts.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Snippet returns ±100 characters of context around the first occurrence of
// query (lowercase) in content, ellipsized at cut edges.
func Snippet(content, queryLower string) string {
	const context = 100
	idx := strings.Index(strings.ToLower(content), queryLower)
	if idx == -1 {
		if len(content) > 200 {
			return content[:200] + "..."
		}
		return content
	}

	start := idx - context
	if start < 0 {
		start = 0
	}
	end := idx + len(queryLower) + context
	if end > len(content) {
		end = len(content)
	}

	snippet := content[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(content) {
		snippet += "..."
	}
	return snippet
}

// manifest is the on-disk shape of the store.
type manifest struct {
	Version     string              `json:"version"`
	ChunkCount  int                 `json:"chunk_count"`
	LastUpdated string              `json:"last_updated"`
	Chunks      []Metadata          `json:"chunks"`
	Sources     map[string][]string `json:"sources"`
}

// SaveManifest persists chunk metadata and source mappings atomically.
func (s *Store) SaveManifest() error {
	m := manifest{
		Version:     "1.0",
		ChunkCount:  len(s.chunks),
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Sources:     s.sources,
	}
	for _, id := range s.IDs() {
		m.Chunks = append(m.Chunks, s.chunks[id])
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.manifestPath, data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (s *Store) loadManifest() error {
	data, err := os.ReadFile(s.manifestPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	for _, meta := range m.Chunks {
		s.chunks[meta.ID] = meta
	}
	if m.Sources != nil {
		s.sources = m.Sources
	}
	for _, ids := range s.sources {
		for _, id := range ids {
			s.refs[id]++
		}
	}
	s.dirty = true

	logger.GetLogger().Debug().
		Int("chunks", len(s.chunks)).
		Str("manifest", s.manifestPath).
		Msg("Loaded chunk manifest")
	return nil
}
