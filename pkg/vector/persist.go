package vector

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/wyrmspire/agentcore/internal/fileutil"
	"github.com/wyrmspire/agentcore/internal/logger"
)

const (
	matrixFile   = "embeddings.npz"
	manifestFile = "vectors_manifest.json"
)

// MatrixPath returns the on-disk path of the compressed matrix file.
func (s *Store) MatrixPath() string { return filepath.Join(s.dir, matrixFile) }

// ManifestPath returns the on-disk path of the manifest file.
func (s *Store) ManifestPath() string { return filepath.Join(s.dir, manifestFile) }

// Save persists the matrix and manifest atomically: each file is written to
// a .tmp sibling, fsynced, then renamed into place. On failure the temp
// siblings are unlinked. An empty store saves nothing and returns nil.
func (s *Store) Save() error {
	if len(s.ids) == 0 {
		return nil
	}
	if err := fileutil.EnsureDir(s.dir); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}
	s.touch()

	matrix, err := encodeMatrix(s.vectors, s.meta.Dim)
	if err != nil {
		return fmt.Errorf("encode matrix: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.MatrixPath(), matrix); err != nil {
		return fmt.Errorf("write matrix: %w", err)
	}

	manifest, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.ManifestPath(), manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	logger.GetLogger().Debug().
		Int("count", len(s.ids)).
		Int("dim", s.meta.Dim).
		Msg("Saved vector store")
	return nil
}

// Load reads both artifacts and verifies count consistency: matrix rows,
// id-list length, and manifest count must agree, otherwise ErrCorruptedIndex
// is returned and the in-memory state is left empty. A missing manifest is
// not an error; a manifest whose matrix file is missing is ErrCorruptedIndex.
func (s *Store) Load() error {
	manifestRaw, err := os.ReadFile(s.ManifestPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	matrixRaw, err := os.ReadFile(s.MatrixPath())
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: manifest present but matrix missing", ErrCorruptedIndex)
	}
	if err != nil {
		return fmt.Errorf("read matrix: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(manifestRaw, &meta); err != nil {
		return fmt.Errorf("%w: unreadable manifest: %v", ErrCorruptedIndex, err)
	}

	vectors, dim, err := decodeMatrix(matrixRaw)
	if err != nil {
		return fmt.Errorf("%w: unreadable matrix: %v", ErrCorruptedIndex, err)
	}

	if len(vectors) != len(meta.ChunkIDs) || len(vectors) != meta.Count {
		return fmt.Errorf("%w: manifest_count=%d chunk_ids=%d vectors=%d",
			ErrCorruptedIndex, meta.Count, len(meta.ChunkIDs), len(vectors))
	}

	s.ids = meta.ChunkIDs
	s.vectors = vectors
	s.meta = meta
	s.meta.Dim = dim
	s.index = make(map[string]int, len(s.ids))
	for i, id := range s.ids {
		s.index[id] = i
	}

	logger.GetLogger().Debug().
		Int("count", len(s.ids)).
		Int("dim", dim).
		Str("model", meta.EmbeddingModel).
		Msg("Loaded vector store")
	return nil
}

// encodeMatrix serializes rows×dim float32 values as a gzip-compressed
// little-endian stream prefixed with the two dimensions.
func encodeMatrix(vectors [][]float32, dim int) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)

	header := []uint32{uint32(len(vectors)), uint32(dim)}
	if err := binary.Write(zw, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	for _, row := range vectors {
		if err := binary.Write(zw, binary.LittleEndian, row); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMatrix(raw []byte) ([][]float32, int, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, err
	}
	defer zr.Close()

	var header [2]uint32
	if err := binary.Read(zr, binary.LittleEndian, &header); err != nil {
		return nil, 0, err
	}
	rows, dim := int(header[0]), int(header[1])
	if rows < 0 || dim <= 0 || rows > 1<<24 || dim > 1<<16 {
		return nil, 0, fmt.Errorf("implausible matrix shape %dx%d", rows, dim)
	}

	vectors := make([][]float32, rows)
	for i := range vectors {
		row := make([]float32, dim)
		if err := binary.Read(zr, binary.LittleEndian, row); err != nil {
			return nil, 0, err
		}
		vectors[i] = row
	}
	// A well-formed stream ends exactly here.
	if _, err := io.CopyN(io.Discard, zr, 1); err != io.EOF {
		return nil, 0, fmt.Errorf("trailing data after matrix")
	}
	return vectors, dim, nil
}
