// Package chunk parses source files into content-addressed semantic chunks
// and maintains the keyword-searchable chunk store backing the retrieval
// index. Chunk identity is the hash of the chunk text alone, which makes ids
// stable across sessions and collapses duplicate text anywhere in a
// repository to a single chunk.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Kind classifies what structural element a chunk covers.
type Kind string

const (
	KindFunction Kind = "function"
	KindClass    Kind = "class"
	KindSection  Kind = "section"
	KindFile     Kind = "file"
)

// Metadata describes a chunk. Identity is the content hash; metadata is
// immutable once created.
type Metadata struct {
	ID         string   `json:"id"`
	SourcePath string   `json:"source_path"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Hash       string   `json:"hash"`
	Tags       []string `json:"tags"`
	Kind       Kind     `json:"chunk_type"`
	Name       string   `json:"name,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// chunkPiece pairs metadata with the exact chunk text during chunking.
type chunkPiece struct {
	meta    Metadata
	content string
}

// SupportedExtensions lists the file types the chunker ingests.
var SupportedExtensions = map[string]bool{
	".go":   true,
	".py":   true,
	".md":   true,
	".txt":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
}

// HashContent returns the 16-hex-char content hash used for chunk identity.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// ChunkID derives a chunk id from exact chunk text. The same text anywhere
// collapses to the same id.
func ChunkID(content string) string {
	return "chunk_" + HashContent(content)
}

func newPiece(content, sourcePath string, startLine, endLine int, kind Kind, name string, tags []string) chunkPiece {
	hash := HashContent(content)
	return chunkPiece{
		meta: Metadata{
			ID:         "chunk_" + hash,
			SourcePath: sourcePath,
			StartLine:  startLine,
			EndLine:    endLine,
			Hash:       hash,
			Tags:       tags,
			Kind:       kind,
			Name:       name,
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		},
		content: content,
	}
}

// chunkContent dispatches to the language-aware chunker for the extension.
func chunkContent(content, sourcePath string) []chunkPiece {
	switch filepath.Ext(sourcePath) {
	case ".go":
		return chunkGoFile(content, sourcePath)
	case ".py":
		return chunkPythonFile(content, sourcePath)
	case ".md":
		return chunkMarkdownFile(content, sourcePath)
	default:
		return chunkWholeFile(content, sourcePath)
	}
}

// chunkGoFile cuts a Go file at top-level function and type boundaries using
// the standard parser. Files that fail to parse fall back to a single
// whole-file chunk.
func chunkGoFile(content, sourcePath string) []chunkPiece {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, sourcePath, content, parser.ParseComments)
	if err != nil {
		return chunkWholeFile(content, sourcePath)
	}

	lines := strings.Split(content, "\n")
	var pieces []chunkPiece

	for _, decl := range file.Decls {
		var (
			name string
			kind Kind
		)
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name = d.Name.Name
			kind = KindFunction
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok {
					name = ts.Name.Name
					break
				}
			}
			kind = KindClass
		default:
			continue
		}

		start := fset.Position(decl.Pos()).Line
		end := fset.Position(decl.End()).Line
		if fd, ok := decl.(*ast.FuncDecl); ok && fd.Doc != nil {
			start = fset.Position(fd.Doc.Pos()).Line
		}
		if start < 1 || end > len(lines) || start > end {
			continue
		}
		text := strings.Join(lines[start-1:end], "\n")
		pieces = append(pieces, newPiece(text, sourcePath, start, end, kind, name, []string{"go", string(kind)}))
	}

	if len(pieces) == 0 {
		return chunkWholeFile(content, sourcePath)
	}
	return pieces
}

var (
	pyFuncRe  = regexp.MustCompile(`^(\s*)def\s+(\w+)\s*\(`)
	pyClassRe = regexp.MustCompile(`^(\s*)class\s+(\w+)`)
	mdHeadRe  = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
)

// chunkPythonFile cuts a Python file at top-level def/class boundaries.
func chunkPythonFile(content, sourcePath string) []chunkPiece {
	lines := strings.Split(content, "\n")

	type boundary struct {
		line int
		name string
		kind Kind
	}
	var bounds []boundary
	for i, line := range lines {
		// Indented defs and classes (methods, nested definitions) stay
		// inside their enclosing top-level chunk.
		if m := pyFuncRe.FindStringSubmatch(line); m != nil && m[1] == "" {
			bounds = append(bounds, boundary{line: i + 1, name: m[2], kind: KindFunction})
		} else if m := pyClassRe.FindStringSubmatch(line); m != nil && m[1] == "" {
			bounds = append(bounds, boundary{line: i + 1, name: m[2], kind: KindClass})
		}
	}

	if len(bounds) == 0 {
		return chunkWholeFile(content, sourcePath)
	}

	var pieces []chunkPiece
	for i, b := range bounds {
		end := len(lines)
		if i+1 < len(bounds) {
			end = bounds[i+1].line - 1
		}
		text := strings.Join(lines[b.line-1:end], "\n")
		pieces = append(pieces, newPiece(text, sourcePath, b.line, end, b.kind, b.name, []string{"python", string(b.kind)}))
	}
	return pieces
}

// chunkMarkdownFile cuts a markdown file at section headers.
func chunkMarkdownFile(content, sourcePath string) []chunkPiece {
	lines := strings.Split(content, "\n")

	type boundary struct {
		line int
		name string
	}
	var bounds []boundary
	for i, line := range lines {
		if m := mdHeadRe.FindStringSubmatch(line); m != nil {
			bounds = append(bounds, boundary{line: i + 1, name: m[2]})
		}
	}

	if len(bounds) == 0 {
		return chunkWholeFile(content, sourcePath)
	}

	var pieces []chunkPiece
	for i, b := range bounds {
		end := len(lines)
		if i+1 < len(bounds) {
			end = bounds[i+1].line - 1
		}
		text := strings.Join(lines[b.line-1:end], "\n")
		pieces = append(pieces, newPiece(text, sourcePath, b.line, end, KindSection, b.name, []string{"markdown", "section"}))
	}
	return pieces
}

// chunkWholeFile is the fallback when no structural boundaries are detected.
func chunkWholeFile(content, sourcePath string) []chunkPiece {
	lines := strings.Split(content, "\n")
	ext := strings.TrimPrefix(filepath.Ext(sourcePath), ".")
	tags := []string{"file"}
	if ext != "" {
		tags = []string{ext, "file"}
	}
	return []chunkPiece{newPiece(content, sourcePath, 1, len(lines), KindFile, "", tags)}
}
