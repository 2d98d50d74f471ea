// Package workspace implements the path sandbox that isolates agent writes
// to a designated directory while permitting curated read access to project
// source. It also carries the resource circuit breaker that halts
// write-producing operations when disk or memory limits are exceeded.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/wyrmspire/agentcore/internal/fileutil"
	"github.com/wyrmspire/agentcore/internal/logger"
)

// BlockedBy categorizes why an operation was refused. Values match the error
// envelope taxonomy surfaced to the model.
type BlockedBy string

const (
	BlockedByRules      BlockedBy = "rules"
	BlockedByWorkspace  BlockedBy = "workspace"
	BlockedByMissing    BlockedBy = "missing"
	BlockedByRuntime    BlockedBy = "runtime"
	BlockedByPermission BlockedBy = "permission"
)

// Error is a workspace violation carrying the blocked-by taxonomy tag.
type Error struct {
	BlockedBy BlockedBy
	Code      string
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[blocked_by: %s] %s", e.BlockedBy, e.Message)
}

// Error codes produced by this package.
const (
	CodePathOutsideWorkspace = "PATH_OUTSIDE_WORKSPACE"
	CodeBlockedFile          = "BLOCKED_FILE"
	CodeNotFound             = "NOT_FOUND"
	CodeResourceLimit        = "RESOURCE_LIMIT_EXCEEDED"
)

// StandardBins are the subdirectories the workspace reserves for artifact
// classes. Tools are expected to place artifacts in the matching bin.
var StandardBins = map[string]string{
	"repos":   "Cloned repositories",
	"runs":    "Run outputs organized by run_id",
	"notes":   "Human-readable summaries and analysis",
	"patches": "Patch protocol files",
	"data":    "Data files for analysis",
	"queue":   "Task queue files (auto-managed)",
	"chunks":  "Chunk index files (auto-managed)",
}

// sensitivePatterns are never readable, even with project read enabled.
var sensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*secret*",
	"*credentials*",
	".git/",
}

// Options configures a Workspace.
type Options struct {
	MaxSizeBytes       int64
	MinFreeRAMPercent  float64
	AllowProjectRead   bool
	CreateStandardBins bool
	// DeniedProjectDirs are directories under the project root that hold the
	// agent's own code and configuration; project reads inside them fail.
	DeniedProjectDirs []string
}

// DefaultOptions returns the default workspace limits: 5 GiB on disk, 10%
// minimum free RAM, project reads enabled.
func DefaultOptions() Options {
	return Options{
		MaxSizeBytes:       5 << 30,
		MinFreeRAMPercent:  10.0,
		AllowProjectRead:   true,
		CreateStandardBins: true,
	}
}

// Workspace is a path sandbox rooted at a designated directory whose parent
// is the project root.
type Workspace struct {
	root        string
	projectRoot string
	opts        Options
	blockedFile map[string]bool
}

// New creates a workspace rooted at root, creating the directory and the
// standard bins if needed.
func New(root string, opts Options) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := fileutil.EnsureDir(abs); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	w := &Workspace{
		root:        abs,
		projectRoot: filepath.Dir(abs),
		opts:        opts,
		blockedFile: make(map[string]bool),
	}

	if opts.CreateStandardBins {
		for bin := range StandardBins {
			if err := fileutil.EnsureDir(filepath.Join(abs, bin)); err != nil {
				return nil, fmt.Errorf("create bin %s: %w", bin, err)
			}
		}
	}

	// Files blocked from any access regardless of pattern matching.
	for _, name := range []string{".env", ".env.example", ".env.local"} {
		w.blockedFile[normalizeCase(filepath.Join(w.projectRoot, name))] = true
	}

	logger.GetLogger().Debug().
		Str("root", abs).
		Str("project_root", w.projectRoot).
		Msg("Workspace initialized")
	return w, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// ProjectRoot returns the project root (parent of the workspace).
func (w *Workspace) ProjectRoot() string { return w.projectRoot }

// Bin returns the absolute path of a standard bin.
func (w *Workspace) Bin(name string) string { return filepath.Join(w.root, name) }

// RunDir returns (creating if needed) the per-run output directory under
// runs/.
func (w *Workspace) RunDir(runID string) (string, error) {
	dir := filepath.Join(w.root, "runs", runID)
	if err := fileutil.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// normalizeCase folds case on case-insensitive filesystems so path
// comparisons behave consistently.
func normalizeCase(p string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(p)
	}
	return p
}

// stripWorkspacePrefix removes a single leading "workspace/" segment. The
// agent sees "workspace/" in project listings and may include it.
func stripWorkspacePrefix(p string) string {
	if strings.HasPrefix(p, "workspace/") {
		return p[len("workspace/"):]
	}
	if strings.HasPrefix(p, `workspace\`) {
		return p[len(`workspace\`):]
	}
	return p
}

// isSensitive reports whether a path matches the sensitive-pattern set.
func isSensitive(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	full := strings.ToLower(filepath.ToSlash(path))

	for _, pattern := range sensitivePatterns {
		switch {
		case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
			if strings.Contains(name, pattern[1:len(pattern)-1]) {
				return true
			}
		case strings.HasPrefix(pattern, "*"):
			if strings.HasSuffix(name, pattern[1:]) {
				return true
			}
		case strings.HasSuffix(pattern, "*"):
			if strings.HasPrefix(name, pattern[:len(pattern)-1]) {
				return true
			}
		case strings.HasSuffix(pattern, "/"):
			dir := pattern[:len(pattern)-1]
			if strings.Contains(full, "/"+dir+"/") || strings.HasSuffix(full, "/"+dir) {
				return true
			}
		default:
			if name == pattern {
				return true
			}
		}
	}
	return false
}

// resolve normalizes p against the workspace root and validates containment.
func (w *Workspace) resolve(p string) (string, error) {
	p = stripWorkspacePrefix(filepath.FromSlash(p))

	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	resolved, err := filepath.Abs(p)
	if err != nil {
		return "", &Error{BlockedBy: BlockedByWorkspace, Code: CodePathOutsideWorkspace, Message: fmt.Sprintf("cannot resolve path: %v", err)}
	}

	rootNorm := normalizeCase(w.root)
	resNorm := normalizeCase(resolved)
	if resNorm != rootNorm && !strings.HasPrefix(resNorm, rootNorm+string(filepath.Separator)) {
		return "", &Error{
			BlockedBy: BlockedByWorkspace,
			Code:      CodePathOutsideWorkspace,
			Message:   fmt.Sprintf("path outside workspace: requested=%s resolved=%s workspace_root=%s", p, resolved, w.root),
		}
	}

	if w.blockedFile[resNorm] {
		return "", &Error{
			BlockedBy: BlockedByWorkspace,
			Code:      CodeBlockedFile,
			Message:   fmt.Sprintf("access to %q is blocked for safety", filepath.Base(resolved)),
		}
	}
	return resolved, nil
}

// ResolveWrite resolves a path for writing inside the workspace and creates
// parent directories.
func (w *Workspace) ResolveWrite(p string) (string, error) {
	resolved, err := w.resolve(p)
	if err != nil {
		return "", err
	}
	if err := fileutil.EnsureDir(filepath.Dir(resolved)); err != nil {
		return "", &Error{BlockedBy: BlockedByRuntime, Code: CodeResourceLimit, Message: fmt.Sprintf("create parent directories: %v", err)}
	}
	return resolved, nil
}

// ResolveRead resolves a path for reading inside the workspace and verifies
// it exists.
func (w *Workspace) ResolveRead(p string) (string, error) {
	resolved, err := w.resolve(p)
	if err != nil {
		return "", err
	}
	if !fileutil.Exists(resolved) {
		return "", &Error{BlockedBy: BlockedByMissing, Code: CodeNotFound, Message: fmt.Sprintf("path does not exist: %s", resolved)}
	}
	return resolved, nil
}

// ResolveProjectRead resolves a path for read-only access to project files.
// Sensitive files and denied project directories are blocked; the file must
// exist.
func (w *Workspace) ResolveProjectRead(p string) (string, error) {
	if !w.opts.AllowProjectRead {
		return "", &Error{BlockedBy: BlockedByWorkspace, Code: CodeBlockedFile, Message: "project read access is disabled"}
	}

	q := filepath.FromSlash(p)
	if !filepath.IsAbs(q) {
		q = filepath.Join(w.projectRoot, q)
	}
	resolved, err := filepath.Abs(q)
	if err != nil {
		return "", &Error{BlockedBy: BlockedByWorkspace, Code: CodePathOutsideWorkspace, Message: fmt.Sprintf("cannot resolve path: %v", err)}
	}

	projNorm := normalizeCase(w.projectRoot)
	resNorm := normalizeCase(resolved)
	if resNorm != projNorm && !strings.HasPrefix(resNorm, projNorm+string(filepath.Separator)) {
		return "", &Error{
			BlockedBy: BlockedByWorkspace,
			Code:      CodePathOutsideWorkspace,
			Message:   fmt.Sprintf("path outside project: requested=%s resolved=%s project_root=%s", p, resolved, w.projectRoot),
		}
	}

	for _, dir := range w.opts.DeniedProjectDirs {
		denied := normalizeCase(filepath.Join(w.projectRoot, dir))
		if resNorm == denied || strings.HasPrefix(resNorm, denied+string(filepath.Separator)) {
			return "", &Error{
				BlockedBy: BlockedByWorkspace,
				Code:      CodeBlockedFile,
				Message:   fmt.Sprintf("directory %q is not readable by the agent", dir),
			}
		}
	}

	if w.blockedFile[resNorm] || isSensitive(resolved) {
		return "", &Error{
			BlockedBy: BlockedByWorkspace,
			Code:      CodeBlockedFile,
			Message:   fmt.Sprintf("access to %q is blocked (sensitive file)", filepath.Base(resolved)),
		}
	}

	if !fileutil.Exists(resolved) {
		return "", &Error{BlockedBy: BlockedByMissing, Code: CodeNotFound, Message: fmt.Sprintf("path does not exist: %s", resolved)}
	}
	return resolved, nil
}

// Relative returns the path relative to the workspace root.
func (w *Workspace) Relative(p string) (string, error) {
	resolved, err := w.resolve(p)
	if err != nil {
		return "", err
	}
	return filepath.Rel(w.root, resolved)
}

// ListContents lists a directory inside the workspace in sorted order. A nil
// path lists the root.
func (w *Workspace) ListContents(p string) ([]string, error) {
	target := w.root
	if p != "" {
		resolved, err := w.ResolveRead(p)
		if err != nil {
			return nil, err
		}
		target = resolved
	}
	if !fileutil.IsDir(target) {
		return nil, &Error{BlockedBy: BlockedByWorkspace, Code: CodeNotFound, Message: fmt.Sprintf("path is not a directory: %s", target)}
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, &Error{BlockedBy: BlockedByRuntime, Code: CodeResourceLimit, Message: err.Error()}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}
