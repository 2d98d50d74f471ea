// Package patch implements the patch protocol for workspace-first
// engineering: agents propose changes as artifacts under workspace/patches
// (plan.md, patch.diff, tests.md plus a metadata manifest) instead of
// editing project files directly.
package patch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/wyrmspire/agentcore/internal/fileutil"
	"github.com/wyrmspire/agentcore/internal/logger"
)

// Status is a patch's lifecycle state.
type Status string

const (
	StatusProposed Status = "proposed"
	StatusApplied  Status = "applied"
	StatusTested   Status = "tested"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
)

// Metadata is the per-patch manifest persisted as metadata.json.
type Metadata struct {
	PatchID      string   `json:"patch_id"`
	Title        string   `json:"title"`
	CreatedAt    string   `json:"created_at"`
	Status       Status   `json:"status"`
	PlanFile     string   `json:"plan_file"`
	DiffFile     string   `json:"diff_file"`
	TestsFile    string   `json:"tests_file"`
	TargetFiles  []string `json:"target_files"`
	Description  string   `json:"description"`
	ErrorMessage *string  `json:"error_message"`
}

// Manager tracks patch directories under a patches root.
type Manager struct {
	patchesDir string
	patches    map[string]*Metadata
}

// NewManager creates a manager rooted at patchesDir, loading any existing
// patch manifests.
func NewManager(patchesDir string) (*Manager, error) {
	if err := fileutil.EnsureDir(patchesDir); err != nil {
		return nil, fmt.Errorf("create patches dir: %w", err)
	}
	m := &Manager{
		patchesDir: patchesDir,
		patches:    make(map[string]*Metadata),
	}
	m.loadExisting()
	return m, nil
}

func (m *Manager) loadExisting() {
	entries, err := os.ReadDir(m.patchesDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.patchesDir, e.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta Metadata
		if json.Unmarshal(data, &meta) == nil && meta.PatchID != "" {
			m.patches[meta.PatchID] = &meta
		}
	}
}

// slugify reduces a title to a filesystem-safe slug.
func slugify(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Create writes a new patch directory with plan, diff, and test artifacts
// and records it as proposed. The patch id is timestamp + slug.
func (m *Manager) Create(title, description string, targetFiles []string, planContent, diffContent, testsContent string) (*Metadata, error) {
	patchID := fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102_150405"), slugify(title))
	patchDir := filepath.Join(m.patchesDir, patchID)
	if err := fileutil.EnsureDir(patchDir); err != nil {
		return nil, fmt.Errorf("create patch dir: %w", err)
	}

	planFile := filepath.Join(patchDir, "plan.md")
	diffFile := filepath.Join(patchDir, "patch.diff")
	testsFile := filepath.Join(patchDir, "tests.md")

	for _, f := range []struct {
		path    string
		content string
	}{
		{planFile, planContent},
		{diffFile, diffContent},
		{testsFile, testsContent},
	} {
		if err := fileutil.WriteFile(f.path, []byte(f.content)); err != nil {
			return nil, fmt.Errorf("write %s: %w", filepath.Base(f.path), err)
		}
	}

	meta := &Metadata{
		PatchID:     patchID,
		Title:       title,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Status:      StatusProposed,
		PlanFile:    planFile,
		DiffFile:    diffFile,
		TestsFile:   testsFile,
		TargetFiles: targetFiles,
		Description: description,
	}
	if err := m.writeMeta(meta); err != nil {
		return nil, err
	}
	m.patches[patchID] = meta

	logger.GetLogger().Info().Str("patch_id", patchID).Msg("Patch proposed")
	return meta, nil
}

func (m *Manager) writeMeta(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal patch metadata: %w", err)
	}
	path := filepath.Join(m.patchesDir, meta.PatchID, "metadata.json")
	if err := fileutil.WriteFile(path, data); err != nil {
		return fmt.Errorf("write patch metadata: %w", err)
	}
	return nil
}

// Get returns a patch's metadata by id.
func (m *Manager) Get(patchID string) (*Metadata, bool) {
	meta, ok := m.patches[patchID]
	if !ok {
		return nil, false
	}
	snapshot := *meta
	return &snapshot, true
}

// List returns all patches, newest first, optionally filtered by status.
func (m *Manager) List(status Status) []Metadata {
	var out []Metadata
	for _, meta := range m.patches {
		if status != "" && meta.Status != status {
			continue
		}
		out = append(out, *meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

// UpdateStatus moves a patch through its lifecycle; errMessage is recorded
// for failed patches.
func (m *Manager) UpdateStatus(patchID string, status Status, errMessage string) error {
	meta, ok := m.patches[patchID]
	if !ok {
		return fmt.Errorf("patch not found: %s", patchID)
	}
	meta.Status = status
	if errMessage != "" {
		meta.ErrorMessage = &errMessage
	}
	return m.writeMeta(meta)
}
