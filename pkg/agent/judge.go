package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Judgment is the advisory outcome of one inspection. The judge never
// blocks; failed judgments only inject system guidance.
type Judgment struct {
	Passed     bool
	Reason     string
	Severity   string // info, warning, error
	Suggestion string
}

// Judge is a pure inspection step run after each tool batch. It watches for
// repeated tool loops, repeated failures, empty outputs, and workflow and
// patch discipline.
type Judge struct{}

// NewJudge creates a judge.
func NewJudge() *Judge {
	return &Judge{}
}

// CheckProgress flags multiple tool failures in a row.
func (j *Judge) CheckProgress(steps []sdk.Step) Judgment {
	if len(steps) == 0 {
		return Judgment{Passed: true, Reason: "just started"}
	}

	recentErrors := 0
	for _, s := range lastN(steps, 3) {
		if s.Kind != sdk.StepObserve {
			continue
		}
		for _, r := range s.ToolResults {
			if !r.Success {
				recentErrors++
				break
			}
		}
	}
	if recentErrors >= 2 {
		return Judgment{
			Passed:     false,
			Reason:     "multiple tool failures in a row",
			Severity:   "warning",
			Suggestion: "Consider trying a different approach",
		}
	}
	return Judgment{Passed: true, Reason: "making progress"}
}

// CheckToolLoop flags the same tool repeated three times running.
func (j *Judge) CheckToolLoop(steps []sdk.Step) Judgment {
	var names []string
	for _, s := range steps {
		for _, tc := range s.ToolCalls {
			names = append(names, tc.Name)
		}
	}
	if len(names) >= 3 {
		recent := names[len(names)-3:]
		if recent[0] == recent[1] && recent[1] == recent[2] {
			return Judgment{
				Passed:     false,
				Reason:     fmt.Sprintf("repeating same tool: %s", recent[0]),
				Severity:   "warning",
				Suggestion: "Try a different tool or approach",
			}
		}
	}
	return Judgment{Passed: true, Reason: "no loops detected"}
}

// CheckToolResult flags failed or empty results.
func (j *Judge) CheckToolResult(result sdk.ToolResult) Judgment {
	if !result.Success {
		return Judgment{
			Passed:   false,
			Reason:   fmt.Sprintf("tool failed: %s", firstLine(result.Error)),
			Severity: "warning",
		}
	}
	if strings.TrimSpace(result.Output) == "" {
		return Judgment{
			Passed:     true,
			Reason:     "tool returned empty output",
			Severity:   "info",
			Suggestion: "Verify this was expected",
		}
	}
	return Judgment{Passed: true, Reason: "tool result looks good"}
}

// CheckWorkflowDiscipline flags code writes with no test activity afterward.
func (j *Judge) CheckWorkflowDiscipline(steps []sdk.Step) Judgment {
	wroteCodeAt := -1
	ranTestsAt := -1
	for i, s := range steps {
		for _, tc := range s.ToolCalls {
			if isCodeWrite(tc) {
				wroteCodeAt = i
			}
			if isTestRun(tc) {
				ranTestsAt = i
			}
		}
	}
	if wroteCodeAt >= 0 && ranTestsAt < wroteCodeAt {
		return Judgment{
			Passed:     false,
			Reason:     "code was written without running tests",
			Severity:   "warning",
			Suggestion: "Run the relevant tests before claiming the change works",
		}
	}
	return Judgment{Passed: true, Reason: "workflow discipline ok"}
}

// CheckPatchDiscipline flags direct writes into cloned project sources that
// bypass the patch protocol.
func (j *Judge) CheckPatchDiscipline(steps []sdk.Step) Judgment {
	proposedPatch := false
	var directWrite string
	for _, s := range steps {
		for _, tc := range s.ToolCalls {
			if tc.Name == "propose_patch" {
				proposedPatch = true
			}
			if isCodeWrite(tc) {
				path := filepath.ToSlash(tc.StringArg("path"))
				if strings.HasPrefix(path, "repos/") || strings.HasPrefix(path, "workspace/repos/") {
					directWrite = path
				}
			}
		}
	}
	if directWrite != "" && !proposedPatch {
		return Judgment{
			Passed:     false,
			Reason:     fmt.Sprintf("direct write into cloned source %q without a patch", directWrite),
			Severity:   "warning",
			Suggestion: "Propose changes to cloned sources via propose_patch instead of editing them in place",
		}
	}
	return Judgment{Passed: true, Reason: "patch discipline ok"}
}

func isCodeWrite(tc sdk.ToolCall) bool {
	switch tc.Name {
	case "write_file", "edit_file", "create_file":
	default:
		return false
	}
	switch strings.ToLower(filepath.Ext(tc.StringArg("path"))) {
	case ".go", ".py", ".js", ".ts", ".rs", ".java", ".c", ".cpp", ".sh":
		return true
	}
	return false
}

func isTestRun(tc sdk.ToolCall) bool {
	if tc.Name != "shell" && tc.Name != "command" {
		return false
	}
	cmd := strings.ToLower(tc.StringArg("command") + tc.StringArg("cmd"))
	for _, kw := range []string{"go test", "pytest", "unittest", "npm test", "yarn test"} {
		if strings.Contains(cmd, kw) {
			return true
		}
	}
	return false
}

func lastN(steps []sdk.Step, n int) []sdk.Step {
	if len(steps) <= n {
		return steps
	}
	return steps[len(steps)-n:]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
