package preflight

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

func call(id, name string, args map[string]any) sdk.ToolCall {
	return sdk.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name string
		call sdk.ToolCall
		want string
	}{
		{"read_file is inspect", call("1", "read_file", map[string]any{"path": "test.py"}), IntentInspectFile},
		{"data_view is inspect", call("1", "data_view", map[string]any{"path": "data.csv"}), IntentInspectFile},
		{"list data dir is find_data", call("1", "list_files", map[string]any{"path": "workspace/data/"}), IntentFindData},
		{"list generic is explore", call("1", "list_files", map[string]any{"path": "workspace/"}), IntentExploreDirectory},
		{"shell find is find_data", call("1", "shell", map[string]any{"command": "find . -name '*.csv'"}), IntentFindData},
		{"shell mkdir is create_structure", call("1", "shell", map[string]any{"command": "mkdir new_folder"}), IntentCreateStructure},
		{"write md is write_document", call("1", "write_file", map[string]any{"path": "notes.md"}), IntentWriteDocument},
		{"write py is write_code", call("1", "write_file", map[string]any{"path": "script.py"}), IntentWriteCode},
		{"shell go test is run_tests", call("1", "shell", map[string]any{"command": "go test ./..."}), IntentRunTests},
		{"chunk_search is search_code", call("1", "chunk_search", map[string]any{"query": "x"}), IntentSearchCode},
		{"unknown is other", call("1", "mystery", nil), IntentOtherAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.call))
		})
	}
}

func TestFingerprint_CanonicalArgs(t *testing.T) {
	a := call("1", "read_file", map[string]any{"path": "x.py", "project": true})
	b := call("2", "read_file", map[string]any{"project": true, "path": "x.py"})
	c := call("3", "read_file", map[string]any{"path": "y.py"})

	assert.Equal(t, Fingerprint(a), Fingerprint(b), "argument order must not change the fingerprint")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestRecordFailure_IncrementsCount(t *testing.T) {
	cb := NewCircuitBreakerState()
	tc := call("1", "read_file", map[string]any{"path": "test.txt"})

	assert.Equal(t, 1, cb.RecordFailure(tc, "weird transient error"))
	assert.Equal(t, 2, cb.RecordFailure(tc, "weird transient error"))
}

func TestIsTripped_AfterThreshold(t *testing.T) {
	cb := NewCircuitBreakerState()
	tc := call("1", "read_file", map[string]any{"path": "test.txt"})

	cb.RecordFailure(tc, "odd failure one")
	tripped, _ := cb.IsTripped(tc)
	assert.False(t, tripped)

	cb.RecordFailure(tc, "odd failure two")
	tripped, reason := cb.IsTripped(tc)
	assert.True(t, tripped)
	assert.Contains(t, reason, "failed 2 times")
}

func TestRecordSuccess_ClearsFingerprint(t *testing.T) {
	cb := NewCircuitBreakerState()
	tc := call("1", "read_file", map[string]any{"path": "test.txt"})

	cb.RecordFailure(tc, "error 1")
	cb.RecordSuccess(tc)

	tripped, _ := cb.IsTripped(tc)
	assert.False(t, tripped)
}

func TestErrorClassTracking(t *testing.T) {
	cb := NewCircuitBreakerState()

	cb.RecordFailure(call("1", "read_file", map[string]any{"path": "a.txt"}), "File not found")
	cb.RecordFailure(call("2", "read_file", map[string]any{"path": "b.txt"}), "No such file")
	cb.RecordFailure(call("3", "read_file", map[string]any{"path": "c.txt"}), "Path does not exist")

	tripped, reason := cb.IsTripped(call("4", "read_file", map[string]any{"path": "d.txt"}))
	assert.True(t, tripped, "a run of same-class errors should trip new calls")
	assert.Contains(t, reason, ErrClassPathNotFound)
}

func TestBadPathTracking(t *testing.T) {
	cb := NewCircuitBreakerState()
	cb.RecordFailure(call("1", "read_file", map[string]any{"path": "missing.txt"}), "File not found")

	assert.True(t, cb.IsBadPath("missing.txt"))
	assert.False(t, cb.IsBadPath("other.txt"))
}

func TestIntentExhaustion_AfterThreshold(t *testing.T) {
	cb := NewCircuitBreakerState()

	// Three failures with different files but the same intent, using
	// non-deterministic errors so each weighs 1.
	for i := 1; i <= 3; i++ {
		cb.CurrentStep = i
		cb.RecordFailure(call(fmt.Sprint(i), "read_file", map[string]any{"path": fmt.Sprintf("%c.py", 'a'+i)}), "strange flake")
	}

	cb.CurrentStep = 4
	exhausted, reason, intent := cb.IsIntentExhausted(call("4", "read_file", map[string]any{"path": "d.py"}))
	assert.True(t, exhausted)
	assert.Equal(t, IntentInspectFile, intent)
	assert.Contains(t, reason, "failed")
}

func TestDeterministicErrorCountsDouble(t *testing.T) {
	cb := NewCircuitBreakerState()

	cb.CurrentStep = 1
	cb.RecordFailure(call("1", "read_file", map[string]any{"path": "missing1.py"}), "file not found")
	cb.CurrentStep = 2
	cb.RecordFailure(call("2", "read_file", map[string]any{"path": "missing2.py"}), "no such file")

	state := cb.IntentStateFor(IntentInspectFile)
	require.NotNil(t, state)
	assert.GreaterOrEqual(t, state.FailureCount, 4, "two deterministic errors weigh 4")

	exhausted, _, _ := cb.IsIntentExhausted(call("3", "read_file", map[string]any{"path": "missing3.py"}))
	assert.True(t, exhausted, "two not-found failures alone exhaust the intent")
}

func TestOverride_ResetsIntent(t *testing.T) {
	cb := NewCircuitBreakerState()
	for i := 1; i <= 3; i++ {
		cb.CurrentStep = i
		cb.RecordFailure(call(fmt.Sprint(i), "read_file", map[string]any{"path": fmt.Sprintf("f%d.py", i)}), "some error")
	}

	assert.True(t, cb.UseOverride(IntentInspectFile))

	cb.CurrentStep = 5
	exhausted, _, _ := cb.IsIntentExhausted(call("4", "read_file", map[string]any{"path": "new.py"}))
	assert.False(t, exhausted)
}

func TestOverride_OnlyWorksOnce(t *testing.T) {
	cb := NewCircuitBreakerState()
	assert.True(t, cb.UseOverride(IntentInspectFile))
	assert.False(t, cb.UseOverride(IntentInspectFile))
}

func TestRecoveryLadder(t *testing.T) {
	tests := []struct {
		failures int
		want     RecoveryAction
	}{
		{1, ActionRetryOnce},
		{2, ActionSwitchTool},
		{3, ActionSwitchApproach},
		{4, ActionSwitchApproach},
		{5, ActionStopAndPlan},
		{9, ActionStopAndPlan},
	}
	for _, tt := range tests {
		action, desc := GetRecoveryAction("test", tt.failures, "error")
		assert.Equal(t, tt.want, action, "failures=%d", tt.failures)
		assert.NotEmpty(t, desc)
	}
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrClassPathNotFound, ClassifyError("open foo: no such file or directory"))
	assert.Equal(t, ErrClassPermissionDenied, ClassifyError("permission denied"))
	assert.Equal(t, ErrClassValidation, ClassifyError("Invalid arguments: missing property path"))
	assert.Equal(t, ErrClassSyntax, ClassifyError("syntax error near line 3"))
	assert.Equal(t, ErrClassOther, ClassifyError("connection reset by peer"))
}

func TestPathResolver_Rewrites(t *testing.T) {
	resolver := NewPathResolver()

	analysis := resolver.AnalyzePath("workspace/workspace/file.txt", "write_file")
	require.True(t, analysis.NeedsRewrite)
	require.NotNil(t, analysis.Rewrite)
	assert.Equal(t, RewriteSafe, analysis.Rewrite.Safety)
	assert.NotContains(t, analysis.NormalizedPath, "workspace/workspace")

	analysis = resolver.AnalyzePath(`workspace\data\file.csv`, "read_file")
	require.True(t, analysis.NeedsRewrite)
	assert.Equal(t, RewriteSafe, analysis.Rewrite.Safety)
	assert.Equal(t, "workspace/data/file.csv", analysis.NormalizedPath)

	analysis = resolver.AnalyzePath("workspace/data/file.csv", "read_file")
	assert.False(t, analysis.NeedsRewrite)
}

func TestToolCapabilities_Alternatives(t *testing.T) {
	caps := ToolCapabilities["data_view"]
	assert.Contains(t, caps.UnsupportedAlternatives, ".json")
	assert.Contains(t, caps.UnsupportedAlternatives[".json"], "read_file")

	caps = ToolCapabilities["read_file"]
	assert.Contains(t, caps.BlockedAlternatives, ".zip")
	assert.Contains(t, caps.BlockedAlternatives[".zip"], "unzip")
}
