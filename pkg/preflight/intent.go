// Package preflight validates tool-call batches before execution. It
// classifies proposals into intents, tracks failures in a two-level circuit
// breaker (exact fingerprints and coarse intents), gates known-bad paths,
// computes safe path rewrites for the executor to apply, and emits the
// recovery-ladder guidance that keeps the model from grinding the same
// failing approach.
package preflight

import (
	"path/filepath"
	"strings"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Intent tags. An intent is the coarse category of what a proposal is trying
// to do; it is the identity used by the per-intent circuit breaker.
const (
	IntentInspectFile      = "inspect_file"
	IntentExploreDirectory = "explore_directory"
	IntentFindData         = "find_data"
	IntentWriteCode        = "write_code"
	IntentWriteDocument    = "write_document"
	IntentCreateStructure  = "create_structure"
	IntentRunTests         = "run_tests"
	IntentSearchCode       = "search_code"
	IntentNetworkFetch     = "network_fetch"
	IntentOtherAction      = "other_action"
)

var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".rs": true,
	".java": true, ".c": true, ".cpp": true, ".h": true, ".sh": true,
	".sql": true, ".rb": true,
}

var documentExtensions = map[string]bool{
	".md": true, ".txt": true, ".rst": true, ".adoc": true,
}

// ClassifyIntent maps a proposal to its intent tag. The mapping is
// rule-based and deterministic; unrecognized cases fall to other_action.
func ClassifyIntent(call sdk.ToolCall) string {
	path := call.StringArg("path")
	switch call.Name {
	case "read_file", "data_view":
		return IntentInspectFile

	case "list_files":
		if strings.Contains(strings.ToLower(path), "data") {
			return IntentFindData
		}
		return IntentExploreDirectory

	case "write_file", "edit_file", "create_file":
		ext := strings.ToLower(filepath.Ext(path))
		if documentExtensions[ext] {
			return IntentWriteDocument
		}
		if codeExtensions[ext] {
			return IntentWriteCode
		}
		return IntentWriteDocument

	case "chunk_search", "grep_search", "search":
		return IntentSearchCode

	case "fetch", "http_request", "web_request":
		return IntentNetworkFetch

	case "shell", "command":
		return classifyShellIntent(call)

	case "propose_patch":
		return IntentWriteCode

	case "memory_store", "memory_recall":
		return IntentOtherAction
	}
	return IntentOtherAction
}

func classifyShellIntent(call sdk.ToolCall) string {
	cmd := call.StringArg("command")
	if cmd == "" {
		cmd = call.StringArg("cmd")
	}
	cmd = strings.ToLower(strings.TrimSpace(cmd))

	switch {
	case strings.HasPrefix(cmd, "find ") || strings.HasPrefix(cmd, "locate "):
		return IntentFindData
	case strings.HasPrefix(cmd, "mkdir") || strings.HasPrefix(cmd, "touch "):
		return IntentCreateStructure
	case strings.HasPrefix(cmd, "ls") || strings.HasPrefix(cmd, "dir") || strings.HasPrefix(cmd, "tree"):
		return IntentExploreDirectory
	case strings.Contains(cmd, "go test") || strings.Contains(cmd, "pytest") ||
		strings.Contains(cmd, "npm test") || strings.Contains(cmd, "unittest"):
		return IntentRunTests
	case strings.HasPrefix(cmd, "grep ") || strings.HasPrefix(cmd, "rg "):
		return IntentSearchCode
	case strings.HasPrefix(cmd, "cat ") || strings.HasPrefix(cmd, "head ") || strings.HasPrefix(cmd, "tail "):
		return IntentInspectFile
	case strings.HasPrefix(cmd, "curl ") || strings.HasPrefix(cmd, "wget "):
		return IntentNetworkFetch
	}
	return IntentOtherAction
}
