package preflight

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// OverrideToken is the literal the model must emit (with justification) to
// consume an intent's one-shot breaker reset.
const OverrideToken = "OVERRIDE:"

// Capability describes what file types a tool handles and what to use
// instead when it does not.
type Capability struct {
	SupportedTypes          []string
	UnsupportedAlternatives map[string]string
	BlockedAlternatives     map[string]string
}

// ToolCapabilities is the static (tool, extension) matrix preflight consults
// to suggest alternatives.
var ToolCapabilities = map[string]Capability{
	"data_view": {
		SupportedTypes: []string{".csv", ".tsv", ".parquet", ".xlsx"},
		UnsupportedAlternatives: map[string]string{
			".json": "use read_file to view JSON as text",
			".xml":  "use read_file to view XML as text",
		},
	},
	"read_file": {
		BlockedAlternatives: map[string]string{
			".zip": "binary archive; unzip it first via a shell command",
			".exe": "binary file; inspect metadata instead of reading it",
			".png": "binary image; read_file cannot render it",
		},
	},
	"chunk_search": {
		SupportedTypes: []string{".go", ".py", ".md", ".txt", ".json", ".yaml", ".yml"},
	},
}

// highImpactExtensions mark files whose writes deserve a verification nudge.
var highImpactExtensions = map[string]bool{
	".yaml": true, ".yml": true, ".json": true, ".toml": true,
	".sql": true, ".tf": true,
}

// Result is the outcome of one preflight pass over a batch.
type Result struct {
	Passed         bool
	Failures       []string
	Warnings       []string
	ForcedPlanMode bool
	// Rewrites maps call ids to SAFE path rewrites for the executor to
	// apply. Preflight never mutates the proposals themselves.
	Rewrites map[string]*PathRewrite
}

// Checker runs pre-execution validation over proposed tool batches.
type Checker struct {
	Breaker  *CircuitBreakerState
	resolver *PathResolver
}

// NewChecker creates a preflight checker with a fresh circuit breaker.
func NewChecker() *Checker {
	return &Checker{
		Breaker:  NewCircuitBreakerState(),
		resolver: NewPathResolver(),
	}
}

// Check validates a batch of proposals against the current mode and breaker
// state. modelOutput is the model's text for the same turn, scanned for the
// OVERRIDE token.
func (c *Checker) Check(calls []sdk.ToolCall, mode sdk.Mode, modelOutput string) Result {
	result := Result{Passed: true, Rewrites: make(map[string]*PathRewrite)}

	if mode == sdk.ModePlanner {
		result.Passed = false
		for range calls {
			result.Failures = append(result.Failures, "Planner mode is active; tools disabled.")
		}
		return result
	}

	hasOverride := strings.Contains(modelOutput, OverrideToken)

	for _, call := range calls {
		intent := ClassifyIntent(call)

		if exhausted, reason, _ := c.Breaker.IsIntentExhausted(call); exhausted {
			if hasOverride && c.Breaker.UseOverride(intent) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("OVERRIDE accepted for intent %q; breaker reset (single use)", intent))
				logger.GetLogger().Info().Str("intent", intent).Msg("OVERRIDE consumed")
			} else {
				result.Passed = false
				result.ForcedPlanMode = true
				result.Failures = append(result.Failures,
					fmt.Sprintf("INTENT EXHAUSTED: %s. Stop and plan a different approach.", reason))
				continue
			}
		}

		if tripped, reason := c.Breaker.IsTripped(call); tripped {
			result.Passed = false
			result.Failures = append(result.Failures,
				fmt.Sprintf("CIRCUIT BREAKER: %s — do not retry the same call", reason))
			continue
		}

		if path := call.StringArg("path"); path != "" {
			if c.Breaker.IsBadPath(path) {
				result.Passed = false
				result.Failures = append(result.Failures,
					fmt.Sprintf("PATH GATE: %q previously failed with not-found; list the parent directory to find the real path", path))
				continue
			}
			if analysis := c.resolver.AnalyzePath(path, call.Name); analysis.NeedsRewrite {
				if analysis.Rewrite.Safety == RewriteSafe {
					result.Rewrites[call.ID] = analysis.Rewrite
				}
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("path %q normalized to %q (%s)", path, analysis.NormalizedPath, analysis.Rewrite.Reason))
			}
		}

		result.Warnings = append(result.Warnings, c.capabilityWarnings(call)...)

		if state := c.Breaker.IntentStateFor(intent); state != nil && state.FailureCount > 0 {
			action, desc := GetRecoveryAction(call.Name, state.FailureCount, "")
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("recovery ladder [%s]: %s", action, desc))
		}
	}

	// High-impact writes in the batch get a verification nudge alongside the
	// capability warnings.
	result.Warnings = append(result.Warnings, c.CheckVerificationNeeded(calls, true)...)

	return result
}

// capabilityWarnings consults the tool-capability matrix for the call's path
// extension.
func (c *Checker) capabilityWarnings(call sdk.ToolCall) []string {
	caps, ok := ToolCapabilities[call.Name]
	if !ok {
		return nil
	}
	path := call.StringArg("path")
	if path == "" {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil
	}

	if alt, ok := caps.BlockedAlternatives[ext]; ok {
		return []string{fmt.Sprintf("%s cannot handle %s files; alternative: %s", call.Name, ext, alt)}
	}
	if alt, ok := caps.UnsupportedAlternatives[ext]; ok {
		return []string{fmt.Sprintf("%s is a poor fit for %s files; alternative: %s", call.Name, ext, alt)}
	}
	if len(caps.SupportedTypes) > 0 {
		for _, s := range caps.SupportedTypes {
			if s == ext {
				return nil
			}
		}
		return []string{fmt.Sprintf("%s has no declared support for %s files; results may be unusable", call.Name, ext)}
	}
	return nil
}

// CheckVerificationNeeded suggests follow-up verification for writes. With
// highImpactOnly set, only configuration-like files produce suggestions.
func (c *Checker) CheckVerificationNeeded(calls []sdk.ToolCall, highImpactOnly bool) []string {
	var suggestions []string
	for _, call := range calls {
		switch call.Name {
		case "write_file", "edit_file", "create_file":
		default:
			continue
		}
		path := call.StringArg("path")
		ext := strings.ToLower(filepath.Ext(path))
		if highImpactOnly && !highImpactExtensions[ext] {
			continue
		}
		suggestions = append(suggestions,
			fmt.Sprintf("verify %q after writing: read it back or run the relevant check", path))
	}
	return suggestions
}
