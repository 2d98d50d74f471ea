package preflight

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Thresholds for the two breaker accountings.
const (
	// FingerprintThreshold trips the breaker for an exact (name, args)
	// fingerprint.
	FingerprintThreshold = 2
	// IntentThreshold exhausts an intent once its accrued failure weight
	// reaches it.
	IntentThreshold = 3
	// errorClassThreshold trips once this many same-class deterministic
	// errors have been recorded, across different arguments. The per-class
	// counts are cumulative for the conversation; successes do not reset them.
	errorClassThreshold = 3
)

// Error classes recognized by the deterministic-error detector.
const (
	ErrClassPathNotFound     = "PATH_NOT_FOUND"
	ErrClassPermissionDenied = "PERMISSION_DENIED"
	ErrClassValidation       = "VALIDATION_ERROR"
	ErrClassSyntax           = "SYNTAX_ERROR"
	ErrClassOther            = "OTHER"
)

// ClassifyError buckets an error text into a class. Any class other than
// OTHER is deterministic: its recurrence is predictable from the arguments
// alone, so it is weighted double in the intent breaker.
func ClassifyError(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "not found") ||
		strings.Contains(lower, "no such file") ||
		strings.Contains(lower, "does not exist"):
		return ErrClassPathNotFound
	case strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied"):
		return ErrClassPermissionDenied
	case strings.Contains(lower, "invalid arguments") ||
		strings.Contains(lower, "validation"):
		return ErrClassValidation
	case strings.Contains(lower, "syntax error"):
		return ErrClassSyntax
	}
	return ErrClassOther
}

// IsDeterministicError reports whether an error class is deterministic.
func IsDeterministicError(errText string) bool {
	return ClassifyError(errText) != ErrClassOther
}

// Fingerprint hashes a proposal's name plus canonical arguments. Identical
// re-proposals collapse to the same fingerprint.
func Fingerprint(call sdk.ToolCall) string {
	sum := sha256.Sum256([]byte(call.Name + "|" + call.ArgumentsJSON()))
	return hex.EncodeToString(sum[:8])
}

type fingerprintState struct {
	count     int
	lastError string
}

// IntentState aggregates failures for one intent.
type IntentState struct {
	FailureCount    int
	LastFailureStep int
	OverrideUsed    bool
}

// CircuitBreakerState tracks failure history for a conversation: exact-repeat
// loops via fingerprints, same-thing-ten-ways loops via intents, and paths
// known to be absent.
type CircuitBreakerState struct {
	fingerprints map[string]*fingerprintState
	intents      map[string]*IntentState
	errorClasses map[string]int
	badPaths     map[string]bool

	// CurrentStep is advanced by the loop for recency accounting.
	CurrentStep int
}

// NewCircuitBreakerState creates an empty breaker.
func NewCircuitBreakerState() *CircuitBreakerState {
	return &CircuitBreakerState{
		fingerprints: make(map[string]*fingerprintState),
		intents:      make(map[string]*IntentState),
		errorClasses: make(map[string]int),
		badPaths:     make(map[string]bool),
	}
}

// RecordFailure accounts one failed call under both accountings and returns
// the fingerprint failure count.
func (cb *CircuitBreakerState) RecordFailure(call sdk.ToolCall, errText string) int {
	fp := Fingerprint(call)
	state, ok := cb.fingerprints[fp]
	if !ok {
		state = &fingerprintState{}
		cb.fingerprints[fp] = state
	}
	state.count++
	state.lastError = errText

	class := ClassifyError(errText)
	cb.errorClasses[class]++

	intent := ClassifyIntent(call)
	is, ok := cb.intents[intent]
	if !ok {
		is = &IntentState{}
		cb.intents[intent] = is
	}
	weight := 1
	if class != ErrClassOther {
		weight = 2
	}
	is.FailureCount += weight
	is.LastFailureStep = cb.CurrentStep

	if class == ErrClassPathNotFound {
		if path := call.StringArg("path"); path != "" {
			cb.badPaths[path] = true
		}
	}
	return state.count
}

// RecordSuccess resets the fingerprint counter for the call and its intent's
// failure weight to zero, and forgets the path if it was marked bad.
func (cb *CircuitBreakerState) RecordSuccess(call sdk.ToolCall) {
	delete(cb.fingerprints, Fingerprint(call))
	if path := call.StringArg("path"); path != "" {
		delete(cb.badPaths, path)
	}
	if is, ok := cb.intents[ClassifyIntent(call)]; ok && is.FailureCount > 0 {
		is.FailureCount = 0
	}
}

// IsTripped reports whether the fingerprint breaker blocks the call, either
// from exact repeats or from the accumulated count of same-class
// deterministic errors.
func (cb *CircuitBreakerState) IsTripped(call sdk.ToolCall) (bool, string) {
	if state, ok := cb.fingerprints[Fingerprint(call)]; ok && state.count >= FingerprintThreshold {
		return true, fmt.Sprintf("this exact call failed %d times (last error: %s)", state.count, state.lastError)
	}
	for _, class := range []string{ErrClassPathNotFound, ErrClassPermissionDenied} {
		if cb.errorClasses[class] >= errorClassThreshold {
			return true, fmt.Sprintf("%d %s errors across different calls", cb.errorClasses[class], class)
		}
	}
	return false, ""
}

// IsIntentExhausted reports whether the call's intent has accrued enough
// failure weight to be exhausted.
func (cb *CircuitBreakerState) IsIntentExhausted(call sdk.ToolCall) (bool, string, string) {
	intent := ClassifyIntent(call)
	is, ok := cb.intents[intent]
	if !ok || is.FailureCount < IntentThreshold {
		return false, "", intent
	}
	reason := fmt.Sprintf("intent %q failed with accumulated weight %d (threshold %d)",
		intent, is.FailureCount, IntentThreshold)
	return true, reason, intent
}

// IntentStateFor returns the tracked state for an intent, or nil.
func (cb *CircuitBreakerState) IntentStateFor(intent string) *IntentState {
	return cb.intents[intent]
}

// UseOverride consumes the one-shot OVERRIDE for an intent: the failure
// weight resets to zero and the override is recorded as used. Returns false
// when the override was already spent.
func (cb *CircuitBreakerState) UseOverride(intent string) bool {
	is, ok := cb.intents[intent]
	if !ok {
		is = &IntentState{}
		cb.intents[intent] = is
	}
	if is.OverrideUsed {
		return false
	}
	is.OverrideUsed = true
	is.FailureCount = 0
	return true
}

// IsBadPath reports whether a path previously failed with not-found.
func (cb *CircuitBreakerState) IsBadPath(path string) bool {
	return cb.badPaths[path]
}

// RecoveryAction names a rung on the recovery ladder.
type RecoveryAction string

const (
	ActionRetryOnce      RecoveryAction = "retry_once"
	ActionSwitchTool     RecoveryAction = "switch_tool"
	ActionSwitchApproach RecoveryAction = "switch_approach"
	ActionStopAndPlan    RecoveryAction = "stop_and_plan"
)

// GetRecoveryAction maps a failure count onto the recovery ladder: retry,
// switch tool, switch approach, then stop and plan.
func GetRecoveryAction(toolName string, failureCount int, errText string) (RecoveryAction, string) {
	switch {
	case failureCount <= 1:
		return ActionRetryOnce, fmt.Sprintf("retry %s once; transient errors happen", toolName)
	case failureCount == 2:
		return ActionSwitchTool, fmt.Sprintf("%s keeps failing; try a different tool for the same goal", toolName)
	case failureCount < 5:
		return ActionSwitchApproach, "the current approach is not working; attack the problem differently"
	default:
		return ActionStopAndPlan, "too many failures; stop acting and produce a plan before the next action"
	}
}
