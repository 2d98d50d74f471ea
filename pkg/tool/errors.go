// Package tool implements the tool surface of the agent: the handler
// contract, the name→handler registry handed to the gateway, the safety rule
// engine, and the executor that validates arguments, enforces timeouts, and
// normalizes every failure into the standard error envelope.
package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/workspace"
)

// Error codes surfaced in tool error envelopes.
const (
	CodeRuleBlocked     = "RULE_BLOCKED"
	CodeValidationError = "VALIDATION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeCancelled       = "CANCELLED"
	CodeExecutionError  = "EXECUTION_ERROR"
	CodeToolNotFound    = "TOOL_NOT_FOUND"
)

// FormatError renders the error envelope surfaced to the model:
//
//	ERROR [<CODE>]
//	Blocked by: <taxonomy>
//	Message: <text>
//	Context: { … }
func FormatError(code string, blockedBy workspace.BlockedBy, message string, context map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ERROR [%s]\n", code)
	fmt.Fprintf(&b, "Blocked by: %s\n", blockedBy)
	fmt.Fprintf(&b, "Message: %s", message)
	if len(context) > 0 {
		if data, err := json.Marshal(context); err == nil {
			fmt.Fprintf(&b, "\nContext: %s", data)
		}
	}
	return b.String()
}

// ErrorResult builds a failed tool result carrying an envelope.
func ErrorResult(callID, code string, blockedBy workspace.BlockedBy, message string, context map[string]any) *sdk.ToolResult {
	return &sdk.ToolResult{
		ToolCallID: callID,
		Error:      FormatError(code, blockedBy, message, context),
		Success:    false,
	}
}

// ResultFromError converts an arbitrary error into a failed result, mapping
// workspace violations onto their taxonomy tags.
func ResultFromError(callID string, err error) *sdk.ToolResult {
	var wsErr *workspace.Error
	if errors.As(err, &wsErr) {
		return ErrorResult(callID, wsErr.Code, wsErr.BlockedBy, wsErr.Message, nil)
	}
	return ErrorResult(callID, CodeExecutionError, workspace.BlockedByRuntime, err.Error(), nil)
}
