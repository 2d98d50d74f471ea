// Package gateway defines the model gateway boundary. The core treats the
// language model as an opaque request/response endpoint that yields text and
// optional tool-call proposals; everything behind this interface (providers,
// retries, escalation) is swappable.
package gateway

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Gateway is the completion endpoint the agent loop drives.
type Gateway interface {
	// Complete generates one response for the conversation. Tools may be nil
	// when the caller wants a text-only turn.
	Complete(ctx context.Context, messages []sdk.Message, tools []sdk.ToolDefinition) (*sdk.Response, error)

	// Model returns the active model name.
	Model() string
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Options carries provider-independent completion settings.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// DefaultOptions returns the default completion settings.
func DefaultOptions() Options {
	return Options{Temperature: 0.7, MaxTokens: 4096}
}

var toolCallBlockRe = regexp.MustCompile("(?s)```tool_call\\s*(\\{.*?\\})\\s*```")

// ParseStructuredToolCalls extracts tool-call proposals from fenced
// ```tool_call``` JSON blocks in model text. Backends without native
// function calling fall back to this structured-JSON protocol.
func ParseStructuredToolCalls(text string) []sdk.ToolCall {
	var calls []sdk.ToolCall
	for _, m := range toolCallBlockRe.FindAllStringSubmatch(text, -1) {
		var payload struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(m[1]), &payload); err != nil || payload.Name == "" {
			continue
		}
		if payload.Arguments == nil {
			payload.Arguments = make(map[string]any)
		}
		calls = append(calls, sdk.ToolCall{
			ID:        "call_" + uuid.NewString()[:8],
			Name:      payload.Name,
			Arguments: payload.Arguments,
		})
	}
	return calls
}

// StripToolCallBlocks removes fenced tool_call blocks from model text so the
// surrounding prose can stand alone as a think-step.
func StripToolCallBlocks(text string) string {
	return strings.TrimSpace(toolCallBlockRe.ReplaceAllString(text, ""))
}
