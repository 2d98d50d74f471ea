package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Mock is a scripted gateway for tests and smoke runs. Responses queued via
// Script are returned in order; once the script is exhausted (or when none
// was provided) the mock falls back to parsing a "/tool <name> <json>"
// command from the last message, else a canned text reply.
type Mock struct {
	mu       sync.Mutex
	model    string
	script   []*sdk.Response
	cursor   int
	Requests [][]sdk.Message // every message history received, for assertions
}

// NewMock creates a mock gateway.
func NewMock() *Mock {
	return &Mock{model: "mock-model"}
}

// Script queues scripted responses.
func (m *Mock) Script(responses ...*sdk.Response) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
	return m
}

// Model returns the mock model name.
func (m *Mock) Model() string { return m.model }

// Calls returns how many completions were requested.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Complete returns the next scripted response, or a parsed /tool command, or
// a canned reply.
func (m *Mock) Complete(ctx context.Context, messages []sdk.Message, tools []sdk.ToolDefinition) (*sdk.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]sdk.Message, len(messages))
	copy(snapshot, messages)
	m.Requests = append(m.Requests, snapshot)

	if m.cursor < len(m.script) {
		resp := m.script[m.cursor]
		m.cursor++
		return resp, nil
	}

	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}

	if strings.HasPrefix(strings.TrimSpace(last), "/tool ") {
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(last), "/tool "))
		name, argsJSON, _ := strings.Cut(rest, " ")
		args := map[string]any{}
		if argsJSON != "" {
			if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
				return &sdk.Response{
					Content:      fmt.Sprintf("error parsing tool command: %v", err),
					FinishReason: "stop",
					Model:        m.model,
				}, nil
			}
		}
		return &sdk.Response{
			Content:      "Executing requested tool.",
			ToolCalls:    []sdk.ToolCall{{ID: "mock_call_1", Name: name, Arguments: args}},
			FinishReason: "tool_calls",
			Model:        m.model,
		}, nil
	}

	return &sdk.Response{
		Content:      "MOCK SUCCESS: I received your message. Use /tool <name> <json> to force a tool call.",
		FinishReason: "stop",
		Model:        m.model,
	}, nil
}

// MockEmbedder produces deterministic pseudo-embeddings derived from a text
// hash. Good enough to exercise vector-store flows in tests.
type MockEmbedder struct {
	Dim int
}

// NewMockEmbedder creates a mock embedder with the given dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &MockEmbedder{Dim: dim}
}

// Model returns the mock embedder's model name.
func (e *MockEmbedder) Model() string { return "mock-embedder" }

// EmbedSingle returns a deterministic vector for text.
func (e *MockEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, e.Dim)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(sum[(i*4)%28:])
		vec[i] = float32(bits%1000)/1000.0 - 0.5
	}
	return vec, nil
}

// Embed returns deterministic vectors for a batch of texts.
func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
