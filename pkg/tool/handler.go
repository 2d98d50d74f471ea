package tool

import (
	"context"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Handler is the contract every tool implements. Parameters must be a JSON
// schema whose root type is "object"; Execute receives arguments already
// validated against it. Handlers return data, never reason: policy and
// budgets live above them.
type Handler interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error)
}

// Definition converts a handler into the shape handed to the gateway.
func Definition(h Handler) sdk.ToolDefinition {
	return sdk.ToolDefinition{
		Name:        h.Name(),
		Description: h.Description(),
		Parameters:  h.Parameters(),
	}
}

// ObjectSchema builds a root-object JSON schema from property definitions.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProp builds a string property schema.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// IntProp builds an integer property schema.
func IntProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// StringArrayProp builds a string-array property schema.
func StringArrayProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

// Func adapts plain functions into handlers.
type Func struct {
	ToolName        string
	ToolDescription string
	ToolParameters  map[string]any
	Fn              func(ctx context.Context, args map[string]any) (*sdk.ToolResult, error)
}

// Name implements Handler.
func (f *Func) Name() string { return f.ToolName }

// Description implements Handler.
func (f *Func) Description() string { return f.ToolDescription }

// Parameters implements Handler.
func (f *Func) Parameters() map[string]any { return f.ToolParameters }

// Execute implements Handler.
func (f *Func) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	return f.Fn(ctx, args)
}

// OK builds a successful tool result.
func OK(output string) *sdk.ToolResult {
	return &sdk.ToolResult{Output: output, Success: true}
}
