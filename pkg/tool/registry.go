package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Registry maps tool names to handlers and keeps each handler's compiled
// parameter schema. Names are unique; duplicate registration is a
// configuration error.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	schemas  map[string]*jsonschema.Schema
	order    []string // registration order, drives definition listing
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register adds a handler, compiling and sanity-checking its schema. The
// schema root must be an object.
func (r *Registry) Register(h Handler) error {
	name := h.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	params := h.Parameters()
	if t, _ := params["type"].(string); t != "object" {
		return fmt.Errorf("tool %q: parameter schema root type must be \"object\"", name)
	}

	schema, err := compileSchema(name, params)
	if err != nil {
		return fmt.Errorf("tool %q: invalid parameter schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.handlers[name] = h
	r.schemas[name] = schema
	r.order = append(r.order, name)
	return nil
}

// Unregister removes a handler by name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; !exists {
		return fmt.Errorf("tool %q not found", name)
	}
	delete(r.handlers, name)
	delete(r.schemas, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get retrieves a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Schema returns the compiled parameter schema for a tool.
func (r *Registry) Schema(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Definitions lists tool definitions in registration order; this is what the
// loop hands to the gateway each turn.
func (r *Registry) Definitions() []sdk.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]sdk.ToolDefinition, len(r.order))
	for i, name := range r.order {
		defs[i] = Definition(r.handlers[name])
	}
	return defs
}

// compileSchema compiles a parameter schema document. The document is
// round-tripped through JSON so Go-typed values (e.g. []string) reach the
// compiler in wire shape.
func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	url := "tool://" + name + "/parameters.json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
