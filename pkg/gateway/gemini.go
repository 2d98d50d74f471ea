package gateway

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Gemini drives Google's Gemini models. The backend has no OpenAI-style tool
// protocol here; tool proposals are carried over the structured-JSON fallback
// (fenced ```tool_call``` blocks) and parsed out of the text.
type Gemini struct {
	client *genai.Client
	model  string
	opts   Options
}

// GeminiConfig configures the Gemini gateway.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Options Options
}

// NewGemini creates a Gemini gateway.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	opts := cfg.Options
	if opts.MaxTokens == 0 {
		opts = DefaultOptions()
	}
	return &Gemini{client: client, model: model, opts: opts}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Complete flattens the conversation into a transcript, requests a
// completion, and extracts any structured tool-call blocks from the reply.
func (g *Gemini) Complete(ctx context.Context, messages []sdk.Message, tools []sdk.ToolDefinition) (*sdk.Response, error) {
	prompt := renderTranscript(messages, tools)

	temp := float32(g.opts.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(g.opts.MaxTokens),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	calls := ParseStructuredToolCalls(text)
	finish := "stop"
	if len(calls) > 0 {
		finish = "tool_calls"
		text = StripToolCallBlocks(text)
	}
	return &sdk.Response{
		Content:      text,
		ToolCalls:    calls,
		FinishReason: finish,
		Model:        g.model,
	}, nil
}

// renderTranscript turns the message history and tool definitions into a
// single prompt for backends without native multi-turn tool calling.
func renderTranscript(messages []sdk.Message, tools []sdk.ToolDefinition) string {
	var b strings.Builder
	if len(tools) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
		b.WriteString("\nTo call a tool, emit a fenced block:\n```tool_call\n{\"name\": \"<tool>\", \"arguments\": {…}}\n```\n\n")
	}
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}

// GeminiEmbedder generates embeddings with a Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates a Gemini embedder.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// Model returns the embedding model name.
func (e *GeminiEmbedder) Model() string { return e.model }

// Embed generates embeddings for a batch of texts.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// EmbedSingle generates an embedding for one text.
func (e *GeminiEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vecs[0], nil
}
