package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wyrmspire/agentcore/internal/logger"
	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// OpenAI talks to any OpenAI-compatible chat-completions endpoint (OpenAI
// itself, LM Studio, vLLM, Ollama's compat mode). It supports native tool
// calling and embeddings.
type OpenAI struct {
	client *openai.Client
	model  string
	opts   Options
}

// OpenAIConfig configures the OpenAI-compatible gateway.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty = api.openai.com
	Model   string
	Options Options
}

// NewOpenAI creates an OpenAI-compatible gateway.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	opts := cfg.Options
	if opts.MaxTokens == 0 {
		opts = DefaultOptions()
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		opts:   opts,
	}
}

// Model returns the configured model name.
func (g *OpenAI) Model() string { return g.model }

// Complete sends the conversation and tool definitions to the backend and
// normalizes the response.
func (g *OpenAI) Complete(ctx context.Context, messages []sdk.Message, tools []sdk.ToolDefinition) (*sdk.Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(g.opts.Temperature),
		MaxTokens:   g.opts.MaxTokens,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	choice := resp.Choices[0]
	out := &sdk.Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				logger.GetLogger().Warn().
					Err(err).
					Str("tool", tc.Function.Name).
					Msg("Tool call arguments are not valid JSON")
				continue
			}
		}
		out.ToolCalls = append(out.ToolCalls, sdk.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func toOpenAIMessages(messages []sdk.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.ArgumentsJSON(),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

// OpenAIEmbedder generates embeddings through the same OpenAI-compatible
// endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder for the given model.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed generates embeddings for a batch of texts.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// EmbedSingle generates an embedding for one text.
func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vecs[0], nil
}
