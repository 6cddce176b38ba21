package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI implements Embedder and Completer against any OpenAI-compatible API.
type OpenAI struct {
	client     openai.Client
	embedModel string
	chatModel  string
	dimensions int
	timeout    time.Duration
}

// OpenAIOption configures the OpenAI provider.
type OpenAIOption func(*OpenAI)

// WithEmbedModel sets the embedding model.
func WithEmbedModel(model string) OpenAIOption {
	return func(p *OpenAI) { p.embedModel = model }
}

// WithChatModel sets the completion model.
func WithChatModel(model string) OpenAIOption {
	return func(p *OpenAI) { p.chatModel = model }
}

// WithDimensions sets the embedding dimensionality requested from the API.
func WithDimensions(d int) OpenAIOption {
	return func(p *OpenAI) { p.dimensions = d }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(p *OpenAI) { p.timeout = d }
}

// NewOpenAI creates a provider. An empty baseURL uses the public OpenAI API;
// an empty apiKey falls back to the OPENAI_API_KEY environment variable.
func NewOpenAI(apiKey, baseURL string, opts ...OpenAIOption) *OpenAI {
	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	p := &OpenAI{
		client:     openai.NewClient(reqOpts...),
		embedModel: "text-embedding-3-small",
		chatModel:  openai.ChatModelGPT4oMini,
		dimensions: 1536,
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dimensions returns the configured embedding dimensionality.
func (p *OpenAI) Dimensions() int {
	return p.dimensions
}

// Embed returns the embedding vector for a single text.
func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one embedding vector per input text, in input order.
func (p *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(p.embedModel),
		Dimensions: openai.Int(int64(p.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Complete returns a single non-streaming completion.
func (p *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("completing prompt: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
