// Package provider defines the ports for the engine's model collaborators
// and an OpenAI-compatible implementation of both. Failures are returned as
// errors; callers map them to their documented fallbacks (zero vectors,
// empty model-pass contributions).
package provider

import "context"

// Embedder produces fixed-dimension embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Completer produces a single text completion for a prompt. Used only by the
// entity extractor's model-assisted pass.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
