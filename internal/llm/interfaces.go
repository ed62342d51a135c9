package llm

import "context"

// CompletionOptions tunes a single completion request.
type CompletionOptions struct {
	// Temperature is passed through to the provider (0 = deterministic).
	Temperature float64

	// MaxTokens caps the response length; 0 leaves the provider default.
	MaxTokens int

	// JSON asks the provider to constrain output to a JSON object when it
	// supports structured output. Callers must still tolerate malformed output.
	JSON bool
}

// TextGenerator is the interface for LLM text completion.
// All prompts use single-string completion style (not multi-turn chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Every returned vector has exactly Dimension() elements.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	GetModel() string
}

// Reranker scores (query, document) pairs jointly. The returned slice is
// index-aligned with docs; higher means more relevant.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]float64, error)
}
