package llm

import (
	"fmt"

	"github.com/scrypster/investigraph/internal/config"
)

// NewTextGenerator creates the completion client selected by cfg.Provider.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.Timeout,
		}), nil
	case "groq":
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("groq provider requires an API key")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.GroqAPIKey,
			Model:   cfg.GroqModel,
			BaseURL: "https://api.groq.com/openai",
			Timeout: cfg.Timeout,
			Name:    "groq",
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.Timeout,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the embedding client selected by cfg.Provider,
// wrapped in a query cache when cfg.CacheSize is positive.
func NewEmbeddingGenerator(cfg config.EmbeddingConfig) (EmbeddingGenerator, error) {
	var gen EmbeddingGenerator
	switch cfg.Provider {
	case "openai":
		gen = NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.URL,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case "ollama", "":
		gen = NewOllamaClient(OllamaConfig{
			BaseURL:   cfg.URL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}

	if cfg.CacheSize <= 0 {
		return gen, nil
	}
	return NewCachedEmbedder(gen, cfg.CacheSize)
}

// NewReranker returns a cross-encoder client when enabled, otherwise the
// order-preserving DistanceReranker.
func NewReranker(cfg config.RerankerConfig) Reranker {
	if !cfg.Enabled {
		return DistanceReranker{}
	}
	return NewCrossEncoderClient(CrossEncoderConfig{
		BaseURL: cfg.URL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
}
