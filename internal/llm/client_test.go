package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/investigraph/internal/config"
)

func TestOllamaClient_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)

		resp := embedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 0, 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "all-minilm", Dimension: 3})
	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0, 1}, vectors[1])
}

func TestOllamaClient_EmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2}}})
	}))
	defer srv.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "all-minilm", Dimension: 384})
	_, err := client.Embed(context.Background(), "a")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOllamaClient_CompleteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(generateResponse{Response: `{"terms":["Acme"]}`, Done: true})
	}))
	defer srv.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: srv.URL})
	out, err := client.Complete(context.Background(), "terms?", CompletionOptions{JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"terms":["Acme"]}`, out)
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"nodes\":[]}"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	out, err := client.Complete(context.Background(), "extract", CompletionOptions{JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"nodes":[]}`, out)
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Name: "groq"})
	_, err := client.Complete(context.Background(), "x", CompletionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "groq returned status 429")
}

func TestOpenAIEmbeddingClient_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.Dimensions)

		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{BaseURL: srv.URL, Dimension: 2})
	vectors, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestAnthropicClient_PrefillsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))

		var req anthropicMessagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "assistant", req.Messages[1].Role)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"\"terms\":[]}"}]}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "key", BaseURL: srv.URL})
	out, err := client.Complete(context.Background(), "q", CompletionOptions{JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"terms":[]}`, out)
}

func TestCrossEncoderClient_Rerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		_, _ = w.Write([]byte(`[{"index":2,"score":0.9},{"index":0,"score":0.5},{"index":1,"score":0.1}]`))
	}))
	defer srv.Close()

	client := NewCrossEncoderClient(CrossEncoderConfig{BaseURL: srv.URL})
	scores, err := client.Rerank(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.1, 0.9}, scores)
}

func TestCrossEncoderClient_RejectsDuplicateIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"index":0,"score":0.9},{"index":0,"score":0.5}]`))
	}))
	defer srv.Close()

	client := NewCrossEncoderClient(CrossEncoderConfig{BaseURL: srv.URL})
	_, err := client.Rerank(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err)
}

func TestDistanceReranker(t *testing.T) {
	scores, err := DistanceReranker{}.Rerank(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, scores)
}

type countingEmbedder struct {
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = c.Embed(ctx, t)
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int   { return 1 }
func (c *countingEmbedder) GetModel() string { return "counting" }

func TestCachedEmbedder_HitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	v1, err := cached.Embed(ctx, "who runs acme?")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "who runs acme?")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, cached.Len())

	_, err = cached.EmbedBatch(ctx, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load(), "batch calls bypass the cache")
}

func TestFactory(t *testing.T) {
	gen, err := NewTextGenerator(config.LLMConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, gen)

	_, err = NewTextGenerator(config.LLMConfig{Provider: "groq"})
	assert.Error(t, err, "groq without a key")

	gen, err = NewTextGenerator(config.LLMConfig{Provider: "groq", GroqAPIKey: "gsk", GroqModel: "llama"})
	require.NoError(t, err)
	assert.Equal(t, "llama", gen.GetModel())

	_, err = NewTextGenerator(config.LLMConfig{Provider: "mystery"})
	assert.Error(t, err)

	emb, err := NewEmbeddingGenerator(config.EmbeddingConfig{Provider: "ollama", Model: "all-minilm", Dimension: 384, CacheSize: 4})
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, emb)
	assert.Equal(t, 384, emb.Dimension())

	emb, err = NewEmbeddingGenerator(config.EmbeddingConfig{Provider: "openai", Dimension: 384})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEmbeddingClient{}, emb)

	assert.IsType(t, DistanceReranker{}, NewReranker(config.RerankerConfig{}))
	assert.IsType(t, &CrossEncoderClient{}, NewReranker(config.RerankerConfig{Enabled: true}))
}

func TestBreakerStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cached, err := NewCachedEmbedder(NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "all-minilm", Dimension: 3}), 4)
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "who runs acme?")
	require.Error(t, err)

	var nilClient TextGenerator
	statuses := BreakerStatuses(nilClient, cached, DistanceReranker{}, NewCrossEncoderClient(CrossEncoderConfig{}))
	require.Len(t, statuses, 2)

	assert.Equal(t, "ollama:all-minilm", statuses[0].Name)
	assert.Equal(t, "closed", statuses[0].State)
	assert.Equal(t, uint64(1), statuses[0].TotalFailures)
	assert.Equal(t, uint32(1), statuses[0].ConsecutiveFailures)

	assert.Equal(t, "reranker", statuses[1].Name)
	assert.Zero(t, statuses[1].TotalRequests)
}
