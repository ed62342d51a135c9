package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CrossEncoderConfig configures a cross-encoder served over HTTP using the
// text-embeddings-inference /rerank wire format.
type CrossEncoderConfig struct {
	BaseURL string        // default: http://localhost:8081
	Model   string        // informational; the server decides which model runs
	Timeout time.Duration // default: 15s
}

// CrossEncoderClient implements Reranker against a /rerank endpoint.
type CrossEncoderClient struct {
	cfg            CrossEncoderConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewCrossEncoderClient creates a cross-encoder reranker client.
func NewCrossEncoderClient(cfg CrossEncoderConfig) *CrossEncoderClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8081"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &CrossEncoderClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreaker("reranker"),
	}
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores every doc against query. Scores are index-aligned with docs.
func (c *CrossEncoderClient) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.rerank(ctx, query, docs)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("reranker circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]float64), nil
}

// CircuitBreakers reports the breaker guarding the rerank endpoint.
func (c *CrossEncoderClient) CircuitBreakers() []BreakerStatus {
	return []BreakerStatus{c.circuitBreaker.Status()}
}

func (c *CrossEncoderClient) rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var results []rerankResult
	reqBody := rerankRequest{Query: query, Texts: docs, Truncate: true}
	if err := postJSON(ctx, c.client, "reranker", c.cfg.BaseURL+"/rerank", nil, reqBody, &results); err != nil {
		return nil, err
	}

	if len(results) != len(docs) {
		return nil, fmt.Errorf("reranker returned %d scores for %d documents", len(results), len(docs))
	}
	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(docs) || seen[r.Index] {
			return nil, fmt.Errorf("reranker returned invalid index %d", r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	return scores, nil
}

// Compile-time assertion.
var _ Reranker = (*CrossEncoderClient)(nil)
var _ BreakerReporter = (*CrossEncoderClient)(nil)

// DistanceReranker is the fallback used when no cross-encoder is configured.
// It scores nothing and keeps the similarity order, so stage two reduces to
// taking the first N candidates.
type DistanceReranker struct{}

// Rerank returns equal scores for every doc.
func (DistanceReranker) Rerank(_ context.Context, _ string, docs []string) ([]float64, error) {
	return make([]float64, len(docs)), nil
}

// Compile-time assertion.
var _ Reranker = DistanceReranker{}
