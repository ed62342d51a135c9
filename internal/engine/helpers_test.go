package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/investigraph/internal/llm"
	"github.com/scrypster/investigraph/internal/storage/sqlite"
)

const testDim = 8

var errServiceDown = errors.New("service unavailable")

// fastRetry keeps retry tests quick while exercising the full attempt count.
func fastRetry(attempts int) llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

// scriptedLLM answers each prompt with a function of the prompt.
type scriptedLLM struct {
	respond func(prompt string, opts llm.CompletionOptions) (string, error)
	calls   atomic.Int32
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	s.calls.Add(1)
	return s.respond(prompt, opts)
}

func (s *scriptedLLM) GetModel() string { return "scripted" }

func isExtractionPrompt(prompt string) bool {
	return strings.Contains(prompt, "building a knowledge graph")
}

func isTermPrompt(prompt string) bool {
	return strings.Contains(prompt, "Extract 3-5 key terms")
}

const acmeExtraction = "```json\n" + `{
  "nodes": [{"id": "Alice", "type": "PERSON"}, {"id": "Acme", "type": "ORG"}, {"id": "Globex", "type": "ORG"}],
  "edges": [
    {"source": "Alice", "target": "Acme", "relation": "CEO_OF"},
    {"source": "Acme", "target": "Globex", "relation": "COMPETES_WITH"}
  ]
}` + "\n```"

// acmeLLM plays every role for the Alice/Acme/Globex filing.
func acmeLLM() *scriptedLLM {
	return &scriptedLLM{respond: func(prompt string, _ llm.CompletionOptions) (string, error) {
		switch {
		case isExtractionPrompt(prompt):
			return acmeExtraction, nil
		case isTermPrompt(prompt):
			return `{"terms": ["Acme"]}`, nil
		default:
			return "Alice runs Acme.", nil
		}
	}}
}

// letterEmbedder maps text to letter-frequency vectors, so texts sharing
// words land close together.
type letterEmbedder struct {
	mu      sync.Mutex
	batches int
	err     error
	block   chan struct{} // when set, EmbedBatch waits on it
	entered chan struct{} // when set, EmbedBatch signals on entry
}

func letterVector(text string) []float32 {
	v := make([]float32, testDim)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[(r-'a')%testDim]++
		}
	}
	return v
}

func (l *letterEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if l.err != nil {
		return nil, l.err
	}
	return letterVector(text), nil
}

func (l *letterEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	l.mu.Lock()
	l.batches++
	l.mu.Unlock()

	if l.entered != nil {
		l.entered <- struct{}{}
	}
	if l.block != nil {
		select {
		case <-l.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letterVector(t)
	}
	return out, nil
}

func (l *letterEmbedder) Dimension() int   { return testDim }
func (l *letterEmbedder) GetModel() string { return "letters" }

// stubReranker returns fixed scores, or an error.
type stubReranker struct {
	scores func(docs []string) []float64
	err    error
	calls  atomic.Int32
}

func (s *stubReranker) Rerank(_ context.Context, _ string, docs []string) ([]float64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.scores(docs), nil
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(":memory:", testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
