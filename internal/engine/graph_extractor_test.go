package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/investigraph/internal/llm"
)

func TestGraphExtractor_Success(t *testing.T) {
	client := acmeLLM()
	ex := NewGraphExtractor(client, fastRetry(3))

	got := ex.Extract(context.Background(), "Alice is CEO of Acme. Acme competes with Globex.", "doc-1")

	require.Len(t, got.Nodes, 3)
	require.Len(t, got.Edges, 2)
	assert.Equal(t, "CEO_OF", got.Edges[0].Relation)
	assert.Equal(t, "doc-1", got.Edges[0].DocumentID)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestGraphExtractor_RetriesTransientFailures(t *testing.T) {
	var opts llm.CompletionOptions
	client := &scriptedLLM{}
	client.respond = func(_ string, o llm.CompletionOptions) (string, error) {
		opts = o
		switch client.calls.Load() {
		case 1:
			return "", errServiceDown
		case 2:
			return "I could not find any entities, sorry.", nil
		default:
			return acmeExtraction, nil
		}
	}
	ex := NewGraphExtractor(client, fastRetry(3))

	got := ex.Extract(context.Background(), "chunk", "doc-1")

	assert.Len(t, got.Edges, 2)
	assert.Equal(t, int32(3), client.calls.Load(), "unparseable output counts as a failed attempt")
	assert.True(t, opts.JSON)
	assert.InDelta(t, 0.2, opts.Temperature, 1e-9)
}

func TestGraphExtractor_ExhaustedReturnsEmpty(t *testing.T) {
	client := &scriptedLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "", errServiceDown
	}}
	ex := NewGraphExtractor(client, fastRetry(3))

	got := ex.Extract(context.Background(), "chunk", "doc-1")

	assert.True(t, got.IsEmpty())
	assert.NotNil(t, got.Nodes)
	assert.Equal(t, int32(3), client.calls.Load())
}

func TestGraphExtractor_CancelledContext(t *testing.T) {
	client := &scriptedLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "", context.Canceled
	}}
	ex := NewGraphExtractor(client, fastRetry(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := ex.Extract(ctx, "chunk", "doc-1")
	assert.True(t, got.IsEmpty())
	assert.Equal(t, int32(1), client.calls.Load(), "context errors are not retried")
}
