package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/scrypster/investigraph/internal/llm"
	"github.com/scrypster/investigraph/pkg/types"
)

// GraphExtractor turns one chunk of text into validated graph nodes and edges.
//
// Extraction is best-effort: once the retry policy is exhausted Extract
// returns an empty extraction instead of an error.
type GraphExtractor struct {
	llm   llm.TextGenerator
	retry llm.RetryPolicy
}

// NewGraphExtractor creates a GraphExtractor using the given completion client.
func NewGraphExtractor(client llm.TextGenerator, retry llm.RetryPolicy) *GraphExtractor {
	return &GraphExtractor{llm: client, retry: retry}
}

// Extract asks the model for the graph asserted by chunk and validates it.
// A response that cannot be parsed counts as a failed attempt.
func (g *GraphExtractor) Extract(ctx context.Context, chunk, documentID string) types.GraphExtraction {
	empty := types.GraphExtraction{Nodes: []types.GraphNode{}, Edges: []types.GraphEdge{}}
	if g.llm == nil {
		return empty
	}

	prompt := llm.GraphExtractionPrompt(chunk)
	opts := llm.CompletionOptions{Temperature: 0.2, JSON: true}

	var raw *llm.RawGraph
	err := g.retry.Do(ctx, "graph extraction", func(ctx context.Context) error {
		response, err := g.llm.Complete(ctx, prompt, opts)
		if err != nil {
			return err
		}
		parsed, err := llm.ParseGraphExtraction(response)
		if err != nil {
			return fmt.Errorf("unparseable extraction: %w", err)
		}
		raw = parsed
		return nil
	})
	if err != nil {
		log.Printf("graph: ERROR extraction for document %s gave up: %v", documentID, err)
		return empty
	}

	extraction := NormalizeExtraction(raw, documentID)
	log.Printf("graph: document %s chunk extraction raw=%d/%d valid=%d/%d (nodes/edges)",
		documentID, len(raw.Nodes), len(raw.Edges), len(extraction.Nodes), len(extraction.Edges))
	return extraction
}
