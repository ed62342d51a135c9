package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/scrypster/investigraph/internal/llm"
	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

// Retriever implements two-stage retrieval: an L2 similarity search that
// over-fetches K candidates, followed by a reranker that keeps the best N.
type Retriever struct {
	embedder llm.EmbeddingGenerator
	chunks   storage.ChunkStore
	reranker llm.Reranker
	k, n     int

	storeTimeout time.Duration
}

// NewRetriever creates a Retriever. A nil reranker keeps stage-1 order.
func NewRetriever(embedder llm.EmbeddingGenerator, chunks storage.ChunkStore, reranker llm.Reranker, k, n int) *Retriever {
	if reranker == nil {
		reranker = llm.DistanceReranker{}
	}
	return &Retriever{embedder: embedder, chunks: chunks, reranker: reranker, k: k, n: n}
}

// Retrieve returns at most N chunks within scope, best first.
//
// Embedding and store failures are returned. An empty stage 1 is not an
// error and the reranker is not called. A reranker failure falls back to
// the first N stage-1 candidates.
func (r *Retriever) Retrieve(ctx context.Context, query string, scope storage.Scope) ([]types.ScoredChunk, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	emitToContext(ctx, EventRetrievalStarted(query, scope.String()))

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	searchCtx, cancel := storeContext(ctx, r.storeTimeout)
	candidates, err := r.chunks.SearchChunks(searchCtx, vec, scope, r.k)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	emitToContext(ctx, EventCandidatesFound(len(candidates)))

	if len(candidates) == 0 {
		emitToContext(ctx, EventResultsReturned(nil))
		return []types.ScoredChunk{}, nil
	}

	results := r.rerank(ctx, query, candidates)
	if len(results) > r.n {
		results = results[:r.n]
	}

	ids := make([]string, len(results))
	for i, c := range results {
		ids[i] = c.ID
	}
	emitToContext(ctx, EventResultsReturned(ids))

	return results, nil
}

// rerank scores candidates and sorts them by descending score. Equal scores
// keep their stage-1 order. On failure the candidates are returned unchanged.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []types.ScoredChunk) []types.ScoredChunk {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}

	scores, err := r.reranker.Rerank(ctx, query, docs)
	if err == nil && len(scores) != len(candidates) {
		err = fmt.Errorf("reranker returned %d scores for %d candidates", len(scores), len(candidates))
	}
	if err != nil {
		log.Printf("WARNING: rerank failed, keeping similarity order: %v", err)
		emitToContext(ctx, EventRerankFallback(err.Error()))
		return candidates
	}

	reranked := make([]types.ScoredChunk, len(candidates))
	copy(reranked, candidates)
	for i := range reranked {
		reranked[i].Score = scores[i]
		emitToContext(ctx, EventRerankedCandidate(reranked[i].ID, reranked[i].Distance, scores[i]))
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked
}
