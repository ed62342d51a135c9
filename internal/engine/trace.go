package engine

import "time"

// TraceEventKind classifies each trace event by type.
type TraceEventKind string

const (
	// KindRetrievalStarted is emitted at the beginning of a retrieval.
	KindRetrievalStarted TraceEventKind = "retrieval_started"

	// KindCandidatesFound is emitted after the stage-1 similarity search.
	KindCandidatesFound TraceEventKind = "candidates_found"

	// KindRerankedCandidate is emitted once per candidate scored in stage 2.
	KindRerankedCandidate TraceEventKind = "reranked_candidate"

	// KindRerankFallback is emitted when the reranker failed and stage-1 order was kept.
	KindRerankFallback TraceEventKind = "rerank_fallback"

	// KindResultsReturned is emitted after truncation to record the final set.
	KindResultsReturned TraceEventKind = "results_returned"
)

// TraceEvent is a single structured event emitted during a retrieval.
type TraceEvent struct {
	// Kind identifies the event type.
	Kind TraceEventKind `json:"kind"`

	// At is the wall-clock time the event was recorded.
	At time.Time `json:"at"`

	// ChunkID is populated for per-chunk events.
	ChunkID string `json:"chunk_id,omitempty"`

	// Scope describes the stage-1 restriction, populated in retrieval_started.
	Scope string `json:"scope,omitempty"`

	// Count is used by candidates_found and results_returned.
	Count int `json:"count,omitempty"`

	// Distance and Score are the stage-1 and stage-2 values of a reranked candidate.
	Distance float64 `json:"distance,omitempty"`
	Score    float64 `json:"score,omitempty"`

	// Reason explains a rerank_fallback event.
	Reason string `json:"reason,omitempty"`

	// Query is the original question, populated in retrieval_started.
	Query string `json:"query,omitempty"`

	// ChunkIDs lists all returned ids for results_returned events.
	ChunkIDs []string `json:"chunk_ids,omitempty"`
}

// newTraceEvent is a convenience constructor that timestamps the event.
func newTraceEvent(kind TraceEventKind) TraceEvent {
	return TraceEvent{Kind: kind, At: time.Now()}
}

// EventRetrievalStarted creates a retrieval_started trace event.
func EventRetrievalStarted(query, scope string) TraceEvent {
	e := newTraceEvent(KindRetrievalStarted)
	e.Query = query
	e.Scope = scope
	return e
}

// EventCandidatesFound creates a candidates_found trace event.
func EventCandidatesFound(count int) TraceEvent {
	e := newTraceEvent(KindCandidatesFound)
	e.Count = count
	return e
}

// EventRerankedCandidate creates a reranked_candidate trace event.
func EventRerankedCandidate(chunkID string, distance, score float64) TraceEvent {
	e := newTraceEvent(KindRerankedCandidate)
	e.ChunkID = chunkID
	e.Distance = distance
	e.Score = score
	return e
}

// EventRerankFallback creates a rerank_fallback trace event.
func EventRerankFallback(reason string) TraceEvent {
	e := newTraceEvent(KindRerankFallback)
	e.Reason = reason
	return e
}

// EventResultsReturned creates a results_returned trace event.
func EventResultsReturned(chunkIDs []string) TraceEvent {
	e := newTraceEvent(KindResultsReturned)
	e.ChunkIDs = chunkIDs
	e.Count = len(chunkIDs)
	return e
}
