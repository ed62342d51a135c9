package engine

import (
	"context"
	"sync"
	"time"
)

// contextKey is an unexported type for context keys owned by this package.
type contextKey string

const traceKey contextKey = "retrieval_trace"

// TraceCollector accumulates TraceEvents for a single retrieval.
type TraceCollector struct {
	mu        sync.Mutex
	events    []TraceEvent
	startedAt time.Time
}

// NewTraceCollector returns a fresh collector.
func NewTraceCollector() *TraceCollector {
	return &TraceCollector{startedAt: time.Now()}
}

// Emit appends an event to the collector.
func (tc *TraceCollector) Emit(e TraceEvent) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.events = append(tc.events, e)
}

// Events returns the collected events in emission order.
func (tc *TraceCollector) Events() []TraceEvent {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]TraceEvent(nil), tc.events...)
}

// ElapsedMS returns the elapsed time since the collector was created, in milliseconds.
func (tc *TraceCollector) ElapsedMS() int64 {
	return time.Since(tc.startedAt).Milliseconds()
}

// WithTraceCollector stores a collector in the context.
func WithTraceCollector(ctx context.Context, tc *TraceCollector) context.Context {
	return context.WithValue(ctx, traceKey, tc)
}

// TraceCollectorFromContext retrieves the collector from the context.
// Returns (nil, false) if none is present.
func TraceCollectorFromContext(ctx context.Context) (*TraceCollector, bool) {
	tc, ok := ctx.Value(traceKey).(*TraceCollector)
	return tc, ok
}

// emitToContext emits an event only when a collector is present in the context.
func emitToContext(ctx context.Context, e TraceEvent) {
	if tc, ok := TraceCollectorFromContext(ctx); ok {
		tc.Emit(e)
	}
}

// RetrievalReport is the structured summary of one traced retrieval.
type RetrievalReport struct {
	Query string `json:"query"`
	Scope string `json:"scope"`

	// CandidatesFound is the stage-1 result count.
	CandidatesFound int `json:"candidates_found"`

	// Reranked lists every stage-2 score in candidate order.
	Reranked []RerankEntry `json:"reranked"`

	// Fallback is set when the reranker failed; it holds the reason.
	Fallback string `json:"fallback,omitempty"`

	// Returned lists the chunk ids of the final result.
	Returned []string `json:"returned"`

	TimingMS int64 `json:"timing_ms"`
}

// RerankEntry is one candidate as scored by the reranker.
type RerankEntry struct {
	ChunkID  string  `json:"chunk_id"`
	Distance float64 `json:"distance"`
	Score    float64 `json:"score"`
}

// BuildRetrievalReport converts collected trace events into a RetrievalReport.
func BuildRetrievalReport(events []TraceEvent, elapsedMS int64) *RetrievalReport {
	report := &RetrievalReport{TimingMS: elapsedMS}

	for _, e := range events {
		switch e.Kind {
		case KindRetrievalStarted:
			report.Query = e.Query
			report.Scope = e.Scope
		case KindCandidatesFound:
			report.CandidatesFound += e.Count
		case KindRerankedCandidate:
			report.Reranked = append(report.Reranked, RerankEntry{
				ChunkID:  e.ChunkID,
				Distance: e.Distance,
				Score:    e.Score,
			})
		case KindRerankFallback:
			report.Fallback = e.Reason
		case KindResultsReturned:
			report.Returned = e.ChunkIDs
		}
	}

	// Guarantee non-nil slices for clean JSON output.
	if report.Reranked == nil {
		report.Reranked = []RerankEntry{}
	}
	if report.Returned == nil {
		report.Returned = []string{}
	}

	return report
}
