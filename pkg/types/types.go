// Package types defines the core data structures for investigraph.
// These types represent uploaded documents, their retrieval chunks and the
// entity graph extracted from them.
package types

import "time"

// DocumentStatus represents the ingestion status of a document.
type DocumentStatus string

// Document ingestion status constants
const (
	// StatusUploaded indicates the raw upload is recorded and queued
	StatusUploaded DocumentStatus = "uploaded"

	// StatusNormalizing indicates text extraction and cropping are running
	StatusNormalizing DocumentStatus = "normalizing"

	// StatusSegmented indicates the normalized text has been split into chunks
	StatusSegmented DocumentStatus = "segmented"

	// StatusEmbedded indicates chunks have been embedded and stored
	StatusEmbedded DocumentStatus = "embedded"

	// StatusGraphExtracting indicates entity graph extraction is running
	StatusGraphExtracting DocumentStatus = "graph_extracting"

	// StatusDone indicates ingestion finished
	StatusDone DocumentStatus = "done"

	// StatusFailed indicates ingestion stopped on an unrecoverable error
	StatusFailed DocumentStatus = "failed"
)

// Document is an uploaded filing owned by exactly one user.
type Document struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`

	// ExtractedText is populated asynchronously once normalization completes.
	ExtractedText string `json:"extracted_text,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is a bounded text fragment of a document carrying one embedding.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// ScoredChunk is a chunk returned by a similarity search or a rerank.
// Distance is the L2 distance to the query vector; Score is the relevance
// score assigned by the reranker (zero until reranked).
type ScoredChunk struct {
	Chunk
	Distance float64 `json:"distance"`
	Score    float64 `json:"score"`
}
