// Package engine provides the document engine: asynchronous ingestion of
// filings into chunk embeddings and an entity graph, and the hybrid query
// path that answers questions from both.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/investigraph/internal/config"
	"github.com/scrypster/investigraph/internal/llm"
	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

var (
	// ErrQueueFull is returned by Upload when the ingestion queue has no room.
	// The document record exists and is marked failed.
	ErrQueueFull = errors.New("ingestion queue full")

	// ErrNotStarted is returned when the engine is used before Start.
	ErrNotStarted = errors.New("engine not started")
)

// IngestionJob represents one uploaded document waiting for ingestion.
type IngestionJob struct {
	// DocumentID is the document record the job fills in.
	DocumentID string

	// TempPath is the on-disk copy of the upload; always removed after processing.
	TempPath string

	// Filename and ContentType select the text extractor.
	Filename    string
	ContentType string

	// Timestamp is when the job was queued.
	Timestamp time.Time
}

// UploadRequest is the upload handoff: raw bytes plus declared content type.
type UploadRequest struct {
	OwnerID     string
	Filename    string
	ContentType string
	Data        []byte

	// DocumentID is optional; a UUID is generated when empty.
	DocumentID string
}

// QueryRequest asks a question against one document or all documents of an owner.
type QueryRequest struct {
	Question   string
	DocumentID string
	OwnerID    string
}

// Scope returns the retrieval scope of the request. A document id wins over an owner.
func (r QueryRequest) Scope() storage.Scope {
	if r.DocumentID != "" {
		return storage.DocumentScope(r.DocumentID)
	}
	return storage.OwnerScope(r.OwnerID)
}

// Answer is the result of a question. Degraded is set when a dependency
// failed and Text carries a service message rather than a grounded answer.
type Answer struct {
	Text         string              `json:"answer"`
	Degraded     bool                `json:"degraded"`
	Chunks       []types.ScoredChunk `json:"chunks"`
	GraphContext string              `json:"graph_context,omitempty"`
}

// IngestionError reports a document whose ingestion ended in the failed state.
type IngestionError struct {
	DocumentID string
	Stage      types.DocumentStatus
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion of %s failed during %s: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Config holds configuration for the document engine.
type Config struct {
	// NumWorkers is the number of ingestion worker goroutines (default: 2).
	NumWorkers int

	// QueueSize is the size of the ingestion job queue buffer (default: 100).
	QueueSize int

	// ShutdownTimeout is the maximum time to wait for workers to drain on shutdown (default: 30s).
	ShutdownTimeout time.Duration

	// StoreTimeout bounds every individual store call; 0 disables it (default: 10s).
	StoreTimeout time.Duration

	// ChunkSize and ChunkOverlap configure the segmenter, in characters (default: 1000/200).
	ChunkSize    int
	ChunkOverlap int

	// GraphChunkLimit is how many leading chunks of a document are graph-extracted (default: 5).
	GraphChunkLimit int

	// ExtractionDelay is the courtesy delay between extraction calls (default: 1s).
	ExtractionDelay time.Duration

	// CandidateK and TopN size the two retrieval stages (default: 20/5).
	CandidateK int
	TopN       int

	// MaxRelations caps the relations placed in graph context (default: 30).
	MaxRelations int

	// Retry is the backoff policy for completion calls.
	Retry llm.RetryPolicy

	// UploadDir receives temporary upload files (default: os.TempDir()).
	UploadDir string

	// RecoveryBatchSize is the page size used when recovering interrupted documents (default: 100).
	RecoveryBatchSize int

	// ErrorBufferSize is the capacity of the Errors() channel (default: 64).
	ErrorBufferSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:        2,
		QueueSize:         100,
		ShutdownTimeout:   30 * time.Second,
		StoreTimeout:      10 * time.Second,
		ChunkSize:         1000,
		ChunkOverlap:      200,
		GraphChunkLimit:   5,
		ExtractionDelay:   time.Second,
		CandidateK:        20,
		TopN:              5,
		MaxRelations:      30,
		Retry:             llm.DefaultRetryPolicy(),
		RecoveryBatchSize: 100,
		ErrorBufferSize:   64,
	}
}

// ConfigFromGlobal maps the application config onto an engine Config.
func ConfigFromGlobal(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.NumWorkers = cfg.Ingestion.NumWorkers
	c.QueueSize = cfg.Ingestion.QueueSize
	c.ShutdownTimeout = cfg.Ingestion.ShutdownTimeout
	c.StoreTimeout = cfg.Storage.Timeout
	c.GraphChunkLimit = cfg.Ingestion.GraphChunkLimit
	c.ExtractionDelay = cfg.Ingestion.ExtractionDelay
	c.UploadDir = cfg.Ingestion.UploadDir
	c.ChunkSize = cfg.Chunking.Size
	c.ChunkOverlap = cfg.Chunking.Overlap
	c.CandidateK = cfg.Retrieval.CandidateK
	c.TopN = cfg.Retrieval.TopN
	c.MaxRelations = cfg.GraphRAG.MaxRelations
	c.Retry.MaxAttempts = cfg.Retry.MaxAttempts
	c.Retry.InitialBackoff = cfg.Retry.InitialBackoff
	c.Retry.MaxBackoff = cfg.Retry.MaxBackoff
	return c
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("NumWorkers must be >= 1, got %d", c.NumWorkers)
	}

	if c.QueueSize < 1 {
		return fmt.Errorf("QueueSize must be >= 1, got %d", c.QueueSize)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("ShutdownTimeout must be >= 0, got %v", c.ShutdownTimeout)
	}

	if c.StoreTimeout < 0 {
		return fmt.Errorf("StoreTimeout must be >= 0, got %v", c.StoreTimeout)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("ChunkSize must be >= 1, got %d", c.ChunkSize)
	}

	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("ChunkOverlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}

	if c.GraphChunkLimit < 0 {
		return fmt.Errorf("GraphChunkLimit must be >= 0, got %d", c.GraphChunkLimit)
	}

	if c.ExtractionDelay < 0 {
		return fmt.Errorf("ExtractionDelay must be >= 0, got %v", c.ExtractionDelay)
	}

	if c.CandidateK < 1 || c.TopN < 1 {
		return fmt.Errorf("CandidateK and TopN must be >= 1, got %d and %d", c.CandidateK, c.TopN)
	}

	if c.TopN > c.CandidateK {
		return fmt.Errorf("TopN (%d) must not exceed CandidateK (%d)", c.TopN, c.CandidateK)
	}

	if c.MaxRelations < 1 {
		return fmt.Errorf("MaxRelations must be >= 1, got %d", c.MaxRelations)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("Retry.MaxAttempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}

	if c.RecoveryBatchSize < 1 {
		return fmt.Errorf("RecoveryBatchSize must be >= 1, got %d", c.RecoveryBatchSize)
	}

	if c.ErrorBufferSize < 0 {
		return fmt.Errorf("ErrorBufferSize must be >= 0, got %d", c.ErrorBufferSize)
	}

	return nil
}

// GenerateDocumentID returns a new random document id.
func GenerateDocumentID() string {
	return uuid.NewString()
}

// chunkID derives the id of a document's chunk from its ordinal.
func chunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s:%d", documentID, ordinal)
}
