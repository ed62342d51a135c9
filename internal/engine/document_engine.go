package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/investigraph/internal/llm"
	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

// Dependencies are the long-lived handles the engine is built from. They are
// created once at process start and shared read-only afterwards.
type Dependencies struct {
	Store    storage.Store
	LLM      llm.TextGenerator
	Embedder llm.EmbeddingGenerator

	// Reranker is optional; without one retrieval keeps similarity order.
	Reranker llm.Reranker
}

// DocumentEngine is the core orchestrator for document ingestion and queries.
// Upload returns as soon as the document record exists; ingestion runs on a
// worker pool fed by a job queue.
type DocumentEngine struct {
	// Configuration
	config Config

	// Storage layer
	store storage.Store

	// Ingestion pipeline
	chunker         *llm.Chunker
	embedder        llm.EmbeddingGenerator
	extractor       *GraphExtractor
	limiter         *rate.Limiter
	ingestionQueue  chan *IngestionJob
	workerWaitGroup sync.WaitGroup
	workerCtx       context.Context
	workerCancel    context.CancelFunc
	errors          chan *IngestionError

	// Query path
	retriever   *Retriever
	graphRAG    *GraphRAG
	synthesizer *Synthesizer

	// Provider clients, for breaker reporting
	clients []any

	// State management
	started      bool
	shuttingDown bool
	mu           sync.RWMutex

	// Callbacks
	callbackMu          sync.RWMutex
	onStatusChange      func(documentID string, status types.DocumentStatus)
	onIngestionComplete func(documentID string, status types.DocumentStatus, err error)
}

// NewDocumentEngine creates a new document engine with the given configuration.
// Use DefaultConfig() for sensible defaults.
func NewDocumentEngine(deps Dependencies, engineConfig Config) (*DocumentEngine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("document store is required")
	}

	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedding client is required")
	}

	if err := engineConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	chunker, err := llm.NewChunker(engineConfig.ChunkSize, engineConfig.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking: %w", err)
	}

	limit := rate.Inf
	if engineConfig.ExtractionDelay > 0 {
		limit = rate.Every(engineConfig.ExtractionDelay)
	}

	engine := &DocumentEngine{
		config:      engineConfig,
		store:       deps.Store,
		chunker:     chunker,
		embedder:    deps.Embedder,
		limiter:     rate.NewLimiter(limit, 1),
		errors:      make(chan *IngestionError, engineConfig.ErrorBufferSize),
		retriever:   NewRetriever(deps.Embedder, deps.Store, deps.Reranker, engineConfig.CandidateK, engineConfig.TopN),
		graphRAG:    NewGraphRAG(deps.LLM, deps.Store, engineConfig.MaxRelations),
		synthesizer: NewSynthesizer(deps.LLM, engineConfig.Retry),
		clients:     []any{deps.LLM, deps.Embedder, deps.Reranker},
	}

	engine.retriever.storeTimeout = engineConfig.StoreTimeout
	engine.graphRAG.storeTimeout = engineConfig.StoreTimeout

	if deps.LLM != nil {
		engine.extractor = NewGraphExtractor(deps.LLM, engineConfig.Retry)
		log.Printf("Document engine using completion model %s", deps.LLM.GetModel())
	} else {
		log.Println("Warning: no completion client, graph extraction and answers are disabled")
	}

	return engine, nil
}

// SetOnStatusChange sets a callback fired whenever an ingestion moves a document to a new status.
func (e *DocumentEngine) SetOnStatusChange(callback func(documentID string, status types.DocumentStatus)) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	e.onStatusChange = callback
}

// SetOnIngestionComplete sets a callback fired when a document reaches done or failed.
// err is an *IngestionError when the status is failed.
func (e *DocumentEngine) SetOnIngestionComplete(callback func(documentID string, status types.DocumentStatus, err error)) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	e.onIngestionComplete = callback
}

// Errors returns the channel on which failed ingestions are reported.
// Reports are dropped when the channel's buffer is full.
func (e *DocumentEngine) Errors() <-chan *IngestionError {
	return e.errors
}

// CircuitBreakers reports the breaker of every provider client the engine
// calls. Clients without one are left out.
func (e *DocumentEngine) CircuitBreakers() []llm.BreakerStatus {
	return llm.BreakerStatuses(e.clients...)
}

// storeContext bounds a single store call by timeout. A zero timeout only
// derives a cancelable context.
func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// storeCtx is storeContext with the engine's StoreTimeout.
func (e *DocumentEngine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return storeContext(ctx, e.config.StoreTimeout)
}

func (e *DocumentEngine) notifyStatusChange(documentID string, status types.DocumentStatus) {
	e.callbackMu.RLock()
	callback := e.onStatusChange
	e.callbackMu.RUnlock()
	if callback != nil {
		callback(documentID, status)
	}
}

// Start starts the document engine and its worker pool.
// Documents interrupted by a previous run are marked failed first.
// This must be called before using Upload().
func (e *DocumentEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	log.Println("Starting document engine...")

	if e.config.UploadDir != "" {
		if err := os.MkdirAll(e.config.UploadDir, 0o700); err != nil {
			return fmt.Errorf("failed to create upload directory: %w", err)
		}
	}

	if _, err := e.RecoverInterruptedDocuments(ctx); err != nil {
		log.Printf("ERROR: Interrupted document recovery failed: %v", err)
	}

	e.ingestionQueue = make(chan *IngestionJob, e.config.QueueSize)
	e.workerCtx, e.workerCancel = context.WithCancel(context.WithoutCancel(ctx))
	e.startWorkerPool(e.workerCtx)

	e.started = true
	log.Println("Document engine started successfully")

	return nil
}

// Shutdown gracefully shuts down the document engine.
// It closes the ingestion queue and waits for workers to drain (with timeout).
// Jobs still running when the timeout expires are cancelled and end failed.
func (e *DocumentEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started || e.shuttingDown {
		e.mu.Unlock()
		return ErrNotStarted
	}
	// Mark as shutting down (Upload stops queueing)
	e.shuttingDown = true
	e.mu.Unlock()

	log.Println("Shutting down document engine...")

	err := e.stopWorkerPool(ctx)
	if err != nil {
		log.Printf("WARNING: Worker pool shutdown had errors: %v", err)
	}
	e.workerCancel()

	e.mu.Lock()
	e.started = false
	e.shuttingDown = false
	e.mu.Unlock()

	log.Println("Document engine shut down successfully")
	return err
}

// Upload records a document and queues it for asynchronous ingestion.
// The returned document has status uploaded; ingestion failures are
// reported through the status, the callbacks and Errors(), never here.
//
// If the queue is full the document is marked failed and ErrQueueFull is
// returned along with it.
func (e *DocumentEngine) Upload(ctx context.Context, req UploadRequest) (*types.Document, error) {
	e.mu.RLock()
	accepting := e.started && !e.shuttingDown
	e.mu.RUnlock()
	if !accepting {
		return nil, ErrNotStarted
	}

	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("%w: filename is required", storage.ErrInvalidInput)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: upload is empty", storage.ErrInvalidInput)
	}

	id := req.DocumentID
	if id == "" {
		id = GenerateDocumentID()
	}

	tempPath, err := e.writeTempFile(req.Filename, req.Data)
	if err != nil {
		return nil, err
	}

	doc := &types.Document{
		ID:          id,
		OwnerID:     req.OwnerID,
		Filename:    filepath.Base(req.Filename),
		ContentType: req.ContentType,
		SizeBytes:   int64(len(req.Data)),
		Status:      types.StatusUploaded,
	}
	createCtx, cancel := e.storeCtx(ctx)
	err = e.store.CreateDocument(createCtx, doc)
	cancel()
	if err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	job := createIngestionJob(doc.ID, tempPath, doc.Filename, doc.ContentType)
	if !e.queueIngestionJob(job) {
		_ = os.Remove(tempPath)
		failCtx, cancel := e.storeCtx(context.WithoutCancel(ctx))
		defer cancel()
		if err := e.store.UpdateDocumentStatus(failCtx, doc.ID, types.StatusFailed, ErrQueueFull.Error()); err != nil {
			log.Printf("ERROR: Failed to mark document %s as failed: %v", doc.ID, err)
		}
		doc.Status = types.StatusFailed
		doc.Error = ErrQueueFull.Error()
		return doc, ErrQueueFull
	}

	return doc, nil
}

func (e *DocumentEngine) writeTempFile(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	f, err := os.CreateTemp(e.config.UploadDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), nil
}

// GetDocument retrieves a document by ID.
func (e *DocumentEngine) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.GetDocument(ctx, id)
}

// ListDocuments retrieves documents with pagination and filtering.
func (e *DocumentEngine) ListDocuments(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Document], error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.ListDocuments(ctx, opts)
}

// GetDocumentGraph returns the edges a document asserted and their endpoints.
func (e *DocumentEngine) GetDocumentGraph(ctx context.Context, documentID string) (*types.Graph, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.GetDocumentGraph(ctx, documentID)
}

// DeleteDocument removes a document's graph and then the document itself.
// Graph deletion is best effort: its failure is logged and the document is
// deleted regardless. An ingestion still running for the document stops at
// its next graph merge and removes whatever it merged in between.
func (e *DocumentEngine) DeleteDocument(ctx context.Context, id string) error {
	graphCtx, cancel := e.storeCtx(ctx)
	err := e.store.DeleteDocumentGraph(graphCtx, id)
	cancel()
	if err != nil {
		log.Printf("WARNING: Failed to delete graph of document %s: %v", id, err)
	}

	docCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.store.DeleteDocument(docCtx, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Retrieve runs two-stage retrieval for query within scope.
func (e *DocumentEngine) Retrieve(ctx context.Context, query string, scope storage.Scope) ([]types.ScoredChunk, error) {
	return e.retriever.Retrieve(ctx, query, scope)
}

// GraphContext returns the graph relations around the question's entities
// that were asserted by documents within scope.
func (e *DocumentEngine) GraphContext(ctx context.Context, question string, scope storage.Scope) string {
	return e.graphRAG.QueryContext(ctx, question, scope)
}

// Ask answers a question from the chunks and graph relations in scope.
// Dependency failures produce a degraded Answer rather than an error; only
// invalid requests are rejected.
func (e *DocumentEngine) Ask(ctx context.Context, req QueryRequest) (*Answer, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, fmt.Errorf("%w: question is required", storage.ErrInvalidInput)
	}
	scope := req.Scope()
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	chunks, err := e.retriever.Retrieve(ctx, req.Question, scope)
	if err != nil {
		log.Printf("ERROR: Retrieval failed for %s: %v", scope, err)
		return &Answer{Text: DegradedAnswerMessage, Degraded: true, Chunks: []types.ScoredChunk{}}, nil
	}

	graphContext := e.graphRAG.QueryContext(ctx, req.Question, scope)

	text, degraded := e.synthesizer.Answer(ctx, req.Question, chunks, graphContext)
	return &Answer{
		Text:         text,
		Degraded:     degraded,
		Chunks:       chunks,
		GraphContext: graphContext,
	}, nil
}
