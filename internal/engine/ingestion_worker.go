package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/scrypster/investigraph/internal/normalize"
	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

var (
	errNoText = errors.New("no text could be extracted from the upload")

	// errDocumentDeleted stops an ingestion whose document was deleted mid-flight.
	errDocumentDeleted = errors.New("document was deleted during ingestion")
)

// ingestionWorker is a worker goroutine that processes ingestion jobs.
// It runs continuously until the ingestion queue is closed.
func (e *DocumentEngine) ingestionWorker(ctx context.Context, queue <-chan *IngestionJob, workerID int) {
	defer e.workerWaitGroup.Done()

	log.Printf("Ingestion worker %d started", workerID)

	for job := range queue {
		e.processIngestionJob(ctx, workerID, job)
	}

	log.Printf("Ingestion worker %d stopped", workerID)
}

// processIngestionJob runs one document through the ingestion state machine.
// Whatever happens, the temp file is removed and the outcome is reported.
func (e *DocumentEngine) processIngestionJob(ctx context.Context, workerID int, job *IngestionJob) {
	log.Printf("Worker %d processing document %s (%s, queued %v ago)",
		workerID, job.DocumentID, job.Filename, time.Since(job.Timestamp).Round(time.Millisecond))

	stage := types.StatusUploaded
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", stage, r)
			log.Printf("ERROR: Worker %d recovered from panic on document %s: %v\n%s",
				workerID, job.DocumentID, r, debug.Stack())
		}
		if rmErr := os.Remove(job.TempPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("WARNING: Worker %d failed to remove temp file %s: %v", workerID, job.TempPath, rmErr)
		}
		e.finishIngestion(workerID, job.DocumentID, stage, err)
	}()

	err = e.ingest(ctx, workerID, job, &stage)
}

// ingest advances the document through normalizing, segmented, embedded and
// graph_extracting. stage tracks the state the document is in, so a failure
// can be attributed to it.
func (e *DocumentEngine) ingest(ctx context.Context, workerID int, job *IngestionJob, stage *types.DocumentStatus) error {
	// Writes outlive job cancellation so a cancelled job can still record its outcome
	persistCtx := context.WithoutCancel(ctx)
	id := job.DocumentID

	advance := func(next types.DocumentStatus) error {
		if !types.IsValidStatusTransition(*stage, next) {
			return fmt.Errorf("invalid status transition %s -> %s", *stage, next)
		}
		statusCtx, cancel := e.storeCtx(persistCtx)
		defer cancel()
		if err := e.store.UpdateDocumentStatus(statusCtx, id, next, ""); err != nil {
			return fmt.Errorf("failed to set status %s: %w", next, err)
		}
		*stage = next
		e.notifyStatusChange(id, next)
		return nil
	}

	if err := advance(types.StatusNormalizing); err != nil {
		return err
	}
	text, err := normalize.Extract(job.TempPath, job.Filename, job.ContentType)
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return errNoText
	}
	textCtx, cancel := e.storeCtx(persistCtx)
	err = e.store.UpdateExtractedText(textCtx, id, text)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to store extracted text: %w", err)
	}

	pieces := e.chunker.Split(text)
	if err := advance(types.StatusSegmented); err != nil {
		return err
	}
	log.Printf("Worker %d: document %s split into %d chunks", workerID, id, len(pieces))

	vectors, err := e.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(pieces) {
		return fmt.Errorf("embedding service returned %d vectors for %d chunks", len(vectors), len(pieces))
	}
	chunks := make([]types.Chunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = types.Chunk{
			ID:         chunkID(id, i),
			DocumentID: id,
			Ordinal:    i,
			Content:    content,
			Embedding:  vectors[i],
		}
	}
	chunkCtx, cancel := e.storeCtx(persistCtx)
	err = e.store.StoreChunks(chunkCtx, chunks)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := advance(types.StatusEmbedded); err != nil {
		return err
	}

	limit := e.config.GraphChunkLimit
	if limit > len(pieces) {
		limit = len(pieces)
	}
	if limit > 0 && e.extractor != nil {
		if err := advance(types.StatusGraphExtracting); err != nil {
			return err
		}
		if err := e.extractGraph(ctx, workerID, id, pieces[:limit]); err != nil {
			return err
		}
	}

	return advance(types.StatusDone)
}

// extractGraph runs graph extraction over chunks one at a time, each call
// gated by the shared rate limiter. Merge failures are logged and skipped,
// except a missing document, which ends the extraction.
func (e *DocumentEngine) extractGraph(ctx context.Context, workerID int, documentID string, pieces []string) error {
	merged := 0
	for i, piece := range pieces {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("graph extraction interrupted: %w", err)
		}

		extraction := e.extractor.Extract(ctx, piece, documentID)
		if extraction.IsEmpty() {
			continue
		}
		mergeCtx, cancel := e.storeCtx(ctx)
		err := e.store.MergeGraph(mergeCtx, documentID, extraction.Nodes, extraction.Edges)
		cancel()
		if errors.Is(err, storage.ErrNotFound) {
			return errDocumentDeleted
		}
		if err != nil {
			log.Printf("ERROR: Worker %d failed to merge graph of chunk %d of %s: %v", workerID, i, documentID, err)
			continue
		}
		merged++
	}
	log.Printf("Worker %d: merged graph from %d/%d chunks of %s", workerID, merged, len(pieces), documentID)
	return nil
}

// finishIngestion records the outcome of a job and notifies observers.
func (e *DocumentEngine) finishIngestion(workerID int, documentID string, stage types.DocumentStatus, err error) {
	final := types.StatusDone
	if err != nil {
		final = types.StatusFailed
		log.Printf("ERROR: Worker %d ingestion of %s failed during %s: %v", workerID, documentID, stage, err)

		if !stage.IsTerminal() {
			statusCtx, cancel := e.storeCtx(context.Background())
			upErr := e.store.UpdateDocumentStatus(statusCtx, documentID, types.StatusFailed, err.Error())
			cancel()
			if upErr != nil {
				log.Printf("ERROR: Worker %d failed to mark document %s as failed: %v", workerID, documentID, upErr)
			}
			if errors.Is(err, errDocumentDeleted) || errors.Is(upErr, storage.ErrNotFound) {
				e.dropDeletedGraph(workerID, documentID)
			}
			e.notifyStatusChange(documentID, types.StatusFailed)
		}

		ingestErr := &IngestionError{DocumentID: documentID, Stage: stage, Err: err}
		e.reportError(ingestErr)
		err = ingestErr
	} else {
		log.Printf("Worker %d completed ingestion of document %s", workerID, documentID)
	}

	e.callbackMu.RLock()
	onComplete := e.onIngestionComplete
	e.callbackMu.RUnlock()
	if onComplete != nil {
		onComplete(documentID, final, err)
	}
}

// dropDeletedGraph removes graph edges a worker merged for a document that was
// deleted while it was still being ingested.
func (e *DocumentEngine) dropDeletedGraph(workerID int, documentID string) {
	ctx, cancel := e.storeCtx(context.Background())
	defer cancel()
	if err := e.store.DeleteDocumentGraph(ctx, documentID); err != nil {
		log.Printf("ERROR: Worker %d failed to remove graph of deleted document %s: %v", workerID, documentID, err)
		return
	}
	log.Printf("Worker %d removed graph of deleted document %s", workerID, documentID)
}

// startWorkerPool starts the worker goroutines.
func (e *DocumentEngine) startWorkerPool(ctx context.Context) {
	for i := 0; i < e.config.NumWorkers; i++ {
		e.workerWaitGroup.Add(1)
		go e.ingestionWorker(ctx, e.ingestionQueue, i)
	}

	log.Printf("Started %d ingestion workers", e.config.NumWorkers)
}

// stopWorkerPool closes the queue and waits for workers to drain it. In-flight
// jobs are cancelled once the timeout or ctx expires.
func (e *DocumentEngine) stopWorkerPool(ctx context.Context) error {
	close(e.ingestionQueue)

	done := make(chan struct{})
	go func() {
		e.workerWaitGroup.Wait()
		close(done)
	}()

	var timeout <-chan time.Time
	if e.config.ShutdownTimeout > 0 {
		timer := time.NewTimer(e.config.ShutdownTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
		log.Println("All ingestion workers finished gracefully")
		return nil
	case <-timeout:
		log.Printf("WARNING: Shutdown timeout reached, %d queued documents may be dropped", len(e.ingestionQueue))
		e.workerCancel()
		return nil
	case <-ctx.Done():
		log.Printf("WARNING: Context cancelled, %d queued documents may be dropped", len(e.ingestionQueue))
		e.workerCancel()
		return ctx.Err()
	}
}
