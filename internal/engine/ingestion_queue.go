package engine

import (
	"log"
	"time"
)

// queueIngestionJob attempts to queue an ingestion job without blocking.
// Returns false if the engine is not accepting work or the queue is full.
func (e *DocumentEngine) queueIngestionJob(job *IngestionJob) bool {
	// Holding the read lock keeps Shutdown from closing the queue mid-send
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started || e.shuttingDown {
		return false
	}

	select {
	case e.ingestionQueue <- job:
		return true
	default:
		log.Printf("WARNING: Ingestion queue full (size=%d), dropping job for document %s",
			e.config.QueueSize, job.DocumentID)
		return false
	}
}

// createIngestionJob creates a new ingestion job for an uploaded file.
func createIngestionJob(documentID, tempPath, filename, contentType string) *IngestionJob {
	return &IngestionJob{
		DocumentID:  documentID,
		TempPath:    tempPath,
		Filename:    filename,
		ContentType: contentType,
		Timestamp:   time.Now(),
	}
}

// GetQueueSize returns the current number of jobs waiting in the ingestion queue.
func (e *DocumentEngine) GetQueueSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.ingestionQueue)
}

// reportError delivers a failed ingestion to the Errors channel, dropping it
// when no one is draining the channel.
func (e *DocumentEngine) reportError(ingestErr *IngestionError) {
	select {
	case e.errors <- ingestErr:
	default:
		log.Printf("WARNING: Error channel full, dropping report for document %s", ingestErr.DocumentID)
	}
}
