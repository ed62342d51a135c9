package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

// InterruptedMessage is recorded on documents whose ingestion was cut short
// by a restart.
const InterruptedMessage = "ingestion interrupted by shutdown; upload the document again"

// RecoverInterruptedDocuments marks documents left in a non-terminal status by
// a previous run as failed. Their uploads lived in temp files that did not
// survive, so they cannot be resumed. Called from Start before any new upload
// is accepted.
func (e *DocumentEngine) RecoverInterruptedDocuments(ctx context.Context) (int, error) {
	recovered := 0

	for _, status := range types.ValidDocumentStatuses {
		if status.IsTerminal() {
			continue
		}

		// Each pass marks the page failed, so the next pass reads page 1 again
		for {
			listCtx, cancel := e.storeCtx(ctx)
			result, err := e.store.ListDocuments(listCtx, storage.ListOptions{
				Status: status,
				Page:   1,
				Limit:  e.config.RecoveryBatchSize,
			})
			cancel()
			if err != nil {
				return recovered, fmt.Errorf("failed to list %s documents: %w", status, err)
			}
			if len(result.Items) == 0 {
				break
			}

			for _, doc := range result.Items {
				updateCtx, cancel := e.storeCtx(ctx)
				err := e.store.UpdateDocumentStatus(updateCtx, doc.ID, types.StatusFailed, InterruptedMessage)
				cancel()
				if err != nil {
					return recovered, fmt.Errorf("failed to mark document %s as failed: %w", doc.ID, err)
				}
				recovered++
			}

			if !result.HasMore {
				break
			}
		}
	}

	if recovered > 0 {
		log.Printf("Recovery complete: marked %d interrupted documents as failed", recovered)
	}
	return recovered, nil
}
