package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scrypster/investigraph/internal/engine"
	"github.com/scrypster/investigraph/pkg/types"
)

var (
	ingestOwner   string
	ingestID      string
	ingestVerbose bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest filings and wait for processing",
	Long: `Uploads each file, then waits while it is normalized, segmented, embedded
and graph-extracted. Exits non-zero when any document fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestOwner, "owner", "o", "default", "owner of the uploaded documents")
	ingestCmd.Flags().StringVar(&ingestID, "id", "", "document id to use (single file only)")
	ingestCmd.Flags().BoolVarP(&ingestVerbose, "verbose", "v", false, "print every status transition")
	rootCmd.AddCommand(ingestCmd)
}

type ingestOutcome struct {
	id     string
	status types.DocumentStatus
	err    error
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestID != "" && len(args) > 1 {
		return errors.New("--id can only be used with a single file")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		done := make(chan ingestOutcome, len(args))
		a.engine.SetOnIngestionComplete(func(id string, status types.DocumentStatus, err error) {
			done <- ingestOutcome{id: id, status: status, err: err}
		})
		if ingestVerbose {
			a.engine.SetOnStatusChange(func(id string, status types.DocumentStatus) {
				cmd.Printf("  %s -> %s\n", id, status)
			})
		}

		if err := a.engine.Start(ctx); err != nil {
			return fmt.Errorf("failed to start engine: %w", err)
		}
		defer func() {
			_ = a.engine.Shutdown(context.WithoutCancel(ctx))
		}()

		pending := make(map[string]string, len(args))
		for _, path := range args {
			doc, err := uploadFile(ctx, a.engine, path)
			if err != nil {
				return err
			}
			pending[doc.ID] = doc.Filename
			cmd.Printf("Uploaded %s as %s\n", doc.Filename, doc.ID)
		}

		failed := 0
		for len(pending) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case o := <-done:
				name, ok := pending[o.id]
				if !ok {
					continue
				}
				delete(pending, o.id)
				if o.err != nil {
					failed++
					cmd.Printf("%s (%s): %s: %v\n", name, o.id, o.status, o.err)
					continue
				}
				cmd.Printf("%s (%s): %s\n", name, o.id, o.status)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(args))
		}
		return nil
	})
}

func uploadFile(ctx context.Context, eng *engine.DocumentEngine, path string) (*types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	filename := filepath.Base(path)
	doc, err := eng.Upload(ctx, engine.UploadRequest{
		DocumentID:  ingestID,
		OwnerID:     ingestOwner,
		Filename:    filename,
		ContentType: mime.TypeByExtension(filepath.Ext(filename)),
		Data:        data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", filename, err)
	}
	return doc, nil
}
