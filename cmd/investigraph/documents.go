package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

var (
	listOwner  string
	listStatus string
	listPage   int
	listLimit  int
	graphJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var getCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show a document and its ingestion status",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var graphCmd = &cobra.Command{
	Use:   "graph [doc-id]",
	Short: "Print the knowledge graph extracted from a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document with its chunks and graph edges",
	Long: `Deletes the document, its chunks and the graph edges it asserted. Entities
that no remaining edge references are removed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	listCmd.Flags().StringVarP(&listOwner, "owner", "o", "", "only documents of this owner")
	listCmd.Flags().StringVar(&listStatus, "status", "", "only documents in this status")
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "documents per page")
	graphCmd.Flags().BoolVar(&graphJSON, "json", false, "output the graph as JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	status := types.DocumentStatus(listStatus)
	if status != "" && !types.IsValidDocumentStatus(status) {
		return fmt.Errorf("unknown status %q", listStatus)
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		result, err := a.engine.ListDocuments(ctx, storage.ListOptions{
			OwnerID: listOwner,
			Status:  status,
			Page:    listPage,
			Limit:   listLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}

		if len(result.Items) == 0 {
			cmd.Println("No documents found.")
			return nil
		}

		for _, doc := range result.Items {
			cmd.Printf("  %s  %-16s %s (%s)\n", doc.ID, doc.Status, doc.Filename, doc.OwnerID)
		}
		cmd.Printf("\nPage %d, %d of %d documents\n", result.Page, len(result.Items), result.Total)
		return nil
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		doc, err := a.engine.GetDocument(ctx, args[0])
		if err != nil {
			return lookupError(args[0], err)
		}

		cmd.Printf("Document: %s\n\n", doc.ID)
		cmd.Printf("  Filename: %s\n", doc.Filename)
		cmd.Printf("  Owner:    %s\n", doc.OwnerID)
		cmd.Printf("  Type:     %s\n", doc.ContentType)
		cmd.Printf("  Size:     %d bytes\n", doc.SizeBytes)
		cmd.Printf("  Status:   %s\n", doc.Status)
		if doc.Error != "" {
			cmd.Printf("  Error:    %s\n", doc.Error)
		}
		cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
		cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
		if doc.ExtractedText != "" {
			cmd.Printf("  Text:     %s\n", snippet(doc.ExtractedText, 200))
		}
		return nil
	})
}

func runGraph(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.engine.GetDocument(ctx, args[0]); err != nil {
			return lookupError(args[0], err)
		}

		graph, err := a.engine.GetDocumentGraph(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load graph: %w", err)
		}

		if graphJSON {
			data, err := json.MarshalIndent(graph, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal graph: %w", err)
			}
			cmd.Println(string(data))
			return nil
		}

		if len(graph.Edges) == 0 {
			cmd.Println("No relations extracted.")
			return nil
		}

		names := make(map[string]string, len(graph.Nodes))
		for _, n := range graph.Nodes {
			names[n.ID] = n.Name
		}
		for _, e := range graph.Edges {
			cmd.Println(types.Relation{Source: names[e.SourceID], Relation: e.Relation, Target: names[e.TargetID]}.String())
		}
		cmd.Printf("\n%d entities, %d relations\n", len(graph.Nodes), len(graph.Edges))
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.engine.DeleteDocument(ctx, args[0]); err != nil {
			return lookupError(args[0], err)
		}
		cmd.Printf("Deleted %s\n", args[0])
		return nil
	})
}

func lookupError(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("document %s not found", id)
	}
	return err
}
