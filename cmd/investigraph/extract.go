package main

import (
	"fmt"
	"mime"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scrypster/investigraph/internal/normalize"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Print the normalized text of a filing",
	Long: `Runs the same normalization as ingestion: PDF and HTML text extraction,
SEC submission unwrapping and cropping to the substantive body of the report.
Nothing is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	path := args[0]
	filename := filepath.Base(path)

	text, err := normalize.Extract(path, filename, mime.TypeByExtension(filepath.Ext(filename)))
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", filename, err)
	}
	cmd.Println(text)
	return nil
}
