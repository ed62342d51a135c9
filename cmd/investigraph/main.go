// Command investigraph ingests financial filings and answers questions about
// them using vector retrieval combined with an extracted knowledge graph.
//
// Startup sequence for every subcommand:
//  1. Load configuration from environment variables (and --config when given).
//  2. Open the configured store (SQLite by default, Postgres with pgvector).
//  3. Build the completion, embedding and reranking clients.
//  4. Wrap everything in a DocumentEngine.
//
// Logging goes to stderr so command output on stdout can be piped.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrypster/investigraph/internal/config"
	"github.com/scrypster/investigraph/internal/engine"
	"github.com/scrypster/investigraph/internal/llm"
	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/internal/storage/postgres"
	"github.com/scrypster/investigraph/internal/storage/sqlite"
)

// configPath is the optional YAML file given with --config.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "investigraph",
	Short: "Question answering over financial filings",
	Long: `Investigraph ingests 10-K style filings (PDF, HTML, SEC submissions or text),
indexes them for vector search and extracts a knowledge graph of the companies
and people they mention. Questions are answered from the retrieved passages
together with the graph connections of the entities they name.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (environment variables still win)")
}

// app bundles an engine with the resources that must be released after use.
type app struct {
	engine *engine.DocumentEngine
	store  storage.Store
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}

// openApp builds the engine for a command. Tests replace it.
var openApp = func(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	generator, err := llm.NewTextGenerator(cfg.LLM)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	embedder, err := llm.NewEmbeddingGenerator(cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	engineConfig := engine.ConfigFromGlobal(cfg)
	if engineConfig.UploadDir == "" {
		engineConfig.UploadDir = filepath.Join(cfg.Storage.DataPath, "uploads")
	}

	eng, err := engine.NewDocumentEngine(engine.Dependencies{
		Store:    store,
		LLM:      generator,
		Embedder: embedder,
		Reranker: llm.NewReranker(cfg.Reranker),
	}, engineConfig)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create document engine: %w", err)
	}

	return &app{engine: eng, store: store}, nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfigFile(configPath)
	}
	return config.LoadConfig()
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, cfg.Embedding.Dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory %q: %w", cfg.Storage.DataPath, err)
		}
		dbPath := filepath.Join(cfg.Storage.DataPath, "investigraph.db")
		store, err := sqlite.NewStore(dbPath, cfg.Embedding.Dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to open database at %q: %w", dbPath, err)
		}
		return store, nil
	}
}

// withApp opens the application for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("failed to close store: %v", err)
		}
	}()

	return fn(ctx, a)
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("investigraph: ")
	log.SetFlags(log.LstdFlags)

	// Cancelled on SIGINT / SIGTERM so a running ingest can shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
