// Package config provides configuration management for investigraph.
// It loads settings from environment variables with the INVESTIGRAPH_ prefix
// and provides sensible defaults for all configuration options.
//
// A .env file in the working directory is read first when present, so local
// setups can keep keys out of the shell. LoadConfigFile additionally reads a
// YAML file; environment variables always win over file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the application.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	GraphRAG  GraphRAGConfig  `yaml:"graphrag"`
	Retry     RetryConfig     `yaml:"retry"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string        `yaml:"engine"`       // sqlite or postgres (default: sqlite)
	DataPath      string        `yaml:"data_path"`    // Path to data directory (default: ./data)
	PostgresDSN   string        `yaml:"postgres_dsn"` // Required when StorageEngine is postgres
	Timeout       time.Duration `yaml:"timeout"`      // bound on each store call, 0 disables (default: 10s)
}

// LLMConfig contains completion provider configuration.
type LLMConfig struct {
	Provider        string        `yaml:"provider"` // ollama, openai, groq, anthropic (default: ollama)
	OllamaURL       string        `yaml:"ollama_url"`
	OllamaModel     string        `yaml:"ollama_model"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	OpenAIModel     string        `yaml:"openai_model"`
	GroqAPIKey      string        `yaml:"groq_api_key"`
	GroqModel       string        `yaml:"groq_model"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	Timeout         time.Duration `yaml:"timeout"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // ollama or openai (default: ollama)
	URL       string        `yaml:"url"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	Dimension int           `yaml:"dimension"`  // default: 384
	CacheSize int           `yaml:"cache_size"` // query embedding cache entries (default: 512)
	Timeout   time.Duration `yaml:"timeout"`
}

// RerankerConfig contains cross-encoder configuration.
type RerankerConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// RetrievalConfig controls two-stage retrieval.
type RetrievalConfig struct {
	CandidateK int `yaml:"candidate_k"` // stage-1 over-fetch (default: 20)
	TopN       int `yaml:"top_n"`       // stage-2 window (default: 5)
}

// ChunkingConfig controls the sliding window segmenter.
type ChunkingConfig struct {
	Size    int `yaml:"size"`    // default: 1000
	Overlap int `yaml:"overlap"` // default: 200
}

// IngestionConfig controls the asynchronous ingestion workers.
type IngestionConfig struct {
	NumWorkers      int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	GraphChunkLimit int           `yaml:"graph_chunk_limit"` // first M chunks are graph-extracted (default: 5)
	ExtractionDelay time.Duration `yaml:"extraction_delay"`  // courtesy delay between extraction calls (default: 1s)
	UploadDir       string        `yaml:"upload_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GraphRAGConfig controls graph context retrieval.
type GraphRAGConfig struct {
	MaxRelations int `yaml:"max_relations"` // default: 30
}

// RetryConfig controls backoff for completion calls.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the INVESTIGRAPH_ prefix. A .env file in the
// working directory is loaded first when it exists; variables already set in
// the process environment are not overwritten by it.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file, fills unset fields with
// defaults and then applies environment variable overrides.
func LoadConfigFile(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: postgres storage requires INVESTIGRAPH_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.StorageEngine)
	}

	if c.Storage.Timeout < 0 {
		return fmt.Errorf("config: store timeout must be >= 0, got %v", c.Storage.Timeout)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("config: chunk size must be > 0, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("config: chunk overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be > 0, got %d", c.Embedding.Dimension)
	}
	if c.Retrieval.CandidateK < 1 || c.Retrieval.TopN < 1 {
		return fmt.Errorf("config: retrieval K and N must be >= 1, got K=%d N=%d", c.Retrieval.CandidateK, c.Retrieval.TopN)
	}
	if c.Ingestion.GraphChunkLimit < 0 {
		return fmt.Errorf("config: graph chunk limit must be >= 0, got %d", c.Ingestion.GraphChunkLimit)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			StorageEngine: "sqlite",
			DataPath:      "./data",
			Timeout:       10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5:7b",
			OpenAIBaseURL:  "https://api.openai.com",
			OpenAIModel:    "gpt-4o-mini",
			GroqModel:      "llama-3.1-8b-instant",
			AnthropicModel: "claude-haiku-4-5-20251001",
			Timeout:        60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			URL:       "http://localhost:11434",
			Model:     "all-minilm",
			Dimension: 384,
			CacheSize: 512,
			Timeout:   30 * time.Second,
		},
		Reranker: RerankerConfig{
			Enabled: false,
			URL:     "http://localhost:8081",
			Model:   "cross-encoder/ms-marco-MiniLM-L-6-v2",
			Timeout: 15 * time.Second,
		},
		Retrieval: RetrievalConfig{CandidateK: 20, TopN: 5},
		Chunking:  ChunkingConfig{Size: 1000, Overlap: 200},
		Ingestion: IngestionConfig{
			NumWorkers:      2,
			QueueSize:       100,
			GraphChunkLimit: 5,
			ExtractionDelay: time.Second,
			UploadDir:       "./data/uploads",
			ShutdownTimeout: 30 * time.Second,
		},
		GraphRAG: GraphRAGConfig{MaxRelations: 30},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 4 * time.Second,
			MaxBackoff:     60 * time.Second,
		},
	}
}

// applyEnv overlays INVESTIGRAPH_* variables onto cfg. Unset variables keep
// whatever value cfg already carries.
func applyEnv(cfg *Config) {
	cfg.Storage.StorageEngine = getEnv("INVESTIGRAPH_STORAGE_ENGINE", cfg.Storage.StorageEngine)
	cfg.Storage.DataPath = getEnv("INVESTIGRAPH_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("INVESTIGRAPH_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.Timeout = getEnvDuration("INVESTIGRAPH_STORE_TIMEOUT", cfg.Storage.Timeout)

	cfg.LLM.Provider = getEnv("INVESTIGRAPH_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("INVESTIGRAPH_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OllamaModel = getEnv("INVESTIGRAPH_OLLAMA_MODEL", cfg.LLM.OllamaModel)
	cfg.LLM.OpenAIAPIKey = getEnv("INVESTIGRAPH_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIBaseURL = getEnv("INVESTIGRAPH_OPENAI_BASE_URL", cfg.LLM.OpenAIBaseURL)
	cfg.LLM.OpenAIModel = getEnv("INVESTIGRAPH_OPENAI_MODEL", cfg.LLM.OpenAIModel)
	cfg.LLM.GroqAPIKey = getEnv("INVESTIGRAPH_GROQ_API_KEY", cfg.LLM.GroqAPIKey)
	cfg.LLM.GroqModel = getEnv("INVESTIGRAPH_GROQ_MODEL", cfg.LLM.GroqModel)
	cfg.LLM.AnthropicAPIKey = getEnv("INVESTIGRAPH_ANTHROPIC_API_KEY", cfg.LLM.AnthropicAPIKey)
	cfg.LLM.AnthropicModel = getEnv("INVESTIGRAPH_ANTHROPIC_MODEL", cfg.LLM.AnthropicModel)
	cfg.LLM.Timeout = getEnvDuration("INVESTIGRAPH_LLM_TIMEOUT", cfg.LLM.Timeout)

	cfg.Embedding.Provider = getEnv("INVESTIGRAPH_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.URL = getEnv("INVESTIGRAPH_EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.Model = getEnv("INVESTIGRAPH_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.APIKey = getEnv("INVESTIGRAPH_EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Dimension = getEnvInt("INVESTIGRAPH_EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.CacheSize = getEnvInt("INVESTIGRAPH_EMBEDDING_CACHE_SIZE", cfg.Embedding.CacheSize)
	cfg.Embedding.Timeout = getEnvDuration("INVESTIGRAPH_EMBEDDING_TIMEOUT", cfg.Embedding.Timeout)

	cfg.Reranker.Enabled = getEnvBool("INVESTIGRAPH_RERANKER_ENABLED", cfg.Reranker.Enabled)
	cfg.Reranker.URL = getEnv("INVESTIGRAPH_RERANKER_URL", cfg.Reranker.URL)
	cfg.Reranker.Model = getEnv("INVESTIGRAPH_RERANKER_MODEL", cfg.Reranker.Model)
	cfg.Reranker.Timeout = getEnvDuration("INVESTIGRAPH_RERANKER_TIMEOUT", cfg.Reranker.Timeout)

	cfg.Retrieval.CandidateK = getEnvInt("INVESTIGRAPH_RETRIEVAL_K", cfg.Retrieval.CandidateK)
	cfg.Retrieval.TopN = getEnvInt("INVESTIGRAPH_RETRIEVAL_N", cfg.Retrieval.TopN)

	cfg.Chunking.Size = getEnvInt("INVESTIGRAPH_CHUNK_SIZE", cfg.Chunking.Size)
	cfg.Chunking.Overlap = getEnvInt("INVESTIGRAPH_CHUNK_OVERLAP", cfg.Chunking.Overlap)

	cfg.Ingestion.NumWorkers = getEnvInt("INVESTIGRAPH_WORKERS", cfg.Ingestion.NumWorkers)
	cfg.Ingestion.QueueSize = getEnvInt("INVESTIGRAPH_QUEUE_SIZE", cfg.Ingestion.QueueSize)
	cfg.Ingestion.GraphChunkLimit = getEnvInt("INVESTIGRAPH_GRAPH_CHUNK_LIMIT", cfg.Ingestion.GraphChunkLimit)
	cfg.Ingestion.ExtractionDelay = getEnvDuration("INVESTIGRAPH_EXTRACTION_DELAY", cfg.Ingestion.ExtractionDelay)
	cfg.Ingestion.UploadDir = getEnv("INVESTIGRAPH_UPLOAD_DIR", cfg.Ingestion.UploadDir)
	cfg.Ingestion.ShutdownTimeout = getEnvDuration("INVESTIGRAPH_SHUTDOWN_TIMEOUT", cfg.Ingestion.ShutdownTimeout)

	cfg.GraphRAG.MaxRelations = getEnvInt("INVESTIGRAPH_GRAPHRAG_MAX_RELATIONS", cfg.GraphRAG.MaxRelations)

	cfg.Retry.MaxAttempts = getEnvInt("INVESTIGRAPH_RETRY_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.InitialBackoff = getEnvDuration("INVESTIGRAPH_RETRY_INITIAL_BACKOFF", cfg.Retry.InitialBackoff)
	cfg.Retry.MaxBackoff = getEnvDuration("INVESTIGRAPH_RETRY_MAX_BACKOFF", cfg.Retry.MaxBackoff)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration parses values like "1s" or "250ms"; invalid values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
