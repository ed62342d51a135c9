package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/investigraph/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	_ = os.Unsetenv("INVESTIGRAPH_CHUNK_SIZE")
	_ = os.Unsetenv("INVESTIGRAPH_STORAGE_ENGINE")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, 10*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 20, cfg.Retrieval.CandidateK)
	assert.Equal(t, 5, cfg.Retrieval.TopN)
	assert.Equal(t, 5, cfg.Ingestion.GraphChunkLimit)
	assert.Equal(t, 30, cfg.GraphRAG.MaxRelations)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 4*time.Second, cfg.Retry.InitialBackoff)
	assert.Equal(t, 60*time.Second, cfg.Retry.MaxBackoff)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("INVESTIGRAPH_CHUNK_SIZE", "500")
	t.Setenv("INVESTIGRAPH_CHUNK_OVERLAP", "50")
	t.Setenv("INVESTIGRAPH_EXTRACTION_DELAY", "250ms")
	t.Setenv("INVESTIGRAPH_RERANKER_ENABLED", "yes")
	t.Setenv("INVESTIGRAPH_STORE_TIMEOUT", "3s")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 250*time.Millisecond, cfg.Ingestion.ExtractionDelay)
	assert.True(t, cfg.Reranker.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Storage.Timeout)
}

func TestLoadConfig_RejectsNegativeStoreTimeout(t *testing.T) {
	t.Setenv("INVESTIGRAPH_STORE_TIMEOUT", "-1s")

	_, err := config.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store timeout")
}

func TestLoadConfig_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("INVESTIGRAPH_RETRIEVAL_K", "lots")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Retrieval.CandidateK)
}

func TestLoadConfig_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("INVESTIGRAPH_STORAGE_ENGINE", "postgres")
	_ = os.Unsetenv("INVESTIGRAPH_POSTGRES_DSN")

	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_OverlapMustBeSmallerThanSize(t *testing.T) {
	t.Setenv("INVESTIGRAPH_CHUNK_SIZE", "100")
	t.Setenv("INVESTIGRAPH_CHUNK_OVERLAP", "100")

	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigFile_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "investigraph.yaml")
	yamlDoc := `
storage:
  engine: sqlite
  data_path: /var/lib/investigraph
retrieval:
  candidate_k: 40
ingestion:
  graph_chunk_limit: 3
  extraction_delay: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("INVESTIGRAPH_RETRIEVAL_K", "25")

	cfg, err := config.LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/investigraph", cfg.Storage.DataPath)
	assert.Equal(t, 25, cfg.Retrieval.CandidateK, "env must override file")
	assert.Equal(t, 3, cfg.Ingestion.GraphChunkLimit)
	assert.Equal(t, 2*time.Second, cfg.Ingestion.ExtractionDelay)
	assert.Equal(t, 5, cfg.Retrieval.TopN, "unset fields keep defaults")
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, err := config.LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
