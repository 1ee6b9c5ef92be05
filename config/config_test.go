package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 0.85, cfg.Pipeline.QualityThreshold)
	assert.Equal(t, 3, cfg.Pipeline.MaxIterations)
	assert.Equal(t, 1000, cfg.Pipeline.ChunkSize)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  addr: ":9090"
store:
  driver: postgres
  dsn: "postgres://localhost/blogforge"
pipeline:
  top_k: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/blogforge", cfg.Store.DSN)
	assert.Equal(t, 8, cfg.Pipeline.TopK)
	// Unset fields keep their defaults
	assert.Equal(t, 0.85, cfg.Pipeline.QualityThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BLOGFORGE_ADDR", ":7070")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LLM_MODEL", "deepseek-chat")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Pipeline.QualityThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Pipeline.MaxIterations = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Pipeline.ChunkOverlap = cfg.Pipeline.ChunkSize
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}
