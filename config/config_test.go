package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvAIHost, "")

	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", filepath.Join(t.TempDir(), "absent.yaml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.path)
			require.NoError(t, err)
			assert.Equal(t, DefaultDBPath, cfg.DBPath)
			assert.Equal(t, 30*time.Second, cfg.Ingestion.DebounceDelay)
			assert.Equal(t, float32(0.7), cfg.Search.VectorWeight)
			assert.Equal(t, 10, cfg.Clustering.MaxClusterSize)
			assert.Equal(t, "h2", cfg.Chunking.HeaderTag)
		})
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvAIHost, "")

	path := writeFile(t, "minutes.yaml", `
db_path: /var/lib/minutes
ai:
  chat_model: qwen2.5:3b
  embedding_model: embeddinggemma
search:
  top_k: 8
ingestion:
  debounce_delay: 45s
clustering:
  max_cluster_size: 6
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/minutes", cfg.DBPath)
	assert.Equal(t, "qwen2.5:3b", cfg.AI.ChatModel)
	assert.Equal(t, 8, cfg.Search.TopK)
	assert.Equal(t, 45*time.Second, cfg.Ingestion.DebounceDelay)
	assert.Equal(t, 6, cfg.Clustering.MaxClusterSize)

	// Untouched settings keep their defaults.
	assert.Equal(t, float32(0.3), cfg.Search.KeywordWeight)
	assert.Equal(t, 0.5, cfg.Clustering.DistanceThreshold)
	assert.Contains(t, cfg.AI.Models, "nomic-embed-text-v1.5")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "search: [unclosed"},
		{"weights above one", "search:\n  vector_weight: 0.9\n  keyword_weight: 0.3\n"},
		{"unknown chat model", "ai:\n  chat_model: nope\n"},
		{"zero debounce", "ingestion:\n  debounce_delay: 0s\n"},
		{"empty db path", "db_path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDBPath, "")
			cfg, err := Load(writeFile(t, "bad.yaml", tt.content))
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "secret")
	t.Setenv(EnvDBPath, "/tmp/minutes")
	t.Setenv(EnvAIHost, "http://localhost:11434")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.AI.APIKey)
	assert.Equal(t, "/tmp/minutes", cfg.DBPath)
	for name, spec := range cfg.AI.Models {
		assert.Equal(t, "http://localhost:11434/v1", spec.Host, "model %s", name)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	os.Unsetenv(EnvAPIKey)

	path := writeFile(t, ".env", EnvAPIKey+"=from-dotenv\n")
	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-dotenv", os.Getenv(EnvAPIKey))
}

func TestWrite_OmitsAPIKey(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "secret"

	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))
	assert.NotContains(t, buf.String(), "secret")
	assert.Contains(t, buf.String(), "db_path: minutes.db")
	assert.Contains(t, buf.String(), "debounce_delay: 30s")
}
