package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/minutes/ai/mock"
	"github.com/poiesic/minutes/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReembedder_Validation(t *testing.T) {
	store := newStore(t)
	embedder := mock.NewMockEmbedder()

	tests := []struct {
		name    string
		build   func() (*Reembedder, error)
		wantErr error
	}{
		{"missing chunks", func() (*Reembedder, error) {
			return NewReembedder(nil, store.Clusters, embedder, nil, nil)
		}, ErrChunkRepositoryRequired},
		{"missing clusters", func() (*Reembedder, error) {
			return NewReembedder(store.Chunks, nil, embedder, nil, nil)
		}, ErrClusterRepositoryRequired},
		{"missing embedder", func() (*Reembedder, error) {
			return NewReembedder(store.Chunks, store.Clusters, nil, nil, nil)
		}, ErrEmbedderRequired},
		{"invalid config", func() (*Reembedder, error) {
			return NewReembedder(store.Chunks, store.Clusters, embedder, &Config{}, nil)
		}, ErrInvalidConfig},
		{"defaults", func() (*Reembedder, error) {
			return NewReembedder(store.Chunks, store.Clusters, embedder, nil, nil)
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.build()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultConfig(), r.config)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, true},
		{"zero report interval", func(c *Config) { c.ReportInterval = 0 }, true},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, true},
		{"negative delay", func(c *Config) { c.RetryDelay = -time.Second }, true},
		{"zero delay", func(c *Config) { c.RetryDelay = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReembedder_Run(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	var chunkIDs []core.ID
	for i := 0; i < 5; i++ {
		chunkIDs = append(chunkIDs, seedChunk(t, store, "alice", "doc", []string{"fact a", "fact b"}).Id)
	}
	skipped := seedChunk(t, store, "alice", "doc", nil)
	seedCluster(t, store, 1, "alice", "one")
	seedCluster(t, store, 2, "alice", "two")
	seedCluster(t, store, 2, "alice", "three")

	embedder := newConstantEmbedder([]float32{0, 0, 2})
	var buf bytes.Buffer
	r, err := NewReembedder(store.Chunks, store.Clusters, embedder, fastConfig(), &buf)
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Result{Chunks: 5, Clusters: 3}, result)

	for _, id := range chunkIDs {
		chunk, err := store.Chunks.GetChunk(ctx, id)
		require.NoError(t, err)
		require.Len(t, chunk.Embeddings, 2)
		assert.Equal(t, []float32{0, 0, 2}, chunk.Embeddings[0])
	}

	untouched, err := store.Chunks.GetChunk(ctx, skipped.Id)
	require.NoError(t, err)
	assert.Empty(t, untouched.Embeddings)

	for _, doc := range []core.ID{1, 2} {
		clusters, err := store.Clusters.GetClustersByDocument(ctx, doc)
		require.NoError(t, err)
		for _, c := range clusters {
			assert.InDeltaSlice(t, []float32{0, 0, 1}, c.Vector, 1e-6)
		}
	}

	output := buf.String()
	assert.Contains(t, output, "Reembedding facts of 5 chunks (batch size: 2)")
	assert.Contains(t, output, "Reembedding clusters of 2 documents")
	assert.Contains(t, output, "Reembedded 5 chunks")
	assert.Contains(t, output, "Reembedded 3 clusters")
}

func TestReembedder_RunEmpty(t *testing.T) {
	store := newStore(t)
	embedder := mock.NewMockEmbedder()

	var buf bytes.Buffer
	r, err := NewReembedder(store.Chunks, store.Clusters, embedder, fastConfig(), &buf)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{}, result)
	assert.Zero(t, embedder.CallCount())
	assert.Contains(t, buf.String(), "No chunks with facts found")
	assert.Contains(t, buf.String(), "No clusters found")
}

func TestReembedder_RunStopsOnChunkFailure(t *testing.T) {
	store := newStore(t)
	seedChunk(t, store, "alice", "doc", []string{"fact"})
	seedCluster(t, store, 1, "alice", "one")

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("model unavailable")
	}

	r, err := NewReembedder(store.Chunks, store.Clusters, embedder, fastConfig(), nil)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Equal(t, &Result{}, result)
	// Cluster pass never started.
	assert.Equal(t, fastConfig().MaxRetries, embedder.CallCount())
}

func TestReembedder_RunCanceled(t *testing.T) {
	store := newStore(t)
	seedChunk(t, store, "alice", "doc", []string{"fact"})

	r, err := NewReembedder(store.Chunks, store.Clusters, mock.NewMockEmbedder(), fastConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
