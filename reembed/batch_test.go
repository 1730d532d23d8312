package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchProcessor_ProcessChunks(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	a1 := seedChunk(t, store, "alice", "doc-a", []string{"a1", "a2"})
	b1 := seedChunk(t, store, "bob", "doc-b", []string{"b1"})
	a2 := seedChunk(t, store, "alice", "doc-a", []string{"a3"})
	empty := seedChunk(t, store, "alice", "doc-a", []string{})
	pending := seedChunk(t, store, "alice", "doc-a", nil)

	embedder := newConstantEmbedder([]float32{1, 0, 0})
	bp := NewBatchProcessor(store.Chunks, store.Clusters, embedder, 3, time.Millisecond)

	batch := []*core.Chunk{}
	for _, c := range []*core.Chunk{a1, b1, a2, empty, pending} {
		got, err := store.Chunks.GetChunk(ctx, c.Id)
		require.NoError(t, err)
		batch = append(batch, got)
	}

	n, err := bp.ProcessChunks(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// One call per owner, in first-seen order.
	assert.Equal(t, []ai.CallInfo{
		{Owner: "alice", Task: TaskReembedFacts},
		{Owner: "bob", Task: TaskReembedFacts},
	}, embedder.infos)
	assert.Equal(t, []int{3, 1}, embedder.sizes)

	for _, id := range []core.ID{a1.Id, b1.Id, a2.Id} {
		got, err := store.Chunks.GetChunk(ctx, id)
		require.NoError(t, err)
		require.True(t, got.HasEmbeddings())
		for _, v := range got.Embeddings {
			assert.Equal(t, []float32{1, 0, 0}, v)
		}
	}

	for _, id := range []core.ID{empty.Id, pending.Id} {
		got, err := store.Chunks.GetChunk(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got.Embeddings)
	}
}

func TestBatchProcessor_ProcessChunksRetries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	chunk := seedChunk(t, store, "alice", "doc", []string{"fact"})
	got, err := store.Chunks.GetChunk(ctx, chunk.Id)
	require.NoError(t, err)

	embedder := newConstantEmbedder([]float32{1, 0})
	succeed := embedder.EmbedTextsFunc
	failures := 2
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("rate limited")
		}
		return succeed(ctx, texts)
	}

	bp := NewBatchProcessor(store.Chunks, store.Clusters, embedder, 3, time.Millisecond)
	n, err := bp.ProcessChunks(ctx, []*core.Chunk{got})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, embedder.CallCount())
}

func TestBatchProcessor_ProcessChunksGivesUp(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	chunk := seedChunk(t, store, "alice", "doc", []string{"fact"})
	got, err := store.Chunks.GetChunk(ctx, chunk.Id)
	require.NoError(t, err)

	embedder := newConstantEmbedder(nil)
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("unavailable")
	}

	bp := NewBatchProcessor(store.Chunks, store.Clusters, embedder, 2, time.Millisecond)
	n, err := bp.ProcessChunks(ctx, []*core.Chunk{got})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Zero(t, n)
	assert.Equal(t, 2, embedder.CallCount())
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	chunk := seedChunk(t, store, "alice", "doc", []string{"a", "b"})
	got, err := store.Chunks.GetChunk(ctx, chunk.Id)
	require.NoError(t, err)

	embedder := newConstantEmbedder(nil)
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}

	bp := NewBatchProcessor(store.Chunks, store.Clusters, embedder, 1, 0)
	_, err = bp.ProcessChunks(ctx, []*core.Chunk{got})
	assert.ErrorIs(t, err, ErrEmbeddingCountMismatch)
}

func TestBatchProcessor_ProcessDocumentClusters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := seedCluster(t, store, 7, "alice", "one")
	second := seedCluster(t, store, 7, "alice", "two")
	other := seedCluster(t, store, 8, "bob", "three")

	embedder := newConstantEmbedder([]float32{3, 4, 0})
	bp := NewBatchProcessor(store.Chunks, store.Clusters, embedder, 1, 0)

	n, err := bp.ProcessDocumentClusters(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []ai.CallInfo{{Owner: "alice", Task: TaskReembedClusters}}, embedder.infos)

	clusters, err := store.Clusters.GetClustersByDocument(ctx, 7)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	for _, c := range clusters {
		assert.Contains(t, []core.ID{first.Id, second.Id}, c.Id)
		assert.InDeltaSlice(t, []float32{0.6, 0.8, 0}, c.Vector, 1e-6)
	}

	untouched, err := store.Clusters.GetClustersByDocument(ctx, 8)
	require.NoError(t, err)
	require.Len(t, untouched, 1)
	assert.Equal(t, other.Id, untouched[0].Id)
	assert.Equal(t, []float32{0, 1, 0}, untouched[0].Vector)
}

func TestBatchProcessor_ProcessDocumentClustersEmpty(t *testing.T) {
	store := newStore(t)
	embedder := newConstantEmbedder([]float32{1})
	bp := NewBatchProcessor(store.Chunks, store.Clusters, embedder, 1, 0)

	n, err := bp.ProcessDocumentClusters(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.CallCount())
}
