package reembed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/ai/mock"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage/badger"
	"github.com/stretchr/testify/require"
)

// constantEmbedder returns the same unit vector for every text and records
// the call info of each call.
type constantEmbedder struct {
	*mock.MockEmbedder
	mu    sync.Mutex
	infos []ai.CallInfo
	sizes []int
}

func newConstantEmbedder(vector []float32) *constantEmbedder {
	e := &constantEmbedder{MockEmbedder: mock.NewMockEmbedder()}
	e.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		e.mu.Lock()
		e.infos = append(e.infos, ai.CallInfoFrom(ctx))
		e.sizes = append(e.sizes, len(texts))
		e.mu.Unlock()

		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = append([]float32(nil), vector...)
		}
		return out, nil
	}
	return e
}

var chunkSeq atomic.Int64

func newStore(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedChunk adds a chunk for owner/source and stores facts on it. A nil
// facts slice leaves the chunk unextracted.
func seedChunk(t *testing.T, store *badger.Store, owner, source string, facts []string) *core.Chunk {
	t.Helper()
	ctx := context.Background()
	doc, err := store.Documents.UpsertDocument(ctx, &core.Document{Owner: owner, SourceID: source, SourceVersion: "1"})
	require.NoError(t, err)

	text := fmt.Sprintf("## %s %s %d", owner, source, chunkSeq.Add(1))
	added, err := store.Chunks.AddChunks(ctx, &core.Chunk{
		DocumentID: doc.Id,
		Owner:      owner,
		Markdown:   text,
		Checksum:   core.Checksum(text),
	})
	require.NoError(t, err)

	if facts != nil {
		require.NoError(t, store.Chunks.UpdateFacts(ctx, added[0].Id, nil, []string{"Acme"}, facts))
	}
	return added[0]
}

func seedCluster(t *testing.T, store *badger.Store, docID core.ID, owner, text string) *core.FactCluster {
	t.Helper()
	added, err := store.Clusters.AddClusters(context.Background(), &core.FactCluster{
		DocumentID:    docID,
		Owner:         owner,
		Organizations: []string{"Acme"},
		Facts:         []string{text},
		Text:          "* " + text,
		Vector:        []float32{0, 1, 0},
	})
	require.NoError(t, err)
	return added[0]
}

func fastConfig() *Config {
	return &Config{BatchSize: 2, ReportInterval: 1, MaxRetries: 3, RetryDelay: time.Millisecond}
}
