package extraction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/minutes/ai/mock"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
	"github.com/poiesic/minutes/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acmeSheet = `{
  "people": ["Alice Smith"],
  "organizations": ["Acme"],
  "summary": {
    "people": ["Alice Smith leads engineering at Acme."],
    "misc": ["Acme ships in May."]
  }
}`

type fixture struct {
	store     *badger.Store
	embedder  *mock.MockEmbedder
	generator *mock.MockGenerator
	extractor *Extractor
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	embedder := mock.NewMockEmbedder()
	generator := mock.NewMockGenerator(reply)
	extractor, err := NewExtractor(store.Chunks, mock.NewMockProviderWithServices(embedder, generator))
	require.NoError(t, err)
	t.Cleanup(extractor.Release)

	return &fixture{store: store, embedder: embedder, generator: generator, extractor: extractor}
}

func (f *fixture) addChunks(t *testing.T, texts ...string) []*core.Chunk {
	t.Helper()
	ctx := context.Background()
	doc, err := f.store.Documents.UpsertDocument(ctx, &core.Document{
		Owner:         "alice",
		SourceID:      "doc-1",
		SourceVersion: "1",
	})
	require.NoError(t, err)

	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			DocumentID: doc.Id,
			Owner:      "alice",
			Title:      "Weekly",
			Markdown:   text,
			Checksum:   core.Checksum(text),
			Date:       time.Date(2024, 1, 5+i, 0, 0, 0, 0, time.UTC),
		}
	}
	added, err := f.store.Chunks.AddChunks(ctx, chunks...)
	require.NoError(t, err)
	return added
}

func (f *fixture) chunk(t *testing.T, id core.ID) *core.Chunk {
	t.Helper()
	chunk, err := f.store.Chunks.GetChunk(context.Background(), id)
	require.NoError(t, err)
	return chunk
}

func TestNewExtractor_Validation(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	_, err = NewExtractor(nil, mock.NewMockProvider())
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewExtractor(store.Chunks, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	_, err = NewExtractor(store.Chunks, mock.NewMockProvider(), WithConfig(Config{MaxAttempts: 0, Workers: 1, BatchSize: 1}))
	assert.Error(t, err)
}

func TestExtractor_Process(t *testing.T) {
	f := newFixture(t, acmeSheet)
	chunks := f.addChunks(t, "## Jan 5, 2024\nAlice from Acme presented.")
	ctx := context.Background()

	require.NoError(t, f.extractor.Process(ctx, chunks[0]))

	stored := f.chunk(t, chunks[0].Id)
	assert.True(t, stored.HasFacts())
	assert.Equal(t, []string{"Alice Smith"}, stored.People)
	assert.Equal(t, []string{"Acme"}, stored.Organizations)
	assert.Equal(t, []string{"Alice Smith leads engineering at Acme.", "Acme ships in May."}, stored.Facts)
	require.True(t, stored.HasEmbeddings())
	assert.Equal(t, mock.DeterministicVector("Acme ships in May.", mock.Dimensions), stored.Embeddings[1])

	assert.Equal(t, 1, f.generator.CallCount())
	call := f.generator.Calls()[0]
	assert.Equal(t, SystemPrompt, call.System)
	assert.Contains(t, call.Input, "Alice from Acme presented.")
	assert.Contains(t, call.Input, "Meeting date: 2024-01-05")
}

func TestExtractor_RetriesInvalidReplies(t *testing.T) {
	f := newFixture(t, "")
	chunks := f.addChunks(t, "some minutes")

	var mu sync.Mutex
	calls := 0
	f.generator.GenerateFunc = func(ctx context.Context, system, input string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		switch {
		case calls == 1:
			return "", errors.New("upstream unavailable")
		case calls < 5:
			return `{"people": []}`, nil
		default:
			return acmeSheet, nil
		}
	}

	facts, err := f.extractor.Extract(context.Background(), chunks[0])
	require.NoError(t, err)
	assert.Len(t, facts, 2)
	assert.Equal(t, 5, f.generator.CallCount())
}

func TestExtractor_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, "definitely not json")
	chunks := f.addChunks(t, "some minutes")

	_, err := f.extractor.Extract(context.Background(), chunks[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, ErrMalformedJSON)
	assert.Equal(t, 5, f.generator.CallCount())

	stored := f.chunk(t, chunks[0].Id)
	assert.False(t, stored.HasFacts())
	assert.Empty(t, stored.Facts)
}

func TestExtractor_InvalidChunk(t *testing.T) {
	f := newFixture(t, acmeSheet)

	_, err := f.extractor.Extract(context.Background(), &core.Chunk{Owner: "alice"})
	assert.ErrorIs(t, err, core.ErrInvalidChunk)
	assert.Zero(t, f.generator.CallCount())
}

func TestExtractor_EmptyFactsSkipEmbedding(t *testing.T) {
	f := newFixture(t, `{"summary": {"misc": []}}`)
	chunks := f.addChunks(t, "nothing happened")

	require.NoError(t, f.extractor.Process(context.Background(), chunks[0]))

	stored := f.chunk(t, chunks[0].Id)
	assert.True(t, stored.HasFacts())
	assert.Empty(t, stored.Facts)
	assert.Empty(t, stored.Embeddings)
	assert.Zero(t, f.embedder.CallCount())
}

func TestExtractor_MisalignedEmbeddings(t *testing.T) {
	f := newFixture(t, acmeSheet)
	chunks := f.addChunks(t, "some minutes")
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	err := f.extractor.Process(context.Background(), chunks[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrMisalignedEmbeddings)

	stored := f.chunk(t, chunks[0].Id)
	assert.True(t, stored.HasFacts())
	assert.False(t, stored.HasEmbeddings())
}

func TestExtractor_ReextractionDropsStaleEmbeddings(t *testing.T) {
	f := newFixture(t, acmeSheet)
	chunks := f.addChunks(t, "some minutes")
	ctx := context.Background()
	require.NoError(t, f.extractor.Process(ctx, chunks[0]))

	f.generator.Response = `{"summary": {"misc": ["Only one fact now."]}}`
	_, err := f.extractor.Extract(ctx, chunks[0])
	require.NoError(t, err)

	stored := f.chunk(t, chunks[0].Id)
	assert.Equal(t, []string{"Only one fact now."}, stored.Facts)
	assert.Empty(t, stored.Embeddings)
}

func TestExtractor_Sweep(t *testing.T) {
	f := newFixture(t, acmeSheet)
	chunks := f.addChunks(t, "first", "second", "third")
	ctx := context.Background()

	// One chunk already done, one extracted but never embedded.
	require.NoError(t, f.extractor.Process(ctx, chunks[0]))
	_, err := f.extractor.Extract(ctx, chunks[1])
	require.NoError(t, err)
	f.generator.Reset()
	f.embedder.Reset()

	var mu sync.Mutex
	var progress []int
	result, err := f.extractor.Sweep(ctx, SweepOptions{
		Progress: func(processed, total int) {
			mu.Lock()
			progress = append(progress, processed)
			mu.Unlock()
			assert.Equal(t, 2, total)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 1, result.Extracted)
	assert.Equal(t, 2, result.Embedded)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 1, f.generator.CallCount())
	assert.Equal(t, 2, f.embedder.CallCount())
	assert.ElementsMatch(t, []int{1, 2}, progress)

	for _, c := range chunks {
		stored := f.chunk(t, c.Id)
		assert.True(t, stored.HasFacts())
		assert.True(t, stored.HasEmbeddings())
	}

	// Nothing left to do.
	result, err = f.extractor.Sweep(ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Extracted)
	assert.Zero(t, result.Embedded)
	assert.Equal(t, 1, f.generator.CallCount())
}

func TestExtractor_SweepForce(t *testing.T) {
	f := newFixture(t, acmeSheet)
	f.addChunks(t, "first", "second")
	ctx := context.Background()

	_, err := f.extractor.Sweep(ctx, SweepOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, f.generator.CallCount())

	result, err := f.extractor.Sweep(ctx, SweepOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Extracted)
	assert.Equal(t, 4, f.generator.CallCount())
}

func TestExtractor_SweepCountsFailures(t *testing.T) {
	f := newFixture(t, "")
	f.addChunks(t, "good", "bad")
	f.generator.GenerateFunc = func(ctx context.Context, system, input string) (string, error) {
		if strings.Contains(input, "bad") {
			return "nope", nil
		}
		return acmeSheet, nil
	}

	result, err := f.extractor.Sweep(context.Background(), SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Extracted)
	assert.Equal(t, 1, result.Failed)
}

func TestBuildContext(t *testing.T) {
	chunk := &core.Chunk{
		Markdown:      "## Jan 5, 2024\nNotes",
		Date:          time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		People:        []string{"Alice", "Bob"},
		Organizations: []string{"Acme"},
	}

	got := BuildContext(chunk)
	assert.Contains(t, got, "Meeting date: 2024-01-05")
	assert.Contains(t, got, "Known people: Alice, Bob")
	assert.Contains(t, got, "Known organizations: Acme")
	assert.Contains(t, got, "## Jan 5, 2024\nNotes")

	bare := BuildContext(&core.Chunk{Markdown: "x"})
	assert.NotContains(t, bare, "Meeting date")
	assert.NotContains(t, bare, "Known people")
}
