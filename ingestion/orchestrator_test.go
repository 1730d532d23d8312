package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/source"
	"github.com/poiesic/minutes/storage"
	"github.com/poiesic/minutes/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the IDs a fake stage was called with.
type recorder struct {
	mu  sync.Mutex
	ids []core.ID
}

func (r *recorder) add(id core.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recorder) calls() []core.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ID(nil), r.ids...)
}

func (r *recorder) count() int {
	return len(r.calls())
}

type fakeChunker struct{ recorder }

func (c *fakeChunker) Chunk(_ context.Context, doc *core.Document) (*core.ChunkSyncResult, error) {
	c.add(doc.Id)
	return &core.ChunkSyncResult{DocumentID: doc.Id}, nil
}

type fakeExtractor struct {
	recorder
	blocking bool // Process waits for ctx to end
}

func (e *fakeExtractor) Process(ctx context.Context, chunk *core.Chunk) error {
	e.add(chunk.Id)
	if e.blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

type fakeClusterer struct{ recorder }

func (c *fakeClusterer) Cluster(_ context.Context, id core.ID) ([]*core.FactCluster, error) {
	c.add(id)
	return nil, nil
}

type fixture struct {
	store     *badger.Store
	fetched   recorder
	fetchErr  error
	chunker   *fakeChunker
	extractor *fakeExtractor
	clusterer *fakeClusterer
	resyncs   atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	store.Feed.SetPollInterval(10 * time.Millisecond)

	return &fixture{
		store:     store,
		chunker:   &fakeChunker{},
		extractor: &fakeExtractor{},
		clusterer: &fakeClusterer{},
	}
}

func (f *fixture) repositories() Repositories {
	return Repositories{
		Documents:   f.store.Documents,
		Chunks:      f.store.Chunks,
		Checkpoints: f.store.Checkpoints,
		Feed:        f.store.Feed,
	}
}

func (f *fixture) stages() Stages {
	return Stages{
		Fetcher: source.FetcherFunc(func(_ context.Context, doc *core.Document) (*source.Content, error) {
			f.fetched.add(doc.Id)
			if f.fetchErr != nil {
				return nil, f.fetchErr
			}
			return &source.Content{Title: "Weekly", HTML: "<p>notes</p>", Markdown: "notes"}, nil
		}),
		Chunker:   f.chunker,
		Extractor: f.extractor,
		Clusterer: f.clusterer,
	}
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	return f.orchestratorWithDelay(t, 30*time.Millisecond)
}

func (f *fixture) orchestratorWithDelay(t *testing.T, delay time.Duration) *Orchestrator {
	t.Helper()
	config := DefaultConfig()
	config.DebounceDelay = delay
	config.RestartDelay = 10 * time.Millisecond
	config.Workers = 2

	o, err := NewOrchestrator(f.repositories(), f.stages(),
		WithConfig(config),
		WithResync(func(context.Context) error {
			f.resyncs.Add(1)
			return nil
		}))
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func (f *fixture) addDocument(t *testing.T, sourceID string) *core.Document {
	t.Helper()
	doc, err := f.store.Documents.UpsertDocument(context.Background(), &core.Document{
		Owner:         "alice",
		SourceID:      sourceID,
		SourceURI:     "/minutes/" + sourceID + ".html",
		SourceVersion: "1",
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) addChunk(t *testing.T, docID core.ID, text string) *core.Chunk {
	t.Helper()
	added, err := f.store.Chunks.AddChunks(context.Background(), &core.Chunk{
		DocumentID: docID,
		Owner:      "alice",
		Markdown:   text,
		Checksum:   core.Checksum(text),
	})
	require.NoError(t, err)
	return added[0]
}

func (f *fixture) position(t *testing.T) uint64 {
	t.Helper()
	checkpoint, err := f.store.Checkpoints.LoadCheckpoint(context.Background(), DefaultProcessor)
	require.NoError(t, err)
	if checkpoint == nil {
		return 0
	}
	return checkpoint.Position
}

func TestNewOrchestrator_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		mutate  func(r *Repositories, s *Stages)
		wantErr error
	}{
		{"documents", func(r *Repositories, _ *Stages) { r.Documents = nil }, ErrDocumentRepositoryRequired},
		{"chunks", func(r *Repositories, _ *Stages) { r.Chunks = nil }, ErrChunkRepositoryRequired},
		{"checkpoints", func(r *Repositories, _ *Stages) { r.Checkpoints = nil }, ErrCheckpointRepositoryRequired},
		{"feed", func(r *Repositories, _ *Stages) { r.Feed = nil }, ErrChangeFeedRequired},
		{"fetcher", func(_ *Repositories, s *Stages) { s.Fetcher = nil }, ErrStageRequired},
		{"chunker", func(_ *Repositories, s *Stages) { s.Chunker = nil }, ErrStageRequired},
		{"extractor", func(_ *Repositories, s *Stages) { s.Extractor = nil }, ErrStageRequired},
		{"clusterer", func(_ *Repositories, s *Stages) { s.Clusterer = nil }, ErrStageRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos, stages := f.repositories(), f.stages()
			tt.mutate(&repos, &stages)
			_, err := NewOrchestrator(repos, stages)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := NewOrchestrator(f.repositories(), f.stages(), WithConfig(Config{}))
	assert.Error(t, err)
}

func TestHandle_DocumentInsertFetchesContent(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)
	ctx := context.Background()
	doc := f.addDocument(t, "doc-1")

	for _, op := range []core.Operation{core.OperationInsert, core.OperationReplace} {
		err := o.Handle(ctx, &core.ChangeEvent{Operation: op, Collection: core.CollectionDocuments, DocumentID: doc.Id})
		require.NoError(t, err)
	}
	assert.Equal(t, []core.ID{doc.Id, doc.Id}, f.fetched.calls())

	stored, err := f.store.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.True(t, stored.HasContent())
	assert.Equal(t, "Weekly", stored.Title)
	assert.Equal(t, "notes", stored.Markdown)
	assert.False(t, stored.Chunked)
}

func TestHandle_FetchFailureLeavesDocument(t *testing.T) {
	f := newFixture(t)
	f.fetchErr = errors.New("source unavailable")
	o := f.orchestrator(t)
	ctx := context.Background()
	doc := f.addDocument(t, "doc-1")

	err := o.Handle(ctx, &core.ChangeEvent{Operation: core.OperationInsert, Collection: core.CollectionDocuments, DocumentID: doc.Id})
	require.Error(t, err)
	assert.ErrorIs(t, err, f.fetchErr)

	stored, err := f.store.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.False(t, stored.HasContent())
}

func TestHandle_Routing(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)
	ctx := context.Background()
	doc := f.addDocument(t, "doc-1")
	chunk := f.addChunk(t, doc.Id, "first section")

	events := []*core.ChangeEvent{
		{Operation: core.OperationUpdate, Collection: core.CollectionDocuments, DocumentID: doc.Id, Fields: []string{core.FieldContent}},
		{Operation: core.OperationUpdate, Collection: core.CollectionDocuments, DocumentID: doc.Id, Fields: []string{core.FieldChunked}},
		{Operation: core.OperationDelete, Collection: core.CollectionDocuments, DocumentID: doc.Id},
		{Operation: core.OperationInsert, Collection: core.CollectionChunks, DocumentID: doc.Id, ChunkID: chunk.Id},
		{Operation: core.OperationUpdate, Collection: core.CollectionChunks, DocumentID: doc.Id, ChunkID: chunk.Id, Fields: []string{core.FieldFacts}},
		{Operation: core.OperationDelete, Collection: core.CollectionChunks, DocumentID: doc.Id, ChunkID: chunk.Id},
	}
	for _, event := range events {
		require.NoError(t, o.Handle(ctx, event))
	}
	o.Wait()

	assert.Empty(t, f.fetched.calls())
	assert.Equal(t, []core.ID{doc.Id}, f.chunker.calls())
	assert.Equal(t, []core.ID{chunk.Id}, f.extractor.calls())

	// Removing a chunk rebuilds the document's clusters.
	assert.Equal(t, 1, o.PendingClusters())
	assert.Eventually(t, func() bool { return f.clusterer.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []core.ID{doc.Id}, f.clusterer.calls())
}

func TestHandle_SkipsMissingEntities(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.Handle(ctx, &core.ChangeEvent{Operation: core.OperationInsert, Collection: core.CollectionDocuments, DocumentID: 404}))
	require.NoError(t, o.Handle(ctx, &core.ChangeEvent{Operation: core.OperationUpdate, Collection: core.CollectionDocuments, DocumentID: 404, Fields: []string{core.FieldContent}}))
	require.NoError(t, o.Handle(ctx, &core.ChangeEvent{Operation: core.OperationInsert, Collection: core.CollectionChunks, DocumentID: 404, ChunkID: 404}))
	o.Wait()

	assert.Zero(t, f.fetched.count())
	assert.Zero(t, f.chunker.count())
	assert.Zero(t, f.extractor.count())
}

func TestHandle_SkipsExtractedChunks(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)
	ctx := context.Background()
	doc := f.addDocument(t, "doc-1")
	chunk := f.addChunk(t, doc.Id, "first section")
	require.NoError(t, f.store.Chunks.UpdateFacts(ctx, chunk.Id, nil, nil, []string{"a fact"}))

	require.NoError(t, o.Handle(ctx, &core.ChangeEvent{Operation: core.OperationInsert, Collection: core.CollectionChunks, DocumentID: doc.Id, ChunkID: chunk.Id}))
	o.Wait()
	assert.Zero(t, f.extractor.count())
}

func TestHandle_EmbeddingUpdatesAreDebounced(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		for _, docID := range []core.ID{1, 2} {
			require.NoError(t, o.Handle(ctx, &core.ChangeEvent{
				Operation:  core.OperationUpdate,
				Collection: core.CollectionChunks,
				DocumentID: docID,
				ChunkID:    core.ID(10 + i),
				Fields:     []string{core.FieldEmbeddings},
			}))
		}
	}
	assert.Equal(t, 2, o.PendingClusters())

	assert.Eventually(t, func() bool { return f.clusterer.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.ElementsMatch(t, []core.ID{1, 2}, f.clusterer.calls())
}

func runOrchestrator(t *testing.T, o *Orchestrator) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("orchestrator did not stop")
			return nil
		}
	}
}

func TestRun_DrivesPipelineFromFeed(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t)
	ctx := context.Background()
	stop := runOrchestrator(t, o)

	doc := f.addDocument(t, "doc-1")
	assert.Eventually(t, func() bool { return f.chunker.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []core.ID{doc.Id}, f.fetched.calls())

	chunk := f.addChunk(t, doc.Id, "first section")
	assert.Eventually(t, func() bool { return f.extractor.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.store.Chunks.UpdateFacts(ctx, chunk.Id, nil, []string{"Acme"}, []string{"a fact"}))
	require.NoError(t, f.store.Chunks.UpdateEmbeddings(ctx, chunk.Id, [][]float32{{1, 0}}))
	assert.Eventually(t, func() bool { return f.clusterer.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []core.ID{doc.Id}, f.clusterer.calls())

	head, err := f.store.Feed.Head(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.position(t) == head }, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDocument(t, "seen")
	head, err := f.store.Feed.Head(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{Processor: DefaultProcessor, Position: head}))

	o := f.orchestrator(t)
	stop := runOrchestrator(t, o)
	defer stop()

	fresh := f.addDocument(t, "fresh")
	assert.Eventually(t, func() bool { return f.chunker.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []core.ID{fresh.Id}, f.fetched.calls())
}

func TestRun_ResyncsWhenPositionExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDocument(t, "a")
	f.addDocument(t, "b")
	head, err := f.store.Feed.Head(ctx)
	require.NoError(t, err)
	_, err = f.store.Feed.Prune(ctx, head)
	require.NoError(t, err)

	o := f.orchestrator(t)
	stop := runOrchestrator(t, o)
	defer stop()

	assert.Eventually(t, func() bool { return f.position(t) == head }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), f.resyncs.Load())
	assert.Empty(t, f.fetched.calls())

	c := f.addDocument(t, "c")
	assert.Eventually(t, func() bool { return f.fetched.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []core.ID{c.Id}, f.fetched.calls())
}

// flakyFeed fails its first subscription, then delegates.
type flakyFeed struct {
	storage.ChangeFeed
	attempts atomic.Int32
}

func (f *flakyFeed) Subscribe(ctx context.Context, after uint64, fn func(context.Context, *core.ChangeEvent) error) error {
	if f.attempts.Add(1) == 1 {
		return errors.New("connection reset")
	}
	return f.ChangeFeed.Subscribe(ctx, after, fn)
}

func TestRun_RestartsAfterSubscriptionFailure(t *testing.T) {
	f := newFixture(t)
	feed := &flakyFeed{ChangeFeed: f.store.Feed}
	repos := f.repositories()
	repos.Feed = feed

	config := DefaultConfig()
	config.RestartDelay = 10 * time.Millisecond
	o, err := NewOrchestrator(repos, f.stages(), WithConfig(config))
	require.NoError(t, err)
	defer o.Close()

	stop := runOrchestrator(t, o)
	defer stop()

	f.addDocument(t, "doc-1")
	assert.Eventually(t, func() bool { return f.fetched.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, feed.attempts.Load(), int32(2))
}

func TestRun_EventFailureDoesNotStopFeed(t *testing.T) {
	f := newFixture(t)
	f.fetchErr = errors.New("source unavailable")
	o := f.orchestrator(t)
	stop := runOrchestrator(t, o)
	defer stop()

	f.addDocument(t, "broken")
	head, err := f.store.Feed.Head(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.position(t) == head }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.fetched.count())
}

func TestRun_ChunkDeleteReclusters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.addDocument(t, "doc-1")
	chunk := f.addChunk(t, doc.Id, "first section")
	head, err := f.store.Feed.Head(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{Processor: DefaultProcessor, Position: head}))

	o := f.orchestrator(t)
	stop := runOrchestrator(t, o)
	defer stop()

	require.NoError(t, f.store.Chunks.DeleteChunks(ctx, chunk.Id))
	assert.Eventually(t, func() bool { return f.clusterer.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []core.ID{doc.Id}, f.clusterer.calls())
}

func TestRun_RestartRedeliversPendingRecluster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.addDocument(t, "doc-1")
	chunk := f.addChunk(t, doc.Id, "first section")
	require.NoError(t, f.store.Chunks.UpdateFacts(ctx, chunk.Id, nil, []string{"Acme"}, []string{"a fact"}))
	require.NoError(t, f.store.Chunks.UpdateEmbeddings(ctx, chunk.Id, [][]float32{{1, 0}}))
	embedded, err := f.store.Feed.Head(ctx)
	require.NoError(t, err)

	first := f.orchestratorWithDelay(t, time.Hour)
	stop := runOrchestrator(t, first)
	assert.Eventually(t, func() bool {
		return first.PendingClusters() == 1 && f.chunker.count() == 1 && f.position(t) == embedded-1
	}, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, stop(), context.Canceled)
	first.Close()

	assert.Zero(t, f.clusterer.count())
	assert.Equal(t, embedded-1, f.position(t))

	second := f.orchestrator(t)
	stop = runOrchestrator(t, second)
	defer stop()

	assert.Eventually(t, func() bool { return f.clusterer.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []core.ID{doc.Id}, f.clusterer.calls())

	head, err := f.store.Feed.Head(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.position(t) == head }, 5*time.Second, 10*time.Millisecond)
}

func TestRun_RestartRedeliversInterruptedExtraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.addDocument(t, "doc-1")
	head, err := f.store.Feed.Head(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{Processor: DefaultProcessor, Position: head}))
	chunk := f.addChunk(t, doc.Id, "first section")
	inserted, err := f.store.Feed.Head(ctx)
	require.NoError(t, err)

	f.extractor = &fakeExtractor{blocking: true}
	first := f.orchestrator(t)
	stop := runOrchestrator(t, first)
	assert.Eventually(t, func() bool { return f.extractor.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, stop(), context.Canceled)
	first.Close()
	assert.Equal(t, inserted-1, f.position(t))

	f.extractor = &fakeExtractor{}
	second := f.orchestrator(t)
	stop = runOrchestrator(t, second)
	defer stop()

	assert.Eventually(t, func() bool { return f.extractor.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []core.ID{chunk.Id}, f.extractor.calls())
	assert.Eventually(t, func() bool { return f.position(t) == inserted }, 5*time.Second, 10*time.Millisecond)
}
