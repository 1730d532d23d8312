// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/source"
	"github.com/poiesic/minutes/storage"
)

// Chunker splits a document into chunks and reconciles them with the store.
type Chunker interface {
	Chunk(ctx context.Context, doc *core.Document) (*core.ChunkSyncResult, error)
}

// Extractor extracts and embeds the facts of a chunk.
type Extractor interface {
	Process(ctx context.Context, chunk *core.Chunk) error
}

// Clusterer rebuilds the fact clusters of a document.
type Clusterer interface {
	Cluster(ctx context.Context, documentID core.ID) ([]*core.FactCluster, error)
}

// Repositories are the store collaborators of an Orchestrator.
type Repositories struct {
	Documents   storage.DocumentRepository
	Chunks      storage.ChunkRepository
	Checkpoints storage.CheckpointRepository
	Feed        storage.ChangeFeed
}

// Stages are the pipeline steps an Orchestrator dispatches to.
type Stages struct {
	Fetcher   source.Fetcher
	Chunker   Chunker
	Extractor Extractor
	Clusterer Clusterer
}

// Orchestrator consumes the change feed and advances documents through
// the pipeline.
type Orchestrator struct {
	repos     Repositories
	stages    Stages
	config    Config
	resync    func(ctx context.Context) error
	debouncer *Debouncer
	pool      *ants.Pool
	tasks     sync.WaitGroup
	progress  *progress
	commitMu  sync.Mutex
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConfig overrides the default settings.
func WithConfig(config Config) Option {
	return func(o *Orchestrator) error {
		if err := config.Validate(); err != nil {
			return err
		}
		o.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithResync sets the catch-up run performed when the saved feed position
// has been pruned. It should bring every document up to date without the
// missed events, typically with extraction and cluster sweeps.
func WithResync(fn func(ctx context.Context) error) Option {
	return func(o *Orchestrator) error {
		o.resync = fn
		return nil
	}
}

// NewOrchestrator creates an orchestrator. Call Close to release it.
func NewOrchestrator(repos Repositories, stages Stages, opts ...Option) (*Orchestrator, error) {
	switch {
	case repos.Documents == nil:
		return nil, ErrDocumentRepositoryRequired
	case repos.Chunks == nil:
		return nil, ErrChunkRepositoryRequired
	case repos.Checkpoints == nil:
		return nil, ErrCheckpointRepositoryRequired
	case repos.Feed == nil:
		return nil, ErrChangeFeedRequired
	case stages.Fetcher == nil:
		return nil, fmt.Errorf("%w: fetcher", ErrStageRequired)
	case stages.Chunker == nil:
		return nil, fmt.Errorf("%w: chunker", ErrStageRequired)
	case stages.Extractor == nil:
		return nil, fmt.Errorf("%w: extractor", ErrStageRequired)
	case stages.Clusterer == nil:
		return nil, fmt.Errorf("%w: clusterer", ErrStageRequired)
	}

	o := &Orchestrator{
		repos:    repos,
		stages:   stages,
		config:   DefaultConfig(),
		progress: newProgress(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")

	pool, err := ants.NewPool(o.config.Workers)
	if err != nil {
		return nil, err
	}
	o.pool = pool
	o.debouncer = NewDebouncer(o.config.DebounceDelay, o.cluster)
	return o, nil
}

// Run follows the change feed from the saved position until ctx is done.
// Failures of single events are logged and skipped. A failed subscription
// is re-established after Config.RestartDelay.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("starting change feed consumer", "processor", o.config.Processor)
	for {
		err := o.follow(ctx)
		if ctx.Err() != nil {
			o.logger.Info("change feed consumer stopped")
			return ctx.Err()
		}

		if errors.Is(err, storage.ErrResumeTokenExpired) {
			o.logger.Warn("feed position expired, resyncing", "err", err)
			if err = o.resyncFromHead(ctx); err == nil {
				continue
			}
		}

		o.logger.Error("change feed subscription failed", "err", err, "restart_in", o.config.RestartDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.config.RestartDelay):
		}
	}
}

func (o *Orchestrator) follow(ctx context.Context) error {
	position, err := o.position(ctx)
	if err != nil {
		return err
	}
	o.progress.restart(position)
	o.logger.Debug("subscribing to change feed", "after", position)
	return o.repos.Feed.Subscribe(ctx, position, o.apply)
}

func (o *Orchestrator) position(ctx context.Context) (uint64, error) {
	checkpoint, err := o.repos.Checkpoints.LoadCheckpoint(ctx, o.config.Processor)
	if err != nil {
		return 0, fmt.Errorf("failed to load feed position: %w", err)
	}
	if checkpoint == nil {
		return 0, nil
	}
	return checkpoint.Position, nil
}

func (o *Orchestrator) savePosition(ctx context.Context, position uint64) error {
	err := o.repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Processor: o.config.Processor,
		Position:  position,
	})
	if err != nil {
		return fmt.Errorf("failed to save feed position %d: %w", position, err)
	}
	return nil
}

// commit saves the feed position up to which every event has finished,
// if it moved.
func (o *Orchestrator) commit(ctx context.Context) error {
	o.commitMu.Lock()
	defer o.commitMu.Unlock()
	position, moved := o.progress.advance()
	if !moved {
		return nil
	}
	if err := o.savePosition(ctx, position); err != nil {
		return err
	}
	o.progress.markSaved(position)
	return nil
}

// finish releases tokens whose deferred work completed.
func (o *Orchestrator) finish(ctx context.Context, tokens ...uint64) {
	o.progress.done(tokens...)
	if err := o.commit(ctx); err != nil && ctx.Err() == nil {
		o.logger.Error("failed to save feed position", "err", err)
	}
}

// apply handles one delivered event. The saved position moves past it once
// any extraction or re-cluster it started has finished.
func (o *Orchestrator) apply(ctx context.Context, event *core.ChangeEvent) error {
	if err := o.Handle(ctx, event); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.Error("failed to handle change event",
			"token", event.Token,
			"collection", event.Collection,
			"operation", event.Operation,
			"document_id", event.DocumentID,
			"chunk_id", event.ChunkID,
			"err", err)
	}
	o.progress.deliver(event.Token)
	return o.commit(ctx)
}

// resyncFromHead runs the resync and moves the feed position to the
// newest event seen before it started.
func (o *Orchestrator) resyncFromHead(ctx context.Context) error {
	head, err := o.repos.Feed.Head(ctx)
	if err != nil {
		return fmt.Errorf("failed to read feed head: %w", err)
	}
	if o.resync != nil {
		if err := o.resync(ctx); err != nil {
			return fmt.Errorf("resync failed: %w", err)
		}
	}
	o.logger.Info("resync complete", "position", head)
	if err := o.savePosition(ctx, head); err != nil {
		return err
	}
	o.progress.restart(head)
	return nil
}

// Handle routes one change event to the pipeline stage it triggers.
// Events for entities that no longer exist are skipped.
func (o *Orchestrator) Handle(ctx context.Context, event *core.ChangeEvent) error {
	switch event.Collection {
	case core.CollectionDocuments:
		switch {
		case event.Operation == core.OperationInsert || event.Operation == core.OperationReplace:
			return o.fetch(ctx, event.DocumentID)
		case event.Operation == core.OperationUpdate && event.HasField(core.FieldContent):
			return o.chunk(ctx, event.DocumentID)
		}
	case core.CollectionChunks:
		switch {
		case event.Operation == core.OperationInsert:
			return o.submitExtraction(ctx, event.Token, event.ChunkID)
		case event.Operation == core.OperationDelete,
			event.Operation == core.OperationUpdate && event.HasField(core.FieldEmbeddings):
			o.progress.beginCluster(event.Token, event.DocumentID)
			o.debouncer.Schedule(ctx, event.DocumentID)
			return nil
		}
	}
	return nil
}

func (o *Orchestrator) document(ctx context.Context, id core.ID) (*core.Document, error) {
	doc, err := o.repos.Documents.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		o.logger.Debug("document gone, skipping", "document_id", id)
		return nil, nil
	}
	return doc, err
}

func (o *Orchestrator) fetch(ctx context.Context, id core.ID) error {
	doc, err := o.document(ctx, id)
	if doc == nil || err != nil {
		return err
	}

	content, err := o.stages.Fetcher.Fetch(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to fetch document %d: %w", id, err)
	}
	if err := o.repos.Documents.SetContent(ctx, id, content.Title, content.HTML, content.Markdown); err != nil {
		return fmt.Errorf("failed to store content of document %d: %w", id, err)
	}
	o.logger.Info("fetched document", "document_id", id, "title", content.Title)
	return nil
}

func (o *Orchestrator) chunk(ctx context.Context, id core.ID) error {
	doc, err := o.document(ctx, id)
	if doc == nil || err != nil {
		return err
	}

	result, err := o.stages.Chunker.Chunk(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to chunk document %d: %w", id, err)
	}
	o.logger.Info("chunked document",
		"document_id", id,
		"inserted", result.Inserted,
		"deleted", result.Deleted,
		"unchanged", result.Unchanged)
	return nil
}

// submitExtraction queues extraction of a chunk. An extraction cut short by
// ctx leaves its token open.
func (o *Orchestrator) submitExtraction(ctx context.Context, token uint64, id core.ID) error {
	o.progress.begin(token)
	o.tasks.Add(1)
	err := o.pool.Submit(func() {
		defer o.tasks.Done()
		err := o.extract(ctx, id)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			o.logger.Error("failed to extract chunk", "chunk_id", id, "err", err)
		}
		o.finish(ctx, token)
	})
	if err != nil {
		o.tasks.Done()
		o.progress.done(token)
		return fmt.Errorf("failed to submit chunk %d: %w", id, err)
	}
	return nil
}

func (o *Orchestrator) extract(ctx context.Context, id core.ID) error {
	chunk, err := o.repos.Chunks.GetChunk(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		o.logger.Debug("chunk gone, skipping", "chunk_id", id)
		return nil
	}
	if err != nil {
		return err
	}
	if chunk.HasFacts() {
		return nil
	}
	return o.stages.Extractor.Process(ctx, chunk)
}

func (o *Orchestrator) cluster(ctx context.Context, id core.ID) {
	tokens := o.progress.takeCluster(id)
	clusters, err := o.stages.Clusterer.Cluster(ctx, id)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.logger.Error("failed to cluster document", "document_id", id, "err", err)
	} else {
		o.logger.Info("re-clustered document", "document_id", id, "clusters", len(clusters))
	}
	o.finish(ctx, tokens...)
}

// PendingClusters returns the number of documents waiting for a debounced
// re-cluster.
func (o *Orchestrator) PendingClusters() int {
	return o.debouncer.Pending()
}

// Wait blocks until submitted extractions have finished.
func (o *Orchestrator) Wait() {
	o.tasks.Wait()
}

// Close waits for running work, drops pending re-clusters and releases the
// worker pool. Events whose work was dropped stay past the saved position
// and are delivered again by the next Run.
func (o *Orchestrator) Close() {
	o.tasks.Wait()
	o.debouncer.Stop()
	o.pool.Release()
}
