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

package minutes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/ai/openai"
	"github.com/poiesic/minutes/chunking"
	"github.com/poiesic/minutes/clustering"
	"github.com/poiesic/minutes/config"
	"github.com/poiesic/minutes/extraction"
	"github.com/poiesic/minutes/ingestion"
	"github.com/poiesic/minutes/reembed"
	"github.com/poiesic/minutes/search"
	"github.com/poiesic/minutes/source"
	"github.com/poiesic/minutes/storage"
	"github.com/poiesic/minutes/storage/badger"
)

// Database owns the store, the AI provider and the pipeline stages built
// on them.
type Database struct {
	store     *badger.Store
	provider  ai.AIProvider
	config    *config.Config
	chunker   *chunking.Chunker
	extractor *extraction.Extractor
	engine    *clustering.Engine
	logger    *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	config   *config.Config
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.config = cfg
	}
}

// WithProvider uses provider instead of building an OpenAI-compatible one
// from the configuration. The Database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger every component derives its logger from.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewDatabase opens the store at filePath and builds the pipeline stages.
// An empty filePath uses the configured db_path.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		config: config.Default(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	cfg := options.config
	if filePath == "" {
		filePath = cfg.DBPath
	}

	store, err := badger.OpenStore(filePath)
	if err != nil {
		return nil, err
	}

	db := &Database{store: store, config: cfg, logger: options.logger}

	db.provider = options.provider
	if db.provider == nil {
		db.provider, err = openai.NewProvider(&cfg.AI,
			openai.WithUsageRecorder(store.Usage),
			openai.WithLogger(options.logger))
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	if err := db.buildStages(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) buildStages() error {
	var err error
	db.chunker, err = chunking.NewChunker(db.store.Documents, db.store.Chunks,
		chunking.WithConfig(db.config.Chunking),
		chunking.WithLogger(db.logger))
	if err != nil {
		return fmt.Errorf("failed to create chunker: %w", err)
	}

	db.extractor, err = extraction.NewExtractor(db.store.Chunks, db.provider,
		extraction.WithConfig(db.config.Extraction),
		extraction.WithLogger(db.logger))
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}

	db.engine, err = clustering.NewEngine(db.store.Chunks, db.store.Clusters, db.provider,
		clustering.WithConfig(db.config.Clustering),
		clustering.WithLogger(db.logger))
	if err != nil {
		return fmt.Errorf("failed to create cluster engine: %w", err)
	}
	return nil
}

// Close releases the stages, the provider and the store.
func (db *Database) Close() error {
	if db.extractor != nil {
		db.extractor.Release()
	}

	var errs []error
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) Documents() storage.DocumentRepository { return db.store.Documents }

func (db *Database) Chunks() storage.ChunkRepository { return db.store.Chunks }

func (db *Database) Clusters() storage.ClusterRepository { return db.store.Clusters }

func (db *Database) Usage() storage.UsageRepository { return db.store.Usage }

func (db *Database) Feed() storage.ChangeFeed { return db.store.Feed }

func (db *Database) Chunker() *chunking.Chunker { return db.chunker }

func (db *Database) Extractor() *extraction.Extractor { return db.extractor }

func (db *Database) ClusterEngine() *clustering.Engine { return db.engine }

// NewSearcher creates a hybrid searcher over the stored clusters.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	opts = append([]search.Option{
		search.WithConfig(db.config.Search),
		search.WithLogger(db.logger),
	}, opts...)
	return search.NewSearcher(db.store.Clusters, db.provider, opts...)
}

// NewOrchestrator creates a change feed consumer that fetches documents
// with fetcher and drives them through the pipeline stages. A nil fetcher
// reads local files.
func (db *Database) NewOrchestrator(fetcher source.Fetcher, opts ...ingestion.Option) (*ingestion.Orchestrator, error) {
	if fetcher == nil {
		fetcher = source.NewFileFetcher(db.logger)
	}
	opts = append([]ingestion.Option{
		ingestion.WithConfig(db.config.Ingestion),
		ingestion.WithLogger(db.logger),
		ingestion.WithResync(func(ctx context.Context) error {
			_, err := db.Resync(ctx, false)
			return err
		}),
	}, opts...)

	return ingestion.NewOrchestrator(
		ingestion.Repositories{
			Documents:   db.store.Documents,
			Chunks:      db.store.Chunks,
			Checkpoints: db.store.Checkpoints,
			Feed:        db.store.Feed,
		},
		ingestion.Stages{
			Fetcher:   fetcher,
			Chunker:   db.chunker,
			Extractor: db.extractor,
			Clusterer: db.engine,
		},
		opts...,
	)
}

// NewReembedder creates a reembedder that reports progress to w.
func (db *Database) NewReembedder(w io.Writer) (*reembed.Reembedder, error) {
	cfg := db.config.Reembed
	return reembed.NewReembedder(db.store.Chunks, db.store.Clusters, db.provider.Embedder(), &cfg, w)
}

// ResyncResult summarizes a resync.
type ResyncResult struct {
	Chunked    int
	Extraction *extraction.SweepResult
	Clustering *clustering.SweepResult
}

// Resync brings derived data up to date without the change feed: pending
// documents are chunked, the extraction backlog is processed and documents
// are re-clustered. With force every cluster is deleted first, then every
// chunk is re-extracted and every document re-clustered.
func (db *Database) Resync(ctx context.Context, force bool) (*ResyncResult, error) {
	result := &ResyncResult{}

	if force {
		deleted, err := db.store.Clusters.DeleteAllClusters(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to delete clusters: %w", err)
		}
		db.logger.Info("deleted clusters before resync", "count", deleted)
	}

	chunked, err := db.chunker.ChunkPending(ctx)
	result.Chunked = chunked
	if err != nil {
		return result, fmt.Errorf("chunk sweep failed: %w", err)
	}

	result.Extraction, err = db.extractor.Sweep(ctx, extraction.SweepOptions{Force: force})
	if err != nil {
		return result, fmt.Errorf("extraction sweep failed: %w", err)
	}

	result.Clustering, err = db.engine.Sweep(ctx, clustering.SweepOptions{Force: force})
	if err != nil {
		return result, fmt.Errorf("cluster sweep failed: %w", err)
	}

	db.logger.Info("resync complete",
		"force", force,
		"chunked", result.Chunked,
		"extracted", result.Extraction.Extracted,
		"clustered", result.Clustering.Clustered)
	return result, nil
}
