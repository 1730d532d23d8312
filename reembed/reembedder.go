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

package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// Result summarizes a reembedding run.
type Result struct {
	Chunks   int
	Clusters int
}

// Reembedder refreshes every stored embedding: chunk facts first, then
// cluster vectors.
type Reembedder struct {
	chunks    storage.ChunkRepository
	clusters  storage.ClusterRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
}

// NewReembedder creates a new reembedder. A nil config uses DefaultConfig.
// progress receives human readable progress output, typically os.Stderr.
func NewReembedder(chunks storage.ChunkRepository, clusters storage.ClusterRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if clusters == nil {
		return nil, ErrClusterRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		chunks:    chunks,
		clusters:  clusters,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(chunks, clusters, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewChunkIterator(chunks, config.BatchSize),
	}, nil
}

// Run reembeds chunk facts and then cluster texts. It stops at the first
// failure and returns what was completed so far.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	chunks, err := r.runChunks(ctx)
	result.Chunks = chunks
	if err != nil {
		return result, err
	}

	clusters, err := r.runClusters(ctx)
	result.Clusters = clusters
	return result, err
}

func (r *Reembedder) runChunks(ctx context.Context) (int, error) {
	total, err := r.iterator.Count(ctx, NeedsEmbedding)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks with facts found\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Reembedding facts of %d chunks (batch size: %d)\n", total, r.config.BatchSize)
	tracker := NewProgressTracker(r.progress, "chunks", total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, func(batch []*core.Chunk) error {
		n, err := r.processor.ProcessChunks(ctx, batch)
		processed += n
		tracker.Update(processed)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return processed, err
	}

	tracker.Finish()
	r.summarize("chunks", processed, tracker.Elapsed())
	return processed, nil
}

func (r *Reembedder) runClusters(ctx context.Context) (int, error) {
	docIDs, err := r.clusters.DocumentIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list clustered documents: %w", err)
	}
	if len(docIDs) == 0 {
		fmt.Fprintf(r.progress, "No clusters found\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Reembedding clusters of %d documents\n", len(docIDs))
	tracker := NewProgressTracker(r.progress, "documents", len(docIDs), r.config.ReportInterval)
	tracker.Start()

	updated := 0
	for _, id := range docIDs {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		n, err := r.processor.ProcessDocumentClusters(ctx, id)
		if err != nil {
			return updated, err
		}
		updated += n
		tracker.Increment(1)
	}

	tracker.Finish()
	r.summarize("clusters", updated, tracker.Elapsed())
	return updated, nil
}

func (r *Reembedder) summarize(unit string, n int, elapsed time.Duration) {
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(n) / secs
	}
	fmt.Fprintf(r.progress, "Reembedded %d %s in %v (%.1f/sec)\n", n, unit, elapsed.Round(time.Millisecond), rate)
}
