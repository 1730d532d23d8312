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
	"time"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// Task names attached to the usage records of reembedding calls.
const (
	TaskReembedFacts    = "reembed_facts"
	TaskReembedClusters = "reembed_clusters"
)

// NeedsEmbedding reports whether a chunk has facts to embed.
func NeedsEmbedding(chunk *core.Chunk) bool {
	return chunk.HasFacts() && len(chunk.Facts) > 0
}

// BatchProcessor recomputes embeddings for batches of chunks and for the
// clusters of single documents.
type BatchProcessor struct {
	chunks         storage.ChunkRepository
	clusters       storage.ClusterRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(chunks storage.ChunkRepository, clusters storage.ClusterRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		chunks:         chunks,
		clusters:       clusters,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// ProcessChunks embeds the facts of every chunk in the batch that has any
// and stores the new embeddings. Chunks are embedded one owner at a time so
// each call is billed to the right owner. It returns the number of chunks
// updated.
func (bp *BatchProcessor) ProcessChunks(ctx context.Context, batch []*core.Chunk) (int, error) {
	var owners []string
	byOwner := make(map[string][]*core.Chunk)
	for _, chunk := range batch {
		if !NeedsEmbedding(chunk) {
			continue
		}
		if _, seen := byOwner[chunk.Owner]; !seen {
			owners = append(owners, chunk.Owner)
		}
		byOwner[chunk.Owner] = append(byOwner[chunk.Owner], chunk)
	}

	updated := 0
	for _, owner := range owners {
		group := byOwner[owner]

		var texts []string
		for _, chunk := range group {
			texts = append(texts, chunk.Facts...)
		}

		vectors, err := bp.embed(ai.WithCallInfo(ctx, owner, TaskReembedFacts), texts)
		if err != nil {
			return updated, err
		}

		offset := 0
		for _, chunk := range group {
			n := len(chunk.Facts)
			if err := bp.chunks.UpdateEmbeddings(ctx, chunk.Id, vectors[offset:offset+n]); err != nil {
				return updated, fmt.Errorf("failed to update embeddings of chunk %d: %w", chunk.Id, err)
			}
			offset += n
			updated++
		}
	}
	return updated, nil
}

// ProcessDocumentClusters embeds the text of every cluster of a document and
// stores the new vectors in one transaction. It returns the number of
// clusters updated.
func (bp *BatchProcessor) ProcessDocumentClusters(ctx context.Context, documentID core.ID) (int, error) {
	clusters, err := bp.clusters.GetClustersByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to load clusters of document %d: %w", documentID, err)
	}
	if len(clusters) == 0 {
		return 0, nil
	}

	texts := make([]string, len(clusters))
	for i, cluster := range clusters {
		texts[i] = cluster.Text
	}

	vectors, err := bp.embed(ai.WithCallInfo(ctx, clusters[0].Owner, TaskReembedClusters), texts)
	if err != nil {
		return 0, err
	}

	err = bp.clusters.WithTransaction(ctx, func(ctx context.Context) error {
		for i, cluster := range clusters {
			if err := bp.clusters.SetClusterVector(ctx, cluster.Id, vectors[i]); err != nil {
				return fmt.Errorf("failed to update vector of cluster %d: %w", cluster.Id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(clusters), nil
}

func (bp *BatchProcessor) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(texts), len(vectors))
	}
	return vectors, nil
}
