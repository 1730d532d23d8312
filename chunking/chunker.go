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

package chunking

import (
	"context"
	"log/slog"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// Chunker splits documents into chunks and reconciles them with the store.
type Chunker struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	config    Config
	converter *md.Converter
	logger    *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithConfig replaces the default header recognition settings.
func WithConfig(config Config) Option {
	return func(c *Chunker) error {
		if err := config.Validate(); err != nil {
			return err
		}
		c.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewChunker creates a new Chunker.
func NewChunker(documents storage.DocumentRepository, chunks storage.ChunkRepository, opts ...Option) (*Chunker, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}

	c := &Chunker{
		documents: documents,
		chunks:    chunks,
		config:    DefaultConfig(),
		converter: md.NewConverter("", true, nil),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Chunk splits doc and reconciles the result with its stored chunks in one
// transaction: stale chunks are deleted, new ones inserted, and chunks
// whose checksum is already stored are left untouched. A document without
// qualifying headers is left as is.
func (c *Chunker) Chunk(ctx context.Context, doc *core.Document) (*core.ChunkSyncResult, error) {
	chunks, err := c.Split(doc)
	if err != nil {
		return nil, err
	}

	result := &core.ChunkSyncResult{DocumentID: doc.Id}
	if len(chunks) == 0 {
		c.logger.Info("document has no dated sections", "document_id", doc.Id)
		return result, nil
	}

	wanted := make(map[string]bool, len(chunks))
	for _, chunk := range chunks {
		wanted[chunk.Checksum] = true
	}

	err = c.chunks.WithTransaction(ctx, func(ctx context.Context) error {
		// Counters are reset so a retried transaction reports correctly.
		*result = core.ChunkSyncResult{DocumentID: doc.Id}

		stored, err := c.chunks.GetChunksByDocument(ctx, doc.Id)
		if err != nil {
			return err
		}

		storedChecksums := make(map[string]bool, len(stored))
		var stale []core.ID
		for _, chunk := range stored {
			if wanted[chunk.Checksum] {
				storedChecksums[chunk.Checksum] = true
				continue
			}
			stale = append(stale, chunk.Id)
		}
		if len(stale) > 0 {
			if err := c.chunks.DeleteChunks(ctx, stale...); err != nil {
				return err
			}
		}
		result.Deleted = len(stale)

		var fresh []*core.Chunk
		for _, chunk := range chunks {
			if storedChecksums[chunk.Checksum] {
				result.Unchanged++
				continue
			}
			fresh = append(fresh, chunk)
		}
		if len(fresh) > 0 {
			if _, err := c.chunks.AddChunks(ctx, fresh...); err != nil {
				return err
			}
		}
		result.Inserted = len(fresh)

		return c.documents.MarkChunked(ctx, doc.Id)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("chunked document",
		"document_id", doc.Id,
		"inserted", result.Inserted,
		"deleted", result.Deleted,
		"unchanged", result.Unchanged)
	return result, nil
}

// ChunkPending chunks every document that has content but has not been
// chunked. Failures are logged and skipped. It returns the number of
// documents chunked.
func (c *Chunker) ChunkPending(ctx context.Context) (int, error) {
	docs, err := c.documents.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}

	chunked := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return chunked, err
		}
		if doc.Chunked || !doc.HasContent() {
			continue
		}
		if _, err := c.Chunk(ctx, doc); err != nil {
			c.logger.Error("failed to chunk document", "document_id", doc.Id, "err", err)
			continue
		}
		chunked++
	}
	return chunked, nil
}
