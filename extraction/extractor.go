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

package extraction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// Model call tasks recorded in the usage ledger.
const (
	TaskExtractFacts = "fact_extraction"
	TaskEmbedFacts   = "embed_facts"
)

// Extractor extracts and embeds the facts of chunks.
type Extractor struct {
	chunks    storage.ChunkRepository
	generator ai.Generator
	embedder  ai.Embedder
	config    Config
	pool      *ants.Pool
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithConfig replaces the default retry and sweep settings.
func WithConfig(config Config) Option {
	return func(e *Extractor) error {
		if err := config.Validate(); err != nil {
			return err
		}
		e.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewExtractor creates a new Extractor. Call Release when done.
func NewExtractor(chunks storage.ChunkRepository, provider ai.AIProvider, opts ...Option) (*Extractor, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	e := &Extractor{
		chunks:    chunks,
		generator: provider.Generator(),
		embedder:  provider.Embedder(),
		config:    DefaultConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "extractor")

	pool, err := ants.NewPool(e.config.Workers)
	if err != nil {
		return nil, err
	}
	e.pool = pool
	return e, nil
}

// Release frees the worker pool.
func (e *Extractor) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// Extract prompts the model for the chunk's fact sheet, retrying failed
// calls and invalid replies, and stores people, organizations and the
// flattened facts on the chunk. When every attempt fails the chunk is left
// unchanged.
func (e *Extractor) Extract(ctx context.Context, chunk *core.Chunk) ([]string, error) {
	if err := core.ValidateChunk(chunk); err != nil {
		return nil, err
	}
	ctx = ai.WithCallInfo(ctx, chunk.Owner, TaskExtractFacts)
	input := BuildContext(chunk)

	var sheet *FactSheet
	attempt := 0
	err := ai.RetryWithBackoff(ctx, func() error {
		attempt++
		reply, err := e.generator.Generate(ctx, SystemPrompt, input)
		if err != nil {
			e.logger.Warn("fact extraction call failed", "chunk_id", chunk.Id, "attempt", attempt, "err", err)
			return err
		}
		parsed, err := ParseFactSheet(reply)
		if err != nil {
			e.logger.Warn("invalid fact sheet", "chunk_id", chunk.Id, "attempt", attempt, "err", err)
			return err
		}
		sheet = parsed
		return nil
	}, e.config.MaxAttempts, e.config.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d after %d attempts: %w", ErrExtractionFailed, chunk.Id, attempt, err)
	}

	facts := sheet.Facts()
	if err := e.chunks.UpdateFacts(ctx, chunk.Id, sheet.People, sheet.Organizations, facts); err != nil {
		return nil, fmt.Errorf("failed to store facts of chunk %d: %w", chunk.Id, err)
	}

	e.logger.Debug("extracted facts", "chunk_id", chunk.Id, "facts", len(facts), "attempts", attempt)
	return facts, nil
}

// Embed embeds facts and stores the vectors on the chunk, aligned by
// index. Chunks without facts are left as they are.
func (e *Extractor) Embed(ctx context.Context, chunkID core.ID, facts []string, owner string) error {
	if len(facts) == 0 {
		return nil
	}
	ctx = ai.WithCallInfo(ctx, owner, TaskEmbedFacts)

	var vectors [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = e.embedder.EmbedTexts(ctx, facts)
		return err
	}, e.config.MaxAttempts, e.config.RetryDelay)
	if err != nil {
		return fmt.Errorf("failed to embed facts of chunk %d: %w", chunkID, err)
	}
	if len(vectors) != len(facts) {
		return fmt.Errorf("%w: chunk %d has %d facts, embedder returned %d vectors",
			storage.ErrMisalignedEmbeddings, chunkID, len(facts), len(vectors))
	}

	if err := e.chunks.UpdateEmbeddings(ctx, chunkID, vectors); err != nil {
		return fmt.Errorf("failed to store embeddings of chunk %d: %w", chunkID, err)
	}
	e.logger.Debug("embedded facts", "chunk_id", chunkID, "count", len(vectors))
	return nil
}

// Process extracts the chunk's facts and then embeds them.
func (e *Extractor) Process(ctx context.Context, chunk *core.Chunk) error {
	facts, err := e.Extract(ctx, chunk)
	if err != nil {
		return err
	}
	return e.Embed(ctx, chunk.Id, facts, chunk.Owner)
}
