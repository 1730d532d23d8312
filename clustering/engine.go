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

package clustering

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// TaskEmbedClusters labels usage records of cluster text embeddings.
const TaskEmbedClusters = "embed_clusters"

// Engine builds and replaces the fact clusters of documents.
type Engine struct {
	chunks   storage.ChunkRepository
	clusters storage.ClusterRepository
	embedder ai.Embedder
	config   Config
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[core.ID]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures an Engine.
type Option func(*Engine) error

// WithConfig overrides the default grouping thresholds.
func WithConfig(config Config) Option {
	return func(e *Engine) error {
		if err := config.Validate(); err != nil {
			return err
		}
		e.config = config
		return nil
	}
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a cluster engine.
func NewEngine(chunks storage.ChunkRepository, clusters storage.ClusterRepository, provider ai.AIProvider, opts ...Option) (*Engine, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if clusters == nil {
		return nil, ErrClusterRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	e := &Engine{
		chunks:   chunks,
		clusters: clusters,
		embedder: provider.Embedder(),
		config:   DefaultConfig(),
		logger:   slog.Default(),
		locks:    make(map[core.ID]*docLock),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "cluster-engine")
	return e, nil
}

// Cluster rebuilds the clusters of a document from the facts and
// embeddings of its chunks and returns the new clusters. Chunks without
// facts contribute nothing. A document with no facts ends up with no
// clusters.
func (e *Engine) Cluster(ctx context.Context, documentID core.ID) ([]*core.FactCluster, error) {
	unlock := e.lock(documentID)
	defer unlock()

	chunks, err := e.chunks.GetChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks of document %d: %w", documentID, err)
	}
	in, err := gather(documentID, chunks)
	if err != nil {
		return nil, err
	}

	groups := Group(in.vectors, e.config)
	built := make([]*core.FactCluster, len(groups))
	texts := make([]string, len(groups))
	for i, group := range groups {
		facts := make([]string, len(group))
		for j, idx := range group {
			facts[j] = in.facts[idx]
		}
		texts[i] = BulletText(facts)
		built[i] = &core.FactCluster{
			DocumentID:    documentID,
			Owner:         in.owner,
			Organizations: in.organizations,
			Facts:         facts,
			Text:          texts[i],
		}
	}

	if len(texts) > 0 {
		vectors, err := e.embedder.EmbedTexts(ai.WithCallInfo(ctx, in.owner, TaskEmbedClusters), texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed clusters of document %d: %w", documentID, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("failed to embed clusters of document %d: got %d vectors for %d texts",
				documentID, len(vectors), len(texts))
		}
		for i := range built {
			built[i].Vector = vectors[i]
		}
	}

	var deleted int
	err = e.clusters.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if deleted, err = e.clusters.DeleteClustersByDocument(ctx, documentID); err != nil {
			return err
		}
		if len(built) == 0 {
			return nil
		}
		built, err = e.clusters.AddClusters(ctx, built...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store clusters of document %d: %w", documentID, err)
	}

	e.logger.Info("clustered document",
		"document_id", documentID,
		"facts", len(in.facts),
		"clusters", len(built),
		"replaced", deleted)
	return built, nil
}

// BulletText renders facts as a bullet list, one "* fact" line each.
func BulletText(facts []string) string {
	lines := make([]string, len(facts))
	for i, fact := range facts {
		lines[i] = "* " + fact
	}
	return strings.Join(lines, "\n")
}

type gathered struct {
	owner         string
	organizations []string
	facts         []string
	vectors       [][]float32
}

// gather collects the distinct facts of a document with their
// embeddings, and the union of the chunks' organizations.
func gather(documentID core.ID, chunks []*core.Chunk) (*gathered, error) {
	in := &gathered{organizations: []string{}}
	seenFacts := make(map[string]bool)
	seenOrgs := make(map[string]bool)

	for _, chunk := range chunks {
		if in.owner == "" {
			in.owner = chunk.Owner
		}
		for _, org := range chunk.Organizations {
			if !seenOrgs[org] {
				seenOrgs[org] = true
				in.organizations = append(in.organizations, org)
			}
		}
		if len(chunk.Facts) == 0 {
			continue
		}
		if len(chunk.Embeddings) != len(chunk.Facts) {
			return nil, fmt.Errorf("%w: document %d chunk %d has %d facts and %d embeddings",
				ErrEmbeddingsMisaligned, documentID, chunk.Id, len(chunk.Facts), len(chunk.Embeddings))
		}
		for i, fact := range chunk.Facts {
			if seenFacts[fact] {
				continue
			}
			seenFacts[fact] = true
			in.facts = append(in.facts, fact)
			in.vectors = append(in.vectors, chunk.Embeddings[i])
		}
	}
	return in, nil
}

// lock serializes clustering of one document and returns the release
// function.
func (e *Engine) lock(documentID core.ID) func() {
	e.mu.Lock()
	l, ok := e.locks[documentID]
	if !ok {
		l = &docLock{}
		e.locks[documentID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, documentID)
		}
		e.mu.Unlock()
	}
}
