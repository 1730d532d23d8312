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

package search

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// TaskEmbedQuery labels usage records of query embeddings.
const TaskEmbedQuery = "embed_query"

// Searcher runs hybrid searches over fact clusters.
type Searcher struct {
	clusters storage.ClusterRepository
	embedder ai.Embedder
	config   Config
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithConfig overrides the default retrieval settings.
func WithConfig(config Config) Option {
	return func(s *Searcher) error {
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(clusters storage.ClusterRepository, provider ai.AIProvider, opts ...Option) (*Searcher, error) {
	if clusters == nil {
		return nil, ErrClusterRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		clusters: clusters,
		embedder: provider.Embedder(),
		config:   DefaultConfig(),
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// HybridSearch returns up to topK clusters of owner relevant to query.
// Only clusters whose organizations all belong to orgs are considered, so
// an empty orgs returns nothing. A topK of zero or less uses Config.TopK.
func (s *Searcher) HybridSearch(ctx context.Context, query, owner string, orgs []string, topK int) ([]*core.RetrievalResult, error) {
	return s.HybridSearchWithMonitor(ctx, query, owner, orgs, topK, nil)
}

// HybridSearchWithMonitor is HybridSearch reporting each stage to monitor.
// Every search that reaches Start also reaches Finish, with no results if
// it failed.
func (s *Searcher) HybridSearchWithMonitor(ctx context.Context, query, owner string, orgs []string, topK int, monitor SearchMonitor) ([]*core.RetrievalResult, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if topK <= 0 {
		topK = s.config.TopK
	}

	monitor.Start(query, owner, orgs)
	results, err := s.search(ctx, query, owner, orgs, topK, monitor)
	if err != nil {
		monitor.Finish(nil)
		return nil, err
	}
	monitor.Finish(results)
	return results, nil
}

func (s *Searcher) search(ctx context.Context, query, owner string, orgs []string, topK int, monitor SearchMonitor) ([]*core.RetrievalResult, error) {
	if len(orgs) == 0 || strings.TrimSpace(query) == "" {
		return []*core.RetrievalResult{}, nil
	}
	filter := storage.TenantFilter{Owner: owner, Organizations: orgs}

	// 1. Vector search
	embedding, err := s.embedder.EmbedText(ai.WithCallInfo(ctx, owner, TaskEmbedQuery), query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	vectorHits, err := s.clusters.FindSimilar(ctx, embedding, filter, max(s.config.NumCandidates, topK), topK)
	if err != nil {
		s.logger.Error("error querying for similar clusters", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(vectorHits)

	// 2. Keyword search
	keywordHits, err := s.clusters.SearchText(ctx, query, filter, max(s.config.NumCandidates, topK))
	if err != nil {
		s.logger.Error("error running keyword search", "err", err)
		return nil, err
	}
	var maxKeyword float32
	keywordScores := make(map[core.ID]float32, len(keywordHits))
	for _, hit := range keywordHits {
		keywordScores[hit.Cluster.Id] = hit.Score
		maxKeyword = max(maxKeyword, hit.Score)
	}
	monitor.AfterKeywordSearch(keywordHits, maxKeyword)

	// 3. Fuse in vector order
	results := make([]*core.RetrievalResult, 0, len(vectorHits))
	for _, hit := range vectorHits {
		var keyword float32
		if maxKeyword > 0 {
			keyword = keywordScores[hit.Cluster.Id] / maxKeyword
		}
		result := &core.RetrievalResult{
			Cluster:      hit.Cluster,
			Score:        s.config.VectorWeight*hit.Score + s.config.KeywordWeight*keyword,
			VectorScore:  hit.Score,
			KeywordScore: keyword,
		}
		monitor.Fused(result)
		results = append(results, result)
	}

	if s.config.SortByScore {
		slices.SortStableFunc(results, func(a, b *core.RetrievalResult) int {
			switch {
			case a.Score > b.Score:
				return -1
			case a.Score < b.Score:
				return 1
			}
			return 0
		})
	}
	s.logger.Debug("hybrid search complete",
		"owner", owner,
		"vector_hits", len(vectorHits),
		"keyword_hits", len(keywordHits),
		"results", len(results))
	return results, nil
}
