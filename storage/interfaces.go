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

package storage

import (
	"context"
	"time"

	"github.com/poiesic/minutes/core"
)

// Transactor runs a unit of work atomically.
type Transactor interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// Repository calls made with the context passed to fn join the
	// transaction, including calls on other repositories sharing the same
	// backend. Nested calls join the outermost transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TenantFilter restricts reads to one owner and a set of organizations.
// A fact cluster passes the filter only if it belongs to Owner, carries at
// least one organization, and every one of its organizations is listed.
type TenantFilter struct {
	Owner         string
	Organizations []string
}

// Matches reports whether a cluster passes the filter.
func (f TenantFilter) Matches(cluster *core.FactCluster) bool {
	if cluster == nil || cluster.Owner != f.Owner || len(cluster.Organizations) == 0 {
		return false
	}
	for _, org := range cluster.Organizations {
		allowed := false
		for _, o := range f.Organizations {
			if o == org {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}

// ScoredCluster is a fact cluster with the store's native relevance score.
type ScoredCluster struct {
	Cluster *core.FactCluster
	Score   float32
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Transactor
	// UpsertDocument records a discovered document. The ID is derived from
	// Owner and SourceID. A new document emits an insert event. An existing
	// document whose SourceVersion changed has its metadata refreshed and
	// emits a replace event. Otherwise the stored document is returned
	// unchanged and no event is emitted.
	UpsertDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// SetContent stores fetched content. When title, HTML or markdown
	// changed, the document is marked unchunked and an update event with
	// the content field is emitted.
	// Returns ErrNotFound if the document doesn't exist.
	SetContent(ctx context.Context, id core.ID, title, html, markdown string) error

	// MarkChunked flags the document as chunked.
	// Returns ErrNotFound if the document doesn't exist.
	MarkChunked(ctx context.Context, id core.ID) error

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns every document ordered by ID.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// Close releases resources held by the repository.
	Close() error
}

// ChunkRepository provides operations for managing chunks.
type ChunkRepository interface {
	Transactor
	// AddChunks adds chunks, generating IDs from a sequence and setting
	// InsertedAt. Each insert emits an insert event.
	// Returns ErrDuplicateKey if the document already has a chunk with the
	// same checksum.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// DeleteChunks removes chunks by their IDs, emitting a delete event for
	// each. Returns ErrNotFound if any chunk doesn't exist.
	DeleteChunks(ctx context.Context, ids ...core.ID) error

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetChunksByDocument returns a document's chunks ordered by ID.
	GetChunksByDocument(ctx context.Context, documentID core.ID) ([]*core.Chunk, error)

	// FindChunkByChecksum looks a chunk up by its (document, checksum) pair.
	// Returns ErrNotFound if no chunk matches.
	FindChunkByChecksum(ctx context.Context, documentID core.ID, checksum string) (*core.Chunk, error)

	// UpdateFacts stores extraction output and stamps ExtractedAt. Changing
	// the facts discards embeddings computed for the previous facts.
	// Emits an update event listing the fields that changed.
	UpdateFacts(ctx context.Context, id core.ID, people, organizations, facts []string) error

	// UpdateEmbeddings stores fact embeddings, which must align with the
	// chunk's facts. Emits an update event with the embeddings field when
	// the stored embeddings changed.
	UpdateEmbeddings(ctx context.Context, id core.ID, embeddings [][]float32) error

	// ListChunks returns up to limit chunks with ID greater than afterID,
	// ordered by ID.
	ListChunks(ctx context.Context, afterID core.ID, limit int) ([]*core.Chunk, error)

	// DocumentIDs returns the IDs of every document that has chunks.
	DocumentIDs(ctx context.Context) ([]core.ID, error)

	// Close releases the ID sequence.
	Close() error
}

// ClusterRepository provides operations for managing fact clusters and
// searching them.
type ClusterRepository interface {
	Transactor
	// AddClusters adds clusters, generating IDs and setting InsertedAt.
	AddClusters(ctx context.Context, clusters ...*core.FactCluster) ([]*core.FactCluster, error)

	// SetClusterVector stores the representative vector of a cluster.
	// Returns ErrNotFound if the cluster doesn't exist.
	SetClusterVector(ctx context.Context, id core.ID, vector []float32) error

	// DeleteClustersByDocument removes every cluster of a document and
	// returns how many were removed.
	DeleteClustersByDocument(ctx context.Context, documentID core.ID) (int, error)

	// DeleteAllClusters removes every cluster and returns how many were
	// removed.
	DeleteAllClusters(ctx context.Context) (int, error)

	// GetClustersByDocument returns a document's clusters ordered by ID.
	GetClustersByDocument(ctx context.Context, documentID core.ID) ([]*core.FactCluster, error)

	// DocumentIDs returns the IDs of every document that has clusters.
	DocumentIDs(ctx context.Context) ([]core.ID, error)

	// FindSimilar ranks clusters passing filter by cosine similarity to
	// vector, scaled to [0,1]. The best numCandidates are considered and at
	// most limit are returned, highest score first.
	FindSimilar(ctx context.Context, vector []float32, filter TenantFilter, numCandidates, limit int) ([]*ScoredCluster, error)

	// SearchText ranks clusters passing filter by BM25 relevance of their
	// text and organizations to query. Only clusters matching at least one
	// query term are returned, highest score first.
	SearchText(ctx context.Context, query string, filter TenantFilter, limit int) ([]*ScoredCluster, error)

	// Close releases the ID sequence.
	Close() error
}

// CheckpointRepository persists processor progress.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for a processor.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processor string) (*core.Checkpoint, error)
}

// ChangeFeed is the ordered stream of document and chunk mutations.
type ChangeFeed interface {
	// Subscribe delivers every event with a token greater than after to fn,
	// in token order, then waits for new events. It returns when ctx is
	// done or fn returns an error.
	// Returns ErrResumeTokenExpired if events after the token have been
	// pruned.
	Subscribe(ctx context.Context, after uint64, fn func(ctx context.Context, event *core.ChangeEvent) error) error

	// Head returns the token of the newest event, or zero if there is none.
	Head(ctx context.Context) (uint64, error)

	// Prune removes events with a token at or below through. Subscribers
	// resuming from an earlier token get ErrResumeTokenExpired.
	Prune(ctx context.Context, through uint64) (int, error)
}

// UsageRepository stores the usage ledger of model calls.
type UsageRepository interface {
	// RecordUsage appends a usage record.
	RecordUsage(ctx context.Context, record *core.UsageRecord) error

	// GetUsage returns an owner's records created at or after since,
	// oldest first.
	GetUsage(ctx context.Context, owner string, since time.Time) ([]*core.UsageRecord, error)
}
