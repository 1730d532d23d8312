package badger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
	"github.com/poiesic/minutes/textindex"
	"github.com/poiesic/minutes/vecmath"
)

const (
	textField         = "text"
	organizationField = "organizations"

	// deleteBatchSize bounds the keys removed per transaction when clearing
	// every cluster.
	deleteBatchSize = 1000
)

// DefaultTextWeights are the BM25 field weights used by SearchText.
var DefaultTextWeights = map[string]float64{
	textField:         1.0,
	organizationField: 0.5,
}

// ClusterRepository implements storage.ClusterRepository for BadgerDB.
type ClusterRepository struct {
	backend     *Backend
	idSeq       *badger.Sequence
	textWeights map[string]float64
}

var _ storage.ClusterRepository = (*ClusterRepository)(nil)

// NewClusterRepository creates a new ClusterRepository.
func NewClusterRepository(backend *Backend) (*ClusterRepository, error) {
	idSeq, err := backend.GetSequence(clusterIDSeq)
	if err != nil {
		return nil, err
	}

	return &ClusterRepository{
		backend:     backend,
		idSeq:       idSeq,
		textWeights: DefaultTextWeights,
	}, nil
}

// SetTextWeights replaces the BM25 field weights. Known fields are "text"
// and "organizations".
func (r *ClusterRepository) SetTextWeights(weights map[string]float64) {
	r.textWeights = weights
}

// Close releases the ID sequence.
func (r *ClusterRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *ClusterRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddClusters adds one or more clusters to storage.
func (r *ClusterRepository) AddClusters(ctx context.Context, clusters ...*core.FactCluster) ([]*core.FactCluster, error) {
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, cluster := range clusters {
			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			cluster.Id = id
			cluster.InsertedAt = time.Now().UTC()
			if len(cluster.Vector) > 0 {
				cluster.Vector = vecmath.Normalize(cluster.Vector)
			}

			if err := writeCluster(tx, cluster); err != nil {
				return err
			}
			if err := tx.Set(makeClusterDocumentKey(cluster.DocumentID, cluster.Id), storage.MarshalID(cluster.Id)); err != nil {
				return err
			}
			if err := tx.Set(makeClusterOwnerKey(cluster.Owner, cluster.Id), storage.MarshalID(cluster.Id)); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return clusters, nil
}

// SetClusterVector stores the representative vector of a cluster,
// normalized to unit length so similarity is a dot product.
func (r *ClusterRepository) SetClusterVector(ctx context.Context, id core.ID, vector []float32) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		cluster, err := readCluster(tx, id)
		if err != nil {
			return err
		}
		if cluster == nil {
			return storage.ErrNotFound
		}
		cluster.Vector = vecmath.Normalize(vector)
		return writeCluster(tx, cluster)
	}, true)
}

// DeleteClustersByDocument removes every cluster of a document.
func (r *ClusterRepository) DeleteClustersByDocument(ctx context.Context, documentID core.ID) (int, error) {
	deleted := 0
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var ids []core.ID
		prefix := makeIDKey(clusterDocumentPrefix, documentID)
		if err := scanPrefix(tx, prefix, nil, func(_, value []byte) (bool, error) {
			id, err := storage.UnmarshalID(value)
			if err != nil {
				return false, err
			}
			ids = append(ids, id)
			return true, nil
		}); err != nil {
			return err
		}

		for _, id := range ids {
			if err := deleteCluster(tx, id); err != nil {
				return err
			}
			deleted++
		}
		return nil
	}, true)
	return deleted, err
}

// DeleteAllClusters removes every cluster, committing in batches.
func (r *ClusterRepository) DeleteAllClusters(ctx context.Context) (int, error) {
	total := 0
	for {
		var ids []core.ID
		err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
			return scanPrefix(tx, []byte(clusterPrefix), nil, func(key, _ []byte) (bool, error) {
				ids = append(ids, idAt(key, len(clusterPrefix)))
				return len(ids) < deleteBatchSize, nil
			})
		}, false)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		err = r.backend.WithTx(ctx, func(tx *badger.Txn) error {
			for _, id := range ids {
				if err := deleteCluster(tx, id); err != nil {
					return err
				}
			}
			return nil
		}, true)
		if err != nil {
			return total, err
		}
		total += len(ids)
	}
}

// GetClustersByDocument returns a document's clusters ordered by ID.
func (r *ClusterRepository) GetClustersByDocument(ctx context.Context, documentID core.ID) ([]*core.FactCluster, error) {
	var results []*core.FactCluster
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		prefix := makeIDKey(clusterDocumentPrefix, documentID)
		return scanPrefix(tx, prefix, nil, func(_, value []byte) (bool, error) {
			id, err := storage.UnmarshalID(value)
			if err != nil {
				return false, err
			}
			cluster, err := readCluster(tx, id)
			if err != nil {
				return false, err
			}
			if cluster != nil {
				results = append(results, cluster)
			}
			return true, nil
		})
	}, false)
	return results, err
}

// DocumentIDs returns the IDs of every document that has clusters.
func (r *ClusterRepository) DocumentIDs(ctx context.Context) ([]core.ID, error) {
	return r.backend.indexedDocumentIDs(ctx, clusterDocumentPrefix)
}

// FindSimilar ranks the tenant's clusters by cosine similarity to vector.
// Scores are mapped from [-1,1] to [0,1] as (1+cos)/2.
func (r *ClusterRepository) FindSimilar(ctx context.Context, vector []float32, filter storage.TenantFilter, numCandidates, limit int) ([]*storage.ScoredCluster, error) {
	if numCandidates <= 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: numCandidates and limit must be positive", storage.ErrInvalidQuery)
	}

	clusters, err := r.tenantClusters(ctx, filter)
	if err != nil {
		return nil, err
	}

	query := vecmath.Normalize(vector)
	results := make([]*storage.ScoredCluster, 0, len(clusters))
	for _, cluster := range clusters {
		if len(cluster.Vector) == 0 {
			continue
		}
		similarity := vecmath.Dot(query, cluster.Vector)
		score := min(max((1+similarity)/2, 0), 1)
		results = append(results, &storage.ScoredCluster{Cluster: cluster, Score: score})
	}

	sortScored(results)
	if len(results) > numCandidates {
		results = results[:numCandidates]
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchText ranks the tenant's clusters by BM25 relevance to query.
func (r *ClusterRepository) SearchText(ctx context.Context, query string, filter storage.TenantFilter, limit int) ([]*storage.ScoredCluster, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	terms := textindex.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	clusters, err := r.tenantClusters(ctx, filter)
	if err != nil {
		return nil, err
	}

	index := textindex.NewIndex(r.textWeights)
	byID := make(map[uint64]*core.FactCluster, len(clusters))
	for _, cluster := range clusters {
		byID[uint64(cluster.Id)] = cluster
		index.Add(uint64(cluster.Id), map[string][]string{
			textField:         textindex.TokenizeMarkdown(cluster.Text),
			organizationField: textindex.Tokenize(strings.Join(cluster.Organizations, " ")),
		})
	}

	hits := index.Search(terms, limit)
	results := make([]*storage.ScoredCluster, 0, len(hits))
	for _, hit := range hits {
		results = append(results, &storage.ScoredCluster{
			Cluster: byID[hit.ID],
			Score:   float32(hit.Score),
		})
	}
	return results, nil
}

// tenantClusters loads the owner's clusters through the owner index and
// keeps those passing the organization filter.
func (r *ClusterRepository) tenantClusters(ctx context.Context, filter storage.TenantFilter) ([]*core.FactCluster, error) {
	if filter.Owner == "" || len(filter.Organizations) == 0 {
		return nil, nil
	}

	var results []*core.FactCluster
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		prefix := makePartialClusterOwnerKey(filter.Owner)
		return scanPrefix(tx, prefix, nil, func(_, value []byte) (bool, error) {
			id, err := storage.UnmarshalID(value)
			if err != nil {
				return false, err
			}
			cluster, err := readCluster(tx, id)
			if err != nil {
				return false, err
			}
			if filter.Matches(cluster) {
				results = append(results, cluster)
			}
			return true, nil
		})
	}, false)
	return results, err
}

// sortScored orders by descending score, then ascending ID.
func sortScored(results []*storage.ScoredCluster) {
	slices.SortStableFunc(results, func(a, b *storage.ScoredCluster) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.Cluster.Id < b.Cluster.Id {
			return -1
		}
		if a.Cluster.Id > b.Cluster.Id {
			return 1
		}
		return 0
	})
}

// readCluster reads a cluster from the transaction, returning nil if it
// doesn't exist.
func readCluster(tx *badger.Txn, id core.ID) (*core.FactCluster, error) {
	value, err := getValue(tx, makeClusterKey(id))
	if err != nil || value == nil {
		return nil, err
	}
	return storage.UnmarshalFactCluster(value)
}

func writeCluster(tx *badger.Txn, cluster *core.FactCluster) error {
	value, err := storage.MarshalFactCluster(cluster)
	if err != nil {
		return err
	}
	return tx.Set(makeClusterKey(cluster.Id), value)
}

// deleteCluster removes a cluster and its index entries.
func deleteCluster(tx *badger.Txn, id core.ID) error {
	cluster, err := readCluster(tx, id)
	if err != nil {
		return err
	}
	if cluster == nil {
		return nil
	}
	if err := tx.Delete(makeClusterDocumentKey(cluster.DocumentID, cluster.Id)); err != nil {
		return err
	}
	if err := tx.Delete(makeClusterOwnerKey(cluster.Owner, cluster.Id)); err != nil {
		return err
	}
	return tx.Delete(makeClusterKey(cluster.Id))
}
