package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddChunks adds one or more chunks to storage.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			checksumKey := makeChunkChecksumKey(chunk.DocumentID, chunk.Checksum)
			existing, err := getValue(tx, checksumKey)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%w: document %d already has checksum %s", storage.ErrDuplicateKey, chunk.DocumentID, chunk.Checksum)
			}

			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			chunk.Id = id
			chunk.InsertedAt = time.Now().UTC()
			chunk.UpdatedAt = chunk.InsertedAt

			if err := writeChunk(tx, chunk); err != nil {
				return err
			}
			if err := tx.Set(makeChunkDocumentKey(chunk.DocumentID, chunk.Id), storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
			if err := tx.Set(checksumKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
			if err := r.backend.appendEvent(tx, &core.ChangeEvent{
				Operation:  core.OperationInsert,
				Collection: core.CollectionChunks,
				DocumentID: chunk.DocumentID,
				ChunkID:    chunk.Id,
			}); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteChunks removes chunks by their IDs.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := readChunk(tx, id)
			if err != nil {
				return err
			}
			if chunk == nil {
				return storage.ErrNotFound
			}

			if err := tx.Delete(makeChunkDocumentKey(chunk.DocumentID, chunk.Id)); err != nil {
				return err
			}
			if err := tx.Delete(makeChunkChecksumKey(chunk.DocumentID, chunk.Checksum)); err != nil {
				return err
			}
			if err := tx.Delete(makeChunkKey(chunk.Id)); err != nil {
				return err
			}
			if err := r.backend.appendEvent(tx, &core.ChangeEvent{
				Operation:  core.OperationDelete,
				Collection: core.CollectionChunks,
				DocumentID: chunk.DocumentID,
				ChunkID:    chunk.Id,
			}); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readChunk(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetChunksByDocument returns a document's chunks ordered by ID.
func (r *ChunkRepository) GetChunksByDocument(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		prefix := makeIDKey(chunkDocumentPrefix, documentID)
		return scanPrefix(tx, prefix, nil, func(_, value []byte) (bool, error) {
			id, err := storage.UnmarshalID(value)
			if err != nil {
				return false, err
			}
			chunk, err := readChunk(tx, id)
			if err != nil {
				return false, err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
			return true, nil
		})
	}, false)
	return results, err
}

// FindChunkByChecksum looks a chunk up by its (document, checksum) pair.
func (r *ChunkRepository) FindChunkByChecksum(ctx context.Context, documentID core.ID, checksum string) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		value, err := getValue(tx, makeChunkChecksumKey(documentID, checksum))
		if err != nil {
			return err
		}
		if value == nil {
			return storage.ErrNotFound
		}
		id, err := storage.UnmarshalID(value)
		if err != nil {
			return err
		}
		if result, err = readChunk(tx, id); err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// UpdateFacts stores extraction output on a chunk.
func (r *ChunkRepository) UpdateFacts(ctx context.Context, id core.ID, people, organizations, facts []string) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		chunk, err := readChunk(tx, id)
		if err != nil {
			return err
		}
		if chunk == nil {
			return storage.ErrNotFound
		}

		var fields []string
		if !slices.Equal(chunk.People, people) {
			fields = append(fields, core.FieldPeople)
		}
		if !slices.Equal(chunk.Organizations, organizations) {
			fields = append(fields, core.FieldOrganizations)
		}
		if !slices.Equal(chunk.Facts, facts) || !chunk.HasFacts() {
			fields = append(fields, core.FieldFacts)
			chunk.Embeddings = nil
		}

		chunk.People = people
		chunk.Organizations = organizations
		chunk.Facts = facts
		chunk.ExtractedAt = time.Now().UTC()
		chunk.UpdatedAt = chunk.ExtractedAt
		if err := writeChunk(tx, chunk); err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		return r.backend.appendEvent(tx, &core.ChangeEvent{
			Operation:  core.OperationUpdate,
			Collection: core.CollectionChunks,
			DocumentID: chunk.DocumentID,
			ChunkID:    chunk.Id,
			Fields:     fields,
		})
	}, true)
}

// UpdateEmbeddings stores fact embeddings on a chunk.
func (r *ChunkRepository) UpdateEmbeddings(ctx context.Context, id core.ID, embeddings [][]float32) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		chunk, err := readChunk(tx, id)
		if err != nil {
			return err
		}
		if chunk == nil {
			return storage.ErrNotFound
		}
		if len(embeddings) != len(chunk.Facts) {
			return fmt.Errorf("%w: chunk %d has %d facts, got %d embeddings",
				storage.ErrMisalignedEmbeddings, id, len(chunk.Facts), len(embeddings))
		}
		if slices.EqualFunc(chunk.Embeddings, embeddings, slices.Equal[[]float32]) {
			return nil
		}

		chunk.Embeddings = embeddings
		chunk.UpdatedAt = time.Now().UTC()
		if err := writeChunk(tx, chunk); err != nil {
			return err
		}
		return r.backend.appendEvent(tx, &core.ChangeEvent{
			Operation:  core.OperationUpdate,
			Collection: core.CollectionChunks,
			DocumentID: chunk.DocumentID,
			ChunkID:    chunk.Id,
			Fields:     []string{core.FieldEmbeddings},
		})
	}, true)
}

// ListChunks returns up to limit chunks with ID greater than afterID.
func (r *ChunkRepository) ListChunks(ctx context.Context, afterID core.ID, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var results []*core.Chunk
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		seek := makeChunkKey(afterID + 1)
		return scanPrefix(tx, []byte(chunkPrefix), seek, func(_, value []byte) (bool, error) {
			chunk, err := storage.UnmarshalChunk(value)
			if err != nil {
				return false, err
			}
			results = append(results, chunk)
			return len(results) < limit, nil
		})
	}, false)
	return results, err
}

// DocumentIDs returns the IDs of every document that has chunks.
func (r *ChunkRepository) DocumentIDs(ctx context.Context) ([]core.ID, error) {
	return r.backend.indexedDocumentIDs(ctx, chunkDocumentPrefix)
}

// indexedDocumentIDs returns the distinct document IDs of a
// prefix:documentID:childID index.
func (b *Backend) indexedDocumentIDs(ctx context.Context, prefix string) ([]core.ID, error) {
	var ids []core.ID
	err := b.WithTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			id := idAt(iter.Item().Key(), len(prefix))
			if len(ids) == 0 || ids[len(ids)-1] != id {
				ids = append(ids, id)
			}
		}
		return nil
	}, false)
	return ids, err
}

// readChunk reads a chunk from the transaction, returning nil if it doesn't
// exist.
func readChunk(tx *badger.Txn, id core.ID) (*core.Chunk, error) {
	value, err := getValue(tx, makeChunkKey(id))
	if err != nil || value == nil {
		return nil, err
	}
	return storage.UnmarshalChunk(value)
}

func writeChunk(tx *badger.Txn, chunk *core.Chunk) error {
	value, err := storage.MarshalChunk(chunk)
	if err != nil {
		return err
	}
	return tx.Set(makeChunkKey(chunk.Id), value)
}
