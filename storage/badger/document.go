package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close is a no-op; documents use content-derived IDs.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// UpsertDocument records a discovered document.
func (r *DocumentRepository) UpsertDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	var stored *core.Document
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		id := core.DocumentID(doc.Owner, doc.SourceID)
		old, err := readDocument(tx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		op := core.OperationInsert
		switch {
		case old == nil:
			stored = &core.Document{
				Id:            id,
				SourceID:      doc.SourceID,
				Owner:         doc.Owner,
				Title:         doc.Title,
				SourceURI:     doc.SourceURI,
				SourceVersion: doc.SourceVersion,
				InsertedAt:    now,
				UpdatedAt:     now,
			}
		case old.SourceVersion != doc.SourceVersion:
			op = core.OperationReplace
			stored = old
			stored.SourceVersion = doc.SourceVersion
			stored.SourceURI = doc.SourceURI
			if doc.Title != "" {
				stored.Title = doc.Title
			}
			stored.UpdatedAt = now
		default:
			stored = old
			return nil
		}

		if err := writeDocument(tx, stored); err != nil {
			return err
		}
		return r.backend.appendEvent(tx, &core.ChangeEvent{
			Operation:  op,
			Collection: core.CollectionDocuments,
			DocumentID: stored.Id,
			Fields:     []string{core.FieldSourceVersion},
		})
	}, true)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// SetContent stores fetched content.
func (r *DocumentRepository) SetContent(ctx context.Context, id core.ID, title, html, markdown string) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Title == title && doc.HTML == html && doc.Markdown == markdown {
			return nil
		}

		fields := []string{core.FieldContent}
		if doc.Chunked {
			fields = append(fields, core.FieldChunked)
		}
		doc.Title = title
		doc.HTML = html
		doc.Markdown = markdown
		doc.Chunked = false
		doc.UpdatedAt = time.Now().UTC()

		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return r.backend.appendEvent(tx, &core.ChangeEvent{
			Operation:  core.OperationUpdate,
			Collection: core.CollectionDocuments,
			DocumentID: id,
			Fields:     fields,
		})
	}, true)
}

// MarkChunked flags the document as chunked.
func (r *DocumentRepository) MarkChunked(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Chunked {
			return nil
		}

		doc.Chunked = true
		doc.UpdatedAt = time.Now().UTC()
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return r.backend.appendEvent(tx, &core.ChangeEvent{
			Operation:  core.OperationUpdate,
			Collection: core.CollectionDocuments,
			DocumentID: id,
			Fields:     []string{core.FieldChunked},
		})
	}, true)
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, id)
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

// ListDocuments returns every document ordered by ID.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(documentPrefix), nil, func(_, value []byte) (bool, error) {
			doc, err := storage.UnmarshalDocument(value)
			if err != nil {
				return false, err
			}
			results = append(results, doc)
			return true, nil
		})
	}, false)
	return results, err
}

// readDocument reads a document from the transaction, returning nil if it
// doesn't exist.
func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	value, err := getValue(tx, makeDocumentKey(id))
	if err != nil || value == nil {
		return nil, err
	}
	return storage.UnmarshalDocument(value)
}

func writeDocument(tx *badger.Txn, doc *core.Document) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(makeDocumentKey(doc.Id), value)
}
