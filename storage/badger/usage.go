package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// UsageRepository implements storage.UsageRepository for BadgerDB. It also
// satisfies ai.UsageRecorder so providers can write to it directly.
type UsageRepository struct {
	backend *Backend
}

var _ storage.UsageRepository = (*UsageRepository)(nil)

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(backend *Backend) *UsageRepository {
	return &UsageRepository{backend: backend}
}

// RecordUsage appends a usage record.
func (r *UsageRepository) RecordUsage(ctx context.Context, record *core.UsageRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		value, err := storage.MarshalUsageRecord(record)
		if err != nil {
			return err
		}
		return tx.Set(makeUsageKey(record), value)
	}, true)
}

// GetUsage returns an owner's records created at or after since, oldest
// first.
func (r *UsageRepository) GetUsage(ctx context.Context, owner string, since time.Time) ([]*core.UsageRecord, error) {
	var results []*core.UsageRecord
	err := r.backend.WithTx(ctx, func(tx *badger.Txn) error {
		prefix := makePartialUsageKey(owner, time.Time{})
		seek := makePartialUsageKey(owner, since)
		return scanPrefix(tx, prefix, seek, func(_, value []byte) (bool, error) {
			record, err := storage.UnmarshalUsageRecord(value)
			if err != nil {
				return false, err
			}
			results = append(results, record)
			return true, nil
		})
	}, false)
	return results, err
}
