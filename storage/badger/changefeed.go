package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

const (
	defaultPollInterval = time.Second
	feedBatchSize       = 256
)

// ChangeFeed implements storage.ChangeFeed over the event log written by
// the repositories. New events are detected through a BadgerDB key
// subscription, with a periodic poll as a fallback.
type ChangeFeed struct {
	backend      *Backend
	pollInterval time.Duration
	logger       *slog.Logger
}

var _ storage.ChangeFeed = (*ChangeFeed)(nil)

// NewChangeFeed creates a new ChangeFeed.
func NewChangeFeed(backend *Backend) *ChangeFeed {
	return &ChangeFeed{
		backend:      backend,
		pollInterval: defaultPollInterval,
		logger:       backend.logger.With("component", "changefeed"),
	}
}

// SetPollInterval changes how often the feed polls for events it may have
// missed notifications for.
func (f *ChangeFeed) SetPollInterval(d time.Duration) {
	if d > 0 {
		f.pollInterval = d
	}
}

// Subscribe delivers events with a token greater than after to fn, in order.
func (f *ChangeFeed) Subscribe(ctx context.Context, after uint64, fn func(ctx context.Context, event *core.ChangeEvent) error) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	notify := make(chan struct{}, 1)
	subErr := make(chan error, 1)
	go func() {
		subErr <- f.backend.db.Subscribe(subCtx, func(_ *badger.KVList) error {
			select {
			case notify <- struct{}{}:
			default:
			}
			return nil
		}, []pb.Match{{Prefix: []byte(eventPrefix)}})
	}()

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	cursor := after
	for {
		events, err := f.readAfter(cursor, feedBatchSize)
		if err != nil {
			return err
		}
		for _, event := range events {
			if err := fn(ctx, event); err != nil {
				return err
			}
			cursor = event.Token
		}
		if len(events) == feedBatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-notify:
		case <-ticker.C:
		case err := <-subErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return fmt.Errorf("change subscription failed: %w", err)
			}
			subErr = nil
		}
	}
}

// readAfter returns up to limit events following token. It fails with
// ErrResumeTokenExpired if events after token have been pruned.
func (f *ChangeFeed) readAfter(token uint64, limit int) ([]*core.ChangeEvent, error) {
	var events []*core.ChangeEvent
	err := f.backend.db.View(func(tx *badger.Txn) error {
		floor, err := readFloor(tx)
		if err != nil {
			return err
		}
		if token < floor {
			return fmt.Errorf("%w: token %d is older than %d", storage.ErrResumeTokenExpired, token, floor)
		}

		seek := makeEventKey(token + 1)
		return scanPrefix(tx, []byte(eventPrefix), seek, func(_, value []byte) (bool, error) {
			event, err := storage.UnmarshalChangeEvent(value)
			if err != nil {
				return false, err
			}
			events = append(events, event)
			return len(events) < limit, nil
		})
	})
	return events, err
}

// Head returns the token of the newest event.
func (f *ChangeFeed) Head(ctx context.Context) (uint64, error) {
	var head uint64
	err := f.backend.WithTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = []byte(eventPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the largest possible token in the prefix.
		iter.Seek(append([]byte(eventPrefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff))
		if iter.Valid() {
			head = uint64(idAt(iter.Item().Key(), len(eventPrefix)))
			return nil
		}
		var err error
		head, err = readFloor(tx)
		return err
	}, false)
	return head, err
}

// Prune removes events with a token at or below through.
func (f *ChangeFeed) Prune(ctx context.Context, through uint64) (int, error) {
	pruned := 0
	for {
		var keys [][]byte
		err := f.backend.WithTx(ctx, func(tx *badger.Txn) error {
			return scanPrefix(tx, []byte(eventPrefix), nil, func(key, _ []byte) (bool, error) {
				if uint64(idAt(key, len(eventPrefix))) > through {
					return false, nil
				}
				keys = append(keys, key)
				return len(keys) < deleteBatchSize, nil
			})
		}, false)
		if err != nil {
			return pruned, err
		}

		err = f.backend.WithTx(ctx, func(tx *badger.Txn) error {
			for _, key := range keys {
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
			floor, err := readFloor(tx)
			if err != nil {
				return err
			}
			if through > floor {
				return tx.Set([]byte(eventFloorKey), binary.BigEndian.AppendUint64(nil, through))
			}
			return nil
		}, true)
		if err != nil {
			return pruned, err
		}
		pruned += len(keys)
		if len(keys) < deleteBatchSize {
			if pruned > 0 {
				f.logger.Debug("pruned change events", "through", through, "count", pruned)
			}
			return pruned, nil
		}
	}
}

// readFloor returns the highest pruned token.
func readFloor(tx *badger.Txn) (uint64, error) {
	value, err := getValue(tx, []byte(eventFloorKey))
	if err != nil || value == nil {
		return 0, err
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("%w: event floor", storage.ErrTruncatedData)
	}
	return binary.BigEndian.Uint64(value), nil
}
