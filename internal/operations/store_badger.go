package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	apperrors "aquaexport/internal/errors"
)

var runKeyPrefix = []byte("run/")

// BadgerRunStore keeps runs, matrices included, in a BadgerDB directory so
// merges can be retried after a restart.
type BadgerRunStore struct {
	db *badger.DB
}

// BadgerConfig holds BadgerDB configuration
type BadgerConfig struct {
	// Path to store database files
	Path string
	// InMemory mode (for testing)
	InMemory bool
}

// NewBadgerRunStore opens or creates a run store
func NewBadgerRunStore(cfg BadgerConfig) (*BadgerRunStore, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open run store", err)
	}
	return &BadgerRunStore{db: db}, nil
}

func runKey(id string) []byte {
	return append(append([]byte(nil), runKeyPrefix...), id...)
}

// Create stores a new run
func (s *BadgerRunStore) Create(ctx context.Context, run *RunResult) error {
	return s.put(ctx, run, false)
}

// Update replaces a stored run
func (s *BadgerRunStore) Update(ctx context.Context, run *RunResult) error {
	return s.put(ctx, run, true)
}

func (s *BadgerRunStore) put(ctx context.Context, run *RunResult, mustExist bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := runKey(run.ID)
		_, err := txn.Get(key)
		switch {
		case err == nil && !mustExist:
			return apperrors.NewStorageError("run "+run.ID+" already exists", nil)
		case errors.Is(err, badger.ErrKeyNotFound) && mustExist:
			return runNotFound(run.ID)
		case err != nil && !errors.Is(err, badger.ErrKeyNotFound):
			return apperrors.NewStorageError("failed to read run "+run.ID, err)
		}
		if err := txn.Set(key, value); err != nil {
			return apperrors.NewStorageError("failed to write run "+run.ID, err)
		}
		return nil
	})
}

// Get retrieves a run with its matrix
func (s *BadgerRunStore) Get(ctx context.Context, id string) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var run RunResult
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return runNotFound(id)
		}
		if err != nil {
			return apperrors.NewStorageError("failed to read run "+id, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns run summaries matching the filter, newest first
func (s *BadgerRunStore) List(ctx context.Context, filter RunFilter) ([]*RunResult, error) {
	var result []*RunResult
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var run RunResult
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return fmt.Errorf("failed to decode run %s: %w", it.Item().Key(), err)
			}
			if filter.match(&run) {
				result = append(result, run.Summary())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return filter.apply(result), nil
}

// Close closes the database
func (s *BadgerRunStore) Close() error {
	return s.db.Close()
}
