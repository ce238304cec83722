package storage

import (
	"context"
	"errors"
	"os"

	apperrors "gameflow/pkg/errors"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var badgerFlowKey = []byte("flow/snapshot")

// BadgerRepository keeps the snapshot under a single key in BadgerDB.
type BadgerRepository struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerRepository opens a database at path. An empty path opens an
// in-memory database.
func NewBadgerRepository(path string, logger *zap.Logger) (*BadgerRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, apperrors.NewDatabaseError("create badger dir", err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.NewDatabaseError("open badger", err)
	}
	return &BadgerRepository{db: db, logger: logger.Named("badger-store")}, nil
}

// Load implements FlowRepository.
func (r *BadgerRepository) Load(_ context.Context) (Snapshot, error) {
	var body []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerFlowKey)
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Snapshot{}, notFound()
	}
	if err != nil {
		return Snapshot{}, apperrors.NewDatabaseError("load flow", err)
	}

	s, err := decodeSnapshot(body)
	if err != nil {
		r.logger.Warn("Ignoring unreadable snapshot value", zap.Error(err))
		return Snapshot{}, notFound()
	}
	return s, nil
}

// Save implements FlowRepository.
func (r *BadgerRepository) Save(_ context.Context, s Snapshot) error {
	body, err := encodeSnapshot(s)
	if err != nil {
		return apperrors.Wrap(err, "encode flow")
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerFlowKey, body)
	})
	if err != nil {
		return apperrors.NewDatabaseError("save flow", err)
	}
	return nil
}

// Close implements FlowRepository.
func (r *BadgerRepository) Close() error {
	return r.db.Close()
}
