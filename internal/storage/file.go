package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	apperrors "gameflow/pkg/errors"

	"go.uber.org/zap"
)

// FlowFileName is the document name inside the data directory.
const FlowFileName = "flow.json"

// FileRepository keeps the snapshot as an indented JSON file.
type FileRepository struct {
	dir    string
	path   string
	logger *zap.Logger

	mu        sync.Mutex
	lastWrite [sha256.Size]byte
}

// NewFileRepository stores flow.json under dir, creating dir if needed.
func NewFileRepository(dir string, logger *zap.Logger) (*FileRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewDatabaseError("create data dir", err)
	}
	return &FileRepository{
		dir:    dir,
		path:   filepath.Join(dir, FlowFileName),
		logger: logger.Named("file-store"),
	}, nil
}

// Path returns the location of the flow document.
func (r *FileRepository) Path() string { return r.path }

// Load implements FlowRepository.
func (r *FileRepository) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, notFound()
	}
	if err != nil {
		return Snapshot{}, apperrors.NewDatabaseError("read flow", err)
	}

	s, err := decodeSnapshot(data)
	if err != nil {
		r.logger.Warn("Ignoring unreadable flow file", zap.String("path", r.path), zap.Error(err))
		return Snapshot{}, notFound()
	}
	return s, nil
}

// Save implements FlowRepository. The document is written to a temp file and
// renamed into place so readers never see a partial write.
func (r *FileRepository) Save(_ context.Context, s Snapshot) error {
	data, err := encodeSnapshot(s)
	if err != nil {
		return apperrors.Wrap(err, "encode flow")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return apperrors.NewDatabaseError("create data dir", err)
	}
	tmp, err := os.CreateTemp(r.dir, ".flow-*.json")
	if err != nil {
		return apperrors.NewDatabaseError("write flow", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.NewDatabaseError("write flow", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewDatabaseError("write flow", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return apperrors.NewDatabaseError("write flow", err)
	}

	r.lastWrite = sha256.Sum256(data)
	return nil
}

// wroteItself reports whether data is exactly what this repository last
// wrote, so the watcher can skip its own saves.
func (r *FileRepository) wroteItself(data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sha256.Sum256(data) == r.lastWrite
}

// Close implements FlowRepository.
func (r *FileRepository) Close() error { return nil }
