package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	apperrors "gameflow/pkg/errors"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 200 * time.Millisecond

// FileWatcher reports edits made to flow.json by anything other than the
// repository itself, e.g. a user editing the file by hand.
type FileWatcher struct {
	repo     *FileRepository
	onChange func(Snapshot)
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration
}

// NewFileWatcher watches repo's data directory. The directory is watched
// rather than the file so atomic renames are seen.
func NewFileWatcher(repo *FileRepository, onChange func(Snapshot), logger *zap.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrap(err, "create file watcher")
	}
	if err := fsw.Add(repo.dir); err != nil {
		fsw.Close()
		return nil, apperrors.Wrapf(err, "watch %s", repo.dir)
	}
	return &FileWatcher{
		repo:     repo,
		onChange: onChange,
		watcher:  fsw,
		logger:   logger.Named("flow-watcher"),
		debounce: watchDebounce,
	}, nil
}

// Run processes file events until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounceTimer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	target := filepath.Clean(w.repo.path)
	w.logger.Info("Watching flow file", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

// Close releases the watch. Run closes it as well on return.
func (w *FileWatcher) Close() error {
	return w.watcher.Close()
}

func (w *FileWatcher) reload() {
	data, err := os.ReadFile(w.repo.path)
	if err != nil {
		w.logger.Debug("Flow file not readable", zap.Error(err))
		return
	}
	if w.repo.wroteItself(data) {
		return
	}

	s, err := decodeSnapshot(data)
	if err != nil {
		w.logger.Warn("Ignoring external edit with invalid content", zap.Error(err))
		return
	}

	w.logger.Info("Flow file changed externally",
		zap.Int("nodes", len(s.Nodes)),
		zap.Int("edges", len(s.Edges)),
	)
	w.onChange(s)
}
