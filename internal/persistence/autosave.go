package persistence

import (
	"context"
	"sync"
	"time"

	"gameflow/internal/domain/flow"

	"go.uber.org/zap"
)

// DefaultSaveDelay is the quiet period before a burst of edits is saved.
const DefaultSaveDelay = 400 * time.Millisecond

// Saver writes a full graph to durable storage.
type Saver interface {
	Save(ctx context.Context, g flow.Graph) error
}

// Autosaver debounces graph changes into saves. Only the state at the moment
// the timer fires is sent, so a burst of edits produces one save.
//
// Notify is ignored until Start is called; SuppressNext makes the next Notify
// a no-op and is used for changes that must not be echoed back to the server
// (remote merges, the initial load, undo/redo replays). A suppressed change
// that still has to reach the server is recorded with MarkDirty and written
// by the next save or by Flush.
type Autosaver struct {
	delay    time.Duration
	saver    Saver
	source   func() flow.Graph
	onStatus func(SaveStatus)
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64
	active   bool
	skipNext bool
	closed   bool
	status   SaveStatus
	changes  uint64
	saved    uint64
}

// NewAutosaver builds an autosaver that reads the graph from source at fire
// time and reports status transitions to onStatus (which may be nil).
func NewAutosaver(delay time.Duration, saver Saver, source func() flow.Graph, onStatus func(SaveStatus), logger *zap.Logger) *Autosaver {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Autosaver{
		delay:    delay,
		saver:    saver,
		source:   source,
		onStatus: onStatus,
		logger:   logger.Named("autosave"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start enables autosaving. It is called once the initial load completed.
// Suppressions requested before Start are discarded.
func (a *Autosaver) Start() {
	a.mu.Lock()
	a.active = !a.closed
	a.skipNext = false
	a.mu.Unlock()
}

// Active reports whether Start has been called and Close has not.
func (a *Autosaver) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// SuppressNext skips the next change notification.
func (a *Autosaver) SuppressNext() {
	a.mu.Lock()
	a.skipNext = true
	a.mu.Unlock()
}

// Notify records a graph change and (re)arms the debounce timer.
func (a *Autosaver) Notify() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return
	}
	if a.skipNext {
		a.skipNext = false
		a.logger.Debug("Change suppressed")
		return
	}

	if a.timer != nil {
		a.timer.Stop()
	}
	a.changes++
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(a.delay, func() { a.fire(gen) })
}

// MarkDirty records that the current graph differs from the saved one
// without arming the debounce timer.
func (a *Autosaver) MarkDirty() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		a.changes++
	}
}

// Dirty reports whether a change is waiting to be saved.
func (a *Autosaver) Dirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.changes != a.saved
}

// Flush saves the current graph if a change has not been saved yet.
func (a *Autosaver) Flush(ctx context.Context) error {
	if !a.Active() || !a.Dirty() {
		return nil
	}
	return a.SaveNow(ctx)
}

// Pending reports whether a debounced save is waiting to fire.
func (a *Autosaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}

// Status returns the latest save status.
func (a *Autosaver) Status() SaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SaveNow saves the current graph immediately, cancelling any pending timer.
func (a *Autosaver) SaveNow(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return context.Canceled
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.wg.Add(1)
	a.mu.Unlock()

	defer a.wg.Done()
	return a.save(ctx)
}

// Close stops the debounce timer, cancels in-flight saves and waits for them.
func (a *Autosaver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.active = false
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
}

func (a *Autosaver) fire(gen uint64) {
	a.mu.Lock()
	if a.closed || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.wg.Add(1)
	a.mu.Unlock()

	defer a.wg.Done()
	if err := a.save(a.ctx); err != nil {
		a.logger.Warn("Autosave failed", zap.Error(err))
	}
}

func (a *Autosaver) save(ctx context.Context) error {
	a.setStatus(SaveSaving)

	a.mu.Lock()
	seen := a.changes
	a.mu.Unlock()

	g := a.source()
	if err := a.saver.Save(ctx, g); err != nil {
		a.setStatus(SaveError)
		return err
	}

	a.mu.Lock()
	if seen > a.saved {
		a.saved = seen
	}
	a.mu.Unlock()

	a.setStatus(SaveSaved)
	a.logger.Debug("Graph saved",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
	)
	return nil
}

func (a *Autosaver) setStatus(s SaveStatus) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()

	if a.onStatus != nil {
		a.onStatus(s)
	}
}
