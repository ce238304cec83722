// Package messaging distributes saved snapshots to every server instance and
// announces saves to external consumers.
package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// FlowUpdate is a saved snapshot on its way to connected editors.
type FlowUpdate struct {
	// Origin is the client id of the writer; that client is skipped when
	// the update is broadcast.
	Origin string `json:"origin,omitempty"`
	// Payload is the encoded push message.
	Payload json.RawMessage `json:"payload"`
	// SavedAt is the snapshot's save time. Editors never receive an update
	// older than one they already hold.
	SavedAt time.Time `json:"savedAt,omitempty"`
}

// Fanout delivers updates to all subscribers, possibly across processes.
type Fanout interface {
	Publish(ctx context.Context, u FlowUpdate) error
	Subscribe(fn func(FlowUpdate))
	// Run blocks delivering updates until ctx is done.
	Run(ctx context.Context) error
	Close() error
}

type subscribers struct {
	mu  sync.RWMutex
	fns []func(FlowUpdate)
}

func (s *subscribers) add(fn func(FlowUpdate)) {
	s.mu.Lock()
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
}

func (s *subscribers) deliver(u FlowUpdate) {
	s.mu.RLock()
	fns := s.fns
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(u)
	}
}

// LocalFanout delivers in-process. It is the default for a single server.
type LocalFanout struct {
	subs subscribers
}

// NewLocalFanout creates an in-process fan-out.
func NewLocalFanout() *LocalFanout {
	return &LocalFanout{}
}

// Publish delivers u to every subscriber before returning.
func (f *LocalFanout) Publish(_ context.Context, u FlowUpdate) error {
	f.subs.deliver(u)
	return nil
}

// Subscribe implements Fanout.
func (f *LocalFanout) Subscribe(fn func(FlowUpdate)) { f.subs.add(fn) }

// Run implements Fanout.
func (f *LocalFanout) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Close implements Fanout.
func (f *LocalFanout) Close() error { return nil }
