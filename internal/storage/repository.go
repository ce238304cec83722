// Package storage persists the single shared flow snapshot. Every backend
// stores one document: the full node and edge lists plus the time of the
// last write.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gameflow/internal/domain/flow"
	apperrors "gameflow/pkg/errors"
)

// Backend names accepted by configuration.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// ErrFlowNotFound is the cause of the NOT_FOUND error returned when nothing
// usable has been stored.
var ErrFlowNotFound = errors.New("no saved flow")

// FlowRepository loads and replaces the persisted snapshot.
type FlowRepository interface {
	// Load returns the stored snapshot or a NOT_FOUND AppError wrapping
	// ErrFlowNotFound.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, s Snapshot) error
	Close() error
}

// Snapshot is the persisted document.
type Snapshot struct {
	Nodes     []flow.Node `json:"nodes"`
	Edges     []flow.Edge `json:"edges"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewSnapshot stamps g with at.
func NewSnapshot(g flow.Graph, at time.Time) Snapshot {
	nodes, edges := g.Nodes, g.Edges
	if nodes == nil {
		nodes = []flow.Node{}
	}
	if edges == nil {
		edges = []flow.Edge{}
	}
	return Snapshot{Nodes: nodes, Edges: edges, UpdatedAt: at.UTC()}
}

// Graph returns the snapshot's node and edge lists.
func (s Snapshot) Graph() flow.Graph {
	return flow.Graph{Nodes: s.Nodes, Edges: s.Edges}
}

func notFound() error {
	return apperrors.NewNotFoundError("flow").WithCause(ErrFlowNotFound)
}

// IsNotFound reports whether err means no snapshot is stored.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound) || apperrors.IsNotFound(err)
}

func encodeSnapshot(s Snapshot) ([]byte, error) {
	if s.Nodes == nil {
		s.Nodes = []flow.Node{}
	}
	if s.Edges == nil {
		s.Edges = []flow.Edge{}
	}
	return json.MarshalIndent(s, "", "  ")
}

// decodeSnapshot requires both collections to be arrays. Stored documents
// that fail this check are treated as absent by the backends.
func decodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Nodes == nil || s.Edges == nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: expected nodes and edges arrays")
	}
	return s, nil
}
