package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir(), nil)
	require.NoError(t, err)

	changes := make(chan Snapshot, 4)
	w, err := NewFileWatcher(repo, func(s Snapshot) { changes <- s }, nil)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher loop a moment to start.
	time.Sleep(20 * time.Millisecond)

	t.Run("Should ignore the repository's own writes", func(t *testing.T) {
		require.NoError(t, repo.Save(context.Background(), sampleSnapshot(time.Now())))

		select {
		case s := <-changes:
			t.Fatalf("unexpected change with %d nodes", len(s.Nodes))
		case <-time.After(150 * time.Millisecond):
		}
	})

	t.Run("Should report an external edit", func(t *testing.T) {
		doc := `{"nodes":[{"id":"x","position":{"x":0,"y":0},"data":{"label":"Edited"}}],"edges":[],"updatedAt":"2024-01-01T00:00:00Z"}`
		require.NoError(t, os.WriteFile(repo.Path(), []byte(doc), 0o644))

		select {
		case s := <-changes:
			require.Len(t, s.Nodes, 1)
			assert.Equal(t, "Edited", s.Nodes[0].Data.Label)
		case <-time.After(2 * time.Second):
			t.Fatal("external edit not reported")
		}
	})

	t.Run("Should skip invalid external content", func(t *testing.T) {
		require.NoError(t, os.WriteFile(repo.Path(), []byte(`{"nodes":`), 0o644))

		select {
		case <-changes:
			t.Fatal("invalid content reported")
		case <-time.After(150 * time.Millisecond):
		}
	})
}
