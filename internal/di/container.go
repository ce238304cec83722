// Package di wires the flow server.
package di

import (
	"net/http"

	"gameflow/internal/config"
	"gameflow/internal/messaging"
	"gameflow/internal/observability"
	"gameflow/internal/server"
	"gameflow/internal/storage"

	"go.uber.org/zap"
)

// Container holds all server dependencies
type Container struct {
	Config     *config.Server
	Logger     *zap.Logger
	Repository storage.FlowRepository
	Fanout     messaging.Fanout
	Hub        *server.Hub
	Server     *http.Server
	// Watcher is nil unless the file backend is watched.
	Watcher   *storage.FileWatcher
	Collector *observability.Collector
	Tracing   *observability.TracerProvider
}
