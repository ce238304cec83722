package server

import (
	"net/http"

	"gameflow/internal/livesync"
	"gameflow/internal/storage"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SocketHandler upgrades push channel requests. The client identifies itself
// with the "client" query parameter so its own saves are not echoed back.
type SocketHandler struct {
	hub      *Hub
	repo     storage.FlowRepository
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewSocketHandler creates the push channel endpoint.
func NewSocketHandler(hub *Hub, repo storage.FlowRepository, logger *zap.Logger) *SocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocketHandler{
		hub:  hub,
		repo: repo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// No authentication exists; any page may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.Named("socket"),
	}
}

// ServeHTTP implements http.Handler.
func (s *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := newClient(r.URL.Query().Get("client"), s.hub, conn, s.logger)
	if err := client.register(); err != nil {
		s.logger.Warn("Rejected connection", zap.Error(err))
		return
	}
	s.queueSnapshot(r, client)
	client.run()

	s.logger.Info("New WebSocket connection established",
		zap.String("clientID", client.clientID),
		zap.String("connectionID", client.id),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

// queueSnapshot sends the stored flow. The client is registered first, so a
// save that lands after the load is still broadcast to it, and a broadcast
// that overtook the load keeps the snapshot from being queued.
func (s *SocketHandler) queueSnapshot(r *http.Request, c *Client) {
	snap, err := s.repo.Load(r.Context())
	if err != nil {
		if !storage.IsNotFound(err) {
			s.logger.Warn("Failed to load snapshot for new client", zap.Error(err))
		}
		return
	}
	payload, err := livesync.NewFlowMessage(snap.Graph()).Encode()
	if err != nil {
		s.logger.Error("Failed to encode snapshot", zap.Error(err))
		return
	}
	if !c.offer(payload, snap.UpdatedAt) {
		s.logger.Debug("Send buffer full, snapshot skipped")
	}
}
