// Package server exposes the shared flow over HTTP and pushes every saved
// snapshot to connected editors over a websocket.
package server

import (
	"context"
	"errors"
	"sync"

	"gameflow/internal/messaging"
	"gameflow/internal/observability"

	"go.uber.org/zap"
)

// ErrHubStopped is returned when a client connects after the hub has exited.
var ErrHubStopped = errors.New("hub stopped")

// Hub tracks push channel clients and broadcasts snapshots to them.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan messaging.FlowUpdate

	done      chan struct{}
	collector *observability.Collector
	logger    *zap.Logger
}

// NewHub creates a hub. collector may be nil.
func NewHub(collector *observability.Collector, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		broadcast:  make(chan messaging.FlowUpdate, 256),
		done:       make(chan struct{}),
		collector:  collector,
		logger:     logger.Named("hub"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAll()
			return nil

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case update := <-h.broadcast:
			h.deliver(update)
		}
	}
}

// Broadcast queues u for every client except its origin. It is safe to use
// as a fan-out subscriber.
func (h *Hub) Broadcast(u messaging.FlowUpdate) {
	select {
	case h.broadcast <- u:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// join blocks until the hub has added c.
func (h *Hub) join(c *Client) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.register <- c:
	case <-h.done:
		return ErrHubStopped
	}
	select {
	case <-c.registered:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	close(c.registered)

	h.setGauge(count)
	h.logger.Info("Client registered",
		zap.String("clientID", c.clientID),
		zap.String("connectionID", c.id),
		zap.Int("connections", count),
	)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	c.close()
	count := len(h.clients)
	h.mu.Unlock()

	h.setGauge(count)
	h.logger.Info("Client unregistered",
		zap.String("clientID", c.clientID),
		zap.String("connectionID", c.id),
		zap.Int("connections", count),
	)
}

func (h *Hub) deliver(u messaging.FlowUpdate) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if u.Origin != "" && c.clientID == u.Origin {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.offer(u.Payload, u.SavedAt) {
			sent++
		} else {
			h.logger.Warn("Closing slow client",
				zap.String("clientID", c.clientID),
				zap.String("connectionID", c.id),
			)
			if h.collector != nil {
				h.collector.WSDroppedClient.Inc()
			}
			h.remove(c)
		}
	}
	if h.collector != nil {
		h.collector.WSBroadcasts.Add(float64(sent))
	}
	h.logger.Debug("Broadcast complete",
		zap.String("origin", u.Origin),
		zap.Int("sent", sent),
		zap.Int("skipped", len(targets)-sent),
	)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
	h.setGauge(0)
	h.logger.Info("All connections closed")
}

func (h *Hub) setGauge(n int) {
	if h.collector != nil {
		h.collector.WSConnections.Set(float64(n))
	}
}
