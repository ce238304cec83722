package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Editors only listen; anything they send is discarded.
	maxMessageSize = 64 * 1024

	sendBufferSize = 16
)

// Client is one push channel connection.
type Client struct {
	id         string
	clientID   string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	registered chan struct{}
	logger     *zap.Logger

	mu     sync.Mutex
	latest time.Time
	closed bool
}

func newClient(clientID string, hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:         id,
		clientID:   clientID,
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		registered: make(chan struct{}),
		logger: logger.With(
			zap.String("clientID", clientID),
			zap.String("connectionID", id),
		),
	}
}

// register adds the client to the hub. Once it returns, every later
// broadcast reaches the client.
func (c *Client) register() error {
	if err := c.hub.join(c); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}

// run starts the pumps.
func (c *Client) run() {
	go c.writePump()
	go c.readPump()
}

// offer queues payload unless the client already holds a snapshot saved
// later than savedAt. A zero savedAt is always queued. It reports false only
// when the send buffer is full.
func (c *Client) offer(payload []byte, savedAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	if !savedAt.IsZero() && savedAt.Before(c.latest) {
		c.logger.Debug("Skipping stale snapshot", zap.Time("savedAt", savedAt))
		return true
	}
	select {
	case c.send <- payload:
		if savedAt.After(c.latest) {
			c.latest = savedAt
		}
		return true
	default:
		return false
	}
}

// close closes send. Only the hub calls it.
func (c *Client) close() {
	c.mu.Lock()
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
		c.logger.Debug("Read pump stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
