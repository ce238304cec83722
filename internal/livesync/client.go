package livesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"gameflow/internal/domain/flow"

	"go.uber.org/zap"
)

// DefaultReconnectDelay is the pause between a dropped connection and the
// next dial attempt.
const DefaultReconnectDelay = 3 * time.Second

// State is the connection state of the sync client.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Handler receives connection changes and decoded remote snapshots. Calls
// come from the client's goroutine, never concurrently with each other.
type Handler interface {
	ConnectionChanged(connected bool)
	ApplyRemote(g flow.Graph)
}

// Conn is the subset of a websocket connection the client reads from.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens push channel connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Client maintains the push channel with automatic reconnect.
type Client struct {
	url            string
	dialer         Dialer
	handler        Handler
	reconnectDelay time.Duration
	logger         *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a client for url. Start must be called to connect.
func NewClient(url string, dialer Dialer, handler Handler, reconnectDelay time.Duration, logger *zap.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:            url,
		dialer:         dialer,
		handler:        handler,
		reconnectDelay: reconnectDelay,
		logger:         logger.Named("livesync"),
		state:          StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the connect/read/reconnect loop. Calling Start twice is a
// no-op.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Close stops the loop, closes the live connection and cancels any pending
// reconnect. It blocks until the loop has exited.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		c.setState(StateConnecting)
		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return
			}
			c.onClose(err)
		} else {
			c.onOpen(conn)
			err = c.readLoop(ctx, conn)
			c.onClose(err)
		}

		if ctx.Err() != nil {
			return
		}

		c.logger.Debug("Reconnect scheduled", zap.Duration("delay", c.reconnectDelay))
		timer := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.onMessage(payload)
	}
}

func (c *Client) onOpen(Conn) {
	c.setState(StateConnected)
	c.logger.Info("Connected", zap.String("url", c.url))
	c.handler.ConnectionChanged(true)
}

// onMessage decodes a payload and hands valid snapshots to the handler.
// Anything else is dropped.
func (c *Client) onMessage(payload []byte) {
	g, err := ParseMessage(payload)
	if err != nil {
		if !errors.Is(err, ErrIgnoredMessage) {
			c.logger.Warn("Dropping malformed sync payload", zap.Error(err))
		}
		return
	}
	c.handler.ApplyRemote(g)
}

func (c *Client) onClose(err error) {
	c.setState(StateDisconnected)
	if err != nil {
		c.logger.Debug("Connection closed", zap.Error(err))
	}
	c.handler.ConnectionChanged(false)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
