package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gameflow/internal/domain/flow"
	apperrors "gameflow/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ClientIDHeader carries the writer's identity on PUT so the server can skip
// echoing the broadcast back to it.
const ClientIDHeader = "X-Client-ID"

// FlowPath is the REST endpoint for the persisted graph.
const FlowPath = "/api/flow"

// ErrNoSnapshot is returned by Fetch when the server has nothing usable: no
// graph stored yet, a non-success status, or a malformed body.
var ErrNoSnapshot = errors.New("no persisted flow")

// API is the server surface the editor depends on.
type API interface {
	Fetch(ctx context.Context) (flow.Graph, error)
	Saver
}

// BreakerConfig tunes the circuit breaker around outbound saves.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used by NewAPIClient.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// APIClient talks to the flow server over HTTP.
type APIClient struct {
	baseURL  string
	clientID string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// ClientOption customizes an APIClient.
type ClientOption func(*APIClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(a *APIClient) { a.http = c }
}

// WithClientID sets the identity sent in ClientIDHeader.
func WithClientID(id string) ClientOption {
	return func(a *APIClient) { a.clientID = id }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(a *APIClient) { a.logger = l }
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(cfg BreakerConfig) ClientOption {
	return func(a *APIClient) { a.breaker = newBreaker(cfg, a.logger) }
}

// NewAPIClient creates a client for the server at baseURL.
func NewAPIClient(baseURL string, opts ...ClientOption) *APIClient {
	c := &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(DefaultBreakerConfig("flow-api"), c.logger)
	}
	return c
}

func newBreaker(cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// BaseURL returns the server root the client was built with.
func (c *APIClient) BaseURL() string { return c.baseURL }

// ClientID returns the identity attached to writes.
func (c *APIClient) ClientID() string { return c.clientID }

// Fetch retrieves the persisted graph. It returns ErrNoSnapshot when the
// server has nothing usable and a NETWORK AppError when it cannot be reached.
func (c *APIClient) Fetch(ctx context.Context) (flow.Graph, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+FlowPath, nil)
	if err != nil {
		return flow.Graph{}, apperrors.Wrap(err, "build fetch request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return flow.Graph{}, requestError("fetch flow", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Info("No persisted flow", zap.Int("status", resp.StatusCode))
		_, _ = io.Copy(io.Discard, resp.Body)
		return flow.Graph{}, ErrNoSnapshot
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return flow.Graph{}, requestError("read flow", err)
	}

	g, err := flow.ParseGraph(body)
	if err != nil {
		c.logger.Warn("Malformed persisted flow", zap.Error(err))
		return flow.Graph{}, ErrNoSnapshot
	}
	return g, nil
}

// Save replaces the persisted graph. Calls go through the circuit breaker so
// a down server fails fast instead of piling up requests.
func (c *APIClient) Save(ctx context.Context, g flow.Graph) error {
	body, err := json.Marshal(g)
	if err != nil {
		return apperrors.Wrap(err, "encode flow")
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.put(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewUnavailableError("flow-server").WithCause(err)
	}
	return err
}

func (c *APIClient) put(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+FlowPath, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, "build save request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientID != "" {
		req.Header.Set(ClientIDHeader, c.clientID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return requestError("save flow", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.NewExternalError("flow-server", fmt.Errorf("save flow: status %d", resp.StatusCode))
	}
	return nil
}

// requestError classifies a transport failure. A missed deadline is a
// TIMEOUT, everything else NETWORK.
func requestError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(op).WithCause(err)
	}
	return apperrors.NewNetworkError(op, err)
}

// SyncURL derives the websocket endpoint from the server base URL.
func SyncURL(baseURL, clientID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", apperrors.NewValidationError("invalid server url").WithCause(err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("unsupported url scheme %q", u.Scheme))
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if clientID != "" {
		q := u.Query()
		q.Set("client", clientID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
