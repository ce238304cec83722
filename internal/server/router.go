package server

import (
	"net/http"

	"gameflow/internal/observability"
	"gameflow/internal/persistence"
	apperrors "gameflow/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig selects the optional surfaces of the router.
type RouterConfig struct {
	CORSOrigins []string
	// StaticDir, when set, is served as a single page app.
	StaticDir string
	Debug     bool
}

// Router creates and configures the HTTP router
type Router struct {
	flows     *FlowHandler
	socket    *SocketHandler
	collector *observability.Collector
	config    RouterConfig
	logger    *zap.Logger
}

// NewRouter creates a new router instance. collector may be nil, which
// disables /metrics.
func NewRouter(flows *FlowHandler, socket *SocketHandler, collector *observability.Collector, config RouterConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		flows:     flows,
		socket:    socket,
		collector: collector,
		config:    config,
		logger:    logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(apperrors.NewErrorHandler(rt.logger, rt.config.Debug).Middleware)
	router.Use(Logger(rt.logger.Named("http")))
	if rt.collector != nil {
		router.Use(Metrics(rt.collector))
	}

	origins := rt.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", persistence.ClientIDHeader},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", Health)
	if rt.collector != nil {
		router.Handle("/metrics", rt.collector.Handler())
	}

	// /flow is the short form used by older clients.
	for _, p := range []string{persistence.FlowPath, "/flow"} {
		router.Get(p, rt.flows.GetFlow)
		router.Put(p, rt.flows.PutFlow)
	}
	router.Handle("/ws", rt.socket)

	if rt.config.StaticDir != "" {
		router.Handle("/*", SPA(rt.config.StaticDir))
	}
	return router
}
