package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"gameflow/internal/domain/flow"
	"gameflow/internal/livesync"
	"gameflow/internal/messaging"
	"gameflow/internal/observability"
	"gameflow/internal/persistence"
	"gameflow/internal/storage"
	apperrors "gameflow/pkg/errors"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes bounds PUT bodies.
const DefaultMaxBodyBytes int64 = 2 << 20

const (
	msgNoSavedFlow   = "No saved flow"
	msgExpectedShape = "Expected { nodes, edges }"

	codeInvalidFlow = "INVALID_FLOW"
	codeSaveFailed  = "SAVE_FAILED"
)

// putFlowRequest is the PUT body. Both arrays must be present; either may
// be empty.
type putFlowRequest struct {
	Nodes []flow.Node `json:"nodes" validate:"required"`
	Edges []flow.Edge `json:"edges" validate:"required"`
}

// FlowHandler serves the persisted snapshot.
type FlowHandler struct {
	repo         storage.FlowRepository
	fanout       messaging.Fanout
	events       messaging.EventPublisher
	collector    *observability.Collector
	errors       *apperrors.ErrorHandler
	validate     *validator.Validate
	tracer       trace.Tracer
	maxBodyBytes int64
	now          func() time.Time
	logger       *zap.Logger
}

// FlowHandlerConfig carries the handler's collaborators. Events, Collector
// and Tracer are optional.
type FlowHandlerConfig struct {
	Repository   storage.FlowRepository
	Fanout       messaging.Fanout
	Events       messaging.EventPublisher
	Collector    *observability.Collector
	Tracer       trace.Tracer
	MaxBodyBytes int64
	Debug        bool
	Logger       *zap.Logger
}

// NewFlowHandler creates a flow handler.
func NewFlowHandler(cfg FlowHandlerConfig) *FlowHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := cfg.Events
	if events == nil {
		events = messaging.NoopPublisher{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("flow-handler")
	}
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return &FlowHandler{
		repo:         cfg.Repository,
		fanout:       cfg.Fanout,
		events:       events,
		collector:    cfg.Collector,
		errors:       apperrors.NewErrorHandler(logger, cfg.Debug),
		validate:     validator.New(),
		tracer:       tracer,
		maxBodyBytes: limit,
		now:          time.Now,
		logger:       logger.Named("flow"),
	}
}

// GetFlow handles GET /api/flow.
func (h *FlowHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	snap, err := h.repo.Load(r.Context())
	if err != nil {
		if storage.IsNotFound(err) {
			h.errors.HandleStatus(w, r, http.StatusNotFound, msgNoSavedFlow)
			return
		}
		h.errors.Handle(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Graph())
}

// PutFlow handles PUT /api/flow: store the snapshot, then broadcast it to
// every other editor.
func (h *FlowHandler) PutFlow(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "flow.Put")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req putFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errors.HandleStatus(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		h.errors.Handle(w, r, apperrors.NewValidationError(msgExpectedShape).WithCode(codeInvalidFlow))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errors.Handle(w, r, apperrors.NewValidationError(msgExpectedShape).
			WithCode(codeInvalidFlow).
			WithDetails(map[string]interface{}{"missing": missingFields(err)}))
		return
	}

	g := flow.Graph{Nodes: req.Nodes, Edges: req.Edges}
	span.SetAttributes(
		attribute.Int("flow.nodes", len(g.Nodes)),
		attribute.Int("flow.edges", len(g.Edges)),
	)

	snap := storage.NewSnapshot(g, h.now())
	err := h.repo.Save(ctx, snap)
	if h.collector != nil {
		h.collector.RecordSave(len(g.Nodes), len(g.Edges), err)
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to save flow", zap.Error(err))
		h.errors.Handle(w, r, apperrors.NewInternalError(err.Error()).WithCode(codeSaveFailed).WithCause(err))
		return
	}

	origin := r.Header.Get(persistence.ClientIDHeader)
	h.Announce(ctx, origin, snap)
	if err := h.events.PublishFlowSaved(ctx, messaging.FlowSaved{
		Origin:  origin,
		Nodes:   len(g.Nodes),
		Edges:   len(g.Edges),
		SavedAt: snap.UpdatedAt,
	}); err != nil {
		h.logger.Warn("Failed to publish FlowSaved event", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Announce broadcasts s to every editor except origin. An empty origin
// reaches all of them.
func (h *FlowHandler) Announce(ctx context.Context, origin string, s storage.Snapshot) {
	payload, err := livesync.NewFlowMessage(s.Graph()).Encode()
	if err != nil {
		h.logger.Error("Failed to encode broadcast", zap.Error(err))
		return
	}
	update := messaging.FlowUpdate{Origin: origin, Payload: payload, SavedAt: s.UpdatedAt}
	if err := h.fanout.Publish(ctx, update); err != nil {
		h.logger.Warn("Failed to publish flow update", zap.Error(err))
	}
}

func missingFields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return fields
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
