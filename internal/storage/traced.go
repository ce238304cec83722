package storage

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceRepository wraps repo so every call opens a span.
func TraceRepository(repo FlowRepository, backend string, tracer trace.Tracer) FlowRepository {
	return &tracedRepository{inner: repo, backend: backend, tracer: tracer}
}

type tracedRepository struct {
	inner   FlowRepository
	backend string
	tracer  trace.Tracer
}

func (r *tracedRepository) Load(ctx context.Context) (Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "repository.Load",
		trace.WithAttributes(attribute.String("storage.backend", r.backend)),
	)
	defer span.End()

	s, err := r.inner.Load(ctx)
	if err != nil && !IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return s, err
	}
	span.SetAttributes(
		attribute.Int("flow.nodes", len(s.Nodes)),
		attribute.Int("flow.edges", len(s.Edges)),
	)
	return s, err
}

func (r *tracedRepository) Save(ctx context.Context, s Snapshot) error {
	ctx, span := r.tracer.Start(ctx, "repository.Save",
		trace.WithAttributes(
			attribute.String("storage.backend", r.backend),
			attribute.Int("flow.nodes", len(s.Nodes)),
			attribute.Int("flow.edges", len(s.Edges)),
		),
	)
	defer span.End()

	err := r.inner.Save(ctx, s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
	}
	return err
}

func (r *tracedRepository) Close() error {
	return r.inner.Close()
}
