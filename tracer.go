package ecs

import (
	"context"

	"github.com/google/uuid"
)

// uuidTracer stamps each span with a random uuid and hands it to sink for
// reporting, so span identity survives across goroutines dispatched by a
// single system's chunk fan-out.
type uuidTracer struct {
	sink func(spanID, name string, start bool)
}

// NewUUIDTracer builds a Tracer whose spans are identified by a fresh uuid.
// sink, if non-nil, is invoked once when a span starts (start=true) and
// once when it ends (start=false); a nil sink makes the tracer a cheap
// id-only no-op, useful when only the span context value is wanted.
func NewUUIDTracer(sink func(spanID, name string, start bool)) Tracer {
	return uuidTracer{sink: sink}
}

type traceSpanKey struct{}

func (t uuidTracer) Start(ctx context.Context, name string) (context.Context, TraceSpan) {
	id := uuid.NewString()
	if t.sink != nil {
		t.sink(id, name, true)
	}
	span := &uuidSpan{id: id, name: name, tracer: t}
	return context.WithValue(ctx, traceSpanKey{}, id), span
}

// SpanID extracts the active span's uuid from ctx, if any.
func SpanID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceSpanKey{}).(string)
	return id, ok
}

type uuidSpan struct {
	id     string
	name   string
	tracer uuidTracer
}

func (s *uuidSpan) End() {
	if s.tracer.sink != nil {
		s.tracer.sink(s.id, s.name, false)
	}
}
