package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ActionCategory tags every span with the pipeline stage it belongs to.
type ActionCategory string

const (
	Building  ActionCategory = "building"
	Fuzzing   ActionCategory = "fuzzing"
	Corpus    ActionCategory = "corpus"
	Reporting ActionCategory = "reporting"
)

type SpanAttributes struct {
	kv []attribute.KeyValue
}

func EmptySpanAttributes() *SpanAttributes {
	return &SpanAttributes{}
}

func NewSpanAttributes(action ActionCategory) *SpanAttributes {
	return &SpanAttributes{
		kv: []attribute.KeyValue{attribute.String("cifuzz.action.category", string(action))},
	}
}

func (s *SpanAttributes) WithExtraAttribute(key string, value any) *SpanAttributes {
	s.kv = append(s.kv, toAttribute(key, value))
	return s
}

func (s *SpanAttributes) WithExtraAttributes(values map[string]any) *SpanAttributes {
	for key, value := range values {
		s.kv = append(s.kv, toAttribute(key, value))
	}
	return s
}

func (s *SpanAttributes) WithCorpusSize(size int) *SpanAttributes {
	return s.WithExtraAttribute("cifuzz.corpus.size", size)
}

func (s *SpanAttributes) WithTarget(name string) *SpanAttributes {
	return s.WithExtraAttribute("cifuzz.fuzz.target", name)
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

type EventAttributes map[string]string

func NewEventAttributes(values map[string]string) EventAttributes {
	return EventAttributes(values)
}

func (e EventAttributes) toKeyValues() []attribute.KeyValue {
	kv := make([]attribute.KeyValue, 0, len(e))
	for key, value := range e {
		kv = append(kv, attribute.String(key, value))
	}
	return kv
}

// telemetryTracer wraps an OTel span so call sites stay decoupled from the
// SDK types. Spans spawned before Start() inherit the pending attributes.
type telemetryTracer struct {
	ctx        context.Context
	otelTracer trace.Tracer
	name       string
	pending    *SpanAttributes
	span       trace.Span
}

func NewTelemetryTracer(ctx context.Context, otelTracer trace.Tracer, spanName string) Tracer {
	return &telemetryTracer{
		ctx:        ctx,
		otelTracer: otelTracer,
		name:       spanName,
	}
}

func (t *telemetryTracer) Start() {
	t.ctx, t.span = t.otelTracer.Start(t.ctx, t.name)
	if t.pending != nil {
		t.span.SetAttributes(t.pending.kv...)
		t.pending = nil
	}
}

func (t *telemetryTracer) WithAttributes(attributes *SpanAttributes) Tracer {
	if attributes == nil {
		return t
	}
	if t.span != nil {
		t.span.SetAttributes(attributes.kv...)
		return t
	}
	if t.pending == nil {
		t.pending = EmptySpanAttributes()
	}
	t.pending.kv = append(t.pending.kv, attributes.kv...)
	return t
}

func (t *telemetryTracer) AddEvent(name string, attributes EventAttributes) {
	if t.span == nil {
		return
	}
	t.span.AddEvent(name, trace.WithAttributes(attributes.toKeyValues()...))
}

func (t *telemetryTracer) SetStatus(code codes.Code, message string) {
	if t.span == nil {
		return
	}
	t.span.SetStatus(code, message)
}

func (t *telemetryTracer) Spawn(spanName string) Tracer {
	return &telemetryTracer{
		ctx:        t.ctx,
		otelTracer: t.otelTracer,
		name:       spanName,
	}
}

func (t *telemetryTracer) End() {
	if t.span == nil {
		return
	}
	t.span.End()
}
