package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InteractionEvents traces ledger operations on listings. These sit above the
// HTTP and database spans.
type InteractionEvents struct {
	tracer trace.Tracer
}

// NewInteractionEvents creates a tracer for ledger operations
func NewInteractionEvents() *InteractionEvents {
	return &InteractionEvents{
		tracer: otel.Tracer("ledger"),
	}
}

// InteractionAttrs describes the listing and actor of one ledger call
type InteractionAttrs struct {
	ListingKey string
	Signal     string
	ActorID    string
}

func (a InteractionAttrs) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("listing.key", a.ListingKey),
		attribute.Bool("actor.authenticated", a.ActorID != ""),
	}
	if a.Signal != "" {
		attrs = append(attrs, attribute.String("interaction.signal", a.Signal))
	}
	if a.ActorID != "" {
		attrs = append(attrs, attribute.String("user.id", a.ActorID))
	}
	return attrs
}

// Start opens a span named "ledger.<operation>"
func (ie *InteractionEvents) Start(ctx context.Context, operation string, attrs InteractionAttrs) (context.Context, trace.Span) {
	return ie.tracer.Start(ctx, "ledger."+operation, trace.WithAttributes(attrs.attributes()...))
}

// TraceStoreCall opens a client span around a storage backend call
func (ie *InteractionEvents) TraceStoreCall(ctx context.Context, backend, operation string) (context.Context, trace.Span) {
	return ie.tracer.Start(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("store.backend", backend),
			attribute.String("store.operation", operation),
		),
	)
}

// RecordResult tags the span with the outcome and records err, if any
func RecordResult(span trace.Span, result string, err error) {
	span.SetAttributes(attribute.String("interaction.result", result))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
}

var globalInteractionEvents = NewInteractionEvents()

// GetInteractionEvents returns the shared ledger tracer
func GetInteractionEvents() *InteractionEvents {
	return globalInteractionEvents
}
