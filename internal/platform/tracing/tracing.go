// Package tracing starts OpenTelemetry spans for engine operations. With no
// provider installed the global tracer is a no-op.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shelterops/pkg/requestcontext"
)

const instrumentation = "shelterops"

// Start opens a span named "<component>.<operation>" carrying the request id
// and actor. The returned func ends the span and records *errp when non-nil.
func Start(ctx context.Context, component, operation string, attrs ...attribute.KeyValue) (context.Context, func(errp *error)) {
	base := []attribute.KeyValue{attribute.String("component", component)}
	if rid := requestcontext.RequestID(ctx); rid != "" {
		base = append(base, attribute.String("request.id", rid))
	}
	if actor := requestcontext.ActorFrom(ctx); !actor.IsZero() {
		base = append(base, attribute.String("actor.id", actor.UserID))
	}
	ctx, span := otel.Tracer(instrumentation).Start(ctx, component+"."+operation,
		trace.WithAttributes(append(base, attrs...)...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		span.End()
	}
}
