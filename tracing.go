package booknotify

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/coregx/booknotify"

var propagator = propagation.TraceContext{}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// injectTraceContext writes the span context of ctx into headers.
func injectTraceContext(ctx context.Context, headers map[string]string) {
	propagator.Inject(ctx, propagation.MapCarrier(headers))
}

// extractTraceContext returns ctx carrying the remote span found in headers.
func extractTraceContext(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return propagator.Extract(ctx, propagation.MapCarrier(headers))
}
