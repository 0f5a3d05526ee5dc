package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartOperationSpan starts a client span for one key-value operation. The
// span is named "kv <operation>".
func StartOperationSpan(ctx context.Context, tracer trace.Tracer, operation, method, url string) (context.Context, trace.Span) {
	spanName := "kv request"
	if operation != "" {
		spanName = "kv " + operation
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", method),
		attribute.String("url.full", url),
	}
	if operation != "" {
		attrs = append(attrs, attribute.String("kvcrank.operation", operation))
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// StatusCodeAttr is the attribute recorded for a received HTTP status.
func StatusCodeAttr(code int) attribute.KeyValue {
	return attribute.Int("http.response.status_code", code)
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
