// Package tracing provides OpenTelemetry initialization, per-operation client
// spans and W3C trace context propagation.
package tracing
