/*
Package tracing provides lightweight request tracing.

Each HTTP request gets a trace with a root span; trace context propagates via
the X-Trace-ID and X-Span-ID headers so callers polling for a task result can
correlate their submission with the service logs.

# Usage

	tracer := tracing.New("taskgate", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Spans are collected on a buffered channel and emitted through the structured
logger; when the buffer is full spans are dropped rather than blocking the
request path.
*/
package tracing
