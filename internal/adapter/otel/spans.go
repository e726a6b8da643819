package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tmtweb"

// StartTaskSpan starts a span covering the execution of one task.
func StartTaskSpan(ctx context.Context, taskID string, descriptors int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.execute",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.Int("task.descriptors", descriptors),
		),
	)
}

// StartDescriptorSpan starts a span for resolving one descriptor within a task.
func StartDescriptorSpan(ctx context.Context, kind, url, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "descriptor.resolve",
		trace.WithAttributes(
			attribute.String("descriptor.kind", kind),
			attribute.String("descriptor.url", url),
			attribute.String("descriptor.name", name),
		),
	)
}

// StartCloneSpan starts a span for acquiring a repository working copy.
func StartCloneSpan(ctx context.Context, url, ref string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "repo.acquire",
		trace.WithAttributes(
			attribute.String("repo.url", url),
			attribute.String("repo.ref", ref),
		),
	)
}
