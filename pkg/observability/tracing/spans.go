package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of all store spans.
const ScopeName = "github.com/nimburion/docstore"

// SpanOperation names a traced store operation.
type SpanOperation string

const (
	SpanOperationQueryExec SpanOperation = "query.exec"
	SpanOperationQueryJoin SpanOperation = "query.join"

	SpanOperationSnapshotSave SpanOperation = "snapshot.save"
	SpanOperationSnapshotLoad SpanOperation = "snapshot.load"
)

// QuerySpanOption configures a query span.
type QuerySpanOption func(*querySpanOptions)

type querySpanOptions struct {
	collection string
	attributes []attribute.KeyValue
}

// WithCollection names the collection being queried.
func WithCollection(name string) QuerySpanOption {
	return func(opts *querySpanOptions) {
		opts.collection = name
		opts.attributes = append(opts.attributes, attribute.String("docstore.collection", name))
	}
}

// WithFilter records the rendered query.
func WithFilter(filter string) QuerySpanOption {
	return func(opts *querySpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("docstore.filter", filter))
	}
}

// WithJoinCount records how many joins the cursor resolves.
func WithJoinCount(n int) QuerySpanOption {
	return func(opts *querySpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("docstore.joins", n))
	}
}

// WithDepth records the join nesting depth of the cursor.
func WithDepth(depth int) QuerySpanOption {
	return func(opts *querySpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("docstore.depth", depth))
	}
}

// StartQuerySpan starts an internal span for a cursor operation.
func StartQuerySpan(ctx context.Context, operation SpanOperation, opts ...QuerySpanOption) (context.Context, trace.Span) {
	spanOpts := &querySpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("docstore.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	name := fmt.Sprintf("QUERY %s", operation)
	if spanOpts.collection != "" {
		name = fmt.Sprintf("QUERY %s %s", operation, spanOpts.collection)
	}

	ctx, span := otel.Tracer(ScopeName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// StartSnapshotSpan starts a client span for snapshot I/O against backend.
func StartSnapshotSpan(ctx context.Context, operation SpanOperation, backend, collection string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(ScopeName).Start(ctx,
		fmt.Sprintf("SNAPSHOT %s %s", operation, collection),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("docstore.operation", string(operation)),
		attribute.String("docstore.snapshot.backend", backend),
		attribute.String("docstore.collection", collection),
	)
	return ctx, span
}

// RecordError records err on span and marks the span failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
