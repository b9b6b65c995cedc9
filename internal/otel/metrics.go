package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/TheNetJedi/pii-redaction-openmed/internal/otel")

var (
	redactionsTotal   metric.Int64Counter
	entitiesRedacted  metric.Int64Counter
	documentsRendered metric.Int64Counter
	renderFallbacks   metric.Int64Counter
	batchItems        metric.Int64Counter
)

func init() {
	var err error
	redactionsTotal, err = meter.Int64Counter("redactx.redactions.total",
		metric.WithDescription("Text redactions performed"))
	if err != nil {
		redactionsTotal, _ = meter.Int64Counter("redactx.redactions.total.fallback")
	}

	entitiesRedacted, err = meter.Int64Counter("redactx.entities.redacted",
		metric.WithDescription("Entities redacted, by label"))
	if err != nil {
		entitiesRedacted, _ = meter.Int64Counter("redactx.entities.redacted.fallback")
	}

	documentsRendered, err = meter.Int64Counter("redactx.documents.rendered",
		metric.WithDescription("Redacted documents produced, by format and tier"))
	if err != nil {
		documentsRendered, _ = meter.Int64Counter("redactx.documents.rendered.fallback")
	}

	renderFallbacks, err = meter.Int64Counter("redactx.render.fallbacks",
		metric.WithDescription("Render tiers that failed and fell through to the next tier"))
	if err != nil {
		renderFallbacks, _ = meter.Int64Counter("redactx.render.fallbacks.fallback")
	}

	batchItems, err = meter.Int64Counter("redactx.batch.items",
		metric.WithDescription("Batch items processed, by outcome"))
	if err != nil {
		batchItems, _ = meter.Int64Counter("redactx.batch.items.fallback")
	}
}

// RecordRedaction counts one text redaction and its entities per label.
func RecordRedaction(ctx context.Context, method, strategy string, byLabel map[string]int) {
	redactionsTotal.Add(ctx, 1, metric.WithAttributes(
		AttrMethod.String(method),
		AttrStrategy.String(strategy),
	))
	for label, n := range byLabel {
		entitiesRedacted.Add(ctx, int64(n), metric.WithAttributes(attribute.String("label", label)))
	}
}

// RecordDocument counts one rendered document.
func RecordDocument(ctx context.Context, format, tier string) {
	documentsRendered.Add(ctx, 1, metric.WithAttributes(AttrFormat.String(format), AttrTier.String(tier)))
}

// RecordFallback counts a tier that failed.
func RecordFallback(ctx context.Context, format, tier string) {
	renderFallbacks.Add(ctx, 1, metric.WithAttributes(AttrFormat.String(format), AttrTier.String(tier)))
}

// RecordBatchItem counts one batch item with outcome "success" or "failed".
func RecordBatchItem(ctx context.Context, outcome string) {
	batchItems.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
