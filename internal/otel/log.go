package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// TraceContextFrom returns trace_id and span_id of the span in ctx, or empty
// strings when there is none.
func TraceContextFrom(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// LogTraceFields returns a zerolog hook adding trace_id and span_id when ctx
// carries a valid span:
//
//	log.Info().Int("entities", n).Func(otel.LogTraceFields(ctx)).Msg("redaction_completed")
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		traceID, spanID := TraceContextFrom(ctx)
		if traceID != "" {
			e.Str("trace_id", traceID)
		}
		if spanID != "" {
			e.Str("span_id", spanID)
		}
	}
}

// TraceHook adds trace_id and span_id to events logged with Ctx(ctx).
type TraceHook struct{}

// Run implements zerolog.Hook.
func (TraceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	LogTraceFields(e.GetCtx())(e)
}
