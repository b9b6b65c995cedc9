package otel

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		version     string
	}{
		{"basic setup", "test-service", "1.0.0"},
		{"dev version", "redactx", "dev"},
		{"empty version", "redactx", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(tt.serviceName, tt.version, true, WithWriter(io.Discard))
			require.NoError(t, err)
			require.NotNil(t, shutdown, "shutdown function must not be nil")

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			assert.NoError(t, shutdown(ctx))
		})
	}
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup("redactx", "dev", false)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_ExportsToWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup("redactx", "dev", true, WithWriter(&buf))
	require.NoError(t, err)

	_, span := Tracer("github.com/TheNetJedi/pii-redaction-openmed/internal/otel/test").Start(context.Background(), "redact.text")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "redact.text")
}

func TestTracer_CreatesValidSpans(t *testing.T) {
	shutdown, err := Setup("test-service", "0.0.1", true, WithWriter(io.Discard))
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	_, span := Tracer("github.com/TheNetJedi/pii-redaction-openmed/internal/otel/test").Start(context.Background(), "test.operation")
	defer span.End()

	assert.True(t, span.SpanContext().IsValid(), "span context should be valid after Setup()")
	assert.True(t, span.SpanContext().HasTraceID())
	assert.True(t, span.SpanContext().HasSpanID())
}

func TestTracer_SpansWithoutSetup(t *testing.T) {
	_, span := Tracer("github.com/TheNetJedi/pii-redaction-openmed/internal/noop").Start(context.Background(), "noop.operation")
	defer span.End()
	assert.Implements(t, (*trace.Span)(nil), span)
}

func TestRecordHelpers_NoPanic(t *testing.T) {
	ctx := context.Background()
	RecordRedaction(ctx, "mask", "manual", map[string]int{"email": 2})
	RecordDocument(ctx, "pdf", "in_place")
	RecordFallback(ctx, "pdf", "in_place")
	RecordBatchItem(ctx, "failed")
}
