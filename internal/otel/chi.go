package otel

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/TheNetJedi/pii-redaction-openmed/internal/otel"

var (
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
)

func init() {
	var err error
	httpRequests, err = meter.Int64Counter("redactx.http.requests",
		metric.WithDescription("API requests, by route and status class"))
	if err != nil {
		httpRequests, _ = meter.Int64Counter("redactx.http.requests.fallback")
	}
	httpDuration, err = meter.Float64Histogram("redactx.http.duration",
		metric.WithDescription("API request latency"), metric.WithUnit("ms"))
	if err != nil {
		httpDuration, _ = meter.Float64Histogram("redactx.http.duration.fallback")
	}
}

// Middleware traces each API request under its chi route pattern, records
// status, response size and latency, and marks 5xx spans as errors. Uploads
// and redacted payloads are never attached to the span.
func Middleware() func(next http.Handler) http.Handler {
	tr := Tracer(tracerName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tr.Start(r.Context(), "http.request",
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.Int64("http.request.body.size", r.ContentLength),
				))
			defer span.End()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			// chi fills the pattern in while routing, so read it afterwards.
			route := routePattern(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rec.status),
				attribute.Int64("http.response.body.size", rec.bytes),
			)
			if rec.status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}

			attrs := metric.WithAttributes(
				attribute.String("http.route", route),
				attribute.String("status_class", statusClass(rec.status)),
			)
			httpRequests.Add(ctx, 1, attrs)
			httpDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// routePattern returns the chi route pattern (e.g. "/api/v1/audit/{id}") when
// available, otherwise the request path.
func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil && ctx.RoutePattern() != "" {
		return ctx.RoutePattern()
	}
	return r.URL.Path
}
