package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/document"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/quota"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

const (
	defaultTimeout = 60 * time.Second
	// documentTimeout covers extraction, detection and PDF rendering of
	// large files.
	documentTimeout = 5 * time.Minute
	apiPrefix       = "/api/v1"
)

// Server holds all dependencies for the HTTP API.
type Server struct {
	router       *chi.Mux
	service      *redact.Service
	processor    *document.Processor
	auditStore   *evidence.Store
	audit        *evidence.Generator
	quota        *quota.Manager
	sanitizer    redact.Detector
	defaults     redact.Config
	maxBatchSize int
	apiKeys      map[string]string
	corsOrigins  []string
	version      string
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAuditStore records every redaction in store.
func WithAuditStore(store *evidence.Store) Option {
	return func(s *Server) {
		s.auditStore = store
		if store != nil {
			s.audit = evidence.NewGenerator(store)
		}
	}
}

// WithQuota enables per-client rate limits and document quotas.
func WithQuota(m *quota.Manager) Option {
	return func(s *Server) { s.quota = m }
}

// WithErrorSanitizer masks PII found in error messages written to the audit
// trail.
func WithErrorSanitizer(d redact.Detector) Option {
	return func(s *Server) { s.sanitizer = d }
}

// WithDefaults sets the redaction config requests start from.
func WithDefaults(cfg redact.Config) Option {
	return func(s *Server) { s.defaults = cfg }
}

// WithMaxBatchSize caps the number of texts per batch request.
func WithMaxBatchSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithAPIKeys requires one of keys on every /api/v1 request. Entries may
// be "client:key" to name the client; bare keys get a derived client id.
func WithAPIKeys(keys []string) Option {
	return func(s *Server) { s.apiKeys = ParseAPIKeys(keys) }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithVersion sets the version reported by / and /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer builds a Server around the redaction service and document
// processor.
func NewServer(service *redact.Service, processor *document.Processor, opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		service:      service,
		processor:    processor,
		defaults:     redact.DefaultConfig(),
		maxBatchSize: 100,
		apiKeys:      map[string]string{},
		corsOrigins:  []string{"*"},
		version:      "dev",
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware
// and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route(apiPrefix, func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.quota))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Post("/redact/text", s.handleRedactText)
			r.Post("/redact/batch", s.handleRedactBatch)
			r.Post("/extract", s.handleExtract)
			r.Post("/preview", s.handlePreview)

			r.Get("/documents/supported-formats", s.handleSupportedFormats)

			r.Get("/config/models", s.handleModels)
			r.Post("/config/model", s.handleSetModel)
			r.Get("/config/entities", s.handleEntities)
			r.Get("/config/methods", s.handleMethods)
			r.Get("/config/defaults", s.handleDefaults)

			r.Get("/audit", s.handleAuditList)
			r.Get("/audit/export", s.handleAuditExport)
			r.Get("/audit/{id}", s.handleAuditGet)
			r.Get("/audit/{id}/verify", s.handleAuditVerify)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(documentTimeout))
			r.Post("/documents/redact", s.handleDocumentRedact)
			r.Post("/documents/extract-text", s.handleDocumentExtractText)
			r.Post("/documents/analyze", s.handleDocumentAnalyze)
		})
	})

	return r
}
