package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/requestctx"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "redactx",
		"version": s.version,
		"api":     apiPrefix,
		"health":  "/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"version":      s.version,
		"uptime":       time.Since(s.startTime).Round(time.Second).String(),
		"active_model": s.service.ActiveModel(),
	})
}

// handleReady reports 503 until every dependency answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"redaction_service": "ok"}
	ready := true
	if s.auditStore == nil {
		checks["audit_store"] = "disabled"
	} else if err := s.auditStore.Ping(r.Context()); err != nil {
		checks["audit_store"] = "unavailable"
		ready = false
	} else {
		checks["audit_store"] = "ok"
	}
	if s.quota == nil {
		checks["quota"] = "disabled"
	} else {
		checks["quota"] = "ok"
	}
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// record writes an audit record when auditing is enabled. Failures are
// logged and never fail the request. It returns the record id or "".
func (s *Server) record(ctx context.Context, p evidence.GenerateParams, start time.Time, opErr error) string {
	if s.audit == nil {
		return ""
	}
	p.ClientID = requestctx.ClientID(ctx)
	p.CorrelationID = middleware.GetReqID(ctx)
	p.Duration = time.Since(start)
	if opErr != nil {
		p.Error = evidence.SanitizeError(ctx, opErr.Error(), s.sanitizer)
	}
	rec, err := s.audit.Generate(ctx, p)
	if err != nil {
		log.Error().Err(err).Str("operation", p.Operation).Msg("audit_record_failed")
		return ""
	}
	return rec.ID
}
