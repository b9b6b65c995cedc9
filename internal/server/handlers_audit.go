package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/requestctx"
)

// auditFilter builds a filter from query parameters. Authenticated clients
// only ever see their own records.
func (s *Server) auditFilter(r *http.Request, defaultLimit int) (evidence.Filter, error) {
	q := r.URL.Query()
	f := evidence.Filter{Operation: q.Get("operation"), Limit: defaultLimit}
	if len(s.apiKeys) > 0 {
		f.ClientID = requestctx.ClientID(r.Context())
	} else {
		f.ClientID = q.Get("client_id")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("%w: limit must be a positive integer", redact.ErrValidation)
		}
		f.Limit = n
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, fmt.Errorf("%w: %s must be RFC 3339", redact.ErrValidation, name)
			}
			*dst = t
		}
	}
	return f, nil
}

func (s *Server) requireAudit(w http.ResponseWriter) bool {
	if s.auditStore == nil {
		writeError(w, http.StatusNotFound, "audit_disabled", "The audit trail is disabled")
		return false
	}
	return true
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if !s.requireAudit(w) {
		return
	}
	f, err := s.auditFilter(r, 50)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	entries, err := s.auditStore.ListIndex(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []evidence.Index{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"hint":    "use GET " + apiPrefix + "/audit/<id> for full detail",
	})
}

// ownRecord fetches id and hides records of other clients behind 404.
func (s *Server) ownRecord(r *http.Request, id string) (*evidence.Record, error) {
	rec, err := s.auditStore.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if len(s.apiKeys) > 0 && rec.ClientID != requestctx.ClientID(r.Context()) {
		return nil, fmt.Errorf("%w: %s", evidence.ErrNotFound, id)
	}
	return rec, nil
}

func (s *Server) handleAuditGet(w http.ResponseWriter, r *http.Request) {
	if !s.requireAudit(w) {
		return
	}
	rec, err := s.ownRecord(r, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if !s.requireAudit(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.ownRecord(r, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	valid, err := s.auditStore.Verify(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "valid": valid})
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireAudit(w) {
		return
	}
	f, err := s.auditFilter(r, 1000)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, "validation_error", "format must be csv or json")
		return
	}
	list, err := s.auditStore.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_ = evidence.Export(w, format, list)
}
