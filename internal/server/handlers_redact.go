package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

type textRequest struct {
	Text   string        `json:"text"`
	Config redact.Config `json:"config"`
}

type batchRequest struct {
	Texts  []string      `json:"texts"`
	IDs    []string      `json:"ids,omitempty"`
	Config redact.Config `json:"config"`
}

type extractResponse struct {
	Entities    []redact.Entity `json:"entities"`
	EntityCount int             `json:"entity_count"`
}

func (s *Server) decodeText(w http.ResponseWriter, r *http.Request) (*textRequest, bool) {
	req := &textRequest{Config: s.defaults}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON: "+err.Error())
		return nil, false
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "text must not be empty")
		return nil, false
	}
	return req, true
}

func (s *Server) handleRedactText(w http.ResponseWriter, r *http.Request) {
	s.redactText(w, r, true)
}

// handlePreview runs the same redaction without writing an audit record.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.redactText(w, r, false)
}

func (s *Server) redactText(w http.ResponseWriter, r *http.Request, audited bool) {
	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}
	start := time.Now()
	res, err := s.service.RedactText(r.Context(), req.Text, req.Config)
	if audited {
		p := evidence.GenerateParams{Operation: evidence.OpRedactText, Method: string(req.Config.Method), Input: []byte(req.Text)}
		if res != nil {
			p = evidence.ParamsFromResult(evidence.OpRedactText, res, req.Config.IncludeMapping)
		}
		if id := s.record(r.Context(), p, start, err); id != "" {
			w.Header().Set("X-Audit-ID", id)
		}
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRedactBatch(w http.ResponseWriter, r *http.Request) {
	req := &batchRequest{Config: s.defaults}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON: "+err.Error())
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "texts must not be empty")
		return
	}
	if len(req.Texts) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("batch of %d texts exceeds the limit of %d", len(req.Texts), s.maxBatchSize))
		return
	}
	if len(req.IDs) == 0 {
		req.IDs = nil
	}
	start := time.Now()
	res, err := s.service.RedactBatch(r.Context(), req.Texts, req.IDs, req.Config)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if id := s.record(r.Context(), evidence.ParamsFromBatch(res, req.Config.Method), start, nil); id != "" {
		w.Header().Set("X-Audit-ID", id)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}
	entities, err := s.service.ExtractEntities(r.Context(), req.Text, req.Config)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entities == nil {
		entities = []redact.Entity{}
	}
	writeJSON(w, http.StatusOK, extractResponse{Entities: entities, EntityCount: len(entities)})
}
