package server

import (
	"net/http"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/document"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":       redact.Models(),
		"active_model": s.service.ActiveModel(),
	})
}

type setModelRequest struct {
	ModelID string `json:"model_id"`
}

func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var req setModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON: "+err.Error())
		return
	}
	if err := s.service.SetActiveModel(req.ModelID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_model": s.service.ActiveModel()})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": redact.Categories,
		"all":        redact.AllLabels(),
	})
}

func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"methods": redact.MethodCatalog()})
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	cfg := s.defaults
	if cfg.Model == "" {
		cfg.Model = s.service.ActiveModel()
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSupportedFormats(w http.ResponseWriter, r *http.Request) {
	maxMB := int64(0)
	if s.processor != nil {
		maxMB = s.processor.Extractor().MaxSize() / (1 << 20)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"extensions":       document.SupportedExtensions(),
		"output_formats":   []string{redact.OutputSame, "pdf", "docx", "txt", "md", "json"},
		"max_file_size_mb": maxMB,
	})
}
