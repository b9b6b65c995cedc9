package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/document"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// readUpload returns the "file" part of a multipart request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	limit := s.processor.Extractor().MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return "", nil, fmt.Errorf("%w: invalid multipart form: %v", redact.ErrValidation, err)
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("%w: file is required", redact.ErrValidation)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("%w: reading upload: %v", redact.ErrValidation, err)
	}
	name := filepath.Base(strings.ReplaceAll(header.Filename, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	return name, data, nil
}

// formConfig overlays multipart form fields on the server defaults.
func (s *Server) formConfig(r *http.Request) (redact.Config, error) {
	cfg := s.defaults
	if v := r.FormValue("method"); v != "" {
		cfg.Method = redact.Method(v)
	}
	if v := r.FormValue("confidence_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("%w: confidence_threshold must be a number", redact.ErrValidation)
		}
		cfg.ConfidenceThreshold = f
	}
	if v := r.FormValue("model"); v != "" {
		cfg.Model = v
	}
	if v := r.FormValue("include_mapping"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: include_mapping must be a boolean", redact.ErrValidation)
		}
		cfg.IncludeMapping = b
	}
	if v := r.FormValue("use_smart_merging"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: use_smart_merging must be a boolean", redact.ErrValidation)
		}
		cfg.UseSmartMerging = b
	}
	if v := r.FormValue("output_format"); v != "" {
		cfg.OutputFormat = v
	}
	if v := r.FormValue("date_shift_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: date_shift_days must be an integer", redact.ErrValidation)
		}
		cfg.DateShiftDays = &n
	}
	if v := r.FormValue("entity_types"); v != "" {
		cfg.EntityTypes = splitComma(v)
	}
	if v := r.FormValue("exclude_entity_types"); v != "" {
		cfg.ExcludeEntityTypes = splitComma(v)
	}
	return cfg, nil
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// headerSafe returns s when it is printable ASCII, otherwise its URL
// escaping.
func headerSafe(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return url.PathEscape(s)
		}
	}
	return s
}

func (s *Server) handleDocumentRedact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filename, data, err := s.readUpload(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	cfg, err := s.formConfig(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if s.quota != nil {
		if err := s.quota.ConsumeDocument(ctx, rateKey(r)); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	start := time.Now()
	got, err := s.processor.Process(ctx, filename, data, cfg)
	p := documentAudit(filename, data, got, cfg)
	if err != nil {
		if s.quota != nil {
			s.quota.RefundDocument(rateKey(r))
		}
		s.record(ctx, p, start, err)
		writeServiceError(w, r, err)
		return
	}

	out := got.Output
	if id := s.record(ctx, p, start, nil); id != "" {
		w.Header().Set("X-Audit-ID", id)
	}

	w.Header().Set("Content-Type", out.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Filename}))
	w.Header().Set("X-Entity-Count", strconv.Itoa(got.Result.EntityCount))
	w.Header().Set("X-Original-Filename", headerSafe(filename))
	w.Header().Set("X-Render-Tier", out.Tier)
	w.Header().Set("X-Redaction-Destructive", strconv.FormatBool(out.Destructive))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

type extractTextResponse struct {
	Filename       string `json:"filename"`
	Text           string `json:"text"`
	CharacterCount int    `json:"character_count"`
	WordCount      int    `json:"word_count"`
}

func (s *Server) handleDocumentExtractText(w http.ResponseWriter, r *http.Request) {
	filename, data, err := s.readUpload(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	text, err := s.processor.Extractor().ExtractBytes(r.Context(), filename, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, extractTextResponse{
		Filename:       filename,
		Text:           text,
		CharacterCount: utf8.RuneCountInString(text),
		WordCount:      len(strings.Fields(text)),
	})
}

type analyzeResponse struct {
	Filename      string         `json:"filename"`
	TotalEntities int            `json:"total_entities"`
	ByType        map[string]int `json:"by_type"`
	AllTypes      []string       `json:"all_types"`
}

func (s *Server) handleDocumentAnalyze(w http.ResponseWriter, r *http.Request) {
	filename, data, err := s.readUpload(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	cfg, err := s.formConfig(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	text, err := s.processor.Extractor().ExtractBytes(r.Context(), filename, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	entities, err := s.service.ExtractEntities(r.Context(), text, cfg)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	byType := redact.CountByLabel(entities)
	types := make([]string, 0, len(byType))
	for label := range byType {
		types = append(types, label)
	}
	sort.Strings(types)
	writeJSON(w, http.StatusOK, analyzeResponse{
		Filename:      filename,
		TotalEntities: len(entities),
		ByType:        byType,
		AllTypes:      types,
	})
}

// documentAudit describes a document redaction for the audit trail. got is
// nil when processing failed.
func documentAudit(filename string, data []byte, got *document.Processed, cfg redact.Config) evidence.GenerateParams {
	format := string(document.FormatOf(filename))
	if got == nil {
		return evidence.ParamsFromDocument(format, data, nil, nil, cfg.Method, cfg.IncludeMapping)
	}
	return evidence.ParamsFromDocument(format, data, got.Result, &evidence.Rendering{
		Data:        got.Output.Data,
		Format:      string(got.Output.Format),
		Tier:        got.Output.Tier,
		Destructive: got.Output.Destructive,
		Fallbacks:   got.Output.FallbackTiers(),
	}, cfg.Method, cfg.IncludeMapping)
}
