package server

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/evidence"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/quota"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// writeServiceError maps an operation error to its HTTP response. Bad input
// and unreadable documents are the caller's to fix (400); anything else is
// logged and reported without detail (500).
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, quota.ErrRateLimitExceeded), errors.Is(err, quota.ErrDailyQuotaExceeded):
		writeQuotaError(w, err)
	case errors.Is(err, redact.ErrValidation), errors.Is(err, redact.ErrExtraction):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, evidence.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Func(otel.LogTraceFields(r.Context())).Msg("request_failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "The request could not be completed")
	}
}
