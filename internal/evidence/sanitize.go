package evidence

import (
	"context"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// SanitizeError masks detected PII in an error message before it is written
// to a record. Collaborator errors sometimes echo their input. When detector
// is nil or detection fails, the message is replaced entirely.
func SanitizeError(ctx context.Context, msg string, detector redact.Detector) string {
	if msg == "" {
		return ""
	}
	if detector == nil {
		return "error details withheld"
	}
	entities, err := detector.Detect(ctx, msg, redact.DetectRequest{ConfidenceThreshold: 0.3})
	if err != nil {
		return "error details withheld"
	}
	masked, err := redact.Redact(msg, entities, redact.MethodMask, redact.Params{})
	if err != nil {
		return "error details withheld"
	}
	return masked
}
