package redact

import "errors"

// Error kinds. Wrap with fmt.Errorf("...: %w", ErrX) and match with errors.Is.
var (
	// ErrValidation reports a malformed configuration or request.
	ErrValidation = errors.New("validation error")
	// ErrExtraction reports an unreadable document or one without extractable text.
	ErrExtraction = errors.New("extraction error")
	// ErrDetection reports a failure of the detection or synthesis collaborator.
	ErrDetection = errors.New("detection error")
	// ErrRender reports a format-specific document render failure.
	ErrRender = errors.New("document render error")
)
