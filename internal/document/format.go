package document

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

// Format is a document format the pipeline can read or produce.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatTXT  Format = "txt"
	FormatMD   Format = "md"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// Ext returns the file extension written for f, with the leading dot.
func (f Format) Ext() string { return "." + string(f) }

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatMD:
		return "text/markdown; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// supported maps accepted input extensions to their format.
var supported = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".doc":  FormatDOCX,
	".txt":  FormatTXT,
	".md":   FormatMD,
	".html": FormatHTML,
	".htm":  FormatHTML,
}

// SupportedExtensions lists the accepted input extensions in display order.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".doc", ".txt", ".md", ".html", ".htm"}
}

// IsSupported reports whether filename has an accepted extension.
func IsSupported(filename string) bool {
	_, ok := supported[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// FormatOf returns the input format implied by filename. Unknown extensions
// are treated as plain text.
func FormatOf(filename string) Format {
	if f, ok := supported[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}
	return FormatTXT
}

// OutputFormat picks the produced format: forced wins unless it is empty or
// "same", otherwise the input format is kept. HTML input is written as text.
func OutputFormat(filename, forced string) (Format, error) {
	forced = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(forced), "."))
	if forced != "" && forced != redact.OutputSame {
		switch f := Format(forced); f {
		case FormatPDF, FormatDOCX, FormatTXT, FormatMD, FormatJSON:
			return f, nil
		default:
			return "", fmt.Errorf("%w: unsupported output_format %q", redact.ErrValidation, forced)
		}
	}
	if f := FormatOf(filename); f != FormatHTML {
		return f, nil
	}
	return FormatTXT, nil
}

// RedactedName returns "{stem}_redacted{ext}" for the produced format.
func RedactedName(filename string, f Format) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		base = "document"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "document"
	}
	return stem + "_redacted" + f.Ext()
}
