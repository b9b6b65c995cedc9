package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	rdxotel "github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

var tracer = rdxotel.Tracer("github.com/TheNetJedi/pii-redaction-openmed/internal/document")

// DefaultMaxSizeMB is the upload limit used when none is configured.
const DefaultMaxSizeMB = 50

// Extraction failure messages shown to users.
const (
	msgNoPDFText  = "No text found in PDF. Scanned documents (images) are not supported."
	msgNoDOCXText = "No text found in DOCX."
	msgEmptyFile  = "File is empty."
)

// Extractor extracts text content from supported document formats.
type Extractor struct {
	maxSize int64
	policy  *bluemonday.Policy
}

// NewExtractor creates a content extractor with a size limit in megabytes.
func NewExtractor(maxSizeMB int) *Extractor {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	return &Extractor{
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		policy:  bluemonday.StrictPolicy(),
	}
}

// MaxSize returns the size limit in bytes.
func (e *Extractor) MaxSize() int64 { return e.maxSize }

// Extract reads path and extracts its text.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.Size() > e.maxSize {
		return "", fmt.Errorf("%w: file size %d exceeds limit %d bytes", redact.ErrValidation, info.Size(), e.maxSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file %s: %w", path, err)
	}
	return e.ExtractBytes(ctx, path, content)
}

// ExtractBytes extracts text from an in-memory document. The format is taken
// from filename's extension. Failures wrap redact.ErrExtraction, except for
// unsupported types and oversized input which wrap redact.ErrValidation.
func (e *Extractor) ExtractBytes(ctx context.Context, filename string, data []byte) (string, error) {
	_, span := tracer.Start(ctx, "document.extract")
	defer span.End()

	if int64(len(data)) > e.maxSize {
		return "", fmt.Errorf("%w: file size %d exceeds limit %d bytes", redact.ErrValidation, len(data), e.maxSize)
	}
	if !IsSupported(filename) {
		return "", fmt.Errorf("%w: unsupported file type: %s", redact.ErrValidation, strings.ToLower(filepath.Ext(filename)))
	}
	format := FormatOf(filename)
	span.SetAttributes(rdxotel.AttrFormat.String(string(format)), attribute.Int("redactx.input_bytes", len(data)))

	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("%w: failed to process PDF: %w", redact.ErrExtraction, err)
		}
	case FormatDOCX:
		text, err = ReadDOCX(data)
		if err != nil {
			return "", fmt.Errorf("%w: failed to process DOCX: %w", redact.ErrExtraction, err)
		}
	case FormatHTML:
		text, err = e.extractHTML(data)
		if err != nil {
			return "", fmt.Errorf("%w: failed to process HTML: %w", redact.ErrExtraction, err)
		}
	default:
		text, err = extractText(data)
		if err != nil {
			return "", fmt.Errorf("%w: failed to process text file: %w", redact.ErrExtraction, err)
		}
	}
	return norm.NFC.String(text), nil
}

// extractPDF returns the text of every page that has any, as
// "--- Page N ---" blocks separated by blank lines.
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()
	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var parts []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", i, pageText))
	}
	if len(parts) == 0 {
		return "", errors.New(msgNoPDFText)
	}
	return strings.Join(parts, "\n\n"), nil
}

// extractText decodes UTF-8, falling back to Latin-1 for anything else.
func extractText(data []byte) (string, error) {
	var text string
	if utf8.Valid(data) {
		text = strings.TrimPrefix(string(data), "\ufeff")
	} else {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		text = string(decoded)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New(msgEmptyFile)
	}
	return text, nil
}

// extractHTML strips every tag and unescapes the remaining text.
func (e *Extractor) extractHTML(data []byte) (string, error) {
	text, err := extractText(data)
	if err != nil {
		return "", err
	}
	text = html.UnescapeString(e.policy.Sanitize(text))
	if strings.TrimSpace(text) == "" {
		return "", errors.New(msgEmptyFile)
	}
	return text, nil
}
