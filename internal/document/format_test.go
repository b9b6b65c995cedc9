package document

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		filename string
		forced   string
		want     Format
	}{
		{"report.pdf", "", FormatPDF},
		{"Report.PDF", "same", FormatPDF},
		{"letter.doc", "", FormatDOCX},
		{"letter.docx", "", FormatDOCX},
		{"notes.md", "", FormatMD},
		{"notes.txt", "", FormatTXT},
		{"page.html", "", FormatTXT},
		{"noext", "", FormatTXT},
		{"report.pdf", "txt", FormatTXT},
		{"report.pdf", ".JSON", FormatJSON},
		{"notes.txt", "pdf", FormatPDF},
		{"notes.txt", "docx", FormatDOCX},
	}
	for _, tt := range tests {
		t.Run(tt.filename+"/"+tt.forced, func(t *testing.T) {
			got, err := OutputFormat(tt.filename, tt.forced)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := OutputFormat("a.pdf", "xlsx")
	assert.True(t, errors.Is(err, redact.ErrValidation))
}

func TestRedactedName(t *testing.T) {
	assert.Equal(t, "report_redacted.pdf", RedactedName("report.pdf", FormatPDF))
	assert.Equal(t, "report_redacted.txt", RedactedName("report.pdf", FormatTXT))
	assert.Equal(t, "letter_redacted.docx", RedactedName("/tmp/in/letter.doc", FormatDOCX))
	assert.Equal(t, "archive.tar_redacted.md", RedactedName("archive.tar.gz", FormatMD))
	assert.Equal(t, "document_redacted.txt", RedactedName("", FormatTXT))
}

func TestIsSupported(t *testing.T) {
	for _, ext := range SupportedExtensions() {
		assert.True(t, IsSupported("file"+ext), ext)
	}
	assert.True(t, IsSupported("FILE.PDF"))
	assert.False(t, IsSupported("sheet.xlsx"))
	assert.False(t, IsSupported("README"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
	assert.Contains(t, FormatDOCX.ContentType(), "wordprocessingml")
	assert.Equal(t, "application/json", FormatJSON.ContentType())
	assert.Contains(t, FormatTXT.ContentType(), "text/plain")
}
