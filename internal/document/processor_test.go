package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/testutil"
)

func newTestProcessor(d redact.Detector) *Processor {
	return NewProcessor(NewExtractor(5), redact.NewService(d), NewPipeline())
}

func TestProcess_PDF(t *testing.T) {
	p := newTestProcessor(testutil.StaticDetector{"John Doe": "full_name"})
	cfg := redact.DefaultConfig()

	got, err := p.Process(context.Background(), "visit.pdf", testutil.BuildTestPDF(patientText), cfg)
	require.NoError(t, err)
	assert.Contains(t, got.Text, "John Doe")
	assert.Equal(t, 1, got.Result.EntityCount)
	assert.Contains(t, got.Result.RedactedText, "[full_name]")
	assert.Equal(t, "visit_redacted.pdf", got.Output.Filename)
	assert.Equal(t, TierInPlace, got.Output.Tier)
	assert.NotContains(t, extractedText(t, "x.pdf", got.Output.Data), "John")
}

func TestProcess_TextToJSON(t *testing.T) {
	p := newTestProcessor(testutil.StaticDetector{"jane@example.com": "email"})
	cfg := redact.DefaultConfig()
	cfg.OutputFormat = "json"

	got, err := p.Process(context.Background(), "notes.txt", []byte("mail jane@example.com"), cfg)
	require.NoError(t, err)
	assert.Equal(t, "notes_redacted.json", got.Output.Filename)
	assert.Equal(t, "mail [email]", string(got.Output.Data))
}

func TestProcess_Errors(t *testing.T) {
	ctx := context.Background()
	p := newTestProcessor(testutil.FailingDetector{})
	cfg := redact.DefaultConfig()

	_, err := p.Process(ctx, "a.txt", []byte("hello"), cfg)
	assert.ErrorIs(t, err, redact.ErrDetection)

	_, err = p.Process(ctx, "a.txt", []byte("   "), cfg)
	assert.ErrorIs(t, err, redact.ErrExtraction)

	_, err = p.Process(ctx, "a.exe", []byte("hello"), cfg)
	assert.ErrorIs(t, err, redact.ErrValidation)

	bad := cfg
	bad.OutputFormat = "xml"
	_, err = p.Process(ctx, "a.txt", []byte("hello"), bad)
	assert.ErrorIs(t, err, redact.ErrValidation)
}
