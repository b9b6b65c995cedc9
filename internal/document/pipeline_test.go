package document

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/pdfredact"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/testutil"
)

type failingRedactor struct{ calls int }

func (f *failingRedactor) Redact(context.Context, []byte, []pdfredact.Target, redact.Method) ([]byte, *pdfredact.Report, error) {
	f.calls++
	return nil, nil, errors.New("content stream is damaged")
}

type panickingRedactor struct{}

func (panickingRedactor) Redact(context.Context, []byte, []pdfredact.Target, redact.Method) ([]byte, *pdfredact.Report, error) {
	panic("index out of range")
}

func failingBuilder(context.Context, string, pdfredact.Layout) ([]byte, error) {
	return nil, errors.New("font table missing")
}

const patientText = "Patient John Doe was seen.\nFollow-up in two weeks."

func patientResult() *redact.Result {
	return &redact.Result{
		OriginalText: patientText,
		RedactedText: "Patient [full_name] was seen.\nFollow-up in two weeks.",
		Entities: []redact.Entity{
			{Text: "John Doe", Label: "full_name", Confidence: 0.9, Start: 8, End: 16, Replacement: "[full_name]"},
		},
		EntityCount: 1,
		Method:      redact.MethodMask,
	}
}

func extractedText(t *testing.T, filename string, data []byte) string {
	t.Helper()
	text, err := NewExtractor(10).ExtractBytes(context.Background(), filename, data)
	require.NoError(t, err)
	return text
}

func TestRender_PDFWithoutEntitiesIsUnchanged(t *testing.T) {
	in := testutil.BuildTestPDF(patientText)
	res := &redact.Result{OriginalText: patientText, RedactedText: patientText, Method: redact.MethodMask}

	out, err := NewPipeline().Render(context.Background(), Request{Data: in, Filename: "report.pdf", Result: res})
	require.NoError(t, err)
	assert.Equal(t, in, out.Data)
	assert.Equal(t, "report_redacted.pdf", out.Filename)
	assert.Equal(t, TierOriginal, out.Tier)
	assert.False(t, out.Destructive)
}

func TestRender_PDFInPlace(t *testing.T) {
	in := testutil.BuildTestPDF(patientText)

	out, err := NewPipeline().Render(context.Background(), Request{Data: in, Filename: "report.pdf", Result: patientResult()})
	require.NoError(t, err)
	assert.Equal(t, TierInPlace, out.Tier)
	assert.Equal(t, FormatPDF, out.Format)
	assert.Equal(t, "report_redacted.pdf", out.Filename)
	assert.Empty(t, out.Failures)
	require.NotNil(t, out.Report)
	assert.Equal(t, 1, out.Report.Occurrences)

	text := extractedText(t, out.Filename, out.Data)
	assert.NotContains(t, text, "John")
	assert.Contains(t, text, "Follow-up in two weeks.")
}

func TestRender_PDFFallsBackToReconstruction(t *testing.T) {
	for name, r := range map[string]PDFRedactor{
		"error": &failingRedactor{},
		"panic": panickingRedactor{},
	} {
		t.Run(name, func(t *testing.T) {
			in := testutil.BuildTestPDF(patientText)
			out, err := NewPipeline(WithPDFRedactor(r)).Render(context.Background(),
				Request{Data: in, Filename: "report.pdf", Result: patientResult()})
			require.NoError(t, err)

			assert.Equal(t, TierReconstructed, out.Tier)
			assert.Equal(t, "report_redacted.pdf", out.Filename)
			assert.False(t, out.Destructive)
			require.Len(t, out.Failures, 1)
			assert.Equal(t, TierInPlace, out.Failures[0].Tier)

			require.True(t, strings.HasPrefix(string(out.Data), "%PDF-"))
			text := extractedText(t, out.Filename, out.Data)
			assert.Contains(t, text, "Patient [full_name] was seen.")
			assert.NotContains(t, text, "John")
		})
	}
}

func TestRender_PDFFallsBackToText(t *testing.T) {
	in := testutil.BuildTestPDF(patientText)
	res := patientResult()
	out, err := NewPipeline(WithPDFRedactor(&failingRedactor{}), WithPDFBuilder(failingBuilder)).Render(context.Background(),
		Request{Data: in, Filename: "report.pdf", Result: res})
	require.NoError(t, err)

	assert.Equal(t, TierText, out.Tier)
	assert.Equal(t, FormatTXT, out.Format)
	assert.Equal(t, "report_redacted.txt", out.Filename)
	assert.Equal(t, res.RedactedText, string(out.Data))
	require.Len(t, out.Failures, 2)
	assert.Equal(t, TierInPlace, out.Failures[0].Tier)
	assert.Equal(t, TierReconstructed, out.Failures[1].Tier)
}

func TestRender_PDFNameWithoutPDFBytesSkipsInPlace(t *testing.T) {
	r := &failingRedactor{}
	out, err := NewPipeline(WithPDFRedactor(r)).Render(context.Background(),
		Request{Data: []byte("plain text"), Filename: "notes.txt", Result: patientResult(), OutputFormat: "pdf"})
	require.NoError(t, err)
	assert.Zero(t, r.calls)
	assert.Equal(t, TierReconstructed, out.Tier)
	assert.Equal(t, "notes_redacted.pdf", out.Filename)
	assert.Empty(t, out.Failures)
}

func TestRender_DOCX(t *testing.T) {
	res := &redact.Result{
		RedactedText: "Dear [full_name],\n\n\n\nYour appointment is on [date].",
		Entities:     []redact.Entity{{Text: "Ana", Label: "full_name"}},
		Method:       redact.MethodMask,
	}
	for _, name := range []string{"letter.docx", "letter.doc"} {
		out, err := NewPipeline().Render(context.Background(), Request{Data: []byte("ignored"), Filename: name, Result: res})
		require.NoError(t, err)
		assert.Equal(t, "letter_redacted.docx", out.Filename)
		assert.Equal(t, TierReconstructed, out.Tier)

		got, err := ReadDOCX(out.Data)
		require.NoError(t, err)
		assert.Equal(t, "Dear [full_name],\n\nYour appointment is on [date].", got)
	}
}

func TestRender_TextFormats(t *testing.T) {
	res := &redact.Result{RedactedText: "Call [phone_number]", Method: redact.MethodMask}
	tests := []struct {
		filename string
		forced   string
		wantName string
		wantTier string
	}{
		{"notes.txt", "", "notes_redacted.txt", TierText},
		{"notes.md", "", "notes_redacted.md", TierDirect},
		{"page.html", "", "page_redacted.txt", TierText},
		{"report.pdf", "json", "report_redacted.json", TierDirect},
		{"report.pdf", "txt", "report_redacted.txt", TierText},
		{"letter.docx", "md", "letter_redacted.md", TierDirect},
	}
	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			out, err := NewPipeline().Render(context.Background(),
				Request{Data: []byte("x"), Filename: tt.filename, Result: res, OutputFormat: tt.forced})
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, out.Filename)
			assert.Equal(t, tt.wantTier, out.Tier)
			assert.Equal(t, "Call [phone_number]", string(out.Data))
		})
	}
}

func TestRender_Validation(t *testing.T) {
	_, err := NewPipeline().Render(context.Background(), Request{Filename: "a.txt"})
	assert.ErrorIs(t, err, redact.ErrValidation)

	_, err = NewPipeline().Render(context.Background(), Request{Filename: "a.txt", Result: patientResult(), OutputFormat: "xlsx"})
	assert.ErrorIs(t, err, redact.ErrValidation)
}

// The in-place PDF path destroys the original glyphs, while a text result
// carrying a mapping can still be reversed by its consumer.
func TestRender_DestructiveVersusReversible(t *testing.T) {
	in := testutil.BuildTestPDF(patientText)
	res := patientResult()
	res.Method = redact.MethodReplace
	res.RedactedText = "Patient Mark Hill was seen.\nFollow-up in two weeks."
	res.Entities[0].Replacement = "Mark Hill"
	res.Mapping = map[string]string{"Mark Hill": "John Doe"}
	require.True(t, res.Reversible())

	out, err := NewPipeline().Render(context.Background(), Request{Data: in, Filename: "report.pdf", Result: res})
	require.NoError(t, err)
	assert.True(t, out.Destructive)
	assert.NotContains(t, string(out.Data), "John Doe")
	assert.NotContains(t, extractedText(t, out.Filename, out.Data), "John")

	txt, err := NewPipeline().Render(context.Background(), Request{Data: in, Filename: "report.pdf", Result: res, OutputFormat: "txt"})
	require.NoError(t, err)
	assert.False(t, txt.Destructive)
	restored := string(txt.Data)
	for synthetic, original := range res.Mapping {
		restored = strings.ReplaceAll(restored, synthetic, original)
	}
	assert.Equal(t, patientText, restored)
}

func TestTargets(t *testing.T) {
	got := Targets([]redact.Entity{
		{Text: "John", Label: "first_name"},
		{Text: " John ", Label: "first_name"},
		{Text: "  ", Label: "first_name"},
		{Text: "Doe", Label: "last_name"},
	})
	assert.Equal(t, []pdfredact.Target{{Text: "John", Label: "first_name"}, {Text: "Doe", Label: "last_name"}}, got)
}
