package pdfredact

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wudi/pdfkit/ir/raw"
	"github.com/wudi/pdfkit/parser"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/testutil"
)

func parseDoc(t *testing.T, pdf []byte) (*graph, []page) {
	t.Helper()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(pdf))
	require.NoError(t, err)
	g := newGraph(doc, defaultMaxDecoded)
	root, ok := doc.Trailer.Get(raw.NameLiteral("Root"))
	require.True(t, ok)
	return g, collectPages(g, g.dict(root))
}

// pageGlyphs returns the located glyphs of every page.
func pageGlyphs(t *testing.T, pdf []byte) [][]glyph {
	t.Helper()
	ctx := context.Background()
	g, pages := parseDoc(t, pdf)
	var out [][]glyph
	for _, pg := range pages {
		data, err := pageContents(ctx, g, pg.dict)
		require.NoError(t, err)
		cs, err := newContentStream(data)
		require.NoError(t, err)
		w := newWalker(ctx, g)
		require.NoError(t, w.walk(cs, pg.resources, identity, 0))
		out = append(out, append([]glyph(nil), w.glyphs...))
	}
	return out
}

func pageTexts(t *testing.T, pdf []byte) []string {
	t.Helper()
	var out []string
	for _, glyphs := range pageGlyphs(t, pdf) {
		var b strings.Builder
		for _, gl := range glyphs {
			b.WriteString(string(gl.runes))
		}
		out = append(out, b.String())
	}
	return out
}

// decodedStreams returns every stream of the document, decoded.
func decodedStreams(t *testing.T, pdf []byte) [][]byte {
	t.Helper()
	g, _ := parseDoc(t, pdf)
	var out [][]byte
	for _, obj := range g.doc.Objects {
		if s, ok := obj.(*raw.StreamObj); ok {
			data, err := g.decode(context.Background(), s)
			require.NoError(t, err)
			out = append(out, data)
		}
	}
	return out
}

func assertGone(t *testing.T, pdf []byte, secret string) {
	t.Helper()
	for _, text := range pageTexts(t, pdf) {
		assert.NotContains(t, searchKey(text), searchKey(secret))
	}
	for _, data := range decodedStreams(t, pdf) {
		assert.NotContains(t, string(data), secret)
		assert.NotContains(t, strings.ToLower(string(data)), hex.EncodeToString([]byte(secret)))
	}
	assert.NotContains(t, string(pdf), secret)
}

func ledongthucText(t *testing.T, pdf []byte) string {
	t.Helper()
	r, err := lpdf.NewReader(bytes.NewReader(pdf), int64(len(pdf)))
	require.NoError(t, err)
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		require.NoError(t, err)
		b.WriteString(text)
	}
	return b.String()
}

func TestRedact_RemovesTargetText(t *testing.T) {
	in := testutil.BuildTestPDF("Patient John Doe was seen.\nFollow-up in two weeks.")
	r := NewRedactor(Options{StrictLocate: true})

	out, report, err := r.Redact(context.Background(), in, []Target{{Text: "John Doe", Label: "full_name"}}, redact.MethodMask)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, 1, report.PagesChanged)
	assert.Equal(t, 1, report.Occurrences)
	assert.Equal(t, 1, report.Marks)
	assert.Zero(t, report.Unlocated)

	assertGone(t, out, "John Doe")
	texts := pageTexts(t, out)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Patient")
	assert.Contains(t, texts[0], "was seen.")
	assert.Contains(t, texts[0], "Follow-up in two weeks.")

	extracted := ledongthucText(t, out)
	assert.NotContains(t, extracted, "John")
	assert.Contains(t, extracted, "Patient")
}

func TestRedact_KeepsFollowingGlyphsInPlace(t *testing.T) {
	in := testutil.BuildTestPDF("John Doe visited")
	before := pageGlyphs(t, in)[0]

	out, _, err := NewRedactor(Options{}).Redact(context.Background(), in, []Target{{Text: "John", Label: "first_name"}}, redact.MethodMask)
	require.NoError(t, err)
	after := pageGlyphs(t, out)[0]

	// "John" is gone; " Doe visited" keeps its positions.
	want, got := before[4:], after
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, string(want[i].runes), string(got[i].runes))
		assert.InDelta(t, want[i].box.llx, got[i].box.llx, 0.01, "glyph %d moved", i)
		assert.InDelta(t, want[i].box.lly, got[i].box.lly, 0.01)
	}
}

func TestRedact_EveryOccurrenceCaseInsensitive(t *testing.T) {
	in := testutil.BuildTestPDF("JOHN DOE called.\nLater john doe left.", "Page two mentions John Doe too.")
	out, report, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "John Doe", Label: "full_name"}}, redact.MethodMask)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 2, report.PagesChanged)
	assert.Equal(t, 3, report.Occurrences)
	for _, text := range pageTexts(t, out) {
		assert.NotContains(t, strings.ToLower(text), "john")
	}
	texts := pageTexts(t, out)
	assert.Contains(t, texts[0], "called.")
	assert.Contains(t, texts[1], "Page two mentions")
}

func TestRedact_MatchesAcrossLines(t *testing.T) {
	in := testutil.BuildTestPDF("Name: John\nDoe, age 42")
	out, report, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "John Doe", Label: "full_name"}}, redact.MethodMask)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Occurrences)
	assert.Equal(t, 2, report.Marks, "one mark per line")
	text := pageTexts(t, out)[0]
	assert.NotContains(t, text, "John")
	assert.NotContains(t, text, "Doe")
	assert.Contains(t, text, "age 42")
}

func TestRedact_OverlayTokens(t *testing.T) {
	tests := []struct {
		method    redact.Method
		wantToken string
	}{
		{redact.MethodReplace, "[full_name]"},
		{redact.MethodHash, redact.HashToken("Jane Roe")},
		{redact.MethodMask, ""},
		{redact.MethodRemove, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			in := testutil.BuildTestPDF("Signed by Jane Roe today")
			out, _, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
				[]Target{{Text: "Jane Roe", Label: "full_name"}}, tt.method)
			require.NoError(t, err)

			text := pageTexts(t, out)[0]
			assert.NotContains(t, text, "Jane")
			if tt.wantToken != "" {
				assert.Contains(t, text, tt.wantToken)
			} else {
				assert.Equal(t, "Signed by  today", text)
			}
		})
	}
}

func TestRedact_MarkColours(t *testing.T) {
	tests := []struct {
		method redact.Method
		fill   string
	}{
		{redact.MethodRemove, "q 1 1 1 rg"},
		{redact.MethodHash, "q 0.9 0.9 0.9 rg"},
		{redact.MethodMask, "q 0 0 0 rg"},
		{redact.MethodShiftDates, "q 0 0 0 rg"},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			in := testutil.BuildTestPDF("Call 555-0100 now")
			out, _, err := NewRedactor(Options{}).Redact(context.Background(), in,
				[]Target{{Text: "555-0100", Label: "phone_number"}}, tt.method)
			require.NoError(t, err)

			found := false
			for _, data := range decodedStreams(t, out) {
				if strings.Contains(string(data), tt.fill) {
					found = true
				}
			}
			assert.True(t, found, "no %q mark", tt.fill)
		})
	}
}

func TestRedact_StrictLocate(t *testing.T) {
	in := testutil.BuildTestPDF("Nothing sensitive here")
	targets := []Target{{Text: "Alice Smith", Label: "full_name"}}

	_, report, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in, targets, redact.MethodMask)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotLocated))
	assert.Equal(t, 1, report.Unlocated)

	out, report, err := NewRedactor(Options{}).Redact(context.Background(), in, targets, redact.MethodMask)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unlocated)
	assert.Zero(t, report.PagesChanged)
	assert.Equal(t, []string{"Nothing sensitive here"}, pageTexts(t, out))
}

func TestRedact_BlankTargetsIgnored(t *testing.T) {
	in := testutil.BuildTestPDF("Hello")
	_, report, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "  ", Label: "first_name"}, {Text: "", Label: "last_name"}}, redact.MethodMask)
	require.NoError(t, err)
	assert.Zero(t, report.Occurrences)
}

func TestRedact_TJArrays(t *testing.T) {
	content := "BT /F1 12 Tf 72 720 Td [(Dr. ) (Gre) -15 (gory) ( House) 120 (, MD)] TJ ET"
	in := testutil.BuildPDF(testutil.PDFSpec{Pages: []string{content}})
	out, report, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "Gregory House", Label: "full_name"}}, redact.MethodMask)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Occurrences)
	text := pageTexts(t, out)[0]
	assert.Equal(t, "Dr. , MD", text)
}

func TestRedact_QuoteOperators(t *testing.T) {
	content := "BT /F1 12 Tf 14 TL 72 720 Td (Header) Tj (Ana Lima) ' 1 0.5 (SSN 123-45-6789) \" ET"
	in := testutil.BuildPDF(testutil.PDFSpec{Pages: []string{content}})
	out, _, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "Ana Lima", Label: "full_name"}, {Text: "123-45-6789", Label: "ssn"}}, redact.MethodMask)
	require.NoError(t, err)

	glyphs := pageGlyphs(t, out)[0]
	var text strings.Builder
	for _, gl := range glyphs {
		text.WriteString(string(gl.runes))
	}
	assert.Equal(t, "HeaderSSN ", text.String())

	// Line positions survive the rewrite of ' and ".
	before := pageGlyphs(t, in)[0]
	assert.InDelta(t, before[len(before)-1].box.lly, glyphs[len(glyphs)-1].box.lly, 0.01)
	assert.Less(t, glyphs[len(glyphs)-1].box.lly, glyphs[0].box.lly)
}

func TestRedact_CompressedContent(t *testing.T) {
	in := testutil.BuildPDF(testutil.PDFSpec{
		Pages:    []string{testutil.TextContent("Email: bob@example.org")},
		Compress: true,
	})
	out, report, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "bob@example.org", Label: "email"}}, redact.MethodMask)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Occurrences)
	assertGone(t, out, "bob@example.org")
}

func TestRedact_FormXObject(t *testing.T) {
	in := testutil.BuildPDF(testutil.PDFSpec{
		Pages: []string{"q 1 0 0 1 0 -100 cm /Fm1 Do Q BT /F1 12 Tf 72 720 Td (Page body) Tj ET"},
		Form:  "BT /F1 12 Tf 72 500 Td (Secret Name) Tj ET",
	})
	out, report, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "Secret Name", Label: "full_name"}}, redact.MethodMask)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Occurrences)
	assertGone(t, out, "Secret Name")
	assert.Contains(t, pageTexts(t, out)[0], "Page body")
}

func TestRedact_FormMarksUseFormPlacement(t *testing.T) {
	in := testutil.BuildPDF(testutil.PDFSpec{
		Pages: []string{"q 1 0 0 1 0 -100 cm /Fm1 Do Q"},
		Form:  "BT /F1 12 Tf 72 500 Td (Secret) Tj ET",
	})
	glyphs := pageGlyphs(t, in)[0]
	require.NotEmpty(t, glyphs)
	// Baseline 500 shifted down by the cm before Do.
	assert.InDelta(t, 400+defaultDescent*12, glyphs[0].box.lly, 0.01)
	assert.InDelta(t, 72, glyphs[0].box.llx, 0.01)
}

func TestRedact_ScrubsDocumentInfo(t *testing.T) {
	in := testutil.BuildPDF(testutil.PDFSpec{
		Pages: []string{testutil.TextContent("Report for Maria Garcia")},
		Title: "Maria Garcia - discharge summary",
	})
	out, _, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "Maria Garcia", Label: "full_name"}}, redact.MethodMask)
	require.NoError(t, err)
	assertGone(t, out, "Maria Garcia")

	g, _ := parseDoc(t, out)
	infoObj, ok := g.doc.Trailer.Get(raw.NameLiteral("Info"))
	require.True(t, ok)
	title, ok := g.get(g.dict(infoObj), "Title").(raw.String)
	require.True(t, ok)
	assert.Empty(t, title.Value())
}

func TestRedact_DropsUnreachableObjects(t *testing.T) {
	in := testutil.BuildTestPDF("Token abc123secret end")
	out, _, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "abc123secret", Label: "api_key"}}, redact.MethodMask)
	require.NoError(t, err)
	// The replaced content stream must not survive as an orphan object.
	assertGone(t, out, "abc123secret")
}

func TestRedact_RejectsGarbage(t *testing.T) {
	_, _, err := NewRedactor(Options{}).Redact(context.Background(), []byte("not a pdf"),
		[]Target{{Text: "x", Label: "first_name"}}, redact.MethodMask)
	require.Error(t, err)
}

func TestRedact_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewRedactor(Options{}).Redact(ctx, testutil.BuildTestPDF("a", "b"),
		[]Target{{Text: "a", Label: "first_name"}}, redact.MethodMask)
	require.Error(t, err)
}

func TestRedact_IsDestructive(t *testing.T) {
	in := testutil.BuildTestPDF("Member ID 99887766")
	out, _, err := NewRedactor(Options{StrictLocate: true}).Redact(context.Background(), in,
		[]Target{{Text: "99887766", Label: "account_number"}}, redact.MethodHash)
	require.NoError(t, err)

	// Only the digest token remains; the original digits are nowhere in the file.
	assertGone(t, out, "99887766")
	assert.Contains(t, pageTexts(t, out)[0], redact.HashToken("99887766"))
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, [3]float64{1, 1, 1}, StyleFor(redact.MethodRemove).Fill)
	assert.False(t, StyleFor(redact.MethodRemove).Overlay)
	assert.True(t, StyleFor(redact.MethodReplace).Overlay)
	assert.True(t, StyleFor(redact.MethodHash).Overlay)
	assert.Equal(t, [3]float64{0.3, 0.3, 0.3}, StyleFor(redact.MethodHash).Text)
	assert.Equal(t, MarkStyle{}, StyleFor(redact.MethodMask))

	assert.Equal(t, "[ssn]", OverlayToken(redact.MethodReplace, "123", "ssn"))
	assert.Equal(t, redact.HashToken("123"), OverlayToken(redact.MethodHash, "123", "ssn"))
	assert.Empty(t, OverlayToken(redact.MethodMask, "123", "ssn"))
}
