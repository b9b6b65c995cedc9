package testutil

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strings"
)

// PDFSpec describes a hand-built test PDF. Every page uses Helvetica as /F1.
type PDFSpec struct {
	// Pages holds one raw content stream per page.
	Pages []string
	// Form, when set, is the content of a Form XObject available as /Fm1.
	Form string
	// Title is written to the document information dictionary.
	Title string
	// Compress stores page content with FlateDecode.
	Compress bool
}

// BuildTestPDF returns a minimal PDF with one page per argument. Lines of
// each page are drawn top to bottom in Helvetica 12.
func BuildTestPDF(pages ...string) []byte {
	spec := PDFSpec{}
	for _, p := range pages {
		spec.Pages = append(spec.Pages, TextContent(strings.Split(p, "\n")...))
	}
	return BuildPDF(spec)
}

// TextContent renders lines as a content stream starting at (72, 720).
func TextContent(lines ...string) string {
	var b strings.Builder
	b.WriteString("BT /F1 12 Tf 14 TL 72 720 Td")
	for i, l := range lines {
		if i > 0 {
			b.WriteString(" T*")
		}
		fmt.Fprintf(&b, " (%s) Tj", EscapePDFString(l))
	}
	b.WriteString(" ET")
	return b.String()
}

// EscapePDFString escapes s for use inside a literal string.
func EscapePDFString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}

// BuildPDF serializes spec with a classic cross-reference table.
func BuildPDF(spec PDFSpec) []byte {
	if len(spec.Pages) == 0 {
		spec.Pages = []string{""}
	}
	// 1 catalog, 2 pages, 3 font, 4 info, 5 form, then page/content pairs.
	objs := map[int]string{
		1: "<< /Type /Catalog /Pages 2 0 R >>",
		3: "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		4: fmt.Sprintf("<< /Title (%s) /Producer (testutil) >>", EscapePDFString(spec.Title)),
	}
	resources := "<< /Font << /F1 3 0 R >> >>"
	if spec.Form != "" {
		objs[5] = streamObject(fmt.Sprintf("/Type /XObject /Subtype /Form /BBox [0 0 612 792] /Resources %s", resources), spec.Form, false)
		resources = "<< /Font << /F1 3 0 R >> /XObject << /Fm1 5 0 R >> >>"
	}
	kids := make([]string, 0, len(spec.Pages))
	next := 6
	for _, content := range spec.Pages {
		pageNum, contentNum := next, next+1
		next += 2
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNum))
		objs[pageNum] = fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources %s >>", contentNum, resources)
		objs[contentNum] = streamObject("", content, spec.Compress)
	}
	objs[2] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, next)
	for n := 1; n < next; n++ {
		body, ok := objs[n]
		if !ok {
			continue
		}
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", next)
	buf.WriteString("0000000000 65535 f \r\n")
	for n := 1; n < next; n++ {
		if offsets[n] == 0 {
			buf.WriteString("0000000000 00000 f \r\n")
			continue
		}
		fmt.Fprintf(&buf, "%010d 00000 n \r\n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", next, xrefOffset)
	return buf.Bytes()
}

func streamObject(dict, content string, compress bool) string {
	data := []byte(content)
	if compress {
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		_, _ = zw.Write(data)
		_ = zw.Close()
		data = z.Bytes()
		dict += " /Filter /FlateDecode"
	}
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", strings.TrimSpace(dict), len(data), data)
}
