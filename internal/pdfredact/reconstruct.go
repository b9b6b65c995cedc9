package pdfredact

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/wudi/pdfkit/builder"
	"github.com/wudi/pdfkit/ir/semantic"
	"github.com/wudi/pdfkit/writer"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Page sizes in points.
var (
	PageLetter = PageSize{Width: 612, Height: 792}
	PageA4     = PageSize{Width: 595, Height: 842}
)

// PageSize is a page width and height in points.
type PageSize struct {
	Width  float64
	Height float64
}

// Layout controls reconstructed documents.
type Layout struct {
	Page       PageSize
	Margin     float64
	FontSize   float64
	LineHeight float64
	Title      string
}

// DefaultLayout flows Helvetica 10 on 12 point lines inside 50 point margins.
func DefaultLayout() Layout {
	return Layout{Page: PageLetter, Margin: 50, FontSize: 10, LineHeight: 12}
}

// Reconstruct builds a new PDF holding text as fixed-size lines, top to bottom
// within the margins, starting a new page when vertical space runs out. Lines
// wider than the text column wrap at word boundaries. Original layout is not
// preserved.
func Reconstruct(ctx context.Context, text string, layout Layout) ([]byte, error) {
	_, span := tracer.Start(ctx, "pdfredact.reconstruct")
	defer span.End()

	if layout.Page.Width <= 2*layout.Margin || layout.Page.Height <= 2*layout.Margin {
		return nil, fmt.Errorf("page %vx%v leaves no room inside %v margins", layout.Page.Width, layout.Page.Height, layout.Margin)
	}
	if layout.FontSize <= 0 || layout.LineHeight <= 0 {
		return nil, fmt.Errorf("font size and line height must be positive")
	}

	b := builder.NewBuilder()
	if layout.Title != "" {
		b.SetInfo(&semantic.DocumentInfo{Title: toWinAnsiSafe(layout.Title), Producer: "redactx"})
	}
	column := layout.Page.Width - 2*layout.Margin
	top := layout.Page.Height - layout.Margin

	pg := b.NewPage(layout.Page.Width, layout.Page.Height)
	y := top
	for _, line := range flowLines(text, column, layout.FontSize) {
		if y < layout.Margin {
			pg.Finish()
			pg = b.NewPage(layout.Page.Width, layout.Page.Height)
			y = top
		}
		if line != "" {
			pg.DrawText(line, layout.Margin, y, builder.TextOptions{FontSize: layout.FontSize})
		}
		y -= layout.LineHeight
	}
	pg.Finish()

	doc, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}
	for _, p := range doc.Pages {
		for i := range p.Contents {
			p.Contents[i].RawBytes = serializeOperations(p.Contents[i].Operations)
		}
	}
	var out bytes.Buffer
	w := (&writer.WriterBuilder{}).Build()
	if err := w.Write(ctx, doc, &out, writer.Config{Version: writer.PDF17, Deterministic: true}); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return out.Bytes(), nil
}

// flowLines splits text on newlines, makes it safe for the standard Helvetica
// encoding and wraps lines wider than column.
func flowLines(text string, column, size float64) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(toWinAnsiSafe(line), "\t", "    ")
		out = append(out, wrap(line, column, size)...)
	}
	return out
}

func wrap(line string, column, size float64) []string {
	if textWidth(line)*size <= column {
		return []string{line}
	}
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		out = append(out, strings.TrimRight(cur.String(), " "))
		cur.Reset()
	}
	for _, word := range strings.SplitAfter(line, " ") {
		if cur.Len() > 0 && textWidth(cur.String()+strings.TrimRight(word, " "))*size > column {
			flush()
		}
		// A single word wider than the column is broken by characters.
		for textWidth(word)*size > column {
			cut := 1
			for cut < len(word) && textWidth(word[:cut+1])*size <= column {
				cut++
			}
			if cur.Len() > 0 {
				flush()
			}
			out = append(out, word[:cut])
			word = word[cut:]
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		flush()
	}
	return out
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// toWinAnsiSafe folds text to printable ASCII: accents are stripped and any
// other rune becomes '?'. The writer's core font carries no encoding
// dictionary, so only ASCII renders reliably.
func toWinAnsiSafe(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return r
		case r >= 32 && r <= 126:
			return r
		case unicode.IsSpace(r):
			return ' '
		case r == '‘' || r == '’':
			return '\''
		case r == '“' || r == '”':
			return '"'
		case r == '–' || r == '—':
			return '-'
		default:
			return '?'
		}
	}, folded)
}

// serializeOperations renders builder operations as content stream bytes.
func serializeOperations(ops []semantic.Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		for _, operand := range op.Operands {
			writeOperand(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeOperand(buf *bytes.Buffer, o semantic.Operand) {
	switch v := o.(type) {
	case semantic.NumberOperand:
		buf.WriteString(formatNumber(v.Value))
	case semantic.NameOperand:
		writeName(buf, v.Value)
	case semantic.StringOperand:
		buf.WriteByte('<')
		for _, c := range v.Value {
			fmt.Fprintf(buf, "%02x", c)
		}
		buf.WriteByte('>')
	case semantic.ArrayOperand:
		buf.WriteByte('[')
		for i, it := range v.Values {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeOperand(buf, it)
		}
		buf.WriteByte(']')
	case semantic.DictOperand:
		keys := make([]string, 0, len(v.Values))
		for k := range v.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("<<")
		for _, k := range keys {
			writeName(buf, k)
			buf.WriteByte(' ')
			writeOperand(buf, v.Values[k])
			buf.WriteByte(' ')
		}
		buf.WriteString(">>")
	default:
		buf.WriteString("null")
	}
}
