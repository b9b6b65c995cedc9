package pdfredact

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

const (
	overlayFontSize = 8
	overlayPad      = 1
	// Helvetica cap height, used to centre overlay text vertically.
	capHeight = 0.718
)

// MarkStyle is the visual encoding of a redaction box.
type MarkStyle struct {
	Fill    [3]float64
	Text    [3]float64
	Overlay bool
}

// StyleFor returns the mark style for a method: remove paints the page
// background, replace and hash paint a light box carrying a token, and every
// other method paints an opaque black box.
func StyleFor(m redact.Method) MarkStyle {
	switch m {
	case redact.MethodRemove:
		return MarkStyle{Fill: [3]float64{1, 1, 1}}
	case redact.MethodReplace, redact.MethodHash:
		return MarkStyle{Fill: [3]float64{0.9, 0.9, 0.9}, Text: [3]float64{0.3, 0.3, 0.3}, Overlay: true}
	default:
		return MarkStyle{}
	}
}

// OverlayToken is the text drawn inside a replace or hash mark.
func OverlayToken(m redact.Method, text, label string) string {
	switch m {
	case redact.MethodReplace:
		return redact.MaskToken(label)
	case redact.MethodHash:
		return redact.HashToken(text)
	default:
		return ""
	}
}

// mark is one staged redaction box.
type mark struct {
	box   rect
	token string
}

var winAnsi = encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())

// markContent renders marks as page content drawn over everything else.
func markContent(marks []mark, style MarkStyle, fontRes string) []byte {
	var buf bytes.Buffer
	for _, mk := range marks {
		b := mk.box
		fmt.Fprintf(&buf, "q %s %s %s rg %s %s %s %s re f\n",
			formatNumber(style.Fill[0]), formatNumber(style.Fill[1]), formatNumber(style.Fill[2]),
			formatNumber(b.llx), formatNumber(b.lly), formatNumber(b.width()), formatNumber(b.height()))
		if style.Overlay && mk.token != "" && fontRes != "" {
			writeOverlay(&buf, b, mk.token, style, fontRes)
		}
		buf.WriteString("Q\n")
	}
	return buf.Bytes()
}

func writeOverlay(buf *bytes.Buffer, b rect, token string, style MarkStyle, fontRes string) {
	size := float64(overlayFontSize)
	if h := b.height() * 0.9; size > h {
		size = h
	}
	if tw, avail := textWidth(token)*size, b.width()-2*overlayPad; tw > avail && avail > 0 {
		size = size * avail / tw
	}
	if size < 1 {
		return
	}
	encoded, err := winAnsi.String(token)
	if err != nil {
		return
	}
	x := b.llx + overlayPad
	y := b.lly + (b.height()-size*capHeight)/2
	fmt.Fprintf(buf, "%s %s %s %s re W n\n",
		formatNumber(b.llx), formatNumber(b.lly), formatNumber(b.width()), formatNumber(b.height()))
	fmt.Fprintf(buf, "BT /%s %s Tf %s %s %s rg 1 0 0 1 %s %s Tm ",
		fontRes, formatNumber(size),
		formatNumber(style.Text[0]), formatNumber(style.Text[1]), formatNumber(style.Text[2]),
		formatNumber(x), formatNumber(y))
	writeHex(buf, []byte(encoded))
	buf.WriteString("Tj ET\n")
}
