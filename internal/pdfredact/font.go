package pdfredact

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wudi/pdfkit/ir/raw"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultAscent  = 0.8
	defaultDescent = -0.2
)

// font holds what text location needs from a font resource: how to split a
// string into codes, what each code reads as, and how far it advances.
type font struct {
	composite bool
	toUnicode *cmap
	encoding  *cmap
	diffs     map[byte]rune
	widths    map[uint32]float64
	defWidth  float64
	scale     float64
	std       *[95]int
	fixed     float64
	ascent    float64
	descent   float64
}

// charCode is one code of a shown string. lo and hi delimit its bytes.
type charCode struct {
	lo, hi int
	runes  []rune
	width  float64
	space  bool
}

func loadFont(ctx context.Context, g *graph, obj raw.Object) *font {
	d := g.dict(obj)
	f := &font{scale: 0.001, ascent: defaultAscent, descent: defaultDescent, widths: make(map[uint32]float64)}
	if d == nil {
		f.std = &helveticaWidths
		return f
	}
	if tu, ok := g.resolve(d.KV["ToUnicode"]).(*raw.StreamObj); ok {
		if data, err := g.decode(ctx, tu); err == nil {
			f.toUnicode, _ = parseCMap(data)
		}
	}

	descriptor := g.getDict(d, "FontDescriptor")
	switch g.getName(d, "Subtype") {
	case "Type0":
		f.composite = true
		f.defWidth = 1000
		if enc, ok := g.resolve(d.KV["Encoding"]).(*raw.StreamObj); ok {
			if data, err := g.decode(ctx, enc); err == nil {
				f.encoding, _ = parseCMap(data)
			}
		}
		if kids := g.getArray(d, "DescendantFonts"); kids != nil && len(kids.Items) > 0 {
			cid := g.dict(kids.Items[0])
			if dw, ok := g.getNumber(cid, "DW"); ok {
				f.defWidth = dw
			}
			f.loadCIDWidths(g, g.getArray(cid, "W"))
			descriptor = g.getDict(cid, "FontDescriptor")
		}
	case "Type3":
		if m := g.numbers(g.getArray(d, "FontMatrix")); len(m) == 6 && m[0] != 0 {
			f.scale = m[0]
		}
		f.loadSimpleWidths(g, d)
		f.loadDifferences(g, d)
	default:
		f.loadSimpleWidths(g, d)
		f.loadDifferences(g, d)
		if len(f.widths) == 0 {
			base := g.getName(d, "BaseFont")
			if i := strings.IndexByte(base, '+'); i >= 0 {
				base = base[i+1:]
			}
			switch {
			case strings.Contains(base, "Courier"):
				f.fixed = 600
			default:
				f.std = &helveticaWidths
			}
		}
	}

	if descriptor != nil {
		if a, ok := g.getNumber(descriptor, "Ascent"); ok && a > 0 {
			f.ascent = a / 1000
		}
		if dsc, ok := g.getNumber(descriptor, "Descent"); ok && dsc < 0 {
			f.descent = max(dsc/1000, -0.5)
		}
		if !f.composite {
			if mw, ok := g.getNumber(descriptor, "MissingWidth"); ok && mw > 0 {
				f.defWidth = mw
			}
		}
	}
	if f.defWidth == 0 {
		f.defWidth = 500
	}
	return f
}

func (f *font) loadSimpleWidths(g *graph, d *raw.DictObj) {
	widths := g.numbers(g.getArray(d, "Widths"))
	if len(widths) == 0 {
		return
	}
	first, _ := g.getNumber(d, "FirstChar")
	for i, w := range widths {
		f.widths[uint32(int(first)+i)] = w
	}
}

// loadCIDWidths reads a W array: "c [w1 w2 ...]" or "cFirst cLast w".
func (f *font) loadCIDWidths(g *graph, w *raw.ArrayObj) {
	if w == nil {
		return
	}
	items := w.Items
	for i := 0; i < len(items); {
		start, ok := numberOf(g.resolve(items[i]))
		if !ok || i+1 >= len(items) {
			return
		}
		switch next := g.resolve(items[i+1]).(type) {
		case *raw.ArrayObj:
			for j, v := range g.numbers(next) {
				f.widths[uint32(int(start)+j)] = v
			}
			i += 2
		default:
			if i+2 >= len(items) {
				return
			}
			end, _ := numberOf(next)
			width, _ := numberOf(g.resolve(items[i+2]))
			if end-start > maxRangeExpansion {
				end = start + maxRangeExpansion
			}
			for c := int(start); c <= int(end); c++ {
				f.widths[uint32(c)] = width
			}
			i += 3
		}
	}
}

func (f *font) loadDifferences(g *graph, d *raw.DictObj) {
	enc := g.dict(d.KV["Encoding"])
	diffs := g.getArray(enc, "Differences")
	if diffs == nil {
		return
	}
	f.diffs = make(map[byte]rune)
	code := 0
	for _, it := range diffs.Items {
		switch v := g.resolve(it).(type) {
		case raw.Number:
			code = int(v.Float())
		case raw.Name:
			if r, ok := glyphRune(v.Value()); ok && code >= 0 && code < 256 {
				f.diffs[byte(code)] = r
			}
			code++
		}
	}
}

// codes splits a shown string into character codes.
func (f *font) codes(s []byte) []charCode {
	out := make([]charCode, 0, len(s))
	for i := 0; i < len(s); {
		n := 1
		if f.composite {
			cs := f.encoding
			if cs == nil || len(cs.spaces) == 0 {
				cs = f.toUnicode
			}
			n = cs.codeLength(s, i, 2)
			if i+n > len(s) {
				n = len(s) - i
			}
		}
		b := s[i : i+n]
		code := codeValue(b)
		cc := charCode{lo: i, hi: i + n, width: f.width(code), space: n == 1 && b[0] == ' '}
		cc.runes = f.runesFor(b, code)
		out = append(out, cc)
		i += n
	}
	return out
}

func (f *font) width(code uint32) float64 {
	if w, ok := f.widths[code]; ok {
		return w * f.scale
	}
	if f.std != nil && code >= 32 && code <= 126 {
		return float64(f.std[code-32]) / 1000
	}
	if f.fixed > 0 {
		return f.fixed / 1000
	}
	return f.defWidth * f.scale
}

func (f *font) runesFor(code []byte, v uint32) []rune {
	if r, ok := f.toUnicode.lookup(code); ok {
		return expandLigatures(r)
	}
	if f.composite {
		return nil
	}
	if r, ok := f.diffs[byte(v)]; ok {
		return expandLigatures([]rune{r})
	}
	r := charmap.Windows1252.DecodeByte(byte(v))
	if r == utf8.RuneError {
		return nil
	}
	return []rune{r}
}

// expandLigatures applies compatibility decomposition so "ﬁ" reads as "fi".
func expandLigatures(r []rune) []rune {
	s := string(r)
	if norm.NFKC.IsNormalString(s) {
		return r
	}
	return []rune(norm.NFKC.String(s))
}

var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": '’',
	"quoteleft": '‘', "parenleft": '(', "parenright": ')', "asterisk": '*',
	"plus": '+', "comma": ',', "hyphen": '-', "minus": '−', "period": '.',
	"slash": '/', "zero": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9', "colon": ':',
	"semicolon": ';', "less": '<', "equal": '=', "greater": '>', "question": '?',
	"at": '@', "bracketleft": '[', "backslash": '\\', "bracketright": ']',
	"asciicircum": '^', "underscore": '_', "grave": '`', "braceleft": '{', "bar": '|',
	"braceright": '}', "asciitilde": '~', "endash": '–', "emdash": '—',
	"bullet": '•', "fi": '\ufb01', "fl": '\ufb02', "quotedblleft": '“',
	"quotedblright": '”', "ellipsis": '…', "germandbls": 'ß', "ae": 'æ',
	"AE": 'Æ', "oslash": 'ø', "Oslash": 'Ø', "section": '§', "degree": '°',
	"copyright": '©', "registered": '®', "trademark": '™', "nbspace": '\u00a0',
}

var accentSuffixes = []struct {
	suffix string
	mark   rune
}{
	{"acute", '\u0301'}, {"grave", '\u0300'}, {"circumflex", '\u0302'}, {"tilde", '\u0303'},
	{"dieresis", '\u0308'}, {"ring", '\u030a'}, {"cedilla", '\u0327'}, {"caron", '\u030c'},
}

// glyphRune maps a glyph name to a rune: AGL-style uniXXXX and uXXXX names,
// single letters, a table of common names, and letter+accent names.
func glyphRune(name string) (rune, bool) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if len(name) == 1 {
		return rune(name[0]), true
	}
	if strings.HasPrefix(name, "uni") && len(name) == 7 {
		if v, err := strconv.ParseUint(name[3:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	for _, a := range accentSuffixes {
		if len(name) == len(a.suffix)+1 && strings.HasSuffix(name, a.suffix) {
			composed := norm.NFC.String(string([]rune{rune(name[0]), a.mark}))
			if r := []rune(composed); len(r) == 1 {
				return r[0], true
			}
		}
	}
	return 0, false
}

// helveticaWidths are the Helvetica advance widths for codes 32..126.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space../
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, // 0..9
	278, 278, 584, 584, 584, 556, 1015, // :..@
	667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, // A..M
	722, 778, 667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, // N..Z
	278, 278, 278, 469, 556, 333, // [..`
	556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, // a..m
	556, 556, 556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, // n..z
	334, 260, 334, 584, // {..~
}

// textWidth returns the Helvetica width of s at size 1, counting non-ASCII
// runes at the average lowercase width.
func textWidth(s string) float64 {
	var w int
	for _, r := range s {
		if r >= 32 && r <= 126 {
			w += helveticaWidths[r-32]
		} else {
			w += 556
		}
	}
	return float64(w) / 1000
}
