package pdfredact

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wudi/pdfkit/ir/raw"
	"golang.org/x/text/unicode/norm"
)

const maxFormDepth = 8

// contentStream is a decoded content stream whose text operations can be
// rewritten. ref is zero for the page's own contents.
type contentStream struct {
	ref      raw.ObjectRef
	stream   *raw.StreamObj
	data     []byte
	ops      []operation
	removals map[opElem][]removal
}

type opElem struct{ op, elem int }

// removal drops bytes [lo,hi) of one shown string. adjust is the TJ offset
// that keeps the following glyphs where they were.
type removal struct {
	lo, hi int
	adjust float64
}

func newContentStream(data []byte) (*contentStream, error) {
	ops, err := parseContent(data)
	if err != nil {
		return nil, err
	}
	return &contentStream{data: data, ops: ops, removals: make(map[opElem][]removal)}, nil
}

func (cs *contentStream) remove(gl glyph) {
	key := opElem{op: gl.op, elem: gl.elem}
	for _, r := range cs.removals[key] {
		if r.lo == gl.lo && r.hi == gl.hi {
			return
		}
	}
	cs.removals[key] = append(cs.removals[key], removal{lo: gl.lo, hi: gl.hi, adjust: gl.adjust})
}

// glyph is one located character code in drawing order.
type glyph struct {
	cs     *contentStream
	op     int
	elem   int
	lo, hi int
	adjust float64
	runes  []rune
	box    rect
}

type gstate struct {
	ctm       matrix
	font      *font
	fontSize  float64
	charSpace float64
	wordSpace float64
	hscale    float64
	leading   float64
	rise      float64
}

// walker interprets content streams and records every shown glyph.
type walker struct {
	ctx      context.Context
	g        *graph
	fonts    map[any]*font
	forms    map[raw.ObjectRef]*contentStream
	fallback *font
	glyphs   []glyph
}

func newWalker(ctx context.Context, g *graph) *walker {
	return &walker{
		ctx:      ctx,
		g:        g,
		fonts:    make(map[any]*font),
		forms:    make(map[raw.ObjectRef]*contentStream),
		fallback: &font{scale: 0.001, std: &helveticaWidths, ascent: defaultAscent, descent: defaultDescent, defWidth: 500},
	}
}

func (w *walker) fontFor(resources *raw.DictObj, name string) *font {
	fonts := w.g.getDict(resources, "Font")
	if fonts == nil {
		return w.fallback
	}
	obj, ok := fonts.KV[name]
	if !ok {
		return w.fallback
	}
	var key any
	switch v := obj.(type) {
	case raw.Reference:
		key = v.Ref()
	default:
		key = w.g.dict(v)
	}
	if f, ok := w.fonts[key]; ok {
		return f
	}
	f := loadFont(w.ctx, w.g, obj)
	w.fonts[key] = f
	return f
}

func (w *walker) walk(cs *contentStream, resources *raw.DictObj, ctm matrix, depth int) error {
	st := gstate{ctm: ctm, hscale: 1, font: w.fallback}
	var stack []gstate
	tm, tlm := identity, identity
	nextLine := func() {
		tlm = translate(0, -st.leading).mul(tlm)
		tm = tlm
	}
	for i, op := range cs.ops {
		if i%256 == 0 {
			if err := w.ctx.Err(); err != nil {
				return err
			}
		}
		switch op.name {
		case "q":
			stack = append(stack, st)
		case "Q":
			if n := len(stack); n > 0 {
				st, stack = stack[n-1], stack[:n-1]
			}
		case "cm":
			st.ctm = matrixOf(opNumbers(op)).mul(st.ctm)
		case "BT":
			tm, tlm = identity, identity
		case "Tf":
			st.font = w.fontFor(resources, op.nameArg(0))
			st.fontSize = op.number(1)
		case "Tc":
			st.charSpace = op.number(0)
		case "Tw":
			st.wordSpace = op.number(0)
		case "Tz":
			st.hscale = op.number(0) / 100
		case "TL":
			st.leading = op.number(0)
		case "Ts":
			st.rise = op.number(0)
		case "Td":
			tlm = translate(op.number(0), op.number(1)).mul(tlm)
			tm = tlm
		case "TD":
			st.leading = -op.number(1)
			tlm = translate(op.number(0), op.number(1)).mul(tlm)
			tm = tlm
		case "Tm":
			tlm = matrixOf(opNumbers(op))
			tm = tlm
		case "T*":
			nextLine()
		case "Tj":
			if s, ok := stringArg(op, 0); ok {
				tm = w.show(cs, i, 0, s, &st, tm)
			}
		case "'":
			nextLine()
			if s, ok := stringArg(op, 0); ok {
				tm = w.show(cs, i, 0, s, &st, tm)
			}
		case "\"":
			st.wordSpace = op.number(0)
			st.charSpace = op.number(1)
			nextLine()
			if s, ok := stringArg(op, 2); ok {
				tm = w.show(cs, i, 2, s, &st, tm)
			}
		case "TJ":
			if len(op.args) == 0 || op.args[0].kind != kindArray {
				continue
			}
			for j, it := range op.args[0].items {
				switch it.kind {
				case kindNumber:
					tm = translate(-it.num/1000*st.fontSize*st.hscale, 0).mul(tm)
				case kindString:
					tm = w.show(cs, i, j, it.str, &st, tm)
				}
			}
		case "Do":
			if depth < maxFormDepth {
				if err := w.form(resources, op.nameArg(0), st.ctm, depth); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *walker) show(cs *contentStream, opIdx, elem int, s []byte, st *gstate, tm matrix) matrix {
	fs, th := st.fontSize, st.hscale
	for _, cc := range st.font.codes(s) {
		adv := cc.width*fs + st.charSpace
		if cc.space {
			adv += st.wordSpace
		}
		adv *= th
		ink := cc.width * fs * th
		if ink == 0 {
			ink = adv
		}
		m := tm.mul(st.ctm)
		box := transformBox(m, 0, st.rise+st.font.descent*fs, ink, st.rise+st.font.ascent*fs)
		var adjust float64
		if fs*th != 0 {
			adjust = -adv * 1000 / (fs * th)
		}
		w.glyphs = append(w.glyphs, glyph{
			cs: cs, op: opIdx, elem: elem, lo: cc.lo, hi: cc.hi,
			adjust: adjust, runes: cc.runes, box: box,
		})
		tm = translate(adv, 0).mul(tm)
	}
	return tm
}

func (w *walker) form(resources *raw.DictObj, name string, ctm matrix, depth int) error {
	xobjects := w.g.getDict(resources, "XObject")
	if xobjects == nil {
		return nil
	}
	ref, ok := xobjects.KV[name].(raw.Reference)
	if !ok {
		return nil
	}
	stream, ok := w.g.resolve(ref).(*raw.StreamObj)
	if !ok || w.g.getName(stream.Dict, "Subtype") != "Form" {
		return nil
	}
	cs, ok := w.forms[ref.Ref()]
	if !ok {
		data, err := w.g.decode(w.ctx, stream)
		if err != nil {
			return err
		}
		cs, err = newContentStream(data)
		if err != nil {
			return err
		}
		cs.ref, cs.stream = ref.Ref(), stream
		w.forms[ref.Ref()] = cs
	}
	formRes := w.g.getDict(stream.Dict, "Resources")
	if formRes == nil {
		formRes = resources
	}
	formCTM := matrixOf(w.g.numbers(w.g.getArray(stream.Dict, "Matrix"))).mul(ctm)
	return w.walk(cs, formRes, formCTM, depth+1)
}

func opNumbers(op operation) []float64 {
	out := make([]float64, 0, len(op.args))
	for _, a := range op.args {
		if a.kind == kindNumber {
			out = append(out, a.num)
		}
	}
	return out
}

func stringArg(op operation, i int) ([]byte, bool) {
	if i < len(op.args) && op.args[i].kind == kindString {
		return op.args[i].str, true
	}
	return nil, false
}

// searchKey normalizes text for matching: compatibility-composed, lower case
// and without whitespace, so line breaks and positioned words still match.
func searchKey(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, norm.NFKC.String(s))
}

// pageText indexes the glyphs of one page for searching.
type pageText struct {
	hay   string
	owner []int
}

func indexGlyphs(glyphs []glyph) pageText {
	var (
		b     strings.Builder
		owner []int
	)
	for gi, gl := range glyphs {
		for _, r := range gl.runes {
			if unicode.IsSpace(r) {
				continue
			}
			r = unicode.ToLower(r)
			n, _ := b.WriteRune(r)
			for k := 0; k < n; k++ {
				owner = append(owner, gi)
			}
		}
	}
	return pageText{hay: b.String(), owner: owner}
}

// find returns, for every occurrence of key, the indices of the glyphs from
// its first to its last matched glyph. Whitespace glyphs inside an occurrence
// are included. Overlapping occurrences are all reported.
func (pt pageText) find(key string) [][]int {
	if key == "" {
		return nil
	}
	var out [][]int
	for from := 0; from < len(pt.hay); {
		k := strings.Index(pt.hay[from:], key)
		if k < 0 {
			break
		}
		start := from + k
		first, last := pt.owner[start], pt.owner[start+len(key)-1]
		idx := make([]int, 0, last-first+1)
		for gi := first; gi <= last; gi++ {
			idx = append(idx, gi)
		}
		out = append(out, idx)
		_, size := utf8.DecodeRuneInString(pt.hay[start:])
		from = start + size
	}
	return out
}

// boxes merges the boxes of an occurrence's glyphs into one rect per line.
func boxes(glyphs []glyph, idx []int) []rect {
	var (
		out  []rect
		cur  rect
		have bool
	)
	for _, gi := range idx {
		b := glyphs[gi].box
		if b.empty() {
			continue
		}
		if have && sameLine(cur, b) {
			cur = cur.union(b)
			continue
		}
		if have {
			out = append(out, cur)
		}
		cur, have = b, true
	}
	if have {
		out = append(out, cur)
	}
	return out
}
