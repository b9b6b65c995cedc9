// Package pdfredact removes text from PDF documents. The in-place redactor
// rewrites page content so located glyphs are gone from the file and covers
// their boxes with marks; Reconstruct builds a fresh document from plain text.
//
// Both paths are destructive: nothing in the output links a mark back to the
// text it replaced.
package pdfredact

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wudi/pdfkit/ir/raw"
	"github.com/wudi/pdfkit/parser"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	rdxotel "github.com/TheNetJedi/pii-redaction-openmed/internal/otel"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/redact"
)

var tracer = rdxotel.Tracer("github.com/TheNetJedi/pii-redaction-openmed/internal/pdfredact")

var (
	// ErrEncrypted reports an encrypted input, which is never rewritten in place.
	ErrEncrypted = errors.New("pdf is encrypted")
	// ErrNoPages reports a document without a readable page tree.
	ErrNoPages = errors.New("pdf has no pages")
	// ErrNotLocated reports target texts that appear on no page.
	ErrNotLocated = errors.New("redaction target not found in page content")
)

const (
	defaultMaxDecoded = 256 << 20
	overlayFontName   = "RdxHelv"
)

// Target is one text to redact wherever it appears.
type Target struct {
	Text  string
	Label string
}

// Options configures a Redactor.
type Options struct {
	// StrictLocate fails the redaction when a target text is found on no
	// page, so callers can fall back to a path that does not depend on
	// locating text.
	StrictLocate bool
	// MaxDecodedBytes bounds each decoded content stream.
	MaxDecodedBytes int64
}

// Report summarizes one in-place redaction.
type Report struct {
	Pages        int `json:"pages"`
	PagesChanged int `json:"pages_changed"`
	Occurrences  int `json:"occurrences"`
	Marks        int `json:"marks"`
	Unlocated    int `json:"unlocated"`
}

// Redactor performs in-place PDF redaction. It holds no per-document state
// and is safe for concurrent use.
type Redactor struct {
	opts Options
}

// NewRedactor returns a Redactor.
func NewRedactor(opts Options) *Redactor {
	if opts.MaxDecodedBytes <= 0 {
		opts.MaxDecodedBytes = defaultMaxDecoded
	}
	return &Redactor{opts: opts}
}

type needle struct {
	key   string
	text  string
	label string
	found bool
}

func needles(targets []Target) []*needle {
	seen := make(map[string]bool)
	var out []*needle
	for _, t := range targets {
		key := searchKey(t.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, &needle{key: key, text: t.Text, label: t.Label})
	}
	return out
}

type page struct {
	dict      *raw.DictObj
	resources *raw.DictObj
}

// Redact removes every occurrence of each target text from pdf. Matching is
// text based: every occurrence is redacted, not only the detected instance.
// Pages are processed in order and committed one at a time.
func (r *Redactor) Redact(ctx context.Context, pdf []byte, targets []Target, method redact.Method) ([]byte, *Report, error) {
	ctx, span := tracer.Start(ctx, "pdfredact.in_place")
	defer span.End()

	out, report, err := r.redact(ctx, pdf, targets, method)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "in-place redaction failed")
		return nil, report, err
	}
	span.SetAttributes(
		attribute.Int("pdf.pages", report.Pages),
		attribute.Int("pdf.pages_changed", report.PagesChanged),
		attribute.Int("pdf.marks", report.Marks),
	)
	return out, report, nil
}

func (r *Redactor) redact(ctx context.Context, pdf []byte, targets []Target, method redact.Method) ([]byte, *Report, error) {
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(ctx, bytes.NewReader(pdf))
	if err != nil {
		return nil, nil, fmt.Errorf("parse pdf: %w", err)
	}
	if doc.Encrypted {
		return nil, nil, ErrEncrypted
	}
	if doc.Trailer == nil {
		return nil, nil, fmt.Errorf("parse pdf: missing trailer")
	}
	g := newGraph(doc, r.opts.MaxDecodedBytes)
	rootObj, _ := doc.Trailer.Get(raw.NameLiteral("Root"))
	pages := collectPages(g, g.dict(rootObj))
	if len(pages) == 0 {
		return nil, nil, ErrNoPages
	}

	report := &Report{Pages: len(pages)}
	ns := needles(targets)
	style := StyleFor(method)
	w := newWalker(ctx, g)

	for i, pg := range pages {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		changed, err := r.redactPage(ctx, g, w, pg, ns, method, style, report)
		if err != nil {
			return nil, report, fmt.Errorf("page %d: %w", i+1, err)
		}
		if changed {
			report.PagesChanged++
		}
	}
	for _, cs := range w.forms {
		if len(cs.removals) == 0 {
			continue
		}
		data, err := deflate(cs.rewrite())
		if err != nil {
			return nil, report, err
		}
		dict := copyDict(cs.stream.Dict)
		delete(dict.KV, "DecodeParms")
		dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
		g.doc.Objects[cs.ref] = raw.NewStream(dict, data)
	}

	var unlocated []string
	for _, n := range ns {
		if !n.found {
			unlocated = append(unlocated, n.label)
		}
	}
	report.Unlocated = len(unlocated)
	if len(unlocated) > 0 {
		log.Debug().Strs("labels", unlocated).Int("count", len(unlocated)).Msg("pdf_targets_unlocated")
		if r.opts.StrictLocate {
			return nil, report, fmt.Errorf("%w: %d of %d targets", ErrNotLocated, len(unlocated), len(ns))
		}
	}
	scrubInfo(g, ns)

	out, err := g.serialize()
	if err != nil {
		return nil, report, fmt.Errorf("write pdf: %w", err)
	}
	return out, report, nil
}

func (r *Redactor) redactPage(ctx context.Context, g *graph, w *walker, pg page, ns []*needle, method redact.Method, style MarkStyle, report *Report) (bool, error) {
	data, err := pageContents(ctx, g, pg.dict)
	if err != nil {
		return false, err
	}
	cs, err := newContentStream(data)
	if err != nil {
		return false, err
	}
	w.glyphs = w.glyphs[:0]
	if err := w.walk(cs, pg.resources, identity, 0); err != nil {
		return false, err
	}

	text := indexGlyphs(w.glyphs)
	var marks []mark
	for _, n := range ns {
		for _, occ := range text.find(n.key) {
			n.found = true
			report.Occurrences++
			for _, gi := range occ {
				gl := w.glyphs[gi]
				gl.cs.remove(gl)
			}
			token := OverlayToken(method, n.text, n.label)
			for _, b := range boxes(w.glyphs, occ) {
				marks = append(marks, mark{box: b, token: token})
			}
		}
	}
	if len(marks) == 0 && len(cs.removals) == 0 {
		return false, nil
	}

	fontRes := ""
	if style.Overlay {
		fontRes = addOverlayFont(g, pg)
	}
	var content bytes.Buffer
	content.WriteString("q\n")
	content.Write(cs.rewrite())
	content.WriteString("\nQ\n")
	content.Write(markContent(marks, style, fontRes))
	encoded, err := deflate(content.Bytes())
	if err != nil {
		return false, err
	}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	pg.dict.Set(raw.NameLiteral("Contents"), g.add(raw.NewStream(dict, encoded)))
	report.Marks += len(marks)
	return true, nil
}

func pageContents(ctx context.Context, g *graph, pg *raw.DictObj) ([]byte, error) {
	var streams []*raw.StreamObj
	switch v := g.get(pg, "Contents").(type) {
	case *raw.StreamObj:
		streams = append(streams, v)
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if s, ok := g.resolve(it).(*raw.StreamObj); ok {
				streams = append(streams, s)
			}
		}
	}
	var out bytes.Buffer
	for _, s := range streams {
		data, err := g.decode(ctx, s)
		if err != nil {
			return nil, err
		}
		out.Write(data)
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

// collectPages walks the page tree in document order, resolving inherited
// resources.
func collectPages(g *graph, catalog *raw.DictObj) []page {
	var out []page
	seen := make(map[*raw.DictObj]bool)
	var visit func(node *raw.DictObj, inherited *raw.DictObj, depth int)
	visit = func(node *raw.DictObj, inherited *raw.DictObj, depth int) {
		if node == nil || seen[node] || depth > maxRefDepth {
			return
		}
		seen[node] = true
		res := inherited
		if own := g.getDict(node, "Resources"); own != nil {
			res = own
		}
		kids := g.getArray(node, "Kids")
		if kids == nil || g.getName(node, "Type") == "Page" {
			out = append(out, page{dict: node, resources: res})
			return
		}
		for _, k := range kids.Items {
			visit(g.dict(k), res, depth+1)
		}
	}
	visit(g.getDict(catalog, "Pages"), nil, 0)
	return out
}

// addOverlayFont gives the page its own resource dictionary with a Helvetica
// font for overlay text and returns the resource name.
func addOverlayFont(g *graph, pg page) string {
	res := copyDict(pg.resources)
	fonts := copyDict(g.getDict(pg.resources, "Font"))
	name := overlayFontName
	for i := 1; ; i++ {
		if _, taken := fonts.KV[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s%d", overlayFontName, i)
	}
	f := raw.Dict()
	f.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	f.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type1"))
	f.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral("Helvetica"))
	f.Set(raw.NameLiteral("Encoding"), raw.NameLiteral("WinAnsiEncoding"))
	fonts.Set(raw.NameLiteral(name), g.add(f))
	res.Set(raw.NameLiteral("Font"), fonts)
	pg.dict.Set(raw.NameLiteral("Resources"), res)
	return name
}

// scrubInfo blanks document information strings that contain a target and
// drops the XMP packet, which mirrors them.
func scrubInfo(g *graph, ns []*needle) {
	infoObj, ok := g.doc.Trailer.Get(raw.NameLiteral("Info"))
	if !ok {
		return
	}
	info := g.dict(infoObj)
	if info == nil {
		return
	}
	hit := false
	for k, v := range info.KV {
		s, ok := g.resolve(v).(raw.String)
		if !ok {
			continue
		}
		key := searchKey(decodeTextString(s.Value()))
		for _, n := range ns {
			if strings.Contains(key, n.key) {
				info.KV[k] = raw.Str(nil)
				hit = true
				break
			}
		}
	}
	if !hit {
		return
	}
	rootObj, _ := g.doc.Trailer.Get(raw.NameLiteral("Root"))
	if catalog := g.dict(rootObj); catalog != nil {
		delete(catalog.KV, "Metadata")
	}
}

// decodeTextString decodes a PDF text string: UTF-16BE with a BOM, else
// PDFDocEncoding, read here as Latin-1.
func decodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return string(utf16BE(b[2:]))
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
