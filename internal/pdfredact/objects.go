package pdfredact

import (
	"context"
	"fmt"

	"github.com/wudi/pdfkit/filters"
	"github.com/wudi/pdfkit/ir/raw"
)

const maxRefDepth = 32

// graph resolves references inside a parsed document.
type graph struct {
	doc      *raw.Document
	pipeline *filters.Pipeline
	nextNum  int
}

func newGraph(doc *raw.Document, maxDecoded int64) *graph {
	g := &graph{
		doc: doc,
		pipeline: filters.NewPipeline([]filters.Decoder{
			filters.NewFlateDecoder(),
			filters.NewLZWDecoder(),
			filters.NewASCII85Decoder(),
			filters.NewASCIIHexDecoder(),
		}, filters.Limits{MaxDecompressedSize: maxDecoded}),
	}
	for ref := range doc.Objects {
		if ref.Num >= g.nextNum {
			g.nextNum = ref.Num + 1
		}
	}
	return g
}

// add stores obj as a new indirect object and returns its reference.
func (g *graph) add(obj raw.Object) raw.RefObj {
	ref := raw.ObjectRef{Num: g.nextNum}
	g.nextNum++
	g.doc.Objects[ref] = obj
	return raw.RefObj{R: ref}
}

func (g *graph) resolve(o raw.Object) raw.Object {
	for i := 0; i < maxRefDepth; i++ {
		r, ok := o.(raw.Reference)
		if !ok {
			return o
		}
		o = g.doc.Objects[r.Ref()]
	}
	return nil
}

func (g *graph) dict(o raw.Object) *raw.DictObj {
	switch v := g.resolve(o).(type) {
	case *raw.DictObj:
		return v
	case *raw.StreamObj:
		return v.Dict
	}
	return nil
}

func (g *graph) get(d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return nil
	}
	v, ok := d.KV[key]
	if !ok {
		return nil
	}
	return g.resolve(v)
}

func (g *graph) getDict(d *raw.DictObj, key string) *raw.DictObj {
	if d == nil {
		return nil
	}
	return g.dict(d.KV[key])
}

func (g *graph) getArray(d *raw.DictObj, key string) *raw.ArrayObj {
	a, _ := g.get(d, key).(*raw.ArrayObj)
	return a
}

func (g *graph) getName(d *raw.DictObj, key string) string {
	if n, ok := g.get(d, key).(raw.Name); ok {
		return n.Value()
	}
	return ""
}

func (g *graph) getNumber(d *raw.DictObj, key string) (float64, bool) {
	return numberOf(g.get(d, key))
}

func numberOf(o raw.Object) (float64, bool) {
	if n, ok := o.(raw.Number); ok {
		return n.Float(), true
	}
	return 0, false
}

func (g *graph) numbers(a *raw.ArrayObj) []float64 {
	if a == nil {
		return nil
	}
	out := make([]float64, 0, len(a.Items))
	for _, it := range a.Items {
		f, _ := numberOf(g.resolve(it))
		out = append(out, f)
	}
	return out
}

// decode returns the decoded bytes of a stream.
func (g *graph) decode(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	names, params := filters.ExtractFilters(g.resolvedDict(s.Dict))
	if len(names) == 0 {
		return s.Data, nil
	}
	out, err := g.pipeline.Decode(ctx, s.Data, names, params)
	if err != nil {
		return nil, fmt.Errorf("decode stream %v: %w", names, err)
	}
	return out, nil
}

// resolvedDict returns d with Filter and DecodeParms dereferenced so the
// filter pipeline sees direct objects.
func (g *graph) resolvedDict(d *raw.DictObj) *raw.DictObj {
	if d == nil {
		return raw.Dict()
	}
	out := raw.Dict()
	for k, v := range d.KV {
		out.KV[k] = v
	}
	for _, key := range []string{"Filter", "DecodeParms"} {
		v, ok := d.KV[key]
		if !ok {
			continue
		}
		v = g.resolve(v)
		if arr, ok := v.(*raw.ArrayObj); ok {
			items := make([]raw.Object, len(arr.Items))
			for i, it := range arr.Items {
				items[i] = g.resolve(it)
			}
			v = raw.NewArray(items...)
		}
		out.KV[key] = v
	}
	return out
}

func copyDict(d *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	if d == nil {
		return out
	}
	for k, v := range d.KV {
		out.KV[k] = v
	}
	return out
}
