package pdfredact

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfkit/ir/raw"
)

// reachable returns every object reachable from roots.
func (g *graph) reachable(roots ...raw.Object) map[raw.ObjectRef]raw.Object {
	seen := make(map[raw.ObjectRef]raw.Object)
	var visit func(o raw.Object)
	visit = func(o raw.Object) {
		switch v := o.(type) {
		case raw.Reference:
			ref := v.Ref()
			if _, ok := seen[ref]; ok {
				return
			}
			target, ok := g.doc.Objects[ref]
			if !ok || target == nil {
				return
			}
			seen[ref] = target
			visit(target)
		case *raw.ArrayObj:
			for _, it := range v.Items {
				visit(it)
			}
		case *raw.DictObj:
			for _, it := range v.KV {
				visit(it)
			}
		case *raw.StreamObj:
			if v.Dict != nil {
				visit(v.Dict)
			}
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return seen
}

// serialize writes a complete, single-revision PDF holding the objects
// reachable from the trailer's Root and Info entries.
func (g *graph) serialize() ([]byte, error) {
	root, ok := g.doc.Trailer.Get(raw.NameLiteral("Root"))
	if !ok {
		return nil, fmt.Errorf("trailer has no Root")
	}
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Root"), root)
	roots := []raw.Object{root}
	if info, ok := g.doc.Trailer.Get(raw.NameLiteral("Info")); ok {
		if _, isRef := info.(raw.Reference); isRef {
			trailer.Set(raw.NameLiteral("Info"), info)
			roots = append(roots, info)
		}
	}
	if id, ok := g.doc.Trailer.Get(raw.NameLiteral("ID")); ok {
		trailer.Set(raw.NameLiteral("ID"), g.resolve(id))
	}
	objects := g.reachable(roots...)

	// One generation per object number; the highest wins.
	byNum := make(map[int]raw.ObjectRef, len(objects))
	for ref := range objects {
		if cur, ok := byNum[ref.Num]; !ok || ref.Gen > cur.Gen {
			byNum[ref.Num] = ref
		}
	}
	nums := make([]int, 0, len(byNum))
	maxNum := 0
	for n := range byNum {
		nums = append(nums, n)
		maxNum = max(maxNum, n)
	}
	sort.Ints(nums)

	version := g.doc.Version
	if version == "" {
		version = "1.7"
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)
	offsets := make(map[int]int, len(nums))
	for _, n := range nums {
		ref := byNum[n]
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		if err := g.writeIndirect(&buf, objects[ref]); err != nil {
			return nil, fmt.Errorf("object %d %d: %w", ref.Num, ref.Gen, err)
		}
		buf.WriteString("\nendobj\n")
	}

	xrefAt := buf.Len()
	size := maxNum + 1
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f\r\n")
	for n := 1; n < size; n++ {
		if off, ok := offsets[n]; ok {
			fmt.Fprintf(&buf, "%010d %05d n\r\n", off, byNum[n].Gen)
		} else {
			buf.WriteString("0000000000 00000 f\r\n")
		}
	}
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	buf.WriteString("trailer\n")
	if err := writeObject(&buf, trailer, 0); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	return buf.Bytes(), nil
}

func (g *graph) writeIndirect(buf *bytes.Buffer, o raw.Object) error {
	s, ok := o.(*raw.StreamObj)
	if !ok {
		return writeObject(buf, o, 0)
	}
	dict := copyDict(s.Dict)
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(s.Data))))
	if err := writeObject(buf, dict, 0); err != nil {
		return err
	}
	buf.WriteString("\nstream\n")
	buf.Write(s.Data)
	buf.WriteString("\nendstream")
	return nil
}

func writeObject(buf *bytes.Buffer, o raw.Object, depth int) error {
	if depth > maxNesting {
		return fmt.Errorf("object nesting exceeds %d", maxNesting)
	}
	switch v := o.(type) {
	case nil:
		buf.WriteString("null")
	case raw.Reference:
		r := v.Ref()
		fmt.Fprintf(buf, "%d %d R", r.Num, r.Gen)
	case raw.Name:
		writeName(buf, v.Value())
	case raw.Number:
		if v.IsInteger() {
			buf.WriteString(strconv.FormatInt(v.Int(), 10))
		} else {
			buf.WriteString(formatFloat(v.Float()))
		}
	case raw.Boolean:
		buf.WriteString(strconv.FormatBool(v.Value()))
	case raw.String:
		buf.WriteByte('<')
		buf.WriteString(hex.EncodeToString(v.Value()))
		buf.WriteByte('>')
	case *raw.ArrayObj:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := writeObject(buf, it, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *raw.DictObj:
		keys := make([]string, 0, len(v.KV))
		for k := range v.KV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("<<")
		for _, k := range keys {
			writeName(buf, k)
			buf.WriteByte(' ')
			if err := writeObject(buf, v.KV[k], depth+1); err != nil {
				return err
			}
		}
		buf.WriteString(">>")
	case raw.NullObj:
		buf.WriteString("null")
	case *raw.StreamObj:
		return fmt.Errorf("stream object must be indirect")
	default:
		return fmt.Errorf("unsupported object type %T", o)
	}
	return nil
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if s == "NaN" || s == "+Inf" || s == "-Inf" {
		return "0"
	}
	return s
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelim(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}
