package pdfredact

import (
	"bytes"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
)

// rewrite returns the stream with every removed glyph dropped from its
// text-showing operation. Untouched operations keep their original bytes.
func (cs *contentStream) rewrite() []byte {
	if len(cs.removals) == 0 {
		return cs.data
	}
	byOp := make(map[int]map[int][]removal)
	for key, rs := range cs.removals {
		if byOp[key.op] == nil {
			byOp[key.op] = make(map[int][]removal)
		}
		sorted := append([]removal(nil), rs...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].lo < sorted[j].lo })
		byOp[key.op][key.elem] = sorted
	}

	var out bytes.Buffer
	out.Grow(len(cs.data))
	cursor := 0
	for i, op := range cs.ops {
		removed, ok := byOp[i]
		if !ok {
			continue
		}
		out.Write(cs.data[cursor:op.start])
		out.WriteByte(' ')
		out.Write(rewriteShow(op, removed))
		out.WriteByte(' ')
		cursor = op.end
	}
	out.Write(cs.data[cursor:])
	return out.Bytes()
}

// rewriteShow turns a text-showing operation into an equivalent TJ with the
// removed bytes replaced by positioning offsets.
func rewriteShow(op operation, removed map[int][]removal) []byte {
	var buf bytes.Buffer
	var items []operand
	base := 0
	switch op.name {
	case "Tj":
		items = op.args[:1]
	case "'":
		buf.WriteString("T* ")
		items = op.args[:1]
	case "\"":
		buf.WriteString(formatNumber(op.number(0)))
		buf.WriteString(" Tw ")
		buf.WriteString(formatNumber(op.number(1)))
		buf.WriteString(" Tc T* ")
		items = op.args[2:3]
		base = 2
	case "TJ":
		items = op.args[0].items
	}

	buf.WriteByte('[')
	for j, it := range items {
		switch it.kind {
		case kindNumber:
			buf.WriteString(formatNumber(it.num))
			buf.WriteByte(' ')
		case kindString:
			pos := 0
			for _, r := range removed[base+j] {
				if r.lo > pos {
					writeHex(&buf, it.str[pos:r.lo])
				}
				buf.WriteString(formatNumber(r.adjust))
				buf.WriteByte(' ')
				pos = r.hi
			}
			if pos < len(it.str) {
				writeHex(&buf, it.str[pos:])
			}
		}
	}
	buf.WriteString("] TJ")
	return buf.Bytes()
}

func writeHex(buf *bytes.Buffer, b []byte) {
	buf.WriteByte('<')
	buf.WriteString(hex.EncodeToString(b))
	buf.WriteString("> ")
}

func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	f = math.Round(f*10000) / 10000
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
