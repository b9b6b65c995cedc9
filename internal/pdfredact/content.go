package pdfredact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wudi/pdfkit/recovery"
	"github.com/wudi/pdfkit/scanner"
)

type operandKind int

const (
	kindNumber operandKind = iota
	kindString
	kindName
	kindArray
	kindDict
	kindBool
	kindNull
)

// operand is a content stream operand. Dict entries are stored in items as
// alternating name and value operands.
type operand struct {
	kind  operandKind
	num   float64
	str   []byte
	name  string
	items []operand
	truth bool
}

// operation is one operator with its operands. start and end delimit the
// bytes of the whole operation in the decoded stream, operands included.
type operation struct {
	name  string
	args  []operand
	start int
	end   int
}

func (op operation) number(i int) float64 {
	if i < len(op.args) && op.args[i].kind == kindNumber {
		return op.args[i].num
	}
	return 0
}

func (op operation) nameArg(i int) string {
	if i < len(op.args) && op.args[i].kind == kindName {
		return op.args[i].name
	}
	return ""
}

const maxNesting = 64

// closerRecovery lets the scanner drop unbalanced "]" and ">>" that some
// producers leave at the top level. Every other scan error fails.
type closerRecovery struct{}

func (closerRecovery) OnError(_ context.Context, err error, _ recovery.Location) recovery.Action {
	if strings.Contains(err.Error(), "depth underflow") {
		return recovery.ActionFix
	}
	return recovery.ActionFail
}

// contentReader pulls scanner tokens with one-token pushback and records
// where the last token ended.
type contentReader struct {
	data []byte
	sc   scanner.Scanner
	buf  []scanner.Token
	ends []int64
	end  int64
	// glue is the offset just past an "R" the scanner folded into an
	// indirect reference, so "0 0 0 RG" keeps its operator name.
	glue int64
}

func newContentReader(data []byte) *contentReader {
	return &contentReader{
		data: data,
		sc: scanner.New(bytes.NewReader(data), scanner.Config{
			MaxArrayDepth: maxNesting,
			MaxDictDepth:  maxNesting,
			Recovery:      closerRecovery{},
		}),
		glue: -1,
	}
}

func (r *contentReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf, r.end = r.buf[:l-1], r.ends[l-1]
		r.ends = r.ends[:l-1]
		return t, nil
	}
	tok, err := r.sc.Next()
	if err != nil {
		return tok, err
	}
	r.end = r.sc.Position()
	return tok, nil
}

func (r *contentReader) unread(tok scanner.Token, end int64) {
	r.buf = append(r.buf, tok)
	r.ends = append(r.ends, end)
}

// parseContent splits data into operations. Inline images are returned as a
// single "BI" operation spanning through EI with no operands.
func parseContent(data []byte) ([]operation, error) {
	r := newContentReader(data)
	var (
		ops      []operation
		args     []operand
		argStart = -1
	)
	for {
		tok, err := r.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ops, nil
			}
			return ops, fmt.Errorf("content stream at offset %d: %w", r.sc.Position(), err)
		}
		if tok.Type == scanner.TokenKeyword {
			kw := tok.Str
			start := int(tok.Pos)
			if r.glue >= 0 {
				if tok.Pos == r.glue {
					kw = "R" + kw
				} else {
					ops = append(ops, operation{name: "R", args: args, start: argStart, end: int(r.glue)})
					args, argStart = nil, -1
				}
				r.glue = -1
			}
			switch kw {
			case ")", "}", "{", ">":
				continue
			case "BI":
				end, err := r.skipInlineImage()
				if err != nil {
					return ops, err
				}
				ops = append(ops, operation{name: "BI", start: start, end: end})
				args, argStart = nil, -1
				continue
			}
			if argStart < 0 {
				argStart = start
			}
			ops = append(ops, operation{name: kw, args: args, start: argStart, end: int(r.end)})
			args, argStart = nil, -1
			continue
		}
		if argStart < 0 {
			argStart = int(tok.Pos)
		}
		r.unread(tok, r.end)
		vals, err := r.operand(0)
		if err != nil {
			return ops, fmt.Errorf("content stream at offset %d: %w", tok.Pos, err)
		}
		args = append(args, vals...)
	}
}

// operand reads the next object. An indirect reference token yields its two
// numbers, since references cannot occur in content streams.
func (r *contentReader) operand(depth int) ([]operand, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("nesting exceeds %d", maxNesting)
	}
	tok, err := r.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenNumber:
		if tok.IsInt {
			return []operand{{kind: kindNumber, num: float64(tok.Int)}}, nil
		}
		return []operand{{kind: kindNumber, num: tok.Float}}, nil
	case scanner.TokenString:
		return []operand{{kind: kindString, str: tok.Bytes}}, nil
	case scanner.TokenName:
		return []operand{{kind: kindName, name: tok.Str}}, nil
	case scanner.TokenBoolean:
		return []operand{{kind: kindBool, truth: tok.Bool}}, nil
	case scanner.TokenNull:
		return []operand{{kind: kindNull}}, nil
	case scanner.TokenRef:
		if depth == 0 {
			r.glue = r.end
		}
		return []operand{
			{kind: kindNumber, num: float64(tok.Int)},
			{kind: kindNumber, num: float64(tok.Gen)},
		}, nil
	case scanner.TokenArray:
		arr := operand{kind: kindArray}
		for {
			t, err := r.next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenKeyword && t.Str == "]" {
				return []operand{arr}, nil
			}
			r.unread(t, r.end)
			items, err := r.operand(depth + 1)
			if err != nil {
				return nil, err
			}
			arr.items = append(arr.items, items...)
		}
	case scanner.TokenDict:
		d := operand{kind: kindDict}
		for {
			t, err := r.next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenKeyword && t.Str == ">>" {
				return []operand{d}, nil
			}
			if t.Type != scanner.TokenName {
				return nil, fmt.Errorf("expected name in dictionary at offset %d", t.Pos)
			}
			val, err := r.operand(depth + 1)
			if err != nil {
				return nil, err
			}
			d.items = append(d.items, operand{kind: kindName, name: t.Str})
			d.items = append(d.items, val...)
		}
	case scanner.TokenKeyword:
		return nil, fmt.Errorf("unexpected keyword %q inside object at offset %d", tok.Str, tok.Pos)
	}
	return nil, fmt.Errorf("unexpected token type %d at offset %d", tok.Type, tok.Pos)
}

// skipInlineImage consumes the image dictionary and data after BI and
// returns the offset just past EI.
func (r *contentReader) skipInlineImage() (int, error) {
	for {
		tok, err := r.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return int(r.sc.Position()), errors.New("unterminated inline image")
			}
			return int(r.sc.Position()), fmt.Errorf("inline image: %w", err)
		}
		if tok.Type != scanner.TokenInlineImage {
			continue
		}
		// The scanner settles on the last EI it can see, which would swallow
		// any later images and the text between them.
		end := firstImageEnd(r.data, int(tok.Pos)+len("ID"))
		if end > 0 && int64(end) < r.end {
			if err := r.sc.SeekTo(int64(end)); err != nil {
				return end, fmt.Errorf("inline image: %w", err)
			}
			r.end = int64(end)
		}
		return int(r.end), nil
	}
}

// firstImageEnd returns the offset just past the first EI after from that is
// preceded by an end-of-line and followed by whitespace, a delimiter or the
// end of data, or -1.
func firstImageEnd(data []byte, from int) int {
	for i := from + 1; i+1 < len(data); i++ {
		if data[i] != 'E' || data[i+1] != 'I' {
			continue
		}
		if prev := data[i-1]; prev != '\n' && prev != '\r' {
			continue
		}
		if i+2 < len(data) && !isSpace(data[i+2]) && !isDelim(data[i+2]) {
			continue
		}
		return i + 2
	}
	return -1
}

func isSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}
