package pdfredact

import (
	"unicode/utf16"
)

// maxRangeExpansion caps the codes expanded from a single bfrange entry.
const maxRangeExpansion = 1 << 16

type codespace struct {
	lo, hi []byte
}

func (c codespace) contains(code []byte) bool {
	if len(code) != len(c.lo) {
		return false
	}
	for i := range code {
		if code[i] < c.lo[i] || code[i] > c.hi[i] {
			return false
		}
	}
	return true
}

// cmap maps character codes to Unicode text. Codes are keyed by their raw
// bytes so one- and two-byte codes never collide.
type cmap struct {
	spaces []codespace
	runes  map[string][]rune
}

func parseCMap(data []byte) (*cmap, error) {
	ops, err := parseContent(data)
	if err != nil && len(ops) == 0 {
		return nil, err
	}
	cm := &cmap{runes: make(map[string][]rune)}
	for _, op := range ops {
		switch op.name {
		case "endcodespacerange":
			for i := 0; i+1 < len(op.args); i += 2 {
				lo, hi := op.args[i], op.args[i+1]
				if lo.kind != kindString || hi.kind != kindString || len(lo.str) != len(hi.str) || len(lo.str) == 0 {
					continue
				}
				cm.spaces = append(cm.spaces, codespace{lo: lo.str, hi: hi.str})
			}
		case "endbfchar":
			for i := 0; i+1 < len(op.args); i += 2 {
				src, dst := op.args[i], op.args[i+1]
				if src.kind != kindString {
					continue
				}
				switch dst.kind {
				case kindString:
					cm.runes[string(src.str)] = utf16BE(dst.str)
				case kindName:
					if r, ok := glyphRune(dst.name); ok {
						cm.runes[string(src.str)] = []rune{r}
					}
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(op.args); i += 3 {
				cm.addRange(op.args[i], op.args[i+1], op.args[i+2])
			}
		}
	}
	return cm, nil
}

func (cm *cmap) addRange(lo, hi, dst operand) {
	if lo.kind != kindString || hi.kind != kindString || len(lo.str) != len(hi.str) || len(lo.str) == 0 {
		return
	}
	start, end := codeValue(lo.str), codeValue(hi.str)
	if end < start || end-start >= maxRangeExpansion {
		return
	}
	width := len(lo.str)
	for code := start; code <= end; code++ {
		off := int(code - start)
		key := string(codeBytes(code, width))
		switch dst.kind {
		case kindString:
			cm.runes[key] = utf16BE(incrementLast(dst.str, off))
		case kindArray:
			if off < len(dst.items) && dst.items[off].kind == kindString {
				cm.runes[key] = utf16BE(dst.items[off].str)
			}
		}
	}
}

// codeLength returns how many bytes of s starting at i form the next code.
func (cm *cmap) codeLength(s []byte, i, fallback int) int {
	if cm == nil || len(cm.spaces) == 0 {
		return fallback
	}
	for n := 1; n <= 4 && i+n <= len(s); n++ {
		for _, sp := range cm.spaces {
			if sp.contains(s[i : i+n]) {
				return n
			}
		}
	}
	return fallback
}

func (cm *cmap) lookup(code []byte) ([]rune, bool) {
	if cm == nil {
		return nil, false
	}
	r, ok := cm.runes[string(code)]
	return r, ok
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func codeBytes(v uint32, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// incrementLast adds off to the final UTF-16 unit of dst.
func incrementLast(dst []byte, off int) []byte {
	out := append([]byte(nil), dst...)
	if len(out) >= 2 {
		n := len(out)
		v := uint16(out[n-2])<<8 | uint16(out[n-1])
		v += uint16(off)
		out[n-2], out[n-1] = byte(v>>8), byte(v)
	} else if len(out) == 1 {
		out[0] += byte(off)
	}
	return out
}

func utf16BE(b []byte) []rune {
	if len(b) == 1 {
		return []rune{rune(b[0])}
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return utf16.Decode(units)
}
