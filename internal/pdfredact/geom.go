package pdfredact

import "math"

// matrix is a PDF transformation matrix [a b c d e f]. Points are row vectors,
// so p' = p × m.
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func translate(tx, ty float64) matrix { return matrix{1, 0, 0, 1, tx, ty} }

// mul returns m × n: apply m, then n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2], m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2], m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4], m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func matrixOf(vals []float64) matrix {
	if len(vals) != 6 {
		return identity
	}
	return matrix{vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]}
}

// rect is an axis-aligned box in default user space.
type rect struct {
	llx, lly, urx, ury float64
}

func (r rect) width() float64  { return r.urx - r.llx }
func (r rect) height() float64 { return r.ury - r.lly }
func (r rect) empty() bool     { return r.width() <= 0 || r.height() <= 0 }

func (r rect) union(o rect) rect {
	return rect{
		llx: math.Min(r.llx, o.llx), lly: math.Min(r.lly, o.lly),
		urx: math.Max(r.urx, o.urx), ury: math.Max(r.ury, o.ury),
	}
}

// transformBox maps the text-space box (x0,y0)-(x1,y1) through m and returns
// its bounding rectangle.
func transformBox(m matrix, x0, y0, x1, y1 float64) rect {
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = m.apply(x0, y0)
	xs[1], ys[1] = m.apply(x1, y0)
	xs[2], ys[2] = m.apply(x0, y1)
	xs[3], ys[3] = m.apply(x1, y1)
	r := rect{llx: xs[0], lly: ys[0], urx: xs[0], ury: ys[0]}
	for i := 1; i < 4; i++ {
		r.llx, r.urx = math.Min(r.llx, xs[i]), math.Max(r.urx, xs[i])
		r.lly, r.ury = math.Min(r.lly, ys[i]), math.Max(r.ury, ys[i])
	}
	return r
}

// sameLine reports whether b continues the run of glyphs covered by cur.
func sameLine(cur, b rect) bool {
	lo, hi := math.Max(cur.lly, b.lly), math.Min(cur.ury, b.ury)
	minH := math.Min(cur.height(), b.height())
	if minH <= 0 || hi-lo < minH/2 {
		return false
	}
	if b.urx < cur.llx {
		return false
	}
	return b.llx-cur.urx <= 3*math.Max(cur.height(), b.height())
}
