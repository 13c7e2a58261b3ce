package render

import (
	"github.com/tdewolff/canvas"
)

// Dot styles
const (
	DotSquare        = "square"
	DotDots          = "dots"
	DotRounded       = "rounded"
	DotExtraRounded  = "extra-rounded"
	DotClassy        = "classy"
	DotClassyRounded = "classy-rounded"
)

// Corner styles
const (
	CornerSquare       = "square"
	CornerDot          = "dot"
	CornerExtraRounded = "extra-rounded"
)

// neighbours records which orthogonal neighbours of a module are dark
type neighbours struct {
	top, right, bottom, left bool
}

func (n neighbours) count() int {
	c := 0
	for _, b := range []bool{n.top, n.right, n.bottom, n.left} {
		if b {
			c++
		}
	}
	return c
}

// corners holds per-corner radii of a module
type corners struct {
	tl, tr, br, bl float64
}

// exposed returns which corners have both adjacent sides free
func (n neighbours) exposed() (tl, tr, br, bl bool) {
	return !n.top && !n.left, !n.top && !n.right, !n.bottom && !n.right, !n.bottom && !n.left
}

// dotPath returns the outline of a single data module of side s, with its
// origin at the module's bottom-left corner.
func dotPath(style string, s float64, n neighbours) *canvas.Path {
	tl, tr, br, bl := n.exposed()
	half := s / 2

	switch style {
	case DotDots:
		return canvas.Circle(half).Translate(half, half)
	case DotRounded:
		return roundedSquare(s, radii(tl, tr, br, bl, half))
	case DotExtraRounded:
		if n.count() == 2 && exactlyOne(tl, tr, br, bl) {
			return roundedSquare(s, radii(tl, tr, br, bl, s))
		}
		return roundedSquare(s, radii(tl, tr, br, bl, half))
	case DotClassy:
		return roundedSquare(s, radii(tl, false, br, false, half))
	case DotClassyRounded:
		return roundedSquare(s, radii(tl, false, br, false, s))
	default:
		return canvas.Rectangle(s, s)
	}
}

func radii(tl, tr, br, bl bool, r float64) corners {
	var c corners
	if tl {
		c.tl = r
	}
	if tr {
		c.tr = r
	}
	if br {
		c.br = r
	}
	if bl {
		c.bl = r
	}
	return c
}

func exactlyOne(flags ...bool) bool {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n == 1
}

// roundedSquare draws an s x s square, counter-clockwise from the bottom
// edge, with a quadratic curve of the given radius at each corner.
// Radii on corners sharing a side must not add up to more than s.
func roundedSquare(s float64, r corners) *canvas.Path {
	p := &canvas.Path{}
	p.MoveTo(r.bl, 0)
	p.LineTo(s-r.br, 0)
	if r.br > 0 {
		p.QuadTo(s, 0, s, r.br)
	}
	p.LineTo(s, s-r.tr)
	if r.tr > 0 {
		p.QuadTo(s, s, s-r.tr, s)
	}
	p.LineTo(r.tl, s)
	if r.tl > 0 {
		p.QuadTo(0, s, 0, s-r.tl)
	}
	p.LineTo(0, r.bl)
	if r.bl > 0 {
		p.QuadTo(0, 0, r.bl, 0)
	}
	p.Close()
	return p
}

// cornerSquarePath returns the 7x7 finder ring with a 1-module stroke,
// origin at its bottom-left corner.
func cornerSquarePath(style string, s float64) *canvas.Path {
	size := finderSize * s
	inner := size - 2*s
	switch style {
	case CornerDot:
		outer := canvas.Circle(size / 2)
		hole := canvas.Circle(inner / 2).Reverse()
		return outer.Append(hole).Translate(size/2, size/2)
	case CornerExtraRounded:
		outer := canvas.RoundedRectangle(size, size, 2.5*s)
		hole := canvas.RoundedRectangle(inner, inner, 1.5*s).Translate(s, s).Reverse()
		return outer.Append(hole)
	default:
		outer := canvas.Rectangle(size, size)
		hole := canvas.Rectangle(inner, inner).Translate(s, s).Reverse()
		return outer.Append(hole)
	}
}

// cornerDotPath returns the 3x3 finder centre, origin at its bottom-left corner
func cornerDotPath(style string, s float64) *canvas.Path {
	size := 3 * s
	switch style {
	case CornerDot:
		return canvas.Circle(size / 2).Translate(size/2, size/2)
	default:
		return canvas.Rectangle(size, size)
	}
}

// cornerSquareStyle picks the finder ring style, following the dot style
// when none was requested.
func cornerSquareStyle(requested, dots string) string {
	switch requested {
	case CornerSquare, CornerDot, CornerExtraRounded:
		return requested
	}
	switch dots {
	case DotDots:
		return CornerDot
	case DotRounded, DotExtraRounded, DotClassyRounded:
		return CornerExtraRounded
	default:
		return CornerSquare
	}
}

func cornerDotStyle(requested, dots string) string {
	switch requested {
	case CornerSquare, CornerDot:
		return requested
	}
	if dots == DotDots {
		return CornerDot
	}
	return CornerSquare
}
