// Package console provides rendering surfaces for a line discipline device:
// an in-memory buffer, a tcell screen and a byte stream such as a raw
// terminal or a serial port.
package console

import "github.com/mattn/go-runewidth"

const tabWidth = 8

// surface receives the cell updates computed by grid
type surface interface {
	setCell(x, y int, ch rune)
	scrollUp()
}

// grid tracks the cursor of a fixed-width console. Bytes are taken as
// Latin-1 characters; a height of 0 means rows are unbounded.
type grid struct {
	width  int
	height int
	x, y   int
}

// renderable reports whether ch occupies exactly one cell
func renderable(ch byte) bool {
	return runewidth.RuneWidth(rune(ch)) == 1
}

// put renders ch and reports whether the cursor wrapped past the last column
func (g *grid) put(ch byte, s surface) (wrapped bool) {
	switch ch {
	case '\n':
		g.newline(s)
	case '\r':
		g.x = 0
	case '\b':
		if g.x > 0 {
			g.x--
		}
	case '\t':
		next := (g.x/tabWidth + 1) * tabWidth
		for g.x < next && g.x < g.width {
			s.setCell(g.x, g.y, ' ')
			g.x++
		}
		if g.x == g.width {
			g.newline(s)
			return true
		}
	default:
		if !renderable(ch) {
			return false
		}
		s.setCell(g.x, g.y, rune(ch))
		g.x++
		if g.x == g.width {
			g.newline(s)
			return true
		}
	}
	return false
}

func (g *grid) newline(s surface) {
	g.x = 0
	g.y++
	if g.height > 0 && g.y >= g.height {
		s.scrollUp()
		g.y = g.height - 1
	}
}

func (g *grid) setCursor(x, y int) {
	g.x = clamp(x, 0, g.width-1)
	if g.height > 0 {
		g.y = clamp(y, 0, g.height-1)
	} else if y >= 0 {
		g.y = y
	} else {
		g.y = 0
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
