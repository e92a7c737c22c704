package console

import (
	"strings"
	"sync"
)

// Buffer is an in-memory console. It records every rendered byte in order
// and is safe to inspect while a driver is rendering into it.
type Buffer struct {
	mu          sync.Mutex
	g           grid
	cells       [][]rune
	rendered    []byte
	cursorShown bool
	toggles     int
}

// NewBuffer creates an empty in-memory console
func NewBuffer(width, height int) *Buffer {
	b := &Buffer{
		g:     grid{width: width, height: height},
		cells: make([][]rune, height),
	}
	for y := range b.cells {
		b.cells[y] = blankRow(width)
	}
	return b
}

func blankRow(width int) []rune {
	row := make([]rune, width)
	for x := range row {
		row[x] = ' '
	}
	return row
}

// PutChar renders ch at the cursor
func (b *Buffer) PutChar(ch byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rendered = append(b.rendered, ch)
	b.g.put(ch, b)
}

func (b *Buffer) setCell(x, y int, ch rune) {
	b.cells[y][x] = ch
}

func (b *Buffer) scrollUp() {
	copy(b.cells, b.cells[1:])
	b.cells[len(b.cells)-1] = blankRow(b.g.width)
}

// Cursor returns the cursor position
func (b *Buffer) Cursor() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.g.x, b.g.y
}

// SetCursor moves the cursor, clamped to the console
func (b *Buffer) SetCursor(x, y int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.g.setCursor(x, y)
}

// ToggleCursor flips cursor visibility
func (b *Buffer) ToggleCursor() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursorShown = !b.cursorShown
	b.toggles++
}

// Width returns the number of columns
func (b *Buffer) Width() int {
	return b.g.width
}

// Height returns the number of rows
func (b *Buffer) Height() int {
	return b.g.height
}

// CursorShown reports whether the cursor is currently drawn
func (b *Buffer) CursorShown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursorShown
}

// Toggles returns how many times the cursor was toggled
func (b *Buffer) Toggles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.toggles
}

// Rendered returns a copy of every byte passed to PutChar
func (b *Buffer) Rendered() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.rendered))
	copy(out, b.rendered)
	return out
}

// Row returns row y with trailing blanks removed
func (b *Buffer) Row(y int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if y < 0 || y >= len(b.cells) {
		return ""
	}
	return strings.TrimRight(string(b.cells[y]), " ")
}

// Text returns all rows up to the last non-empty one, joined by newlines
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows := make([]string, len(b.cells))
	last := -1
	for y, row := range b.cells {
		rows[y] = strings.TrimRight(string(row), " ")
		if rows[y] != "" {
			last = y
		}
	}
	return strings.Join(rows[:last+1], "\n")
}
