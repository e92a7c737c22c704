package console

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// Screen renders onto a tcell screen. It draws its own block cursor by
// reversing the cell under it, so the terminal cursor stays hidden.
type Screen struct {
	mu     sync.Mutex
	screen tcell.Screen
	g      grid
	style  tcell.Style
}

// NewScreen creates a console covering the whole of an initialized screen
func NewScreen(screen tcell.Screen) (*Screen, error) {
	if screen == nil {
		return nil, fmt.Errorf("screen cannot be nil")
	}

	width, height := screen.Size()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("screen size must be positive, got: %dx%d", width, height)
	}

	style := tcell.StyleDefault.
		Background(tcell.ColorReset).
		Foreground(tcell.ColorReset)
	screen.SetStyle(style)
	screen.HideCursor()
	screen.Clear()

	return &Screen{
		screen: screen,
		g:      grid{width: width, height: height},
		style:  style,
	}, nil
}

// PutChar renders ch at the cursor
func (s *Screen) PutChar(ch byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g.put(ch, s)
}

func (s *Screen) setCell(x, y int, ch rune) {
	s.screen.SetContent(x, y, ch, nil, s.style)
}

func (s *Screen) scrollUp() {
	for y := 1; y < s.g.height; y++ {
		for x := 0; x < s.g.width; x++ {
			ch, comb, style, _ := s.screen.GetContent(x, y)
			s.screen.SetContent(x, y-1, ch, comb, style)
		}
	}
	for x := 0; x < s.g.width; x++ {
		s.screen.SetContent(x, s.g.height-1, ' ', nil, s.style)
	}
}

// Cursor returns the cursor position
func (s *Screen) Cursor() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.x, s.g.y
}

// SetCursor moves the cursor, clamped to the screen
func (s *Screen) SetCursor(x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g.setCursor(x, y)
}

// ToggleCursor reverses the cell under the cursor
func (s *Screen) ToggleCursor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, comb, style, _ := s.screen.GetContent(s.g.x, s.g.y)
	_, _, attrs := style.Decompose()
	s.screen.SetContent(s.g.x, s.g.y, ch, comb, style.Reverse(attrs&tcell.AttrReverse == 0))
}

// Width returns the number of columns
func (s *Screen) Width() int {
	return s.g.width
}

// Height returns the number of rows
func (s *Screen) Height() int {
	return s.g.height
}

// Flush shows the pending changes
func (s *Screen) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen.Show()
	return nil
}

// SetColor loads palette entry index (0 background, 1 foreground) with a
// 12-bit 0xRGB colour and restyles the screen
func (s *Screen) SetColor(index int, rgb uint16) error {
	if rgb > 0xfff {
		return fmt.Errorf("colour must be a 12-bit value, got: %#x", rgb)
	}
	color := tcell.NewRGBColor(
		int32((rgb>>8)&0xf)*17,
		int32((rgb>>4)&0xf)*17,
		int32(rgb&0xf)*17,
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch index {
	case 0:
		s.style = s.style.Background(color)
	case 1:
		s.style = s.style.Foreground(color)
	default:
		return fmt.Errorf("palette index must be 0 or 1, got: %d", index)
	}

	s.screen.SetStyle(s.style)
	for y := 0; y < s.g.height; y++ {
		for x := 0; x < s.g.width; x++ {
			ch, comb, style, _ := s.screen.GetContent(x, y)
			_, _, attrs := style.Decompose()
			s.screen.SetContent(x, y, ch, comb, s.style.Reverse(attrs&tcell.AttrReverse != 0))
		}
	}
	s.screen.Show()
	return nil
}
