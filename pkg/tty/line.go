package tty

import "line-terminal/pkg/ring"

// EOL marks the end of a committed line in the read result stream. Only
// bytes 32..126 enter a line, so it never collides with line content.
const EOL byte = 0

// lineEditor holds the line being edited. It belongs to the driver
// goroutine and is never shared.
type lineEditor struct {
	buf     []byte
	pos     int
	echo    bool
	con     Console
	results *ring.Queue[byte]
	stats   *counters
	log     Logger
}

func newLineEditor(capacity int, echo bool, con Console, results *ring.Queue[byte], stats *counters, log Logger) *lineEditor {
	return &lineEditor{
		buf:     make([]byte, capacity),
		echo:    echo,
		con:     con,
		results: results,
		stats:   stats,
		log:     log,
	}
}

// Len returns the number of buffered characters
func (e *lineEditor) Len() int {
	return e.pos
}

// String returns the buffered characters
func (e *lineEditor) String() string {
	return string(e.buf[:e.pos])
}

func (e *lineEditor) appendPrintable(ch byte) {
	if e.pos == len(e.buf) {
		e.stats.charsDropped.Add(1)
		return
	}
	e.buf[e.pos] = ch
	e.pos++
	if e.echo {
		e.con.PutChar(ch)
	}
}

func (e *lineEditor) deleteLast() {
	if e.pos == 0 {
		return
	}
	e.pos--
	if !e.echo {
		return
	}

	x, y := e.con.Cursor()
	if x == 0 {
		// the erased character sits at the end of the previous row
		y--
		x = e.con.Width()
	}
	e.con.SetCursor(x-1, y)
	e.con.PutChar(' ')
	e.con.SetCursor(x-1, y)
}

func (e *lineEditor) killLine() {
	for e.pos > 0 {
		e.deleteLast()
	}
}

func (e *lineEditor) commitLine() {
	x, _ := e.con.Cursor()
	if !(e.echo && e.pos > 0 && x == 0) {
		e.con.PutChar('\n')
	}

	// all or nothing: a line is never delivered without its EOL
	if e.results.Free() < e.pos+1 {
		e.log.Debugf("tty: reader backlog full, dropping %d byte line", e.pos)
		e.stats.linesDropped.Add(1)
		e.pos = 0
		return
	}

	for _, ch := range e.buf[:e.pos] {
		e.results.TryPush(ch)
	}
	e.results.TryPush(EOL)
	e.stats.linesCommitted.Add(1)
	e.pos = 0
}
