package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"line-terminal/pkg/history"
)

// Greeting is written when the shell starts
const Greeting = "Hello! Start writing commands.\n"

// scratchSize is the size of the line buffer, which doubles as the memory
// the d command dumps
const scratchSize = 1024

// Palette is implemented by consoles with loadable colours
type Palette interface {
	SetColor(index int, rgb uint16) error
}

type contextReader interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// Shell is the line-oriented command monitor run on a tty handle
type Shell struct {
	rw         io.ReadWriter
	palette    Palette
	transcript *history.Transcript
	log        Logger

	scratch [scratchSize]byte
}

// ShellOption configures a Shell
type ShellOption func(*Shell)

// WithPalette enables the c command
func WithPalette(p Palette) ShellOption {
	return func(s *Shell) {
		s.palette = p
	}
}

// WithTranscript records every line read and every reply written
func WithTranscript(t *history.Transcript) ShellOption {
	return func(s *Shell) {
		s.transcript = t
	}
}

// WithShellLogger sets the logger for debug output
func WithShellLogger(logger Logger) ShellOption {
	return func(s *Shell) {
		if logger != nil {
			s.log = logger
		}
	}
}

// NewShell creates a shell reading commands from rw
func NewShell(rw io.ReadWriter, opts ...ShellOption) *Shell {
	s := &Shell{
		rw:  rw,
		log: nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run greets, then executes one command per line until q, the end of
// input, or ctx is done
func (s *Shell) Run(ctx context.Context) error {
	if err := s.write(Greeting); err != nil {
		return err
	}

	for {
		n, err := s.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n == 0 {
			continue
		}

		line := string(s.scratch[:n])
		if s.transcript != nil {
			s.transcript.Record([]byte(line), history.DirectionInput)
		}

		quit, err := s.Execute(line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

func (s *Shell) readLine(ctx context.Context) (int, error) {
	if r, ok := s.rw.(contextReader); ok {
		return r.ReadContext(ctx, s.scratch[:])
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.rw.Read(s.scratch[:])
}

// Execute runs one command line and reports whether the shell should quit.
// The command is the first character; arguments start at the third.
func (s *Shell) Execute(line string) (bool, error) {
	if line == "" {
		return false, nil
	}

	var args string
	if len(line) > 2 {
		args = line[2:]
	}
	a, b := parseHexArgs(args)
	s.log.Debugf("shell: command: %c, %d %d", line[0], a, b)

	switch line[0] {
	case 'c':
		return false, s.loadColor(a, b)
	case 'd':
		return false, s.dumpMemory(a, b)
	case 'e':
		return false, s.write(args + "\n")
	case 'q':
		return true, nil
	default:
		return false, s.write("unknown command\n")
	}
}

func (s *Shell) loadColor(index, rgb int) error {
	if s.palette == nil {
		return s.write("palette not supported\n")
	}
	if err := s.palette.SetColor(index, uint16(rgb)); err != nil {
		s.log.Debugf("shell: %v", err)
		return s.write("invalid colour\n")
	}
	return nil
}

// dumpMemory writes the scratch bytes from start rounded down to end
// rounded up to an even offset, inclusive
func (s *Shell) dumpMemory(start, end int) error {
	start -= start % 2
	end += end % 2
	if end >= len(s.scratch) || start > end {
		return s.write("address out of range\n")
	}

	var b strings.Builder
	b.WriteString("memory dump:")
	for _, v := range s.scratch[start : end+1] {
		fmt.Fprintf(&b, " %02x", v)
	}
	b.WriteString("\n")
	return s.write(b.String())
}

// write sends a reply. A short write is logged and tolerated.
func (s *Shell) write(msg string) error {
	n, err := io.WriteString(s.rw, msg)
	if s.transcript != nil && n > 0 {
		s.transcript.Record([]byte(msg[:n]), history.DirectionOutput)
	}
	if errors.Is(err, io.ErrShortWrite) {
		s.log.Debugf("shell: reply truncated to %d of %d bytes", n, len(msg))
		return nil
	}
	return err
}

// parseHexArgs reads two lowercase hex numbers separated by one character.
// Parsing stops at the first non-hex character, so missing numbers are 0.
func parseHexArgs(args string) (int, int) {
	a, off := parseHex(args, 0)
	b, _ := parseHex(args, off+1)
	return a, b
}

func parseHex(s string, off int) (int, int) {
	r := 0
	for off < len(s) {
		c := s[off]
		switch {
		case c >= '0' && c <= '9':
			r = r*16 + int(c-'0')
		case c >= 'a' && c <= 'f':
			r = r*16 + int(c-'a') + 10
		default:
			return r, off
		}
		if r > 0xffffff {
			// saturate
			r = 0xffffff
		}
		off++
	}
	return r, off
}
