package tty

import "sync/atomic"

// Stats is a snapshot of device counters. Drops are the only trace left by
// capacity exhaustion; none of them is reported as an error.
type Stats struct {
	KeysDropped    uint64 `json:"keys_dropped"`
	CharsDropped   uint64 `json:"chars_dropped"`
	LinesDropped   uint64 `json:"lines_dropped"`
	LinesCommitted uint64 `json:"lines_committed"`
	BytesWritten   uint64 `json:"bytes_written"`
	ShortWrites    uint64 `json:"short_writes"`
}

type counters struct {
	keysDropped    atomic.Uint64
	charsDropped   atomic.Uint64
	linesDropped   atomic.Uint64
	linesCommitted atomic.Uint64
	bytesWritten   atomic.Uint64
	shortWrites    atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		KeysDropped:    c.keysDropped.Load(),
		CharsDropped:   c.charsDropped.Load(),
		LinesDropped:   c.linesDropped.Load(),
		LinesCommitted: c.linesCommitted.Load(),
		BytesWritten:   c.bytesWritten.Load(),
		ShortWrites:    c.shortWrites.Load(),
	}
}
