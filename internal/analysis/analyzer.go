// Package analysis seeds control-flow recovery. Loaders create an
// Analyzer populated with the addresses worth exploring first; the
// recovery subsystem drains the queue and pushes discovered targets.
package analysis

import (
	"dissect/internal/format"
	"dissect/internal/logging"
	"dissect/internal/symbol"
)

// Analyzer is a work queue of unexplored addresses plus the loader
// context recovery needs. Not safe for concurrent use.
type Analyzer struct {
	segments []*format.Segment
	symbols  *symbol.Table

	queue   []uint64
	seen    map[uint64]bool
	runtime Runtime
}

// Option tweaks analyzer behavior for format quirks.
type Option func(*Analyzer)

// New builds an analyzer seeded with entry. Exported and entry symbols
// already in the table are queued as well.
func New(segments []*format.Segment, symbols *symbol.Table, entry uint64, opts ...Option) *Analyzer {
	a := &Analyzer{
		segments: segments,
		symbols:  symbols,
		seen:     make(map[uint64]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.Push(entry)
	for _, s := range symbols.Snapshot() {
		if s.Kind == symbol.KindExport || s.Kind == symbol.KindEntry {
			a.Push(s.Address)
		}
	}
	if logging.IsDebug() {
		lg := logging.NewLogger()
		lg.Debug("Analyzer seeded", "entry", entry, "queued", len(a.queue), "runtime", a.runtime)
		lg.Close()
	}
	return a
}

// Push queues addr unless it was queued before or lies in no code
// segment.
func (a *Analyzer) Push(addr uint64) {
	if a.seen[addr] {
		return
	}
	seg, ok := format.SegmentAt(a.segments, addr)
	if !ok || !seg.Is(format.SegmentCode) {
		return
	}
	a.seen[addr] = true
	a.queue = append(a.queue, addr)
}

// Next pops the next queued address.
func (a *Analyzer) Next() (uint64, bool) {
	if len(a.queue) == 0 {
		return 0, false
	}
	addr := a.queue[0]
	a.queue = a.queue[1:]
	return addr, true
}

func (a *Analyzer) Symbols() *symbol.Table {
	return a.symbols
}
