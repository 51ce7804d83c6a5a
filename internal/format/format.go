// Package format defines the executable-format loader contract and the
// registry that sniffs a raw image and picks a concrete loader.
package format

import (
	"errors"

	"dissect/internal/symbol"
)

// Common loader failure conditions. Concrete loaders wrap these with
// context describing which header or directory was at fault.
var (
	ErrUnknownFormat       = errors.New("could not identify file magic")
	ErrMalformedHeader     = errors.New("malformed header")
	ErrUnresolvableAddress = errors.New("address maps to no section")
	ErrTruncatedTable      = errors.New("table runs past end of image")
)

// Status reports how far a load got. PartiallyLoaded means headers and
// sections are usable but at least one optional directory (imports,
// exports) failed; real-world binaries are malformed often enough that
// this is a working state, not an error.
type Status int

const (
	Unloaded Status = iota
	Ready
	PartiallyLoaded
	Failed
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case PartiallyLoaded:
		return "partially loaded"
	case Failed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Analyzer is the opaque control-flow analyzer seed a loader hands to
// the recovery subsystem. The core only creates it.
type Analyzer interface {
	// Next pops the next address queued for exploration.
	Next() (uint64, bool)
	// Push queues an address for exploration.
	Push(addr uint64)
}

// Loader is the contract every executable format implements. Load is
// the only mutating operation: it alone populates segments and the
// symbol table, and it runs to completion before any of its output is
// visible to callers.
type Loader interface {
	Name() string
	Bits() int
	Processor() string

	// Offset translates an image-absolute address back to a file
	// offset. Addresses inside virtual-only sections have no offset.
	Offset(addr uint64) (uint64, error)

	// Load parses raw. On a fatal error (malformed headers) no
	// segments or symbols are published. On optional-directory errors
	// the loader reports PartiallyLoaded and records the problems.
	Load(raw []byte) error

	Entry() uint64
	Segments() []*Segment
	Symbols() *symbol.Table
	Status() Status
	// Problems returns non-fatal errors recorded during Load.
	Problems() []error

	CreateAnalyzer() Analyzer
}

// SegmentAt returns the segment containing addr.
func SegmentAt(segs []*Segment, addr uint64) (*Segment, bool) {
	for _, s := range segs {
		if s.Contains(addr) {
			return s, true
		}
	}
	return nil, false
}

type factory struct {
	match func(raw []byte) bool
	build func() Loader
}

var formats []factory

// Register adds a format to the detection table. Called from concrete
// format packages' init.
func Register(match func(raw []byte) bool, build func() Loader) {
	formats = append(formats, factory{match: match, build: build})
}

// Detect sniffs raw and returns an unloaded loader for the first
// matching format.
func Detect(raw []byte) (Loader, error) {
	for _, f := range formats {
		if f.match(raw) {
			return f.build(), nil
		}
	}
	return nil, ErrUnknownFormat
}

// Load detects the format of raw and loads it in one step.
func Load(raw []byte) (Loader, error) {
	l, err := Detect(raw)
	if err != nil {
		return nil, err
	}
	if err := l.Load(raw); err != nil {
		return nil, err
	}
	return l, nil
}
