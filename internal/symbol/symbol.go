// Package symbol maintains the shared address-to-name table populated by
// format loaders and read by the printer and analysis passes.
package symbol

import (
	"sort"
	"sync"
)

// Kind classifies a symbol.
type Kind int

const (
	KindNone Kind = iota
	KindImport
	KindExport
	KindFunction
	KindData
	KindEntry
)

func (k Kind) String() string {
	switch k {
	case KindImport:
		return "import"
	case KindExport:
		return "export"
	case KindFunction:
		return "function"
	case KindData:
		return "data"
	case KindEntry:
		return "entry"
	default:
		return "none"
	}
}

// Symbol binds an image-absolute address to a name. Addresses are never
// RVAs or file offsets; the loader translates before defining.
type Symbol struct {
	Address uint64
	Name    string
	Kind    Kind
}

// Table maps addresses to symbols. Loading populates it single-threaded;
// afterwards analysis may keep defining while renderers look names up
// from other goroutines, so every access takes the lock. One entry per
// address, last writer wins.
type Table struct {
	mu   sync.RWMutex
	syms map[uint64]Symbol
}

func NewTable() *Table {
	return &Table{syms: make(map[uint64]Symbol)}
}

// Define inserts or overwrites the symbol at addr.
func (t *Table) Define(addr uint64, name string, kind Kind) {
	t.mu.Lock()
	t.syms[addr] = Symbol{Address: addr, Name: name, Kind: kind}
	t.mu.Unlock()
}

// Get returns the symbol at addr, if any.
func (t *Table) Get(addr uint64) (Symbol, bool) {
	t.mu.RLock()
	s, ok := t.syms[addr]
	t.mu.RUnlock()
	return s, ok
}

// Remove deletes the symbol at addr. Loaders never remove; this exists
// for tooling and tests.
func (t *Table) Remove(addr uint64) {
	t.mu.Lock()
	delete(t.syms, addr)
	t.mu.Unlock()
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.syms)
}

// Snapshot returns a copy of the table sorted by address. Symbols
// defined while the copy is being taken may or may not appear; callers
// rendering bulk listings accept that.
func (t *Table) Snapshot() []Symbol {
	t.mu.RLock()
	out := make([]Symbol, 0, len(t.syms))
	for _, s := range t.syms {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
