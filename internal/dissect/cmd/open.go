package cmd

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"dissect/internal/disasm"
	"dissect/internal/format"
	_ "dissect/internal/format/pe" // register the PE loader
	"dissect/internal/printer"
	"dissect/internal/symbol"
)

// binary bundles a loaded file with the raw bytes the loader parsed.
type binary struct {
	path   string
	raw    []byte
	loader format.Loader
}

func openBinary(path string) (*binary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file: %w", err)
	}

	ld, err := format.Load(raw)
	if err != nil {
		return nil, err
	}

	return &binary{path: path, raw: raw, loader: ld}, nil
}

func (b *binary) digest() string {
	return fmt.Sprintf("%x", sha256.Sum256(b.raw))
}

// listing disassembles up to count instructions starting at addr and
// renders them one per line as "address  text".
func (b *binary) listing(addr uint64, count int) (string, error) {
	off, err := b.loader.Offset(addr)
	if err != nil {
		return "", err
	}
	if off >= uint64(len(b.raw)) {
		return "", fmt.Errorf("offset %x out of file bounds", off)
	}

	dec := disasm.NewDecoder(b.loader.Bits()).WithSegments(b.loader.Segments())
	prt := printer.New(b.loader.Symbols(), printer.ForProcessor(b.loader.Processor()))

	insns := dec.DecodeRange(b.raw[off:], addr, count)

	var sb strings.Builder
	for _, in := range insns {
		if sym, ok := b.loader.Symbols().Get(in.Address); ok {
			fmt.Fprintf(&sb, "\n%s:\n", sym.Name)
		}
		fmt.Fprintf(&sb, "%x  %s\n", in.Address, prt.Print(in, nil))
		in.Close()
	}
	return sb.String(), nil
}

// symbolRows returns the symbol table sorted by address, optionally
// filtered by kind name ("import", "export", "entry", ...).
func symbolRows(table *symbol.Table, kind string) []symbol.Symbol {
	syms := table.Snapshot()
	if kind == "" {
		return syms
	}

	kind = strings.ToLower(kind)
	out := syms[:0]
	for _, s := range syms {
		if s.Kind.String() == kind {
			out = append(out, s)
		}
	}
	return out
}
