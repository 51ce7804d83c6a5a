package pe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"dissect/internal/analysis"
	"dissect/internal/format"
	"dissect/internal/symbol"
)

// image assembles a synthetic PE file in memory.
type image struct {
	b []byte
}

func (im *image) put(off int, vals ...any) {
	var buf bytes.Buffer
	for _, v := range vals {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			panic(err)
		}
	}
	copy(im.b[off:], buf.Bytes())
}

func (im *image) puts(off int, s string) {
	copy(im.b[off:], s) // NUL terminator is the zero fill
}

const (
	testBase = uint64(0x400000)

	ntOff      = 0x80
	textRaw    = 0x400
	idataRaw   = 0x800
	edataRaw   = 0xc00
	textRVA    = 0x1000
	idataRVA   = 0x2000
	edataRVA   = 0x3000
	bssRVA     = 0x4000
	idataDelta = idataRaw - idataRVA // file offset of an .idata RVA
	edataDelta = edataRaw - edataRVA
)

type imageOpts struct {
	skipExports bool
	noVB        bool   // leave out the MSVBVM60 descriptor
	importDir   uint32 // overrides the import directory RVA when nonzero
}

// build32 lays out a 32-bit image: headers, .text/.idata/.edata/.bss
// sections, one KERNEL32 by-name import, WS2_32 and KERNEL32 ordinal
// imports, a MSVBVM60 import, and one named export.
func build32(opts imageOpts) []byte {
	im := &image{b: make([]byte, 0x1000)}

	// DOS header: magic + e_lfanew.
	im.put(0, uint16(dosMagic))
	im.put(0x3c, uint32(ntOff))

	im.put(ntOff, uint32(ntSignature))
	im.put(ntOff+4, fileHeader{
		Machine:              machineI386,
		NumberOfSections:     4,
		SizeOfOptionalHeader: 96 + 16*8,
	})

	opt := optionalHeader32{
		Magic:               optMagic32,
		AddressOfEntryPoint: textRVA,
		ImageBase:           uint32(testBase),
		SectionAlignment:    0x1000,
		NumberOfRvaAndSizes: 16,
	}
	optOff := ntOff + 4 + fileHeaderSize
	im.put(optOff, opt)

	dirOff := optOff + 96
	importRVA := uint32(idataRVA)
	if opts.importDir != 0 {
		importRVA = opts.importDir
	}
	if !opts.skipExports {
		im.put(dirOff+dirExport*8, dataDirectory{VirtualAddress: edataRVA, Size: 0x100})
	}
	im.put(dirOff+dirImport*8, dataDirectory{VirtualAddress: importRVA, Size: 0x100})

	sec := func(i int, name string, rva, raw uint32, chars uint32) {
		var h sectionHeader
		copy(h.Name[:], name)
		h.VirtualSize = 0x400
		h.VirtualAddress = rva
		h.SizeOfRawData = 0x400
		h.PointerToRawData = raw
		h.Characteristics = chars
		if chars&sectionCntUninitializedData != 0 {
			h.SizeOfRawData = 0
			h.PointerToRawData = 0
		}
		im.put(dirOff+16*8+i*sectionHeaderSize, h)
	}
	sec(0, ".text", textRVA, textRaw, sectionCntCode|sectionMemExecute|sectionMemRead)
	sec(1, ".idata", idataRVA, idataRaw, sectionCntInitializedData|sectionMemRead|sectionMemWrite)
	sec(2, ".edata", edataRVA, edataRaw, sectionCntInitializedData|sectionMemRead)
	sec(3, ".bss", bssRVA, 0, sectionCntUninitializedData|sectionMemRead|sectionMemWrite)

	// Imports. Descriptor array at idataRVA.
	desc := func(i int, oft, name, ft uint32) {
		im.put(idataRaw+i*importDescriptorSize, importDescriptor{
			OriginalFirstThunk: oft,
			Name:               name,
			FirstThunk:         ft,
		})
	}
	// KERNEL32: by-name thunk via INT, plus an unknown ordinal.
	desc(0, idataRVA+0x100, idataRVA+0x200, idataRVA+0x110)
	im.put(idataRaw+0x100, uint32(idataRVA+0x210), uint32(0x8000002a), uint32(0)) // INT
	im.put(idataRaw+0x110, uint32(idataRVA+0x210), uint32(0x8000002a), uint32(0)) // IAT
	im.puts(idataRaw+0x200, "KERNEL32.DLL")
	im.put(idataRaw+0x210, uint16(0)) // hint
	im.puts(idataRaw+0x212, "ExitProcess")

	// WS2_32: ordinal import with no INT, IAT only.
	desc(1, 0, idataRVA+0x220, idataRVA+0x120)
	im.put(idataRaw+0x120, uint32(0x80000016), uint32(0))
	im.puts(idataRaw+0x220, "WS2_32.DLL")

	if !opts.noVB {
		// MSVBVM60: triggers the VisualBasic runtime flag.
		desc(2, idataRVA+0x130, idataRVA+0x230, idataRVA+0x140)
		im.put(idataRaw+0x130, uint32(idataRVA+0x240), uint32(0))
		im.put(idataRaw+0x140, uint32(idataRVA+0x240), uint32(0))
		im.puts(idataRaw+0x230, "MSVBVM60.DLL")
		im.put(idataRaw+0x240, uint16(0))
		im.puts(idataRaw+0x242, "ThunRTMain")
	}
	// the descriptor after the last one stays zero: terminator

	if !opts.skipExports {
		im.put(edataRaw, exportDirectory{
			NumberOfFunctions:     2,
			NumberOfNames:         1,
			AddressOfFunctions:    edataRVA + 0x40,
			AddressOfNames:        edataRVA + 0x50,
			AddressOfNameOrdinals: edataRVA + 0x58,
		})
		im.put(edataRaw+0x40, uint32(textRVA), uint32(textRVA+0x10))
		im.put(edataRaw+0x50, uint32(edataRVA+0x60))
		im.put(edataRaw+0x58, uint16(1))
		im.puts(edataRaw+0x60, "MyExport")
	}

	return im.b
}

func load32(t *testing.T, opts imageOpts) *Loader {
	t.Helper()
	l := New()
	if err := l.Load(build32(opts)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return l
}

func TestMatch(t *testing.T) {
	if !Match(build32(imageOpts{})) {
		t.Error("valid image did not match")
	}
	if Match([]byte("\x7fELF....")) {
		t.Error("ELF magic matched")
	}
	if Match([]byte{0x4d}) {
		t.Error("truncated buffer matched")
	}
}

func TestHeaders(t *testing.T) {
	l := load32(t, imageOpts{})
	if l.Name() != "pe" || l.Bits() != 32 || l.Processor() != "x86" {
		t.Errorf("metadata = %s/%d/%s", l.Name(), l.Bits(), l.Processor())
	}
	if l.Entry() != testBase+textRVA {
		t.Errorf("entry = %#x", l.Entry())
	}
	if l.Status() != format.Ready {
		t.Errorf("status = %v, problems = %v", l.Status(), l.Problems())
	}
	if s, ok := l.Symbols().Get(l.Entry()); !ok || s.Name != EntryPointName {
		t.Errorf("entry symbol = %+v, %v", s, ok)
	}
}

func TestSegments(t *testing.T) {
	l := load32(t, imageOpts{})
	segs := l.Segments()
	if len(segs) != 4 {
		t.Fatalf("segment count = %d", len(segs))
	}

	tests := []struct {
		name string
		addr uint64
		typ  format.SegmentType
	}{
		{".text", testBase + textRVA, format.SegmentCode},
		{".idata", testBase + idataRVA, format.SegmentData | format.SegmentWrite},
		{".edata", testBase + edataRVA, format.SegmentData | format.SegmentRead},
		{".bss", testBase + bssRVA, format.SegmentData | format.SegmentWrite | format.SegmentBss},
	}
	for i, tt := range tests {
		s := segs[i]
		if s.Name != tt.name || s.Address != tt.addr || s.Type != tt.typ {
			t.Errorf("segment %d = %q %#x %v, want %q %#x %v",
				i, s.Name, s.Address, s.Type, tt.name, tt.addr, tt.typ)
		}
	}
}

func TestRVATranslation(t *testing.T) {
	l := load32(t, imageOpts{})

	off, err := l.Offset(testBase + textRVA + 5)
	if err != nil || off != textRaw+5 {
		t.Errorf("Offset(.text+5) = %#x, %v", off, err)
	}

	// left-inverse of the section-relative construction
	off, err = l.rvaToOffset(idataRVA + 0x123)
	if err != nil || off != idataRaw+0x123 {
		t.Errorf("rvaToOffset(.idata+0x123) = %#x, %v", off, err)
	}

	for _, rva := range []uint64{0x9000, bssRVA + 4} {
		if _, err := l.rvaToOffset(rva); !errors.Is(err, format.ErrUnresolvableAddress) {
			t.Errorf("rvaToOffset(%#x) = %v, want ErrUnresolvableAddress", rva, err)
		}
	}
	if _, err := l.Offset(testBase - 4); !errors.Is(err, format.ErrUnresolvableAddress) {
		t.Errorf("Offset below base = %v", err)
	}
}

func TestImports(t *testing.T) {
	l := load32(t, imageOpts{})
	tbl := l.Symbols()

	tests := []struct {
		addr uint64
		name string
	}{
		// IAT slot addresses, never INT slots.
		{testBase + idataRVA + 0x110, "kernel32.ExitProcess"},
		{testBase + idataRVA + 0x114, "kernel32_ord_42"},
		{testBase + idataRVA + 0x120, "ws2_32.shutdown"},
		{testBase + idataRVA + 0x140, "msvbvm60.ThunRTMain"},
	}
	for _, tt := range tests {
		s, ok := tbl.Get(tt.addr)
		if !ok {
			t.Errorf("no symbol at %#x", tt.addr)
			continue
		}
		if s.Name != tt.name || s.Kind != symbol.KindImport {
			t.Errorf("symbol at %#x = %q (%v), want %q (import)", tt.addr, s.Name, s.Kind, tt.name)
		}
	}

	// Nothing may be defined at the INT slots.
	if _, ok := tbl.Get(testBase + idataRVA + 0x100); ok {
		t.Error("symbol defined at INT slot")
	}
	if l.Runtime() != analysis.RuntimeVisualBasic {
		t.Errorf("runtime = %v, want visualbasic", l.Runtime())
	}
}

func TestOrdinalExtraction(t *testing.T) {
	tests := []struct {
		thunk uint64
		flag  uint64
		want  uint16
	}{
		{0x80000016, ordinalFlag32, 0x16},
		{0x8000002a, ordinalFlag32, 0x2a},
		{ordinalFlag64 | 115, ordinalFlag64, 115},
	}
	for _, tt := range tests {
		if got := uint16(tt.thunk ^ tt.flag); got != tt.want {
			t.Errorf("ordinal of %#x = %#x, want %#x", tt.thunk, got, tt.want)
		}
	}
}

func TestOrdinalNames(t *testing.T) {
	tests := []struct {
		lib     string
		ordinal uint16
		want    string
	}{
		{"WS2_32.DLL", 22, "ws2_32.shutdown"},
		{"ws2_32.dll", 115, "ws2_32.WSAStartup"},
		{"OLEAUT32.DLL", 6, "oleaut32.SysFreeString"},
		{"KERNEL32.DLL", 42, "kernel32_ord_42"},
		{"ws2_32.dll", 999, "ws2_32_ord_999"},
	}
	for _, tt := range tests {
		if got := ordinalImportName(tt.lib, tt.ordinal); got != tt.want {
			t.Errorf("ordinalImportName(%q, %d) = %q, want %q", tt.lib, tt.ordinal, got, tt.want)
		}
	}
}

func TestExports(t *testing.T) {
	l := load32(t, imageOpts{})
	s, ok := l.Symbols().Get(testBase + textRVA + 0x10)
	if !ok || s.Name != "MyExport" || s.Kind != symbol.KindExport {
		t.Errorf("export = %+v, %v", s, ok)
	}
}

func TestMalformedHeaders(t *testing.T) {
	valid := build32(imageOpts{})

	corrupt := func(name string, mutate func([]byte)) {
		raw := append([]byte(nil), valid...)
		mutate(raw)
		l := New()
		err := l.Load(raw)
		if !errors.Is(err, format.ErrMalformedHeader) {
			t.Errorf("%s: err = %v, want ErrMalformedHeader", name, err)
		}
		if l.Status() != format.Failed {
			t.Errorf("%s: status = %v", name, l.Status())
		}
		if len(l.Segments()) != 0 || l.Symbols().Len() != 0 {
			t.Errorf("%s: failed load published state", name)
		}
	}

	corrupt("dos magic", func(b []byte) { b[0] = 'X' })
	corrupt("nt signature", func(b []byte) { b[ntOff] = 0 })
	corrupt("machine", func(b []byte) { b[ntOff+4] = 0xff; b[ntOff+5] = 0xff })
	corrupt("optional magic", func(b []byte) {
		b[ntOff+4+fileHeaderSize] = 0
		b[ntOff+4+fileHeaderSize+1] = 0
	})
}

func TestPartialLoad(t *testing.T) {
	// Import directory pointing outside every section: headers and
	// sections must still land, status degrades to PartiallyLoaded.
	l := load32(t, imageOpts{importDir: 0x9000})
	if l.Status() != format.PartiallyLoaded {
		t.Fatalf("status = %v", l.Status())
	}
	if len(l.Problems()) == 0 {
		t.Fatal("no problems recorded")
	}
	if !errors.Is(l.Problems()[0], format.ErrUnresolvableAddress) {
		t.Errorf("problem = %v", l.Problems()[0])
	}
	if len(l.Segments()) != 4 {
		t.Errorf("segments = %d", len(l.Segments()))
	}
	// Exports are independent of the broken import directory.
	if _, ok := l.Symbols().Get(testBase + textRVA + 0x10); !ok {
		t.Error("export lost to unrelated import failure")
	}
}

func TestDetect(t *testing.T) {
	l, err := format.Load(build32(imageOpts{}))
	if err != nil {
		t.Fatal(err)
	}
	if l.Name() != "pe" {
		t.Errorf("detected %q", l.Name())
	}
	if _, err := format.Detect([]byte("not an executable")); !errors.Is(err, format.ErrUnknownFormat) {
		t.Errorf("Detect garbage = %v", err)
	}
}

func TestAnalyzerSeed(t *testing.T) {
	l := load32(t, imageOpts{})
	a := l.CreateAnalyzer()

	got := make(map[uint64]bool)
	for {
		addr, ok := a.Next()
		if !ok {
			break
		}
		got[addr] = true
	}
	if !got[l.Entry()] {
		t.Error("entry not queued")
	}
	if !got[testBase+textRVA+0x10] {
		t.Error("export not queued")
	}
}

// build64 is the minimal 64-bit counterpart: one text and one idata
// section, 8-byte thunks.
func build64() []byte {
	im := &image{b: make([]byte, 0x1000)}

	im.put(0, uint16(dosMagic))
	im.put(0x3c, uint32(ntOff))
	im.put(ntOff, uint32(ntSignature))
	im.put(ntOff+4, fileHeader{
		Machine:              machineAMD64,
		NumberOfSections:     2,
		SizeOfOptionalHeader: 112 + 16*8,
	})

	opt := optionalHeader64{
		Magic:               optMagic64,
		AddressOfEntryPoint: textRVA,
		ImageBase:           0x140000000,
		SectionAlignment:    0x1000,
		NumberOfRvaAndSizes: 16,
	}
	optOff := ntOff + 4 + fileHeaderSize
	im.put(optOff, opt)

	dirOff := optOff + 112
	im.put(dirOff+dirImport*8, dataDirectory{VirtualAddress: idataRVA, Size: 0x100})

	sec := func(i int, name string, rva, raw uint32, chars uint32) {
		var h sectionHeader
		copy(h.Name[:], name)
		h.VirtualSize = 0x400
		h.VirtualAddress = rva
		h.SizeOfRawData = 0x400
		h.PointerToRawData = raw
		h.Characteristics = chars
		im.put(dirOff+16*8+i*sectionHeaderSize, h)
	}
	sec(0, ".text", textRVA, textRaw, sectionCntCode|sectionMemExecute|sectionMemRead)
	sec(1, ".idata", idataRVA, idataRaw, sectionCntInitializedData|sectionMemRead)

	im.put(idataRaw, importDescriptor{
		OriginalFirstThunk: idataRVA + 0x100,
		Name:               idataRVA + 0x200,
		FirstThunk:         idataRVA + 0x140,
	})
	im.put(idataRaw+0x100, uint64(idataRVA+0x210), ordinalFlag64|115, uint64(0))
	im.put(idataRaw+0x140, uint64(idataRVA+0x210), ordinalFlag64|115, uint64(0))
	im.puts(idataRaw+0x200, "ws2_32.dll")
	im.put(idataRaw+0x210, uint16(0))
	im.puts(idataRaw+0x212, "WSACleanup")

	return im.b
}

func TestLoad64(t *testing.T) {
	l := New()
	if err := l.Load(build64()); err != nil {
		t.Fatal(err)
	}
	if l.Bits() != 64 || l.Processor() != "x86_64" {
		t.Errorf("bits/processor = %d/%s", l.Bits(), l.Processor())
	}

	base := uint64(0x140000000)
	tests := []struct {
		addr uint64
		name string
	}{
		{base + idataRVA + 0x140, "ws2_32.WSACleanup"},
		{base + idataRVA + 0x148, "ws2_32.WSAStartup"},
	}
	for _, tt := range tests {
		s, ok := l.Symbols().Get(tt.addr)
		if !ok || s.Name != tt.name {
			t.Errorf("symbol at %#x = %+v, %v, want %q", tt.addr, s, ok, tt.name)
		}
	}
}

func TestBorlandHeuristic(t *testing.T) {
	raw := build32(imageOpts{noVB: true})
	// Rename .text to the Delphi-style CODE.
	secOff := ntOff + 4 + fileHeaderSize + 96 + 16*8
	copy(raw[secOff:secOff+8], []byte("CODE\x00\x00\x00\x00"))

	l := New()
	if err := l.Load(raw); err != nil {
		t.Fatal(err)
	}
	if l.Runtime() != analysis.RuntimeBorland {
		t.Errorf("runtime = %v, want borland", l.Runtime())
	}

	// A msvbvm import outweighs the section-name heuristic.
	l = load32(t, imageOpts{})
	if l.Runtime() != analysis.RuntimeVisualBasic {
		t.Errorf("runtime = %v, want visualbasic", l.Runtime())
	}
}

func TestLoaderSingleUse(t *testing.T) {
	l := load32(t, imageOpts{})
	if err := l.Load(build32(imageOpts{})); err == nil {
		t.Error("second Load succeeded")
	}
}
