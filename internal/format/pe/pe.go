// Package pe loads Portable Executable images: headers, section table,
// export directory and import descriptors. It emits segments and
// import/export symbols with image-absolute addresses.
package pe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ianlancetaylor/demangle"

	"dissect/internal/analysis"
	"dissect/internal/buffer"
	"dissect/internal/format"
	"dissect/internal/symbol"
)

// EntryPointName is the symbol defined at the image entry point.
const EntryPointName = "entrypoint"

func init() {
	format.Register(Match, func() format.Loader { return New() })
}

// Match reports whether raw starts with a DOS header whose NT header
// offset is inside the image. Cheap sniff only; Load validates fully.
func Match(raw []byte) bool {
	v := buffer.New(raw)
	magic, err := v.U16(0)
	if err != nil || magic != dosMagic {
		return false
	}
	ntOff, err := v.U32(0x3c)
	if err != nil {
		return false
	}
	sig, err := v.U32(uint64(ntOff))
	return err == nil && sig == ntSignature
}

// Loader is the PE implementation of format.Loader. It borrows the raw
// buffer for the duration of Load and keeps only derived state.
type Loader struct {
	view buffer.View

	machine      uint16
	bits         int
	imageBase    uint64
	sectionAlign uint32
	entry        uint64
	sections     []sectionHeader
	dataDirs     []dataDirectory

	segments []*format.Segment
	symbols  *symbol.Table
	runtime  analysis.Runtime
	status   format.Status
	problems []error
}

func New() *Loader {
	return &Loader{
		symbols: symbol.NewTable(),
		status:  format.Unloaded,
	}
}

func (l *Loader) Name() string { return "pe" }

func (l *Loader) Bits() int { return l.bits }

func (l *Loader) Processor() string {
	switch l.machine {
	case machineI386:
		return "x86"
	case machineAMD64:
		return "x86_64"
	case machineARM:
		return "arm"
	case machineARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

func (l *Loader) Entry() uint64               { return l.entry }
func (l *Loader) Segments() []*format.Segment { return l.segments }
func (l *Loader) Symbols() *symbol.Table      { return l.symbols }
func (l *Loader) Status() format.Status       { return l.status }
func (l *Loader) Problems() []error           { return l.problems }

// Runtime returns the compiler runtime detected during import loading.
func (l *Loader) Runtime() analysis.Runtime { return l.runtime }

func (l *Loader) CreateAnalyzer() format.Analyzer {
	return analysis.New(l.segments, l.symbols, l.entry, analysis.WithRuntime(l.runtime))
}

// Offset translates an image-absolute address to a file offset.
func (l *Loader) Offset(addr uint64) (uint64, error) {
	if addr < l.imageBase {
		return 0, fmt.Errorf("address %#x below image base %#x: %w", addr, l.imageBase, format.ErrUnresolvableAddress)
	}
	return l.rvaToOffset(addr - l.imageBase)
}

// rvaToOffset maps a relative virtual address to its file offset by
// scanning the section table. An RVA inside a virtual-only section
// (no raw data) or outside every section is unresolvable.
func (l *Loader) rvaToOffset(rva uint64) (uint64, error) {
	for i := range l.sections {
		s := &l.sections[i]
		size := uint64(s.VirtualSize)
		if size == 0 {
			size = uint64(s.SizeOfRawData)
		}
		if rva < uint64(s.VirtualAddress) || rva >= uint64(s.VirtualAddress)+size {
			continue
		}
		if s.SizeOfRawData == 0 {
			return 0, fmt.Errorf("rva %#x in virtual-only section %s: %w", rva, s.name(), format.ErrUnresolvableAddress)
		}
		return uint64(s.PointerToRawData) + (rva - uint64(s.VirtualAddress)), nil
	}
	return 0, fmt.Errorf("rva %#x outside every section: %w", rva, format.ErrUnresolvableAddress)
}

// readStruct decodes a fixed-size little-endian structure at off.
func (l *Loader) readStruct(off, size uint64, out any) error {
	b, err := l.view.Slice(off, size)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, out)
}

// Load drives the whole parse. Header or section-table failures are
// fatal and leave no observable state; directory failures downgrade
// the result to PartiallyLoaded.
func (l *Loader) Load(raw []byte) error {
	if l.status != format.Unloaded {
		return fmt.Errorf("pe: loader already used")
	}
	l.view = buffer.New(raw)

	if err := l.parseHeaders(); err != nil {
		l.status = format.Failed
		l.reset()
		return err
	}
	if err := l.loadSections(); err != nil {
		l.status = format.Failed
		l.reset()
		return err
	}
	if err := l.loadExports(); err != nil {
		l.problems = append(l.problems, fmt.Errorf("exports: %w", err))
	}
	if err := l.loadImports(); err != nil {
		l.problems = append(l.problems, fmt.Errorf("imports: %w", err))
	}
	l.symbols.Define(l.entry, EntryPointName, symbol.KindEntry)

	if len(l.problems) > 0 {
		l.status = format.PartiallyLoaded
	} else {
		l.status = format.Ready
	}
	return nil
}

func (l *Loader) reset() {
	l.segments = nil
	l.sections = nil
	l.dataDirs = nil
	l.symbols = symbol.NewTable()
	l.entry = 0
}

func (l *Loader) parseHeaders() error {
	var dos dosHeader
	if err := l.readStruct(0, dosHeaderSize, &dos); err != nil {
		return fmt.Errorf("dos header: %w", format.ErrMalformedHeader)
	}
	if dos.Magic != dosMagic {
		return fmt.Errorf("dos magic %#x: %w", dos.Magic, format.ErrMalformedHeader)
	}

	ntOff := uint64(dos.NewHeader)
	sig, err := l.view.U32(ntOff)
	if err != nil || sig != ntSignature {
		return fmt.Errorf("nt signature: %w", format.ErrMalformedHeader)
	}

	var fh fileHeader
	if err := l.readStruct(ntOff+4, fileHeaderSize, &fh); err != nil {
		return fmt.Errorf("file header: %w", format.ErrMalformedHeader)
	}
	switch fh.Machine {
	case machineI386, machineAMD64, machineARM, machineARM64:
	default:
		return fmt.Errorf("unsupported machine %#x: %w", fh.Machine, format.ErrMalformedHeader)
	}
	l.machine = fh.Machine

	optOff := ntOff + 4 + fileHeaderSize
	magic, err := l.view.U16(optOff)
	if err != nil {
		return fmt.Errorf("optional header: %w", format.ErrMalformedHeader)
	}

	var (
		dirCount uint32
		dirOff   uint64
		entryRVA uint32
	)
	switch magic {
	case optMagic32:
		var opt optionalHeader32
		if err := l.readStruct(optOff, uint64(binary.Size(opt)), &opt); err != nil {
			return fmt.Errorf("optional header (32): %w", format.ErrMalformedHeader)
		}
		l.bits = 32
		l.imageBase = uint64(opt.ImageBase)
		l.sectionAlign = opt.SectionAlignment
		entryRVA = opt.AddressOfEntryPoint
		dirCount = opt.NumberOfRvaAndSizes
		dirOff = optOff + uint64(binary.Size(opt))
	case optMagic64:
		var opt optionalHeader64
		if err := l.readStruct(optOff, uint64(binary.Size(opt)), &opt); err != nil {
			return fmt.Errorf("optional header (64): %w", format.ErrMalformedHeader)
		}
		l.bits = 64
		l.imageBase = opt.ImageBase
		l.sectionAlign = opt.SectionAlignment
		entryRVA = opt.AddressOfEntryPoint
		dirCount = opt.NumberOfRvaAndSizes
		dirOff = optOff + uint64(binary.Size(opt))
	default:
		return fmt.Errorf("optional magic %#x: %w", magic, format.ErrMalformedHeader)
	}
	l.entry = l.imageBase + uint64(entryRVA)

	if dirCount > 16 {
		dirCount = 16
	}
	l.dataDirs = make([]dataDirectory, dirCount)
	for i := range l.dataDirs {
		if err := l.readStruct(dirOff+uint64(i)*8, 8, &l.dataDirs[i]); err != nil {
			return fmt.Errorf("data directory %d: %w", i, format.ErrMalformedHeader)
		}
	}

	sectionOff := optOff + uint64(fh.SizeOfOptionalHeader)
	l.sections = make([]sectionHeader, fh.NumberOfSections)
	for i := range l.sections {
		if err := l.readStruct(sectionOff+uint64(i)*sectionHeaderSize, sectionHeaderSize, &l.sections[i]); err != nil {
			return fmt.Errorf("section header %d: %w", i, format.ErrTruncatedTable)
		}
	}
	return nil
}

func (l *Loader) loadSections() error {
	l.segments = make([]*format.Segment, 0, len(l.sections))
	for i := range l.sections {
		s := &l.sections[i]

		var typ format.SegmentType
		switch {
		case s.Characteristics&(sectionCntCode|sectionMemExecute) != 0:
			typ = format.SegmentCode
		case s.Characteristics&sectionMemWrite != 0:
			typ = format.SegmentData | format.SegmentWrite
		default:
			typ = format.SegmentData | format.SegmentRead
		}
		if s.Characteristics&sectionCntUninitializedData != 0 {
			typ |= format.SegmentBss
		}

		size := uint64(s.VirtualSize)
		if size == 0 {
			size = uint64(s.SizeOfRawData)
		}
		name := s.name()
		// Delphi-style section naming is the Borland tell.
		if name == "CODE" || name == "DATA" {
			l.runtime = analysis.RuntimeBorland
		}
		l.segments = append(l.segments, format.NewSegment(
			name,
			uint64(s.PointerToRawData),
			l.imageBase+uint64(s.VirtualAddress),
			size,
			typ,
		))
	}
	return nil
}

func (l *Loader) directory(index int) (dataDirectory, bool) {
	if index >= len(l.dataDirs) {
		return dataDirectory{}, false
	}
	d := l.dataDirs[index]
	return d, d.VirtualAddress != 0
}

// loadExports walks the export directory's parallel name/ordinal/
// address arrays and defines one Export symbol per named export. A
// failure discards the whole table.
func (l *Loader) loadExports() error {
	dir, ok := l.directory(dirExport)
	if !ok {
		return nil
	}
	dirOff, err := l.rvaToOffset(uint64(dir.VirtualAddress))
	if err != nil {
		return err
	}
	var exp exportDirectory
	if err := l.readStruct(dirOff, exportDirectorySize, &exp); err != nil {
		return fmt.Errorf("export directory: %w", format.ErrTruncatedTable)
	}

	funcsOff, err := l.rvaToOffset(uint64(exp.AddressOfFunctions))
	if err != nil {
		return err
	}
	namesOff, err := l.rvaToOffset(uint64(exp.AddressOfNames))
	if err != nil {
		return err
	}
	ordsOff, err := l.rvaToOffset(uint64(exp.AddressOfNameOrdinals))
	if err != nil {
		return err
	}

	type export struct {
		addr uint64
		name string
	}
	var pending []export
	for i := uint64(0); i < uint64(exp.NumberOfNames); i++ {
		nameRVA, err := l.view.U32(namesOff + i*4)
		if err != nil {
			return fmt.Errorf("export name %d: %w", i, format.ErrTruncatedTable)
		}
		nameOff, err := l.rvaToOffset(uint64(nameRVA))
		if err != nil {
			return err
		}
		name, err := l.view.CString(nameOff)
		if err != nil {
			return fmt.Errorf("export name %d: %w", i, format.ErrTruncatedTable)
		}

		ordIndex, err := l.view.U16(ordsOff + i*2)
		if err != nil {
			return fmt.Errorf("export ordinal %d: %w", i, format.ErrTruncatedTable)
		}
		if uint32(ordIndex) >= exp.NumberOfFunctions {
			return fmt.Errorf("export ordinal %d out of range: %w", ordIndex, format.ErrTruncatedTable)
		}
		funcRVA, err := l.view.U32(funcsOff + uint64(ordIndex)*4)
		if err != nil {
			return fmt.Errorf("export address %d: %w", ordIndex, format.ErrTruncatedTable)
		}
		if funcRVA == 0 {
			continue
		}
		// MinGW images export Itanium-mangled names; show them
		// readable when the demangler accepts them.
		if d := demangle.Filter(name, demangle.NoClones); d != name {
			name = d
		}
		pending = append(pending, export{addr: l.imageBase + uint64(funcRVA), name: name})
	}
	for _, e := range pending {
		l.symbols.Define(e.addr, e.name, symbol.KindExport)
	}
	return nil
}

// loadImports walks the import descriptor array. Each descriptor's
// failure discards only that descriptor's thunks; sibling descriptors
// still load.
func (l *Loader) loadImports() error {
	dir, ok := l.directory(dirImport)
	if !ok {
		return nil
	}
	dirOff, err := l.rvaToOffset(uint64(dir.VirtualAddress))
	if err != nil {
		return err
	}

	thunkWidth := uint64(4)
	ordinalFlag := ordinalFlag32
	if l.bits == 64 {
		thunkWidth = 8
		ordinalFlag = ordinalFlag64
	}

	var firstErr error
	for i := uint64(0); ; i++ {
		var desc importDescriptor
		if err := l.readStruct(dirOff+i*importDescriptorSize, importDescriptorSize, &desc); err != nil {
			return fmt.Errorf("import descriptor %d: %w", i, format.ErrTruncatedTable)
		}
		if desc.empty() {
			break
		}
		if err := l.readDescriptor(&desc, thunkWidth, ordinalFlag); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("descriptor %d: %w", i, err)
		}
	}
	return firstErr
}

// readDescriptor walks one descriptor's thunk array and defines one
// Import symbol per entry. The names come from the INT when present;
// the symbol addresses always come from the IAT, because that is the
// slot call instructions reference.
func (l *Loader) readDescriptor(desc *importDescriptor, thunkWidth, ordinalFlag uint64) error {
	libName, err := l.importLibName(desc)
	if err != nil {
		return err
	}
	if strings.Contains(strings.ToLower(libName), "msvbvm") {
		l.runtime = analysis.RuntimeVisualBasic
	}

	thunkRVA := uint64(desc.OriginalFirstThunk)
	if thunkRVA == 0 {
		thunkRVA = uint64(desc.FirstThunk)
	}
	thunkOff, err := l.rvaToOffset(thunkRVA)
	if err != nil {
		return err
	}

	type imp struct {
		addr uint64
		name string
	}
	var pending []imp
	for i := uint64(0); ; i++ {
		var val uint64
		if thunkWidth == 8 {
			val, err = l.view.U64(thunkOff + i*8)
		} else {
			var v32 uint32
			v32, err = l.view.U32(thunkOff + i*4)
			val = uint64(v32)
		}
		if err != nil {
			return fmt.Errorf("thunk %d: %w", i, format.ErrTruncatedTable)
		}
		if val == 0 {
			break
		}

		var name string
		if val&ordinalFlag != 0 {
			ordinal := uint16(val ^ ordinalFlag)
			name = ordinalImportName(libName, ordinal)
		} else {
			// The thunk is an RVA to a hint/name record; the
			// ASCII name follows the 2-byte hint.
			nameOff, err := l.rvaToOffset(val)
			if err != nil {
				return err
			}
			importByName, err := l.view.CString(nameOff + 2)
			if err != nil {
				return fmt.Errorf("thunk %d name: %w", i, format.ErrTruncatedTable)
			}
			name = importName(libName, importByName)
		}
		pending = append(pending, imp{
			addr: l.imageBase + uint64(desc.FirstThunk) + i*thunkWidth,
			name: name,
		})
	}
	for _, p := range pending {
		l.symbols.Define(p.addr, p.name, symbol.KindImport)
	}
	return nil
}

func (l *Loader) importLibName(desc *importDescriptor) (string, error) {
	off, err := l.rvaToOffset(uint64(desc.Name))
	if err != nil {
		return "", err
	}
	name, err := l.view.CString(off)
	if err != nil {
		return "", fmt.Errorf("descriptor name: %w", format.ErrTruncatedTable)
	}
	return name, nil
}
