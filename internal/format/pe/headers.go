package pe

// On-disk PE structures, little-endian, decoded with encoding/binary.
// Field sets follow the PE/COFF spec; nothing here is validated, the
// loader does that.

const (
	dosMagic    = 0x5a4d     // "MZ"
	ntSignature = 0x00004550 // "PE\0\0"

	optMagic32 = 0x10b
	optMagic64 = 0x20b

	machineI386  = 0x014c
	machineAMD64 = 0x8664
	machineARM   = 0x01c4
	machineARM64 = 0xaa64

	dirExport = 0
	dirImport = 1

	sectionCntCode              = 0x00000020
	sectionCntInitializedData   = 0x00000040
	sectionCntUninitializedData = 0x00000080
	sectionMemExecute           = 0x20000000
	sectionMemRead              = 0x40000000
	sectionMemWrite             = 0x80000000

	ordinalFlag32 = uint64(0x80000000)
	ordinalFlag64 = uint64(1) << 63

	dosHeaderSize        = 64
	fileHeaderSize       = 20
	sectionHeaderSize    = 40
	importDescriptorSize = 20
	exportDirectorySize  = 40
)

type dosHeader struct {
	Magic      uint16
	LastPage   uint16
	PageCount  uint16
	RelocCount uint16
	HeaderSize uint16
	MinExtra   uint16
	MaxExtra   uint16
	InitSS     uint16
	InitSP     uint16
	Checksum   uint16
	InitIP     uint16
	InitCS     uint16
	RelocAddr  uint16
	OverlayNum uint16
	Reserved1  [8]byte
	OemID      uint16
	OemInfo    uint16
	Reserved2  [20]byte
	NewHeader  uint32 // file offset of the NT headers
}

type fileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type optionalHeader32 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

type optionalHeader64 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

type dataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type sectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

func (s *sectionHeader) name() string {
	for i, b := range s.Name {
		if b == 0 {
			return string(s.Name[:i])
		}
	}
	return string(s.Name[:])
}

type exportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

type importDescriptor struct {
	OriginalFirstThunk uint32 // INT RVA; zero in some linkers
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32 // IAT RVA; what call sites reference
}

func (d *importDescriptor) empty() bool {
	return d.OriginalFirstThunk == 0 && d.Name == 0 && d.FirstThunk == 0
}
