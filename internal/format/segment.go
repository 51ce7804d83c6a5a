package format

// SegmentType flags describe the content and permissions of a segment.
// Flags combine, e.g. Code|Read.
type SegmentType uint32

const (
	SegmentCode  SegmentType = 0x00000001
	SegmentData  SegmentType = 0x00000002
	SegmentRead  SegmentType = 0x00000010
	SegmentWrite SegmentType = 0x00000020
	SegmentBss   SegmentType = 0x00000040
)

func (t SegmentType) String() string {
	s := ""
	flag := func(f SegmentType, name string) {
		if t&f != 0 {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	flag(SegmentCode, "code")
	flag(SegmentData, "data")
	flag(SegmentRead, "read")
	flag(SegmentWrite, "write")
	flag(SegmentBss, "bss")
	if s == "" {
		return "none"
	}
	return s
}

// Segment is a contiguous named region of the loaded image. Immutable
// once the loader has emitted it.
type Segment struct {
	Name       string
	Offset     uint64 // file offset of the raw content
	Address    uint64
	EndAddress uint64
	Type       SegmentType
}

func NewSegment(name string, offset, address, size uint64, typ SegmentType) *Segment {
	return &Segment{
		Name:       name,
		Offset:     offset,
		Address:    address,
		EndAddress: address + size,
		Type:       typ,
	}
}

func (s *Segment) Size() uint64 {
	return s.EndAddress - s.Address
}

func (s *Segment) Contains(addr uint64) bool {
	return addr >= s.Address && addr < s.EndAddress
}

func (s *Segment) Is(t SegmentType) bool {
	return s.Type&t != 0
}
