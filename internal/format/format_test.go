package format

import "testing"

func TestSegmentContains(t *testing.T) {
	s := NewSegment(".text", 0x400, 0x401000, 0x1000, SegmentCode|SegmentRead)

	tests := []struct {
		addr uint64
		want bool
	}{
		{0x400fff, false},
		{0x401000, true},
		{0x401fff, true},
		{0x402000, false},
	}
	for _, tt := range tests {
		if got := s.Contains(tt.addr); got != tt.want {
			t.Errorf("Contains(%#x) = %v, want %v", tt.addr, got, tt.want)
		}
	}
	if s.Size() != 0x1000 {
		t.Errorf("Size = %#x, want 0x1000", s.Size())
	}
	if !s.Is(SegmentCode) || s.Is(SegmentWrite) {
		t.Error("type flags wrong")
	}
}

func TestSegmentAt(t *testing.T) {
	segs := []*Segment{
		NewSegment(".text", 0x400, 0x401000, 0x1000, SegmentCode|SegmentRead),
		NewSegment(".data", 0x1400, 0x402000, 0x200, SegmentData|SegmentWrite),
	}
	if s, ok := SegmentAt(segs, 0x402100); !ok || s.Name != ".data" {
		t.Errorf("SegmentAt(0x402100) = %v, %v", s, ok)
	}
	if _, ok := SegmentAt(segs, 0x500000); ok {
		t.Error("SegmentAt outside all segments succeeded")
	}
}

func TestSegmentTypeString(t *testing.T) {
	if got := (SegmentCode | SegmentRead).String(); got != "code|read" {
		t.Errorf("String = %q", got)
	}
	if got := SegmentType(0).String(); got != "none" {
		t.Errorf("String = %q", got)
	}
}
