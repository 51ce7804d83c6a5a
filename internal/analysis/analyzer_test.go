package analysis

import (
	"testing"

	"dissect/internal/format"
	"dissect/internal/symbol"
)

func testSegments() []*format.Segment {
	return []*format.Segment{
		format.NewSegment(".text", 0x400, 0x401000, 0x1000, format.SegmentCode|format.SegmentRead),
		format.NewSegment(".data", 0x1400, 0x402000, 0x1000, format.SegmentData|format.SegmentWrite),
	}
}

func TestSeedsEntryAndExports(t *testing.T) {
	tbl := symbol.NewTable()
	tbl.Define(0x401100, "Exported", symbol.KindExport)
	tbl.Define(0x402010, "some_data", symbol.KindData)

	a := New(testSegments(), tbl, 0x401000)

	got := make(map[uint64]bool)
	for {
		addr, ok := a.Next()
		if !ok {
			break
		}
		got[addr] = true
	}
	if !got[0x401000] || !got[0x401100] {
		t.Errorf("queue missing entry or export: %v", got)
	}
	if got[0x402010] {
		t.Error("data symbol queued for exploration")
	}
}

func TestPushDeduplicates(t *testing.T) {
	a := New(testSegments(), symbol.NewTable(), 0x401000)
	a.Push(0x401000)
	a.Push(0x401500)
	a.Push(0x401500)

	count := 0
	for {
		if _, ok := a.Next(); !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("queued %d addresses, want 2", count)
	}
}

func TestPushRejectsNonCode(t *testing.T) {
	a := New(testSegments(), symbol.NewTable(), 0x401000)
	a.Next() // drain the entry
	a.Push(0x402500)
	a.Push(0x900000)
	if _, ok := a.Next(); ok {
		t.Error("non-code address was queued")
	}
}

func TestRuntimeOption(t *testing.T) {
	a := New(testSegments(), symbol.NewTable(), 0x401000, WithRuntime(RuntimeVisualBasic))
	if a.Runtime() != RuntimeVisualBasic {
		t.Errorf("Runtime = %v", a.Runtime())
	}
	if a.Runtime().String() != "visualbasic" {
		t.Errorf("String = %q", a.Runtime().String())
	}
}
