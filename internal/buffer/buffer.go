// Package buffer provides a bounds-checked view over a raw binary image,
// used as a cursor while walking headers and tables.
package buffer

import (
	"encoding/binary"
	"fmt"
)

// View is a window into a byte slice. The zero value is an empty view.
// All reads are bounds-checked; a read past the end reports failure
// instead of panicking, since the bytes come from untrusted files.
type View struct {
	data []byte
}

func New(data []byte) View {
	return View{data: data}
}

// Len returns the number of bytes remaining in the view.
func (v View) Len() int {
	return len(v.data)
}

// EOB reports whether the view is exhausted.
func (v View) EOB() bool {
	return len(v.data) == 0
}

// Advance returns a view shifted forward by n bytes.
func (v View) Advance(n uint64) (View, error) {
	if n > uint64(len(v.data)) {
		return View{}, fmt.Errorf("advance %d past end of buffer (%d bytes)", n, len(v.data))
	}
	return View{data: v.data[n:]}, nil
}

// Slice returns size bytes starting at off. The returned slice aliases
// the underlying image; callers must not mutate it.
func (v View) Slice(off, size uint64) ([]byte, error) {
	if off > uint64(len(v.data)) || size > uint64(len(v.data))-off {
		return nil, fmt.Errorf("slice [%#x, %#x) out of bounds (%d bytes)", off, off+size, len(v.data))
	}
	return v.data[off : off+size], nil
}

func (v View) U8(off uint64) (uint8, error) {
	b, err := v.Slice(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (v View) U16(off uint64) (uint16, error) {
	b, err := v.Slice(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (v View) U32(off uint64) (uint32, error) {
	b, err := v.Slice(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (v View) U64(off uint64) (uint64, error) {
	b, err := v.Slice(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// CString reads a NUL-terminated ASCII string at off. The terminator is
// required; a string running off the end of the image is an error.
func (v View) CString(off uint64) (string, error) {
	if off >= uint64(len(v.data)) {
		return "", fmt.Errorf("string at %#x out of bounds (%d bytes)", off, len(v.data))
	}
	for end := off; end < uint64(len(v.data)); end++ {
		if v.data[end] == 0 {
			return string(v.data[off:end]), nil
		}
	}
	return "", fmt.Errorf("unterminated string at %#x", off)
}
