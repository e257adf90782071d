package symmem

import (
	"io/ioutil"
	"sort"

	"github.com/pkg/errors"
)

// Image represents a read-only backing image of concrete bytes.
//
// ByteAt returns ok=false for addresses the image does not define. Those
// addresses materialize as fresh symbolic bytes.
type Image interface {
	ByteAt(addr uint64) (b byte, ok bool)
}

// ImageMap is an image defined by individual addresses.
type ImageMap map[uint64]byte

// ByteAt returns the byte at addr, if defined.
func (m ImageMap) ByteAt(addr uint64) (byte, bool) {
	b, ok := m[addr]
	return b, ok
}

// ImageSegment is a contiguous run of bytes starting at Base.
type ImageSegment struct {
	Base uint64
	Data []byte
}

// ByteAt returns the byte at addr, if it falls within the segment.
func (s *ImageSegment) ByteAt(addr uint64) (byte, bool) {
	if addr < s.Base || addr-s.Base >= uint64(len(s.Data)) {
		return 0, false
	}
	return s.Data[addr-s.Base], true
}

// ImageSegments is an image made of several non-overlapping segments.
type ImageSegments []*ImageSegment

// NewImageSegments returns segments sorted by base address.
// Returns an error if any two segments overlap.
func NewImageSegments(segments ...*ImageSegment) (ImageSegments, error) {
	a := make(ImageSegments, len(segments))
	copy(a, segments)
	sort.Slice(a, func(i, j int) bool { return a[i].Base < a[j].Base })

	for i := 1; i < len(a); i++ {
		if prev := a[i-1]; a[i].Base-prev.Base < uint64(len(prev.Data)) {
			return nil, errors.Errorf("image segments overlap: %#x and %#x", prev.Base, a[i].Base)
		}
	}
	return a, nil
}

// ByteAt returns the byte at addr from the segment containing it.
func (a ImageSegments) ByteAt(addr uint64) (byte, bool) {
	i := sort.Search(len(a), func(i int) bool { return a[i].Base > addr })
	if i == 0 {
		return 0, false
	}
	return a[i-1].ByteAt(addr)
}

// ReadImageFile returns a segment holding the contents of a raw binary file.
func ReadImageFile(path string, base uint64) (*ImageSegment, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}
	return &ImageSegment{Base: base, Data: data}, nil
}
