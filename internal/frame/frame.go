// Package frame defines the planar video frame handed to the analysis pipeline by the call layer.
package frame

import (
	"errors"
	"fmt"
)

// ErrGeometry is returned when a frame's planes do not match its declared dimensions.
var ErrGeometry = errors.New("frame geometry mismatch")

// VideoFrame is an I420 frame: a full-resolution luma plane followed by two
// chroma planes subsampled by two in both axes.
//
// Frames are owned by the capture side and must not be retained after
// OnFrame returns.
type VideoFrame struct {
	Width   int
	Height  int
	Y       []byte // Luminance plane
	U       []byte // Chrominance (Cb) plane
	V       []byte // Chrominance (Cr) plane
	YStride int
	UStride int
	VStride int
}

// ChromaWidth returns the width of the U and V planes.
func (f *VideoFrame) ChromaWidth() int {
	return (f.Width + 1) / 2
}

// ChromaHeight returns the height of the U and V planes.
func (f *VideoFrame) ChromaHeight() int {
	return (f.Height + 1) / 2
}

// NewI420 allocates a tightly packed frame of the given size.
func NewI420(width, height int) *VideoFrame {
	f := &VideoFrame{
		Width:   width,
		Height:  height,
		YStride: width,
	}
	f.UStride = f.ChromaWidth()
	f.VStride = f.UStride
	f.Y = make([]byte, f.YStride*height)
	f.U = make([]byte, f.UStride*f.ChromaHeight())
	f.V = make([]byte, f.VStride*f.ChromaHeight())
	return f
}

// Validate checks that the plane buffers match the declared width and height.
// Any mismatch is a caller contract violation and wraps ErrGeometry.
func (f *VideoFrame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrGeometry)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrGeometry, f.Width, f.Height)
	}
	if f.YStride < f.Width {
		return fmt.Errorf("%w: luma stride %d shorter than width %d", ErrGeometry, f.YStride, f.Width)
	}
	if f.UStride != f.VStride {
		return fmt.Errorf("%w: chroma strides differ (u=%d, v=%d)", ErrGeometry, f.UStride, f.VStride)
	}
	if f.UStride < f.ChromaWidth() {
		return fmt.Errorf("%w: chroma stride %d shorter than chroma width %d", ErrGeometry, f.UStride, f.ChromaWidth())
	}
	if want := f.YStride * f.Height; len(f.Y) != want {
		return fmt.Errorf("%w: luma plane has %d bytes, want %d for %dx%d", ErrGeometry, len(f.Y), want, f.Width, f.Height)
	}
	want := f.UStride * f.ChromaHeight()
	if len(f.U) != want {
		return fmt.Errorf("%w: u plane has %d bytes, want %d for %dx%d", ErrGeometry, len(f.U), want, f.Width, f.Height)
	}
	if len(f.V) != want {
		return fmt.Errorf("%w: v plane has %d bytes, want %d for %dx%d", ErrGeometry, len(f.V), want, f.Width, f.Height)
	}
	return nil
}
