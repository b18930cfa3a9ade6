// Package orient normalizes captured frames so the subject's "up" is canonical
// regardless of how the sending device is held.
package orient

import (
	"fmt"
	"image"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

// Orientation is the physical rotation reported for a video track.
// The zero value means no orientation has been reported yet.
type Orientation int32

const (
	Up Orientation = iota + 1
	Left
	Down
	Right
)

// String returns the lower-case name of the orientation.
func (o Orientation) String() string {
	switch o {
	case Up:
		return "up"
	case Left:
		return "left"
	case Down:
		return "down"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// Valid reports whether o is one of the four known orientations.
func (o Orientation) Valid() bool {
	return o >= Up && o <= Right
}

// Rotated reports whether normalizing o swaps width and height.
func (o Orientation) Rotated() bool {
	return o == Left || o == Right
}

// ParseOrientation parses a case-insensitive orientation name.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "left":
		return Left, nil
	case "down":
		return Down, nil
	case "right":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown orientation %q", s)
}

// Normalize returns img transformed so that the subject is upright.
//
// The captured image is mirrored horizontally (front cameras deliver a
// mirrored sensor image) and then rotated counter-clockwise by 90, 180 or 270
// degrees for Left, Down and Right. Up and unknown orientations return img
// unchanged without copying.
func Normalize(img image.Image, o Orientation) image.Image {
	switch o {
	case Left:
		return imaging.Rotate90(imaging.FlipH(img))
	case Down:
		return imaging.Rotate180(imaging.FlipH(img))
	case Right:
		return imaging.Rotate270(imaging.FlipH(img))
	default:
		return img
	}
}

// Denormalize is the inverse of Normalize.
func Denormalize(img image.Image, o Orientation) image.Image {
	switch o {
	case Left:
		return imaging.FlipH(imaging.Rotate270(img))
	case Down:
		return imaging.FlipH(imaging.Rotate180(img))
	case Right:
		return imaging.FlipH(imaging.Rotate90(img))
	default:
		return img
	}
}

// State holds the most recently reported orientation. It is written by the
// call layer's orientation notifications and read on the frame path; last
// write wins.
type State struct {
	v atomic.Int32
}

// Store records a new orientation. Invalid values are ignored.
func (s *State) Store(o Orientation) bool {
	if !o.Valid() {
		return false
	}
	s.v.Store(int32(o))
	return true
}

// Load returns the current orientation and whether one has been reported.
func (s *State) Load() (Orientation, bool) {
	o := Orientation(s.v.Load())
	return o, o.Valid()
}
