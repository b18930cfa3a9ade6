// Package testdata generates synthetic frames for tests that need
// recognisable pixel content without shipping binary fixtures.
package testdata

import (
	"image"
	"image/color"

	"github.com/ayusman/emocall/internal/frame"
)

// Luma levels used by the generated frames.
const (
	Dark   = 16
	Bright = 235
)

// SolidI420 returns a w x h frame filled with a single YUV colour.
func SolidI420(w, h int, y, u, v byte) *frame.VideoFrame {
	f := frame.NewI420(w, h)
	fill(f.Y, y)
	fill(f.U, u)
	fill(f.V, v)
	return f
}

// MarkedI420 returns a dark grey frame with a bright square of side size in
// its top-left corner. Normalizing the frame moves the square, which makes
// the applied orientation visible. size should be even so the chroma planes
// stay neutral around it.
func MarkedI420(w, h, size int) *frame.VideoFrame {
	f := SolidI420(w, h, Dark, 128, 128)
	for y := 0; y < size && y < h; y++ {
		row := f.Y[y*f.YStride:]
		for x := 0; x < size && x < w; x++ {
			row[x] = Bright
		}
	}
	return f
}

// Marked is the RGB counterpart of MarkedI420.
func Marked(w, h, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{Dark, Dark, Dark, 255}
			if x < size && y < size {
				c = color.RGBA{Bright, Bright, Bright, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Sequence returns n uniformly coloured images of increasing brightness,
// suitable for a mock camera.
func Sequence(n, w, h int) []image.Image {
	imgs := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		level := uint8(Dark + (Bright-Dark)*i/max(n-1, 1))
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = level, level, level, 255
		}
		imgs = append(imgs, img)
	}
	return imgs
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
