// Package colorspace converts planar I420 frames into packed images and back.
package colorspace

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/ayusman/emocall/internal/frame"
)

// Convert renders an I420 frame into a packed RGBA image using the JFIF
// (full-range BT.601) conversion. The frame's planes are read in place and
// never retained. A frame whose planes do not match its dimensions is
// rejected with an error wrapping frame.ErrGeometry.
func Convert(f *frame.VideoFrame) (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}

	src := &image.YCbCr{
		Y:              f.Y,
		Cb:             f.U,
		Cr:             f.V,
		YStride:        f.YStride,
		CStride:        f.UStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}

	dst := image.NewRGBA(src.Rect)
	draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
	return dst, nil
}

// FromImage converts a packed image into a tightly packed I420 frame.
// Chroma is averaged over each 2x2 block; odd edges use the pixels available.
func FromImage(img image.Image) *frame.VideoFrame {
	b := img.Bounds()
	f := frame.NewI420(b.Dx(), b.Dy())

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, bl := rgb8(img.At(b.Min.X+x, b.Min.Y+y))
			yy, _, _ := color.RGBToYCbCr(r, g, bl)
			f.Y[y*f.YStride+x] = yy
		}
	}

	for cy := 0; cy < f.ChromaHeight(); cy++ {
		for cx := 0; cx < f.ChromaWidth(); cx++ {
			var sr, sg, sb, n int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					x, y := cx*2+dx, cy*2+dy
					if x >= f.Width || y >= f.Height {
						continue
					}
					r, g, bl := rgb8(img.At(b.Min.X+x, b.Min.Y+y))
					sr += int(r)
					sg += int(g)
					sb += int(bl)
					n++
				}
			}
			_, cb, cr := color.RGBToYCbCr(uint8((sr+n/2)/n), uint8((sg+n/2)/n), uint8((sb+n/2)/n))
			f.U[cy*f.UStride+cx] = cb
			f.V[cy*f.VStride+cx] = cr
		}
	}

	return f
}

func rgb8(c color.Color) (uint8, uint8, uint8) {
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}
