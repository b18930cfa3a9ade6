package colorspace

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/emocall/internal/frame"
)

func uniformFrame(w, h int, y, cb, cr uint8) *frame.VideoFrame {
	f := frame.NewI420(w, h)
	for i := range f.Y {
		f.Y[i] = y
	}
	for i := range f.U {
		f.U[i] = cb
		f.V[i] = cr
	}
	return f
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestConvert_UniformColor(t *testing.T) {
	tests := []struct {
		name      string
		y, cb, cr uint8
	}{
		{name: "mid gray", y: 128, cb: 128, cr: 128},
		{name: "black", y: 0, cb: 128, cr: 128},
		{name: "white", y: 255, cb: 128, cr: 128},
		{name: "reddish", y: 76, cb: 85, cr: 255},
		{name: "greenish", y: 150, cb: 44, cr: 21},
		{name: "bluish", y: 29, cb: 255, cr: 107},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Convert(uniformFrame(6, 4, tt.y, tt.cb, tt.cr))
			require.NoError(t, err)

			wr, wg, wb := color.YCbCrToRGB(tt.y, tt.cb, tt.cr)
			first := img.RGBAAt(0, 0)

			assert.LessOrEqual(t, absDiff(first.R, wr), 1, "red channel")
			assert.LessOrEqual(t, absDiff(first.G, wg), 1, "green channel")
			assert.LessOrEqual(t, absDiff(first.B, wb), 1, "blue channel")
			assert.Equal(t, uint8(255), first.A)

			for py := 0; py < 4; py++ {
				for px := 0; px < 6; px++ {
					if got := img.RGBAAt(px, py); got != first {
						t.Fatalf("pixel (%d,%d) = %v, want uniform %v", px, py, got, first)
					}
				}
			}
		})
	}
}

func TestConvert_Dimensions(t *testing.T) {
	img, err := Convert(frame.NewI420(100, 200))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 100, 200), img.Bounds())
}

func TestConvert_ChromaIsSubsampled(t *testing.T) {
	f := uniformFrame(4, 4, 128, 128, 128)
	// The top-left chroma sample covers pixels (0..1, 0..1) only.
	f.V[0] = 255

	img, err := Convert(f)
	require.NoError(t, err)

	tinted := img.RGBAAt(0, 0)
	for _, p := range []image.Point{{1, 0}, {0, 1}, {1, 1}} {
		assert.Equal(t, tinted, img.RGBAAt(p.X, p.Y), "pixel %v shares the tinted chroma sample", p)
	}
	assert.NotEqual(t, tinted, img.RGBAAt(2, 0))
	assert.NotEqual(t, tinted, img.RGBAAt(0, 2))
	assert.Greater(t, tinted.R, img.RGBAAt(3, 3).R)
}

func TestConvert_RejectsMalformedFrame(t *testing.T) {
	f := frame.NewI420(8, 8)
	f.Height = 16

	img, err := Convert(f)

	assert.Nil(t, img)
	assert.ErrorIs(t, err, frame.ErrGeometry)
}

func TestConvert_RespectsStrides(t *testing.T) {
	f := &frame.VideoFrame{
		Width: 2, Height: 2,
		YStride: 4, UStride: 3, VStride: 3,
		Y: []byte{10, 20, 99, 99, 30, 40, 99, 99},
		U: []byte{128, 99, 99},
		V: []byte{128, 99, 99},
	}

	img, err := Convert(f)
	require.NoError(t, err)

	for i, p := range []image.Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		want := []uint8{10, 20, 30, 40}[i]
		got := img.RGBAAt(p.X, p.Y)
		assert.Equal(t, want, got.R, "pixel %v", p)
		assert.Equal(t, got.R, got.G, "gray pixel %v", p)
	}
}

func TestFromImage_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		y, cb, cr uint8
	}{
		{name: "gray", y: 100, cb: 128, cr: 128},
		{name: "skin tone", y: 160, cb: 110, cr: 150},
		{name: "saturated blue", y: 40, cb: 220, cr: 110},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := uniformFrame(8, 6, tt.y, tt.cb, tt.cr)

			img, err := Convert(orig)
			require.NoError(t, err)
			back := FromImage(img)

			require.NoError(t, back.Validate())
			assert.Equal(t, orig.Width, back.Width)
			assert.Equal(t, orig.Height, back.Height)

			const tolerance = 2
			for i := range orig.Y {
				assert.LessOrEqual(t, absDiff(orig.Y[i], back.Y[i]), tolerance, "luma sample %d", i)
			}
			for i := range orig.U {
				assert.LessOrEqual(t, absDiff(orig.U[i], back.U[i]), tolerance, "cb sample %d", i)
				assert.LessOrEqual(t, absDiff(orig.V[i], back.V[i]), tolerance, "cr sample %d", i)
			}
		})
	}
}

func TestFromImage_OddDimensions(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 5, 3))
	for i := range img.Pix {
		img.Pix[i] = 200
	}

	f := FromImage(img)

	require.NoError(t, f.Validate())
	assert.Equal(t, 3, f.ChromaWidth())
	assert.Equal(t, 2, f.ChromaHeight())
	for i := range f.U {
		assert.InDelta(t, 128, int(f.U[i]), 1)
		assert.InDelta(t, 128, int(f.V[i]), 1)
	}
}
