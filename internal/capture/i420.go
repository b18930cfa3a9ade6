package capture

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/emocall/internal/frame"
)

// ToI420 converts a BGR Mat into a tightly packed I420 frame. OpenCV only
// produces I420 for even dimensions, so an odd last row or column is cropped.
func ToI420(mat gocv.Mat) (*frame.VideoFrame, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("convert to i420: empty mat")
	}
	if mat.Channels() != 3 {
		return nil, fmt.Errorf("convert to i420: want 3 channels, got %d", mat.Channels())
	}

	w, h := mat.Cols()&^1, mat.Rows()&^1
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("convert to i420: frame %dx%d too small", mat.Cols(), mat.Rows())
	}

	src := mat
	if w != mat.Cols() || h != mat.Rows() {
		region := mat.Region(image.Rect(0, 0, w, h))
		defer region.Close()
		src = region.Clone()
		defer src.Close()
	}

	yuv := gocv.NewMat()
	defer yuv.Close()
	gocv.CvtColor(src, &yuv, gocv.ColorBGRToYUVI420)

	data := yuv.ToBytes()
	f := frame.NewI420(w, h)
	ySize, cSize := len(f.Y), len(f.U)
	if len(data) != ySize+2*cSize {
		return nil, fmt.Errorf("convert to i420: got %d bytes, want %d", len(data), ySize+2*cSize)
	}

	copy(f.Y, data[:ySize])
	copy(f.U, data[ySize:ySize+cSize])
	copy(f.V, data[ySize+cSize:])

	return f, nil
}
