package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/livecam/camcore/pkg/driver/availability"
)

func decodeMJPEG(src []byte, width, height int, rows RowOrder) ([]byte, int, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, 0, availability.Wrap(availability.KindInvalidFrame, "frame: decode mjpeg", err)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, 0, availability.Errorf(availability.KindInvalidFrame, "frame: decode mjpeg", "jpeg is %dx%d, expected %dx%d", b.Dx(), b.Dy(), width, height)
	}

	switch img := img.(type) {
	case *image.Gray:
		return copyRows(img.Pix, img.Stride, height, rows, 1)
	case *image.YCbCr:
		dst := make([]byte, 3*width*height)
		for y := 0; y < height; y++ {
			sy := b.Min.Y + rows.SourceRow(y, height)
			d := dst[3*width*y:]
			for x := 0; x < width; x++ {
				yi := img.YOffset(b.Min.X+x, sy)
				ci := img.COffset(b.Min.X+x, sy)
				d[3*x], d[3*x+1], d[3*x+2] = color.YCbCrToRGB(img.Y[yi], img.Cb[ci], img.Cr[ci])
			}
		}
		return dst, 3, nil
	default:
		dst := make([]byte, 3*width*height)
		for y := 0; y < height; y++ {
			sy := b.Min.Y + rows.SourceRow(y, height)
			d := dst[3*width*y:]
			for x := 0; x < width; x++ {
				r, g, bb, _ := img.At(b.Min.X+x, sy).RGBA()
				d[3*x], d[3*x+1], d[3*x+2] = uint8(r>>8), uint8(g>>8), uint8(bb>>8)
			}
		}
		return dst, 3, nil
	}
}
