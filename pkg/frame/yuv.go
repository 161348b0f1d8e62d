package frame

import (
	"image/color"

	"github.com/livecam/camcore/pkg/driver/availability"
)

// decodeYUY2 converts packed 4:2:2 (Y0 Cb Y1 Cr) to RGB24 in one pass.
func decodeYUY2(src []byte, width, height int, rows RowOrder) ([]byte, int, error) {
	if width%2 != 0 {
		return nil, 0, availability.Errorf(availability.KindInvalidFrame, "frame: decode", "YUY2 width must be even, got %d", width)
	}
	srcStride := 2 * width
	if err := checkLength(src, srcStride*height); err != nil {
		return nil, 0, err
	}

	dstStride := 3 * width
	dst := make([]byte, dstStride*height)
	for y := 0; y < height; y++ {
		s := src[rows.SourceRow(y, height)*srcStride:][:srcStride:srcStride]
		d := dst[y*dstStride:][:dstStride:dstStride]
		j := 0
		for i := 0; i < srcStride; i += 4 {
			cb, cr := s[i+1], s[i+3]
			d[j], d[j+1], d[j+2] = color.YCbCrToRGB(s[i], cb, cr)
			d[j+3], d[j+4], d[j+5] = color.YCbCrToRGB(s[i+2], cb, cr)
			j += 6
		}
	}
	return dst, 3, nil
}
