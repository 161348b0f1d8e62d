package frame

import (
	"github.com/livecam/camcore/pkg/driver/availability"
)

func checkLength(src []byte, size int) error {
	if size > len(src) {
		return availability.Errorf(availability.KindInvalidFrame, "frame: decode", "frame length (%d) less than expected (%d)", len(src), size)
	}
	return nil
}

func decodeBGR24(src []byte, width, height int, rows RowOrder) ([]byte, int, error) {
	stride := 3 * width
	if err := checkLength(src, stride*height); err != nil {
		return nil, 0, err
	}

	dst := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		s := src[rows.SourceRow(y, height)*stride:][:stride:stride]
		d := dst[y*stride:][:stride:stride]
		for i := 0; i < stride; i += 3 {
			d[i], d[i+1], d[i+2] = s[i+2], s[i+1], s[i]
		}
	}
	return dst, 3, nil
}

func decodeRGB24(src []byte, width, height int, rows RowOrder) ([]byte, int, error) {
	return copyRows(src, 3*width, height, rows, 3)
}

func decodeGREY(src []byte, width, height int, rows RowOrder) ([]byte, int, error) {
	return copyRows(src, width, height, rows, 1)
}

func copyRows(src []byte, stride, height int, rows RowOrder, channels int) ([]byte, int, error) {
	if err := checkLength(src, stride*height); err != nil {
		return nil, 0, err
	}

	dst := make([]byte, stride*height)
	if rows == TopDown {
		copy(dst, src[:stride*height])
		return dst, channels, nil
	}
	for y := 0; y < height; y++ {
		sy := rows.SourceRow(y, height)
		copy(dst[y*stride:(y+1)*stride], src[sy*stride:(sy+1)*stride])
	}
	return dst, channels, nil
}
