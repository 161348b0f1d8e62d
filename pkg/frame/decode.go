package frame

import (
	"fmt"
	"time"
)

// Decoder copies a native driver buffer into a new VideoFrame. The decoder
// never retains src, so the driver may overwrite it as soon as Decode
// returns.
type Decoder interface {
	Decode(src []byte, width, height int, timestamp time.Time) (VideoFrame, error)
}

type decoderFunc func(src []byte, width, height int, rows RowOrder) ([]byte, int, error)

type decoder struct {
	decode decoderFunc
	rows   RowOrder
}

func (d decoder) Decode(src []byte, width, height int, timestamp time.Time) (VideoFrame, error) {
	pix, channels, err := d.decode(src, width, height, d.rows)
	if err != nil {
		return VideoFrame{}, err
	}
	return New(pix, width, height, channels, timestamp)
}

// NewDecoder returns a decoder for f that writes rows in the given order.
func NewDecoder(f Format, rows RowOrder) (Decoder, error) {
	var decode decoderFunc

	switch f {
	case FormatBGR24:
		decode = decodeBGR24
	case FormatRGB24:
		decode = decodeRGB24
	case FormatGREY:
		decode = decodeGREY
	case FormatYUY2:
		decode = decodeYUY2
	case FormatMJPEG:
		decode = decodeMJPEG
	default:
		return nil, fmt.Errorf("%s is not supported", f)
	}

	if rows == nil {
		rows = TopDown
	}
	return decoder{decode: decode, rows: rows}, nil
}
