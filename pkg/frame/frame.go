// Package frame defines VideoFrame, the display-ready unit handed out by a
// capture session, and the decoders that build it from native driver
// buffers.
package frame

import (
	"image"
	"time"

	"github.com/livecam/camcore/pkg/driver/availability"
)

// VideoFrame is an immutable frame of 8-bit unsigned samples in row-major,
// RGB-ordered (or single channel) layout. Once returned by a source, the
// pixel buffer belongs to the receiver; the producer never touches it again.
type VideoFrame struct {
	pix       []byte
	width     int
	height    int
	channels  int
	timestamp time.Time
	sequence  uint64
}

// New validates the frame invariants and wraps pix without copying it.
func New(pix []byte, width, height, channels int, timestamp time.Time) (VideoFrame, error) {
	if channels != 1 && channels != 3 {
		return VideoFrame{}, availability.Errorf(availability.KindInvalidFrame, "frame: new", "invalid channel count: %d", channels)
	}
	if width <= 0 || height <= 0 {
		return VideoFrame{}, availability.Errorf(availability.KindInvalidFrame, "frame: new", "invalid dimensions: %dx%d", width, height)
	}
	if expected := width * height * channels; len(pix) != expected {
		return VideoFrame{}, availability.Errorf(availability.KindInvalidFrame, "frame: new", "frame length (%d) not expected size (%d)", len(pix), expected)
	}
	if timestamp.IsZero() {
		return VideoFrame{}, availability.Errorf(availability.KindInvalidFrame, "frame: new", "missing capture timestamp")
	}
	return VideoFrame{
		pix:       pix,
		width:     width,
		height:    height,
		channels:  channels,
		timestamp: timestamp,
	}, nil
}

// WithSequence returns a copy of f carrying seq. The pixel buffer is shared,
// which is safe because neither value is ever written to.
func (f VideoFrame) WithSequence(seq uint64) VideoFrame {
	f.sequence = seq
	return f
}

// Pix returns the pixel buffer. Callers must treat it as read-only.
func (f VideoFrame) Pix() []byte { return f.pix }

func (f VideoFrame) Width() int           { return f.width }
func (f VideoFrame) Height() int          { return f.height }
func (f VideoFrame) Channels() int        { return f.channels }
func (f VideoFrame) Timestamp() time.Time { return f.timestamp }

// Sequence is the per-session frame number, starting at 1. Zero means the
// frame has not been emitted by a capture loop yet.
func (f VideoFrame) Sequence() uint64 { return f.sequence }

// Shape returns the frame dimensions in (rows, columns, channels) order.
func (f VideoFrame) Shape() (height, width, channels int) {
	return f.height, f.width, f.channels
}

func (f VideoFrame) IsColor() bool { return f.channels == 3 }

func (f VideoFrame) SizeBytes() int { return len(f.pix) }

// IsZero reports whether f is the zero value.
func (f VideoFrame) IsZero() bool { return f.pix == nil }

// Image returns a view of the frame as an image.Image without copying the
// pixel buffer.
func (f VideoFrame) Image() image.Image {
	r := image.Rect(0, 0, f.width, f.height)
	if f.channels == 1 {
		return &image.Gray{Pix: f.pix, Stride: f.width, Rect: r}
	}
	return &RGB24Img{Pix: f.pix, Stride: 3 * f.width, Rect: r}
}
