package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"reflect"
	"testing"
	"time"

	"github.com/livecam/camcore/pkg/driver/availability"
)

func TestDecodeBGR24(t *testing.T) {
	const (
		width  = 2
		height = 2
	)
	input := []byte{
		// B    G     R
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
		0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c,
	}
	cases := map[RowOrder][]byte{
		TopDown: {
			0x03, 0x02, 0x01, 0x06, 0x05, 0x04,
			0x09, 0x08, 0x07, 0x0c, 0x0b, 0x0a,
		},
		BottomUp: {
			0x09, 0x08, 0x07, 0x0c, 0x0b, 0x0a,
			0x03, 0x02, 0x01, 0x06, 0x05, 0x04,
		},
	}
	for rows, expected := range cases {
		d, err := NewDecoder(FormatBGR24, rows)
		if err != nil {
			t.Fatal(err)
		}
		f, err := d.Decode(input, width, height, time.Now())
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(expected, f.Pix()) {
			t.Errorf("%s: wrong decode result,\nexpected:\n%v\ngot:\n%v", rows, expected, f.Pix())
		}
	}
}

func TestDecodeCopiesSource(t *testing.T) {
	input := []byte{1, 2, 3, 4}
	d, err := NewDecoder(FormatGREY, nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := d.Decode(input, 2, 2, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	// The driver overwrites its buffer on the next arrival.
	input[0] = 0xff
	if f.Pix()[0] != 1 {
		t.Errorf("decoded frame aliases the driver buffer")
	}
	if f.Channels() != 1 {
		t.Errorf("expected 1 channel, got %d", f.Channels())
	}
}

func TestDecodeGREYBottomUp(t *testing.T) {
	d, _ := NewDecoder(FormatGREY, BottomUp)
	f, err := d.Decode([]byte{1, 2, 3, 4, 5, 6}, 2, 3, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	expected := []byte{5, 6, 3, 4, 1, 2}
	if !reflect.DeepEqual(expected, f.Pix()) {
		t.Errorf("expected %v, got %v", expected, f.Pix())
	}
}

func TestDecodeYUY2(t *testing.T) {
	const (
		width  = 2
		height = 1
	)
	input := []byte{
		// Y    Cb     Y    Cr
		0x10, 0x80, 0xeb, 0x80,
	}
	d, _ := NewDecoder(FormatYUYV, TopDown)
	f, err := d.Decode(input, width, height, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	r0, g0, b0 := color.YCbCrToRGB(0x10, 0x80, 0x80)
	r1, g1, b1 := color.YCbCrToRGB(0xeb, 0x80, 0x80)
	expected := []byte{r0, g0, b0, r1, g1, b1}
	if !reflect.DeepEqual(expected, f.Pix()) {
		t.Errorf("Wrong decode result,\nexpected:\n%+v\ngot:\n%+v", expected, f.Pix())
	}
}

func TestDecodeShortFrame(t *testing.T) {
	for _, format := range []Format{FormatBGR24, FormatRGB24, FormatGREY, FormatYUY2} {
		d, err := NewDecoder(format, TopDown)
		if err != nil {
			t.Fatal(err)
		}
		_, err = d.Decode([]byte{0x00}, 2, 2, time.Now())
		if !errors.Is(err, availability.ErrInvalidFrame) {
			t.Errorf("%s: expected an invalid frame error, got %v", format, err)
		}
	}
}

func TestDecodeMJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for i := range src.Pix {
		src.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}

	d, _ := NewDecoder(FormatMJPEG, TopDown)
	f, err := d.Decode(buf.Bytes(), 16, 8, time.Now())
	if err != nil {
		t.Fatalf("Expected decode function to pass. Failed with %v\n", err)
	}
	if h, w, c := f.Shape(); h != 8 || w != 16 || c != 3 {
		t.Errorf("unexpected shape (%d,%d,%d)", h, w, c)
	}

	if _, err := d.Decode(buf.Bytes(), 32, 8, time.Now()); err == nil {
		t.Errorf("expected a dimension mismatch error")
	}
	if _, err := d.Decode([]byte{1, 2, 3, 4}, 16, 8, time.Now()); err == nil {
		t.Errorf("Expected decode function to fail with random bytes but passed.")
	}
}

func TestNewDecoderUnsupported(t *testing.T) {
	if _, err := NewDecoder(Format("Z16"), TopDown); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestNativeRowOrder(t *testing.T) {
	if NativeRowOrder("windows") != BottomUp {
		t.Error("windows must flip rows")
	}
	if NativeRowOrder("linux") != TopDown {
		t.Error("linux must keep rows")
	}
}

func BenchmarkDecodeBGR24(b *testing.B) {
	sizes := []struct {
		width, height int
	}{
		{640, 480},
		{1280, 1024},
	}
	for _, sz := range sizes {
		sz := sz
		b.Run(fmt.Sprintf("%dx%d", sz.width, sz.height), func(b *testing.B) {
			input := make([]byte, sz.width*sz.height*3)
			d, _ := NewDecoder(FormatBGR24, TopDown)
			ts := time.Now()
			for i := 0; i < b.N; i++ {
				_, err := d.Decode(input, sz.width, sz.height, ts)
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
