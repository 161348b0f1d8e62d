package vendortest

import (
	"math/rand"

	"github.com/livecam/camcore/pkg/driver/vendor"
)

// SMPTE-like bars, as B, G, R.
var bars = [][3]byte{
	{180, 180, 180},
	{16, 180, 180},
	{180, 180, 16},
	{16, 180, 16},
	{180, 16, 180},
	{16, 16, 180},
	{180, 16, 16},
}

// paint draws color bars over the top three quarters, then a gray
// gradation and a noise strip. Bars scroll with seq so consecutive frames
// differ.
func paint(out []byte, head vendor.FrameHead, seq uint64, random *rand.Rand) {
	w, h := head.Width, head.Height
	ch := 3
	if head.MediaType == vendor.MediaTypeMono8 {
		ch = 1
	}
	stride := w * ch
	hColorBarEnd := h * 3 / 4
	wGradationEnd := w * 5 / 7
	if wGradationEnd == 0 {
		wGradationEnd = 1
	}
	shift := int(seq % uint64(w))

	for y := 0; y < hColorBarEnd; y++ {
		row := out[y*stride : (y+1)*stride]
		for x := 0; x < w; x++ {
			c := bars[((x+shift)%w)*len(bars)/w]
			if ch == 1 {
				row[x] = byte((int(c[0]) + int(c[1]) + int(c[2])) / 3)
				continue
			}
			copy(row[x*3:x*3+3], c[:])
		}
	}
	for y := hColorBarEnd; y < h; y++ {
		row := out[y*stride : (y+1)*stride]
		for x := 0; x < w; x++ {
			v := byte(x * 255 / wGradationEnd)
			if x >= wGradationEnd {
				// Noise
				v = byte(random.Int31n(2) * 255)
			}
			for i := 0; i < ch; i++ {
				row[x*ch+i] = v
			}
		}
	}
}
