package frame

import (
	"image"

	"golang.org/x/image/draw"
)

// Thumbnail scales f down to at most maxWidth pixels wide, keeping the
// aspect ratio. Frames already narrow enough are converted without scaling.
// The result is a new image; f is left untouched.
func (f VideoFrame) Thumbnail(maxWidth int) *image.RGBA {
	w, h := f.width, f.height
	if maxWidth > 0 && w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
		if h == 0 {
			h = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	src := f.Image()
	if w == f.width && h == f.height {
		draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
