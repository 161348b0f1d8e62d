package frame

// Format is the native pixel layout a driver delivers.
type Format string

const (
	// FormatBGR24 is packed 8-bit B, G, R. Vendor ISP output for color sensors.
	FormatBGR24 Format = "BGR24"
	// FormatRGB24 is packed 8-bit R, G, B.
	FormatRGB24 Format = "RGB24"
	// FormatGREY is 8-bit luminance. Vendor ISP output for mono sensors and
	// V4L2 GREY.
	FormatGREY Format = "GREY"

	// YUV Formats

	// FormatYUY2 https://www.fourcc.org/pixel-format/yuv-yuy2/
	FormatYUY2 Format = "YUY2"

	// Compressed Formats

	// FormatMJPEG https://www.fourcc.org/mjpg/
	FormatMJPEG Format = "MJPEG"
)

// YUV aliases

// FormatYUYV is an alias of FormatYUY2
const FormatYUYV = FormatYUY2

// Channels returns the channel count a frame decoded from f will have.
// MJPEG reports 3 even though a grayscale JPEG decodes to one channel.
func (f Format) Channels() int {
	if f == FormatGREY {
		return 1
	}
	return 3
}
