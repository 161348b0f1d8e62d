package frame

// RowOrder maps destination rows to source rows. It is resolved once when a
// source is built and applied by the decoder during its single copy, so the
// capture loop never branches on platform.
type RowOrder interface {
	SourceRow(y, height int) int
	String() string
}

type topDown struct{}

func (topDown) SourceRow(y, _ int) int { return y }
func (topDown) String() string         { return "top-down" }

type bottomUp struct{}

func (bottomUp) SourceRow(y, height int) int { return height - 1 - y }
func (bottomUp) String() string              { return "bottom-up" }

var (
	// TopDown keeps the driver row order.
	TopDown RowOrder = topDown{}
	// BottomUp flips the frame vertically.
	BottomUp RowOrder = bottomUp{}
)

// NativeRowOrder returns the row order the vendor ISP produces on goos.
// The Windows build of the vendor driver fills its output buffer bottom-up.
func NativeRowOrder(goos string) RowOrder {
	if goos == "windows" {
		return BottomUp
	}
	return TopDown
}
