package webcam

import (
	"syscall"
	"testing"
	"time"

	"github.com/blackjack/webcam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecam/camcore/pkg/driver"
	"github.com/livecam/camcore/pkg/driver/availability"
)

type fakeDevice struct {
	formats  map[webcam.PixelFormat]string
	sizes    map[webcam.PixelFormat][]webcam.FrameSize
	controls map[webcam.ControlID]webcam.Control
	set      map[webcam.ControlID][]int32
	frames   [][]byte
	waitErr  error
	fps      float32
	closed   int
	stopped  int
	streamed bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		formats: map[webcam.PixelFormat]string{
			pixFmtYUYV:  "YUYV 4:2:2",
			pixFmtMJPEG: "Motion-JPEG",
		},
		sizes: map[webcam.PixelFormat][]webcam.FrameSize{
			pixFmtYUYV: {
				{MaxWidth: 320, MaxHeight: 240},
				{MaxWidth: 640, MaxHeight: 480},
			},
		},
		controls: map[webcam.ControlID]webcam.Control{
			ctrlExposureAuto:     {Name: "Auto Exposure", Min: 0, Max: 3},
			ctrlExposureAbsolute: {Name: "Exposure Time, Absolute", Min: 1, Max: 5000},
			ctrlGain:             {Name: "Gain", Min: 0, Max: 100},
		},
		set: make(map[webcam.ControlID][]int32),
	}
}

func (d *fakeDevice) GetSupportedFormats() map[webcam.PixelFormat]string { return d.formats }
func (d *fakeDevice) GetSupportedFrameSizes(pf webcam.PixelFormat) []webcam.FrameSize {
	return d.sizes[pf]
}
func (d *fakeDevice) SetImageFormat(pf webcam.PixelFormat, w, h uint32) (webcam.PixelFormat, uint32, uint32, error) {
	return pf, w, h, nil
}
func (d *fakeDevice) SetBufferCount(uint32) error { return nil }
func (d *fakeDevice) StartStreaming() error {
	d.streamed = true
	return nil
}
func (d *fakeDevice) StopStreaming() error {
	d.stopped++
	return nil
}
func (d *fakeDevice) WaitForFrame(uint32) error { return d.waitErr }
func (d *fakeDevice) ReadFrame() ([]byte, error) {
	if len(d.frames) == 0 {
		return nil, syscall.ENODEV
	}
	b := d.frames[0]
	d.frames = d.frames[1:]
	return b, nil
}
func (d *fakeDevice) GetControls() map[webcam.ControlID]webcam.Control { return d.controls }
func (d *fakeDevice) SetControl(id webcam.ControlID, v int32) error {
	d.set[id] = append(d.set[id], v)
	return nil
}
func (d *fakeDevice) SetFramerate(fps float32) error {
	d.fps = fps
	return nil
}
func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

func openFake(t *testing.T, d *fakeDevice) *camera {
	t.Helper()
	c := newCamera(driver.Identity{Kind: driver.GenericWebcam, Handle: "/dev/video0"}, func(string) (device, error) {
		return d, nil
	})
	_, err := c.Open()
	require.NoError(t, err)
	return c
}

func TestOpenPicksLargestPreferredFormat(t *testing.T) {
	d := newFakeDevice()
	c := newCamera(driver.Identity{Kind: driver.GenericWebcam, Handle: "/dev/video0"}, func(string) (device, error) {
		return d, nil
	})
	capab, err := c.Open()
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, d.streamed)
	assert.False(t, capab.Monochrome)
	assert.Equal(t, 640, capab.MaxWidth)
	assert.Equal(t, 480, capab.MaxHeight)
	assert.Equal(t, driver.Range{Min: 100, Max: 500000}, capab.Exposure)
	assert.Equal(t, driver.Range{Min: 0, Max: 100}, capab.Gain)
}

func TestOpenErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		kind availability.Kind
	}{
		"Missing": {syscall.ENOENT, availability.KindNoDevice},
		"Busy":    {syscall.EBUSY, availability.KindBusy},
		"Other":   {syscall.EFAULT, availability.KindUnknown},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			c := newCamera(driver.Identity{Kind: driver.GenericWebcam, Handle: "/dev/video9"}, func(string) (device, error) {
				return nil, tc.err
			})
			_, err := c.Open()
			assert.Equal(t, tc.kind, availability.KindOf(err))
		})
	}

	d := newFakeDevice()
	d.formats = map[webcam.PixelFormat]string{0x3231564e: "NV12"}
	c := newCamera(driver.Identity{Kind: driver.GenericWebcam, Handle: "/dev/video0"}, func(string) (device, error) {
		return d, nil
	})
	_, err := c.Open()
	assert.Error(t, err)
	assert.Equal(t, 1, d.closed, "device must be closed after a failed open")
}

func TestReadFrame(t *testing.T) {
	d := newFakeDevice()
	c := openFake(t, d)
	defer c.Close()

	src := make([]byte, 640*480*2)
	for i := range src {
		src[i] = 128
	}
	d.frames = [][]byte{{}, src}

	_, err := c.ReadFrame(200 * time.Millisecond)
	assert.ErrorIs(t, err, availability.ErrInvalidFrame)

	f, err := c.ReadFrame(200 * time.Millisecond)
	require.NoError(t, err)
	h, w, ch := f.Shape()
	assert.Equal(t, []int{480, 640, 3}, []int{h, w, ch})

	// Decoding copied the frame out of the driver buffer.
	src[0] = 0
	assert.NotEqual(t, byte(0), f.Pix()[0])

	d.waitErr = &webcam.Timeout{}
	_, err = c.ReadFrame(200 * time.Millisecond)
	assert.True(t, availability.IsTimeout(err))

	d.waitErr = syscall.ENODEV
	_, err = c.ReadFrame(200 * time.Millisecond)
	assert.True(t, availability.IsFatal(err))
}

func TestParameters(t *testing.T) {
	d := newFakeDevice()
	c := openFake(t, d)

	require.NoError(t, c.ApplyExposure(driver.ExposureManual, 50000))
	assert.Equal(t, []int32{exposureManual}, d.set[ctrlExposureAuto])
	assert.Equal(t, []int32{500}, d.set[ctrlExposureAbsolute])

	require.NoError(t, c.ApplyExposure(driver.ExposureAuto, 0))
	assert.Equal(t, []int32{exposureManual, exposureAperturePriority}, d.set[ctrlExposureAuto])

	assert.ErrorIs(t, c.ApplyExposure(driver.ExposureManual, 1e9), availability.ErrParameterRejected)
	require.NoError(t, c.SetAnalogGain(10))
	assert.ErrorIs(t, c.SetROIPreset(0), availability.ErrParameterRejected)
	require.NoError(t, c.SetFrameRate(15))
	assert.Equal(t, float32(15), d.fps)

	c.Close()
	c.Close()
	assert.Equal(t, 1, d.stopped)
	assert.Equal(t, 1, d.closed)
	assert.ErrorIs(t, c.SetAnalogGain(10), availability.ErrParameterRejected)
}

func TestWaitSeconds(t *testing.T) {
	assert.Equal(t, uint32(1), waitSeconds(200*time.Millisecond))
	assert.Equal(t, uint32(1), waitSeconds(time.Second))
	assert.Equal(t, uint32(2), waitSeconds(1500*time.Millisecond))
}
