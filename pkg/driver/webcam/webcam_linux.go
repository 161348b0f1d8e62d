package webcam

import (
	"errors"
	"math"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/blackjack/webcam"
	"github.com/livecam/camcore/pkg/driver"
	"github.com/livecam/camcore/pkg/driver/availability"
	"github.com/livecam/camcore/pkg/frame"
)

// V4L2 pixel formats, from linux/videodev2.h.
const (
	pixFmtYUYV  webcam.PixelFormat = 0x56595559 // 'YUYV'
	pixFmtMJPEG webcam.PixelFormat = 0x47504a4d // 'MJPG'
	pixFmtRGB24 webcam.PixelFormat = 0x33424752 // 'RGB3'
	pixFmtBGR24 webcam.PixelFormat = 0x33524742 // 'BGR3'
	pixFmtGREY  webcam.PixelFormat = 0x59455247 // 'GREY'
)

// V4L2 camera class controls.
const (
	ctrlExposureAuto     webcam.ControlID = 0x009a0901
	ctrlExposureAbsolute webcam.ControlID = 0x009a0902 // 100us units
	ctrlGain             webcam.ControlID = 0x00980913

	exposureManual           = 1
	exposureAperturePriority = 3
)

const bufferCount = 4

// Preferred first.
var formats = []struct {
	pf     webcam.PixelFormat
	format frame.Format
}{
	{pixFmtYUYV, frame.FormatYUYV},
	{pixFmtMJPEG, frame.FormatMJPEG},
	{pixFmtBGR24, frame.FormatBGR24},
	{pixFmtRGB24, frame.FormatRGB24},
	{pixFmtGREY, frame.FormatGREY},
}

// device is the part of *webcam.Webcam this driver uses.
type device interface {
	GetSupportedFormats() map[webcam.PixelFormat]string
	GetSupportedFrameSizes(webcam.PixelFormat) []webcam.FrameSize
	SetImageFormat(webcam.PixelFormat, uint32, uint32) (webcam.PixelFormat, uint32, uint32, error)
	SetBufferCount(uint32) error
	StartStreaming() error
	StopStreaming() error
	WaitForFrame(uint32) error
	ReadFrame() ([]byte, error)
	GetControls() map[webcam.ControlID]webcam.Control
	SetControl(webcam.ControlID, int32) error
	SetFramerate(float32) error
	Close() error
}

var _ device = &webcam.Webcam{}

type opener func(path string) (device, error)

func openWebcam(path string) (device, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

func newAdapter(id driver.Identity) (driver.Adapter, error) {
	return newCamera(id, openWebcam), nil
}

// Camera implementation using v4l2
// Reference: https://linuxtv.org/downloads/v4l-dvb-apis/uapi/v4l/videodev.html#videodev
type camera struct {
	id   driver.Identity
	open opener

	// mu guards the fields below against Close. ReadFrame and the setters
	// only take it for reading; V4L2 ioctls on one fd may run concurrently.
	mu       sync.RWMutex
	cam      device
	decoder  frame.Decoder
	width    int
	height   int
	controls map[webcam.ControlID]webcam.Control
	capab    driver.Capability
}

func newCamera(id driver.Identity, open opener) *camera {
	return &camera{id: id, open: open}
}

// classify maps a V4L2 syscall failure to a device error kind.
func classify(op string, err error) error {
	var k availability.Kind
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ENXIO):
		k = availability.KindNoDevice
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.EACCES), errors.Is(err, os.ErrPermission):
		k = availability.KindBusy
	case errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.EIO):
		k = availability.KindDisconnected
	case errors.Is(err, syscall.ENOMEM):
		k = availability.KindBufferAllocation
	case errors.Is(err, syscall.EINVAL), errors.Is(err, syscall.ERANGE):
		k = availability.KindParameterRejected
	default:
		k = availability.KindUnknown
	}
	return availability.Wrap(k, op, err)
}

func (c *camera) Open() (driver.Capability, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cam != nil {
		return driver.Capability{}, availability.Errorf(availability.KindBusy, "webcam: open", "%s is already open", c.id.Handle)
	}

	cam, err := c.open(c.id.Handle)
	if err != nil {
		return driver.Capability{}, classify("webcam: open", err)
	}

	capab, decoder, w, h, err := configure(cam)
	if err != nil {
		cam.Close()
		return driver.Capability{}, err
	}

	if err := cam.SetBufferCount(bufferCount); err != nil {
		logger.Debugf("%s: set buffer count: %v", c.id, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return driver.Capability{}, classify("webcam: start streaming", err)
	}

	controls := cam.GetControls()
	if ctrl, ok := controls[ctrlExposureAbsolute]; ok {
		capab.Exposure = driver.Range{Min: float64(ctrl.Min) * 100, Max: float64(ctrl.Max) * 100}
	}
	if ctrl, ok := controls[ctrlGain]; ok {
		capab.Gain = driver.Range{Min: float64(ctrl.Min), Max: float64(ctrl.Max)}
	}
	capab.SupportsFrameRateControl = true

	c.cam = cam
	c.decoder = decoder
	c.width, c.height = w, h
	c.controls = controls
	c.capab = capab
	return capab, nil
}

// configure picks the preferred supported format at its largest size.
func configure(cam device) (driver.Capability, frame.Decoder, int, int, error) {
	supported := cam.GetSupportedFormats()

	for _, f := range formats {
		if _, ok := supported[f.pf]; !ok {
			continue
		}

		var best webcam.FrameSize
		for _, size := range cam.GetSupportedFrameSizes(f.pf) {
			if size.MaxWidth*size.MaxHeight > best.MaxWidth*best.MaxHeight {
				best = size
			}
		}
		if best.MaxWidth == 0 || best.MaxHeight == 0 {
			continue
		}

		pf, w, h, err := cam.SetImageFormat(f.pf, best.MaxWidth, best.MaxHeight)
		if err != nil {
			return driver.Capability{}, nil, 0, 0, classify("webcam: set image format", err)
		}
		if pf != f.pf {
			logger.Warnf("requested format %s, device chose %#x", f.format, uint32(pf))
			continue
		}

		decoder, err := frame.NewDecoder(f.format, frame.TopDown)
		if err != nil {
			return driver.Capability{}, nil, 0, 0, err
		}
		capab := driver.Capability{
			Monochrome: f.format.Channels() == 1,
			MaxWidth:   int(w),
			MaxHeight:  int(h),
		}
		return capab, decoder, int(w), int(h), nil
	}
	return driver.Capability{}, nil, 0, 0, availability.Errorf(availability.KindNoDevice, "webcam: configure", "no supported pixel format")
}

func (c *camera) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cam == nil {
		return
	}
	// Note: StopStreaming frees the mmap buffers. Frames never reference
	// them, the decoder copies out first.
	if err := c.cam.StopStreaming(); err != nil {
		logger.Warnf("%s: stop streaming: %v", c.id, err)
	}
	if err := c.cam.Close(); err != nil {
		logger.Warnf("%s: close: %v", c.id, err)
	}
	c.cam = nil
	c.controls = nil
}

func waitSeconds(timeout time.Duration) uint32 {
	s := math.Ceil(timeout.Seconds())
	if s < 1 {
		return 1
	}
	return uint32(s)
}

func (c *camera) ReadFrame(timeout time.Duration) (frame.VideoFrame, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cam == nil {
		return frame.VideoFrame{}, availability.Errorf(availability.KindDisconnected, "webcam: read frame", "%s is closed", c.id.Handle)
	}

	err := c.cam.WaitForFrame(waitSeconds(timeout))
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return frame.VideoFrame{}, availability.Wrap(availability.KindTimeout, "webcam: wait for frame", err)
	default:
		return frame.VideoFrame{}, classify("webcam: wait for frame", err)
	}

	b, err := c.cam.ReadFrame()
	if err != nil {
		return frame.VideoFrame{}, classify("webcam: read frame", err)
	}
	if len(b) == 0 {
		return frame.VideoFrame{}, availability.Errorf(availability.KindInvalidFrame, "webcam: read frame", "empty frame")
	}

	// Decode copies out of the mmap buffer, which the driver reuses as
	// soon as the next frame is queued.
	return c.decoder.Decode(b, c.width, c.height, time.Now())
}

func (c *camera) setControl(op string, id webcam.ControlID, value int32) error {
	if _, ok := c.controls[id]; !ok {
		return availability.Errorf(availability.KindParameterRejected, op, "control %#x not supported by %s", uint32(id), c.id.Handle)
	}
	if err := c.cam.SetControl(id, value); err != nil {
		return classify(op, err)
	}
	return nil
}

func (c *camera) checkOpen(op string) error {
	if c.cam == nil {
		return availability.Errorf(availability.KindParameterRejected, op, "%s is closed", c.id.Handle)
	}
	return nil
}

func (c *camera) ApplyExposure(mode driver.ExposureMode, microseconds float64) error {
	const op = "webcam: apply exposure"

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkOpen(op); err != nil {
		return err
	}
	if mode == driver.ExposureAuto {
		return c.setControl(op, ctrlExposureAuto, exposureAperturePriority)
	}
	if !c.capab.Exposure.Contains(microseconds) {
		return availability.Errorf(availability.KindParameterRejected, op,
			"%.0fus outside [%.0f, %.0f]", microseconds, c.capab.Exposure.Min, c.capab.Exposure.Max)
	}
	if err := c.setControl(op, ctrlExposureAuto, exposureManual); err != nil {
		return err
	}
	return c.setControl(op, ctrlExposureAbsolute, int32(math.Round(microseconds/100)))
}

func (c *camera) SetAnalogGain(gain float64) error {
	const op = "webcam: set analog gain"

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkOpen(op); err != nil {
		return err
	}
	if !c.capab.Gain.Contains(gain) {
		return availability.Errorf(availability.KindParameterRejected, op, "%g outside [%g, %g]", gain, c.capab.Gain.Min, c.capab.Gain.Max)
	}
	return c.setControl(op, ctrlGain, int32(math.Round(gain)))
}

func (c *camera) SetROIPreset(preset int) error {
	return availability.Errorf(availability.KindParameterRejected, "webcam: set roi preset", "%s has no ROI presets", c.id.Handle)
}

func (c *camera) SetFrameRate(fps float64) error {
	const op = "webcam: set frame rate"

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkOpen(op); err != nil {
		return err
	}
	if fps <= 0 {
		return availability.Errorf(availability.KindParameterRejected, op, "%g fps", fps)
	}
	if err := c.cam.SetFramerate(float32(fps)); err != nil {
		return classify(op, err)
	}
	return nil
}
