// Package vendortest provides a simulated vendor SDK for testing.
package vendortest

import (
	"math/rand"
	"sync"
	"time"
	"unsafe"

	"github.com/livecam/camcore/pkg/driver/availability"
	"github.com/livecam/camcore/pkg/driver/vendor"
)

// Step names accepted by FailAt.
const (
	StepEnumerate     = "EnumerateDevices"
	StepInit          = "Init"
	StepCapability    = "GetCapability"
	StepIspOutFormat  = "SetIspOutFormat"
	StepTriggerMode   = "SetTriggerMode"
	StepAlignMalloc   = "AlignMalloc"
	StepPlay          = "Play"
	StepImageProcess  = "ImageProcess"
	StepAeState       = "SetAeState"
	StepExposureTime  = "SetExposureTime"
	StepAnalogGain    = "SetAnalogGain"
	StepResolution    = "SetImageResolution"
	StepFrameRate     = "SetFrameRate"
	StepUnInit        = "UnInit"
	StepPause         = "Pause"
	StepAlignFree     = "AlignFree"
	StepReleaseBuffer = "ReleaseImageBuffer"
)

// Device is a simulated camera.
type Device struct {
	Info       vendor.DeviceInfo
	Capability vendor.SDKCapability
}

// ColorDevice returns a 1280x1024 color camera.
func ColorDevice(name string) Device {
	return Device{
		Info: vendor.DeviceInfo{FriendlyName: name, PortType: "USB3", Serial: name + "-0001"},
		Capability: vendor.SDKCapability{
			MaxWidth:         1280,
			MaxHeight:        1024,
			ExposureMinUS:    20,
			ExposureMaxUS:    1000000,
			AnalogGainMin:    1,
			AnalogGainMax:    16,
			ResolutionPreset: 3,
			FrameRateControl: true,
		},
	}
}

// MonoDevice returns a 640x480 monochrome camera without frame rate control.
func MonoDevice(name string) Device {
	return Device{
		Info: vendor.DeviceInfo{FriendlyName: name, PortType: "GigE", Serial: name + "-0002"},
		Capability: vendor.SDKCapability{
			MonoSensor:       true,
			MaxWidth:         640,
			MaxHeight:        480,
			ExposureMinUS:    50,
			ExposureMaxUS:    500000,
			AnalogGainMin:    1,
			AnalogGainMax:    8,
			ResolutionPreset: 1,
		},
	}
}

// Calls records what the driver was asked to do.
type Calls struct {
	Order         []string
	Init          int
	UnInit        int
	AlignMalloc   int
	AlignFree     int
	Play          int
	Pause         int
	Grabs         int
	Releases      int
	AeAuto        []bool
	Exposures     []float64
	Gains         []float64
	Resolutions   []int
	FrameRates    []float64
	AllocatedSize int
}

type handle struct {
	dev     Device
	playing bool
	pending vendor.RawBuffer
	seq     uint64
}

// SDK is an in-memory vendor.SDK. Frames are a color bar test pattern with
// a noise strip, in the format the ISP was configured for.
type SDK struct {
	mu        sync.Mutex
	devices   []Device
	unplugged bool
	failures  map[string]availability.Status
	grabs     []availability.Status
	interval  time.Duration
	handles   map[vendor.Handle]*handle
	inUse     map[string]vendor.Handle
	next      vendor.Handle
	nextRaw   vendor.RawBuffer
	calls     Calls
	random    *rand.Rand
}

var _ vendor.SDK = &SDK{}

// New creates an SDK that enumerates devs.
func New(devs ...Device) *SDK {
	return &SDK{
		devices:  devs,
		failures: make(map[string]availability.Status),
		handles:  make(map[vendor.Handle]*handle),
		inUse:    make(map[string]vendor.Handle),
		next:     1,
		random:   rand.New(rand.NewSource(0)),
	}
}

// FailAt makes every later call of step return st.
func (s *SDK) FailAt(step string, st availability.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[step] = st
}

// Heal clears every failure set with FailAt.
func (s *SDK) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]availability.Status)
}

// QueueGrabs scripts the statuses of the next GetImageBuffer calls.
// StatusSuccess delivers a frame; StatusTimeout waits out the timeout first.
func (s *SDK) QueueGrabs(st ...availability.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grabs = append(s.grabs, st...)
}

// SetFrameInterval paces successful grabs.
func (s *SDK) SetFrameInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// Unplug makes the devices disappear. Open handles report a lost device.
func (s *SDK) Unplug() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unplugged = true
}

// Replug brings the devices back.
func (s *SDK) Replug() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unplugged = false
}

// Calls returns a snapshot of the recorded calls.
func (s *SDK) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.calls
	c.Order = append([]string(nil), s.calls.Order...)
	c.AeAuto = append([]bool(nil), s.calls.AeAuto...)
	c.Exposures = append([]float64(nil), s.calls.Exposures...)
	c.Gains = append([]float64(nil), s.calls.Gains...)
	c.Resolutions = append([]int(nil), s.calls.Resolutions...)
	c.FrameRates = append([]float64(nil), s.calls.FrameRates...)
	return c
}

// Open reports how many handles are initialized and not yet released.
func (s *SDK) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// call records step and returns its injected failure, if any. s.mu must be
// held.
func (s *SDK) call(step string) availability.Status {
	s.calls.Order = append(s.calls.Order, step)
	if st, ok := s.failures[step]; ok {
		return st
	}
	return availability.StatusSuccess
}

func (s *SDK) lookup(h vendor.Handle) (*handle, availability.Status) {
	hd, ok := s.handles[h]
	if !ok {
		return nil, availability.StatusDeviceIsClosed
	}
	return hd, availability.StatusSuccess
}

func (s *SDK) EnumerateDevices() ([]vendor.DeviceInfo, availability.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepEnumerate); st != availability.StatusSuccess {
		return nil, st
	}
	if s.unplugged {
		return nil, availability.StatusSuccess
	}
	infos := make([]vendor.DeviceInfo, 0, len(s.devices))
	for _, d := range s.devices {
		infos = append(infos, d.Info)
	}
	return infos, availability.StatusSuccess
}

func (s *SDK) Init(info vendor.DeviceInfo) (vendor.Handle, availability.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepInit); st != availability.StatusSuccess {
		return 0, st
	}
	if s.unplugged {
		return 0, availability.StatusNoDeviceFound
	}
	if _, ok := s.inUse[info.Serial]; ok {
		return 0, availability.StatusDeviceIsOpened
	}
	for _, d := range s.devices {
		if d.Info == info {
			h := s.next
			s.next++
			s.handles[h] = &handle{dev: d}
			s.inUse[info.Serial] = h
			s.calls.Init++
			return h, availability.StatusSuccess
		}
	}
	return 0, availability.StatusNoDeviceFound
}

func (s *SDK) UnInit(h vendor.Handle) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.UnInit++
	hd, st := s.lookup(h)
	if st != availability.StatusSuccess {
		return st
	}
	delete(s.handles, h)
	delete(s.inUse, hd.dev.Info.Serial)
	return s.call(StepUnInit)
}

func (s *SDK) GetCapability(h vendor.Handle) (vendor.SDKCapability, availability.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepCapability); st != availability.StatusSuccess {
		return vendor.SDKCapability{}, st
	}
	hd, st := s.lookup(h)
	if st != availability.StatusSuccess {
		return vendor.SDKCapability{}, st
	}
	return hd.dev.Capability, availability.StatusSuccess
}

func (s *SDK) SetIspOutFormat(h vendor.Handle, t vendor.MediaType) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepIspOutFormat); st != availability.StatusSuccess {
		return st
	}
	hd, st := s.lookup(h)
	if st != availability.StatusSuccess {
		return st
	}
	if hd.dev.Capability.MonoSensor != (t == vendor.MediaTypeMono8) {
		return availability.StatusNotSupported
	}
	return availability.StatusSuccess
}

func (s *SDK) SetTriggerMode(h vendor.Handle, m vendor.TriggerMode) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepTriggerMode); st != availability.StatusSuccess {
		return st
	}
	_, st := s.lookup(h)
	return st
}

func (s *SDK) AlignMalloc(size, align int) ([]byte, availability.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepAlignMalloc); st != availability.StatusSuccess {
		return nil, st
	}
	s.calls.AlignMalloc++
	s.calls.AllocatedSize = size

	raw := make([]byte, size+align)
	off := 0
	if r := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(align)); r != 0 {
		off = align - r
	}
	return raw[off : off+size : off+size], availability.StatusSuccess
}

func (s *SDK) AlignFree(buf []byte) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.AlignFree++
	return s.call(StepAlignFree)
}

func (s *SDK) Play(h vendor.Handle) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepPlay); st != availability.StatusSuccess {
		return st
	}
	hd, st := s.lookup(h)
	if st != availability.StatusSuccess {
		return st
	}
	hd.playing = true
	s.calls.Play++
	return availability.StatusSuccess
}

func (s *SDK) Pause(h vendor.Handle) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.Pause++
	hd, st := s.lookup(h)
	if st != availability.StatusSuccess {
		return st
	}
	hd.playing = false
	return s.call(StepPause)
}

func (s *SDK) GetImageBuffer(h vendor.Handle, timeout time.Duration) (vendor.RawBuffer, vendor.FrameHead, availability.Status) {
	s.mu.Lock()
	s.calls.Grabs++
	st := availability.StatusSuccess
	if len(s.grabs) > 0 {
		st, s.grabs = s.grabs[0], s.grabs[1:]
	}
	if s.unplugged {
		st = availability.StatusDeviceLost
	}
	interval := s.interval
	hd, lst := s.lookup(h)
	if lst != availability.StatusSuccess {
		s.mu.Unlock()
		return 0, vendor.FrameHead{}, lst
	}
	if !hd.playing {
		st = availability.StatusNotInitialized
	}
	s.mu.Unlock()

	switch st {
	case availability.StatusSuccess:
		time.Sleep(interval)
	case availability.StatusTimeout:
		time.Sleep(timeout)
		return 0, vendor.FrameHead{}, st
	default:
		return 0, vendor.FrameHead{}, st
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if hd.pending != 0 {
		// The previous buffer was never released.
		return 0, vendor.FrameHead{}, availability.StatusGrabFailed
	}
	s.nextRaw++
	hd.pending = s.nextRaw
	hd.seq++

	c := hd.dev.Capability
	head := vendor.FrameHead{
		Width:     c.MaxWidth,
		Height:    c.MaxHeight,
		MediaType: vendor.MediaTypeBGR8,
		Bytes:     c.MaxWidth * c.MaxHeight * 3,
		Timestamp: time.Now(),
	}
	if c.MonoSensor {
		head.MediaType = vendor.MediaTypeMono8
		head.Bytes = c.MaxWidth * c.MaxHeight
	}
	return hd.pending, head, availability.StatusSuccess
}

func (s *SDK) ImageProcess(h vendor.Handle, raw vendor.RawBuffer, out []byte, head vendor.FrameHead) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepImageProcess); st != availability.StatusSuccess {
		return st
	}
	hd, st := s.lookup(h)
	if st != availability.StatusSuccess {
		return st
	}
	if raw == 0 || raw != hd.pending {
		return availability.StatusParameterInvalid
	}
	if len(out) < head.Bytes {
		return availability.StatusNoMemory
	}
	paint(out[:head.Bytes], head, hd.seq, s.random)
	return availability.StatusSuccess
}

func (s *SDK) ReleaseImageBuffer(h vendor.Handle, raw vendor.RawBuffer) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.Releases++
	hd, st := s.lookup(h)
	if st != availability.StatusSuccess {
		return st
	}
	if raw != hd.pending {
		return availability.StatusParameterInvalid
	}
	hd.pending = 0
	return s.call(StepReleaseBuffer)
}

func (s *SDK) SetAeState(h vendor.Handle, auto bool) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepAeState); st != availability.StatusSuccess {
		return st
	}
	if _, st := s.lookup(h); st != availability.StatusSuccess {
		return st
	}
	s.calls.AeAuto = append(s.calls.AeAuto, auto)
	return availability.StatusSuccess
}

func (s *SDK) SetExposureTime(h vendor.Handle, microseconds float64) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepExposureTime); st != availability.StatusSuccess {
		return st
	}
	hd, st := s.lookup(h)
	if st != availability.StatusSuccess {
		return st
	}
	c := hd.dev.Capability
	if microseconds < c.ExposureMinUS || microseconds > c.ExposureMaxUS {
		return availability.StatusParameterOutRange
	}
	s.calls.Exposures = append(s.calls.Exposures, microseconds)
	return availability.StatusSuccess
}

func (s *SDK) GetExposureTime(h vendor.Handle) (float64, availability.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, st := s.lookup(h); st != availability.StatusSuccess {
		return 0, st
	}
	if n := len(s.calls.Exposures); n > 0 {
		return s.calls.Exposures[n-1], availability.StatusSuccess
	}
	return 0, availability.StatusSuccess
}

func (s *SDK) SetAnalogGain(h vendor.Handle, gain float64) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepAnalogGain); st != availability.StatusSuccess {
		return st
	}
	if _, st := s.lookup(h); st != availability.StatusSuccess {
		return st
	}
	s.calls.Gains = append(s.calls.Gains, gain)
	return availability.StatusSuccess
}

func (s *SDK) SetImageResolution(h vendor.Handle, preset int) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepResolution); st != availability.StatusSuccess {
		return st
	}
	if _, st := s.lookup(h); st != availability.StatusSuccess {
		return st
	}
	s.calls.Resolutions = append(s.calls.Resolutions, preset)
	return availability.StatusSuccess
}

func (s *SDK) SetFrameRate(h vendor.Handle, fps float64) availability.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.call(StepFrameRate); st != availability.StatusSuccess {
		return st
	}
	hd, st := s.lookup(h)
	if st != availability.StatusSuccess {
		return st
	}
	if !hd.dev.Capability.FrameRateControl {
		return availability.StatusNotSupported
	}
	s.calls.FrameRates = append(s.calls.FrameRates, fps)
	return availability.StatusSuccess
}
