package driver

import (
	"time"

	"github.com/livecam/camcore/pkg/frame"
)

// Identity references an enumerable capture device before it is opened.
// Handle is backend specific: a device index for the vendor SDK, a device
// path for webcams.
type Identity struct {
	Kind   BackendKind
	Handle string
	Label  string
}

// Key uniquely names the device across backends.
func (id Identity) Key() string {
	return string(id.Kind) + ":" + id.Handle
}

func (id Identity) String() string {
	if id.Label == "" {
		return id.Key()
	}
	return id.Label + " (" + id.Key() + ")"
}

// Range is a closed interval.
type Range struct {
	Min, Max float64
}

// Contains reports whether v lies within r. The zero Range contains
// nothing, which is how a source reports "not introspectable".
func (r Range) Contains(v float64) bool {
	if r.Min == 0 && r.Max == 0 {
		return false
	}
	return v >= r.Min && v <= r.Max
}

// Capability holds static device properties learned once after opening.
// Exposure is in microseconds.
type Capability struct {
	Monochrome               bool
	MaxWidth                 int
	MaxHeight                int
	Exposure                 Range
	Gain                     Range
	ROIPresets               int
	SupportsFrameRateControl bool
}

// Channels returns the channel count frames from this device carry.
func (c Capability) Channels() int {
	if c.Monochrome {
		return 1
	}
	return 3
}

type OpenCloser interface {
	// Open acquires the device and starts streaming. A partially completed
	// open releases everything it acquired before returning the error.
	Open() (Capability, error)
	// Close releases every resource. It is idempotent and never fails;
	// sub-step failures are logged.
	Close()
}

type FrameReader interface {
	// ReadFrame blocks up to timeout for the next frame and copies it out of
	// the driver buffer. A timeout is reported as an availability.KindTimeout
	// error, which callers treat as "try again".
	ReadFrame(timeout time.Duration) (frame.VideoFrame, error)
}

// ParameterSetter changes capture parameters on a streaming device. The
// drivers synchronize these calls internally, so they are safe to call
// while another goroutine is blocked in ReadFrame.
type ParameterSetter interface {
	ApplyExposure(mode ExposureMode, microseconds float64) error
	SetAnalogGain(gain float64) error
	SetROIPreset(preset int) error
	SetFrameRate(fps float64) error
}

// Adapter is what a backend implements for one device.
type Adapter interface {
	OpenCloser
	FrameReader
	ParameterSetter
}

// Source is a state-checked handle over one device.
type Source interface {
	Adapter
	Identity() Identity
	Status() State
}

// Backend enumerates devices of one kind and builds adapters for them.
type Backend interface {
	Kind() BackendKind
	Enumerate() ([]Identity, error)
	NewAdapter(id Identity) (Adapter, error)
}
