// Package control applies user-facing capture settings to an open source
// while it streams.
package control

import (
	"errors"
	"math"
	"sync"

	"github.com/livecam/camcore/internal/logging"
	"github.com/livecam/camcore/pkg/driver"
	"github.com/livecam/camcore/pkg/driver/availability"
)

var logger = logging.NewLogger("camcore/control")

// Exposure limits accepted from users, in milliseconds.
const (
	MinExposureMS = 0.1
	MaxExposureMS = 100
)

// Settings are capture parameters in user units. Nil fields are left as
// they are.
type Settings struct {
	AutoExposure bool
	// ExposureTimeMS applies when AutoExposure is false.
	ExposureTimeMS *float64
	AnalogGain     *float64
	ROIPreset      *int
	FrameRate      *float64
}

// MillisecondsToMicroseconds converts an exposure to the drivers' unit,
// rounded to a whole microsecond.
func MillisecondsToMicroseconds(ms float64) float64 {
	return math.Round(ms * 1000)
}

// Controller applies Settings and remembers what was accepted. Apply never
// touches the capture loop; the drivers synchronize their setters with a
// blocked read.
type Controller struct {
	mu      sync.Mutex
	current Settings
}

// New returns a controller with nothing applied yet.
func New() *Controller {
	return &Controller{}
}

// Current returns the settings the device accepted so far.
func (c *Controller) Current() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Apply sends s to src. Each rejected parameter is logged and leaves its
// previous value in effect; the rejections are returned joined. None of
// them affects the stream.
func (c *Controller) Apply(src driver.ParameterSetter, capability driver.Capability, s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	reject := func(err error) {
		logger.Warnf("setting rejected: %v", err)
		errs = append(errs, err)
	}

	switch {
	case s.AutoExposure:
		if err := src.ApplyExposure(driver.ExposureAuto, 0); err != nil {
			reject(err)
		} else {
			c.current.AutoExposure = true
		}
	case s.ExposureTimeMS == nil:
	case *s.ExposureTimeMS < MinExposureMS || *s.ExposureTimeMS > MaxExposureMS:
		reject(availability.Errorf(availability.KindParameterRejected, "control: exposure",
			"%gms outside [%g, %g]", *s.ExposureTimeMS, float64(MinExposureMS), float64(MaxExposureMS)))
	default:
		ms := *s.ExposureTimeMS
		us := MillisecondsToMicroseconds(ms)
		if err := src.ApplyExposure(driver.ExposureManual, us); err != nil {
			reject(err)
		} else {
			c.current.AutoExposure = false
			c.current.ExposureTimeMS = &ms
			logger.Debugf("exposure %gms (%.0fus)", ms, us)
		}
	}

	if s.AnalogGain != nil {
		if err := src.SetAnalogGain(*s.AnalogGain); err != nil {
			reject(err)
		} else {
			v := *s.AnalogGain
			c.current.AnalogGain = &v
		}
	}

	if s.ROIPreset != nil {
		if err := src.SetROIPreset(*s.ROIPreset); err != nil {
			reject(err)
		} else {
			v := *s.ROIPreset
			c.current.ROIPreset = &v
		}
	}

	if s.FrameRate != nil {
		if !capability.SupportsFrameRateControl {
			reject(availability.Errorf(availability.KindParameterRejected, "control: frame rate", "device has no frame rate control"))
		} else if err := src.SetFrameRate(*s.FrameRate); err != nil {
			reject(err)
		} else {
			v := *s.FrameRate
			c.current.FrameRate = &v
		}
	}

	return errors.Join(errs...)
}
