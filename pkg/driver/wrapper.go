package driver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/livecam/camcore/pkg/driver/availability"
	"github.com/livecam/camcore/pkg/frame"
)

func wrapAdapter(id Identity, a Adapter) Source {
	w := &adapterWrapper{
		Adapter: a,
		id:      id,
		state:   StateClosed,
	}
	w.status.Store(StateClosed)
	return w
}

// adapterWrapper validates state transitions around an Adapter. mu
// serializes Open and Close, which is the guard against a second open of
// the same device. Readers and parameter setters only look at status, so a
// blocked ReadFrame never holds up a parameter change.
type adapterWrapper struct {
	Adapter
	id     Identity
	mu     sync.Mutex
	state  State
	status atomic.Value // State
}

func (w *adapterWrapper) Identity() Identity {
	return w.id
}

func (w *adapterWrapper) Status() State {
	return w.status.Load().(State)
}

func (w *adapterWrapper) Open() (Capability, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var c Capability
	err := w.state.Update(StateOpened, func() error {
		var err error
		c, err = w.Adapter.Open()
		return err
	})
	if err != nil {
		return Capability{}, err
	}
	w.status.Store(w.state)
	logger.Infof("opened %s: %dx%d mono=%v", w.id, c.MaxWidth, c.MaxHeight, c.Monochrome)
	return c, nil
}

func (w *adapterWrapper) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateClosed {
		return
	}
	w.status.Store(StateClosed)
	_ = w.state.Update(StateClosed, func() error {
		w.Adapter.Close()
		return nil
	})
	logger.Infof("closed %s", w.id)
}

func (w *adapterWrapper) ReadFrame(timeout time.Duration) (frame.VideoFrame, error) {
	if w.Status() != StateOpened {
		return frame.VideoFrame{}, availability.Errorf(availability.KindDisconnected, "driver: read frame", "source %s is closed", w.id.Key())
	}
	return w.Adapter.ReadFrame(timeout)
}

func (w *adapterWrapper) rejectClosed(op string) error {
	if w.Status() != StateOpened {
		return availability.Errorf(availability.KindParameterRejected, op, "source %s is closed", w.id.Key())
	}
	return nil
}

func (w *adapterWrapper) ApplyExposure(mode ExposureMode, microseconds float64) error {
	if err := w.rejectClosed("driver: apply exposure"); err != nil {
		return err
	}
	return w.Adapter.ApplyExposure(mode, microseconds)
}

func (w *adapterWrapper) SetAnalogGain(gain float64) error {
	if err := w.rejectClosed("driver: set analog gain"); err != nil {
		return err
	}
	return w.Adapter.SetAnalogGain(gain)
}

func (w *adapterWrapper) SetROIPreset(preset int) error {
	if err := w.rejectClosed("driver: set roi preset"); err != nil {
		return err
	}
	return w.Adapter.SetROIPreset(preset)
}

func (w *adapterWrapper) SetFrameRate(fps float64) error {
	if err := w.rejectClosed("driver: set frame rate"); err != nil {
		return err
	}
	return w.Adapter.SetFrameRate(fps)
}
