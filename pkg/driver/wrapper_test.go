package driver

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/livecam/camcore/pkg/driver/availability"
	"github.com/livecam/camcore/pkg/frame"
)

var (
	openErr = fmt.Errorf("failed to initialize")
)

type adapterMock struct {
	opens  int
	closes int
	reads  int
}

func (a *adapterMock) Open() (Capability, error) {
	a.opens++
	return Capability{MaxWidth: 4, MaxHeight: 2}, nil
}
func (a *adapterMock) Close() { a.closes++ }
func (a *adapterMock) ReadFrame(time.Duration) (frame.VideoFrame, error) {
	a.reads++
	return frame.New(make([]byte, 4*2*3), 4, 2, 3, time.Now())
}
func (a *adapterMock) ApplyExposure(ExposureMode, float64) error { return nil }
func (a *adapterMock) SetAnalogGain(float64) error               { return nil }
func (a *adapterMock) SetROIPreset(int) error                    { return nil }
func (a *adapterMock) SetFrameRate(float64) error                { return nil }

type adapterBrokenMock struct{ adapterMock }

func (a *adapterBrokenMock) Open() (Capability, error) {
	a.opens++
	return Capability{}, openErr
}

func TestWrapperState(t *testing.T) {
	var a adapterMock
	s := wrapAdapter(Identity{Kind: VendorDevice, Handle: "0"}, &a)

	if s.Status() != StateClosed {
		t.Errorf("expected %v, but got %v", StateClosed, s.Status())
	}

	_, err := s.ReadFrame(time.Millisecond)
	if !errors.Is(err, availability.ErrDisconnected) {
		t.Errorf("expected reading a closed source to fail, got %v", err)
	}
	if a.reads != 0 {
		t.Errorf("adapter must not be read while closed")
	}
	if err := s.ApplyExposure(ExposureManual, 1000); !errors.Is(err, availability.ErrParameterRejected) {
		t.Errorf("expected parameter rejection on a closed source, got %v", err)
	}

	c, err := s.Open()
	if err != nil {
		t.Errorf("expected to successfully open, but got %v", err)
	}
	if c.MaxWidth != 4 {
		t.Errorf("expected capability to be passed through, got %+v", c)
	}

	_, err = s.Open()
	if !errors.Is(err, availability.ErrBusy) {
		t.Errorf("expected second open to report busy, got %v", err)
	}
	if a.opens != 1 {
		t.Errorf("expected 1 adapter open, got %d", a.opens)
	}

	if _, err := s.ReadFrame(time.Millisecond); err != nil {
		t.Errorf("expected to read a frame, got %v", err)
	}

	s.Close()
	s.Close()
	if a.closes != 1 {
		t.Errorf("expected close to be idempotent, adapter closed %d times", a.closes)
	}
	if s.Status() != StateClosed {
		t.Errorf("expected %v, but got %v", StateClosed, s.Status())
	}

	if _, err := s.Open(); err != nil {
		t.Errorf("expected reopen after close to succeed, got %v", err)
	}
}

func TestWrapperWithBrokenOpen(t *testing.T) {
	var a adapterBrokenMock
	s := wrapAdapter(Identity{Kind: VendorDevice, Handle: "0"}, &a)

	_, err := s.Open()
	if err != openErr {
		t.Errorf("expected to get %v, but got %v", openErr, err)
	}
	if s.Status() != StateClosed {
		t.Errorf("expected the status to be %v, but got %v", StateClosed, s.Status())
	}

	s.Close()
	if a.closes != 0 {
		t.Errorf("a failed open must not be closed again")
	}
}
