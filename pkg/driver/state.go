package driver

import (
	"github.com/livecam/camcore/pkg/driver/availability"
)

// State represents a source's state
type State string

const (
	// StateClosed means that the source has not been opened, or has been
	// closed. In this state, all information related to the hardware is
	// unknown and nothing is allocated.
	StateClosed State = "closed"
	// StateOpened means that the device is initialized, its frame buffer is
	// allocated and it is streaming. Frames may be read.
	StateOpened State = "opened"
)

// Update updates current state, s, to next. If f fails to execute,
// s will stay unchanged. Otherwise, s will be updated to next
func (s *State) Update(next State, f func() error) error {
	type checkFunc func() error
	m := map[State]checkFunc{
		StateOpened: s.toOpened,
		StateClosed: s.toClosed,
	}

	err := m[next]()
	if err != nil {
		return err
	}

	err = f()
	if err == nil {
		*s = next
	}
	return err
}

func (s *State) toOpened() error {
	if *s != StateClosed {
		return availability.Errorf(availability.KindBusy, "driver: open", "source is already opened")
	}
	return nil
}

func (s *State) toClosed() error {
	return nil
}
