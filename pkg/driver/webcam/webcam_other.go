//go:build !linux

package webcam

import (
	"github.com/livecam/camcore/pkg/driver"
	"github.com/livecam/camcore/pkg/driver/availability"
)

func newAdapter(id driver.Identity) (driver.Adapter, error) {
	return nil, availability.Errorf(availability.KindNoDevice, "webcam: new adapter", "V4L2 is not available on this platform")
}
