/*
Package webcam provides a generic webcam driver over V4L2.

# Device Label Generation Rules

On Linux, the device label will be in the format of:

	pci-0000:00:00.0-usb-0:0:0.0-video-index0;video0

If /dev/v4l/by-path/* is not available (for example in a docker container without
bindings in /dev/v4l/by-path/), it will be:

	video0;video0
*/
package webcam

import (
	"os"
	"path/filepath"

	"github.com/livecam/camcore/internal/logging"
	"github.com/livecam/camcore/pkg/driver"
)

// LabelSeparator is used to separate labels for a driver that
// is found from multiple locations on a host.
const LabelSeparator = ";"

var logger = logging.NewLogger("camcore/driver/webcam")

var defaultSearchPaths = []string{
	"/dev/v4l/by-path/*",
	"/dev/video*",
}

// Option configures a Backend.
type Option func(*Backend)

// WithSearchPaths replaces the glob patterns devices are discovered from.
// Earlier patterns win when two of them reach the same device node.
func WithSearchPaths(patterns ...string) Option {
	return func(b *Backend) {
		b.patterns = patterns
	}
}

// Backend discovers V4L2 capture devices.
type Backend struct {
	patterns []string
}

var _ driver.Backend = &Backend{}

// NewBackend creates a webcam backend.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{patterns: defaultSearchPaths}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Kind() driver.BackendKind {
	return driver.GenericWebcam
}

func (b *Backend) Enumerate() ([]driver.Identity, error) {
	discovered := make(map[string]struct{})
	ids := make([]driver.Identity, 0)
	for _, pattern := range b.patterns {
		ids = append(ids, discover(discovered, pattern)...)
	}
	return ids, nil
}

func (b *Backend) NewAdapter(id driver.Identity) (driver.Adapter, error) {
	return newAdapter(id)
}

// discover lists the device nodes matching pattern that are not yet in
// discovered. Symlinks are resolved so a by-path entry and the node it
// points at are the same device.
func discover(discovered map[string]struct{}, pattern string) []driver.Identity {
	devices, err := filepath.Glob(pattern)
	if err != nil {
		// Only possible error is ErrBadPattern
		logger.Warnf("bad search pattern %q: %v", pattern, err)
		return nil
	}

	var ids []driver.Identity
	for _, device := range devices {
		label := filepath.Base(device)
		reallink, err := filepath.EvalSymlinks(device)
		if err != nil {
			logger.Debugf("skipping %s: %v", device, err)
			continue
		}
		if fi, err := os.Stat(reallink); err != nil || fi.IsDir() {
			continue
		}

		if _, ok := discovered[reallink]; ok {
			continue
		}
		discovered[reallink] = struct{}{}

		ids = append(ids, driver.Identity{
			Kind:   driver.GenericWebcam,
			Handle: reallink,
			Label:  label + LabelSeparator + filepath.Base(reallink),
		})
	}
	return ids
}
