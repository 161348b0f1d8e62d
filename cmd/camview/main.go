// Command camview serves a live camera preview over a websocket. It holds
// the camera for one viewer at a time; other viewers are told it is busy.
//
// The device is the first one enumerated, or the first whose label contains
// CAMERA_LABEL (CAMERA_IP is accepted for network cameras). With -simulate
// a simulated vendor camera is served instead of real hardware.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/livecam/camcore/internal/logging"
	"github.com/livecam/camcore/pkg/capture"
	"github.com/livecam/camcore/pkg/driver"
	"github.com/livecam/camcore/pkg/driver/vendor"
	"github.com/livecam/camcore/pkg/driver/vendortest"
	"github.com/livecam/camcore/pkg/driver/webcam"
	"github.com/livecam/camcore/pkg/session"
)

var logger = logging.NewLogger("camcore/camview")

func preferredLabel() string {
	if v := os.Getenv("CAMERA_LABEL"); v != "" {
		return v
	}
	return os.Getenv("CAMERA_IP")
}

// backends lists vendor cameras ahead of generic webcams, so the default
// device is a vendor one whenever any is attached.
func backends(simulate bool) []driver.Backend {
	var bs []driver.Backend
	if simulate {
		sdk := vendortest.New(vendortest.ColorDevice("Simulated Camera"))
		sdk.SetFrameInterval(33 * time.Millisecond)
		bs = append(bs, vendor.NewBackend(sdk))
	}
	return append(bs, webcam.NewBackend())
}

func main() {
	var (
		addr           = flag.String("addr", ":8080", "listen address")
		simulate       = flag.Bool("simulate", false, "serve a simulated camera")
		previewWidth   = flag.Int("preview-width", 640, "maximum preview width in pixels")
		liveness       = flag.Duration("liveness", 30*time.Second, "end sessions idle for this long, 0 to disable")
		readTimeout    = flag.Duration("read-timeout", capture.DefaultReadTimeout, "per-frame read timeout")
		errorThreshold = flag.Int("error-threshold", capture.DefaultErrorThreshold, "consecutive read errors before giving up on the device")
		stallReads     = flag.Int("stall-reads", 10, "consecutive read timeouts before reopening the device, 0 to disable")
		stallBackoff   = flag.Duration("stall-backoff", capture.DefaultStallBackoff, "pause before reopening a stalled device")
	)
	flag.Parse()

	manager := driver.NewManager(backends(*simulate)...)

	for _, id := range manager.Enumerate() {
		logger.Infof("found %s", id)
	}

	registry := session.NewRegistry(manager,
		session.WithLivenessTimeout(*liveness),
		session.WithPreferredLabel(preferredLabel()),
		session.WithCaptureOptions(
			capture.WithReadTimeout(*readTimeout),
			capture.WithErrorThreshold(*errorThreshold),
			capture.WithStallRecovery(*stallReads, *stallBackoff),
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go registry.Run(ctx)

	srv := &http.Server{
		Addr:    *addr,
		Handler: newServer(manager, registry, *previewWidth).routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}()

	logger.Infof("listening on %s", *addr)
	err := srv.ListenAndServe()

	// Websocket connections are hijacked and outlive Shutdown; release the
	// camera before exiting.
	if h, ok := registry.Active(); ok {
		registry.End(h.Token)
	}
	if err != nil && err != http.ErrServerClosed {
		logger.Errorf("serve: %v", err)
		os.Exit(1)
	}
}
