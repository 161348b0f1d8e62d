// Package capture pulls frames from an open source on a dedicated goroutine
// and hands the latest one to a consumer.
package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livecam/camcore/internal/logging"
	"github.com/livecam/camcore/pkg/driver"
	"github.com/livecam/camcore/pkg/driver/availability"
	"github.com/livecam/camcore/pkg/frame"
)

var logger = logging.NewLogger("camcore/capture")

var (
	// ErrStopped is returned by Next once a stopped stream has no frame left.
	ErrStopped = errors.New("capture: stream stopped")
	// ErrStarted is returned when starting a stream twice.
	ErrStarted = errors.New("capture: stream already started")
)

// Source is what a Stream reads from. The stream owns the open source once
// it starts: it is the only caller of ReadFrame, Open and Close, and every
// source it has open when it ends is closed exactly once. Open is only
// called to recover a stalled source.
type Source interface {
	driver.OpenCloser
	driver.FrameReader
}

// Counters are per-stream statistics.
type Counters struct {
	FramesEmitted     uint64
	TransientMisses   uint64
	ConsecutiveErrors int
	Dropped           uint64
	Reopens           uint64
	LastFrameTime     time.Time
}

// Stream is one capture loop. Frames are delivered through a mailbox that
// holds only the latest frame: a slow consumer skips frames, visible as
// gaps in the sequence numbers and in Counters.Dropped.
type Stream struct {
	src Source
	cfg Config

	state     atomic.Int32
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
	mailbox   chan frame.VideoFrame

	frames     chan frame.VideoFrame
	framesOnce sync.Once

	mu       sync.Mutex
	counters Counters
	err      error
}

// New creates an unstarted stream over src.
func New(src Source, opts ...Option) *Stream {
	return &Stream{
		src:     src,
		cfg:     NewConfig(opts...),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		mailbox: make(chan frame.VideoFrame, 1),
	}
}

// Start launches the capture goroutine.
func (s *Stream) Start() error {
	if !s.state.CompareAndSwap(int32(StateUnstarted), int32(StateRunning)) {
		return ErrStarted
	}
	go s.run()
	return nil
}

// Stop asks the loop to stop. It returns immediately; Done is closed once
// the source has been closed.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.state.CompareAndSwap(int32(StateUnstarted), int32(StateStopped)) {
		s.closeSource()
		close(s.done)
		return
	}
	s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
}

// Done is closed when the stream reaches a terminal state.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Err returns the error that failed the stream, or nil.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Next returns the latest frame, waiting for one if none is pending. After
// the stream ends it returns Err, or ErrStopped for a requested stop.
func (s *Stream) Next(ctx context.Context) (frame.VideoFrame, error) {
	select {
	case f := <-s.mailbox:
		return f, nil
	default:
	}

	select {
	case f := <-s.mailbox:
		return f, nil
	case <-s.done:
		select {
		case f := <-s.mailbox:
			return f, nil
		default:
		}
		if err := s.Err(); err != nil {
			return frame.VideoFrame{}, err
		}
		return frame.VideoFrame{}, ErrStopped
	case <-ctx.Done():
		return frame.VideoFrame{}, ctx.Err()
	}
}

// Frames returns a channel of frames that is closed when the stream ends.
func (s *Stream) Frames() <-chan frame.VideoFrame {
	s.framesOnce.Do(func() {
		ch := make(chan frame.VideoFrame)
		s.frames = ch
		go func() {
			defer close(ch)
			for {
				f, err := s.Next(context.Background())
				if err != nil {
					return
				}
				select {
				case ch <- f:
				case <-s.done:
					return
				}
			}
		}()
	})
	return s.frames
}

func (s *Stream) closeSource() {
	s.closeOnce.Do(s.src.Close)
}

func (s *Stream) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Stream) run() {
	err := s.loop()

	s.closeSource()
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.state.Store(int32(StateFailed))
		logger.Errorf("stream failed: %v", err)
	} else {
		s.state.Store(int32(StateStopped))
		logger.Debugf("stream stopped after %d frames", s.Counters().FramesEmitted)
	}
	close(s.done)
}

func (s *Stream) loop() error {
	var (
		seq            uint64
		stalled        int
		lastTimeoutLog time.Time
	)

	for !s.stopping() {
		f, err := s.src.ReadFrame(s.cfg.ReadTimeout)
		if err == nil {
			seq++
			stalled = 0
			s.publish(f.WithSequence(seq))
			continue
		}
		if !availability.IsTimeout(err) {
			stalled = 0
		}

		switch {
		case availability.IsTimeout(err):
			s.mu.Lock()
			s.counters.TransientMisses++
			misses := s.counters.TransientMisses
			s.mu.Unlock()

			if now := time.Now(); now.Sub(lastTimeoutLog) >= s.cfg.TimeoutLogInterval {
				lastTimeoutLog = now
				logger.Debugf("no frame within %s (%d misses so far)", s.cfg.ReadTimeout, misses)
			}

			stalled++
			if s.cfg.StallThreshold > 0 && stalled >= s.cfg.StallThreshold {
				stalled = 0
				if err := s.reopen(); err != nil {
					return err
				}
			}

		case availability.IsFatal(err):
			if availability.KindOf(err) != availability.KindDisconnected {
				err = availability.Wrap(availability.KindDisconnected, "capture: read frame", err)
			}
			return err

		default:
			s.mu.Lock()
			s.counters.ConsecutiveErrors++
			n := s.counters.ConsecutiveErrors
			s.mu.Unlock()

			logger.Warnf("read frame failed (%d/%d): %v", n, s.cfg.ErrorThreshold, err)
			if n >= s.cfg.ErrorThreshold {
				return availability.Errorf(availability.KindDisconnected, "capture: read frame",
					"%d consecutive errors: %w", n, err)
			}
		}
	}
	return nil
}

// reopen closes the stalled source and opens it again after the backoff. A
// stop during the backoff leaves the source closed.
func (s *Stream) reopen() error {
	logger.Warnf("no frame for %d reads, reopening the source", s.cfg.StallThreshold)
	s.closeSource()

	select {
	case <-time.After(s.cfg.StallBackoff):
	case <-s.stop:
		return nil
	}

	if _, err := s.src.Open(); err != nil {
		if availability.KindOf(err) != availability.KindDisconnected {
			err = availability.Wrap(availability.KindDisconnected, "capture: reopen", err)
		}
		return err
	}
	// Only the loop goroutine closes a running stream's source.
	s.closeOnce = sync.Once{}

	s.mu.Lock()
	s.counters.Reopens++
	s.counters.ConsecutiveErrors = 0
	s.mu.Unlock()
	logger.Infof("source reopened")
	return nil
}

func (s *Stream) publish(f frame.VideoFrame) {
	var dropped bool
	select {
	case s.mailbox <- f:
	default:
		// Replace the unread frame. The loop is the only sender, so after
		// taking one out there is room, unless the consumer got there first.
		select {
		case <-s.mailbox:
			dropped = true
		default:
		}
		select {
		case s.mailbox <- f:
		default:
		}
	}

	s.mu.Lock()
	s.counters.FramesEmitted++
	s.counters.ConsecutiveErrors = 0
	s.counters.LastFrameTime = f.Timestamp()
	if dropped {
		s.counters.Dropped++
	}
	s.mu.Unlock()
}
