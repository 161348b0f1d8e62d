// Package session arbitrates which caller owns the camera. At most one
// session is active at a time; its owner streams from the device until it
// ends the session, goes idle past the liveness timeout or the device fails.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/livecam/camcore/internal/logging"
	"github.com/livecam/camcore/pkg/capture"
	"github.com/livecam/camcore/pkg/driver"
	"github.com/livecam/camcore/pkg/driver/availability"
)

var logger = logging.NewLogger("camcore/session")

// ErrEmptyToken is returned when starting with an empty token.
var ErrEmptyToken = errors.New("session: empty token")

// Token identifies the caller that owns a session.
type Token string

// NewToken returns a random token for a new caller.
func NewToken() Token {
	return Token(uuid.NewString())
}

// Handle describes the active session.
type Handle struct {
	Token     Token
	StartedAt time.Time
	// OwnsCamera is false while the device is still being opened.
	OwnsCamera bool
}

// Devices is where the registry finds and opens cameras. *driver.Manager
// implements it.
type Devices interface {
	Enumerate(filters ...driver.FilterFn) []driver.Identity
	Open(id driver.Identity) (driver.Source, driver.Capability, error)
}

// Session is an active session. Its fields are fixed once Start returns.
type Session struct {
	handle     Handle
	identity   driver.Identity
	capability driver.Capability
	source     driver.Source
	stream     *capture.Stream

	ready     chan struct{}
	err       error
	ending    bool // guarded by Registry.mu
	closed    chan struct{}
	closeOnce sync.Once
	lastSeen  atomic.Int64
}

func (s *Session) Token() Token                  { return s.handle.Token }
func (s *Session) StartedAt() time.Time          { return s.handle.StartedAt }
func (s *Session) Identity() driver.Identity     { return s.identity }
func (s *Session) Capability() driver.Capability { return s.capability }
func (s *Session) Stream() *capture.Stream       { return s.stream }

// Source is the open device, for parameter changes. Frames must only be
// read through Stream.
func (s *Session) Source() driver.Source { return s.source }

func (s *Session) touch(t time.Time) {
	s.lastSeen.Store(t.UnixNano())
}

func (s *Session) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

type options struct {
	liveness  time.Duration
	preferred string
	capture   []capture.Option
}

// Option configures a Registry.
type Option func(*options)

// WithLivenessTimeout makes Run end sessions that have not been touched for
// d. Zero disables reaping.
func WithLivenessTimeout(d time.Duration) Option {
	return func(o *options) {
		o.liveness = d
	}
}

// WithPreferredLabel makes Start pick the first device whose label contains
// label, instead of the first device.
func WithPreferredLabel(label string) Option {
	return func(o *options) {
		o.preferred = label
	}
}

// WithCaptureOptions configures the stream of every session.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(o *options) {
		o.capture = append(o.capture, opts...)
	}
}

// Registry holds the single session slot. One mutex guards the slot and is
// never held across device I/O; a second open of the same device is
// rejected by the source itself.
type Registry struct {
	devices Devices
	opts    options

	mu     sync.Mutex
	active *Session
}

// NewRegistry creates a registry over devices.
func NewRegistry(devices Devices, opts ...Option) *Registry {
	r := &Registry{devices: devices}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return r
}

// TryStart makes token the active session. It returns true if the session
// is running, including when token already held it, and false otherwise.
// Refusals are logged with their user message.
func (r *Registry) TryStart(token Token) bool {
	if _, err := r.Start(token); err != nil {
		logger.Infof("session %s not started: %s (%v)", token, availability.Message(err), err)
		return false
	}
	return true
}

// Start opens the default device for token and starts streaming. If token
// already holds the active session, that session is returned and nothing is
// opened again. A session of token's that is being ended, or whose stream
// has finished, is not returned: Start waits for it to close and opens a
// new one.
func (r *Registry) Start(token Token) (*Session, error) {
	return r.start(token, nil)
}

// StartWith is Start on a given device.
func (r *Registry) StartWith(token Token, id driver.Identity) (*Session, error) {
	return r.start(token, &id)
}

func (r *Registry) start(token Token, id *driver.Identity) (*Session, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	now := time.Now()

	for {
		s, err := r.current(token)
		if err != nil {
			return nil, err
		}
		if s == nil {
			break
		}
		if r.live(s) {
			s.touch(now)
			return s, nil
		}
		// Ending or failed: wait for the slot to be freed, then take it.
		<-s.closed
	}

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return r.start(token, id)
	}
	s := &Session{
		handle: Handle{Token: token, StartedAt: now},
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	s.touch(now)
	r.active = s
	r.mu.Unlock()

	if err := r.open(s, id); err != nil {
		s.err = err
		r.mu.Lock()
		if r.active == s {
			r.active = nil
		}
		r.mu.Unlock()
		close(s.ready)
		s.markClosed()
		return nil, err
	}
	close(s.ready)

	go r.watch(s)
	return s, nil
}

// current returns the session token holds, waiting for it to finish
// opening, or nil if the slot is free.
func (r *Registry) current(token Token) (*Session, error) {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s == nil {
		return nil, nil
	}
	if s.handle.Token != token {
		return nil, availability.Errorf(availability.KindBusy, "session: start", "held by another session")
	}
	<-s.ready
	if s.err != nil {
		return nil, s.err
	}
	return s, nil
}

// live reports whether s still holds the slot and is neither being ended
// nor finished streaming.
func (r *Registry) live(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active == s && !s.ending && !s.stream.State().Terminal()
}

func (r *Registry) selectIdentity() (driver.Identity, error) {
	if r.opts.preferred != "" {
		if ids := r.devices.Enumerate(driver.FilterLabel(r.opts.preferred)); len(ids) > 0 {
			return ids[0], nil
		}
		logger.Warnf("no device labelled %q, using the first one", r.opts.preferred)
	}
	ids := r.devices.Enumerate()
	if len(ids) == 0 {
		return driver.Identity{}, availability.Errorf(availability.KindNoDevice, "session: start", "no device attached")
	}
	return ids[0], nil
}

func (r *Registry) open(s *Session, id *driver.Identity) error {
	var ident driver.Identity
	if id != nil {
		ident = *id
	} else {
		var err error
		if ident, err = r.selectIdentity(); err != nil {
			return err
		}
	}

	src, capab, err := r.devices.Open(ident)
	if err != nil {
		return err
	}
	stream := capture.New(src, r.opts.capture...)
	if err := stream.Start(); err != nil {
		src.Close()
		return err
	}

	r.mu.Lock()
	s.identity = ident
	s.capability = capab
	s.source = src
	s.stream = stream
	s.handle.OwnsCamera = true
	r.mu.Unlock()

	logger.Infof("session %s started on %s", s.handle.Token, ident)
	return nil
}

// watch frees the slot when the stream ends on its own.
func (r *Registry) watch(s *Session) {
	<-s.stream.Done()

	r.mu.Lock()
	freed := r.active == s && !s.ending
	if freed {
		r.active = nil
	}
	r.mu.Unlock()

	if freed {
		s.markClosed()
		logger.Warnf("session %s ended by the device: %v", s.handle.Token, s.stream.Err())
	}
}

// End stops token's session, waits for the device to close and frees the
// slot. It is a no-op when token does not hold the active session.
func (r *Registry) End(token Token) {
	r.mu.Lock()
	s := r.active
	if s == nil || s.handle.Token != token {
		r.mu.Unlock()
		logger.Debugf("end by %s ignored: not the active session", token)
		return
	}
	if s.ending {
		r.mu.Unlock()
		<-s.closed
		return
	}
	s.ending = true
	r.mu.Unlock()

	<-s.ready
	if s.stream != nil {
		s.stream.Stop()
		<-s.stream.Done()
	}

	r.mu.Lock()
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()
	s.markClosed()
	logger.Infof("session %s ended", token)
}

// Active returns the active session, if any.
func (r *Registry) Active() (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return Handle{}, false
	}
	return r.active.handle, true
}

// Touch records activity from token. It reports whether token holds the
// active session.
func (r *Registry) Touch(token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.handle.Token != token {
		return false
	}
	r.active.touch(time.Now())
	return true
}

// Run reaps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	if r.opts.liveness <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.opts.liveness / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reap()
		}
	}
}

func (r *Registry) reap() {
	r.mu.Lock()
	s := r.active
	if s == nil || s.ending || !s.handle.OwnsCamera {
		r.mu.Unlock()
		return
	}
	idle := s.idle(time.Now())
	r.mu.Unlock()

	if idle > r.opts.liveness {
		logger.Infof("session %s idle for %s, ending it", s.handle.Token, idle.Round(time.Millisecond))
		r.End(s.handle.Token)
	}
}
