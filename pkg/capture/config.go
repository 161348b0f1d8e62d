package capture

import "time"

const (
	// DefaultReadTimeout bounds each blocking read, and with it how long a
	// stop request can take to be honored.
	DefaultReadTimeout = 200 * time.Millisecond
	// DefaultErrorThreshold is the number of consecutive recoverable read
	// errors after which a stream gives up on the device.
	DefaultErrorThreshold = 10
	// DefaultTimeoutLogInterval rate-limits the "no frame yet" log line.
	DefaultTimeoutLogInterval = 5 * time.Second
	// DefaultStallBackoff is the pause between closing a stalled source and
	// opening it again.
	DefaultStallBackoff = time.Second
)

// Config tunes a Stream. Neither the timeout nor the threshold has a
// derivation beyond having worked on the cameras they were observed on.
type Config struct {
	ReadTimeout        time.Duration
	ErrorThreshold     int
	TimeoutLogInterval time.Duration
	// StallThreshold is the number of consecutive read timeouts after which
	// the source is closed and opened again. Zero disables it.
	StallThreshold int
	StallBackoff   time.Duration
}

// Option changes a Config.
type Option func(*Config)

// WithReadTimeout sets the per-read timeout. Non-positive values are ignored.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ReadTimeout = d
		}
	}
}

// WithErrorThreshold sets the consecutive error threshold. Values below 1
// are ignored.
func WithErrorThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ErrorThreshold = n
		}
	}
}

// WithTimeoutLogInterval sets how often read timeouts are logged.
func WithTimeoutLogInterval(d time.Duration) Option {
	return func(c *Config) {
		c.TimeoutLogInterval = d
	}
}

// WithStallRecovery reopens the source after n consecutive read timeouts,
// waiting backoff in between. n below 1 disables recovery.
func WithStallRecovery(n int, backoff time.Duration) Option {
	return func(c *Config) {
		if n < 1 {
			c.StallThreshold = 0
			return
		}
		c.StallThreshold = n
		if backoff >= 0 {
			c.StallBackoff = backoff
		}
	}
}

// NewConfig returns the defaults with opts applied.
func NewConfig(opts ...Option) Config {
	c := Config{
		ReadTimeout:        DefaultReadTimeout,
		ErrorThreshold:     DefaultErrorThreshold,
		TimeoutLogInterval: DefaultTimeoutLogInterval,
		StallBackoff:       DefaultStallBackoff,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
