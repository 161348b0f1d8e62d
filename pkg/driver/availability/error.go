// Package availability classifies device and driver failures into a small
// set of kinds, each paired with a plain user-facing message.
package availability

import (
	"errors"
	"fmt"
)

// Kind is the domain classification of a device failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNoDevice means the identity no longer resolves to attached hardware.
	KindNoDevice
	// KindBusy means the device is held by another session or process.
	KindBusy
	// KindDisconnected means the device went away mid-stream.
	KindDisconnected
	// KindTimeout means no new frame arrived in time. It is a retry signal,
	// not a failure.
	KindTimeout
	// KindParameterRejected means the driver refused a parameter value.
	KindParameterRejected
	// KindBufferAllocation means the frame buffer could not be allocated.
	KindBufferAllocation
	// KindInvalidFrame means the driver delivered a frame that does not
	// satisfy the frame invariants.
	KindInvalidFrame
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindNoDevice:          "no such device",
	KindBusy:              "device or resource busy",
	KindDisconnected:      "device disconnected",
	KindTimeout:           "read timeout",
	KindParameterRejected: "parameter rejected",
	KindBufferAllocation:  "buffer allocation failed",
	KindInvalidFrame:      "invalid frame",
}

var kindMessages = map[Kind]string{
	KindUnknown:           "Camera error occurred.",
	KindNoDevice:          "No camera detected. Please connect a camera and try again.",
	KindBusy:              "Camera already in use. Only one viewer allowed.",
	KindDisconnected:      "Camera connection lost. Please check the cable and reconnect.",
	KindTimeout:           "Camera not responding yet. Waiting for the next frame.",
	KindParameterRejected: "The camera did not accept that setting.",
	KindBufferAllocation:  "Out of memory. Close other applications and try again.",
	KindInvalidFrame:      "Camera delivered an unreadable frame.",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Message returns the user-facing message for k. It never contains driver
// codes or other internal detail.
func (k Kind) Message() string {
	if s, ok := kindMessages[k]; ok {
		return s
	}
	return kindMessages[KindUnknown]
}

var (
	ErrNoDevice          = NewError(KindNoDevice)
	ErrBusy              = NewError(KindBusy)
	ErrDisconnected      = NewError(KindDisconnected)
	ErrTimeout           = NewError(KindTimeout)
	ErrParameterRejected = NewError(KindParameterRejected)
	ErrBufferAllocation  = NewError(KindBufferAllocation)
	ErrInvalidFrame      = NewError(KindInvalidFrame)
)

// Error is a classified device failure. Op names the operation that failed,
// Code is the raw driver status when one exists and Err is the underlying
// cause. All three are for logs only.
type Error struct {
	Kind Kind
	Op   string
	Code Status
	Err  error
}

// NewError returns a bare error of kind k.
func NewError(k Kind) error {
	return &Error{Kind: k}
}

// Wrap classifies err as kind k for operation op.
func Wrap(k Kind, op string, err error) error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Errorf classifies a formatted cause as kind k for operation op.
func Errorf(k Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Code != StatusSuccess {
		s = fmt.Sprintf("%s (status %d)", s, e.Code)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, ErrBusy) matches any busy failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsError reports whether err carries a classification.
func IsError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

// KindOf returns the kind of the first classified error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// IsTimeout reports whether err is a frame timeout retry signal.
func IsTimeout(err error) bool {
	return err != nil && KindOf(err) == KindTimeout
}

// IsFatal reports whether err ends a stream immediately.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindDisconnected, KindNoDevice:
		return true
	}
	return false
}

// Message returns the one-line user message for err, or "" for nil.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return KindOf(err).Message()
}
