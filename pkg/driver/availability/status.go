package availability

// Status is a raw status code returned by the vendor camera driver. Zero is
// success and failures are negative.
type Status int32

// Driver status codes.
const (
	StatusSuccess           Status = 0
	StatusFailed            Status = -1
	StatusInternalError     Status = -2
	StatusNotSupported      Status = -4
	StatusNotInitialized    Status = -5
	StatusParameterInvalid  Status = -6
	StatusParameterOutRange Status = -7
	StatusTimeout           Status = -12
	StatusIOError           Status = -13
	StatusCommError         Status = -14
	StatusBusError          Status = -15
	StatusNoDeviceFound     Status = -16
	StatusDeviceIsOpened    Status = -18
	StatusDeviceIsClosed    Status = -19
	StatusNoMemory          Status = -21
	StatusGrabFailed        Status = -27
	StatusLostData          Status = -28
	StatusDeviceLost        Status = -38
	StatusAccessDenied      Status = -45
)

var statusKinds = map[Status]Kind{
	StatusNotSupported:      KindParameterRejected,
	StatusParameterInvalid:  KindParameterRejected,
	StatusParameterOutRange: KindParameterRejected,
	StatusTimeout:           KindTimeout,
	StatusIOError:           KindUnknown,
	StatusCommError:         KindUnknown,
	StatusBusError:          KindUnknown,
	StatusGrabFailed:        KindUnknown,
	StatusLostData:          KindUnknown,
	StatusNoDeviceFound:     KindNoDevice,
	StatusDeviceIsOpened:    KindBusy,
	StatusAccessDenied:      KindBusy,
	StatusDeviceIsClosed:    KindDisconnected,
	StatusDeviceLost:        KindDisconnected,
	StatusNoMemory:          KindBufferAllocation,
}

// Kind returns the classification of s. Unlisted failure codes are
// KindUnknown, which the capture loop treats as recoverable.
func (s Status) Kind() Kind {
	if k, ok := statusKinds[s]; ok {
		return k
	}
	return KindUnknown
}

// FromStatus converts a driver status into a classified error for op, or nil
// on success.
func FromStatus(op string, s Status) error {
	if s == StatusSuccess {
		return nil
	}
	return &Error{Kind: s.Kind(), Op: op, Code: s}
}
