package driver

// BackendKind tells which driver family serves an Identity. It can be
// useful to filter enumerated devices too.
type BackendKind string

const (
	// VendorDevice is a camera driven through the vendor SDK.
	VendorDevice BackendKind = "vendor"
	// GenericWebcam is a UVC/V4L2 webcam.
	GenericWebcam BackendKind = "webcam"
)

// ExposureMode selects automatic or manual exposure.
type ExposureMode int

const (
	ExposureAuto ExposureMode = iota
	ExposureManual
)

func (m ExposureMode) String() string {
	if m == ExposureManual {
		return "manual"
	}
	return "auto"
}
