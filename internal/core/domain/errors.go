package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrMeetingEnded         = errors.New("meeting has ended")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrDeviceNotFound       = errors.New("capture device not found")
	ErrDeviceBusy           = errors.New("capture device busy")
	ErrNegotiationFailed    = errors.New("negotiation failed")
	ErrConnectivityFailed   = errors.New("connectivity failed")
	ErrTransportUnavailable = errors.New("signaling transport unavailable")

	ErrInvalidSignal = errors.New("invalid signal")
	ErrInvalidInput  = errors.New("invalid input")
)

// OpError annotates a failure with the operation that produced it.
type OpError struct {
	Op  string
	Err error
}

func NewOpError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Guidance returns the message shown to a user after a failed capture request.
func Guidance(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Please allow camera and microphone access to join the meeting."
	case errors.Is(err, ErrDeviceNotFound):
		return "No camera or microphone found. Please check your devices."
	case errors.Is(err, ErrDeviceBusy):
		return "Your camera or microphone is in use by another application. Close it and try again."
	default:
		return "Error accessing media devices. Please check your permissions."
	}
}

// IsCaptureError reports whether err belongs to the capture taxonomy.
func IsCaptureError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrDeviceBusy)
}
