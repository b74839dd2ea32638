package device

import (
	"errors"
	"fmt"
)

// Validation errors for inbound switch payloads.
//
// Each rejection returned by Validate wraps exactly one of these, so callers
// can classify it with errors.Is():
//
//	if errors.Is(err, device.ErrBadFormat) {
//	    // name does not follow the L<line>R<room>_B1 pattern
//	}
var (
	// ErrDecode is returned when the payload is not a JSON object.
	ErrDecode = errors.New("device: payload is not a JSON object")

	// ErrMissingField is returned when device_name is absent or not a string.
	ErrMissingField = errors.New("device: missing device_name")

	// ErrBadFormat is returned when device_name does not match the naming pattern.
	ErrBadFormat = errors.New("device: device_name has bad format")

	// ErrBadStatus is returned when the status field is absent or not on/off.
	ErrBadStatus = errors.New("device: status must be on or off")
)

// ValidationError describes why a payload was rejected.
type ValidationError struct {
	// Reason is one of the sentinel errors above.
	Reason error

	// DeviceName is the offending name, when one was present.
	DeviceName string

	// Detail carries the underlying decode error or offending value.
	Detail string
}

func (e *ValidationError) Error() string {
	msg := e.Reason.Error()
	if e.DeviceName != "" {
		msg = fmt.Sprintf("%s (device_name=%q)", msg, e.DeviceName)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

func reject(reason error, name, detail string) *ValidationError {
	return &ValidationError{Reason: reason, DeviceName: name, Detail: detail}
}
