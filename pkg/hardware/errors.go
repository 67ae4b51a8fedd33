// pkg/hardware/errors.go
package hardware

import "fmt"

// ErrorKind names the backend family a SpecificError came from
type ErrorKind string

const (
	KindBluetooth      ErrorKind = "btle"
	KindSerial         ErrorKind = "serial"
	KindUSBDongle      ErrorKind = "usb-dongle"
	KindWebsocket      ErrorKind = "websocket"
	KindLovenseConnect ErrorKind = "lovense-connect"
)

// SpecificError collapses every driver-level failure of one backend family
// into a single tagged kind with a human readable message.
type SpecificError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *SpecificError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// NewSpecificError maps err into kind. A nil err yields nil.
func NewSpecificError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &SpecificError{Kind: kind, Message: err.Error()}
}

// SpecificErrorf builds a SpecificError from a format string
func SpecificErrorf(kind ErrorKind, format string, args ...interface{}) error {
	return &SpecificError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
