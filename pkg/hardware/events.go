// pkg/hardware/events.go
package hardware

// Event is a discovery notification sent by a communication manager
type Event interface {
	isEvent()
}

// DeviceFound only means a device has been seen. Connecting to it is
// still up to whoever receives the event.
type DeviceFound struct {
	Name      string
	Address   string
	Connector Connector
}

// ScanningFinished marks the end of a manager's scan
type ScanningFinished struct{}

func (DeviceFound) isEvent()      {}
func (ScanningFinished) isEvent() {}
