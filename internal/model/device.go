// internal/model/device.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceStatus represents the current status of a discovered device
type DeviceStatus string

const (
	DeviceStatusDiscovered   DeviceStatus = "DISCOVERED"
	DeviceStatusConnecting   DeviceStatus = "CONNECTING"
	DeviceStatusConnected    DeviceStatus = "CONNECTED"
	DeviceStatusDisconnected DeviceStatus = "DISCONNECTED"
	DeviceStatusError        DeviceStatus = "ERROR"
)

// Device is the in-memory record of one discovered device
type Device struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	Status       DeviceStatus `json:"status"`
	Connectable  bool         `json:"connectable"`
	DiscoveredAt time.Time    `json:"discovered_at"`
	LastSeen     time.Time    `json:"last_seen"`
	ConnectedAt  *time.Time   `json:"connected_at,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
}

// IsConnected reports whether a hardware session is open
func (d *Device) IsConnected() bool {
	return d.Status == DeviceStatusConnected
}

// MarkConnected records a successful connect
func (d *Device) MarkConnected() {
	now := time.Now()
	d.Status = DeviceStatusConnected
	d.ConnectedAt = &now
	d.Connectable = false
	d.LastError = ""
}

// MarkDisconnected records a closed session
func (d *Device) MarkDisconnected() {
	d.Status = DeviceStatusDisconnected
	d.ConnectedAt = nil
}

// MarkError records a failed operation
func (d *Device) MarkError(err error) {
	d.Status = DeviceStatusError
	if err != nil {
		d.LastError = err.Error()
	}
}
