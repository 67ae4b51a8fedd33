// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of bridge event
type EventType string

const (
	EventDeviceFound        EventType = "DEVICE_FOUND"
	EventDeviceConnected    EventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventType = "DEVICE_DISCONNECTED"
	EventDeviceError        EventType = "DEVICE_ERROR"
	EventScanningStarted    EventType = "SCANNING_STARTED"
	EventScanningStopped    EventType = "SCANNING_STOPPED"
	EventScanningFinished   EventType = "SCANNING_FINISHED"

	// EventAll subscribes to every event type
	EventAll EventType = "*"
)

// BridgeEvent is published on the event bus and streamed to websocket clients
type BridgeEvent struct {
	ID        uuid.UUID              `json:"id"`
	Type      EventType              `json:"type"`
	DeviceID  *uuid.UUID             `json:"device_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
}

// NewBridgeEvent creates an event stamped with a fresh id and the current time
func NewBridgeEvent(eventType EventType, source string, data map[string]interface{}) BridgeEvent {
	return BridgeEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}
}

// ForDevice attaches a device id
func (e BridgeEvent) ForDevice(id uuid.UUID) BridgeEvent {
	e.DeviceID = &id
	return e
}
