// internal/comm/manager.go
package comm

import (
	"context"

	"haptic-bridge/pkg/hardware"
)

// CommunicationManager is the uniform contract every transport-specific
// discovery backend implements.
type CommunicationManager interface {
	// Name is a stable identifier, unique by convention
	Name() string

	// StartScanning is a no-op when already scanning. It returns once the
	// background work is spawned and never waits for it.
	StartScanning(ctx context.Context) error

	// StopScanning is a no-op when not scanning
	StopScanning(ctx context.Context) error

	// ScanningStatus reports false for backends that cannot tell
	ScanningStatus() bool

	// CanScan is false for backends that only accept externally pushed devices
	CanScan() bool
}

// Builder binds a backend to the shared discovery event channel. The
// channel is handed over once, at construction, and never replaced.
type Builder interface {
	Finish(events EventSender) CommunicationManager
}

// BuilderFunc adapts a function to the Builder interface
type BuilderFunc func(events EventSender) CommunicationManager

// Finish calls f
func (f BuilderFunc) Finish(events EventSender) CommunicationManager {
	return f(events)
}

// EventSender is the producer side of the discovery event channel. Any
// number of managers may hold one; the registry is the single consumer.
type EventSender chan<- hardware.Event

// Send delivers ev in order, giving up when ctx is done
func (s EventSender) Send(ctx context.Context, ev hardware.Event) error {
	select {
	case s <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
