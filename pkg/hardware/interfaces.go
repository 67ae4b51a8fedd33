// pkg/hardware/interfaces.go
package hardware

import (
	"context"
	"errors"
	"sync"
)

// ErrConnectorUsed is returned when a Connector is invoked a second time.
var ErrConnectorUsed = errors.New("hardware connector already used")

// Hardware is an established session with one physical device
type Hardware interface {
	// Device information
	Name() string
	Address() string

	// Raw outbound payload; command encoding belongs to the device layer
	Write(ctx context.Context, data []byte) error

	// Cleanup
	Disconnect() error
}

// Connector is the single-use factory carried by a DeviceFound event.
// Calling Connect establishes the actual device session.
type Connector interface {
	Connect(ctx context.Context) (Hardware, error)
}

// ConnectFunc adapts a function to the Connector interface
type ConnectFunc func(ctx context.Context) (Hardware, error)

// Connect calls f
func (f ConnectFunc) Connect(ctx context.Context) (Hardware, error) {
	return f(ctx)
}

type onceConnector struct {
	mu   sync.Mutex
	used bool
	next Connector
}

// Once wraps a Connector so that only the first Connect call reaches it;
// later calls fail with ErrConnectorUsed.
func Once(c Connector) Connector {
	return &onceConnector{next: c}
}

func (o *onceConnector) Connect(ctx context.Context) (Hardware, error) {
	o.mu.Lock()
	if o.used {
		o.mu.Unlock()
		return nil, ErrConnectorUsed
	}
	o.used = true
	o.mu.Unlock()

	return o.next.Connect(ctx)
}

type releasingConnector struct {
	next    Connector
	release func()
}

// Releasing wraps a Connector so release runs once the device can be handed
// out again: after a failed Connect, or after the session's Disconnect.
func Releasing(c Connector, release func()) Connector {
	return &releasingConnector{next: c, release: release}
}

func (r *releasingConnector) Connect(ctx context.Context) (Hardware, error) {
	hw, err := r.next.Connect(ctx)
	if err != nil {
		r.release()
		return nil, err
	}
	return &releasingHardware{Hardware: hw, release: r.release}, nil
}

type releasingHardware struct {
	Hardware
	once    sync.Once
	release func()
}

func (h *releasingHardware) Disconnect() error {
	err := h.Hardware.Disconnect()
	h.once.Do(h.release)
	return err
}
