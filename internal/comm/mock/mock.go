// internal/comm/mock/mock.go
package mock

import (
	"context"
	"fmt"
	"sync"

	"haptic-bridge/internal/comm"
	"haptic-bridge/pkg/hardware"
)

// ManagerName is the name every mock manager reports
const ManagerName = "MockCommunicationManager"

// Device is a scripted discovery result
type Device struct {
	Name    string
	Address string
}

// Manager is an in-process communication manager. Each StartScanning emits
// one DeviceFound per scripted device followed by ScanningFinished.
type Manager struct {
	events  comm.EventSender
	devices []Device

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	done     chan struct{}

	writes   map[string][][]byte
	writesMu sync.Mutex
}

// NewBuilder creates a builder for a manager that announces devices
func NewBuilder(devices ...Device) comm.Builder {
	return comm.BuilderFunc(func(events comm.EventSender) comm.CommunicationManager {
		return &Manager{
			events:  events,
			devices: devices,
			writes:  make(map[string][][]byte),
		}
	})
}

func (m *Manager) Name() string  { return ManagerName }
func (m *Manager) CanScan() bool { return true }

func (m *Manager) ScanningStatus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanning
}

func (m *Manager) StartScanning(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scanning {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.scanning = true
	m.cancel = cancel
	m.done = done

	go m.run(runCtx, done)
	return nil
}

func (m *Manager) StopScanning(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.scanning {
		return nil
	}
	m.cancel()
	m.scanning = false
	return nil
}

// Wait blocks until the most recent scan has emitted everything
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Writes returns the payloads written to the device at address
func (m *Manager) Writes(address string) [][]byte {
	m.writesMu.Lock()
	defer m.writesMu.Unlock()
	return append([][]byte(nil), m.writes[address]...)
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for _, d := range m.devices {
		ev := hardware.DeviceFound{
			Name:      d.Name,
			Address:   d.Address,
			Connector: hardware.Once(m.connector(d)),
		}
		if err := m.events.Send(ctx, ev); err != nil {
			return
		}
	}

	m.mu.Lock()
	if m.done == done {
		m.scanning = false
	}
	m.mu.Unlock()

	_ = m.events.Send(ctx, hardware.ScanningFinished{})
}

func (m *Manager) connector(d Device) hardware.Connector {
	return hardware.ConnectFunc(func(ctx context.Context) (hardware.Hardware, error) {
		if d.Address == "" {
			return nil, fmt.Errorf("mock device %q has no address", d.Name)
		}
		return &device{owner: m, name: d.Name, address: d.Address}, nil
	})
}

type device struct {
	owner   *Manager
	name    string
	address string

	mu           sync.Mutex
	disconnected bool
}

func (d *device) Name() string    { return d.name }
func (d *device) Address() string { return d.address }

func (d *device) Write(ctx context.Context, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disconnected {
		return fmt.Errorf("mock device %s disconnected", d.address)
	}

	d.owner.writesMu.Lock()
	d.owner.writes[d.address] = append(d.owner.writes[d.address], append([]byte(nil), data...))
	d.owner.writesMu.Unlock()
	return nil
}

func (d *device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = true
	return nil
}
