// internal/comm/bluez/scanner.go
package bluez

import (
	"context"
	"fmt"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"haptic-bridge/internal/comm"
	"haptic-bridge/internal/config"
	"haptic-bridge/internal/utils"
	"haptic-bridge/pkg/hardware"
)

// ManagerName is the name of the BlueZ communication manager
const ManagerName = "BtlePlugCommunicationManager"

// Scanner keeps BlueZ discovery running on every adapter and announces the
// Device1 objects that appear between passes.
type Scanner struct {
	cfg      config.BluetoothConfig
	events   comm.EventSender
	presence *comm.PresenceTracker
	logger   *utils.ManagerLogger

	mu          sync.Mutex
	bus         *dbus.Conn
	discovering map[dbus.ObjectPath]struct{}
}

// NewBuilder creates a builder for the BlueZ manager
func NewBuilder(cfg config.BluetoothConfig, interval time.Duration, logger *zap.Logger) comm.Builder {
	return comm.BuilderFunc(func(events comm.EventSender) comm.CommunicationManager {
		return comm.NewTimedRetryManager(NewScanner(cfg, events, logger), events, interval, logger)
	})
}

// NewScanner creates a new BlueZ scanner. The system bus is connected on the first pass.
func NewScanner(cfg config.BluetoothConfig, events comm.EventSender, logger *zap.Logger) *Scanner {
	return &Scanner{
		cfg:         cfg,
		events:      events,
		presence:    comm.NewPresenceTracker(),
		logger:      utils.NewManagerLogger(logger, ManagerName),
		discovering: make(map[dbus.ObjectPath]struct{}),
	}
}

func (s *Scanner) Name() string  { return ManagerName }
func (s *Scanner) CanScan() bool { return true }

// Scan performs one pass over the BlueZ object tree
func (s *Scanner) Scan(ctx context.Context) error {
	start := time.Now()

	bus, err := s.ensureBus()
	if err != nil {
		s.logger.LogScanPass(time.Since(start), 0, err)
		return err
	}

	objs, err := getManagedObjects(bus)
	if err != nil {
		err = hardware.NewSpecificError(hardware.KindBluetooth, err)
		s.logger.LogScanPass(time.Since(start), 0, err)
		return err
	}

	adapters := objs.adapters(s.cfg.Adapter)
	if len(adapters) == 0 {
		err = hardware.SpecificErrorf(hardware.KindBluetooth, "no bluetooth adapter available")
		s.logger.LogScanPass(time.Since(start), 0, err)
		return err
	}
	s.startDiscovery(bus, adapters)

	devices := objs.devices(adapters, s.cfg.NamePrefixes)
	byAddr := make(map[string]bleDevice, len(devices))
	addrs := make([]string, 0, len(devices))
	for _, d := range devices {
		byAddr[d.Address] = d
		addrs = append(addrs, d.Address)
	}

	added := s.presence.Update(addrs)
	err = s.presence.Announce(ctx, s.events, added, func(addr string) hardware.DeviceFound {
		d := byAddr[addr]
		s.logger.LogDeviceFound(d.Name, d.Address)
		return hardware.DeviceFound{
			Name:      d.Name,
			Address:   d.Address,
			Connector: hardware.Once(hardware.Releasing(
				&peripheralConnector{bus: bus, device: d, timeout: s.cfg.Timeout, logger: s.logger.Logger},
				s.release(d.Address),
			)),
		}
	})
	if err != nil {
		return err
	}

	s.logger.LogScanPass(time.Since(start), len(added), nil)
	return nil
}

// Close stops discovery on every adapter this scanner started it on. The
// system bus connection is shared process-wide and stays open.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus == nil {
		return nil
	}
	for path := range s.discovering {
		if call := s.bus.Object(bluezService, path).Call(adapterIface+".StopDiscovery", 0); call.Err != nil {
			s.logger.Warn("Failed to stop discovery", zap.String("adapter", string(path)), zap.Error(call.Err))
		}
		delete(s.discovering, path)
	}
	return nil
}

func (s *Scanner) ensureBus() (*dbus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus != nil {
		return s.bus, nil
	}
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, hardware.NewSpecificError(hardware.KindBluetooth, fmt.Errorf("connect system bus: %w", err))
	}
	s.bus = bus
	return bus, nil
}

func (s *Scanner) startDiscovery(bus *dbus.Conn, adapters []dbus.ObjectPath) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range adapters {
		if _, ok := s.discovering[path]; ok {
			continue
		}

		adapter := bus.Object(bluezService, path)
		filter := map[string]dbus.Variant{
			"Transport": dbus.MakeVariant("le"),
		}
		if call := adapter.Call(adapterIface+".SetDiscoveryFilter", 0, filter); call.Err != nil {
			s.logger.Debug("SetDiscoveryFilter failed", zap.String("adapter", string(path)), zap.Error(call.Err))
		}
		// Best effort; cached devices are still reported when discovery is already running elsewhere
		if call := adapter.Call(adapterIface+".StartDiscovery", 0); call.Err != nil {
			s.logger.Warn("StartDiscovery failed", zap.String("adapter", string(path)), zap.Error(call.Err))
			continue
		}
		s.discovering[path] = struct{}{}
	}
}

// release lets the next pass announce addr again once its session is over
func (s *Scanner) release(addr string) func() {
	return func() { s.presence.Forget(addr) }
}
