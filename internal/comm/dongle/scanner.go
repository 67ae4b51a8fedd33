// internal/comm/dongle/scanner.go
package dongle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"haptic-bridge/internal/comm"
	"haptic-bridge/internal/config"
	"haptic-bridge/internal/utils"
	"haptic-bridge/pkg/hardware"
)

// ManagerName is the name of the USB dongle communication manager
const ManagerName = "UsbDongleCommunicationManager"

// location identifies one attached dongle
type location struct {
	Vendor  gousb.ID
	Product gousb.ID
	Bus     int
	Address int
}

func (l location) String() string {
	return fmt.Sprintf("USB-Bus%d-Port%d", l.Bus, l.Address)
}

// Scanner looks for known USB dongles on every pass
type Scanner struct {
	cfg      config.USBConfig
	db       *Database
	events   comm.EventSender
	presence *comm.PresenceTracker
	logger   *utils.ManagerLogger

	// enumerate is swapped in tests
	enumerate func() ([]location, error)
}

// NewBuilder creates a builder for the USB dongle manager
func NewBuilder(cfg config.USBConfig, interval time.Duration, logger *zap.Logger) (comm.Builder, error) {
	db, err := NewDatabase(cfg.ExtraDevices)
	if err != nil {
		return nil, err
	}

	return comm.BuilderFunc(func(events comm.EventSender) comm.CommunicationManager {
		return comm.NewTimedRetryManager(NewScanner(cfg, db, events, logger), events, interval, logger)
	}), nil
}

// NewScanner creates a new USB dongle scanner
func NewScanner(cfg config.USBConfig, db *Database, events comm.EventSender, logger *zap.Logger) *Scanner {
	s := &Scanner{
		cfg:      cfg,
		db:       db,
		events:   events,
		presence: comm.NewPresenceTracker(),
		logger:   utils.NewManagerLogger(logger, ManagerName),
	}
	s.enumerate = s.enumerateUSB
	return s
}

func (s *Scanner) Name() string  { return ManagerName }
func (s *Scanner) CanScan() bool { return true }

// Scan performs one enumeration pass
func (s *Scanner) Scan(ctx context.Context) error {
	start := time.Now()

	found, err := s.enumerate()
	if err != nil {
		err = hardware.NewSpecificError(hardware.KindUSBDongle, err)
		s.logger.LogScanPass(time.Since(start), 0, err)
		return err
	}

	byAddr := make(map[string]location, len(found))
	addrs := make([]string, 0, len(found))
	for _, loc := range found {
		byAddr[loc.String()] = loc
		addrs = append(addrs, loc.String())
	}

	added := s.presence.Update(addrs)
	err = s.presence.Announce(ctx, s.events, added, func(addr string) hardware.DeviceFound {
		loc := byAddr[addr]
		info, _ := s.db.Lookup(loc.Vendor, loc.Product)

		s.logger.LogDeviceFound(info.Name, addr)
		return hardware.DeviceFound{
			Name:      info.Name,
			Address:   addr,
			Connector: hardware.Once(hardware.Releasing(
				&dongleConnector{loc: loc, name: info.Name, cfg: s.cfg, logger: s.logger.Logger},
				s.release(addr),
			)),
		}
	})
	if err != nil {
		return err
	}

	s.logger.LogScanPass(time.Since(start), len(added), nil)
	return nil
}

// enumerateUSB walks the bus descriptors without opening any device
func (s *Scanner) enumerateUSB() ([]location, error) {
	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	if s.cfg.Debug {
		usbCtx.Debug(3)
	}

	var found []location
	_, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if _, ok := s.db.Lookup(desc.Vendor, desc.Product); ok {
			found = append(found, location{
				Vendor:  desc.Vendor,
				Product: desc.Product,
				Bus:     desc.Bus,
				Address: desc.Address,
			})
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	return found, nil
}

// release lets the next pass announce addr again once its session is over
func (s *Scanner) release(addr string) func() {
	return func() { s.presence.Forget(addr) }
}
