// internal/comm/serialport/scanner.go
package serialport

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"haptic-bridge/internal/comm"
	"haptic-bridge/internal/config"
	"haptic-bridge/internal/utils"
	"haptic-bridge/pkg/hardware"
)

// ManagerName is the name of the serial port communication manager
const ManagerName = "SerialPortCommunicationManager"

// Scanner enumerates serial ports and announces the ones that match the
// configured USB ids or name patterns.
type Scanner struct {
	cfg      config.SerialConfig
	events   comm.EventSender
	presence *comm.PresenceTracker
	logger   *utils.ManagerLogger
	usbIDs   map[string]struct{}

	// listPorts is swapped in tests
	listPorts func() ([]*enumerator.PortDetails, error)
}

// NewBuilder creates a builder for the serial port manager
func NewBuilder(cfg config.SerialConfig, interval time.Duration, logger *zap.Logger) comm.Builder {
	return comm.BuilderFunc(func(events comm.EventSender) comm.CommunicationManager {
		return comm.NewTimedRetryManager(NewScanner(cfg, events, logger), events, interval, logger)
	})
}

// NewScanner creates a new serial port scanner
func NewScanner(cfg config.SerialConfig, events comm.EventSender, logger *zap.Logger) *Scanner {
	ids := make(map[string]struct{}, len(cfg.USBIDs))
	for _, id := range cfg.USBIDs {
		ids[strings.ToUpper(strings.TrimSpace(id))] = struct{}{}
	}

	return &Scanner{
		cfg:       cfg,
		events:    events,
		presence:  comm.NewPresenceTracker(),
		logger:    utils.NewManagerLogger(logger, ManagerName),
		usbIDs:    ids,
		listPorts: enumerator.GetDetailedPortsList,
	}
}

func (s *Scanner) Name() string  { return ManagerName }
func (s *Scanner) CanScan() bool { return true }

// Scan performs one enumeration pass
func (s *Scanner) Scan(ctx context.Context) error {
	start := time.Now()

	ports, err := s.listPorts()
	if err != nil {
		err = hardware.NewSpecificError(hardware.KindSerial, fmt.Errorf("failed to list serial ports: %w", err))
		s.logger.LogScanPass(time.Since(start), 0, err)
		return err
	}

	matched := make(map[string]*enumerator.PortDetails)
	var names []string
	for _, p := range ports {
		if !s.matches(p) {
			continue
		}
		matched[p.Name] = p
		names = append(names, p.Name)
	}

	added := s.presence.Update(names)
	err = s.presence.Announce(ctx, s.events, added, func(name string) hardware.DeviceFound {
		p := matched[name]
		display := p.Product
		if display == "" {
			display = p.Name
		}

		s.logger.LogDeviceFound(display, p.Name)
		return hardware.DeviceFound{
			Name:      display,
			Address:   p.Name,
			Connector: hardware.Once(hardware.Releasing(
				&portConnector{port: p.Name, cfg: s.cfg, logger: s.logger.Logger},
				s.release(p.Name),
			)),
		}
	})
	if err != nil {
		return err
	}

	s.logger.LogScanPass(time.Since(start), len(added), nil)
	return nil
}

func (s *Scanner) matches(p *enumerator.PortDetails) bool {
	if len(s.usbIDs) == 0 && len(s.cfg.PortPatterns) == 0 {
		return p.IsUSB
	}

	if p.IsUSB {
		id := strings.ToUpper(p.VID + ":" + p.PID)
		if _, ok := s.usbIDs[id]; ok {
			return true
		}
	}

	for _, pattern := range s.cfg.PortPatterns {
		if ok, _ := filepath.Match(pattern, p.Name); ok {
			return true
		}
	}
	return false
}

// release lets the next pass announce addr again once its session is over
func (s *Scanner) release(addr string) func() {
	return func() { s.presence.Forget(addr) }
}
