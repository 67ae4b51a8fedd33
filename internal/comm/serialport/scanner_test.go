package serialport

import (
	"context"
	"errors"
	"testing"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap/zaptest"

	"haptic-bridge/internal/config"
	"haptic-bridge/pkg/hardware"
)

func TestScanAnnouncesMatchingPortsOnce(t *testing.T) {
	events := make(chan hardware.Event, 8)
	cfg := config.SerialConfig{
		USBIDs:       []string{"1a86:7523"},
		PortPatterns: []string{"/dev/ttyACM*"},
		BaudRate:     115200,
	}
	s := NewScanner(cfg, events, zaptest.NewLogger(t))
	s.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1A86", PID: "7523", Product: "Dongle"},
			{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0403", PID: "6001"},
			{Name: "/dev/ttyACM0"},
			{Name: "/dev/ttyS0"},
		}, nil
	}

	for i := 0; i < 2; i++ {
		if err := s.Scan(context.Background()); err != nil {
			t.Fatalf("scan %d: %v", i, err)
		}
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	first := (<-events).(hardware.DeviceFound)
	if first.Name != "Dongle" || first.Address != "/dev/ttyUSB0" {
		t.Fatalf("unexpected first device %+v", first)
	}
	second := (<-events).(hardware.DeviceFound)
	if second.Address != "/dev/ttyACM0" {
		t.Fatalf("unexpected second device %+v", second)
	}
}

func TestScanWrapsEnumerationFailure(t *testing.T) {
	s := NewScanner(config.SerialConfig{}, make(chan hardware.Event, 1), zaptest.NewLogger(t))
	s.listPorts = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("permission denied")
	}

	err := s.Scan(context.Background())
	var specific *hardware.SpecificError
	if !errors.As(err, &specific) || specific.Kind != hardware.KindSerial {
		t.Fatalf("expected serial SpecificError, got %v", err)
	}
}

func TestModeFor(t *testing.T) {
	mode := modeFor(config.SerialConfig{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"})
	if mode.BaudRate != 9600 || mode.DataBits != 7 {
		t.Fatalf("unexpected mode %+v", mode)
	}
	if mode.StopBits != serial.TwoStopBits || mode.Parity != serial.EvenParity {
		t.Fatalf("unexpected framing %+v", mode)
	}
}

func TestScanAnnouncesAgainAfterFailedSend(t *testing.T) {
	s := NewScanner(config.SerialConfig{}, make(chan hardware.Event), zaptest.NewLogger(t))
	s.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true},
			{Name: "/dev/ttyUSB1", IsUSB: true},
		}, nil
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Scan(cancelled); err == nil {
		t.Fatalf("expected scan to fail when nothing can be delivered")
	}

	events := make(chan hardware.Event, 4)
	s.events = events
	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected both ports announced after the failed pass, got %d", len(events))
	}
}

func TestScanAnnouncesAgainAfterFailedConnect(t *testing.T) {
	events := make(chan hardware.Event, 4)
	s := NewScanner(config.SerialConfig{}, events, zaptest.NewLogger(t))
	missing := "/dev/haptic-bridge-missing"
	s.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{{Name: missing, IsUSB: true}}, nil
	}

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("scan: %v", err)
	}
	found := (<-events).(hardware.DeviceFound)
	if _, err := found.Connector.Connect(context.Background()); err == nil {
		t.Fatalf("expected connect to a missing port to fail")
	}

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the released port to be announced again, got %d events", len(events))
	}
	again := (<-events).(hardware.DeviceFound)
	if again.Address != missing {
		t.Fatalf("unexpected device %+v", again)
	}
}
