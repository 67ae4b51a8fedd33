// internal/comm/serialport/port.go
package serialport

import (
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"haptic-bridge/internal/config"
	"haptic-bridge/pkg/hardware"
)

type portConnector struct {
	port   string
	cfg    config.SerialConfig
	logger *zap.Logger
}

// Connect opens the port with the configured mode
func (c *portConnector) Connect(ctx context.Context) (hardware.Hardware, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := serial.Open(c.port, modeFor(c.cfg))
	if err != nil {
		return nil, hardware.NewSpecificError(hardware.KindSerial, fmt.Errorf("failed to open serial port %s: %w", c.port, err))
	}

	if c.cfg.Timeout > 0 {
		if err := port.SetReadTimeout(c.cfg.Timeout); err != nil {
			port.Close()
			return nil, hardware.NewSpecificError(hardware.KindSerial, fmt.Errorf("failed to set read timeout: %w", err))
		}
	}

	c.logger.Info("Serial port opened",
		zap.String("port", c.port),
		zap.Int("baud_rate", c.cfg.BaudRate),
	)

	return &Port{name: c.port, port: port, logger: c.logger.With(zap.String("port", c.port))}, nil
}

// Port is an open serial session
type Port struct {
	name   string
	port   serial.Port
	logger *zap.Logger
	mutex  sync.Mutex
}

func (p *Port) Name() string    { return p.name }
func (p *Port) Address() string { return p.name }

// Write writes data to the serial port
func (p *Port) Write(ctx context.Context, data []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.port == nil {
		return hardware.SpecificErrorf(hardware.KindSerial, "port %s not open", p.name)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n, err := p.port.Write(data)
	if err != nil {
		return hardware.NewSpecificError(hardware.KindSerial, fmt.Errorf("failed to write to serial port: %w", err))
	}
	if n != len(data) {
		return hardware.SpecificErrorf(hardware.KindSerial, "incomplete write: wrote %d of %d bytes", n, len(data))
	}

	p.logger.Debug("Serial write completed", zap.Int("bytes", n))
	return nil
}

// Disconnect closes the serial port
func (p *Port) Disconnect() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.port == nil {
		return nil
	}

	err := p.port.Close()
	p.port = nil
	if err != nil {
		return hardware.NewSpecificError(hardware.KindSerial, fmt.Errorf("failed to close serial port: %w", err))
	}

	p.logger.Info("Serial port closed")
	return nil
}

func modeFor(cfg config.SerialConfig) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch cfg.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode
}
