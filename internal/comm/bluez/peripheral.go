// internal/comm/bluez/peripheral.go
package bluez

import (
	"context"
	"fmt"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"haptic-bridge/pkg/hardware"
)

const defaultConnectTimeout = 15 * time.Second

type peripheralConnector struct {
	bus     *dbus.Conn
	device  bleDevice
	timeout time.Duration
	logger  *zap.Logger
}

// Connect connects the device, waits for GATT services and picks the write characteristic
func (c *peripheralConnector) Connect(ctx context.Context) (hardware.Hardware, error) {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	device := c.bus.Object(bluezService, c.device.Path)
	if call := device.CallWithContext(connectCtx, deviceIface+".Connect", 0); call.Err != nil {
		return nil, hardware.NewSpecificError(hardware.KindBluetooth, fmt.Errorf("connect %s: %w", c.device.Address, call.Err))
	}

	fail := func(err error) (hardware.Hardware, error) {
		device.Call(deviceIface+".Disconnect", 0)
		return nil, hardware.NewSpecificError(hardware.KindBluetooth, err)
	}

	if err := c.waitServicesResolved(connectCtx, device); err != nil {
		return fail(err)
	}

	objs, err := getManagedObjects(c.bus)
	if err != nil {
		return fail(err)
	}
	char, ok := objs.writeCharacteristic(c.device.Path)
	if !ok {
		return fail(fmt.Errorf("no writable characteristic on %s", c.device.Address))
	}

	c.logger.Info("BLE device connected",
		zap.String("address", c.device.Address),
		zap.String("characteristic", string(char.Path)),
	)

	return &Peripheral{
		bus:    c.bus,
		device: c.device,
		char:   char,
		logger: c.logger.With(zap.String("address", c.device.Address)),
	}, nil
}

func (c *peripheralConnector) waitServicesResolved(ctx context.Context, device dbus.BusObject) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		v, err := device.GetProperty(deviceIface + ".ServicesResolved")
		if err == nil {
			if resolved, _ := v.Value().(bool); resolved {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("service discovery on %s: %w", c.device.Address, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Peripheral is a connected BLE device
type Peripheral struct {
	bus    *dbus.Conn
	device bleDevice
	char   characteristic
	logger *zap.Logger

	mu           sync.Mutex
	disconnected bool
}

func (p *Peripheral) Name() string    { return p.device.Name }
func (p *Peripheral) Address() string { return p.device.Address }

// Write sends data to the write characteristic
func (p *Peripheral) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disconnected {
		return hardware.SpecificErrorf(hardware.KindBluetooth, "device %s disconnected", p.device.Address)
	}

	opts := map[string]dbus.Variant{
		"type": dbus.MakeVariant(p.char.WriteType),
	}
	obj := p.bus.Object(bluezService, p.char.Path)
	if call := obj.CallWithContext(ctx, gattCharIface+".WriteValue", 0, data, opts); call.Err != nil {
		return hardware.NewSpecificError(hardware.KindBluetooth, fmt.Errorf("WriteValue: %w", call.Err))
	}

	p.logger.Debug("BLE write completed", zap.Int("bytes", len(data)))
	return nil
}

// Disconnect drops the BLE link
func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disconnected {
		return nil
	}
	p.disconnected = true

	if call := p.bus.Object(bluezService, p.device.Path).Call(deviceIface+".Disconnect", 0); call.Err != nil {
		return hardware.NewSpecificError(hardware.KindBluetooth, fmt.Errorf("disconnect %s: %w", p.device.Address, call.Err))
	}

	p.logger.Info("BLE device disconnected")
	return nil
}
