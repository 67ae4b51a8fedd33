// internal/comm/dongle/dongle.go
package dongle

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"haptic-bridge/internal/config"
	"haptic-bridge/pkg/hardware"
)

type dongleConnector struct {
	loc    location
	name   string
	cfg    config.USBConfig
	logger *zap.Logger
}

// Connect opens the dongle, claims its default interface and picks the first OUT endpoint
func (c *dongleConnector) Connect(ctx context.Context) (hardware.Hardware, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	usbCtx := gousb.NewContext()

	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == c.loc.Vendor && desc.Product == c.loc.Product &&
			desc.Bus == c.loc.Bus && desc.Address == c.loc.Address
	})
	if err != nil || len(devices) == 0 {
		for _, d := range devices {
			d.Close()
		}
		usbCtx.Close()
		if err == nil {
			err = fmt.Errorf("USB device not found (VID: %04X, PID: %04X)", uint16(c.loc.Vendor), uint16(c.loc.Product))
		}
		return nil, hardware.NewSpecificError(hardware.KindUSBDongle, err)
	}
	device := devices[0]
	for _, extra := range devices[1:] {
		extra.Close()
	}

	if err := device.SetAutoDetach(true); err != nil {
		c.logger.Warn("Failed to enable kernel driver auto detach", zap.Error(err))
	}

	intf, done, err := device.DefaultInterface()
	if err != nil {
		device.Close()
		usbCtx.Close()
		return nil, hardware.NewSpecificError(hardware.KindUSBDongle, fmt.Errorf("failed to claim interface: %w", err))
	}

	out, err := firstOutEndpoint(intf)
	if err != nil {
		done()
		device.Close()
		usbCtx.Close()
		return nil, hardware.NewSpecificError(hardware.KindUSBDongle, err)
	}

	c.logger.Info("USB dongle opened",
		zap.String("address", c.loc.String()),
		zap.Int("endpoint", out.Desc.Number),
	)

	return &Dongle{
		name:    c.name,
		address: c.loc.String(),
		usbCtx:  usbCtx,
		device:  device,
		release: done,
		out:     out,
		logger:  c.logger.With(zap.String("address", c.loc.String())),
	}, nil
}

func firstOutEndpoint(intf *gousb.Interface) (*gousb.OutEndpoint, error) {
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionOut {
			out, err := intf.OutEndpoint(ep.Number)
			if err != nil {
				return nil, fmt.Errorf("failed to get out endpoint: %w", err)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("interface has no out endpoint")
}

// Dongle is an open USB dongle session
type Dongle struct {
	name    string
	address string

	usbCtx  *gousb.Context
	device  *gousb.Device
	release func()
	out     *gousb.OutEndpoint

	logger *zap.Logger
	mutex  sync.Mutex
}

func (d *Dongle) Name() string    { return d.name }
func (d *Dongle) Address() string { return d.address }

// Write writes data to the OUT endpoint
func (d *Dongle) Write(ctx context.Context, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.out == nil {
		return hardware.SpecificErrorf(hardware.KindUSBDongle, "dongle %s not open", d.address)
	}

	n, err := d.out.WriteContext(ctx, data)
	if err != nil {
		return hardware.NewSpecificError(hardware.KindUSBDongle, fmt.Errorf("failed to write to USB device: %w", err))
	}
	if n != len(data) {
		return hardware.SpecificErrorf(hardware.KindUSBDongle, "incomplete write: wrote %d of %d bytes", n, len(data))
	}

	d.logger.Debug("USB write completed", zap.Int("bytes", n))
	return nil
}

// Disconnect releases the interface, the device and the USB context
func (d *Dongle) Disconnect() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.out == nil {
		return nil
	}

	d.release()
	err := d.device.Close()
	if cerr := d.usbCtx.Close(); err == nil {
		err = cerr
	}
	d.out = nil

	if err != nil {
		return hardware.NewSpecificError(hardware.KindUSBDongle, fmt.Errorf("failed to close USB device: %w", err))
	}
	d.logger.Info("USB dongle closed")
	return nil
}
