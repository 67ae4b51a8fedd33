// internal/service/discovery_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"haptic-bridge/internal/comm"
	"haptic-bridge/internal/model"
	"haptic-bridge/internal/utils"
	"haptic-bridge/pkg/hardware"
)

var (
	ErrDeviceNotFound     = &Error{Code: "DEVICE_NOT_FOUND", Message: "device not found"}
	ErrDeviceConnected    = &Error{Code: "DEVICE_ALREADY_CONNECTED", Message: "device already connected"}
	ErrDeviceNotConnected = &Error{Code: "DEVICE_NOT_CONNECTED", Message: "device not connected"}
	ErrNotConnectable     = &Error{Code: "DEVICE_NOT_CONNECTABLE", Message: "device must be rediscovered before connecting"}
)

// Error is a discovery service failure with a stable API code
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string     { return e.Message }
func (e *Error) ErrorCode() string { return e.Code }

const eventSource = "discovery-service"

// deviceEntry pairs the public record with its live handles
type deviceEntry struct {
	info      model.Device
	connector hardware.Connector
	hardware  hardware.Hardware
}

// DiscoveryService consumes discovery events, keeps the device table and
// drives hardware sessions.
type DiscoveryService struct {
	registry *comm.Registry
	eventBus *EventBus
	logger   *utils.ServiceLogger

	mutex     sync.RWMutex
	devices   map[uuid.UUID]*deviceEntry
	byAddress map[string]uuid.UUID

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(registry *comm.Registry, logger *zap.Logger) *DiscoveryService {
	return &DiscoveryService{
		registry:  registry,
		eventBus:  NewEventBus(logger),
		logger:    utils.NewServiceLogger(logger, eventSource),
		devices:   make(map[uuid.UUID]*deviceEntry),
		byAddress: make(map[string]uuid.UUID),
	}
}

// EventBus returns the bus discovery activity is published on
func (ds *DiscoveryService) EventBus() *EventBus {
	return ds.eventBus
}

// Start begins consuming the discovery channel
func (ds *DiscoveryService) Start() {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if ds.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ds.cancel = cancel
	ds.done = make(chan struct{})

	go ds.eventBus.Start()
	go ds.consume(ctx, ds.done)

	ds.logger.Info("Discovery service started")
}

// Stop stops scanning, closes every manager and every open hardware session
func (ds *DiscoveryService) Stop(ctx context.Context) error {
	var errs []error
	if err := ds.registry.StopScanning(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := ds.registry.Close(); err != nil {
		errs = append(errs, err)
	}

	ds.mutex.Lock()
	cancel, done := ds.cancel, ds.done
	ds.cancel = nil
	ds.mutex.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	ds.mutex.Lock()
	for _, entry := range ds.devices {
		if entry.hardware == nil {
			continue
		}
		if err := entry.hardware.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.info.Address, err))
		}
		entry.hardware = nil
		entry.info.MarkDisconnected()
	}
	ds.mutex.Unlock()

	ds.eventBus.Close()
	ds.logger.LogServiceStop("shutdown")
	return errors.Join(errs...)
}

// StartScanning starts every scanning manager
func (ds *DiscoveryService) StartScanning(ctx context.Context) error {
	if err := ds.registry.StartScanning(ctx); err != nil {
		return fmt.Errorf("failed to start scanning: %w", err)
	}
	ds.eventBus.Publish(model.NewBridgeEvent(model.EventScanningStarted, eventSource, nil))
	return nil
}

// StopScanning stops every scanning manager
func (ds *DiscoveryService) StopScanning(ctx context.Context) error {
	if err := ds.registry.StopScanning(ctx); err != nil {
		return fmt.Errorf("failed to stop scanning: %w", err)
	}
	ds.eventBus.Publish(model.NewBridgeEvent(model.EventScanningStopped, eventSource, nil))
	return nil
}

// IsScanning reports whether any manager is scanning
func (ds *DiscoveryService) IsScanning() bool {
	return ds.registry.IsScanning()
}

// ListManagers returns the registered communication managers
func (ds *DiscoveryService) ListManagers() []comm.ManagerInfo {
	return ds.registry.ListManagers()
}

// ListDevices returns every known device, oldest discovery first
func (ds *DiscoveryService) ListDevices() []model.Device {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	out := make([]model.Device, 0, len(ds.devices))
	for _, entry := range ds.devices {
		out = append(out, entry.info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DiscoveredAt.Before(out[j].DiscoveredAt)
	})
	return out
}

// GetDevice returns one device
func (ds *DiscoveryService) GetDevice(id uuid.UUID) (model.Device, error) {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	entry, ok := ds.devices[id]
	if !ok {
		return model.Device{}, ErrDeviceNotFound
	}
	return entry.info, nil
}

// ConnectDevice opens a hardware session through the device's connector
func (ds *DiscoveryService) ConnectDevice(ctx context.Context, id uuid.UUID) (model.Device, error) {
	ds.mutex.Lock()
	entry, ok := ds.devices[id]
	if !ok {
		ds.mutex.Unlock()
		return model.Device{}, ErrDeviceNotFound
	}
	if entry.hardware != nil || entry.info.Status == model.DeviceStatusConnecting {
		ds.mutex.Unlock()
		return model.Device{}, ErrDeviceConnected
	}
	connector := entry.connector
	if connector == nil {
		ds.mutex.Unlock()
		return model.Device{}, ErrNotConnectable
	}
	entry.connector = nil
	entry.info.Status = model.DeviceStatusConnecting
	entry.info.Connectable = false
	ds.mutex.Unlock()

	hw, err := connector.Connect(ctx)

	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if err != nil {
		entry.info.MarkError(err)
		entry.info.Connectable = entry.connector != nil
		ds.logger.Error("Device connect failed",
			zap.String("device_id", id.String()),
			zap.String("address", entry.info.Address),
			zap.Error(err),
		)
		ds.eventBus.Publish(model.NewBridgeEvent(model.EventDeviceError, eventSource, map[string]interface{}{
			"address": entry.info.Address,
			"error":   err.Error(),
		}).ForDevice(id))
		return entry.info, fmt.Errorf("failed to connect %s: %w", entry.info.Address, err)
	}

	entry.hardware = hw
	entry.connector = nil
	entry.info.MarkConnected()
	ds.logger.Info("Device connected",
		zap.String("device_id", id.String()),
		zap.String("address", entry.info.Address),
	)
	ds.eventBus.Publish(model.NewBridgeEvent(model.EventDeviceConnected, eventSource, map[string]interface{}{
		"name":    entry.info.Name,
		"address": entry.info.Address,
	}).ForDevice(id))
	return entry.info, nil
}

// DisconnectDevice closes the device's hardware session
func (ds *DiscoveryService) DisconnectDevice(ctx context.Context, id uuid.UUID) (model.Device, error) {
	ds.mutex.Lock()
	entry, ok := ds.devices[id]
	if !ok {
		ds.mutex.Unlock()
		return model.Device{}, ErrDeviceNotFound
	}
	hw := entry.hardware
	if hw == nil {
		ds.mutex.Unlock()
		return model.Device{}, ErrDeviceNotConnected
	}
	entry.hardware = nil
	entry.info.MarkDisconnected()
	info := entry.info
	ds.mutex.Unlock()

	err := hw.Disconnect()
	if err != nil {
		ds.logger.Warn("Device disconnect reported an error",
			zap.String("device_id", id.String()),
			zap.Error(err),
		)
	}

	ds.eventBus.Publish(model.NewBridgeEvent(model.EventDeviceDisconnected, eventSource, map[string]interface{}{
		"address": info.Address,
	}).ForDevice(id))
	return info, err
}

// WriteDevice sends a raw payload to a connected device
func (ds *DiscoveryService) WriteDevice(ctx context.Context, id uuid.UUID, data []byte) error {
	ds.mutex.RLock()
	entry, ok := ds.devices[id]
	var hw hardware.Hardware
	if ok {
		hw = entry.hardware
	}
	ds.mutex.RUnlock()

	if !ok {
		return ErrDeviceNotFound
	}
	if hw == nil {
		return ErrDeviceNotConnected
	}

	if err := hw.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to write to %s: %w", hw.Address(), err)
	}
	return nil
}

func (ds *DiscoveryService) consume(ctx context.Context, done chan struct{}) {
	defer close(done)

	events := ds.registry.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			ds.handleEvent(ev)
		}
	}
}

func (ds *DiscoveryService) handleEvent(ev hardware.Event) {
	switch e := ev.(type) {
	case hardware.DeviceFound:
		ds.deviceFound(e)
	case hardware.ScanningFinished:
		if !ds.registry.IsScanning() {
			ds.logger.Info("Scanning finished")
			ds.eventBus.Publish(model.NewBridgeEvent(model.EventScanningFinished, eventSource, nil))
		}
	default:
		ds.logger.Warn("Unknown discovery event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (ds *DiscoveryService) deviceFound(e hardware.DeviceFound) {
	now := time.Now()

	ds.mutex.Lock()
	id, known := ds.byAddress[e.Address]
	var entry *deviceEntry
	if known {
		entry = ds.devices[id]
		entry.info.LastSeen = now
		entry.info.Name = e.Name
		// A connected device keeps its session; the fresh connector is not needed.
		// A connect in flight keeps its status but still gets the connector, the
		// backend only re-announces after the attempt released the device.
		if entry.hardware == nil {
			entry.connector = e.Connector
			if entry.info.Status != model.DeviceStatusConnecting {
				entry.info.Connectable = e.Connector != nil
				entry.info.Status = model.DeviceStatusDiscovered
			}
		}
	} else {
		id = uuid.New()
		entry = &deviceEntry{
			info: model.Device{
				ID:           id,
				Name:         e.Name,
				Address:      e.Address,
				Status:       model.DeviceStatusDiscovered,
				Connectable:  e.Connector != nil,
				DiscoveredAt: now,
				LastSeen:     now,
			},
			connector: e.Connector,
		}
		ds.devices[id] = entry
		ds.byAddress[e.Address] = id
	}
	ds.mutex.Unlock()

	ds.logger.Info("Device found",
		zap.String("device_id", id.String()),
		zap.String("name", e.Name),
		zap.String("address", e.Address),
		zap.Bool("known", known),
	)
	ds.eventBus.Publish(model.NewBridgeEvent(model.EventDeviceFound, eventSource, map[string]interface{}{
		"name":    e.Name,
		"address": e.Address,
	}).ForDevice(id))
}
