// internal/comm/registry.go
package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"haptic-bridge/pkg/hardware"
)

// DefaultEventBuffer is the discovery channel capacity when none is configured
const DefaultEventBuffer = 256

// ManagerInfo describes a registered manager
type ManagerInfo struct {
	Name     string `json:"name"`
	CanScan  bool   `json:"can_scan"`
	Scanning bool   `json:"scanning"`
}

// Registry owns the shared discovery channel and every manager bound to it
type Registry struct {
	events   chan hardware.Event
	managers []CommunicationManager
	closed   bool
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewRegistry creates a registry with a discovery channel of the given capacity
func NewRegistry(logger *zap.Logger, buffer int) *Registry {
	if buffer < 0 {
		buffer = DefaultEventBuffer
	}

	return &Registry{
		events: make(chan hardware.Event, buffer),
		logger: logger.With(zap.String("component", "comm-registry")),
	}
}

// Register finishes builder against the shared channel and keeps the manager
func (r *Registry) Register(builder Builder) (CommunicationManager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("registry closed")
	}

	manager := builder.Finish(EventSender(r.events))
	for _, existing := range r.managers {
		if existing.Name() == manager.Name() {
			r.logger.Warn("Duplicate communication manager name", zap.String("name", manager.Name()))
			break
		}
	}

	r.managers = append(r.managers, manager)
	r.logger.Info("Communication manager registered",
		zap.String("name", manager.Name()),
		zap.Bool("can_scan", manager.CanScan()),
	)
	return manager, nil
}

// Events returns the consumer side of the discovery channel
func (r *Registry) Events() <-chan hardware.Event {
	return r.events
}

// StartScanning starts every manager that can scan
func (r *Registry) StartScanning(ctx context.Context) error {
	return r.each(func(m CommunicationManager) error {
		if !m.CanScan() {
			return nil
		}
		return m.StartScanning(ctx)
	})
}

// StopScanning stops every manager that can scan
func (r *Registry) StopScanning(ctx context.Context) error {
	return r.each(func(m CommunicationManager) error {
		if !m.CanScan() {
			return nil
		}
		return m.StopScanning(ctx)
	})
}

// IsScanning reports whether any manager is scanning
func (r *Registry) IsScanning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.managers {
		if m.ScanningStatus() {
			return true
		}
	}
	return false
}

// ListManagers returns a snapshot of all managers
func (r *Registry) ListManagers() []ManagerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ManagerInfo, 0, len(r.managers))
	for _, m := range r.managers {
		infos = append(infos, ManagerInfo{
			Name:     m.Name(),
			CanScan:  m.CanScan(),
			Scanning: m.ScanningStatus(),
		})
	}
	return infos
}

// Close stops and tears down every manager. The discovery channel stays
// open because a loop may still be finishing its last pass.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	managers := r.managers
	r.mu.Unlock()

	var errs []error
	for _, m := range managers {
		if err := m.StopScanning(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
		}
		if closer, ok := m.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) each(fn func(CommunicationManager) error) error {
	r.mu.RLock()
	managers := make([]CommunicationManager, len(r.managers))
	copy(managers, r.managers)
	r.mu.RUnlock()

	var errs []error
	for _, m := range managers {
		if err := fn(m); err != nil {
			r.logger.Error("Communication manager call failed",
				zap.String("name", m.Name()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}
