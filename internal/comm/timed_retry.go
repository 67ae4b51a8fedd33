// internal/comm/timed_retry.go
package comm

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"haptic-bridge/internal/utils"
	"haptic-bridge/pkg/hardware"
)

// DefaultScanInterval is the pause between two successful scan passes
const DefaultScanInterval = time.Second

// finishedTimeout bounds the wait for room in the event channel when a loop ends
const finishedTimeout = time.Second

// TimedRetryScanner performs a single discovery pass
type TimedRetryScanner interface {
	Name() string
	CanScan() bool
	Scan(ctx context.Context) error
}

// scanScope is the cancellation scope held while a loop is running
type scanScope struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// TimedRetryManager turns a TimedRetryScanner into a CommunicationManager
// running a cancellable, repeating background scan loop.
//
// A failed pass ends the loop; there is no automatic restart. The caller
// resumes with another StartScanning. Every loop ends with a ScanningFinished
// event, whether it was stopped or failed.
type TimedRetryManager struct {
	scanner  TimedRetryScanner
	events   EventSender
	interval time.Duration
	logger   *utils.ManagerLogger

	mu    sync.Mutex
	scope *scanScope
}

// NewTimedRetryManager wraps scanner. A non-positive interval selects
// DefaultScanInterval. events receives ScanningFinished when a loop ends; nil
// disables it.
func NewTimedRetryManager(scanner TimedRetryScanner, events EventSender, interval time.Duration, logger *zap.Logger) *TimedRetryManager {
	if interval <= 0 {
		interval = DefaultScanInterval
	}

	return &TimedRetryManager{
		scanner:  scanner,
		events:   events,
		interval: interval,
		logger:   utils.NewManagerLogger(logger, scanner.Name()),
	}
}

// Name returns the wrapped scanner's name
func (m *TimedRetryManager) Name() string {
	return m.scanner.Name()
}

// CanScan returns the wrapped scanner's capability
func (m *TimedRetryManager) CanScan() bool {
	return m.scanner.CanScan()
}

// ScanningStatus reports whether a cancellation scope is held
func (m *TimedRetryManager) ScanningStatus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope != nil
}

// StartScanning spawns the scan loop unless one is already running
func (m *TimedRetryManager) StartScanning(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scope != nil {
		return nil
	}

	// The loop outlives the caller's ctx; only the scope stops it
	loopCtx, cancel := context.WithCancel(context.Background())
	scope := &scanScope{cancel: cancel, done: make(chan struct{})}
	m.scope = scope

	go m.loop(loopCtx, scope)

	m.logger.Info("Scanning started", zap.Duration("interval", m.interval))
	return nil
}

// StopScanning signals cancellation and returns without waiting for the loop
func (m *TimedRetryManager) StopScanning(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scope == nil {
		return nil
	}

	m.scope.cancel()
	m.scope = nil

	m.logger.Info("Scanning stopped")
	return nil
}

// Close cancels any running loop and releases the scanner
func (m *TimedRetryManager) Close() error {
	_ = m.StopScanning(context.Background())

	if closer, ok := m.scanner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (m *TimedRetryManager) loop(ctx context.Context, scope *scanScope) {
	defer close(scope.done)
	defer m.finished()

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		if err := m.scanner.Scan(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("Timed communication manager failure",
				zap.Error(err),
				zap.Duration("duration", time.Since(start)),
			)
			m.release(scope)
			return
		}

		timer := time.NewTimer(m.interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// release drops scope if it is still the current one
func (m *TimedRetryManager) release(scope *scanScope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope.cancel()
	if m.scope == scope {
		m.scope = nil
	}
}

// finished reports the end of a loop. The loop's own ctx is already done, so
// the send gets a short deadline of its own.
func (m *TimedRetryManager) finished() {
	if m.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), finishedTimeout)
	defer cancel()
	if err := m.events.Send(ctx, hardware.ScanningFinished{}); err != nil {
		m.logger.Warn("Dropped scanning finished event", zap.Error(err))
	}
}
