// internal/comm/wsdevice/manager.go
package wsdevice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"haptic-bridge/internal/comm"
	"haptic-bridge/internal/config"
	"haptic-bridge/internal/utils"
	"haptic-bridge/pkg/hardware"
)

// ManagerName is the name of the websocket device communication manager
const ManagerName = "WebsocketServerDeviceCommunicationManager"

const defaultHandshakeTimeout = 10 * time.Second

// Handshake is the first text frame a device sends after connecting
type Handshake struct {
	Identifier string `json:"identifier"`
	Address    string `json:"address"`
	Version    int    `json:"version"`
}

// Manager accepts devices that dial into the bridge over websocket. It
// cannot scan; every completed handshake is pushed as a DeviceFound.
type Manager struct {
	cfg      config.WebsocketDeviceConfig
	events   comm.EventSender
	logger   *utils.ManagerLogger
	upgrader websocket.Upgrader
	engine   *gin.Engine

	mu      sync.Mutex
	server  *http.Server
	devices map[*Device]struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewBuilder creates a builder that starts listening on the configured address
func NewBuilder(cfg config.WebsocketDeviceConfig, logger *zap.Logger) comm.Builder {
	return comm.BuilderFunc(func(events comm.EventSender) comm.CommunicationManager {
		m := NewManager(cfg, events, logger)
		if err := m.Listen(net.JoinHostPort(cfg.Host, cfg.Port)); err != nil {
			m.logger.Error("Websocket device listener failed to start", zap.Error(err))
		}
		return m
	})
}

// NewManager creates a manager without a listener; Handler serves the device endpoint
func NewManager(cfg config.WebsocketDeviceConfig, events comm.EventSender, logger *zap.Logger) *Manager {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		events: events,
		logger: utils.NewManagerLogger(logger, ManagerName),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices are not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		devices: make(map[*Device]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/", m.handleDevice)
	m.engine = engine

	return m
}

func (m *Manager) Name() string                            { return ManagerName }
func (m *Manager) CanScan() bool                           { return false }
func (m *Manager) ScanningStatus() bool                    { return false }
func (m *Manager) StartScanning(ctx context.Context) error { return nil }
func (m *Manager) StopScanning(ctx context.Context) error  { return nil }

// Handler returns the device endpoint
func (m *Manager) Handler() http.Handler {
	return m.engine
}

// Listen binds addr and serves devices in the background
func (m *Manager) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return hardware.NewSpecificError(hardware.KindWebsocket, fmt.Errorf("listen %s: %w", addr, err))
	}

	srv := &http.Server{Handler: m.engine}
	m.mu.Lock()
	m.server = srv
	m.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Websocket device listener stopped", zap.Error(err))
		}
	}()

	m.logger.Info("Websocket device listener started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Close stops the listener and drops every connected device
func (m *Manager) Close() error {
	m.cancel()

	m.mu.Lock()
	srv := m.server
	m.server = nil
	devices := make([]*Device, 0, len(m.devices))
	for d := range m.devices {
		devices = append(devices, d)
	}
	m.mu.Unlock()

	for _, d := range devices {
		d.Disconnect()
	}

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (m *Manager) handleDevice(c *gin.Context) {
	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.logger.Error("Failed to upgrade device connection", zap.Error(err))
		return
	}

	hs, err := m.readHandshake(conn)
	if err != nil {
		m.logger.Warn("Device handshake failed",
			zap.String("remote_addr", c.Request.RemoteAddr),
			zap.Error(err),
		)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad handshake"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	device := newDevice(conn, hs, m.logger.Logger)
	m.track(device)

	ev := hardware.DeviceFound{
		Name:      hs.Identifier,
		Address:   hs.Address,
		Connector: hardware.Once(hardware.ConnectFunc(func(ctx context.Context) (hardware.Hardware, error) {
			if device.closed() {
				return nil, hardware.SpecificErrorf(hardware.KindWebsocket, "device %s already gone", hs.Address)
			}
			return device, nil
		})),
	}
	if err := m.events.Send(m.ctx, ev); err != nil {
		device.Disconnect()
		m.untrack(device)
		return
	}
	m.logger.LogDeviceFound(hs.Identifier, hs.Address)

	// Holds the handler until the device goes away
	device.readLoop()
	m.untrack(device)
}

func (m *Manager) readHandshake(conn *websocket.Conn) (Handshake, error) {
	var hs Handshake

	conn.SetReadDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return hs, err
	}
	conn.SetReadDeadline(time.Time{})

	if msgType != websocket.TextMessage {
		return hs, fmt.Errorf("handshake must be a text frame")
	}
	if err := json.Unmarshal(data, &hs); err != nil {
		return hs, fmt.Errorf("invalid handshake: %w", err)
	}
	if hs.Identifier == "" || hs.Address == "" {
		return hs, fmt.Errorf("handshake requires identifier and address")
	}
	return hs, nil
}

func (m *Manager) track(d *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d] = struct{}{}
}

func (m *Manager) untrack(d *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, d)
}
