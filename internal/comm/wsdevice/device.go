// internal/comm/wsdevice/device.go
package wsdevice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"haptic-bridge/pkg/hardware"
)

const writeWait = 10 * time.Second

// Device is a hardware session over a device-initiated websocket
type Device struct {
	conn      *websocket.Conn
	handshake Handshake
	logger    *zap.Logger

	mu       sync.Mutex
	isClosed bool
}

func newDevice(conn *websocket.Conn, hs Handshake, logger *zap.Logger) *Device {
	return &Device{
		conn:      conn,
		handshake: hs,
		logger: logger.With(
			zap.String("address", hs.Address),
			zap.String("identifier", hs.Identifier),
		),
	}
}

func (d *Device) Name() string    { return d.handshake.Identifier }
func (d *Device) Address() string { return d.handshake.Address }

// Write sends data as one binary frame
func (d *Device) Write(ctx context.Context, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isClosed {
		return hardware.SpecificErrorf(hardware.KindWebsocket, "device %s disconnected", d.handshake.Address)
	}

	deadline := time.Now().Add(writeWait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	d.conn.SetWriteDeadline(deadline)

	if err := d.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return hardware.NewSpecificError(hardware.KindWebsocket, fmt.Errorf("write: %w", err))
	}
	return nil
}

// Disconnect sends a close frame and drops the socket
func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isClosed {
		return nil
	}
	d.isClosed = true

	d.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err := d.conn.Close(); err != nil {
		return hardware.NewSpecificError(hardware.KindWebsocket, err)
	}

	d.logger.Info("Websocket device disconnected")
	return nil
}

func (d *Device) closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isClosed
}

// readLoop drains inbound frames until the peer goes away
func (d *Device) readLoop() {
	for {
		msgType, data, err := d.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.logger.Warn("Websocket device read failed", zap.Error(err))
			}
			break
		}
		d.logger.Debug("Websocket device frame ignored",
			zap.Int("type", msgType),
			zap.Int("bytes", len(data)),
		)
	}

	d.mu.Lock()
	wasClosed := d.isClosed
	d.isClosed = true
	d.mu.Unlock()

	if !wasClosed {
		d.conn.Close()
		d.logger.Info("Websocket device went away")
	}
}
