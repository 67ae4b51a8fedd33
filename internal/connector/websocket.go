// internal/connector/websocket.go
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebsocketTransport dials a websocket server and reads it with a blocking loop
type WebsocketTransport struct {
	address string
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// NewWebsocketTransport creates a transport for address (ws:// or wss://)
func NewWebsocketTransport(address string, handshakeTimeout time.Duration, logger *zap.Logger) *WebsocketTransport {
	dialer := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		dialer.HandshakeTimeout = handshakeTimeout
	}

	return &WebsocketTransport{
		address: address,
		dialer:  &dialer,
		logger:  logger.With(zap.String("transport", "websocket"), zap.String("address", address)),
	}
}

// Run implements Transport
func (t *WebsocketTransport) Run(ctx context.Context, out chan<- RemoteMessage) error {
	conn, _, err := t.dialer.DialContext(ctx, t.address, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.address, err)
	}
	sender := newWSSender(conn)

	select {
	case out <- SenderHandle{Sender: sender}:
	case <-ctx.Done():
		sender.Close()
		return ctx.Err()
	}

	// Cancelling ctx unblocks the read below
	stop := context.AfterFunc(ctx, func() { sender.Close() })
	defer stop()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			sender.Close()
			if ctx.Err() != nil {
				return nil
			}

			t.logger.Info("Websocket peer went away", zap.Error(err))
			select {
			case out <- Closed{Err: err}:
			case <-ctx.Done():
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		if msgType != websocket.TextMessage {
			t.logger.Debug("Non-text frame ignored", zap.Int("type", msgType))
			continue
		}

		select {
		case out <- Text{Data: data}:
		case <-ctx.Done():
			return nil
		}
	}
}
