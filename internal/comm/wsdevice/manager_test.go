package wsdevice

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"haptic-bridge/internal/config"
	"haptic-bridge/pkg/hardware"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHandshakeAnnouncesDeviceAndWritesReachIt(t *testing.T) {
	events := make(chan hardware.Event, 1)
	m := NewManager(config.WebsocketDeviceConfig{HandshakeTimeout: time.Second}, events, zaptest.NewLogger(t))
	defer m.Close()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	if m.CanScan() || m.ScanningStatus() {
		t.Fatalf("websocket device manager must not scan")
	}

	conn := dial(t, srv)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"identifier":"LVS-Test","address":"11:22","version":0}`)); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	var found hardware.DeviceFound
	select {
	case ev := <-events:
		found = ev.(hardware.DeviceFound)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for DeviceFound")
	}
	if found.Name != "LVS-Test" || found.Address != "11:22" {
		t.Fatalf("unexpected device %+v", found)
	}

	hw, err := found.Connector.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := hw.Write(context.Background(), []byte("Vibrate:10;")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("device read: %v", err)
	}
	if msgType != websocket.BinaryMessage || string(data) != "Vibrate:10;" {
		t.Fatalf("unexpected frame %d %q", msgType, data)
	}

	if err := hw.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := hw.Write(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected write after disconnect to fail")
	}
}

func TestBadHandshakeIsRejected(t *testing.T) {
	events := make(chan hardware.Event, 1)
	m := NewManager(config.WebsocketDeviceConfig{HandshakeTimeout: time.Second}, events, zaptest.NewLogger(t))
	defer m.Close()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"identifier":""}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("bad handshake must not announce a device")
	}
}
