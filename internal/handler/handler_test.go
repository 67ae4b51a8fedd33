package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"haptic-bridge/internal/comm"
	"haptic-bridge/internal/comm/mock"
	"haptic-bridge/internal/config"
	"haptic-bridge/internal/model"
	"haptic-bridge/internal/service"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type fixture struct {
	engine  *gin.Engine
	ds      *service.DiscoveryService
	manager *mock.Manager
	ws      *WebSocketHandler
}

func newFixture(t *testing.T, devices ...mock.Device) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	registry := comm.NewRegistry(logger, 16)
	var manager *mock.Manager
	if len(devices) > 0 {
		m, err := registry.Register(mock.NewBuilder(devices...))
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		manager = m.(*mock.Manager)
	}

	ds := service.NewDiscoveryService(registry, logger)
	ds.Start()

	cfg := &config.Config{App: config.AppConfig{Name: "haptic-bridge", Version: "test"}}
	ws := NewWebSocketHandler(ds.EventBus(), nil, logger)

	engine := gin.New()
	NewHealthHandler(ds, cfg, logger).RegisterRoutes(engine)
	api := engine.Group("/api/v1")
	NewDiscoveryHandler(ds, logger).RegisterRoutes(api)
	NewDeviceHandler(ds, logger).RegisterRoutes(api)
	ws.RegisterRoutes(engine.Group("/ws"))

	t.Cleanup(func() {
		ws.Close()
		ds.Stop(context.Background())
	})
	return &fixture{engine: engine, ds: ds, manager: manager, ws: ws}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var resp apiResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

// discover starts scanning and waits for the mock device to be listed
func (f *fixture) discover(t *testing.T) model.Device {
	t.Helper()

	rec, _ := f.do(t, http.MethodPost, "/api/v1/scanning/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start scanning: status %d body %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if devices := f.ds.ListDevices(); len(devices) > 0 {
			return devices[0]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("device was never discovered")
	return model.Device{}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, mock.Device{Name: "Mock1", Address: "AA:BB"})

	for _, path := range []string{"/health", "/ready", "/live"} {
		rec, _ := f.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d body %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestHealthWithoutManagers(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/ready"} {
		rec, _ := f.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
	}
	if rec, _ := f.do(t, http.MethodGet, "/live", nil); rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200, got %d", rec.Code)
	}
}

func TestListManagers(t *testing.T) {
	f := newFixture(t, mock.Device{Name: "Mock1", Address: "AA:BB"})

	rec, resp := f.do(t, http.MethodGet, "/api/v1/managers", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var data struct {
		Managers []comm.ManagerInfo `json:"managers"`
		Total    int                `json:"total"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Total != 1 || data.Managers[0].Name != mock.ManagerName || !data.Managers[0].CanScan {
		t.Fatalf("unexpected managers %+v", data)
	}
}

func TestConnectWriteDisconnectOverHTTP(t *testing.T) {
	f := newFixture(t, mock.Device{Name: "Mock1", Address: "AA:BB"})
	device := f.discover(t)
	base := "/api/v1/devices/" + device.ID.String()

	if rec, _ := f.do(t, http.MethodGet, base, nil); rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}

	rec, resp := f.do(t, http.MethodPost, base+"/connect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: status %d body %s", rec.Code, rec.Body.String())
	}
	var connected model.Device
	if err := json.Unmarshal(resp.Data, &connected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if connected.Status != model.DeviceStatusConnected {
		t.Fatalf("expected CONNECTED, got %s", connected.Status)
	}

	if rec, _ := f.do(t, http.MethodPost, base+"/connect", nil); rec.Code != http.StatusConflict {
		t.Fatalf("second connect: expected 409, got %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodPost, base+"/write", WriteRequest{Data: "56696272617465", Encoding: "hex"})
	if rec.Code != http.StatusOK {
		t.Fatalf("write: status %d body %s", rec.Code, rec.Body.String())
	}
	writes := f.manager.Writes("AA:BB")
	if len(writes) != 1 || string(writes[0]) != "Vibrate" {
		t.Fatalf("unexpected writes %q", writes)
	}

	if rec, _ := f.do(t, http.MethodPost, base+"/disconnect", nil); rec.Code != http.StatusOK {
		t.Fatalf("disconnect: status %d", rec.Code)
	}
	rec, resp = f.do(t, http.MethodPost, base+"/write", WriteRequest{Data: "x"})
	if rec.Code != http.StatusConflict || resp.Error == nil || resp.Error.Code != "DEVICE_NOT_CONNECTED" {
		t.Fatalf("write after disconnect: expected 409 DEVICE_NOT_CONNECTED, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestDeviceErrors(t *testing.T) {
	f := newFixture(t, mock.Device{Name: "Mock1", Address: "AA:BB"})

	if rec, _ := f.do(t, http.MethodGet, "/api/v1/devices/not-a-uuid", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rec.Code)
	}
	missing := "/api/v1/devices/00000000-0000-0000-0000-000000000001"
	rec, resp := f.do(t, http.MethodPost, missing+"/connect", nil)
	if rec.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != "DEVICE_NOT_FOUND" {
		t.Fatalf("missing: expected 404 DEVICE_NOT_FOUND, got %d %s", rec.Code, rec.Body.String())
	}

	device := f.discover(t)
	base := "/api/v1/devices/" + device.ID.String()
	if rec, _ := f.do(t, http.MethodPost, base+"/write", WriteRequest{Data: "zz", Encoding: "hex"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad hex: expected 400, got %d", rec.Code)
	}
	if rec, _ := f.do(t, http.MethodPost, base+"/write", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", rec.Code)
	}
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		data, encoding, want string
		wantErr              bool
	}{
		{"Vibrate:5;", "", "Vibrate:5;", false},
		{"Vibrate:5;", "text", "Vibrate:5;", false},
		{"4869", "hex", "Hi", false},
		{"SGk=", "base64", "Hi", false},
		{"Hi", "rot13", "", true},
	}

	for _, tt := range tests {
		got, err := decodePayload(tt.data, tt.encoding)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s/%s: unexpected error %v", tt.data, tt.encoding, err)
		}
		if !tt.wantErr && string(got) != tt.want {
			t.Fatalf("%s/%s: got %q want %q", tt.data, tt.encoding, got, tt.want)
		}
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, mock.Device{Name: "Mock1", Address: "AA:BB"})
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?type=DEVICE_FOUND"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var hello WebSocketMessage
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "connected" {
		t.Fatalf("expected connected message, got %+v (%v)", hello, err)
	}

	if err := f.ds.StartScanning(context.Background()); err != nil {
		t.Fatalf("start scanning: %v", err)
	}

	var msg struct {
		Type string            `json:"type"`
		Data model.BridgeEvent `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != "event" || msg.Data.Type != model.EventDeviceFound {
		t.Fatalf("expected only DEVICE_FOUND events, got %+v", msg)
	}

	if err := conn.WriteJSON(WebSocketMessage{Type: "ping", RequestID: "r1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong WebSocketMessage
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != "pong" || pong.RequestID != "r1" {
		t.Fatalf("expected pong, got %+v (%v)", pong, err)
	}

	if got := f.ws.connections.GetStats().TotalConnections; got != 1 {
		t.Fatalf("expected one client, got %d", got)
	}
}
