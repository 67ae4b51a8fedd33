package connector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"haptic-bridge/pkg/message"
)

// memTransport is an in-process peer
type memTransport struct {
	dialErr   error
	sent      chan []byte
	inbound   chan []byte
	peerClose chan error
}

func newMemTransport() *memTransport {
	return &memTransport{
		sent:      make(chan []byte, 16),
		inbound:   make(chan []byte, 16),
		peerClose: make(chan error, 1),
	}
}

func (m *memTransport) Run(ctx context.Context, out chan<- RemoteMessage) error {
	if m.dialErr != nil {
		return m.dialErr
	}
	out <- SenderHandle{Sender: &memSender{sent: m.sent}}

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-m.inbound:
			out <- Text{Data: data}
		case err := <-m.peerClose:
			out <- Closed{Err: err}
			return nil
		}
	}
}

type memSender struct {
	mu     sync.Mutex
	sent   chan []byte
	closed bool
}

func (s *memSender) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSenderClosed
	}
	s.sent <- payload
	return nil
}

func (s *memSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func nextFrame(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case f := <-ch:
		return string(f)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound frame")
		return ""
	}
}

func mustMessage(t *testing.T, id uint32, typ string) message.Message {
	t.Helper()
	m, err := message.New(id, map[string]interface{}{"type": typ})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	return m
}

func TestSendResolvesCorrelatedReply(t *testing.T) {
	tr := newMemTransport()
	events := make(chan message.Message, 4)
	c := New(tr, Options{OnEvent: func(m message.Message) { events <- m }}, "mem", zaptest.NewLogger(t))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	go func() {
		frame := string(<-tr.sent)
		if frame != `[{"id":7,"type":"Ping"}]` {
			t.Errorf("unexpected frame %s", frame)
		}
		tr.inbound <- []byte(`[{"id":7,"type":"Ok"}]`)
		tr.inbound <- []byte(`[{"id":7,"type":"Ok"}]`)
		tr.inbound <- []byte(`[{"type":"ScanningFinished"}]`)
	}()

	reply, err := c.Send(context.Background(), mustMessage(t, 7, "Ping"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.ID != 7 || reply.String("type") != "Ok" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	select {
	case ev := <-events:
		if ev.String("type") != "ScanningFinished" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	if len(events) != 0 {
		t.Fatalf("duplicate reply was delivered as an event")
	}
}

func TestSendAssignsID(t *testing.T) {
	tr := newMemTransport()
	c := New(tr, Options{}, "mem", zaptest.NewLogger(t))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	go func() {
		if frame := string(<-tr.sent); frame != `[{"id":1,"type":"RequestServerInfo"}]` {
			t.Errorf("unexpected frame %s", frame)
		}
		tr.inbound <- []byte(`[{"id":1,"type":"ServerInfo"}]`)
	}()

	reply, err := c.Send(context.Background(), mustMessage(t, 0, "RequestServerInfo"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.ID != 1 {
		t.Fatalf("expected assigned id 1, got %d", reply.ID)
	}
}

func TestSendBeforeConnect(t *testing.T) {
	c := New(newMemTransport(), Options{}, "mem", zaptest.NewLogger(t))
	if _, err := c.Send(context.Background(), mustMessage(t, 1, "Ping")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	tr := newMemTransport()
	tr.dialErr = errors.New("connection refused")
	c := New(tr, Options{}, "mem", zaptest.NewLogger(t))

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrTransportFailed) {
		t.Fatalf("expected ErrTransportFailed, got %v", err)
	}
	if c.IsConnected() {
		t.Fatalf("failed connect left the connector connected")
	}
}

func TestDisconnectFailsPendingRequest(t *testing.T) {
	tr := newMemTransport()
	c := New(tr, Options{}, "mem", zaptest.NewLogger(t))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	errs := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), mustMessage(t, 9, "StartScanning"))
		errs <- err
	}()
	nextFrame(t, tr.sent)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pending send was not resolved by disconnect")
	}

	if _, err := c.Send(context.Background(), mustMessage(t, 10, "Ping")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after disconnect, got %v", err)
	}
}

func TestPeerCloseFailsPendingRequest(t *testing.T) {
	tr := newMemTransport()
	c := New(tr, Options{}, "mem", zaptest.NewLogger(t))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	errs := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), mustMessage(t, 4, "Ping"))
		errs <- err
	}()
	nextFrame(t, tr.sent)
	tr.peerClose <- errors.New("close 1001")

	select {
	case err := <-errs:
		if !errors.Is(err, ErrPeerClosed) || !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("expected peer closed error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pending send was not resolved by peer close")
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.IsConnected() {
		t.Fatalf("connector still reports connected after peer close")
	}
}

func TestSendTimesOut(t *testing.T) {
	tr := newMemTransport()
	c := New(tr, Options{RequestTimeout: 20 * time.Millisecond}, "mem", zaptest.NewLogger(t))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	_, err := c.Send(context.Background(), mustMessage(t, 5, "Ping"))
	if !errors.Is(err, ErrResponseTimeout) {
		t.Fatalf("expected ErrResponseTimeout, got %v", err)
	}

	if n := c.conn.sorter.Pending(); n != 0 {
		t.Fatalf("timed out request left %d pending entries", n)
	}
}

func TestDoneClosesOnPeerClose(t *testing.T) {
	tr := newMemTransport()
	c := New(tr, Options{}, "mem", zaptest.NewLogger(t))

	select {
	case <-c.Done():
	default:
		t.Fatalf("Done should be closed before connect")
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	done := c.Done()
	select {
	case <-done:
		t.Fatalf("Done closed while connected")
	default:
	}

	tr.peerClose <- nil
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Done not closed after peer close")
	}
}

// stopTransport hands out a sender whose Close waits for Run to observe cancellation
type stopTransport struct {
	stopped chan struct{}
}

func (s *stopTransport) Run(ctx context.Context, out chan<- RemoteMessage) error {
	out <- SenderHandle{Sender: &stopSender{stopped: s.stopped}}
	<-ctx.Done()
	close(s.stopped)
	return nil
}

type stopSender struct {
	stopped chan struct{}
}

func (s *stopSender) Send(payload []byte) error { return nil }

func (s *stopSender) Close() error {
	<-s.stopped
	return nil
}

func TestDisconnectCancelsBeforeClosingSender(t *testing.T) {
	tr := &stopTransport{stopped: make(chan struct{})}
	c := New(tr, Options{}, "mem", zaptest.NewLogger(t))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	returned := make(chan error, 1)
	go func() { returned <- c.Disconnect() }()

	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("disconnect: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("disconnect blocked on a sender waiting for the transport to stop")
	}
}
