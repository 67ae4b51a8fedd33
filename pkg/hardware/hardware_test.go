package hardware

import (
	"context"
	"errors"
	"testing"
)

type nopHardware struct{}

func (nopHardware) Name() string                              { return "nop" }
func (nopHardware) Address() string                           { return "00" }
func (nopHardware) Write(ctx context.Context, _ []byte) error { return nil }
func (nopHardware) Disconnect() error                         { return nil }

func TestOnceConnectorRejectsSecondCall(t *testing.T) {
	calls := 0
	c := Once(ConnectFunc(func(ctx context.Context) (Hardware, error) {
		calls++
		return nopHardware{}, nil
	}))

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("first connect failed: %v", err)
	}
	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrConnectorUsed) {
		t.Fatalf("expected ErrConnectorUsed, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected underlying connector to run once, ran %d times", calls)
	}
}

func TestSpecificErrorMessage(t *testing.T) {
	err := NewSpecificError(KindSerial, errors.New("port busy"))
	var se *SpecificError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SpecificError, got %T", err)
	}
	if se.Kind != KindSerial {
		t.Fatalf("kind mismatch: %s", se.Kind)
	}
	if got := err.Error(); got != "serial error: port busy" {
		t.Fatalf("unexpected message %q", got)
	}
	if NewSpecificError(KindSerial, nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestReleasingConnector(t *testing.T) {
	released := 0
	c := Releasing(ConnectFunc(func(ctx context.Context) (Hardware, error) {
		return nopHardware{}, nil
	}), func() { released++ })

	hw, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if released != 0 {
		t.Fatalf("released before disconnect")
	}
	hw.Disconnect()
	hw.Disconnect()
	if released != 1 {
		t.Fatalf("expected one release, got %d", released)
	}

	failing := Releasing(ConnectFunc(func(ctx context.Context) (Hardware, error) {
		return nil, errors.New("port busy")
	}), func() { released++ })
	if _, err := failing.Connect(context.Background()); err == nil {
		t.Fatalf("expected connect error")
	}
	if released != 2 {
		t.Fatalf("failed connect must release, got %d", released)
	}
}
