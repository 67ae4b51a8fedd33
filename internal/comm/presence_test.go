package comm

import (
	"context"
	"reflect"
	"testing"

	"haptic-bridge/pkg/hardware"
)

func TestPresenceTrackerReportsNewcomers(t *testing.T) {
	p := NewPresenceTracker()

	if got := p.Update([]string{"a", "b", "a"}); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("first pass: %v", got)
	}
	if got := p.Update([]string{"b", "c"}); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("second pass: %v", got)
	}
	// "a" was gone for one pass
	if got := p.Update([]string{"a", "b", "c"}); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("third pass: %v", got)
	}

	p.Forget("b")
	if got := p.Update([]string{"a", "b", "c"}); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("after forget: %v", got)
	}
}

func TestAnnounceForgetsUnsentAddresses(t *testing.T) {
	p := NewPresenceTracker()
	ch := make(chan hardware.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	added := p.Update([]string{"a", "b", "c"})
	err := p.Announce(ctx, EventSender(ch), added, func(addr string) hardware.DeviceFound {
		if addr == "b" {
			// buffer is full and ctx is gone, so "b" cannot be delivered
			cancel()
		}
		return hardware.DeviceFound{Name: addr, Address: addr}
	})
	if err == nil {
		t.Fatalf("expected announce to fail once ctx is cancelled")
	}

	got := <-ch
	if found, ok := got.(hardware.DeviceFound); !ok || found.Address != "a" {
		t.Fatalf("expected only a to be delivered, got %#v", got)
	}

	if again := p.Update([]string{"a", "b", "c"}); !reflect.DeepEqual(again, []string{"b", "c"}) {
		t.Fatalf("undelivered addresses not announced again: %v", again)
	}
}

func TestAnnounceKeepsDeliveredAddresses(t *testing.T) {
	p := NewPresenceTracker()
	ch := make(chan hardware.Event, 4)

	added := p.Update([]string{"a", "b"})
	err := p.Announce(context.Background(), EventSender(ch), added, func(addr string) hardware.DeviceFound {
		return hardware.DeviceFound{Name: addr, Address: addr}
	})
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
	if len(ch) != 2 {
		t.Fatalf("expected 2 events, got %d", len(ch))
	}
	if again := p.Update([]string{"a", "b"}); len(again) != 0 {
		t.Fatalf("delivered addresses announced twice: %v", again)
	}
}
