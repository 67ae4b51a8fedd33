package connector

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"haptic-bridge/pkg/message"
)

func TestSorterRoutesRepliesAndEvents(t *testing.T) {
	var events []message.Message
	s := NewSorter(func(m message.Message) { events = append(events, m) }, zaptest.NewLogger(t))

	r7, err := s.Register(7)
	if err != nil {
		t.Fatalf("register 7: %v", err)
	}
	r8, err := s.Register(8)
	if err != nil {
		t.Fatalf("register 8: %v", err)
	}

	frame := `[{"id":8,"type":"Ok"},{"type":"DeviceAdded","name":"Mock1"},{"id":7,"type":"Ok"}]`
	if err := s.Route([]byte(frame)); err != nil {
		t.Fatalf("route: %v", err)
	}

	for id, ch := range map[uint32]<-chan Result{7: r7, 8: r8} {
		select {
		case res := <-ch:
			if res.Err != nil || res.Message.ID != id {
				t.Fatalf("unexpected result for %d: %+v", id, res)
			}
		default:
			t.Fatalf("request %d not resolved", id)
		}
	}

	if len(events) != 1 || events[0].String("name") != "Mock1" {
		t.Fatalf("unexpected events %+v", events)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected empty table, got %d", s.Pending())
	}

	// A duplicate reply for an already resolved id is dropped, not an event
	if err := s.Route([]byte(`[{"id":7,"type":"Ok"}]`)); err != nil {
		t.Fatalf("route duplicate: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("stale reply leaked to the event handler")
	}
}

func TestSorterRejectsDuplicateAndReservedIDs(t *testing.T) {
	s := NewSorter(nil, zaptest.NewLogger(t))

	if _, err := s.Register(3); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := s.Register(3); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := s.Register(message.SystemID); err == nil {
		t.Fatalf("expected reserved id to be refused")
	}

	s.Forget(3)
	if _, err := s.Register(3); err != nil {
		t.Fatalf("register after forget: %v", err)
	}
}

func TestSorterCloseResolvesPending(t *testing.T) {
	s := NewSorter(nil, zaptest.NewLogger(t))

	ch, _ := s.Register(9)
	s.Close(ErrConnectionClosed)

	res := <-ch
	if !errors.Is(res.Err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", res.Err)
	}
	if _, err := s.Register(10); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected register after close to fail, got %v", err)
	}

	// Only the first close counts
	s.Close(errors.New("other"))
	if _, err := s.Register(11); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("close error replaced: %v", err)
	}
}

func TestSorterRejectsNonArrayFrame(t *testing.T) {
	s := NewSorter(nil, zaptest.NewLogger(t))
	if err := s.Route([]byte(`{"id":1}`)); err == nil {
		t.Fatalf("expected non-array frame to fail")
	}
}

func TestSorterRoutesValidUnitsPastMalformedOnes(t *testing.T) {
	frames := []string{
		`[{"id":7,"ok":true},{"id":"abc"}]`,
		`[{"id":7,"ok":true},42]`,
		`[{"id":7,"ok":true},{"id":-1}]`,
		`[null,{"id":7,"ok":true}]`,
	}

	for _, frame := range frames {
		s := NewSorter(nil, zaptest.NewLogger(t))
		r7, err := s.Register(7)
		if err != nil {
			t.Fatalf("register: %v", err)
		}

		if err := s.Route([]byte(frame)); err == nil {
			t.Fatalf("%s: expected the malformed unit to be reported", frame)
		}

		select {
		case res := <-r7:
			if res.Err != nil || res.Message.ID != 7 || !res.Message.Bool("ok") {
				t.Fatalf("%s: unexpected result %+v", frame, res)
			}
		default:
			t.Fatalf("%s: request 7 not resolved", frame)
		}
		if s.Pending() != 0 {
			t.Fatalf("%s: expected nothing pending, got %d", frame, s.Pending())
		}
	}
}
