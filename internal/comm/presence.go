// internal/comm/presence.go
package comm

import (
	"context"
	"sync"

	"haptic-bridge/pkg/hardware"
)

// PresenceTracker remembers which addresses were seen in the previous scan
// pass so each pass only announces newcomers. A device that disappears for
// one pass is announced again when it comes back.
type PresenceTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewPresenceTracker creates an empty tracker
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{seen: make(map[string]struct{})}
}

// Update replaces the present set and returns the addresses that are new, in input order
func (p *PresenceTracker) Update(current []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[string]struct{}, len(current))
	var added []string
	for _, addr := range current {
		if _, dup := next[addr]; dup {
			continue
		}
		next[addr] = struct{}{}
		if _, ok := p.seen[addr]; !ok {
			added = append(added, addr)
		}
	}
	p.seen = next
	return added
}

// Forget drops addrs so the next pass announces them again. Scanners call it
// for addresses whose announcement failed and for released sessions.
func (p *PresenceTracker) Forget(addrs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, addr := range addrs {
		delete(p.seen, addr)
	}
}

// Announce sends one DeviceFound per added address, in order. When a send
// fails the failed address and every later one are forgotten so the next
// pass announces them again.
func (p *PresenceTracker) Announce(ctx context.Context, events EventSender, added []string, found func(addr string) hardware.DeviceFound) error {
	for i, addr := range added {
		if err := events.Send(ctx, found(addr)); err != nil {
			p.Forget(added[i:]...)
			return err
		}
	}
	return nil
}
