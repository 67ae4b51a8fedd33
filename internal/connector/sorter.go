// internal/connector/sorter.go
package connector

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"haptic-bridge/pkg/message"
)

// Result resolves one pending request
type Result struct {
	Message message.Message
	Err     error
}

// Sorter matches inbound units to pending requests by correlation id and
// hands everything without an id to the event handler.
type Sorter struct {
	mu      sync.Mutex
	pending map[uint32]chan Result
	closed  error

	onEvent func(message.Message)
	logger  *zap.Logger
}

// NewSorter creates an empty correlation table. onEvent may be nil.
func NewSorter(onEvent func(message.Message), logger *zap.Logger) *Sorter {
	return &Sorter{
		pending: make(map[uint32]chan Result),
		onEvent: onEvent,
		logger:  logger,
	}
}

// Register adds a pending entry for id and returns the channel its reply lands on
func (s *Sorter) Register(id uint32) (<-chan Result, error) {
	if id == message.SystemID {
		return nil, fmt.Errorf("id %d is reserved for events", message.SystemID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed != nil {
		return nil, s.closed
	}
	if _, ok := s.pending[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}

	ch := make(chan Result, 1)
	s.pending[id] = ch
	return ch, nil
}

// Forget drops the pending entry for id, if any
func (s *Sorter) Forget(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// Pending returns the number of outstanding requests
func (s *Sorter) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Route decodes one inbound frame and dispatches its valid units in order.
// The returned error reports the units that were dropped.
func (s *Sorter) Route(raw []byte) error {
	units, err := message.DecodeFrame(raw)

	for _, unit := range units {
		if unit.IsEvent() {
			if s.onEvent != nil {
				s.onEvent(unit)
			} else {
				s.logger.Debug("Event dropped, no handler installed")
			}
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[unit.ID]
		delete(s.pending, unit.ID)
		s.mu.Unlock()

		if !ok {
			// Stale or duplicate reply
			s.logger.Debug("Unmatched reply dropped", zap.Uint32("id", unit.ID))
			continue
		}
		ch <- Result{Message: unit}
	}
	return err
}

// Close resolves every pending request with err and refuses new ones
func (s *Sorter) Close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed != nil {
		return
	}
	s.closed = err

	for id, ch := range s.pending {
		ch <- Result{Err: err}
		delete(s.pending, id)
	}
}
