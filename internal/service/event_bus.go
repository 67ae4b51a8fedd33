// internal/service/event_bus.go
package service

import (
	"sync"

	"go.uber.org/zap"

	"haptic-bridge/internal/model"
)

const (
	eventBusBuffer   = 1000
	subscriberBuffer = 100
)

// EventBus manages event distribution
type EventBus struct {
	subscribers map[model.EventType][]chan model.BridgeEvent
	events      chan model.BridgeEvent
	mutex       sync.RWMutex
	logger      *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan model.BridgeEvent),
		events:      make(chan model.BridgeEvent, eventBusBuffer),
		logger:      logger.With(zap.String("component", "event-bus")),
		done:        make(chan struct{}),
	}
}

// Start distributes events until Close
func (eb *EventBus) Start() {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-eb.done:
			return
		}
	}
}

// Close stops distribution and closes every subscriber channel
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		close(eb.done)

		eb.mutex.Lock()
		defer eb.mutex.Unlock()
		for eventType, subs := range eb.subscribers {
			for _, sub := range subs {
				close(sub)
			}
			delete(eb.subscribers, eventType)
		}
	})
}

// Publish publishes an event
func (eb *EventBus) Publish(event model.BridgeEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.Type)),
		)
	}
}

// Subscribe subscribes to events of a specific type, or all with model.EventAll
func (eb *EventBus) Subscribe(eventType model.EventType) <-chan model.BridgeEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.BridgeEvent, subscriberBuffer)
	select {
	case <-eb.done:
		close(subscriber)
		return subscriber
	default:
	}

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	return subscriber
}

// Unsubscribe removes and closes a subscriber channel
func (eb *EventBus) Unsubscribe(sub <-chan model.BridgeEvent) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for eventType, subs := range eb.subscribers {
		for i, s := range subs {
			if (<-chan model.BridgeEvent)(s) == sub {
				eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(s)
				return
			}
		}
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.BridgeEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, key := range []model.EventType{event.Type, model.EventAll} {
		for _, subscriber := range eb.subscribers[key] {
			select {
			case subscriber <- event:
			default:
				// Subscriber is slow, skip
			}
		}
	}
}
