// internal/events/handler.go
package events

import (
	"context"
)

// Handler processes events of a specific type.
type Handler interface {
	// Handle processes an event. Should not block.
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as event handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Publisher то, что нужно оркестратору и леджеру. nil-безопасной реализацией служит Discard.
type Publisher interface {
	Publish(event Event) error
}

type discard struct{}

func (discard) Publish(Event) error { return nil }

// Discard публикатор без подписчиков.
var Discard Publisher = discard{}

// Subscription represents a subscription to events.
type Subscription interface {
	// Unsubscribe removes the subscription.
	Unsubscribe()
}

// subscription is the internal implementation of Subscription.
type subscription struct {
	ids      []string
	eventBus *Bus
	types    []EventType
}

// Unsubscribe removes this subscription from the event bus.
func (s *subscription) Unsubscribe() {
	for i, id := range s.ids {
		s.eventBus.unsubscribe(id, s.types[i])
	}
}
