package guestws

import (
	"sync"
)

type callback[T any] func(T)

// EventEmitterCallback maps events (of type K) to callbacks receiving a value of type V.
// Callbacks run synchronously on the emitting goroutine, in registration order.
type EventEmitterCallback[K comparable, V any] struct {
	listeners map[K][]callback[V]
	lock      sync.RWMutex
}

// NewEventEmitter creates a new EventEmitterCallback and returns a pointer to it.
func NewEventEmitter[K comparable, V any]() *EventEmitterCallback[K, V] {
	return &EventEmitterCallback[K, V]{
		listeners: make(map[K][]callback[V]),
	}
}

// On registers a new listener for the given event.
func (e *EventEmitterCallback[K, V]) On(event K, listener callback[V]) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners[event] = append(e.listeners[event], listener)
}

// Emit calls every listener registered for event. The listener list is copied before
// calling out, so a listener may call On without deadlocking; the new listener only
// sees later emissions.
func (e *EventEmitterCallback[K, V]) Emit(event K, data V) {
	e.lock.RLock()
	listeners := append([]callback[V](nil), e.listeners[event]...)
	e.lock.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Len returns the number of listeners registered for event.
func (e *EventEmitterCallback[K, V]) Len(event K) int {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return len(e.listeners[event])
}

// Close removes all listeners.
func (e *EventEmitterCallback[K, V]) Close() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners = make(map[K][]callback[V])
}
