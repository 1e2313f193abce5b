package guestws

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map"
)

// NotificationHandler receives one Notification per call.
type NotificationHandler func(Notification)

// Registration is the handle returned by Register. Its only operation is Unregister.
type Registration struct {
	id       uint64
	registry *ConsumerRegistry
	once     sync.Once
}

// Unregister removes exactly the registration this handle was issued for. Calling it
// more than once is a no-op.
func (r *Registration) Unregister() {
	if r == nil || r.registry == nil {
		return
	}
	r.once.Do(func() {
		r.registry.remove(r.id)
	})
}

// ConsumerRegistry holds the active notification handlers in registration order. The
// same function may be registered several times, each registration gets its own handle
// and its own delivery.
type ConsumerRegistry struct {
	logger Logger

	mu       sync.Mutex
	nextID   uint64
	handlers *orderedmap.OrderedMap
}

func NewConsumerRegistry(logger Logger) *ConsumerRegistry {
	return &ConsumerRegistry{
		logger:   logger.WithField("component", "consumers"),
		handlers: orderedmap.New(),
	}
}

func (r *ConsumerRegistry) Register(handler NotificationHandler) *Registration {
	if handler == nil {
		return &Registration{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.handlers.Set(r.nextID, handler)

	return &Registration{id: r.nextID, registry: r}
}

func (r *ConsumerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.handlers.Len()
}

// Dispatch hands n to every handler registered at the time of the call, in order.
// Handlers may register or unregister from inside the callback; those changes apply to
// the next dispatch. A panicking handler is logged and skipped. Returns the number of
// handlers that completed normally.
func (r *ConsumerRegistry) Dispatch(n Notification) int {
	delivered := 0
	for _, handler := range r.snapshot() {
		if r.invoke(handler, n) {
			delivered++
		}
	}
	return delivered
}

func (r *ConsumerRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers.Delete(id)
}

func (r *ConsumerRegistry) snapshot() []NotificationHandler {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlers := make([]NotificationHandler, 0, r.handlers.Len())
	for pair := r.handlers.Oldest(); pair != nil; pair = pair.Next() {
		handlers = append(handlers, pair.Value.(NotificationHandler))
	}
	return handlers
}

func (r *ConsumerRegistry) invoke(handler NotificationHandler, n Notification) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("consumer panicked handling %s notification: %v", n.Kind, rec)
			ok = false
		}
	}()

	handler(n)
	return true
}
