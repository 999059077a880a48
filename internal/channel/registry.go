package channel

import (
	"encoding/json"
	"log"
	"sync"
)

// Handler receives the raw payload of one inbound message.
type Handler func(payload json.RawMessage)

// Registry fans inbound messages out to per-topic handlers. Handlers can be
// added and removed while the read loop is dispatching.
type Registry struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]map[int]Handler),
	}
}

// Subscribe registers a handler for a topic and returns a func that removes
// exactly that handler.
func (r *Registry) Subscribe(topic string, fn Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers[topic] == nil {
		r.handlers[topic] = make(map[int]Handler)
	}
	id := r.nextID
	r.nextID++
	r.handlers[topic][id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers[topic], id)
		if len(r.handlers[topic]) == 0 {
			delete(r.handlers, topic)
		}
	}
}

// Dispatch delivers a payload to every handler subscribed to the topic.
// Handlers run outside the registry lock so they may subscribe or unsubscribe.
func (r *Registry) Dispatch(topic string, payload json.RawMessage) {
	r.mu.RLock()
	fns := make([]Handler, 0, len(r.handlers[topic]))
	for _, fn := range r.handlers[topic] {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	if len(fns) == 0 {
		log.Printf("No handler for message type '%s'", topic)
		return
	}
	for _, fn := range fns {
		fn(payload)
	}
}

// HandlerCount reports how many handlers a topic currently has.
func (r *Registry) HandlerCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[topic])
}
