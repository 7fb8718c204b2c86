package event

import (
	"reflect"
	"sync"

	"github.com/l1jgo/forge/internal/core/ecs"
)

type envelope struct {
	source ecs.EntityID
	event  any
}

type handler func(source ecs.EntityID, event any)

// Bus is a double-buffered event bus. Entity events are published into the
// back buffer while the world flushes them; Flush swaps and delivers. Events
// published by a handler during Flush wait for the next Flush.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []envelope
	back     []envelope
	handlers map[reflect.Type][]handler
	all      []handler
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]envelope, 0, 64),
		back:     make([]envelope, 0, 64),
		handlers: make(map[reflect.Type][]handler),
	}
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(source ecs.EntityID, event T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], func(source ecs.EntityID, ev any) {
		fn(source, ev.(T))
	})
}

// SubscribeAll registers a handler receiving every event.
func (b *Bus) SubscribeAll(fn func(source ecs.EntityID, event any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// Publish queues an event into the back buffer.
func (b *Bus) Publish(source ecs.EntityID, event any) {
	b.back = append(b.back, envelope{source: source, event: event})
}

// Pending returns the number of events waiting for the next Flush.
func (b *Bus) Pending() int { return len(b.back) }

// Flush rotates back→front and delivers the front buffer in publish order.
// It returns the number of events delivered.
func (b *Bus) Flush() int {
	b.front, b.back = b.back, b.front[:0]
	b.mu.Lock()
	all := b.all
	b.mu.Unlock()
	for _, env := range b.front {
		if env.event == nil {
			continue
		}
		b.mu.Lock()
		hs := b.handlers[reflect.TypeOf(env.event)]
		b.mu.Unlock()
		for _, h := range hs {
			h(env.source, env.event)
		}
		for _, h := range all {
			h(env.source, env.event)
		}
	}
	n := len(b.front)
	clear(b.front)
	b.front = b.front[:0]
	return n
}
