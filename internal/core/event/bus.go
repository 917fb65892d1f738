package event

import (
	"reflect"
	"sync"
)

type queued struct {
	key reflect.Type
	ev  any
}

// Bus is a double-buffered event bus. Events emitted in tick N are delivered
// in tick N+1, in emission order across all event types. Emit is safe from
// background goroutines (chunk writers).
type Bus struct {
	mu       sync.Mutex
	front    []queued
	back     []queued
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]queued, 0, 32),
		back:     make([]queued, 0, 32),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

func keyOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

// Emit queues an event into the back buffer.
func Emit[T any](b *Bus, event T) {
	k := keyOf[T]()
	b.mu.Lock()
	b.back = append(b.back, queued{key: k, ev: event})
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	k := keyOf[T]()
	b.mu.Lock()
	b.handlers[k] = append(b.handlers[k], func(ev any) { fn(ev.(T)) })
	b.mu.Unlock()
}

// SwapBuffers rotates back to front and clears the new back buffer.
// Called once at tick start.
func (b *Bus) SwapBuffers() {
	b.mu.Lock()
	b.front, b.back = b.back, b.front[:0]
	b.mu.Unlock()
}

// Pending reports how many events wait in the back buffer.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.back)
}

// DispatchAll delivers the front buffer to subscribers. Handlers may Emit;
// those events land in the back buffer for the next tick.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	pending := b.front
	b.front = nil
	handlers := make(map[reflect.Type][]func(any), len(b.handlers))
	for k, hs := range b.handlers {
		handlers[k] = hs
	}
	b.mu.Unlock()

	for _, q := range pending {
		for _, h := range handlers[q.key] {
			h(q.ev)
		}
	}

	b.mu.Lock()
	if b.front == nil {
		b.front = pending[:0]
	}
	b.mu.Unlock()
}
