package state

import "sync"

// Atom is one observable field of the store.
// Each atom has a single writer; any number of readers may Get or subscribe.
type Atom[T any] struct {
	mu    sync.RWMutex
	topic string
	value T
	bus   *Bus
}

func newAtom[T any](bus *Bus, topic string, initial T) *Atom[T] {
	return &Atom[T]{topic: topic, value: initial, bus: bus}
}

// Topic is the bus topic changes to this atom are published on.
func (a *Atom[T]) Topic() string { return a.topic }

// Get returns the current value.
func (a *Atom[T]) Get() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Set replaces the value and publishes the change.
func (a *Atom[T]) Set(v T) {
	a.mu.Lock()
	a.value = v
	a.mu.Unlock()
	a.bus.Publish(a.topic, v)
}

// Update applies fn to the current value atomically and publishes the result.
// fn must not mutate its argument in place; slices are shared with readers.
func (a *Atom[T]) Update(fn func(T) T) T {
	a.mu.Lock()
	next := fn(a.value)
	a.value = next
	a.mu.Unlock()
	a.bus.Publish(a.topic, next)
	return next
}
