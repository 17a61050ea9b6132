// Package latestslot implements a one-element, overwrite-on-put rendezvous
// cell (spec §4.C, Component C). It is the backpressure point between a
// producer that must never block (the observation pump) and a consumer that
// only ever wants the freshest value (a step/reset caller).
package latestslot

import "sync"

// Slot holds at most one value of type T. Put never blocks: a value that
// arrives before the previous one was collected displaces it. Get blocks
// until a value is available or the Slot is closed.
type Slot[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	value    T
	hasValue bool
	closed   bool

	puts      uint64
	displaced uint64
}

// New returns an empty, open Slot.
func New[T any]() *Slot[T] {
	s := &Slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Put stores value, overwriting whatever was previously held. displaced is
// true if a value was already present and unread, meaning the caller should
// account for a dropped observation (spec §7, DropDetected/QueueDisplaced).
// Put on a closed Slot is a no-op and returns displaced=false.
func (s *Slot[T]) Put(value T) (displaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.puts++
	displaced = s.hasValue
	if displaced {
		s.displaced++
	}
	s.value = value
	s.hasValue = true
	s.cond.Signal()
	return displaced
}

// Get blocks until a value is available, returning ok=false if the Slot is
// closed with nothing pending. Collecting a value clears it: a subsequent
// Get blocks again until the next Put.
func (s *Slot[T]) Get() (value T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.hasValue && !s.closed {
		s.cond.Wait()
	}
	if !s.hasValue {
		var zero T
		return zero, false
	}
	v := s.value
	var zero T
	s.value = zero
	s.hasValue = false
	return v, true
}

// TryGet returns the pending value without blocking, if any.
func (s *Slot[T]) TryGet() (value T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasValue {
		var zero T
		return zero, false
	}
	v := s.value
	var zero T
	s.value = zero
	s.hasValue = false
	return v, true
}

// Close marks the Slot closed and wakes any blocked Get. Further Puts are
// ignored; a Get already holding a pending value still returns it once, and
// only then starts returning ok=false.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (s *Slot[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats is a point-in-time snapshot of Slot activity counters.
type Stats struct {
	Puts      uint64
	Displaced uint64
}

// Snapshot returns a defensive copy of the Slot's activity counters.
func (s *Slot[T]) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Puts: s.puts, Displaced: s.displaced}
}
