package controller

import (
	"sync"

	"mcio.dev/core/codec"
)

// actionQueue is the unbounded FIFO the Controller enqueues ActionPackets
// onto (spec §4.D). Dequeue blocks until an item is queued or the queue is
// closed; closing delivers a final zero-value, ok=false to unblock
// ActionPump without needing a sentinel value threaded through the packet
// type itself.
type actionQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*codec.ActionPacket
	closed bool
}

func newActionQueue() *actionQueue {
	q := &actionQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends pkt to the tail of the queue. Never blocks.
func (q *actionQueue) Enqueue(pkt *codec.ActionPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, pkt)
	q.cond.Signal()
}

// Dequeue blocks until an item is available or the queue is closed.
func (q *actionQueue) Dequeue() (*codec.ActionPacket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	pkt := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return pkt, true
}

// Close wakes any blocked Dequeue and causes subsequent Dequeues to return
// immediately with ok=false once drained.
func (q *actionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the number of items currently queued, for diagnostics.
func (q *actionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
