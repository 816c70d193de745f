// Package queue implements PendingQueue, the multi-producer single-consumer
// FIFO an Association buffers envelopes into while it is still associating.
//
// The implementation is an intrusive lock-free MPSC linked list with a
// sync.Pool of nodes, the same shape the teacher runtime uses for its actor
// mailbox, generalized here from "dequeue one at a time" to also support an
// atomic full drain (DequeueAll), which is what CompleteAssociation and
// Terminate need.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/sact-io/sact/envelope"
)

type node struct {
	next atomic.Pointer[node]
	data envelope.TransportEnvelope
}

var nodePool = sync.Pool{New: func() any { return new(node) }}

// PendingQueue is an unbounded MPSC FIFO of envelopes. Enqueue is safe for
// concurrent callers; Dequeue/DequeueAll/Len/IsEmpty must be called by a
// single consumer at a time (the Association holding the queue, under its
// own mutex).
type PendingQueue struct {
	head atomic.Pointer[node]
	_    [64]byte
	tail atomic.Pointer[node]
	_    [64]byte
}

// New creates an empty PendingQueue.
func New() *PendingQueue {
	dummy := nodePool.Get().(*node)
	dummy.next.Store(nil)
	dummy.data = envelope.TransportEnvelope{}
	q := &PendingQueue{}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

// Enqueue appends env to the tail of the queue. Never blocks.
func (q *PendingQueue) Enqueue(env envelope.TransportEnvelope) {
	n := nodePool.Get().(*node)
	n.data = env
	n.next.Store(nil)
	prev := q.tail.Swap(n)
	prev.next.Store(n)
}

// Dequeue removes and returns the envelope at the head of the queue, and
// whether one was present.
func (q *PendingQueue) Dequeue() (envelope.TransportEnvelope, bool) {
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return envelope.TransportEnvelope{}, false
	}
	q.head.Store(next)
	value := next.data
	head.next.Store(nil)
	nodePool.Put(head)
	return value, true
}

// DequeueAll drains every envelope currently in the queue, in FIFO order.
// Used by CompleteAssociation (flush to channel) and Terminate (redirect to
// dead-letter sink) so the drain is a single atomic-looking step from the
// caller's perspective (the caller holds the Association's mutex around it).
func (q *PendingQueue) DequeueAll() []envelope.TransportEnvelope {
	var out []envelope.TransportEnvelope
	for {
		env, ok := q.Dequeue()
		if !ok {
			break
		}
		out = append(out, env)
	}
	return out
}

// IsEmpty reports whether the queue currently has no envelopes.
func (q *PendingQueue) IsEmpty() bool {
	head := q.head.Load()
	return head.next.Load() == nil
}

// Len returns a best-effort O(n) snapshot count.
func (q *PendingQueue) Len() int64 {
	h := q.head.Load()
	n := h.next.Load()
	var count int64
	for n != nil {
		count++
		n = n.next.Load()
	}
	return count
}
