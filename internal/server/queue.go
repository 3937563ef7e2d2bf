package server

import "sync"

// outQueue is a bounded FIFO of outbound payloads. When full, the oldest
// message is dropped to make room: observers and copyers always see the
// freshest state, and the core never blocks on a slow connection.
type outQueue struct {
	mu      sync.Mutex
	buf     [][]byte
	max     int
	dropped uint64
	closed  bool
	wake    chan struct{}
}

func newOutQueue(max int) *outQueue {
	if max <= 0 {
		max = 64
	}
	return &outQueue{
		max:  max,
		wake: make(chan struct{}, 1),
	}
}

// push enqueues a payload, evicting the oldest entry on overflow. Returns
// false only when the queue is closed.
func (q *outQueue) push(payload []byte) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.buf) >= q.max {
		q.buf = q.buf[1:]
		q.dropped++
	}
	q.buf = append(q.buf, payload)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest payload, or returns nil when the queue is empty or
// closed. The wake channel signals new payloads to the writer loop.
func (q *outQueue) pop() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.buf) == 0 {
		return nil
	}
	payload := q.buf[0]
	q.buf = q.buf[1:]
	return payload
}

func (q *outQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.buf = nil
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *outQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
