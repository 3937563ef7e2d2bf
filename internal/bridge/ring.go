package bridge

import (
	"time"

	"tradebridge/internal/protocol"
)

// CopyEvent is one completed routing, kept for observer replay.
type CopyEvent struct {
	ProviderID string
	CopyerID   string
	Trade      protocol.TradeData
	At         time.Time
}

// eventRing keeps the most recent N copy events. Oldest entries are
// overwritten once the ring is full.
type eventRing struct {
	buf  []CopyEvent
	next int
	full bool
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 100
	}
	return &eventRing{buf: make([]CopyEvent, capacity)}
}

func (r *eventRing) append(ev CopyEvent) {
	r.buf[r.next] = ev
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// recent returns the retained events oldest first.
func (r *eventRing) recent() []CopyEvent {
	if !r.full {
		out := make([]CopyEvent, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]CopyEvent, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

func (r *eventRing) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}
