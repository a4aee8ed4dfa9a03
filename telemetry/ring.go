package telemetry

import "sync"

// EventRing is an append-only ring buffer of events. There is one writer;
// each subscriber reads through its own cursor. A subscriber that falls
// more than the capacity behind loses the oldest events and sees the loss
// in its Dropped count.
type EventRing struct {
	mu   sync.Mutex
	buf  []Event
	head uint64 // total events ever appended
}

// NewEventRing creates a ring holding up to capacity events.
func NewEventRing(capacity int) *EventRing {
	if capacity < 1 {
		capacity = 4096
	}
	return &EventRing{buf: make([]Event, capacity)}
}

// Append adds events.
func (r *EventRing) Append(evs ...Event) {
	r.mu.Lock()
	for _, e := range evs {
		r.buf[r.head%uint64(len(r.buf))] = e
		r.head++
	}
	r.mu.Unlock()
}

// Len returns the total number of events ever appended.
func (r *EventRing) Len() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head
}

// Subscribe returns a cursor positioned at the current end of the ring.
func (r *EventRing) Subscribe() *Cursor {
	return &Cursor{ring: r, pos: r.Len()}
}

// Cursor is one subscriber's read position.
type Cursor struct {
	ring    *EventRing
	pos     uint64
	dropped uint64
}

// Drain appends every event since the last drain to dst.
func (c *Cursor) Drain(dst []Event) []Event {
	r := c.ring
	r.mu.Lock()
	defer r.mu.Unlock()

	n := uint64(len(r.buf))
	if r.head-c.pos > n {
		c.dropped += r.head - c.pos - n
		c.pos = r.head - n
	}
	for ; c.pos < r.head; c.pos++ {
		dst = append(dst, r.buf[c.pos%n])
	}
	return dst
}

// Dropped returns how many events this subscriber missed by overrun.
func (c *Cursor) Dropped() uint64 { return c.dropped }
