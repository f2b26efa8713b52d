// Implements the pending-event calendar: a priority queue keyed by
// (time, priority class, sequence) with lazy removal of deregistered
// events.

package sim

import (
	"container/heap"
	"fmt"
)

// eventEntry is one heap slot. Entries are never removed from the heap
// eagerly: deregistration clears the event's registered flag and updates
// its sequence, and the stale entry is discarded when it surfaces.
type eventEntry struct {
	time     SimTime
	priority int
	seq      uint64
	event    Event
}

// stale reports whether this entry no longer describes the event's
// current registration.
func (e *eventEntry) stale() bool {
	b := e.event.base()
	return !b.registered || b.seq != e.seq
}

// eventHeap implements heap.Interface over calendar entries.
// Ordering: time, then priority class, then registration sequence. The
// sequence is assigned monotonically at registration, so events of one
// class scheduled for the same instant execute in registration order.
type eventHeap []*eventEntry

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if !h[i].time.Equal(h[j].time) {
		return h[i].time.Before(h[j].time)
	}
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*eventEntry))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// eventCalendar owns the pending events of one simulation run.
type eventCalendar struct {
	heap    eventHeap
	nextSeq uint64
}

func newEventCalendar() *eventCalendar {
	c := &eventCalendar{}
	heap.Init(&c.heap)
	return c
}

// register places ev on the calendar. The event must not already be
// registered, and its time must not precede now.
func (c *eventCalendar) register(ev Event, now SimTime) {
	b := ev.base()
	if b.registered {
		panic(fmt.Sprintf("event %T already registered at %v", ev, b.time))
	}
	if b.time.Before(now) {
		panic(fmt.Sprintf("event %T registered at %v, before current time %v", ev, b.time, now))
	}
	c.nextSeq++
	b.seq = c.nextSeq
	b.registered = true
	heap.Push(&c.heap, &eventEntry{time: b.time, priority: b.priority, seq: b.seq, event: ev})
}

// deregister cancels ev's pending occurrence. Deregistering an event that
// is not registered is a caller bug. The heap entry is left in place and
// skipped when it reaches the top.
func (c *eventCalendar) deregister(ev Event) {
	b := ev.base()
	if !b.registered {
		panic(fmt.Sprintf("deregistering event %T that is not registered", ev))
	}
	b.registered = false
}

// discardStale drops deregistered entries from the top of the heap.
func (c *eventCalendar) discardStale() {
	for len(c.heap) > 0 && c.heap[0].stale() {
		heap.Pop(&c.heap)
	}
}

// peek returns the next live entry without removing it, or nil if the
// calendar is empty.
func (c *eventCalendar) peek() *eventEntry {
	c.discardStale()
	if len(c.heap) == 0 {
		return nil
	}
	return c.heap[0]
}

// popNext removes and returns the next live entry, marking its event as
// no longer registered, or returns nil if the calendar is empty.
func (c *eventCalendar) popNext() *eventEntry {
	c.discardStale()
	if len(c.heap) == 0 {
		return nil
	}
	entry := heap.Pop(&c.heap).(*eventEntry)
	entry.event.base().registered = false
	return entry
}

// pending returns the number of live registrations. Linear in heap size;
// intended for tests and end-of-run reporting.
func (c *eventCalendar) pending() int {
	n := 0
	for _, e := range c.heap {
		if !e.stale() {
			n++
		}
	}
	return n
}
