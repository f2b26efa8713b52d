// Defines the Event interface and the registration state shared by all
// calendar events.

package sim

// Event is the unit of scheduled work on the simulation calendar. Concrete
// event types embed eventBase, which carries the registration state the
// calendar needs; this also confines Event implementations to this package.
type Event interface {
	// Execute performs the event's action. It is called exactly once per
	// registration, after the clock has advanced to the event's time.
	Execute()
	// Time returns the simulated time the event is scheduled for.
	Time() SimTime
	base() *eventBase
}

// Same-instant events execute in ascending priority class, then
// registration order. Most events use the default class; the later
// classes order the acquire-deadline race: a resume that frees capacity
// exactly at a request's deadline must run before the timeout event, and
// the timeout's last-chance fill before the regular assignment pass.
const (
	priorityDefault = iota
	priorityAcquireTimeout
	priorityAssignment
)

// eventBase carries an event's scheduled time and calendar registration
// state. An event is either registered (exactly one pending occurrence)
// or not; the sequence number identifies the current registration so that
// stale heap entries from a deregistered occurrence can be recognized.
type eventBase struct {
	time       SimTime
	priority   int
	seq        uint64
	registered bool
}

func (b *eventBase) Time() SimTime    { return b.time }
func (b *eventBase) base() *eventBase { return b }

// IsRegistered reports whether the event currently has a pending
// occurrence on the calendar.
func (b *eventBase) IsRegistered() bool { return b.registered }

// EventHandle is a generic calendar event wrapping a plain function.
// It is what Simulation.Schedule returns; model code holds it to
// deregister the pending occurrence.
type EventHandle struct {
	eventBase
	action func()
}

// Execute invokes the scheduled function.
func (h *EventHandle) Execute() { h.action() }
