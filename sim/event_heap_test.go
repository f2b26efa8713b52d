package sim

import "testing"

// calendarEvent is a minimal Event for exercising the calendar directly.
type calendarEvent struct {
	eventBase
	fired *[]int
	id    int
}

func (e *calendarEvent) Execute() {
	*e.fired = append(*e.fired, e.id)
}

func newCalendarEvent(at SimTime, id int, fired *[]int) *calendarEvent {
	return &calendarEvent{eventBase: eventBase{time: at}, fired: fired, id: id}
}

// drain pops and executes every live entry, in calendar order.
func drain(c *eventCalendar) {
	for {
		entry := c.popNext()
		if entry == nil {
			return
		}
		entry.event.Execute()
	}
}

func TestCalendarOrdersByTime(t *testing.T) {
	// GIVEN events registered out of time order
	c := newEventCalendar()
	var fired []int
	c.register(newCalendarEvent(seconds(30), 3, &fired), seconds(0))
	c.register(newCalendarEvent(seconds(10), 1, &fired), seconds(0))
	c.register(newCalendarEvent(seconds(20), 2, &fired), seconds(0))

	// WHEN draining the calendar
	drain(c)

	// THEN events come off in ascending time order
	want := []int{1, 2, 3}
	for i, id := range want {
		if fired[i] != id {
			t.Errorf("execution order: got %v, want %v", fired, want)
			break
		}
	}
}

func TestCalendarSameTimeIsFIFO(t *testing.T) {
	// GIVEN several events registered for the same instant
	c := newEventCalendar()
	var fired []int
	for id := 1; id <= 5; id++ {
		c.register(newCalendarEvent(seconds(10), id, &fired), seconds(0))
	}

	// WHEN draining the calendar
	drain(c)

	// THEN ties break by registration order
	for i := 0; i < 5; i++ {
		if fired[i] != i+1 {
			t.Errorf("same-time order: got %v, want registration order", fired)
			break
		}
	}
}

func TestCalendarSameTimeOrdersByPriorityClass(t *testing.T) {
	// GIVEN same-instant events across priority classes, with the
	// later classes registered first
	c := newEventCalendar()
	var fired []int
	timeout := newCalendarEvent(seconds(10), 2, &fired)
	timeout.priority = priorityAcquireTimeout
	assign := newCalendarEvent(seconds(10), 3, &fired)
	assign.priority = priorityAssignment
	c.register(assign, seconds(0))
	c.register(timeout, seconds(0))
	c.register(newCalendarEvent(seconds(10), 1, &fired), seconds(0))

	// WHEN draining the calendar
	drain(c)

	// THEN the class outranks registration order: default events first,
	// then acquire timeouts, then assignment passes
	want := []int{1, 2, 3}
	for i, id := range want {
		if fired[i] != id {
			t.Errorf("same-time class order: got %v, want %v", fired, want)
			break
		}
	}
}

func TestCalendarDeregisterSkipsLazily(t *testing.T) {
	// GIVEN three registered events with the middle one deregistered
	c := newEventCalendar()
	var fired []int
	e1 := newCalendarEvent(seconds(1), 1, &fired)
	e2 := newCalendarEvent(seconds(2), 2, &fired)
	e3 := newCalendarEvent(seconds(3), 3, &fired)
	c.register(e1, seconds(0))
	c.register(e2, seconds(0))
	c.register(e3, seconds(0))
	c.deregister(e2)

	// THEN the stale entry is invisible to pending and to the drain
	if n := c.pending(); n != 2 {
		t.Errorf("pending after deregister: got %d, want 2", n)
	}
	drain(c)
	if len(fired) != 2 || fired[0] != 1 || fired[1] != 3 {
		t.Errorf("executed events: got %v, want [1 3]", fired)
	}
	if e2.IsRegistered() {
		t.Errorf("deregistered event still reports registered")
	}
}

func TestCalendarReregistrationGetsFreshSequence(t *testing.T) {
	// GIVEN an event deregistered and registered again at a new time
	c := newEventCalendar()
	var fired []int
	ev := newCalendarEvent(seconds(5), 1, &fired)
	c.register(ev, seconds(0))
	c.deregister(ev)
	ev.time = seconds(7)
	c.register(ev, seconds(0))

	// WHEN draining
	drain(c)

	// THEN only the second registration fires, at its own time
	if len(fired) != 1 {
		t.Errorf("re-registered event fired %d times, want 1", len(fired))
	}
	if c.pending() != 0 {
		t.Errorf("calendar not empty after drain")
	}
}

func TestCalendarRegistrationErrors(t *testing.T) {
	c := newEventCalendar()
	var fired []int
	ev := newCalendarEvent(seconds(5), 1, &fired)
	c.register(ev, seconds(0))

	// Registering an already registered event is a bug.
	expectPanic(t, "double register", func() { c.register(ev, seconds(0)) })

	// Registering in the past is a bug.
	past := newCalendarEvent(seconds(1), 2, &fired)
	expectPanic(t, "register in past", func() { c.register(past, seconds(2)) })

	// Deregistering an unregistered event is a bug.
	idle := newCalendarEvent(seconds(9), 3, &fired)
	expectPanic(t, "deregister unregistered", func() { c.deregister(idle) })
}

func TestCalendarPeekDoesNotConsume(t *testing.T) {
	// GIVEN one registered event
	c := newEventCalendar()
	var fired []int
	ev := newCalendarEvent(seconds(4), 1, &fired)
	c.register(ev, seconds(0))

	// WHEN peeking twice and then popping
	first := c.peek()
	second := c.peek()
	popped := c.popNext()

	// THEN peek returns the same live entry without removing it
	if first == nil || first != second {
		t.Errorf("peek consumed or changed the head entry")
	}
	if popped == nil || popped.event != Event(ev) {
		t.Errorf("popNext did not return the peeked event")
	}
	if c.popNext() != nil {
		t.Errorf("calendar should be empty after pop")
	}
}
