// Simulation is the explicit context one model run executes against: the
// virtual clock, the event calendar, the element registry, the random
// streams and the run loop. Nothing in this package is process-global, so
// independent runs are independent Simulation values.

package sim

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hsklein/simprovise/sim/trace"
)

// Simulation owns all mutable state of one simulation run.
type Simulation struct {
	// ID identifies this run in logs and trace output.
	ID uuid.UUID

	now      SimTime
	calendar *eventCalendar
	rng      *PartitionedRNG

	root     *Location
	elements map[string]Element
	order    []Element

	// current is the process whose body is executing right now; nil while
	// the run loop itself (or model setup code) has control.
	current *Process

	finalized    bool
	initializers []func()
	finalizers   []func()

	eventCount int
	nextMsgID  uint64
	tracer     *trace.Trace
}

// NewSimulation returns an empty model context. The seed drives every
// random stream of the run; identical seeds and identical model logic
// reproduce identical runs.
func NewSimulation(seed uint64) *Simulation {
	s := &Simulation{
		ID:       uuid.New(),
		calendar: newEventCalendar(),
		rng:      NewPartitionedRNG(seed),
		elements: make(map[string]Element),
	}
	s.root = newRootLocation(s)
	return s
}

// Now returns the current simulated time.
func (s *Simulation) Now() SimTime { return s.now }

// Root returns the root location, the default parent of top-level static
// objects. It is not an ordinary location: objects cannot move to it and
// it collects no statistics.
func (s *Simulation) Root() *Location { return s.root }

// Stream returns the deterministic random source for the given stream
// number, for use with the distribution constructors in this package.
func (s *Simulation) Stream(n int) rand.Source { return s.rng.Stream(n) }

// Schedule registers action to run at the given simulated time and
// returns its handle, usable with Cancel while the occurrence is pending.
// It panics if at precedes the current time.
func (s *Simulation) Schedule(at SimTime, action func()) *EventHandle {
	h := &EventHandle{eventBase: eventBase{time: at}, action: action}
	s.calendar.register(h, s.now)
	return h
}

// Cancel deregisters a pending event. Cancelling an event that is not
// registered panics; double cancellation is a caller bug, not a no-op.
func (s *Simulation) Cancel(ev Event) { s.calendar.deregister(ev) }

// register places ev on the calendar at its own time.
func (s *Simulation) register(ev Event) { s.calendar.register(ev, s.now) }

// deregister cancels ev's pending occurrence.
func (s *Simulation) deregister(ev Event) { s.calendar.deregister(ev) }

// registerElement adds el to the run's element registry. Element IDs are
// unique per Simulation.
func (s *Simulation) registerElement(el Element) {
	id := el.ElementID()
	if _, exists := s.elements[id]; exists {
		panic(fmt.Sprintf("element %q is already registered", id))
	}
	s.elements[id] = el
	s.order = append(s.order, el)
}

// Element returns the registered element with the given ID, or nil.
func (s *Simulation) Element(id string) Element { return s.elements[id] }

// Elements returns all registered elements in creation order.
func (s *Simulation) Elements() []Element {
	out := make([]Element, len(s.order))
	copy(out, s.order)
	return out
}

// RegisterInitializer adds a hook invoked exactly once, in registration
// order, when the model is finalized at the start of the first Run call.
func (s *Simulation) RegisterInitializer(fn func()) {
	s.initializers = append(s.initializers, fn)
}

// addFinalizer queues run-start initialization for kernel objects that
// need the calendar and random streams live (entity sources, downtime
// agents).
func (s *Simulation) addFinalizer(fn func()) {
	s.finalizers = append(s.finalizers, fn)
}

// finalizeModel runs once, before the first event is processed: validates
// every location's entry point, runs model initializer hooks, then lets
// sources and downtime agents schedule their first events.
func (s *Simulation) finalizeModel() {
	if s.finalized {
		return
	}
	s.finalized = true

	for _, el := range s.order {
		if loc, ok := el.(*Location); ok {
			if _, err := loc.EntryPoint(); err != nil {
				panic(fmt.Sprintf("invalid model: %v", err))
			}
		}
	}
	for _, fn := range s.initializers {
		fn()
	}
	for _, fn := range s.finalizers {
		fn()
	}
	logrus.Infof("model finalized: %d elements, run %s", len(s.order), s.ID)
}

// Run processes events for the given length of simulated time, measured
// from the current clock, and returns the number of events dispatched.
func (s *Simulation) Run(length SimTime) int {
	return s.RunUntil(s.now.Add(length))
}

// RunUntil processes events up to and including the given horizon, then
// advances the clock to the horizon. An event scheduled beyond the
// horizon stays registered for a later call; the clock never runs
// backwards, and a horizon before the current time panics.
func (s *Simulation) RunUntil(horizon SimTime) int {
	if horizon.Before(s.now) {
		panic(fmt.Sprintf("run horizon %v precedes current time %v", horizon, s.now))
	}
	n := s.processEvents(&horizon)
	if horizon.After(s.now) {
		s.now = horizon
	}
	return n
}

// RunToCompletion processes events until the calendar is empty and
// returns the number of events dispatched. Models with self-perpetuating
// event chains (entity sources, downtime schedules) never complete; use
// Run or RunUntil for those.
func (s *Simulation) RunToCompletion() int {
	return s.processEvents(nil)
}

func (s *Simulation) processEvents(horizon *SimTime) int {
	s.finalizeModel()
	n := 0
	for {
		next := s.calendar.peek()
		if next == nil {
			break
		}
		if horizon != nil && next.time.After(*horizon) {
			break
		}
		entry := s.calendar.popNext()
		if entry.time.Before(s.now) {
			panic(fmt.Sprintf("clock went backwards: %v < %v", entry.time, s.now))
		}
		s.now = entry.time
		logrus.Debugf("[t=%v] executing %T", s.now, entry.event)
		entry.event.Execute()
		n++
	}
	s.eventCount += n
	logrus.Infof("run %s: processed %d events, clock at %v", s.ID, n, s.now)
	return n
}

// EventCount returns the total number of events dispatched so far.
func (s *Simulation) EventCount() int { return s.eventCount }

// PendingEvents returns the number of live registrations on the calendar.
func (s *Simulation) PendingEvents() int { return s.calendar.pending() }

// CurrentProcess returns the process whose body is executing, or nil when
// control is in the run loop or model setup code.
func (s *Simulation) CurrentProcess() *Process { return s.current }

// SetTracer attaches an activity tracer. Passing nil disables tracing.
func (s *Simulation) SetTracer(t *trace.Trace) { s.tracer = t }

// Tracer returns the attached activity tracer, or nil.
func (s *Simulation) Tracer() *trace.Trace { return s.tracer }

// traceEvent records one activity trace line if tracing is attached.
func (s *Simulation) traceEvent(object string, action trace.Action, args ...string) {
	if s.tracer == nil {
		return
	}
	s.tracer.Record(s.now.Seconds(), object, action, args)
}

// nextMessageID hands out run-unique message identifiers.
func (s *Simulation) nextMessageID() uint64 {
	s.nextMsgID++
	return s.nextMsgID
}
