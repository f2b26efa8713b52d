// Resource downtime. Downtime agents drive a resource's up/going-down/down
// state over the message substrate: the resource's assignment agent owns
// the transitions, interrupts holders, and stops filling requests while
// the resource is not up. Several agents may independently take down the
// same resource; it is up again only when all of them have brought it
// back.

package sim

import (
	"fmt"
)

// ResourceDown is the condition delivered to every process holding a
// resource when it goes down. Extended waits absorb it; plain waits
// surface it inside an *Interruption.
type ResourceDown struct {
	Resource *Resource
}

func (e *ResourceDown) Error() string {
	return fmt.Sprintf("resource %s is down", e.Resource.ElementID())
}

// ResourceUp is the condition delivered to holders when a down resource
// comes back up. TimeDown is the length of the outage.
type ResourceUp struct {
	Resource *Resource
	TimeDown SimTime
}

func (e *ResourceUp) Error() string {
	return fmt.Sprintf("resource %s is up after %v down", e.Resource.ElementID(), e.TimeDown)
}

// DowntimeAgent takes one resource down and brings it back up. It is
// usable directly by model code and embedded by the failure and scheduled
// agents. All state transitions go through the resource's assignment
// agent, so they interleave deterministically with assignment traffic.
type DowntimeAgent struct {
	Agent
	resource *Resource
}

// NewDowntimeAgent creates an agent managing downtime for r, which must
// already have an assignment agent.
func NewDowntimeAgent(sim *Simulation, r *Resource) *DowntimeAgent {
	a := &DowntimeAgent{}
	a.initDowntimeAgent(sim, r)
	return a
}

func (a *DowntimeAgent) initDowntimeAgent(sim *Simulation, r *Resource) {
	if r.agent == nil {
		panic(fmt.Sprintf("resource %s has no assignment agent; create it simple or pool it before attaching downtime", r.ElementID()))
	}
	a.initAgent(sim)
	a.resource = r
}

// Resource returns the resource this agent manages downtime for.
func (a *DowntimeAgent) Resource() *Resource { return a.resource }

// HasDown reports whether this agent currently has the resource down.
func (a *DowntimeAgent) HasDown() bool { return a.resource.downBy[a] }

// TakedownResource takes the resource down on this agent's behalf,
// interrupting every holder with *ResourceDown if the resource was up.
// An agent cannot take down a resource it already has down.
func (a *DowntimeAgent) TakedownResource() error {
	r := a.resource
	if r.downBy[a] {
		return fmt.Errorf("agent already has resource %s down", r.ElementID())
	}
	a.SendMessage(r.agent.agentBase(), MsgResourceDown, downtimeNotice{resource: r, agent: a})
	return nil
}

// BringupResource reverses this agent's takedown. When the last agent
// holding the resource down brings it up, holders are interrupted with
// *ResourceUp and queued requests become fillable again. An agent can
// only bring up a resource it has down.
func (a *DowntimeAgent) BringupResource() error {
	r := a.resource
	if !r.downBy[a] {
		return fmt.Errorf("agent does not have resource %s down", r.ElementID())
	}
	a.SendMessage(r.agent.agentBase(), MsgResourceUp, downtimeNotice{resource: r, agent: a})
	return nil
}

// RequestGoingDown marks the resource going down without interrupting its
// holders: no new assignments are made, and the takedown completes when
// the resource goes idle, or when the optional timeout elapses, whichever
// comes first. The resource must be up.
func (a *DowntimeAgent) RequestGoingDown(timeout ...SimTime) error {
	r := a.resource
	if r.IsDown() || r.IsGoingDown() {
		return fmt.Errorf("resource %s is not up", r.ElementID())
	}
	a.SendMessage(r.agent.agentBase(), MsgResourceGoingDown, downtimeNotice{resource: r, agent: a})
	if len(timeout) > 0 {
		if timeout[0].Value() < 0 {
			panic(fmt.Sprintf("negative going-down timeout %v", timeout[0]))
		}
		a.simulation.Schedule(a.simulation.Now().Add(timeout[0]), func() {
			if r.goingDown && r.goingDownBy == a {
				if err := a.TakedownResource(); err != nil {
					panic(fmt.Sprintf("going-down timeout on %s: %v", r.ElementID(), err))
				}
			}
		})
	}
	return nil
}

// FailureAgent subjects a resource to random failures: time-to-failure
// and time-to-repair are drawn from samplers. The failure clock starts at
// run start and re-arms after each repair.
type FailureAgent struct {
	DowntimeAgent
	timeToFailure Sampler
	timeToRepair  Sampler
}

// NewFailureAgent attaches random failure behavior to a managed resource.
func NewFailureAgent(sim *Simulation, r *Resource, timeToFailure, timeToRepair Sampler) *FailureAgent {
	if timeToFailure == nil || timeToRepair == nil {
		panic("failure agent requires time-to-failure and time-to-repair samplers")
	}
	f := &FailureAgent{timeToFailure: timeToFailure, timeToRepair: timeToRepair}
	f.initDowntimeAgent(sim, r)
	sim.addFinalizer(f.scheduleFailure)
	return f
}

func (f *FailureAgent) scheduleFailure() {
	at := f.simulation.Now().Add(f.timeToFailure())
	f.simulation.register(&resourceFailureEvent{eventBase: eventBase{time: at}, agent: f})
}

type resourceFailureEvent struct {
	eventBase
	agent *FailureAgent
}

func (e *resourceFailureEvent) Execute() {
	f := e.agent
	if err := f.TakedownResource(); err != nil {
		panic(fmt.Sprintf("failure of %s: %v", f.resource.ElementID(), err))
	}
	at := f.simulation.Now().Add(f.timeToRepair())
	f.simulation.register(&resourceRepairEvent{eventBase: eventBase{time: at}, agent: f})
}

type resourceRepairEvent struct {
	eventBase
	agent *FailureAgent
}

func (e *resourceRepairEvent) Execute() {
	f := e.agent
	if err := f.BringupResource(); err != nil {
		panic(fmt.Sprintf("repair of %s: %v", f.resource.ElementID(), err))
	}
	f.scheduleFailure()
}

// DowntimeInterval is one outage within a schedule cycle, defined by its
// start offset from the cycle start and its length.
type DowntimeInterval struct {
	Start  SimTime
	Length SimTime
}

// DowntimeSchedule describes recurring outages: the intervals repeat
// every CycleLength, indefinitely.
type DowntimeSchedule struct {
	CycleLength SimTime
	Intervals   []DowntimeInterval
}

// NewDowntimeSchedule validates and builds a schedule. Intervals must be
// ordered, non-overlapping, of positive length, start within the cycle,
// and end at or before the cycle end.
func NewDowntimeSchedule(cycleLength SimTime, intervals ...DowntimeInterval) *DowntimeSchedule {
	if cycleLength.Value() <= 0 {
		panic(fmt.Sprintf("non-positive schedule cycle length %v", cycleLength))
	}
	if len(intervals) == 0 {
		panic("downtime schedule requires at least one interval")
	}
	var prevEnd SimTime
	for i, iv := range intervals {
		if iv.Start.Value() < 0 {
			panic(fmt.Sprintf("interval %d starts at negative time %v", i, iv.Start))
		}
		if !iv.Start.Before(cycleLength) {
			panic(fmt.Sprintf("interval %d starts at %v, outside the %v cycle", i, iv.Start, cycleLength))
		}
		if iv.Length.Value() <= 0 {
			panic(fmt.Sprintf("interval %d has non-positive length %v", i, iv.Length))
		}
		end := iv.Start.Add(iv.Length)
		if cycleLength.Before(end) {
			panic(fmt.Sprintf("interval %d ends at %v, after the %v cycle end", i, end, cycleLength))
		}
		if i > 0 && !iv.Start.After(prevEnd) {
			panic(fmt.Sprintf("interval %d starts at %v, overlapping the previous interval ending at %v", i, iv.Start, prevEnd))
		}
		prevEnd = end
	}
	return &DowntimeSchedule{CycleLength: cycleLength, Intervals: intervals}
}

// ScheduledDowntimeAgent takes its resource down and back up per a
// repeating schedule. Intervals whose start has already passed when the
// run begins are skipped.
type ScheduledDowntimeAgent struct {
	DowntimeAgent
	schedule   *DowntimeSchedule
	cycleStart SimTime
	nextIdx    int
}

// NewScheduledDowntimeAgent attaches schedule-driven downtime to a
// managed resource.
func NewScheduledDowntimeAgent(sim *Simulation, r *Resource, schedule *DowntimeSchedule) *ScheduledDowntimeAgent {
	if schedule == nil {
		panic("scheduled downtime agent requires a schedule")
	}
	a := &ScheduledDowntimeAgent{schedule: schedule}
	a.initDowntimeAgent(sim, r)
	sim.addFinalizer(a.scheduleNextTakedown)
	return a
}

// nextInterval returns the next interval's absolute takedown and bringup
// times, advancing the schedule cursor.
func (a *ScheduledDowntimeAgent) nextInterval() (SimTime, SimTime) {
	iv := a.schedule.Intervals[a.nextIdx]
	down := a.cycleStart.Add(iv.Start)
	up := down.Add(iv.Length)
	a.nextIdx++
	if a.nextIdx == len(a.schedule.Intervals) {
		a.nextIdx = 0
		a.cycleStart = a.cycleStart.Add(a.schedule.CycleLength)
	}
	return down, up
}

func (a *ScheduledDowntimeAgent) scheduleNextTakedown() {
	down, up := a.nextInterval()
	for down.Before(a.simulation.Now()) {
		down, up = a.nextInterval()
	}
	a.simulation.register(&scheduledTakedownEvent{
		eventBase: eventBase{time: down},
		agent:     a,
		upAt:      up,
	})
}

type scheduledTakedownEvent struct {
	eventBase
	agent *ScheduledDowntimeAgent
	upAt  SimTime
}

func (e *scheduledTakedownEvent) Execute() {
	a := e.agent
	if err := a.TakedownResource(); err != nil {
		panic(fmt.Sprintf("scheduled takedown of %s: %v", a.resource.ElementID(), err))
	}
	a.simulation.register(&scheduledBringupEvent{eventBase: eventBase{time: e.upAt}, agent: a})
}

type scheduledBringupEvent struct {
	eventBase
	agent *ScheduledDowntimeAgent
}

func (e *scheduledBringupEvent) Execute() {
	a := e.agent
	if err := a.BringupResource(); err != nil {
		panic(fmt.Sprintf("scheduled bringup of %s: %v", a.resource.ElementID(), err))
	}
	a.scheduleNextTakedown()
}
