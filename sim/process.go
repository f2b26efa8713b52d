// Process execution: each simulation process runs its body on a dedicated
// goroutine and hands control back and forth with the run loop over a pair
// of unbuffered channels. Exactly one goroutine is ever runnable; the
// kernel goroutine blocks while a process body runs, and the body blocks
// whenever it waits. All wakeups travel through calendar events, so
// ordering is governed entirely by the event calendar.

package sim

import (
	"errors"
	"fmt"

	"github.com/hsklein/simprovise/sim/trace"
)

type processState int

const (
	stateCreated processState = iota
	stateRunning
	stateWaiting
	stateTerminated
)

type waitKind int

const (
	waitNone waitKind = iota
	waitTime
	waitNotified
	waitResponse
)

// ProcessBody is the model logic a process executes, from entity creation
// to completion. A non-nil return aborts the run: bodies are expected to
// recover from the conditions they provoke (timeouts, downtime) and
// return nil.
type ProcessBody func(p *Process) error

// Process is one unit of model logic executing in virtual time on behalf
// of an entity. Its methods must be called from its own body unless noted
// otherwise.
type Process struct {
	sim    *Simulation
	entity *Entity
	body   ProcessBody

	state    processState
	waitKind waitKind

	// in carries control to the process goroutine: nil resumes the wait
	// normally, non-nil delivers an interruption. out signals the yield
	// back and is closed when the body finishes.
	in  chan error
	out chan struct{}

	finished bool
	trap     any
	bodyErr  error

	resumeEvent    *processResumeEvent
	interruptEvent *processInterruptEvent

	assignments []*ResourceAssignment
}

// NewProcess pairs model logic with the entity it runs on behalf of.
// Entity sources create their processes this way; models that generate
// entities by hand may do the same.
func NewProcess(sim *Simulation, entity *Entity, body ProcessBody) *Process {
	if entity == nil {
		panic("process requires an entity")
	}
	if body == nil {
		panic("process requires a body")
	}
	p := &Process{sim: sim, entity: entity, body: body}
	entity.process = p
	return p
}

// Entity returns the entity this process runs on behalf of.
func (p *Process) Entity() *Entity { return p.entity }

// Simulation returns the run context this process belongs to.
func (p *Process) Simulation() *Simulation { return p.sim }

// HasRun reports whether the process has started executing.
func (p *Process) HasRun() bool { return p.state != stateCreated }

// IsFinished reports whether the process body has completed.
func (p *Process) IsFinished() bool { return p.state == stateTerminated }

// Start launches the process body and runs it synchronously up to its
// first wait (or to completion). It panics if the process was already
// started.
func (p *Process) Start() {
	if p.state != stateCreated {
		panic("process started twice")
	}
	p.in = make(chan error)
	p.out = make(chan struct{})
	go p.run()
	p.dispatch(nil)
}

// run is the process goroutine. It waits for the first dispatch, executes
// the body, then closes out to hand control back for the last time.
func (p *Process) run() {
	defer func() {
		if r := recover(); r != nil {
			p.trap = r
		}
		p.finished = true
		close(p.out)
	}()
	<-p.in
	p.bodyErr = p.body(p)
}

// dispatch transfers control to the process goroutine, delivering err as
// the result of its current wait, and blocks until the body yields again
// or finishes. Panics raised inside the body resurface here, on the
// kernel side.
func (p *Process) dispatch(err error) {
	prev := p.sim.current
	p.sim.current = p
	p.state = stateRunning
	p.in <- err
	<-p.out
	p.sim.current = prev
	if p.finished {
		p.terminate()
	}
}

// yield suspends the body until the next dispatch and returns the value
// it delivers. Called on the process goroutine only.
func (p *Process) yield() error {
	p.out <- struct{}{}
	return <-p.in
}

// terminate finishes the process after its body returned, enforcing the
// end-of-process invariants.
func (p *Process) terminate() {
	p.state = stateTerminated
	if p.trap != nil {
		panic(p.trap)
	}
	if p.bodyErr != nil {
		panic(fmt.Sprintf("process for %s failed at %v: %v", p.entity, p.sim.Now(), p.bodyErr))
	}
	for _, a := range p.assignments {
		if a.Count() > 0 {
			panic(fmt.Sprintf("process for %s finished still holding %d of %s",
				p.entity, a.Count(), a.AgentName()))
		}
	}
}

// assertCurrent panics unless this process is the one executing.
func (p *Process) assertCurrent(op string) {
	if p.sim.current != p {
		panic(fmt.Sprintf("%s called outside the process's own execution", op))
	}
}

// WaitOption tunes a timed wait.
type WaitOption int

// ExtendThroughDowntime hides assigned-resource outages from the wait:
// downtime interruptions pause the wait, which resumes for the remaining
// duration once every resource the process holds is up again. The caller
// observes the nominal duration plus the outage extensions.
const ExtendThroughDowntime WaitOption = iota + 1

// WaitFor suspends the process for the given length of simulated time.
// It returns nil after the full duration has elapsed, or an *Interruption
// carrying the remaining time if the wait was cut short. Panics on a
// negative duration.
func (p *Process) WaitFor(d SimTime, opts ...WaitOption) error {
	p.assertCurrent("WaitFor")
	if d.Value() < 0 {
		panic(fmt.Sprintf("negative wait duration %v", d))
	}
	for _, opt := range opts {
		if opt == ExtendThroughDowntime {
			return p.waitForExtended(d)
		}
	}
	return p.waitFor(d)
}

// waitFor is the plain timed wait: any interruption surfaces.
func (p *Process) waitFor(d SimTime) error {
	wakeAt := p.sim.Now().Add(d)
	p.scheduleResumeAt(wakeAt)
	p.waitKind = waitTime
	err := p.suspend()
	p.waitKind = waitNone
	if err != nil {
		return &Interruption{Reason: err, Remaining: wakeAt.Sub(p.sim.Now())}
	}
	return nil
}

// waitForExtended is the timed wait with downtime extension.
// Interruptions other than resource downtime surface as from waitFor.
func (p *Process) waitForExtended(d SimTime) error {
	if err := p.waitForAssignedUp(); err != nil {
		return err
	}
	remaining := d
	for remaining.Value() > 0 {
		err := p.waitFor(remaining)
		if err == nil {
			return nil
		}
		var intr *Interruption
		if !errors.As(err, &intr) {
			return err
		}
		var down *ResourceDown
		if !errors.As(intr.Reason, &down) {
			return err
		}
		remaining = intr.Remaining
		if err := p.waitForAssignedUp(); err != nil {
			return err
		}
	}
	return nil
}

// waitForAssignedUp blocks until no resource held by this process is down,
// consuming the ResourceDown/ResourceUp interruptions that downtime agents
// deliver to holders. Any other interruption is returned.
func (p *Process) waitForAssignedUp() error {
	down := make(map[*Resource]bool)
	for _, a := range p.assignments {
		for _, r := range a.Resources() {
			if r.IsDown() {
				down[r] = true
			}
		}
	}
	for len(down) > 0 {
		p.waitKind = waitNotified
		err := p.suspend()
		p.waitKind = waitNone
		if err == nil {
			continue
		}
		var d *ResourceDown
		var u *ResourceUp
		switch {
		case errors.As(err, &d):
			down[d.Resource] = true
		case errors.As(err, &u):
			delete(down, u.Resource)
		default:
			return err
		}
	}
	return nil
}

// waitUntilNotified suspends until another object resumes or interrupts
// the process; a non-nil return is the interruption reason.
func (p *Process) waitUntilNotified() error {
	p.assertCurrent("wait")
	p.waitKind = waitNotified
	err := p.suspend()
	p.waitKind = waitNone
	return err
}

// suspend yields control and normalizes state around the wait.
func (p *Process) suspend() error {
	p.state = stateWaiting
	err := p.yield()
	return err
}

// resume wakes a waiting process through the calendar: nil schedules a
// normal resume at the current time, non-nil an interruption.
func (p *Process) resume(err error) {
	if err != nil {
		p.deliverInterrupt(err)
		return
	}
	p.scheduleResumeAt(p.sim.Now())
}

// scheduleResumeAt registers the process's wakeup event. A process has at
// most one pending resume.
func (p *Process) scheduleResumeAt(at SimTime) {
	if p.resumeEvent != nil {
		panic(fmt.Sprintf("process for %s already has a pending resume", p.entity))
	}
	ev := &processResumeEvent{eventBase: eventBase{time: at}, process: p}
	p.sim.register(ev)
	p.resumeEvent = ev
}

// deliverInterrupt registers an interruption event for a waiting process.
// Concurrent pending interruptions on one process are an error.
func (p *Process) deliverInterrupt(reason error) {
	if p.state != stateWaiting {
		panic(fmt.Sprintf("interrupting process for %s, which is not waiting", p.entity))
	}
	if p.interruptEvent != nil {
		panic(fmt.Sprintf("process for %s already has a pending interruption", p.entity))
	}
	ev := &processInterruptEvent{
		eventBase: eventBase{time: p.sim.Now()},
		process:   p,
		reason:    reason,
	}
	p.sim.register(ev)
	p.interruptEvent = ev
}

// Interrupt cuts short another process's timed wait, delivering reason
// through the wait's error return. Only a process suspended in WaitFor
// can be interrupted; interrupting any other wait, the current process,
// or a process with an interruption already pending returns an error.
func (p *Process) Interrupt(reason error) error {
	if reason == nil {
		return errors.New("interrupt reason must not be nil")
	}
	if p.sim.current == p {
		return errors.New("process cannot interrupt itself")
	}
	if p.state != stateWaiting || p.waitKind != waitTime {
		return fmt.Errorf("process for %s is not in an interruptible timed wait", p.entity)
	}
	if p.interruptEvent != nil {
		return fmt.Errorf("process for %s already has a pending interruption", p.entity)
	}
	p.deliverInterrupt(reason)
	return nil
}

// processResumeEvent wakes a waiting process normally. A resume executing
// at the same instant as a pending interruption wins: the interruption is
// discarded.
type processResumeEvent struct {
	eventBase
	process *Process
}

func (e *processResumeEvent) Execute() {
	p := e.process
	p.resumeEvent = nil
	if p.interruptEvent != nil {
		p.sim.deregister(p.interruptEvent)
		p.interruptEvent = nil
	}
	p.dispatch(nil)
}

// processInterruptEvent delivers an interruption to a waiting process.
// If a resume is pending at the same instant the interruption is dropped;
// a later pending resume is cancelled, since the interruption preempts
// the remainder of the wait.
type processInterruptEvent struct {
	eventBase
	process *Process
	reason  error
}

func (e *processInterruptEvent) Execute() {
	p := e.process
	p.interruptEvent = nil
	if p.resumeEvent != nil {
		if p.resumeEvent.time.Equal(e.time) {
			return
		}
		p.sim.deregister(p.resumeEvent)
		p.resumeEvent = nil
	}
	p.dispatch(e.reason)
}

// Interruption is the error a cut-short WaitFor returns. Reason is the
// interrupting condition (available via errors.As through Unwrap) and
// Remaining is the wait time that had not yet elapsed.
type Interruption struct {
	Reason    error
	Remaining SimTime
}

func (e *Interruption) Error() string {
	return fmt.Sprintf("wait interrupted with %v remaining: %v", e.Remaining, e.Reason)
}

func (e *Interruption) Unwrap() error { return e.Reason }

// AcquireTimeout is the error an acquire call with a timeout returns when
// the request could not be filled in time.
type AcquireTimeout struct {
	Timeout      SimTime
	NumRequested int
}

func (e *AcquireTimeout) Error() string {
	return fmt.Sprintf("request for %d resource(s) timed out after %v", e.NumRequested, e.Timeout)
}

// Acquire requests n units of capacity from a resource, suspending until
// the resource's assignment agent fills the request. The returned
// assignment must eventually be released. The resource must be managed,
// either directly (simple resource) or by a pool.
func (p *Process) Acquire(r *Resource, n int) (*ResourceAssignment, error) {
	return p.acquire(r.assignmentAgent(), requestSpec{resource: r, num: n}, nil)
}

// AcquireWithTimeout is Acquire with a deadline: if the request is still
// unfilled after timeout, it is cancelled and an *AcquireTimeout
// returned. A zero timeout means now or never. Panics on a negative
// timeout.
func (p *Process) AcquireWithTimeout(r *Resource, n int, timeout SimTime) (*ResourceAssignment, error) {
	return p.acquire(r.assignmentAgent(), requestSpec{resource: r, num: n}, &timeout)
}

// AcquireFrom requests n units of any resource of the given kind from a
// pool. An empty kind matches every pooled resource.
func (p *Process) AcquireFrom(pool *ResourcePool, kind string, n int) (*ResourceAssignment, error) {
	return p.acquire(pool, requestSpec{pool: pool, kind: kind, num: n}, nil)
}

// AcquireFromWithTimeout is AcquireFrom with a deadline, as in
// AcquireWithTimeout.
func (p *Process) AcquireFromWithTimeout(pool *ResourcePool, kind string, n int, timeout SimTime) (*ResourceAssignment, error) {
	return p.acquire(pool, requestSpec{pool: pool, kind: kind, num: n}, &timeout)
}

func (p *Process) acquire(agent assignmentAgent, spec requestSpec, timeout *SimTime) (*ResourceAssignment, error) {
	p.assertCurrent("Acquire")
	if agent == nil {
		panic("resource is not managed by an assignment agent; pool it or create it as a simple resource")
	}
	if spec.num < 1 {
		panic(fmt.Sprintf("invalid resource request for %d units", spec.num))
	}
	if timeout != nil && timeout.Value() < 0 {
		panic(fmt.Sprintf("negative acquire timeout %v", *timeout))
	}
	spec.process = p

	p.sim.traceEvent(p.entity.String(), trace.Acquiring, spec.describe())
	request, responses := p.entity.SendMessage(agent.agentBase(), MsgResourceRequest, spec)

	var response *Message
	if len(responses) > 0 {
		response = responses[0]
	} else {
		var timeoutEvent *acquireTimeoutEvent
		if timeout != nil {
			timeoutEvent = &acquireTimeoutEvent{
				eventBase: eventBase{
					time:     p.sim.Now().Add(*timeout),
					priority: priorityAcquireTimeout,
				},
				agent:     agent,
				request:   request,
				process:   p,
				timeout:   *timeout,
			}
			p.sim.register(timeoutEvent)
		}
		resp, err := p.waitForResponse(request)
		if timeoutEvent != nil && timeoutEvent.IsRegistered() {
			p.sim.deregister(timeoutEvent)
		}
		if err != nil {
			agent.cancelRequest(request)
			return nil, err
		}
		response = resp
	}

	assignment := response.Data.(*ResourceAssignment)
	p.assignments = append(p.assignments, assignment)
	p.sim.traceEvent(p.entity.String(), trace.Acquired, assignment.describe()...)
	return assignment, nil
}

// waitForResponse suspends until a response to request arrives at the
// process's entity. An interruption during the wait is returned with no
// response.
func (p *Process) waitForResponse(request *Message) (*Message, error) {
	ag := &p.entity.Agent
	var response *Message
	ag.setIntercept(func(m *Message) bool {
		if m.Originating != request {
			return false
		}
		response = m
		p.resume(nil)
		return true
	})
	p.waitKind = waitResponse
	err := p.suspend()
	p.waitKind = waitNone
	ag.clearIntercept()
	if err != nil {
		return nil, err
	}
	return response, nil
}

// Release returns all remaining capacity held by an assignment to its
// agent. The assignment is unusable afterwards.
func (p *Process) Release(a *ResourceAssignment) error {
	return p.ReleaseN(a, a.Count())
}

// ReleaseN returns n units of an assignment's held capacity. Releasing
// more than the assignment holds, or releasing from an exhausted
// assignment, is an error.
func (p *Process) ReleaseN(a *ResourceAssignment, n int) error {
	p.assertCurrent("Release")
	if a.process != p {
		return fmt.Errorf("assignment belongs to another process")
	}
	if a.Count() == 0 {
		return fmt.Errorf("assignment from %s has already been fully released", a.AgentName())
	}
	if n < 1 || n > a.Count() {
		return fmt.Errorf("cannot release %d of %d held resource(s)", n, a.Count())
	}
	released := a.take(n)
	p.sim.traceEvent(p.entity.String(), trace.Release, resourceNames(released)...)
	p.entity.SendMessage(a.agent.agentBase(), MsgResourceRelease, releaseSpec{
		assignment: a,
		resources:  released,
	})
	return nil
}

// Assignments returns the process's resource assignments that still hold
// capacity.
func (p *Process) Assignments() []*ResourceAssignment {
	var out []*ResourceAssignment
	for _, a := range p.assignments {
		if a.Count() > 0 {
			out = append(out, a)
		}
	}
	return out
}

// acquireTimeoutEvent fires when a pending resource request reaches its
// deadline. The assignment agent gets a last chance to fill the request;
// an assignment made at the same instant wins over the timeout. The
// event's priority class puts it behind any same-instant resume, so a
// release landing exactly at the deadline frees its capacity before the
// last-chance pass runs.
type acquireTimeoutEvent struct {
	eventBase
	agent   assignmentAgent
	request *Message
	process *Process
	timeout SimTime
}

func (e *acquireTimeoutEvent) Execute() {
	if !e.agent.agentBase().hasQueued(e.request) {
		return
	}
	e.agent.processQueuedRequests(e.request)
	if !e.agent.agentBase().hasQueued(e.request) {
		return
	}
	spec := e.request.Data.(requestSpec)
	e.process.deliverInterrupt(&AcquireTimeout{Timeout: e.timeout, NumRequested: spec.num})
}
