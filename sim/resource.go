// Resources and resource assignment. A Resource owns one utilization
// counter plus identity and downtime state; acquisition is brokered by an
// assignment agent (the resource's own broker for simple resources, a
// ResourcePool otherwise) over the message substrate. Requests are never
// filled inside the request handler: the handler queues them and schedules
// a single assignment event per agent per instant, so fills always happen
// in calendar order.

package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hsklein/simprovise/sim/trace"
)

// requestSpec is the payload of a MsgResourceRequest.
type requestSpec struct {
	process  *Process
	num      int
	resource *Resource     // non-nil: request for this specific resource
	pool     *ResourcePool // non-nil for AcquireFrom requests
	kind     string        // pool requests: resource kind, "" matches all
}

// describe renders the request target for trace output.
func (s requestSpec) describe() string {
	if s.resource != nil {
		return s.resource.ElementID()
	}
	if s.kind != "" {
		return fmt.Sprintf("%s[%s]", s.pool.ElementID(), s.kind)
	}
	return s.pool.ElementID()
}

// releaseSpec is the payload of a MsgResourceRelease.
type releaseSpec struct {
	assignment *ResourceAssignment
	resources  []*Resource
}

// downtimeNotice is the payload of the downtime message types.
type downtimeNotice struct {
	resource *Resource
	agent    *DowntimeAgent
}

func resourceNames(rs []*Resource) []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.ElementID()
	}
	return names
}

// ResourceAssignment is the single-use lease a filled request produces:
// which resource units a process holds, since when, and through which
// agent. Releasing consumes it, possibly in parts.
type ResourceAssignment struct {
	agent      assignmentAgent
	process    *Process
	assignTime SimTime
	resources  []*Resource
	priority   int
}

func newAssignment(agent assignmentAgent, spec requestSpec, resources []*Resource, priority int) *ResourceAssignment {
	return &ResourceAssignment{
		agent:      agent,
		process:    spec.process,
		assignTime: agent.agentBase().simulation.Now(),
		resources:  resources,
		priority:   priority,
	}
}

// Count returns the number of resource units the assignment still holds.
func (a *ResourceAssignment) Count() int { return len(a.resources) }

// AssignTime returns the time the assignment was made.
func (a *ResourceAssignment) AssignTime() SimTime { return a.assignTime }

// Process returns the process holding the assignment.
func (a *ResourceAssignment) Process() *Process { return a.process }

// Resources returns the distinct resources held, in assignment order.
func (a *ResourceAssignment) Resources() []*Resource {
	var out []*Resource
	seen := make(map[*Resource]bool)
	for _, r := range a.resources {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Resource returns the single resource the assignment holds units of. It
// panics if the assignment spans more than one distinct resource.
func (a *ResourceAssignment) Resource() *Resource {
	rs := a.Resources()
	if len(rs) != 1 {
		panic(fmt.Sprintf("assignment spans %d resources", len(rs)))
	}
	return rs[0]
}

// AgentName identifies the assignment agent in errors and logs.
func (a *ResourceAssignment) AgentName() string { return a.agent.name() }

// take removes n units from the front of the assignment and returns them.
func (a *ResourceAssignment) take(n int) []*Resource {
	taken := a.resources[:n]
	a.resources = a.resources[n:]
	return taken
}

func (a *ResourceAssignment) describe() []string { return resourceNames(a.resources) }

// assignmentAgent is the brokering behavior an agent must provide to fill
// resource requests: the resource's own broker and ResourcePool both
// implement it over the shared assignmentBase.
type assignmentAgent interface {
	agentBase() *Agent
	name() string
	// validateRequest rejects requests that can never be satisfied.
	validateRequest(spec requestSpec) error
	// fillRequest attempts to fill one queued request right now,
	// returning nil if capacity is lacking.
	fillRequest(request *Message) *ResourceAssignment
	// processQueuedRequests works the request queue in queue order,
	// stopping per the agent's fairness rule. A non-nil through bounds
	// the pass: requests queued behind it are left untouched.
	processQueuedRequests(through *Message)
	cancelRequest(request *Message)
}

// assignmentBase implements the broker behavior shared by simple-resource
// brokers and pools: request validation and queuing, deferred assignment
// through a per-instant calendar event, release bookkeeping, and the
// downtime protocol. The concrete agent supplies member selection through
// the assignmentAgent interface.
type assignmentBase struct {
	Agent
	self            assignmentAgent
	assignmentEvent *EventHandle

	// active holds this agent's assignments that still hold units, in
	// assignment order.
	active []*ResourceAssignment
}

func (b *assignmentBase) initAssignmentBase(sim *Simulation, self assignmentAgent) {
	b.initAgent(sim)
	b.self = self
	b.RegisterHandler(MsgResourceRequest, b.handleRequest)
	b.RegisterHandler(MsgResourceRelease, b.handleRelease)
	b.RegisterHandler(MsgResourceDown, b.handleDown)
	b.RegisterHandler(MsgResourceUp, b.handleUp)
	b.RegisterHandler(MsgResourceGoingDown, b.handleGoingDown)
}

func (b *assignmentBase) agentBase() *Agent { return &b.Agent }

// handleRequest queues every request; fills happen on the assignment
// event so that same-instant requests are served in calendar order.
func (b *assignmentBase) handleRequest(msg *Message) bool {
	spec := msg.Data.(requestSpec)
	if err := b.self.validateRequest(spec); err != nil {
		panic(fmt.Sprintf("invalid resource request to %s: %v", b.self.name(), err))
	}
	b.scheduleProcessing()
	return false
}

// scheduleProcessing arranges one pass over the queued requests at the
// current instant. At most one pass is pending at a time. The pass runs
// in the last priority class of its instant, after every same-instant
// release and acquire deadline has settled.
func (b *assignmentBase) scheduleProcessing() {
	if b.assignmentEvent != nil {
		return
	}
	b.assignmentEvent = &EventHandle{
		eventBase: eventBase{time: b.simulation.Now(), priority: priorityAssignment},
		action: func() {
			b.assignmentEvent = nil
			b.self.processQueuedRequests(nil)
		},
	}
	b.simulation.register(b.assignmentEvent)
}

// processQueuedRequestsFIFO is the default queue pass: fill from the head
// of the (priority-ordered) queue and stop at the first request that does
// not fit, so later smaller requests never overtake it.
func (b *assignmentBase) processQueuedRequestsFIFO(through *Message) {
	for {
		req := b.NextQueuedMessage(MsgResourceRequest)
		if req == nil {
			return
		}
		assignment := b.self.fillRequest(req)
		if assignment == nil {
			return
		}
		b.completeAssignment(req, assignment)
		if req == through {
			return
		}
	}
}

// completeAssignment removes the filled request from the queue and sends
// the assignment back to the requesting entity.
func (b *assignmentBase) completeAssignment(req *Message, assignment *ResourceAssignment) {
	b.active = append(b.active, assignment)
	b.removeFromQueue(req)
	b.SendResponse(req, MsgResourceAssignment, assignment)
}

// cancelRequest withdraws a queued request (acquire timeout, interrupted
// waiter). The request must still be queued.
func (b *assignmentBase) cancelRequest(request *Message) {
	if !b.removeFromQueue(request) {
		panic(fmt.Sprintf("cancelling request %d not queued at %s", request.ID, b.self.name()))
	}
}

// queuedRequests returns the pending requests in service order.
func (b *assignmentBase) queuedRequests() []*Message {
	return b.queuedMessages(MsgResourceRequest)
}

// handleRelease returns released units to their resources, completes a
// pending graceful takedown if the release idled the resource, and
// schedules a queue pass over the freed capacity.
func (b *assignmentBase) handleRelease(msg *Message) bool {
	spec := msg.Data.(releaseSpec)

	released := make(map[*Resource]int)
	var order []*Resource
	for _, r := range spec.resources {
		if released[r] == 0 {
			order = append(order, r)
		}
		released[r]++
	}
	for _, r := range order {
		r.release(spec.assignment.process, released[r])
		if r.goingDown && r.InUse() == 0 {
			b.completeTakedown(r)
		}
	}
	if spec.assignment.Count() == 0 {
		b.dropAssignment(spec.assignment)
	}
	b.scheduleProcessing()
	return true
}

func (b *assignmentBase) dropAssignment(a *ResourceAssignment) {
	for i, other := range b.active {
		if other == a {
			b.active = append(b.active[:i], b.active[i+1:]...)
			return
		}
	}
}

func (b *assignmentBase) handleDown(msg *Message) bool {
	notice := msg.Data.(downtimeNotice)
	r := notice.resource
	if r.goingDown && r.goingDownBy == notice.agent {
		b.completeTakedown(r)
		return true
	}
	b.takedown(r, notice.agent)
	return true
}

func (b *assignmentBase) handleUp(msg *Message) bool {
	notice := msg.Data.(downtimeNotice)
	b.bringup(notice.resource, notice.agent)
	return true
}

func (b *assignmentBase) handleGoingDown(msg *Message) bool {
	notice := msg.Data.(downtimeNotice)
	r := notice.resource
	r.goingDown = true
	r.goingDownBy = notice.agent
	logrus.Debugf("resource %s going down", r.ElementID())
	if r.InUse() == 0 {
		b.completeTakedown(r)
	}
	return true
}

// takedown transitions a resource down on behalf of a downtime agent.
// Holders are interrupted only on the transition from up.
func (b *assignmentBase) takedown(r *Resource, agent *DowntimeAgent) {
	wasDown := r.IsDown()
	r.downBy[agent] = true
	if wasDown {
		return
	}
	r.wentDownAt = b.simulation.Now()
	logrus.Debugf("resource %s down at %v", r.ElementID(), b.simulation.Now())
	b.simulation.traceEvent(r.ElementID(), trace.Down)
	for _, p := range r.holders() {
		p.deliverInterrupt(&ResourceDown{Resource: r})
	}
}

// completeTakedown finishes a graceful going-down: the takedown is
// attributed to the agent that requested it.
func (b *assignmentBase) completeTakedown(r *Resource) {
	agent := r.goingDownBy
	r.goingDown = false
	r.goingDownBy = nil
	b.takedown(r, agent)
}

// bringup reverses one agent's takedown. The resource is up again, and
// its holders resume, only when no agent has it down.
func (b *assignmentBase) bringup(r *Resource, agent *DowntimeAgent) {
	delete(r.downBy, agent)
	if r.IsDown() {
		return
	}
	timeDown := b.simulation.Now().Sub(r.wentDownAt)
	logrus.Debugf("resource %s up at %v after %v down", r.ElementID(), b.simulation.Now(), timeDown)
	b.simulation.traceEvent(r.ElementID(), trace.Up)
	for _, p := range r.holders() {
		p.deliverInterrupt(&ResourceUp{Resource: r, TimeDown: timeDown})
	}
	b.scheduleProcessing()
}

// Resource is capacity that processes contend for: a teller, a machine, a
// server. It is a static object with a fixed location and capacity, a
// normalized time-weighted Utilization dataset, and a Process-Time dataset
// sampled when a process fully releases its units. A resource is either
// created simple (with its own broker) or added to a ResourcePool.
type Resource struct {
	staticObject
	agent       assignmentAgent
	capacity    int
	kind        string
	utilCounter *Counter
	processTime *Dataset

	// usage tracks which processes hold units, in first-acquire order;
	// the order makes holder interruption deterministic.
	usage      map[*Process]*resourceUsage
	usageOrder []*Process

	downBy      map[*DowntimeAgent]bool
	goingDown   bool
	goingDownBy *DowntimeAgent
	wentDownAt  SimTime
}

type resourceUsage struct {
	assignTime SimTime
	count      int
}

// NewResource creates an unmanaged resource, to be added to a
// ResourcePool before use. Kind tags pooled resources for typed requests;
// it may be empty. Panics on a non-positive capacity.
func NewResource(sim *Simulation, name string, parent *Location, capacity int, kind string) *Resource {
	r := &Resource{
		capacity: capacity,
		kind:     kind,
		usage:    make(map[*Process]*resourceUsage),
		downBy:   make(map[*DowntimeAgent]bool),
	}
	r.initStaticObject(sim, name, parent, r)
	r.utilCounter = NewCounter(sim, r, "Utilization", capacity, true)
	r.processTime = newDataset(sim, r, "Process-Time", false)
	return r
}

// NewSimpleResource creates a resource managed by its own broker, ready
// for Acquire calls.
func NewSimpleResource(sim *Simulation, name string, parent *Location, capacity int) *Resource {
	r := NewResource(sim, name, parent, capacity, "")
	broker := &resourceBroker{resource: r}
	broker.initAssignmentBase(sim, broker)
	r.agent = broker
	return r
}

// Capacity returns the number of units the resource owns.
func (r *Resource) Capacity() int { return r.capacity }

// Kind returns the resource's kind tag.
func (r *Resource) Kind() string { return r.kind }

// SetCapacity changes the capacity. Allowed only before the resource is
// first acquired.
func (r *Resource) SetCapacity(capacity int) {
	r.utilCounter.SetCapacity(capacity)
	r.capacity = capacity
}

// InUse returns the number of units currently assigned.
func (r *Resource) InUse() int { return r.utilCounter.Value() }

// Available returns the units an assignment could take right now: zero
// while the resource is down or going down.
func (r *Resource) Available() int {
	if r.IsDown() || r.goingDown {
		return 0
	}
	return r.capacity - r.InUse()
}

// IsDown reports whether any downtime agent has the resource down.
func (r *Resource) IsDown() bool { return len(r.downBy) > 0 }

// IsGoingDown reports whether a graceful takedown is pending.
func (r *Resource) IsGoingDown() bool { return r.goingDown }

// Holders returns the processes currently holding units, in first-acquire
// order.
func (r *Resource) Holders() []*Process { return r.holders() }

func (r *Resource) holders() []*Process {
	out := make([]*Process, len(r.usageOrder))
	copy(out, r.usageOrder)
	return out
}

// assignmentAgent returns the agent brokering this resource, nil if the
// resource has not been pooled or created simple.
func (r *Resource) assignmentAgent() assignmentAgent { return r.agent }

// assign hands n units to p. The caller has already checked availability;
// a failed increment here is a broker bug.
func (r *Resource) assign(p *Process, n int) {
	if n > r.Available() {
		panic(fmt.Sprintf("assigning %d units of %s with %d available", n, r.ElementID(), r.Available()))
	}
	if err := r.utilCounter.Increment(p, n); err != nil {
		panic(fmt.Sprintf("utilization counter of %s rejected a fitting increment: %v", r.ElementID(), err))
	}
	u := r.usage[p]
	if u == nil {
		u = &resourceUsage{assignTime: r.sim.Now()}
		r.usage[p] = u
		r.usageOrder = append(r.usageOrder, p)
	}
	u.count += n
}

// release returns n of p's units. When p's last unit comes back, the
// elapsed holding time feeds the Process-Time dataset.
func (r *Resource) release(p *Process, n int) {
	u := r.usage[p]
	if u == nil || n > u.count {
		panic(fmt.Sprintf("releasing %d units of %s not held by the process", n, r.ElementID()))
	}
	r.utilCounter.Decrement(n)
	u.count -= n
	if u.count > 0 {
		return
	}
	r.processTime.addValue(r.sim.Now().Sub(u.assignTime).Seconds())
	delete(r.usage, p)
	for i, q := range r.usageOrder {
		if q == p {
			r.usageOrder = append(r.usageOrder[:i], r.usageOrder[i+1:]...)
			break
		}
	}
}

// resourceBroker is the assignment agent of a simple (self-managed)
// resource. Requests are served strictly in queue order against the one
// resource.
type resourceBroker struct {
	assignmentBase
	resource *Resource
}

func (rb *resourceBroker) name() string { return rb.resource.ElementID() }

func (rb *resourceBroker) validateRequest(spec requestSpec) error {
	if spec.resource != rb.resource {
		return fmt.Errorf("request for %v routed to broker of %s", spec.describe(), rb.resource.ElementID())
	}
	if spec.num > rb.resource.Capacity() {
		return fmt.Errorf("request for %d units exceeds capacity %d of %s",
			spec.num, rb.resource.Capacity(), rb.resource.ElementID())
	}
	return nil
}

func (rb *resourceBroker) fillRequest(request *Message) *ResourceAssignment {
	spec := request.Data.(requestSpec)
	r := rb.resource
	if spec.num > r.Available() {
		return nil
	}
	r.assign(spec.process, spec.num)
	units := make([]*Resource, spec.num)
	for i := range units {
		units[i] = r
	}
	priority, _ := rb.messagePriority(request)
	return newAssignment(rb, spec, units, priority)
}

func (rb *resourceBroker) processQueuedRequests(through *Message) {
	rb.processQueuedRequestsFIFO(through)
}
