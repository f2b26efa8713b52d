// ResourcePool brokers requests against a set of resources tagged with
// kind strings. Requests name a kind (or a specific member resource) and a
// unit count; fills may span members. Queue fairness is per kind: a
// request that cannot be filled blocks later requests of overlapping kind,
// but requests for disjoint kinds may still be served. An optional
// priority function reorders the queue, and a preemptive pool may force an
// early release from a lower-priority holder.

package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ResourcePool is an assignment agent managing several resources. It is a
// static object: it has a name and location and appears in the element
// registry, but collects no datasets of its own (its members do).
type ResourcePool struct {
	staticObject
	assignmentBase
	members []*Resource

	preemptive bool
	preempting map[*Message]*ResourceAssignment
}

// NewResourcePool creates a pool managing the given resources. Members
// must not already be managed by another agent.
func NewResourcePool(sim *Simulation, name string, parent *Location, resources ...*Resource) *ResourcePool {
	pool := &ResourcePool{preempting: make(map[*Message]*ResourceAssignment)}
	pool.initStaticObject(sim, name, parent, pool)
	pool.initAssignmentBase(sim, pool)
	for _, r := range resources {
		pool.AddResource(r)
	}
	return pool
}

func (pool *ResourcePool) name() string { return pool.ElementID() }

// AddResource places a resource under this pool's management. Panics if
// the resource already has an assignment agent.
func (pool *ResourcePool) AddResource(r *Resource) {
	if r.agent != nil {
		panic(fmt.Sprintf("resource %s is already managed by %s", r.ElementID(), r.agent.name()))
	}
	r.agent = pool
	pool.members = append(pool.members, r)
}

// SetRequestPriority orders queued requests by the given function of the
// requesting process, lowest value first, ties oldest first.
func (pool *ResourcePool) SetRequestPriority(fn func(*Process) int) {
	pool.RegisterPriority(MsgResourceRequest, func(m *Message) int {
		return fn(m.Data.(requestSpec).process)
	})
}

// EnablePreemption lets the pool interrupt a lower-priority holder when a
// request finds no capacity. It has no effect until a request priority
// function is set.
func (pool *ResourcePool) EnablePreemption() { pool.preemptive = true }

func matchesKind(r *Resource, kind string) bool {
	return kind == "" || r.kind == kind
}

// Resources returns the pool members of the given kind, in the order they
// were added. An empty kind matches every member.
func (pool *ResourcePool) Resources(kind string) []*Resource {
	var out []*Resource
	for _, r := range pool.members {
		if matchesKind(r, kind) {
			out = append(out, r)
		}
	}
	return out
}

// PoolSize returns the total capacity of members of the given kind.
func (pool *ResourcePool) PoolSize(kind string) int {
	n := 0
	for _, r := range pool.members {
		if matchesKind(r, kind) {
			n += r.Capacity()
		}
	}
	return n
}

// Available returns the units currently assignable across members of the
// given kind.
func (pool *ResourcePool) Available(kind string) int {
	n := 0
	for _, r := range pool.members {
		if matchesKind(r, kind) {
			n += r.Available()
		}
	}
	return n
}

// AvailableResources returns the members of the given kind with at least
// one assignable unit.
func (pool *ResourcePool) AvailableResources(kind string) []*Resource {
	var out []*Resource
	for _, r := range pool.members {
		if matchesKind(r, kind) && r.Available() > 0 {
			out = append(out, r)
		}
	}
	return out
}

// AssignedProcesses returns the processes currently holding assignments
// from this pool, in assignment order.
func (pool *ResourcePool) AssignedProcesses() []*Process {
	var out []*Process
	seen := make(map[*Process]bool)
	for _, a := range pool.active {
		if a.Count() > 0 && !seen[a.process] {
			seen[a.process] = true
			out = append(out, a.process)
		}
	}
	return out
}

func (pool *ResourcePool) validateRequest(spec requestSpec) error {
	if spec.resource != nil {
		if spec.resource.agent != assignmentAgent(pool) {
			return fmt.Errorf("resource %s is not managed by pool %s",
				spec.resource.ElementID(), pool.ElementID())
		}
		if spec.num > spec.resource.Capacity() {
			return fmt.Errorf("request for %d units exceeds capacity %d of %s",
				spec.num, spec.resource.Capacity(), spec.resource.ElementID())
		}
		return nil
	}
	size := pool.PoolSize(spec.kind)
	if size == 0 {
		return fmt.Errorf("pool %s has no resources of kind %q", pool.ElementID(), spec.kind)
	}
	if spec.num > size {
		return fmt.Errorf("request for %d units exceeds pool %s capacity %d for kind %q",
			spec.num, pool.ElementID(), size, spec.kind)
	}
	return nil
}

// fillRequest gathers units for a request across matching members in
// member order, or returns nil if the total available is short.
func (pool *ResourcePool) fillRequest(request *Message) *ResourceAssignment {
	spec := request.Data.(requestSpec)

	candidates := pool.Resources(requestKind(spec))
	if spec.resource != nil {
		candidates = []*Resource{spec.resource}
	}

	available := 0
	for _, r := range candidates {
		available += r.Available()
	}
	if available < spec.num {
		return nil
	}

	var units []*Resource
	remaining := spec.num
	for _, r := range candidates {
		take := r.Available()
		if take > remaining {
			take = remaining
		}
		if take == 0 {
			continue
		}
		r.assign(spec.process, take)
		for i := 0; i < take; i++ {
			units = append(units, r)
		}
		remaining -= take
		if remaining == 0 {
			break
		}
	}

	delete(pool.preempting, request)
	priority, _ := pool.messagePriority(request)
	return newAssignment(pool, spec, units, priority)
}

// requestKind is the kind a request contends under for queue-blocking
// purposes; a specific-resource request contends under its resource's
// kind.
func requestKind(spec requestSpec) string {
	if spec.resource != nil {
		return spec.resource.Kind()
	}
	return spec.kind
}

// processQueuedRequests serves the queue in priority order. An unfillable
// request blocks its kind: later requests of an overlapping kind are
// skipped, later requests of disjoint kinds may still fill. The empty
// kind overlaps everything. A non-nil through ends the pass once that
// request has been reached.
func (pool *ResourcePool) processQueuedRequests(through *Message) {
	blocked := make(map[string]bool)
	for _, req := range pool.queuedRequests() {
		spec := req.Data.(requestSpec)
		kind := requestKind(spec)
		if !kindBlocked(blocked, kind) {
			if a := pool.fillRequest(req); a != nil {
				pool.completeAssignment(req, a)
			} else {
				if pool.preemptive {
					pool.tryPreempt(req)
				}
				blocked[kind] = true
			}
		}
		if req == through {
			return
		}
	}
}

func kindBlocked(blocked map[string]bool, kind string) bool {
	if len(blocked) == 0 {
		return false
	}
	if kind == "" || blocked[""] {
		return true
	}
	return blocked[kind]
}

func (pool *ResourcePool) cancelRequest(request *Message) {
	pool.assignmentBase.cancelRequest(request)
	delete(pool.preempting, request)
}

// Preempted is the condition delivered to a process whose assignment a
// preemptive pool revokes. The holder is expected to release the
// assignment promptly; the freed capacity then serves the higher-priority
// request through the normal release path.
type Preempted struct {
	Assignment *ResourceAssignment
}

func (e *Preempted) Error() string {
	return fmt.Sprintf("preempted from %s", e.Assignment.AgentName())
}

// tryPreempt interrupts the holder of the least important active
// assignment on resources matching the blocked request, provided it is
// strictly less important than the request. At most one preemption is
// outstanding per request at a time.
func (pool *ResourcePool) tryPreempt(req *Message) {
	if victim := pool.preempting[req]; victim != nil && victim.Count() > 0 {
		return
	}
	reqPriority, ok := pool.messagePriority(req)
	if !ok {
		return
	}
	spec := req.Data.(requestSpec)
	kind := requestKind(spec)

	var victim *ResourceAssignment
	for _, a := range pool.active {
		if a.Count() == 0 || a.priority <= reqPriority || a.process == spec.process {
			continue
		}
		if !pool.assignmentMatches(a, spec, kind) {
			continue
		}
		p := a.process
		if p.state != stateWaiting || p.interruptEvent != nil {
			continue
		}
		// Least important first; among equals, the most recent start.
		if victim == nil ||
			a.priority > victim.priority ||
			(a.priority == victim.priority && a.assignTime.After(victim.assignTime)) {
			victim = a
		}
	}
	if victim == nil {
		return
	}

	logrus.Debugf("pool %s preempting %s for request %d", pool.ElementID(), victim.process.entity, req.ID)
	pool.preempting[req] = victim
	victim.process.deliverInterrupt(&Preempted{Assignment: victim})
}

// assignmentMatches reports whether revoking a would free capacity usable
// by the blocked request.
func (pool *ResourcePool) assignmentMatches(a *ResourceAssignment, spec requestSpec, kind string) bool {
	for _, r := range a.Resources() {
		if spec.resource != nil {
			if r == spec.resource {
				return true
			}
			continue
		}
		if matchesKind(r, kind) {
			return true
		}
	}
	return false
}
