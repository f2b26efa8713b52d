package sim

import (
	"errors"
	"testing"
)

func TestPoolKindQueries(t *testing.T) {
	// GIVEN a pool with two tellers and one merchant teller
	h := newTestHarness()
	t1 := NewResource(h.sim, "Teller1", nil, 1, "teller")
	t2 := NewResource(h.sim, "Teller2", nil, 1, "teller")
	m1 := NewResource(h.sim, "Merchant1", nil, 1, "merchant")
	pool := NewResourcePool(h.sim, "Tellers", nil, t1, t2, m1)

	// THEN kind filters select members in add order and size them
	if got := pool.PoolSize(""); got != 3 {
		t.Errorf("total size: got %d, want 3", got)
	}
	if got := pool.PoolSize("teller"); got != 2 {
		t.Errorf("teller size: got %d, want 2", got)
	}
	rs := pool.Resources("teller")
	if len(rs) != 2 || rs[0] != t1 || rs[1] != t2 {
		t.Errorf("teller members: got %d resources, want [Teller1 Teller2]", len(rs))
	}
	if got := pool.Available("merchant"); got != 1 {
		t.Errorf("merchant available: got %d, want 1", got)
	}
	if got := len(pool.AvailableResources("")); got != 3 {
		t.Errorf("available resources: got %d, want 3", got)
	}
}

func TestPoolFillSpansMembers(t *testing.T) {
	// GIVEN a request larger than any single member
	h := newTestHarness()
	g1 := NewResource(h.sim, "GPU1", nil, 2, "gpu")
	g2 := NewResource(h.sim, "GPU2", nil, 2, "gpu")
	pool := NewResourcePool(h.sim, "GPUs", nil, g1, g2)

	var units, distinct, inUse1, inUse2 int
	h.spawn(seconds(0), func(p *Process) error {
		a, err := p.AcquireFrom(pool, "gpu", 3)
		if err != nil {
			return err
		}
		units = a.Count()
		distinct = len(a.Resources())
		inUse1, inUse2 = g1.InUse(), g2.InUse()
		return p.Release(a)
	})

	h.sim.RunUntil(seconds(1))

	// THEN the assignment spans members in add order
	if units != 3 || distinct != 2 {
		t.Errorf("assignment: got %d units over %d resources, want 3 over 2", units, distinct)
	}
	if inUse1 != 2 || inUse2 != 1 {
		t.Errorf("member usage: got %d/%d, want 2/1", inUse1, inUse2)
	}
	if g1.InUse() != 0 || g2.InUse() != 0 {
		t.Errorf("usage after release: got %d/%d, want 0/0", g1.InUse(), g2.InUse())
	}
}

func TestPoolBlockingIsPerKind(t *testing.T) {
	// GIVEN one cpu and one gpu in a pool, with the cpu held long-term
	h := newTestHarness()
	cpu := NewResource(h.sim, "CPU", nil, 1, "cpu")
	gpu := NewResource(h.sim, "GPU", nil, 1, "gpu")
	pool := NewResourcePool(h.sim, "Units", nil, cpu, gpu)

	granted := make(map[string]SimTime)
	use := func(name, kind string, hold SimTime) ProcessBody {
		return func(p *Process) error {
			a, err := p.AcquireFrom(pool, kind, 1)
			if err != nil {
				return err
			}
			granted[name] = h.sim.Now()
			if err := p.WaitFor(hold); err != nil {
				return err
			}
			return p.Release(a)
		}
	}
	h.spawn(seconds(0), use("holder", "cpu", seconds(50)))
	h.spawn(seconds(5), use("cpuWaiter", "cpu", seconds(5)))
	h.spawn(seconds(6), use("gpuUser", "gpu", seconds(10)))
	h.spawn(seconds(7), use("anyKind", "", seconds(5)))

	h.sim.RunUntil(seconds(100))

	// THEN a blocked cpu request does not hold up a gpu request,
	if !granted["gpuUser"].Equal(seconds(6)) {
		t.Errorf("gpu request granted at %v, want 6 seconds", granted["gpuUser"])
	}
	// but an any-kind request may not jump it even with gpu units free
	if !granted["anyKind"].Equal(seconds(50)) {
		t.Errorf("any-kind request granted at %v, want 50 seconds", granted["anyKind"])
	}
	if !granted["cpuWaiter"].Equal(seconds(50)) {
		t.Errorf("cpu request granted at %v, want 50 seconds", granted["cpuWaiter"])
	}
}

func TestPoolPriorityOrdersQueue(t *testing.T) {
	// GIVEN a held pool and three queued requests with priorities
	h := newTestHarness()
	srv := NewResource(h.sim, "Srv", nil, 1, "")
	pool := NewResourcePool(h.sim, "Pool", nil, srv)

	prio := make(map[*Process]int)
	pool.SetRequestPriority(func(p *Process) int { return prio[p] })

	granted := make(map[string]SimTime)
	use := func(name string, hold SimTime) ProcessBody {
		return func(p *Process) error {
			a, err := p.AcquireFrom(pool, "", 1)
			if err != nil {
				return err
			}
			granted[name] = h.sim.Now()
			if err := p.WaitFor(hold); err != nil {
				return err
			}
			return p.Release(a)
		}
	}
	holder := h.spawn(seconds(0), use("holder", seconds(30)))
	lowA := h.spawn(seconds(5), use("lowA", seconds(10)))
	lowB := h.spawn(seconds(6), use("lowB", seconds(10)))
	urgent := h.spawn(seconds(7), use("urgent", seconds(10)))
	prio[holder], prio[lowA], prio[lowB], prio[urgent] = 0, 5, 5, 1

	h.sim.RunUntil(seconds(100))

	// THEN the queue serves lowest value first, ties oldest first
	if !granted["urgent"].Equal(seconds(30)) {
		t.Errorf("urgent granted at %v, want 30 seconds", granted["urgent"])
	}
	if !granted["lowA"].Equal(seconds(40)) {
		t.Errorf("lowA granted at %v, want 40 seconds", granted["lowA"])
	}
	if !granted["lowB"].Equal(seconds(50)) {
		t.Errorf("lowB granted at %v, want 50 seconds", granted["lowB"])
	}
}

func TestPoolPreemptionRevokesLowerPriority(t *testing.T) {
	// GIVEN a preemptive pool whose only unit a low-priority process holds
	h := newTestHarness()
	srv := NewResource(h.sim, "Srv", nil, 1, "")
	pool := NewResourcePool(h.sim, "Pool", nil, srv)
	prio := make(map[*Process]int)
	pool.SetRequestPriority(func(p *Process) int { return prio[p] })
	pool.EnablePreemption()

	var preempted *Preempted
	var remaining SimTime
	low := h.spawn(seconds(0), func(p *Process) error {
		a, err := p.AcquireFrom(pool, "", 1)
		if err != nil {
			return err
		}
		err = p.WaitFor(seconds(100))
		var intr *Interruption
		if !errors.As(err, &intr) || !errors.As(err, &preempted) {
			return err
		}
		remaining = intr.Remaining
		return p.Release(a)
	})

	var grantedAt SimTime
	high := h.spawn(seconds(20), func(p *Process) error {
		a, err := p.AcquireFrom(pool, "", 1)
		if err != nil {
			return err
		}
		grantedAt = h.sim.Now()
		if err := p.WaitFor(seconds(5)); err != nil {
			return err
		}
		return p.Release(a)
	})
	prio[low], prio[high] = 10, 1

	h.sim.RunUntil(seconds(200))

	// THEN the holder is interrupted with the revoked assignment and the
	// requester is served as soon as the release lands
	if preempted == nil {
		t.Fatal("low-priority holder was not preempted")
	}
	if preempted.Assignment.Process() != low {
		t.Error("preemption names the wrong assignment")
	}
	if !remaining.Equal(seconds(80)) {
		t.Errorf("interrupted wait remaining: got %v, want 80 seconds", remaining)
	}
	if !grantedAt.Equal(seconds(20)) {
		t.Errorf("high-priority request granted at %v, want 20 seconds", grantedAt)
	}
}

func TestPoolPreemptionPicksLeastImportantVictim(t *testing.T) {
	// GIVEN two holders of different priorities
	h := newTestHarness()
	s1 := NewResource(h.sim, "S1", nil, 1, "")
	s2 := NewResource(h.sim, "S2", nil, 1, "")
	pool := NewResourcePool(h.sim, "Pool", nil, s1, s2)
	prio := make(map[*Process]int)
	pool.SetRequestPriority(func(p *Process) int { return prio[p] })
	pool.EnablePreemption()

	hit := make(map[string]bool)
	hold := func(name string) ProcessBody {
		return func(p *Process) error {
			a, err := p.AcquireFrom(pool, "", 1)
			if err != nil {
				return err
			}
			if err := p.WaitFor(seconds(100)); err != nil {
				var pre *Preempted
				if !errors.As(err, &pre) {
					return err
				}
				hit[name] = true
			}
			return p.Release(a)
		}
	}
	important := h.spawn(seconds(0), hold("important"))
	expendable := h.spawn(seconds(1), hold("expendable"))

	urgent := h.spawn(seconds(20), func(p *Process) error {
		a, err := p.AcquireFrom(pool, "", 1)
		if err != nil {
			return err
		}
		if err := p.WaitFor(seconds(5)); err != nil {
			return err
		}
		return p.Release(a)
	})
	prio[important], prio[expendable], prio[urgent] = 3, 7, 1

	h.sim.RunUntil(seconds(200))

	// THEN the numerically largest priority (least important) is revoked
	if hit["important"] || !hit["expendable"] {
		t.Errorf("victims: got %v, want only the expendable holder", hit)
	}
}

func TestPoolPreemptionTieGoesToMostRecentHolder(t *testing.T) {
	// GIVEN two equal-priority holders acquired at different times
	h := newTestHarness()
	s1 := NewResource(h.sim, "S1", nil, 1, "")
	s2 := NewResource(h.sim, "S2", nil, 1, "")
	pool := NewResourcePool(h.sim, "Pool", nil, s1, s2)
	prio := make(map[*Process]int)
	pool.SetRequestPriority(func(p *Process) int { return prio[p] })
	pool.EnablePreemption()

	hit := make(map[string]bool)
	hold := func(name string) ProcessBody {
		return func(p *Process) error {
			a, err := p.AcquireFrom(pool, "", 1)
			if err != nil {
				return err
			}
			if err := p.WaitFor(seconds(100)); err != nil {
				var pre *Preempted
				if !errors.As(err, &pre) {
					return err
				}
				hit[name] = true
			}
			return p.Release(a)
		}
	}
	older := h.spawn(seconds(0), hold("older"))
	newer := h.spawn(seconds(1), hold("newer"))

	urgent := h.spawn(seconds(20), func(p *Process) error {
		a, err := p.AcquireFrom(pool, "", 1)
		if err != nil {
			return err
		}
		if err := p.WaitFor(seconds(5)); err != nil {
			return err
		}
		return p.Release(a)
	})
	prio[older], prio[newer], prio[urgent] = 5, 5, 1

	h.sim.RunUntil(seconds(200))

	// THEN the most recently assigned holder yields
	if hit["older"] || !hit["newer"] {
		t.Errorf("victims: got %v, want only the newer holder", hit)
	}
}

func TestPoolNoPreemptionAtEqualPriority(t *testing.T) {
	// GIVEN a holder exactly as important as a new request
	h := newTestHarness()
	srv := NewResource(h.sim, "Srv", nil, 1, "")
	pool := NewResourcePool(h.sim, "Pool", nil, srv)
	prio := make(map[*Process]int)
	pool.SetRequestPriority(func(p *Process) int { return prio[p] })
	pool.EnablePreemption()

	var holderErr error
	holder := h.spawn(seconds(0), func(p *Process) error {
		a, err := p.AcquireFrom(pool, "", 1)
		if err != nil {
			return err
		}
		holderErr = p.WaitFor(seconds(100))
		return p.Release(a)
	})

	var grantedAt SimTime
	peer := h.spawn(seconds(20), func(p *Process) error {
		a, err := p.AcquireFrom(pool, "", 1)
		if err != nil {
			return err
		}
		grantedAt = h.sim.Now()
		return p.Release(a)
	})
	prio[holder], prio[peer] = 5, 5

	h.sim.RunUntil(seconds(200))

	// THEN no preemption happens; the request waits for the release
	if holderErr != nil {
		t.Errorf("holder wait: got %v, want an undisturbed wait", holderErr)
	}
	if !grantedAt.Equal(seconds(100)) {
		t.Errorf("peer granted at %v, want 100 seconds", grantedAt)
	}
}

func TestPoolAssignedProcesses(t *testing.T) {
	h := newTestHarness()
	s1 := NewResource(h.sim, "S1", nil, 1, "")
	s2 := NewResource(h.sim, "S2", nil, 1, "")
	pool := NewResourcePool(h.sim, "Pool", nil, s1, s2)

	hold := func(d SimTime) ProcessBody {
		return func(p *Process) error {
			a, err := p.AcquireFrom(pool, "", 1)
			if err != nil {
				return err
			}
			if err := p.WaitFor(d); err != nil {
				return err
			}
			return p.Release(a)
		}
	}
	first := h.spawn(seconds(0), hold(seconds(10)))
	second := h.spawn(seconds(1), hold(seconds(10)))

	var during []*Process
	h.sim.Schedule(seconds(5), func() { during = pool.AssignedProcesses() })
	h.sim.RunUntil(seconds(20))

	if len(during) != 2 || during[0] != first || during[1] != second {
		t.Errorf("assigned processes: got %d, want [first second]", len(during))
	}
	if len(pool.AssignedProcesses()) != 0 {
		t.Errorf("assigned processes after releases: got %d, want 0", len(pool.AssignedProcesses()))
	}
}

func TestPoolRequestValidation(t *testing.T) {
	// An unknown kind can never be filled.
	h := newTestHarness()
	pool := NewResourcePool(h.sim, "Pool", nil, NewResource(h.sim, "S1", nil, 1, "cpu"))
	h.spawn(seconds(0), func(p *Process) error {
		_, err := p.AcquireFrom(pool, "tpu", 1)
		return err
	})
	expectPanic(t, "unknown kind", func() { h.sim.RunUntil(seconds(1)) })

	// As can a request larger than the kind's total capacity.
	h2 := newTestHarness()
	pool2 := NewResourcePool(h2.sim, "Pool", nil, NewResource(h2.sim, "S1", nil, 1, "cpu"))
	h2.spawn(seconds(0), func(p *Process) error {
		_, err := p.AcquireFrom(pool2, "cpu", 2)
		return err
	})
	expectPanic(t, "oversized request", func() { h2.sim.RunUntil(seconds(1)) })
}

func TestPoolAddResourceValidation(t *testing.T) {
	h := newTestHarness()
	simple := NewSimpleResource(h.sim, "Solo", nil, 1)
	pool := NewResourcePool(h.sim, "Pool", nil)
	expectPanic(t, "already self-managed", func() { pool.AddResource(simple) })

	shared := NewResource(h.sim, "Shared", nil, 1, "")
	pool.AddResource(shared)
	other := NewResourcePool(h.sim, "Other", nil)
	expectPanic(t, "already pooled", func() { other.AddResource(shared) })
}
