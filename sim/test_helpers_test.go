package sim

import "testing"

// seconds builds a SimTime in seconds; most kernel tests think in seconds.
func seconds(v float64) SimTime { return NewSimTime(v, Seconds) }

// minutes builds a SimTime in minutes.
func minutes(v float64) SimTime { return NewSimTime(v, Minutes) }

// testHarness bundles what every process-level test needs: a simulation
// plus an entity type and source to hang test entities off.
type testHarness struct {
	sim    *Simulation
	source *EntitySource
	etype  *EntityType
}

func newTestHarness() *testHarness {
	s := NewSimulation(42)
	return &testHarness{
		sim:    s,
		source: NewEntitySource(s, "Source"),
		etype:  NewEntityType(s, "Job"),
	}
}

// spawn creates an entity at the harness source and schedules a process
// over body to start at the given time.
func (h *testHarness) spawn(at SimTime, body ProcessBody) *Process {
	e := NewEntity(h.sim, h.etype, h.source)
	p := NewProcess(h.sim, e, body)
	h.sim.Schedule(at, p.Start)
	return p
}

// expectPanic fails the test unless fn panics.
func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic, got none", name)
		}
	}()
	fn()
}
