// Package sim is a process-oriented discrete-event simulation kernel.
//
// # Reading Guide
//
// Start with these three files to understand the kernel:
//   - event.go / event_heap.go: the virtual clock contract. Events execute
//     in (time, priority class, registration sequence) order; within one
//     class, ties are strictly FIFO
//   - process.go: cooperative processes. Each body runs on its own
//     goroutine, handing control back and forth with the run loop so that
//     exactly one goroutine is ever runnable
//   - simulation.go: the run context (clock, calendar, element registry,
//     random streams) and the run loop
//
// # Architecture
//
// Everything a model observes is an Element with named Datasets; elements
// live in a rooted location tree. Moving parts are built on two substrates:
//   - counter.go: capacity-bounded counters with strict-FIFO blocking,
//     underneath resource utilization and location populations
//   - agent.go: the message substrate. Resource requests, assignments,
//     releases and downtime notices all travel as Messages between Agents
//
// Model-facing behavior composes those substrates:
//   - resource.go / pool.go: resource acquisition, brokered by a simple
//     per-resource agent or a kind-aware (optionally preemptive) pool
//   - downtime.go: failure and scheduled-downtime agents driving the
//     resource up/going-down/down protocol
//   - location.go / entity.go: the location tree, entity sources, sinks
//     and per-type statistics
//   - rng.go / stats.go: partitioned random streams, distribution
//     samplers, accumulators and confidence intervals
//
// sim/trace records per-event activity traces; it depends on nothing in
// this package.
//
// # Determinism
//
// Given the same seed and the same model logic, two runs produce identical
// event sequences. Same-instant ordering is priority class then
// registration order, queue ordering is stable, and holder/member
// iteration follows insertion order, never map order.
package sim
