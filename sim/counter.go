// Defines Counter, the capacity-bounded integer primitive underneath
// resources and population tracking. Finite counters block incrementing
// processes in strict FIFO order; statistics are collected time-weighted.

package sim

import (
	"fmt"
	"math"
)

// Infinite is the capacity of an unbounded counter.
const Infinite = math.MaxInt

type counterWait struct {
	process *Process
	amount  int
}

// Counter is a non-negative integer with optional finite capacity and a
// FIFO wait list. Increments that do not fit suspend the incrementing
// process until earlier decrements make room; fulfillment is strictly
// first-come first-served, with no skipping ahead even when a later,
// smaller request would fit.
type Counter struct {
	sim         *Simulation
	capacity    int
	capacitySet bool
	value       int
	waiting     []counterWait
	ds          *Dataset
	normalize   bool
	normalizer  float64
}

// NewCounter returns a counter collecting its values into a time-weighted
// dataset on element. Capacity is a positive count or Infinite. When
// normalize is true and the capacity is finite and greater than one,
// collected values are divided by capacity, yielding utilization in
// [0, 1]. Panics on a non-positive capacity.
func NewCounter(sim *Simulation, element Element, name string, capacity int, normalize bool) *Counter {
	if capacity < 1 {
		panic(fmt.Sprintf("counter capacity must be positive, got %d", capacity))
	}
	c := &Counter{
		sim:       sim,
		capacity:  capacity,
		ds:        newDataset(sim, element, name, true),
		normalize: normalize,
	}
	c.setNormalizer()
	c.ds.addValue(0)
	return c
}

// setNormalizer derives the dataset divisor from the capacity; values are
// scaled only for finite, multi-unit, normalizing counters.
func (c *Counter) setNormalizer() {
	c.normalizer = 1
	if c.normalize && c.capacity != Infinite && c.capacity > 1 {
		c.normalizer = float64(c.capacity)
	}
}

// Value returns the current count.
func (c *Counter) Value() int { return c.value }

// Capacity returns the counter capacity; Infinite when unbounded.
func (c *Counter) Capacity() int { return c.capacity }

// IsInfinite reports whether the counter is unbounded.
func (c *Counter) IsInfinite() bool { return c.capacity == Infinite }

// WaitingCount returns the number of processes blocked in Increment.
func (c *Counter) WaitingCount() int { return len(c.waiting) }

// SetCapacity changes the capacity. It may be called at most once, before
// the first increment; it panics on a second call, after an increment, or
// if the new capacity is not positive.
func (c *Counter) SetCapacity(capacity int) {
	if capacity < 1 {
		panic(fmt.Sprintf("counter capacity must be positive, got %d", capacity))
	}
	if c.capacitySet {
		panic("counter capacity can be set at most once")
	}
	if c.ds.Entries() > 1 {
		panic("counter capacity cannot change after the first increment")
	}
	c.capacity = capacity
	c.capacitySet = true
	c.setNormalizer()
}

// Increment raises the counter by amount. If the counter is finite and
// the amount does not fit, or earlier requests are still waiting, the
// calling process suspends until the request is granted in FIFO order.
// The returned error is non-nil only when the wait is interrupted, in
// which case the increment did not happen and the request has left the
// queue. Amount validation failures panic: a request can never exceed a
// finite capacity, and only processes may increment finite counters.
func (c *Counter) Increment(p *Process, amount int) error {
	if amount <= 0 || amount > c.capacity {
		panic(fmt.Sprintf("invalid counter increment %d with capacity %d", amount, c.capacity))
	}
	if c.IsInfinite() && Infinite-c.value <= amount {
		panic(fmt.Sprintf("counter overflow: value %d, increment %d", c.value, amount))
	}
	if p == nil && !c.IsInfinite() {
		panic("finite counters can only be incremented by a process")
	}

	// Grant immediately only when nothing is already waiting; room freed
	// by an oversized head request never leaks to later arrivals.
	if len(c.waiting) == 0 && c.value+amount <= c.capacity {
		c.value += amount
		c.ds.addValue(float64(c.value) / c.normalizer)
		return nil
	}

	c.waiting = append(c.waiting, counterWait{process: p, amount: amount})
	if err := p.waitUntilNotified(); err != nil {
		c.removeWaiter(p)
		return err
	}
	return nil
}

// Decrement lowers the counter by amount, clamping at zero, then grants
// waiting increments from the head of the queue while they fit. The first
// request that does not fit stops the replay, holding its place ahead of
// smaller requests behind it. Never blocks; panics on a non-positive
// amount.
func (c *Counter) Decrement(amount int) {
	if amount <= 0 {
		panic(fmt.Sprintf("invalid counter decrement %d", amount))
	}
	if amount <= c.value {
		c.value -= amount
	} else {
		c.value = 0
	}
	c.ds.addValue(float64(c.value) / c.normalizer)

	granted := false
	for len(c.waiting) > 0 {
		head := c.waiting[0]
		if head.amount > c.capacity-c.value {
			break
		}
		c.value += head.amount
		c.waiting = c.waiting[1:]
		head.process.resume(nil)
		granted = true
	}
	if granted {
		c.ds.addValue(float64(c.value) / c.normalizer)
	}
}

// removeWaiter drops p's pending request from the wait list.
func (c *Counter) removeWaiter(p *Process) {
	for i, w := range c.waiting {
		if w.process == p {
			c.waiting = append(c.waiting[:i], c.waiting[i+1:]...)
			return
		}
	}
}
