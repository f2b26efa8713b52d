// Entities are the transient objects processes work on behalf of:
// customers, jobs, packets. Each belongs to an EntityType that aggregates
// per-class statistics, enters the model at an EntitySource, moves between
// places, and is destroyed at an EntitySink.

package sim

import (
	"fmt"
)

// EntityType aggregates statistics over all entities of one class: a
// time-weighted Work-In-Process dataset and a Process-Time dataset
// sampled when an entity is destroyed.
type EntityType struct {
	staticObject
	wip         *Counter
	processTime *Dataset
	serial      int
}

// NewEntityType registers an entity class under the given name.
func NewEntityType(sim *Simulation, name string) *EntityType {
	et := &EntityType{}
	et.initStaticObject(sim, name, nil, et)
	et.wip = NewCounter(sim, et, "Work-In-Process", Infinite, false)
	et.processTime = newDataset(sim, et, "Process-Time", false)
	return et
}

func (et *EntityType) nextSerial() int {
	et.serial++
	return et.serial
}

func (et *EntityType) noteCreated() {
	if err := et.wip.Increment(nil, 1); err != nil {
		panic(fmt.Sprintf("work-in-process counter of %s: %v", et.ElementID(), err))
	}
}

func (et *EntityType) noteDestroyed(lifetime SimTime) {
	et.wip.Decrement(1)
	et.processTime.addValue(lifetime.Seconds())
}

// WorkInProcess returns the number of live entities of this type.
func (et *EntityType) WorkInProcess() int { return et.wip.Value() }

// Created returns the number of entities of this type created so far.
func (et *EntityType) Created() int { return et.serial }

// Entity is one transient model object. It doubles as the message
// endpoint its process acquires resources through.
type Entity struct {
	Agent
	sim         *Simulation
	etype       *EntityType
	serial      int
	location    Place
	createTime  SimTime
	destroyTime SimTime
	destroyed   bool
	process     *Process
}

// NewEntity creates an entity of the given type at a source. Entity
// sources call this from their generation events; models generating
// entities by hand may do the same.
func NewEntity(sim *Simulation, et *EntityType, source *EntitySource) *Entity {
	e := &Entity{
		sim:        sim,
		etype:      et,
		serial:     et.nextSerial(),
		createTime: sim.Now(),
	}
	e.initAgent(sim)
	et.noteCreated()
	e.location = source
	source.onEnter(e)
	return e
}

// Type returns the entity's class.
func (e *Entity) Type() *EntityType { return e.etype }

// Process returns the process executing on this entity's behalf.
func (e *Entity) Process() *Process { return e.process }

// Location returns the place the entity currently occupies.
func (e *Entity) Location() Place { return e.location }

// CreateTime returns when the entity entered the model.
func (e *Entity) CreateTime() SimTime { return e.createTime }

// IsDestroyed reports whether the entity has reached a sink.
func (e *Entity) IsDestroyed() bool { return e.destroyed }

// ProcessTime returns the entity's lifetime, from creation to
// destruction; the second return is false while the entity is live.
func (e *Entity) ProcessTime() (SimTime, bool) {
	if !e.destroyed {
		return SimTime{}, false
	}
	return e.destroyTime.Sub(e.createTime), true
}

// MoveTo relocates the entity to the destination's resolved entry point,
// updating residency at every tree level crossed. Moving to the current
// location, or to a place without a resolvable entry point, is an error.
func (e *Entity) MoveTo(dest Place) error {
	return moveEntity(e, dest)
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s#%d", e.etype.ElementName(), e.serial)
}

// destroy finalizes the entity when it enters a sink.
func (e *Entity) destroy() {
	if e.destroyed {
		panic(fmt.Sprintf("entity %s destroyed twice", e))
	}
	e.destroyed = true
	e.destroyTime = e.sim.Now()
	e.etype.noteDestroyed(e.destroyTime.Sub(e.createTime))
}

// EntitySource is a top-level location that feeds the model: each
// registered generator creates entities of one type with interarrival
// times drawn from a sampler, starting each entity's process as it is
// created. Generation begins when the model is finalized at the start of
// the first run.
type EntitySource struct {
	Location
	generators []*entityGenerator
}

// NewEntitySource creates a source at the top level of the location tree.
// Sources cannot contain other static objects.
func NewEntitySource(sim *Simulation, name string) *EntitySource {
	src := &EntitySource{}
	src.initLocation(sim, name, nil, "", src)
	src.acceptsChildren = false
	sim.addFinalizer(src.startGenerators)
	return src
}

// AddGenerator pairs an entity type with an interarrival sampler and the
// process body each generated entity executes.
func (src *EntitySource) AddGenerator(et *EntityType, interarrival Sampler, body ProcessBody) {
	if et == nil || interarrival == nil || body == nil {
		panic("entity generator requires a type, an interarrival sampler, and a process body")
	}
	src.generators = append(src.generators, &entityGenerator{
		source:       src,
		etype:        et,
		interarrival: interarrival,
		body:         body,
	})
}

func (src *EntitySource) startGenerators() {
	for _, g := range src.generators {
		g.scheduleNext()
	}
}

type entityGenerator struct {
	source       *EntitySource
	etype        *EntityType
	interarrival Sampler
	body         ProcessBody
}

func (g *entityGenerator) scheduleNext() {
	sim := g.source.sim
	at := sim.Now().Add(g.interarrival())
	sim.register(&entityGenerationEvent{eventBase: eventBase{time: at}, gen: g})
}

// entityGenerationEvent creates one entity, starts its process, and
// re-arms for the next arrival.
type entityGenerationEvent struct {
	eventBase
	gen *entityGenerator
}

func (e *entityGenerationEvent) Execute() {
	g := e.gen
	entity := NewEntity(g.source.sim, g.etype, g.source)
	NewProcess(g.source.sim, entity, g.body).Start()
	g.scheduleNext()
}

// EntitySink is the top-level place where entities leave the model:
// entering it destroys the entity and feeds its type's statistics. A sink
// has no residents and cannot contain anything.
type EntitySink struct {
	staticObject
	entriesDS *Dataset
}

// NewEntitySink creates a sink at the top level of the location tree.
func NewEntitySink(sim *Simulation, name string) *EntitySink {
	k := &EntitySink{}
	k.initStaticObject(sim, name, nil, k)
	k.entriesDS = newDataset(sim, k, "Entries", false)
	return k
}

// EntryPoint returns the sink itself: a sink is always its own entry
// point.
func (k *EntitySink) EntryPoint() (Place, error) { return k, nil }

func (k *EntitySink) entryPoint(int) (Place, error) { return k, nil }

func (k *EntitySink) onEnter(e *Entity) {
	k.entriesDS.addValue(1)
	e.destroy()
}

func (k *EntitySink) onExit(e *Entity, next Place) {
	panic(fmt.Sprintf("entity %s cannot leave sink %s", e, k.ElementID()))
}

// Entries returns the number of entities the sink has destroyed.
func (k *EntitySink) Entries() int { return k.entriesDS.Entries() }
