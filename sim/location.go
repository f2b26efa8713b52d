// The location tree. Static objects (locations, resources, pools, sources,
// sinks) are fixed in a rooted tree; entities move between Places, and a
// resident of a location is transitively a resident of every ancestor.
// Moves land on a location's resolved entry point, which may redirect
// through a chain of descendants.

package sim

import (
	"fmt"

	"github.com/hsklein/simprovise/sim/trace"
)

// staticObject is the embedded base of every fixed model element: name,
// parent location, element registration, and datasets.
type staticObject struct {
	elementBase
	sim    *Simulation
	name   string
	parent *Location
}

// initStaticObject wires identity and registration; self is the outer
// element being built.
func (o *staticObject) initStaticObject(sim *Simulation, name string, parent *Location, self Element) {
	validElementName(name)
	if parent == nil {
		parent = sim.root
	}
	o.sim = sim
	o.name = name
	o.parent = parent
	sim.registerElement(self)
	parent.addChild(self)
}

// ElementName returns the object's own name, unique within its parent.
func (o *staticObject) ElementName() string { return o.name }

// ElementID returns the dotted path from the top level down to this
// object; the root location does not appear in IDs.
func (o *staticObject) ElementID() string {
	if o.parent == nil || o.parent.isRoot {
		return o.name
	}
	return o.parent.ElementID() + "." + o.name
}

func (o *staticObject) String() string { return o.ElementID() }

func (o *staticObject) parentLocation() *Location { return o.parent }

// Place is somewhere an entity can be: a location, an entity source, or
// an entity sink. The unexported methods confine implementations to this
// package; models compose Places, they do not implement them.
type Place interface {
	Element
	// EntryPoint resolves where a move to this place actually lands,
	// following declared entry-point redirections to a leaf.
	EntryPoint() (Place, error)
	entryPoint(depth int) (Place, error)
	onEnter(e *Entity)
	onExit(e *Entity, next Place)
	parentLocation() *Location
}

// entryPointDepthLimit bounds redirection chains; a deeper chain is
// assumed cyclic.
const entryPointDepthLimit = 64

type residentEntry struct {
	entity    *Entity
	enterTime SimTime
}

// Location is a node in the model's containment tree. It tracks its
// residents at this level (including residents of descendant locations),
// a time-weighted Population dataset, an Entries count, and a Time
// dataset sampling each residency duration on exit.
type Location struct {
	staticObject
	isRoot          bool
	acceptsChildren bool

	// self is the Place this location presents as: the location itself,
	// or the outer object when embedded (entity sources).
	self Place

	// entryPointName, when set, is the dotted path (relative to this
	// location) of the place a move to this location redirects to.
	entryPointName string

	children  []Element
	residents []residentEntry
	present   map[*Entity]int

	population *Counter
	entriesDS  *Dataset
	timeDS     *Dataset
}

// NewLocation creates a location under parent (top level if parent is
// nil). entryPointName declares where moves to this location land,
// relative to this location; leave it empty for a leaf.
func NewLocation(sim *Simulation, name string, parent *Location, entryPointName string) *Location {
	l := &Location{}
	l.initLocation(sim, name, parent, entryPointName, l)
	return l
}

// NewQueue creates a leaf location for entities awaiting service. It is a
// plain location under a name that matches its role.
func NewQueue(sim *Simulation, name string, parent *Location) *Location {
	return NewLocation(sim, name, parent, "")
}

// initLocation wires a location, standalone or embedded; self is the
// outer element (and Place) being built.
func (l *Location) initLocation(sim *Simulation, name string, parent *Location, entryPointName string, self Element) {
	l.acceptsChildren = true
	l.entryPointName = entryPointName
	l.present = make(map[*Entity]int)
	l.self = self.(Place)
	l.initStaticObject(sim, name, parent, self)
	l.population = NewCounter(sim, self, "Population", Infinite, false)
	l.entriesDS = newDataset(sim, self, "Entries", false)
	l.timeDS = newDataset(sim, self, "Time", false)
}

// newRootLocation builds the tree root. It is not registered as an
// element and collects no statistics.
func newRootLocation(sim *Simulation) *Location {
	root := &Location{
		staticObject:    staticObject{sim: sim, name: "Root"},
		isRoot:          true,
		acceptsChildren: true,
		present:         make(map[*Entity]int),
	}
	root.self = root
	return root
}

// addChild hooks a new static object under this location.
func (l *Location) addChild(child Element) {
	if !l.acceptsChildren {
		panic(fmt.Sprintf("%s cannot contain static objects", l.ElementID()))
	}
	l.children = append(l.children, child)
}

// Children returns the static objects directly under this location.
func (l *Location) Children() []Element {
	out := make([]Element, len(l.children))
	copy(out, l.children)
	return out
}

// childPlaces reports whether any direct child is itself a Place.
func (l *Location) childPlaces() bool {
	for _, c := range l.children {
		if _, ok := c.(Place); ok {
			return true
		}
	}
	return false
}

// EntryPoint resolves where a move to this location lands: the location
// itself if it declares no entry point and has no child places, otherwise
// the transitively resolved declared entry point.
func (l *Location) EntryPoint() (Place, error) {
	return l.entryPoint(0)
}

func (l *Location) entryPoint(depth int) (Place, error) {
	if depth > entryPointDepthLimit {
		return nil, fmt.Errorf("entry point chain through %s is too deep (cycle?)", l.ElementID())
	}
	if l.isRoot {
		return nil, fmt.Errorf("the root location has no entry point")
	}
	if l.entryPointName == "" {
		if l.childPlaces() {
			return nil, fmt.Errorf("location %s has child locations but no declared entry point", l.ElementID())
		}
		return l.self, nil
	}
	id := l.ElementID() + "." + l.entryPointName
	el := l.sim.Element(id)
	if el == nil {
		return nil, fmt.Errorf("entry point %q of %s does not resolve", l.entryPointName, l.ElementID())
	}
	p, ok := el.(Place)
	if !ok {
		return nil, fmt.Errorf("entry point %s of %s is not a location", id, l.ElementID())
	}
	return p.entryPoint(depth + 1)
}

// isAncestorOf reports whether l is on p's parent chain.
func (l *Location) isAncestorOf(p Place) bool {
	for anc := p.parentLocation(); anc != nil; anc = anc.parent {
		if anc == l {
			return true
		}
	}
	return false
}

// contains reports whether e is a resident at this level.
func (l *Location) contains(e *Entity) bool {
	_, ok := l.present[e]
	return ok
}

// onEnter makes e a resident here and, first, at every ancestor not
// already containing it. The root collects nothing.
func (l *Location) onEnter(e *Entity) {
	if l.isRoot || l.contains(e) {
		return
	}
	if l.parent != nil && !l.parent.isRoot {
		l.parent.onEnter(e)
	}
	l.present[e] = len(l.residents)
	l.residents = append(l.residents, residentEntry{entity: e, enterTime: l.sim.Now()})
	l.entriesDS.addValue(1)
	if err := l.population.Increment(nil, 1); err != nil {
		panic(fmt.Sprintf("population counter of %s: %v", l.ElementID(), err))
	}
}

// onExit removes e from this level and from every ancestor that is not
// also an ancestor of (or equal to) the move's destination, sampling the
// residency duration at each level left.
func (l *Location) onExit(e *Entity, next Place) {
	idx, ok := l.present[e]
	if !ok {
		panic(fmt.Sprintf("entity %s is not in location %s", e, l.ElementID()))
	}
	entered := l.residents[idx].enterTime
	l.residents = append(l.residents[:idx], l.residents[idx+1:]...)
	delete(l.present, e)
	for i := idx; i < len(l.residents); i++ {
		l.present[l.residents[i].entity] = i
	}

	l.timeDS.addValue(l.sim.Now().Sub(entered).Seconds())
	l.population.Decrement(1)

	parent := l.parent
	if parent == nil || parent.isRoot {
		return
	}
	if next != nil && (parent.self == next || parent.isAncestorOf(next)) {
		return
	}
	parent.onExit(e, next)
}

// Population returns the number of residents at this level right now.
func (l *Location) Population() int {
	if l.population == nil {
		return 0
	}
	return l.population.Value()
}

// MeanPopulation returns the time-weighted mean number of residents; the
// second return is false until the clock has advanced.
func (l *Location) MeanPopulation() (float64, bool) {
	if l.population == nil {
		return 0, false
	}
	return l.population.ds.Mean()
}

// Entries returns how many times an entity has entered this level.
func (l *Location) Entries() int {
	if l.entriesDS == nil {
		return 0
	}
	return l.entriesDS.Entries()
}

// Exits returns how many times an entity has left this level.
func (l *Location) Exits() int {
	if l.timeDS == nil {
		return 0
	}
	return l.timeDS.Entries()
}

// Residents returns the entities resident at this level, in entry order.
func (l *Location) Residents() []*Entity {
	out := make([]*Entity, len(l.residents))
	for i, r := range l.residents {
		out[i] = r.entity
	}
	return out
}

// moveEntity is the one mutation path for entity locations: exit the old
// chain, enter the new one, record the trace line.
func moveEntity(e *Entity, dest Place) error {
	if e.destroyed {
		return fmt.Errorf("entity %s has been destroyed", e)
	}
	target, err := dest.EntryPoint()
	if err != nil {
		return err
	}
	if target == e.location {
		return fmt.Errorf("entity %s is already at %s", e, target.ElementID())
	}
	if e.location != nil {
		e.location.onExit(e, target)
	}
	e.location = target
	target.onEnter(e)
	e.sim.traceEvent(e.String(), trace.MoveTo, target.ElementID())
	return nil
}
