// Defines Element, the interface shared by every named, statistics-bearing
// model object, and the embeddable base that carries its datasets.

package sim

import "fmt"

// Element is a named model object that owns datasets. Locations,
// resources, sources, sinks and entity types are all elements; transient
// objects (entities) are not, their statistics roll up to their type's
// element. Implementations embed elementBase, which confines them to this
// package; model-specific behavior plugs into the concrete element types
// rather than new Element implementations.
type Element interface {
	// ElementID is the fully qualified identifier, unique per Simulation:
	// the element name prefixed by its ancestor location names, dotted.
	ElementID() string
	// ElementName is the base name, unique within the parent location.
	ElementName() string
	// Datasets returns the element's registered datasets.
	Datasets() []*Dataset
	// Dataset returns the named dataset, or nil.
	Dataset(name string) *Dataset

	addDataset(ds *Dataset)
}

// elementBase carries the dataset registry embedded by every Element
// implementation.
type elementBase struct {
	datasets []*Dataset
}

func (e *elementBase) Datasets() []*Dataset { return e.datasets }

func (e *elementBase) Dataset(name string) *Dataset {
	for _, ds := range e.datasets {
		if ds.Name() == name {
			return ds
		}
	}
	return nil
}

func (e *elementBase) addDataset(ds *Dataset) {
	for _, existing := range e.datasets {
		if existing.Name() == ds.Name() {
			panic(fmt.Sprintf("dataset %q already registered on element %q", ds.Name(), ds.ElementID()))
		}
	}
	e.datasets = append(e.datasets, ds)
}

// validElementName panics unless name is usable as an element name:
// non-empty, no '.' (reserved for the ID hierarchy).
func validElementName(name string) {
	if name == "" {
		panic("element name must not be empty")
	}
	for _, r := range name {
		if r == '.' {
			panic(fmt.Sprintf("element name %q must not contain '.'", name))
		}
	}
}
