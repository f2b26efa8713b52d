// Defines Dataset, the named stream of values an element collects during
// a run. A dataset is either unweighted (discrete observations, raw series
// retained for interval estimation) or time-weighted (state variable
// integrated over the clock).

package sim

// Dataset is one named value stream owned by an element. Values flow in
// through the kernel's collection points (counters, locations, resources,
// entity types); the query surface is readable at any time during or
// after a run.
type Dataset struct {
	sim          *Simulation
	element      Element
	name         string
	timeWeighted bool
	enabled      bool

	sample   SampleStat
	weighted TimeWeightedStat
	series   []float64
	entries  int
}

// newDataset creates a dataset and registers it on its element. Dataset
// names are unique per element.
func newDataset(sim *Simulation, element Element, name string, timeWeighted bool) *Dataset {
	ds := &Dataset{
		sim:          sim,
		element:      element,
		name:         name,
		timeWeighted: timeWeighted,
		enabled:      true,
	}
	element.addDataset(ds)
	return ds
}

// addValue records one value at the current simulated time. Collection
// points call this unconditionally; disabled datasets drop the value but
// still count the entry, so structural counts (entries, exits) survive
// disabling statistics.
func (ds *Dataset) addValue(value float64) {
	ds.entries++
	if !ds.enabled {
		return
	}
	if ds.timeWeighted {
		ds.weighted.Update(ds.sim.Now(), value)
	} else {
		ds.sample.Add(value)
		ds.series = append(ds.series, value)
	}
}

// Name returns the dataset name, unique within its element.
func (ds *Dataset) Name() string { return ds.name }

// ElementID returns the owning element's fully qualified identifier.
func (ds *Dataset) ElementID() string { return ds.element.ElementID() }

// IsTimeWeighted reports whether values are integrated over simulated
// time rather than averaged per observation.
func (ds *Dataset) IsTimeWeighted() bool { return ds.timeWeighted }

// Entries returns the number of values recorded, including values dropped
// while the dataset was disabled.
func (ds *Dataset) Entries() int { return ds.entries }

// SetEnabled turns collection on or off. Entry counting continues either
// way.
func (ds *Dataset) SetEnabled(enabled bool) { ds.enabled = enabled }

// Mean returns the dataset mean: time-weighted over the elapsed clock for
// time-weighted datasets, arithmetic otherwise. The second return is
// false when the dataset has no defined mean yet.
func (ds *Dataset) Mean() (float64, bool) {
	if ds.timeWeighted {
		return ds.weighted.Mean(ds.sim.Now())
	}
	return ds.sample.Mean()
}

// Min returns the smallest value observed, or false when empty.
func (ds *Dataset) Min() (float64, bool) {
	if ds.timeWeighted {
		return ds.weighted.Min()
	}
	return ds.sample.Min()
}

// Max returns the largest value observed, or false when empty.
func (ds *Dataset) Max() (float64, bool) {
	if ds.timeWeighted {
		return ds.weighted.Max()
	}
	return ds.sample.Max()
}

// Count returns the number of collected observations for unweighted
// datasets; for time-weighted datasets it returns the entry count.
func (ds *Dataset) Count() int {
	if ds.timeWeighted {
		return ds.entries
	}
	return ds.sample.Count()
}

// Values returns a copy of the raw series for unweighted datasets, nil
// for time-weighted ones.
func (ds *Dataset) Values() []float64 {
	if ds.timeWeighted || len(ds.series) == 0 {
		return nil
	}
	out := make([]float64, len(ds.series))
	copy(out, ds.series)
	return out
}
