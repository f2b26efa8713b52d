// Partitioned pseudo-random streams and the distribution constructors
// model code draws simulated-time values from.
//
// Each stream number derives its own PCG substream from the run's master
// seed via FNV-1a hashing, so draws on one stream never perturb another
// and an identical (seed, stream) pair reproduces identical values.

package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// PartitionedRNG provides isolated random number streams, created lazily
// and derived deterministically from a single master seed.
type PartitionedRNG struct {
	masterSeed uint64
	streams    map[int]rand.Source
}

// NewPartitionedRNG returns a partitioned RNG over the given master seed.
func NewPartitionedRNG(masterSeed uint64) *PartitionedRNG {
	return &PartitionedRNG{
		masterSeed: masterSeed,
		streams:    make(map[int]rand.Source),
	}
}

// Stream returns the source for the given stream number, creating it on
// first use. Stream numbers must be non-negative. Repeated calls with the
// same number return the same source.
func (p *PartitionedRNG) Stream(n int) rand.Source {
	if n < 0 {
		panic(fmt.Sprintf("random stream number must be non-negative, got %d", n))
	}
	if src, ok := p.streams[n]; ok {
		return src
	}
	src := rand.NewPCG(p.masterSeed, p.deriveSeed(n))
	p.streams[n] = src
	return src
}

// deriveSeed hashes the stream number so substream seeds are independent
// of the order streams are first requested.
func (p *PartitionedRNG) deriveSeed(n int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "stream-%d", n)
	return p.masterSeed ^ h.Sum64()
}

// A Sampler produces successive simulated-time values, typically
// interarrival or service durations.
type Sampler func() SimTime

// Constant returns a sampler that always yields value.
func Constant(value SimTime) Sampler {
	return func() SimTime { return value }
}

// RoundRobin returns a sampler cycling deterministically through choices.
func RoundRobin(choices ...SimTime) Sampler {
	if len(choices) == 0 {
		panic("RoundRobin requires at least one choice")
	}
	i := 0
	return func() SimTime {
		v := choices[i]
		i = (i + 1) % len(choices)
		return v
	}
}

// Uniform returns a sampler of values uniformly distributed in [a, b],
// in a's units.
func Uniform(src rand.Source, a, b SimTime) Sampler {
	dist := distuv.Uniform{Min: a.Value(), Max: a.converted(b), Src: src}
	unit := a.Unit()
	return func() SimTime { return SimTime{value: dist.Rand(), unit: unit} }
}

// Exponential returns a sampler of exponentially distributed values with
// the given mean, in the mean's units.
func Exponential(src rand.Source, mean SimTime) Sampler {
	if mean.Value() <= 0 {
		panic(fmt.Sprintf("exponential mean must be positive, got %v", mean))
	}
	dist := distuv.Exponential{Rate: 1 / mean.Value(), Src: src}
	unit := mean.Unit()
	return func() SimTime { return SimTime{value: dist.Rand(), unit: unit} }
}

// Triangular returns a sampler of triangularly distributed values over
// [low, high] with the given mode, in low's units.
func Triangular(src rand.Source, low, high, mode SimTime) Sampler {
	dist := distuv.NewTriangle(low.Value(), low.converted(high), low.converted(mode), src)
	unit := low.Unit()
	return func() SimTime { return SimTime{value: dist.Rand(), unit: unit} }
}

// Normal returns a sampler of normally distributed values with the given
// mean and standard deviation, in the mean's units. Draws are resampled
// until non-negative, since negative durations are meaningless.
func Normal(src rand.Source, mean, stddev SimTime) Sampler {
	dist := distuv.Normal{Mu: mean.Value(), Sigma: mean.converted(stddev), Src: src}
	unit := mean.Unit()
	return func() SimTime {
		for {
			if v := dist.Rand(); v >= 0 {
				return SimTime{value: v, unit: unit}
			}
		}
	}
}

// Weibull returns a sampler of Weibull-distributed values with the given
// shape and scale, in the scale's units.
func Weibull(src rand.Source, shape float64, scale SimTime) Sampler {
	dist := distuv.Weibull{K: shape, Lambda: scale.Value(), Src: src}
	unit := scale.Unit()
	return func() SimTime { return SimTime{value: dist.Rand(), unit: unit} }
}

// Gamma returns a sampler of gamma-distributed values with the given
// shape and scale, in the scale's units. The mean is shape * scale.
func Gamma(src rand.Source, shape float64, scale SimTime) Sampler {
	if shape <= 0 || scale.Value() <= 0 {
		panic(fmt.Sprintf("gamma shape and scale must be positive, got %v and %v", shape, scale))
	}
	dist := distuv.Gamma{Alpha: shape, Beta: 1 / scale.Value(), Src: src}
	unit := scale.Unit()
	return func() SimTime { return SimTime{value: dist.Rand(), unit: unit} }
}

// LogNormal returns a sampler of log-normally distributed values with the
// given log-scale location and shape, denominated in unit.
func LogNormal(src rand.Source, mu, sigma float64, unit TimeUnit) Sampler {
	if sigma <= 0 {
		panic(fmt.Sprintf("lognormal sigma must be positive, got %v", sigma))
	}
	dist := distuv.LogNormal{Mu: mu, Sigma: sigma, Src: src}
	return func() SimTime { return NewSimTime(dist.Rand(), unit) }
}
