// Statistics accumulators and end-of-run summary helpers.
//
// Two accumulator kinds cover everything the kernel measures: SampleStat
// for discrete observations (queue times, process times) and
// TimeWeightedStat for state variables integrated over simulated time
// (populations, utilization). Summary and confidence-interval helpers are
// built on gonum's stat and distuv packages.

package sim

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SampleStat accumulates unweighted observations.
type SampleStat struct {
	count int
	sum   float64
	min   float64
	max   float64
}

// Add records one observation.
func (s *SampleStat) Add(value float64) {
	if s.count == 0 {
		s.min = value
		s.max = value
	} else {
		s.min = math.Min(s.min, value)
		s.max = math.Max(s.max, value)
	}
	s.count++
	s.sum += value
}

// Count returns the number of observations recorded.
func (s *SampleStat) Count() int { return s.count }

// Mean returns the arithmetic mean of the observations. The second return
// is false when no observations have been recorded.
func (s *SampleStat) Mean() (float64, bool) {
	if s.count == 0 {
		return 0, false
	}
	return s.sum / float64(s.count), true
}

// Min returns the smallest observation, or false when empty.
func (s *SampleStat) Min() (float64, bool) {
	if s.count == 0 {
		return 0, false
	}
	return s.min, true
}

// Max returns the largest observation, or false when empty.
func (s *SampleStat) Max() (float64, bool) {
	if s.count == 0 {
		return 0, false
	}
	return s.max, true
}

// TimeWeightedStat integrates a piecewise-constant value over simulated
// time. Update must be called with non-decreasing times; the mean at time
// now is the integral of the value divided by the elapsed span, undefined
// until the clock has advanced past the first observation.
type TimeWeightedStat struct {
	started   bool
	startTime SimTime
	lastTime  SimTime
	lastValue float64
	integral  float64
	min       float64
	max       float64
}

// Update records that the tracked value changed to value at time now.
func (s *TimeWeightedStat) Update(now SimTime, value float64) {
	if !s.started {
		s.started = true
		s.startTime = now
		s.lastTime = now
		s.lastValue = value
		s.min = value
		s.max = value
		return
	}
	if now.Before(s.lastTime) {
		panic(fmt.Sprintf("time-weighted update at %v precedes last update at %v", now, s.lastTime))
	}
	s.integral += s.lastValue * now.Sub(s.lastTime).Seconds()
	s.lastTime = now
	s.lastValue = value
	s.min = math.Min(s.min, value)
	s.max = math.Max(s.max, value)
}

// Mean returns the time-weighted mean over [start, now]. The second
// return is false when the elapsed span is zero.
func (s *TimeWeightedStat) Mean(now SimTime) (float64, bool) {
	if !s.started {
		return 0, false
	}
	span := now.Sub(s.startTime).Seconds()
	if span <= 0 {
		return 0, false
	}
	integral := s.integral + s.lastValue*now.Sub(s.lastTime).Seconds()
	return integral / span, true
}

// Min returns the smallest value observed, or false when empty.
func (s *TimeWeightedStat) Min() (float64, bool) {
	if !s.started {
		return 0, false
	}
	return s.min, true
}

// Max returns the largest value observed, or false when empty.
func (s *TimeWeightedStat) Max() (float64, bool) {
	if !s.started {
		return 0, false
	}
	return s.max, true
}

// Current returns the most recently recorded value, or false when empty.
func (s *TimeWeightedStat) Current() (float64, bool) {
	if !s.started {
		return 0, false
	}
	return s.lastValue, true
}

// MeanStdDev returns the mean and sample standard deviation of the
// values. The boolean return is false when fewer than two values are
// supplied.
func MeanStdDev(values []float64) (float64, float64, bool) {
	if len(values) < 2 {
		return 0, 0, false
	}
	mean, std := stat.MeanStdDev(values, nil)
	return mean, std, true
}

// ConfidenceInterval is a two-sided interval around a point estimate.
type ConfidenceInterval struct {
	Lower float64
	Upper float64
}

// TConfidenceInterval returns the Student-t confidence interval for the
// mean of the values at the given confidence level (e.g. 0.95). It
// returns false when fewer than two values are supplied or the level is
// not in (0, 1).
func TConfidenceInterval(values []float64, level float64) (ConfidenceInterval, bool) {
	n := len(values)
	if n < 2 || level <= 0 || level >= 1 {
		return ConfidenceInterval{}, false
	}
	mean, std := stat.MeanStdDev(values, nil)
	sem := std / math.Sqrt(float64(n))
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	h := sem * t.Quantile(0.5+level/2)
	return ConfidenceInterval{Lower: mean - h, Upper: mean + h}, true
}

// NormalConfidenceInterval returns the normal-approximation confidence
// interval for the mean of the values. It returns false when fewer than
// two values are supplied or the level is not in (0, 1).
func NormalConfidenceInterval(values []float64, level float64) (ConfidenceInterval, bool) {
	n := len(values)
	if n < 2 || level <= 0 || level >= 1 {
		return ConfidenceInterval{}, false
	}
	mean, std := stat.MeanStdDev(values, nil)
	sem := std / math.Sqrt(float64(n))
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.5 + level/2)
	return ConfidenceInterval{Lower: mean - sem*z, Upper: mean + sem*z}, true
}

// QuantileConfidenceInterval returns a nonparametric confidence interval
// for the given quantile of the values, using the normal approximation to
// the binomial order statistics. It returns false when the sample is too
// small for the requested level or the parameters are out of range.
func QuantileConfidenceInterval(values []float64, quantile, level float64) (ConfidenceInterval, bool) {
	n := len(values)
	if n < 2 || quantile <= 0 || quantile >= 1 || level <= 0 || level >= 1 {
		return ConfidenceInterval{}, false
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.5 + level/2)
	h := z * math.Sqrt(float64(n)*quantile*(1-quantile))
	lo := int(math.Floor(float64(n)*quantile-h)) - 1
	hi := int(math.Ceil(float64(n)*quantile + h))
	if lo < 0 || hi >= n {
		return ConfidenceInterval{}, false
	}
	return ConfidenceInterval{Lower: sorted[lo], Upper: sorted[hi]}, true
}

// Quantile returns the empirical q-quantile of the values, or false when
// the slice is empty or q is out of range.
func Quantile(values []float64, q float64) (float64, bool) {
	if len(values) == 0 || q < 0 || q > 1 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(q, stat.Empirical, sorted, nil), true
}
