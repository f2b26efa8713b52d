package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleStatAccumulates(t *testing.T) {
	var s SampleStat
	for _, v := range []float64{3, 1, 2} {
		s.Add(v)
	}

	if got := s.Count(); got != 3 {
		t.Errorf("count: got %d, want 3", got)
	}
	if mean, ok := s.Mean(); !ok || mean != 2.0 {
		t.Errorf("mean: got %v (ok=%v), want 2", mean, ok)
	}
	if min, ok := s.Min(); !ok || min != 1.0 {
		t.Errorf("min: got %v (ok=%v), want 1", min, ok)
	}
	if max, ok := s.Max(); !ok || max != 3.0 {
		t.Errorf("max: got %v (ok=%v), want 3", max, ok)
	}
}

func TestSampleStatEmpty(t *testing.T) {
	var s SampleStat
	if _, ok := s.Mean(); ok {
		t.Error("mean of an empty accumulator: expected no value")
	}
	if _, ok := s.Min(); ok {
		t.Error("min of an empty accumulator: expected no value")
	}
	if _, ok := s.Max(); ok {
		t.Error("max of an empty accumulator: expected no value")
	}
}

func TestTimeWeightedStatIntegrates(t *testing.T) {
	// Value 2 for 10s, 5 for 10s, then 1 for the 10s up to the query.
	var s TimeWeightedStat
	s.Update(seconds(0), 2)
	s.Update(seconds(10), 5)
	s.Update(seconds(20), 1)

	mean, ok := s.Mean(seconds(30))
	want := 80.0 / 30.0
	if !ok || mean != want {
		t.Errorf("mean: got %v (ok=%v), want %v", mean, ok, want)
	}
	if min, _ := s.Min(); min != 1.0 {
		t.Errorf("min: got %v, want 1", min)
	}
	if max, _ := s.Max(); max != 5.0 {
		t.Errorf("max: got %v, want 5", max)
	}
	if cur, _ := s.Current(); cur != 1.0 {
		t.Errorf("current: got %v, want 1", cur)
	}
}

func TestTimeWeightedStatRequiresElapsedTime(t *testing.T) {
	var s TimeWeightedStat
	if _, ok := s.Mean(seconds(10)); ok {
		t.Error("mean before any update: expected no value")
	}
	s.Update(seconds(5), 3)
	if _, ok := s.Mean(seconds(5)); ok {
		t.Error("mean over a zero span: expected no value")
	}
	if _, ok := s.Mean(seconds(6)); !ok {
		t.Error("mean after the clock advanced: expected a value")
	}
}

func TestTimeWeightedStatRejectsTimeRegression(t *testing.T) {
	var s TimeWeightedStat
	s.Update(seconds(10), 1)
	expectPanic(t, "backwards update", func() { s.Update(seconds(5), 2) })
}

func TestTConfidenceInterval(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	ci, ok := TConfidenceInterval(values, 0.95)
	require.True(t, ok, "interval for five values")
	assert.InDelta(t, 1.0368, ci.Lower, 1e-3, "lower bound")
	assert.InDelta(t, 4.9632, ci.Upper, 1e-3, "upper bound")
}

func TestNormalConfidenceInterval(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	ci, ok := NormalConfidenceInterval(values, 0.95)
	require.True(t, ok, "interval for five values")
	assert.InDelta(t, 1.6141, ci.Lower, 1e-3, "lower bound")
	assert.InDelta(t, 4.3859, ci.Upper, 1e-3, "upper bound")

	// The normal interval is narrower than the t interval on the same data.
	tci, _ := TConfidenceInterval(values, 0.95)
	assert.Greater(t, ci.Lower, tci.Lower, "normal vs t lower bound")
	assert.Less(t, ci.Upper, tci.Upper, "normal vs t upper bound")
}

func TestQuantileConfidenceInterval(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}

	ci, ok := QuantileConfidenceInterval(values, 0.5, 0.95)
	require.True(t, ok, "median interval for a hundred values")
	assert.Equal(t, 40.0, ci.Lower, "lower order statistic")
	assert.Equal(t, 61.0, ci.Upper, "upper order statistic")
}

func TestConfidenceIntervalValidation(t *testing.T) {
	one := []float64{1}
	five := []float64{1, 2, 3, 4, 5}

	if _, ok := TConfidenceInterval(one, 0.95); ok {
		t.Error("t interval over one value: expected no interval")
	}
	if _, ok := TConfidenceInterval(five, 0); ok {
		t.Error("t interval at level 0: expected no interval")
	}
	if _, ok := NormalConfidenceInterval(five, 1); ok {
		t.Error("normal interval at level 1: expected no interval")
	}
	// Five values cannot pin a 95% interval around the median.
	if _, ok := QuantileConfidenceInterval(five, 0.5, 0.95); ok {
		t.Error("quantile interval over five values: expected no interval")
	}
}

func TestQuantile(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}

	if q, ok := Quantile(values, 0.5); !ok || q != 3.0 {
		t.Errorf("median: got %v (ok=%v), want 3", q, ok)
	}
	if q, ok := Quantile(values, 0.9); !ok || q != 5.0 {
		t.Errorf("0.9 quantile: got %v (ok=%v), want 5", q, ok)
	}
	if _, ok := Quantile(nil, 0.5); ok {
		t.Error("quantile of nothing: expected no value")
	}
	if _, ok := Quantile(values, 1.5); ok {
		t.Error("quantile out of range: expected no value")
	}
}
