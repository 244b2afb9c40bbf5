package climdiag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refSettings() Settings {
	s := DefaultSettings()
	s.RefStart, s.RefEnd = 1980, 2009
	return s
}

// matchedPair builds a historical/future pair already matched by index.
func matchedPair(hist *Cube, fut *Cube) RunTable {
	h := &Run{Model: "model-A", Experiment: "historical", Ensemble: "r1i1p1", Cube: hist, MatchIdx: -1}
	f := &Run{Model: "model-A", Experiment: "rcp45", Ensemble: "r1i1p1", Cube: fut, MatchIdx: 0}
	return RunTable{h, f}
}

// The reference combines the branches weighted by their sample counts:
// (Hm*Hc + Fm*Fc) / (Hc + Fc).
func Test_Reference_CombinationLaw(t *testing.T) {
	table := matchedPair(
		constantSeries(1961, 2009, 10.0),
		constantSeries(2006, 2099, 12.0))

	s := refSettings()
	s.FutureStart, s.FutureEnd = 2006, 2099

	require.NoError(t, CalculateReferenceValues(table, s))
	require.NotNil(t, table[1].RefValue)

	// historical: 30 samples of 10.0; future: 94 samples of 12.0
	want := (10.0*30 + 12.0*94) / (30 + 94)
	assert.InDelta(t, want, *table[1].RefValue, 1e-9)
}

// An array one sample short of the minimum must not contribute.
func Test_Reference_MinimumSamples(t *testing.T) {
	// 19 historical samples in the window: below the minimum of 20.
	table := matchedPair(
		constantSeries(1991, 2009, 10.0),
		constantSeries(2006, 2099, 12.0))
	require.NoError(t, CalculateReferenceValues(table, refSettings()))
	assert.Nil(t, table[1].RefValue)

	// Exactly 20 samples qualifies.
	table = matchedPair(
		constantSeries(1990, 2009, 10.0),
		constantSeries(2006, 2099, 12.0))
	require.NoError(t, CalculateReferenceValues(table, refSettings()))
	assert.NotNil(t, table[1].RefValue)
}

// A group with an empty branch yields no reference value and no panic.
func Test_Reference_ZeroBranch(t *testing.T) {
	// The future run does not intersect the reference window at all.
	table := matchedPair(
		constantSeries(1961, 2009, 10.0),
		constantSeries(2050, 2099, 12.0))

	require.NoError(t, CalculateReferenceValues(table, refSettings()))
	assert.Nil(t, table[1].RefValue)
}

// Branches average their runs without weighting between runs: the means
// are averaged unweighted, the counts are averaged unweighted, and only
// the branch combination weights by count.
func Test_Reference_BranchMeanOfMeans(t *testing.T) {
	hist := &Run{Model: "model-A", Experiment: "historical", Ensemble: "r1i1p1",
		Cube: constantSeries(1961, 2009, 10.0), MatchIdx: -1}
	futA := &Run{Model: "model-A", Experiment: "rcp45", Ensemble: "r1i1p1",
		Cube: constantSeries(1980, 2009, 12.0), MatchIdx: 0}
	futB := &Run{Model: "model-A", Experiment: "rcp85", Ensemble: "r1i1p1",
		Cube: constantSeries(2000, 2009, 18.0), MatchIdx: 0}
	table := RunTable{hist, futA, futB}

	s := refSettings()
	s.NormBy = "model"
	require.NoError(t, CalculateReferenceValues(table, s))
	require.NotNil(t, table[1].RefValue)

	// future branch: means {12, 18} -> 15, counts {30, 10} -> 20
	// historical branch: two contributions of the same run: mean 10, count 30
	want := (10.0*30 + 15.0*20) / (30 + 20)
	assert.InDelta(t, want, *table[1].RefValue, 1e-9)
	// Per-model references apply to the historical row too.
	require.NotNil(t, table[0].RefValue)
	assert.InDelta(t, want, *table[0].RefValue, 1e-9)
}

// Per-experiment granularity computes one reference per experiment group.
func Test_Reference_PerExperiment(t *testing.T) {
	hist := &Run{Model: "model-A", Experiment: "historical", Ensemble: "r1i1p1",
		Cube: constantSeries(1961, 2009, 10.0), MatchIdx: -1}
	futA := &Run{Model: "model-A", Experiment: "rcp45", Ensemble: "r1i1p1",
		Cube: constantSeries(1980, 2009, 12.0), MatchIdx: 0}
	futB := &Run{Model: "model-A", Experiment: "rcp85", Ensemble: "r1i1p1",
		Cube: constantSeries(1980, 2009, 20.0), MatchIdx: 0}
	table := RunTable{hist, futA, futB}

	s := refSettings()
	s.NormBy = "experiment"
	require.NoError(t, CalculateReferenceValues(table, s))
	require.NotNil(t, table[1].RefValue)
	require.NotNil(t, table[2].RefValue)

	want45 := (10.0*30 + 12.0*30) / 60
	want85 := (10.0*30 + 20.0*30) / 60
	assert.InDelta(t, want45, *table[1].RefValue, 1e-9)
	assert.InDelta(t, want85, *table[2].RefValue, 1e-9)
	// The original historical row receives no value at this granularity.
	assert.Nil(t, table[0].RefValue)
}

// Unmatched future rows are excluded from reference computation.
func Test_Reference_UnmatchedExcluded(t *testing.T) {
	f := &Run{Model: "model-A", Experiment: "rcp45", Ensemble: "r1i1p1",
		Cube: constantSeries(1980, 2009, 12.0), MatchIdx: -1}
	table := RunTable{f}

	require.NoError(t, CalculateReferenceValues(table, refSettings()))
	assert.Nil(t, f.RefValue)
}

// Seasonal and monthly modes scale the minimum sample counts.
func Test_Reference_MinDataScaling(t *testing.T) {
	s := refSettings()
	s.Yearly = false
	s.Season = "djf"
	c := newReferenceCalculation(s)
	assert.Equal(t, 60, c.minHistorical)
	assert.Equal(t, 12, c.minFuture)

	s.Season = ""
	c = newReferenceCalculation(s)
	assert.Equal(t, 240, c.minHistorical)
	assert.Equal(t, 48, c.minFuture)

	s.Yearly = true
	c = newReferenceCalculation(s)
	assert.Equal(t, 20, c.minHistorical)
	assert.Equal(t, 4, c.minFuture)
}
