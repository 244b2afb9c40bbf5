package climdiag

import (
	"math"
	"sort"

	"github.com/hhkbp2/go-logging"
	"gonum.org/v1/gonum/stat"
)

// PercentileLevels are the reported points of the per-year distribution.
var PercentileLevels = []float64{5, 10, 25, 50, 75, 90, 95}

// YearStats is the aggregated cross-run distribution for one calendar
// year. Percentiles follows PercentileLevels. A year no run covers holds
// NaN throughout; that is missing data, not an error.
type YearStats struct {
	Year        int
	Mean        float64
	Percentiles []float64
}

// CalculatePercentiles computes the per-year distribution of the
// normalized runs over [startYear, endYear). With averageExperiments
// set, values are first averaged within each (model, experiment,
// matched experiment) group and the distribution is taken over the
// group averages.
func CalculatePercentiles(table RunTable, startYear int, endYear int, averageExperiments bool) []YearStats {
	logger := logging.GetLogger("climdiag")
	logger.Infof("calculating percentiles over %d-%d", startYear, endYear-1)

	rows := make([]YearStats, 0, endYear-startYear)
	for year := startYear; year < endYear; year++ {
		rows = append(rows, percentileYear(table, year, averageExperiments))
	}
	return rows
}

// percentileYear collects the value at one year across all runs and
// reduces it to a mean plus the fixed percentile set.
func percentileYear(table RunTable, year int, averageExperiments bool) YearStats {
	var data []float64

	if averageExperiments {
		type key struct{ model, exp, matchedExp string }
		groups := map[key][]float64{}
		var order []key
		for _, run := range table {
			v, ok := run.Cube.ExtractYear(year)
			if !ok {
				continue
			}
			k := key{run.Model, run.Experiment, run.MatchedExp}
			if _, seen := groups[k]; !seen {
				order = append(order, k)
			}
			groups[k] = append(groups[k], v)
		}
		for _, k := range order {
			data = append(data, stat.Mean(groups[k], nil))
		}
	} else {
		for _, run := range table {
			if v, ok := run.Cube.ExtractYear(year); ok {
				data = append(data, v)
			}
		}
	}

	row := YearStats{Year: year, Percentiles: make([]float64, len(PercentileLevels))}
	if len(data) == 0 {
		row.Mean = math.NaN()
		for i := range row.Percentiles {
			row.Percentiles[i] = math.NaN()
		}
		return row
	}

	row.Mean = stat.Mean(data, nil)
	sort.Float64s(data)
	for i, p := range PercentileLevels {
		row.Percentiles[i] = Percentile(data, p)
	}
	return row
}

// Percentile computes the p-th percentile (0-100) of sorted data by
// linear interpolation between the two closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := float64(n-1) * p / 100.0
	lower := int(math.Floor(h))
	upper := int(math.Ceil(h))
	if lower < 0 {
		return sorted[0]
	}
	if upper >= n {
		return sorted[n-1]
	}
	if lower == upper {
		return sorted[lower]
	}
	frac := h - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
