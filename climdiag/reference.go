package climdiag

import (
	"github.com/hhkbp2/go-logging"
)

// Base minimum sample counts inside the reference window. Scaled by 3
// for seasonal and by 12 for monthly data, since those keep more than
// one sample per year.
var minData = map[string]int{
	"historical": 20,
	"future":     4,
}

// branchStat is the collapsed value of one run restricted to the
// reference window: its time mean and the number of samples behind it.
type branchStat struct {
	mean float64
	n    int
}

// referenceCalculation computes the baseline value for groups of runs.
// One reference value combines the historical branch and the future
// branch of a group: each branch is collapsed to a mean-of-means with a
// representative sample count, and the two branches are combined
// weighted by those counts.
type referenceCalculation struct {
	refStart      int
	refEnd        int
	futStart      int // window for the future branch
	futEnd        int
	minHistorical int
	minFuture     int
}

func newReferenceCalculation(s Settings) *referenceCalculation {
	scale := 1
	if !s.Yearly {
		if s.Season != "" {
			scale = 3
		} else {
			scale = 12
		}
	}
	c := &referenceCalculation{
		refStart:      s.RefStart,
		refEnd:        s.RefEnd,
		futStart:      s.FutureStart,
		futEnd:        s.FutureEnd,
		minHistorical: scale * minData["historical"],
		minFuture:     scale * minData["future"],
	}
	// The future branch uses the reference window unless its own window
	// is configured.
	if c.futStart == 0 && c.futEnd == 0 {
		c.futStart, c.futEnd = c.refStart, c.refEnd
	}
	return c
}

// CalculateReferenceValues attaches a reference value to the rows of the
// table, grouped by the configured granularity. Cubes are first
// restricted to the configured season (if any) and averaged to years
// (unless monthly mode is requested); this prepares the same cubes that
// normalization will mutate later.
//
// Groups without enough qualifying data on either branch get no
// reference value; their rows are excluded from all downstream steps.
func CalculateReferenceValues(table RunTable, s Settings) error {
	logger := logging.GetLogger("climdiag")

	normBy, err := ParseNormBy(s.NormBy)
	if err != nil {
		return err
	}

	prepareCubes(table, s)

	calc := newReferenceCalculation(s)

	// Only matched future rows contribute to (and receive) references.
	future := table.Select(func(r *Run) bool {
		return r.Experiment != s.HistoricalKey && r.MatchIdx >= 0
	})

	switch normBy {
	case NormByModel:
		for _, model := range future.Models() {
			group := future.Select(func(r *Run) bool { return r.Model == model })
			value := calc.refValue(table, group, model)
			if value == nil {
				continue
			}
			// Per-model references apply to every row of the model,
			// the historical ones included.
			for _, run := range table {
				if run.Model == model {
					run.RefValue = value
				}
			}
		}
	case NormByExperiment:
		for _, model := range future.Models() {
			modelRows := future.Select(func(r *Run) bool { return r.Model == model })
			for _, exp := range experiments(modelRows) {
				group := modelRows.Select(func(r *Run) bool { return r.Experiment == exp })
				value := calc.refValue(table, group, model)
				if value == nil {
					continue
				}
				for _, run := range group {
					run.RefValue = value
				}
			}
		}
	default: // NormByRun
		for _, run := range future {
			run.RefValue = calc.refValue(table, RunTable{run}, run.Model)
		}
	}

	dropped := 0
	for _, run := range future {
		if run.RefValue == nil {
			dropped++
		}
	}
	if dropped > 0 {
		logger.Warnf("%d future runs received no reference value and will be dropped", dropped)
	}
	return nil
}

// prepareCubes applies season extraction and annual averaging in place.
func prepareCubes(table RunTable, s Settings) {
	logger := logging.GetLogger("climdiag")
	for _, run := range table {
		if s.Season != "" {
			ex := run.Cube.ExtractSeason(s.Season)
			if ex == nil {
				logger.Warnf("%s/%s/%s has no data for season %s",
					run.Model, run.Experiment, run.Ensemble, s.Season)
				ex = NewSeries(run.Cube.Name, run.Cube.Unit, nil, nil)
			}
			run.Cube = ex
		}
		if s.Yearly {
			run.Cube = run.Cube.AnnualMean(s.Season)
		}
	}
}

// refValue combines the historical and future branches of one group.
// Returns nil when either branch has no qualifying data.
func (c *referenceCalculation) refValue(table RunTable, group RunTable, model string) *float64 {
	logger := logging.GetLogger("climdiag")

	histCubes := make([]*Cube, len(group))
	futCubes := make([]*Cube, len(group))
	for i, run := range group {
		histCubes[i] = table[run.MatchIdx].Cube
		futCubes[i] = run.Cube
	}

	hist := c.branchStats(histCubes, c.minHistorical, c.refStart, c.refEnd, model)
	fut := c.branchStats(futCubes, c.minFuture, c.futStart, c.futEnd, model)
	if len(hist) == 0 || len(fut) == 0 {
		// Too few data to calculate a decent bias.
		logger.Warnf("%s does not have enough data to compute a reference", model)
		return nil
	}

	// Each branch collapses to an unweighted mean of the per-run means
	// and the average sample count of its runs; the branches are then
	// combined weighted by those counts.
	hMean, hCount := branchAverage(hist)
	fMean, fCount := branchAverage(fut)
	logger.Debugf("reference for %s: historical %f (weight %f), future %f (weight %f)",
		model, hMean, hCount, fMean, fCount)

	value := (hMean*hCount + fMean*fCount) / (hCount + fCount)
	return &value
}

// branchStats collapses each cube of a branch to its time-weighted mean
// over the reference window. Cubes that miss the window or fall short of
// the minimum sample count are skipped with a warning.
func (c *referenceCalculation) branchStats(cubes []*Cube, min int, start int, end int, model string) []branchStat {
	logger := logging.GetLogger("climdiag")

	var stats []branchStat
	for _, cube := range cubes {
		ex := cube.ExtractYearRange(start, end)
		if ex == nil {
			logger.Warnf("a cube of %s does not intersect the reference period %d-%d",
				model, start, end)
			continue
		}
		if ex.TimeLen() < min {
			logger.Warnf("a cube of %s has only %d data points in the reference period",
				model, ex.TimeLen())
			continue
		}
		mean, n := ex.TimeMean()
		stats = append(stats, branchStat{mean: mean, n: n})
	}
	return stats
}

// branchAverage reduces one branch to a single mean value and a single
// representative sample count (both unweighted averages across runs).
func branchAverage(stats []branchStat) (mean float64, count float64) {
	n := float64(len(stats))
	for _, s := range stats {
		mean += s.mean
		count += float64(s.n)
	}
	return mean / n, count / n
}

// experiments lists the distinct experiments of a table in first-seen order.
func experiments(table RunTable) []string {
	var exps []string
	seen := map[string]bool{}
	for _, r := range table {
		if !seen[r.Experiment] {
			seen[r.Experiment] = true
			exps = append(exps, r.Experiment)
		}
	}
	return exps
}
