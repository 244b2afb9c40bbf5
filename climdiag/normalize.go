package climdiag

import (
	"github.com/hhkbp2/go-logging"
)

// Normalize turns every surviving run into a baseline-relative series,
// mutating the cubes in place. In relative mode the change is expressed
// as a percentage of the reference value and the unit is relabeled.
//
// For granularities other than per-model the matched historical rows are
// duplicated first, once per future match, so both branches carry
// normalized values against the same reference. Each duplicate owns an
// independent copy of the underlying series; the duplicates of one
// historical run must not alias each other. Rows that never received a
// reference value are discarded here.
func Normalize(table RunTable, relative bool, normBy NormBy) RunTable {
	logger := logging.GetLogger("climdiag")

	if normBy != NormByModel {
		// Fan-out: one duplicated historical row per matched future row,
		// carrying the future row's reference value and a back-reference
		// to the experiment it now represents.
		n := len(table)
		for i := 0; i < n; i++ {
			run := table[i]
			if run.MatchIdx < 0 || run.RefValue == nil {
				continue
			}
			hist := table[run.MatchIdx]
			table = append(table, &Run{
				Model:      hist.Model,
				Experiment: hist.Experiment,
				Ensemble:   hist.Ensemble,
				StartYear:  hist.StartYear,
				EndYear:    hist.EndYear,
				Path:       hist.Path,
				Cube:       hist.Cube.Copy(),
				MatchIdx:   i,
				MatchedExp: run.Experiment,
				RefValue:   run.RefValue,
			})
		}
	}

	out := make(RunTable, 0, len(table))
	dropped := 0
	for _, run := range table {
		if run.RefValue == nil {
			dropped++
			continue
		}
		out = append(out, run)
	}
	if dropped > 0 {
		logger.Infof("dropping %d runs without a reference value", dropped)
	}

	logger.Infof("normalizing %d runs to the reference period", len(out))
	for _, run := range out {
		normalizeCube(run.Cube, *run.RefValue, relative)
	}
	return out
}

// normalizeCube subtracts the reference value from every sample. In
// relative mode the result is additionally divided by the reference and
// scaled to percent.
func normalizeCube(cube *Cube, ref float64, relative bool) {
	for i, v := range cube.Data.Elements {
		v -= ref
		if relative {
			v = v / ref * 100
		}
		cube.Data.Elements[i] = v
	}
	if relative {
		cube.Unit = "%"
	}
}
