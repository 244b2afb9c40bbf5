package climdiag

import (
	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
)

// Policies for future runs without an exact historical counterpart.
const (
	NoMatchError     = "error"     // abort the run
	NoMatchRemove    = "remove"    // leave the row unmatched
	NoMatchRandom    = "random"    // any historical run of the model
	NoMatchRandomRun = "randomrun" // same realization index, relaxed otherwise
)

// Match pairs every future (non-historical) row with a historical row of
// the same model and fills MatchIdx. byKey selects the matching key:
// "ensemble" requires the same ensemble member, "model" accepts any
// historical run of the model. Several future rows may map to the same
// historical row; the fan-out is resolved by duplication at
// normalization time, not here.
func Match(table RunTable, byKey string, onNoMatch string, historicalKey string) error {
	logger := logging.GetLogger("climdiag")

	// Historical row indices per model.
	histIdx := map[string][]int{}
	for i, run := range table {
		if run.Experiment == historicalKey {
			histIdx[run.Model] = append(histIdx[run.Model], i)
		}
	}

	unmatched := 0
	for _, run := range table {
		if run.Experiment == historicalKey {
			continue
		}
		candidates := histIdx[run.Model]
		idx := findMatch(table, run, candidates, byKey, onNoMatch)
		if idx < 0 {
			unmatched++
			logger.Warnf("no historical match for %s/%s/%s",
				run.Model, run.Experiment, run.Ensemble)
			if onNoMatch == NoMatchError {
				return errors.Errorf("no historical match for %s/%s/%s",
					run.Model, run.Experiment, run.Ensemble)
			}
			continue
		}
		run.MatchIdx = idx
	}
	if unmatched > 0 {
		logger.Warnf("%d future runs have no historical counterpart and will be dropped", unmatched)
	}
	return nil
}

// findMatch returns the index of the historical row for one future run,
// or -1 when the policy leaves the run unmatched.
func findMatch(table RunTable, run *Run, candidates []int, byKey string, onNoMatch string) int {
	if byKey == "model" {
		if len(candidates) > 0 {
			return candidates[0]
		}
		return -1
	}

	// Exact ensemble match first.
	for _, i := range candidates {
		if table[i].Ensemble == run.Ensemble {
			return i
		}
	}

	switch onNoMatch {
	case NoMatchRandomRun:
		// Same realization index, ignoring initialisation and physics.
		r0, _, _, ok := realization(run.Ensemble)
		if ok {
			for _, i := range candidates {
				if r, _, _, ok := realization(table[i].Ensemble); ok && r == r0 {
					return i
				}
			}
		}
		fallthrough
	case NoMatchRandom:
		// Any compatible historical run. The table order makes this
		// deterministic.
		if len(candidates) > 0 {
			return candidates[0]
		}
	}
	return -1
}
