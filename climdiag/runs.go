package climdiag

// Run is one simulated time series from one model/experiment/ensemble
// combination, together with the bookkeeping the pipeline attaches to it.
type Run struct {
	Model      string
	Experiment string
	Ensemble   string
	StartYear  int
	EndYear    int
	Path       string // source file, kept for provenance

	Cube *Cube // owned exclusively by this row until copied

	// MatchIdx points at the paired historical row in the table,
	// -1 while unmatched.
	MatchIdx int

	// MatchedExp is set on duplicated historical rows and names the
	// future experiment the duplicate represents.
	MatchedExp string

	// RefValue is the baseline this run is normalized against, nil
	// until computed (and nil forever for rows that are dropped).
	RefValue *float64
}

// RunTable is the ordered collection of runs the pipeline operates on.
type RunTable []*Run

// Models returns the distinct model names in first-seen order.
func (t RunTable) Models() []string {
	var models []string
	seen := map[string]bool{}
	for _, r := range t {
		if !seen[r.Model] {
			seen[r.Model] = true
			models = append(models, r.Model)
		}
	}
	return models
}

// Select returns the rows satisfying the predicate, preserving order.
func (t RunTable) Select(pred func(*Run) bool) RunTable {
	var out RunTable
	for _, r := range t {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Paths returns the source paths of all rows, for provenance.
func (t RunTable) Paths() []string {
	var paths []string
	seen := map[string]bool{}
	for _, r := range t {
		if r.Path != "" && !seen[r.Path] {
			seen[r.Path] = true
			paths = append(paths, r.Path)
		}
	}
	return paths
}
