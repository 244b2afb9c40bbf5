package climdiag

import (
	"path/filepath"

	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
)

// TasChange computes the global mean temperature change distribution.
//
// Four steps: match each scenario run with a historical run of the same
// model, compute a reference value over the reference period, normalize
// every run to it, and collapse the ensemble to a per-year percentile
// table. The table is written as CSV with a provenance record alongside.
func TasChange(s Settings) error {
	logger := logging.GetLogger("climdiag")

	table, err := LoadRuns(s)
	if err != nil {
		return err
	}
	if len(table) == 0 {
		return errors.New("no input runs")
	}
	logger.Infof("loaded %d runs from %d models", len(table), len(table.Models()))

	rows, err := TasChangeTable(table, s)
	if err != nil {
		return err
	}

	out := filepath.Join(s.OutputDir, "tas_change.csv")
	if err := SavePercentiles(out, rows); err != nil {
		return err
	}
	logger.Infof("wrote %s", out)

	prov := NewProvenance("Global mean temperature rise (change).", basenames(table.Paths()))
	return SaveProvenance(provenancePath(out), prov)
}

// TasChangeTable runs the computation on an already-loaded run table.
func TasChangeTable(table RunTable, s Settings) ([]YearStats, error) {
	normBy, err := ParseNormBy(s.NormBy)
	if err != nil {
		return nil, err
	}
	if err := Match(table, s.MatchBy, s.OnNoMatch, s.HistoricalKey); err != nil {
		return nil, err
	}
	if err := CalculateReferenceValues(table, s); err != nil {
		return nil, err
	}
	table = Normalize(table, s.Relative, normBy)
	if len(table) == 0 {
		return nil, errors.New("no runs survived normalization")
	}
	return CalculatePercentiles(table, s.PeriodStart, s.PeriodEnd, s.AverageExperiments), nil
}

// provenancePath places the provenance record next to an output file.
func provenancePath(out string) string {
	ext := filepath.Ext(out)
	return out[:len(out)-len(ext)] + "_provenance.yml"
}

func basenames(paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}
