package climdiag

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// NormBy selects the grouping granularity for reference values and
// normalization.
type NormBy int

const (
	NormByRun NormBy = iota
	NormByModel
	NormByExperiment
)

// ParseNormBy maps the configuration string onto the closed enumeration.
func ParseNormBy(s string) (NormBy, error) {
	switch s {
	case "run", "":
		return NormByRun, nil
	case "model":
		return NormByModel, nil
	case "experiment":
		return NormByExperiment, nil
	}
	return NormByRun, errors.Errorf("unknown normalization granularity %q (want run, model or experiment)", s)
}

func (n NormBy) String() string {
	switch n {
	case NormByModel:
		return "model"
	case NormByExperiment:
		return "experiment"
	}
	return "run"
}

// Settings is the full configuration surface of a diagnostic run.
type Settings struct {
	// Input metadata files (one per variable), each listing the input
	// NetCDF files with their attributes.
	InputFiles []string `yaml:"input_files"`
	// Directory for tables, plots and provenance records.
	OutputDir string `yaml:"output_dir"`

	// Reference period for baseline values (closed year interval).
	RefStart int `yaml:"reference_start"`
	RefEnd   int `yaml:"reference_end"`

	// Optional window for the future branch of the reference
	// computation; defaults to the reference period when unset.
	FutureStart int `yaml:"future_start"`
	FutureEnd   int `yaml:"future_end"`

	// Target output period (inclusive start, exclusive end).
	PeriodStart int `yaml:"period_start"`
	PeriodEnd   int `yaml:"period_end"`

	MatchBy       string `yaml:"match_by"`       // ensemble | model
	OnNoMatch     string `yaml:"on_no_match"`    // error | remove | random | randomrun
	HistoricalKey string `yaml:"historical_key"` // experiment name of the historical branch

	NormBy   string `yaml:"normby"`   // run | model | experiment
	Relative bool   `yaml:"relative"` // percentual change instead of absolute

	// Averaging mode: yearly averages by default; a season (djf, mam,
	// jja, son) restricts to that season first; monthly keeps the data
	// as-is and scales the minimum sample counts instead.
	Yearly bool   `yaml:"yearly"`
	Season string `yaml:"season"`

	// Average within experiment groups before taking percentiles.
	AverageExperiments bool `yaml:"average_experiments"`

	// Regression-model plot options.
	Pattern string            `yaml:"pattern"` // filter ancestor files
	Aliases map[string]string `yaml:"aliases"` // nicer plot labels
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		RefStart:      1980,
		RefEnd:        2009,
		PeriodStart:   1961,
		PeriodEnd:     2099,
		MatchBy:       "ensemble",
		OnNoMatch:     NoMatchRandomRun,
		HistoricalKey: "historical",
		NormBy:        "run",
		Yearly:        true,
	}
}

// LoadSettings reads a settings YAML file over the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	b, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Wrapf(err, "reading settings %s", path)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, errors.Wrapf(err, "parsing settings %s", path)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate rejects settings the pipeline cannot act on.
func (s *Settings) Validate() error {
	if _, err := ParseNormBy(s.NormBy); err != nil {
		return err
	}
	switch s.OnNoMatch {
	case NoMatchError, NoMatchRemove, NoMatchRandom, NoMatchRandomRun:
	default:
		return errors.Errorf("unknown no-match policy %q", s.OnNoMatch)
	}
	switch s.MatchBy {
	case "ensemble", "model":
	default:
		return errors.Errorf("unknown matching key %q (want ensemble or model)", s.MatchBy)
	}
	switch s.Season {
	case "", "djf", "mam", "jja", "son":
	default:
		return errors.Errorf("unknown season %q", s.Season)
	}
	if s.RefStart > s.RefEnd {
		return errors.Errorf("reference period %d-%d is empty", s.RefStart, s.RefEnd)
	}
	return nil
}
