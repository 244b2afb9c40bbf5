package climdiag

import (
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// CMIP-style filename, e.g. tas_Amon_ACCESS1-0_historical_r1i1p1_196101-200512.nc
var cmipFilenamePattern = regexp.MustCompile(
	`^([^_]+)_([^_]+)_([^_]+)_([^_]+)_(r\d+i\d+p\d+(?:f\d+)?)_(\d{4})(?:\d{2})?-(\d{4})(?:\d{2})?\.nc$`)

// ensemble member identifier, e.g. r1i1p1 or r2i1p1f2
var ensemblePattern = regexp.MustCompile(`^r(\d+)i(\d+)p(\d+)(?:f(\d+))?$`)

// runAttributes is what can be derived about a run before its data is
// looked at: from the metadata entry, from the filename, or both.
type runAttributes struct {
	Model      string
	Experiment string
	Ensemble   string
	StartYear  int
	EndYear    int
}

// attributesFromFilename derives run attributes from a CMIP-style file
// name. Returns false when the name does not follow the pattern.
func attributesFromFilename(path string) (runAttributes, bool) {
	m := cmipFilenamePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return runAttributes{}, false
	}
	start, _ := strconv.Atoi(m[6])
	end, _ := strconv.Atoi(m[7])
	return runAttributes{
		Model:      m[3],
		Experiment: m[4],
		Ensemble:   m[5],
		StartYear:  start,
		EndYear:    end,
	}, true
}

// resolveAttributes combines a metadata entry with what the filename
// says. Metadata wins for fields the filename does not carry; a
// disagreement on model or experiment between the two sources is a
// configuration error and aborts the run.
func resolveAttributes(path string, meta *MetaEntry) (runAttributes, error) {
	fromName, hasName := attributesFromFilename(path)

	if meta == nil {
		if !hasName {
			return runAttributes{}, errors.Errorf(
				"%s: no metadata entry and the file name does not follow the CMIP pattern", path)
		}
		return fromName, nil
	}

	attrs := runAttributes{
		Model:      meta.Dataset,
		Experiment: meta.Exp,
		Ensemble:   meta.Ensemble,
		StartYear:  meta.StartYear,
		EndYear:    meta.EndYear,
	}
	if hasName {
		if attrs.Model != "" && fromName.Model != attrs.Model {
			return runAttributes{}, errors.Errorf(
				"%s: ambiguous model tagging: metadata says %q, file name says %q",
				path, attrs.Model, fromName.Model)
		}
		if attrs.Experiment != "" && fromName.Experiment != attrs.Experiment {
			return runAttributes{}, errors.Errorf(
				"%s: ambiguous experiment tagging: metadata says %q, file name says %q",
				path, attrs.Experiment, fromName.Experiment)
		}
		if attrs.Model == "" {
			attrs.Model = fromName.Model
		}
		if attrs.Experiment == "" {
			attrs.Experiment = fromName.Experiment
		}
		if attrs.Ensemble == "" {
			attrs.Ensemble = fromName.Ensemble
		}
		if attrs.StartYear == 0 {
			attrs.StartYear = fromName.StartYear
		}
		if attrs.EndYear == 0 {
			attrs.EndYear = fromName.EndYear
		}
	}
	if attrs.Model == "" || attrs.Experiment == "" {
		return runAttributes{}, errors.Errorf("%s: model or experiment could not be determined", path)
	}
	return attrs, nil
}

// realization parses the realization, initialization and physics indices
// out of an ensemble identifier. ok is false for malformed identifiers.
func realization(ensemble string) (r, i, p int, ok bool) {
	m := ensemblePattern.FindStringSubmatch(ensemble)
	if m == nil {
		return 0, 0, 0, false
	}
	r, _ = strconv.Atoi(m[1])
	i, _ = strconv.Atoi(m[2])
	p, _ = strconv.Atoi(m[3])
	return r, i, p, true
}

// AttachAttributes builds the run table for a set of loaded cubes and
// their source paths, reading attributes from the metadata entries and
// falling back to the file name pattern.
func AttachAttributes(cubes []*Cube, paths []string, meta map[string]*MetaEntry) (RunTable, error) {
	if len(cubes) != len(paths) {
		return nil, errors.Errorf("got %d cubes for %d paths", len(cubes), len(paths))
	}
	table := make(RunTable, 0, len(cubes))
	for i, cube := range cubes {
		attrs, err := resolveAttributes(paths[i], meta[paths[i]])
		if err != nil {
			return nil, err
		}
		table = append(table, &Run{
			Model:      attrs.Model,
			Experiment: attrs.Experiment,
			Ensemble:   attrs.Ensemble,
			StartYear:  attrs.StartYear,
			EndYear:    attrs.EndYear,
			Path:       paths[i],
			Cube:       cube,
			MatchIdx:   -1,
		})
	}
	return table, nil
}
