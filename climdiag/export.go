package climdiag

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WritePercentiles serializes the per-year percentile table as CSV,
// one row per year indexed by date. Missing years keep their cells empty.
func WritePercentiles(buf *bytes.Buffer, rows []YearStats) {
	buf.WriteString("date,mean")
	for _, p := range PercentileLevels {
		buf.WriteString(",")
		buf.WriteString(strconv.FormatFloat(p, 'f', -1, 64))
	}
	buf.WriteString("\n")

	writeFloat := func(v float64) {
		buf.WriteString(",")
		if !math.IsNaN(v) {
			buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	for _, row := range rows {
		buf.WriteString(fmt.Sprintf("%04d-01-01", row.Year))
		writeFloat(row.Mean)
		for _, v := range row.Percentiles {
			writeFloat(v)
		}
		buf.WriteString("\n")
	}
}

// SavePercentiles writes the percentile table to a CSV file.
func SavePercentiles(path string, rows []YearStats) error {
	var buf bytes.Buffer
	WritePercentiles(&buf, rows)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// WriteSeries serializes a 1-D time-series cube as CSV.
func WriteSeries(buf *bytes.Buffer, cube *Cube) {
	buf.WriteString("date,")
	buf.WriteString(cube.Name)
	buf.WriteString("\n")
	for i, v := range cube.Values() {
		month := 1
		if cube.Months != nil {
			month = cube.Months[i]
		}
		buf.WriteString(fmt.Sprintf("%04d-%02d-01", cube.Years[i], month))
		buf.WriteString(",")
		buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		buf.WriteString("\n")
	}
}

// SaveSeries writes a time-series cube to a CSV file.
func SaveSeries(path string, cube *Cube) error {
	var buf bytes.Buffer
	WriteSeries(&buf, cube)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// Provenance is the audit record emitted alongside each output file.
type Provenance struct {
	Caption   string   `yaml:"caption"`
	Domains   []string `yaml:"domains"`
	Ancestors []string `yaml:"ancestors"`
	Created   string   `yaml:"created"`
}

// NewProvenance builds a provenance record for one output, listing the
// contributing source files.
func NewProvenance(caption string, ancestors []string) Provenance {
	return Provenance{
		Caption:   caption,
		Domains:   []string{"global"},
		Ancestors: ancestors,
		Created:   time.Now().UTC().Format(time.RFC3339),
	}
}

// SaveProvenance writes the provenance record as YAML next to the output.
func SaveProvenance(path string, p Provenance) error {
	b, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding provenance")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
