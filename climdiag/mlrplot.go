package climdiag

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// MLRPlot renders absolute and bias maps for regression-model output
// fields and writes the correlations between all rendered fields.
//
// Fields tagged with an "error" var_type are aggregated first: the mean
// of the members' squared errors, square-rooted, with the unit relabeled
// accordingly. All inputs must carry one and the same tag; mixed tags
// are a configuration error.
func MLRPlot(s Settings) error {
	logger := logging.GetLogger("climdiag")

	entries, paths, err := mlrInputs(s)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no input fields")
	}

	cubes, keys, err := mlrCubes(entries, paths)
	if err != nil {
		return err
	}

	acc := &seriesAccumulator{}

	for _, key := range keys {
		if err := plotAbsolute(s, key, cubes[key], entries, acc); err != nil {
			return err
		}
	}
	for _, key1 := range keys {
		for _, key2 := range keys {
			if key1 == key2 {
				continue
			}
			if err := plotBias(s, key1, key2, cubes, entries, acc); err != nil {
				return err
			}
		}
	}

	out := filepath.Join(s.OutputDir, "corr.csv")
	if err := acc.SaveCorrelations(out); err != nil {
		return err
	}
	logger.Infof("wrote %s", out)

	prov := NewProvenance("Absolute plots and biases of regression-model output.", basenames(paths))
	return SaveProvenance(provenancePath(out), prov)
}

// mlrInputs loads the metadata entries for all inputs, applies the
// file-name pattern filter and enforces the unique-tag constraint.
func mlrInputs(s Settings) (map[string]*MetaEntry, []string, error) {
	entries := map[string]*MetaEntry{}
	var paths []string
	for _, metaPath := range s.InputFiles {
		meta, err := LoadMetadata(metaPath)
		if err != nil {
			return nil, nil, err
		}
		for p, entry := range meta {
			if s.Pattern != "" {
				ok, err := filepath.Match(s.Pattern, filepath.Base(p))
				if err != nil {
					return nil, nil, errors.Wrapf(err, "bad pattern %q", s.Pattern)
				}
				if !ok {
					continue
				}
			}
			entries[p] = entry
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	tags := map[string]bool{}
	for _, p := range paths {
		tags[entries[p].Tag] = true
	}
	if len(tags) > 1 {
		var list []string
		for t := range tags {
			list = append(list, t)
		}
		sort.Strings(list)
		return nil, nil, errors.Errorf("expected a unique tag for all input fields, got %d: %s",
			len(list), strings.Join(list, ", "))
	}
	return entries, paths, nil
}

// mlrCubes loads one cube per (var_type, model name) key. Error types
// aggregate all of their members; any other type must be a single field.
func mlrCubes(entries map[string]*MetaEntry, paths []string) (map[string]*Cube, []string, error) {
	logger := logging.GetLogger("climdiag")

	grouped := map[string][]string{}
	var keys []string
	for _, p := range paths {
		key := mlrKey(entries[p])
		if _, seen := grouped[key]; !seen {
			keys = append(keys, key)
		}
		grouped[key] = append(grouped[key], p)
	}

	cubes := map[string]*Cube{}
	for _, key := range keys {
		group := grouped[key]
		entry := entries[group[0]]

		if strings.Contains(entry.VarType, "error") {
			logger.Debugf("aggregating %d squared-error fields for %q", len(group), key)
			cube, err := aggregateRootError(group, entries)
			if err != nil {
				return nil, nil, err
			}
			cubes[key] = cube
		} else {
			if len(group) != 1 {
				return nil, nil, errors.Errorf("expected exactly one field for %q, got %d",
					key, len(group))
			}
			cube, err := LoadCube(group[0], entry.ShortName)
			if err != nil {
				return nil, nil, err
			}
			cubes[key] = cube
		}
		logger.Infof("found field for %q", key)
	}
	return cubes, keys, nil
}

func mlrKey(entry *MetaEntry) string {
	if entry.ModelName == "" {
		return entry.VarType
	}
	return entry.VarType + "_" + entry.ModelName
}

// aggregateRootError averages the members' squared errors element-wise
// and takes the square root, relabeling the squared unit.
func aggregateRootError(paths []string, entries map[string]*MetaEntry) (*Cube, error) {
	var out *Cube
	for _, p := range paths {
		cube, err := LoadCube(p, entries[p].ShortName)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = cube.Copy()
			continue
		}
		if len(cube.Data.Elements) != len(out.Data.Elements) {
			return nil, errors.Errorf("%s: squared-error field shape differs from the first member", p)
		}
		for i, v := range cube.Data.Elements {
			out.Data.Elements[i] += v
		}
	}
	n := float64(len(paths))
	for i := range out.Data.Elements {
		out.Data.Elements[i] = math.Sqrt(out.Data.Elements[i] / n)
	}
	out.Unit = rootUnit(out.Unit)
	out.Name = strings.Replace(out.Name, "squared_", "", 1)
	return out, nil
}

// rootUnit relabels a squared unit by halving every even exponent,
// e.g. "K2" -> "K", "kg2 m-4" -> "kg m-2", "m2 s-2" -> "m s-1". Odd
// exponents cannot appear in a squared unit and are left alone.
func rootUnit(unit string) string {
	parts := strings.Fields(unit)
	for i, part := range parts {
		base := strings.TrimRight(part, "-0123456789")
		exp, err := strconv.Atoi(part[len(base):])
		if err != nil || exp%2 != 0 {
			continue
		}
		if exp/2 == 1 {
			parts[i] = base
		} else {
			parts[i] = base + strconv.Itoa(exp/2)
		}
	}
	return strings.Join(parts, " ")
}

// plotAbsolute renders one field as a heat map and adds it to the
// correlation accumulator.
func plotAbsolute(s Settings, key string, cube *Cube, entries map[string]*MetaEntry, acc *seriesAccumulator) error {
	logger := logging.GetLogger("climdiag")

	entry := firstEntryFor(entries, key)
	title := fmt.Sprintf("%s (%d-%d)", aliasFor(s, key), entry.StartYear, entry.EndYear)

	pal := palette.Heat(16, 1)
	out := filepath.Join(s.OutputDir, "abs_"+key+".png")
	if err := saveHeatMap(cube, title, fmt.Sprintf("%s / %s", entry.Tag, cube.Unit), pal, out); err != nil {
		return err
	}
	logger.Infof("wrote %s", out)

	acc.Add(title, cube.Data.Elements)
	return nil
}

// plotBias renders the difference of two fields. The minuend is copied;
// plots never mutate the loaded fields.
func plotBias(s Settings, key1 string, key2 string, cubes map[string]*Cube, entries map[string]*MetaEntry, acc *seriesAccumulator) error {
	logger := logging.GetLogger("climdiag")

	cube1, cube2 := cubes[key1], cubes[key2]
	if len(cube1.Data.Elements) != len(cube2.Data.Elements) {
		logger.Warnf("skipping bias %q - %q: field shapes differ", key1, key2)
		return nil
	}
	diff := cube1.Copy()
	for i, v := range cube2.Data.Elements {
		diff.Data.Elements[i] -= v
	}

	e1 := firstEntryFor(entries, key1)
	e2 := firstEntryFor(entries, key2)
	a1, a2 := aliasFor(s, key1), aliasFor(s, key2)
	var title string
	if e1.StartYear == e2.StartYear && e1.EndYear == e2.EndYear {
		title = fmt.Sprintf("%s - %s (%d-%d)", a1, a2, e1.StartYear, e1.EndYear)
	} else {
		title = fmt.Sprintf("%s (%d-%d) - %s (%d-%d)",
			a1, e1.StartYear, e1.EndYear, a2, e2.StartYear, e2.EndYear)
	}

	pal := moreland.SmoothBlueRed().Palette(16)
	out := filepath.Join(s.OutputDir, "bias_"+key1+"-"+key2+".png")
	if err := saveHeatMap(diff, title, fmt.Sprintf("Δ%s / %s", e1.Tag, diff.Unit), pal, out); err != nil {
		return err
	}
	logger.Infof("wrote %s", out)

	acc.Add(title, diff.Data.Elements)
	return nil
}

func firstEntryFor(entries map[string]*MetaEntry, key string) *MetaEntry {
	var paths []string
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if mlrKey(entries[p]) == key {
			return entries[p]
		}
	}
	return &MetaEntry{}
}

func aliasFor(s Settings, key string) string {
	if alias, ok := s.Aliases[key]; ok {
		return alias
	}
	return key
}

// cubeGrid adapts a (lat, lon) cube for the heat map plotter.
type cubeGrid struct {
	c *Cube
}

func (g cubeGrid) Dims() (int, int) {
	return g.c.Data.Shape[1], g.c.Data.Shape[0]
}

func (g cubeGrid) Z(col int, row int) float64 {
	return g.c.Data.Get(row, col)
}

func (g cubeGrid) X(col int) float64 {
	if lons := g.c.Coords["lon"]; len(lons) > col {
		return lons[col]
	}
	return float64(col)
}

func (g cubeGrid) Y(row int) float64 {
	if lats := g.c.Coords["lat"]; len(lats) > row {
		return lats[row]
	}
	return float64(row)
}

func saveHeatMap(cube *Cube, title string, label string, pal palette.Palette, path string) error {
	if len(cube.Data.Shape) != 2 {
		return errors.Errorf("can only plot 2-d fields, got shape %v", cube.Data.Shape)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "longitude"
	p.Y.Label.Text = "latitude " + label
	p.Add(plotter.NewHeatMap(cubeGrid{cube}, pal))
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	return nil
}

// seriesAccumulator collects every plotted field so the correlations
// between all of them can be computed once at the end of the run. Its
// lifetime is one diagnostic invocation.
type seriesAccumulator struct {
	names  []string
	series [][]float64
}

func (a *seriesAccumulator) Add(name string, values []float64) {
	a.names = append(a.names, name)
	a.series = append(a.series, append([]float64{}, values...))
}

// Correlation returns the Pearson correlation between two collected
// series, truncated to the shorter length.
func (a *seriesAccumulator) Correlation(i int, j int) float64 {
	x, y := a.series[i], a.series[j]
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n == 0 {
		return math.NaN()
	}
	return stat.Correlation(x[:n], y[:n], nil)
}

// SaveCorrelations writes the full correlation matrix as CSV.
func (a *seriesAccumulator) SaveCorrelations(path string) error {
	var buf bytes.Buffer
	for _, name := range a.names {
		buf.WriteString(",")
		buf.WriteString(csvQuote(name))
	}
	buf.WriteString("\n")
	for i, name := range a.names {
		buf.WriteString(csvQuote(name))
		for j := range a.names {
			buf.WriteString(",")
			buf.WriteString(strconv.FormatFloat(a.Correlation(i, j), 'f', -1, 64))
		}
		buf.WriteString("\n")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

func csvQuote(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
