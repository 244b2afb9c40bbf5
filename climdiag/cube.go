package climdiag

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// Cube is one loaded gridded variable: a dense data block plus named
// dimensions with coordinate values. The time dimension, when present,
// is always the first dimension and carries a per-step calendar year
// (and month, for data that has not been averaged to years yet).
type Cube struct {
	Name string
	Unit string

	Data *sparse.DenseArray // shape follows Dims order

	Dims   []string             // dimension names, e.g. [time plev lat lon]
	Coords map[string][]float64 // coordinate values per dimension

	Years  []int // calendar year per time step
	Months []int // calendar month per time step, nil for yearly data

	Attrs map[string]string
}

// season labels by calendar month (meteorological seasons)
var monthSeason = [13]string{"", "djf", "djf", "mam", "mam", "mam",
	"jja", "jja", "jja", "son", "son", "son", "djf"}

// seasonYear returns the year a monthly sample belongs to when grouping
// by season: December counts towards the following year's djf.
func seasonYear(year int, month int) int {
	if month == 12 {
		return year + 1
	}
	return year
}

// NewSeries builds a 1-D time-series cube with one sample per year.
func NewSeries(name string, unit string, years []int, values []float64) *Cube {
	if len(years) != len(values) {
		panic(fmt.Sprintf("cube %s: %d years for %d values", name, len(years), len(values)))
	}
	data := sparse.ZerosDense(len(values))
	copy(data.Elements, values)
	return &Cube{
		Name:   name,
		Unit:   unit,
		Data:   data,
		Dims:   []string{"time"},
		Coords: map[string][]float64{},
		Years:  append([]int{}, years...),
		Attrs:  map[string]string{},
	}
}

// Copy makes a deep copy. The data block is duplicated, never shared:
// normalization mutates cubes in place and duplicated rows must not
// alias each other.
func (c *Cube) Copy() *Cube {
	data := sparse.ZerosDense(c.Data.Shape...)
	copy(data.Elements, c.Data.Elements)

	coords := make(map[string][]float64, len(c.Coords))
	for name, vals := range c.Coords {
		coords[name] = append([]float64{}, vals...)
	}
	attrs := make(map[string]string, len(c.Attrs))
	for k, v := range c.Attrs {
		attrs[k] = v
	}

	cp := &Cube{
		Name:   c.Name,
		Unit:   c.Unit,
		Data:   data,
		Dims:   append([]string{}, c.Dims...),
		Coords: coords,
		Attrs:  attrs,
	}
	if c.Years != nil {
		cp.Years = append([]int{}, c.Years...)
	}
	if c.Months != nil {
		cp.Months = append([]int{}, c.Months...)
	}
	return cp
}

// TimeLen returns the number of time steps.
func (c *Cube) TimeLen() int {
	return len(c.Years)
}

// Values returns the raw samples of a 1-D time-series cube.
func (c *Cube) Values() []float64 {
	return c.Data.Elements
}

func (c *Cube) dimIndex(name string) int {
	for i, d := range c.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

// ExtractYearRange restricts a time-series cube to the closed year
// interval [start, end]. Returns nil when the window does not intersect
// the cube's time span at all.
func (c *Cube) ExtractYearRange(start int, end int) *Cube {
	keep := make([]int, 0, len(c.Years))
	for i, y := range c.Years {
		if y >= start && y <= end {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil
	}
	return c.selectTimeSteps(keep)
}

// ExtractSeason keeps only the time steps falling in the given season
// (djf, mam, jja or son). Monthly data only.
func (c *Cube) ExtractSeason(season string) *Cube {
	keep := make([]int, 0, len(c.Months))
	for i, m := range c.Months {
		if monthSeason[m] == season {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil
	}
	return c.selectTimeSteps(keep)
}

// selectTimeSteps builds a new time-series cube from the given sample indices.
func (c *Cube) selectTimeSteps(idx []int) *Cube {
	values := make([]float64, len(idx))
	years := make([]int, len(idx))
	for j, i := range idx {
		values[j] = c.Data.Elements[i]
		years[j] = c.Years[i]
	}
	out := NewSeries(c.Name, c.Unit, years, values)
	for k, v := range c.Attrs {
		out.Attrs[k] = v
	}
	if c.Months != nil {
		out.Months = make([]int, len(idx))
		for j, i := range idx {
			out.Months[j] = c.Months[i]
		}
	}
	return out
}

// AnnualMean collapses monthly samples to one mean value per year. With
// a season given, samples are grouped by season-year instead (December
// joins the djf of the following year). Already-yearly cubes are
// returned as a copy, unchanged.
func (c *Cube) AnnualMean(season string) *Cube {
	if c.Months == nil {
		return c.Copy()
	}

	var years []int
	sums := map[int]float64{}
	counts := map[int]int{}
	for i, y := range c.Years {
		gy := y
		if season != "" {
			gy = seasonYear(y, c.Months[i])
		}
		if counts[gy] == 0 {
			years = append(years, gy)
		}
		sums[gy] += c.Data.Elements[i]
		counts[gy]++
	}

	values := make([]float64, len(years))
	for j, y := range years {
		values[j] = sums[y] / float64(counts[y])
	}
	out := NewSeries(c.Name, c.Unit, years, values)
	for k, v := range c.Attrs {
		out.Attrs[k] = v
	}
	return out
}

// ExtractYear picks the sample for one calendar year from a yearly
// time-series cube. The second return value reports whether the year is
// covered by the cube.
func (c *Cube) ExtractYear(year int) (float64, bool) {
	for i, y := range c.Years {
		if y == year {
			return c.Data.Elements[i], true
		}
	}
	return 0, false
}

// TimeMean collapses a time-series cube to its mean value and the number
// of samples that went into it.
func (c *Cube) TimeMean() (float64, int) {
	n := len(c.Data.Elements)
	if n == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range c.Data.Elements {
		sum += v
	}
	return sum / float64(n), n
}

// LatRange restricts the cube to latitudes lo <= lat <= hi.
func (c *Cube) LatRange(lo float64, hi float64) *Cube {
	dim := c.dimIndex("lat")
	if dim < 0 {
		return c
	}
	lats := c.Coords["lat"]
	keep := make([]int, 0, len(lats))
	for i, lat := range lats {
		if lat >= lo && lat <= hi {
			keep = append(keep, i)
		}
	}
	return c.selectAlong(dim, keep, "lat")
}

// InterpLevel interpolates the cube linearly along the pressure axis to
// a single level, removing the plev dimension.
func (c *Cube) InterpLevel(plev float64) *Cube {
	dim := c.dimIndex("plev")
	if dim < 0 {
		return c
	}
	levels := c.Coords["plev"]

	// Bracketing levels. Pressure coordinates may run either way.
	lower, upper := -1, -1
	for i := 0; i < len(levels)-1; i++ {
		lo, hi := levels[i], levels[i+1]
		if lo > hi {
			lo, hi = hi, lo
		}
		if lo <= plev && plev <= hi {
			lower, upper = i, i+1
			break
		}
	}
	if lower < 0 {
		// Out of range: clamp to the nearest level.
		lower, upper = 0, 0
		for i, l := range levels {
			if abs(l-plev) < abs(levels[lower]-plev) {
				lower, upper = i, i
			}
		}
	}

	frac := 0.0
	if upper != lower && levels[upper] != levels[lower] {
		frac = (plev - levels[lower]) / (levels[upper] - levels[lower])
	}

	a := c.sliceAlong(dim, lower, "plev")
	if upper == lower {
		return a
	}
	b := c.sliceAlong(dim, upper, "plev")
	for i := range a.Data.Elements {
		a.Data.Elements[i] += frac * (b.Data.Elements[i] - a.Data.Elements[i])
	}
	return a
}

// CollapseMean averages the cube over one dimension, removing it.
func (c *Cube) CollapseMean(name string) *Cube {
	dim := c.dimIndex(name)
	if dim < 0 {
		return c
	}
	n := c.Data.Shape[dim]
	out := c.sliceAlong(dim, 0, name)
	for k := 1; k < n; k++ {
		s := c.sliceAlong(dim, k, name)
		for i := range out.Data.Elements {
			out.Data.Elements[i] += s.Data.Elements[i]
		}
	}
	for i := range out.Data.Elements {
		out.Data.Elements[i] /= float64(n)
	}
	return out
}

// sliceAlong takes the k-th slice of one dimension, removing it.
func (c *Cube) sliceAlong(dim int, k int, name string) *Cube {
	return c.selectAlong(dim, []int{k}, name)
}

// selectAlong keeps only the given indices of one dimension. With a
// single index the dimension is removed entirely.
func (c *Cube) selectAlong(dim int, keep []int, name string) *Cube {
	drop := len(keep) == 1

	shape := make([]int, 0, len(c.Data.Shape))
	dims := make([]string, 0, len(c.Dims))
	for i, n := range c.Data.Shape {
		if i == dim {
			if !drop {
				shape = append(shape, len(keep))
				dims = append(dims, c.Dims[i])
			}
			continue
		}
		shape = append(shape, n)
		dims = append(dims, c.Dims[i])
	}
	data := sparse.ZerosDense(shape...)

	// Walk the output index space and pull each element from the source.
	srcIdx := make([]int, len(c.Data.Shape))
	dstIdx := make([]int, len(shape))
	var walk func(d int)
	walk = func(d int) {
		if d == len(shape) {
			if drop {
				// Rebuild the full source index with the fixed position.
				j := 0
				for i := range srcIdx {
					if i == dim {
						srcIdx[i] = keep[0]
						continue
					}
					srcIdx[i] = dstIdx[j]
					j++
				}
			} else {
				j := 0
				for i := range srcIdx {
					if i == dim {
						srcIdx[i] = keep[dstIdx[j]]
					} else {
						srcIdx[i] = dstIdx[j]
					}
					j++
				}
			}
			data.Set(c.Data.Get(srcIdx...), dstIdx...)
			return
		}
		for k := 0; k < shape[d]; k++ {
			dstIdx[d] = k
			walk(d + 1)
		}
	}
	walk(0)

	coords := make(map[string][]float64, len(c.Coords))
	for cn, vals := range c.Coords {
		if cn == name {
			if drop {
				continue
			}
			sel := make([]float64, len(keep))
			for j, i := range keep {
				sel[j] = vals[i]
			}
			coords[cn] = sel
			continue
		}
		coords[cn] = append([]float64{}, vals...)
	}
	attrs := make(map[string]string, len(c.Attrs))
	for k, v := range c.Attrs {
		attrs[k] = v
	}

	out := &Cube{
		Name:   c.Name,
		Unit:   c.Unit,
		Data:   data,
		Dims:   dims,
		Coords: coords,
		Attrs:  attrs,
	}
	if c.Years != nil {
		out.Years = append([]int{}, c.Years...)
	}
	if c.Months != nil {
		out.Months = append([]int{}, c.Months...)
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
