package climdiag

import (
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/ctessum/sparse"
	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MetaEntry describes one input file, as listed in a metadata YAML file
// (file path -> attributes).
type MetaEntry struct {
	Dataset   string `yaml:"dataset"`
	Exp       string `yaml:"exp"`
	Ensemble  string `yaml:"ensemble"`
	ShortName string `yaml:"short_name"`
	Units     string `yaml:"units"`
	StartYear int    `yaml:"start_year"`
	EndYear   int    `yaml:"end_year"`

	// regression-model output attributes
	VarType   string `yaml:"var_type"`
	ModelName string `yaml:"mlr_model_name"`
	Tag       string `yaml:"tag"`
}

// LoadMetadata parses a metadata YAML file.
func LoadMetadata(path string) (map[string]*MetaEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading metadata %s", path)
	}
	meta := map[string]*MetaEntry{}
	if err := yaml.Unmarshal(b, &meta); err != nil {
		return nil, errors.Wrapf(err, "parsing metadata %s", path)
	}
	return meta, nil
}

// canonical dimension names
var dimAliases = map[string]string{
	"time":         "time",
	"plev":         "plev",
	"lev":          "plev",
	"air_pressure": "plev",
	"lat":          "lat",
	"latitude":     "lat",
	"lon":          "lon",
	"longitude":    "lon",
}

// LoadCube reads one variable with its dimension coordinates from a
// NetCDF file. The time coordinate is converted to calendar years and
// months using its units attribute.
func LoadCube(path string, varName string) (*Cube, error) {
	logger := logging.GetLogger("climdiag")

	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer nc.Close()

	vr, err := nc.GetVariable(varName)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: reading variable %s", path, varName)
	}
	values, shape, err := flattenValues(vr.Values)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: variable %s", path, varName)
	}

	data := sparse.ZerosDense(shape...)
	copy(data.Elements, values)

	cube := &Cube{
		Name:   varName,
		Data:   data,
		Coords: map[string][]float64{},
		Attrs:  map[string]string{},
	}
	if unit, has := vr.Attributes.Get("units"); has {
		if s, ok := unit.(string); ok {
			cube.Unit = s
		}
	}

	for _, dim := range vr.Dimensions {
		name := dimAliases[dim]
		if name == "" {
			name = dim
		}
		cube.Dims = append(cube.Dims, name)

		coordVr, err := nc.GetVariable(dim)
		if err != nil {
			// Dimensions without a coordinate variable keep index
			// coordinates.
			continue
		}
		coords, _, err := flattenValues(coordVr.Values)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: coordinate %s", path, dim)
		}
		cube.Coords[name] = coords

		if name == "time" {
			units, calendar := "", ""
			if v, has := coordVr.Attributes.Get("units"); has {
				units, _ = v.(string)
			}
			if v, has := coordVr.Attributes.Get("calendar"); has {
				calendar, _ = v.(string)
			}
			years, months, err := timeToCalendar(coords, units, calendar)
			if err != nil {
				logger.Warnf("%s: %v; interpreting time values as years", path, err)
				years = make([]int, len(coords))
				for i, v := range coords {
					years[i] = int(v)
				}
				months = nil
			}
			cube.Years = years
			cube.Months = months
		}
	}
	return cube, nil
}

// LoadRuns loads every file listed in the metadata files of the settings
// and builds the run table.
func LoadRuns(s Settings) (RunTable, error) {
	logger := logging.GetLogger("climdiag")

	var cubes []*Cube
	var paths []string
	meta := map[string]*MetaEntry{}

	for _, metaPath := range s.InputFiles {
		entries, err := LoadMetadata(metaPath)
		if err != nil {
			return nil, err
		}
		filePaths := make([]string, 0, len(entries))
		for p := range entries {
			filePaths = append(filePaths, p)
		}
		sort.Strings(filePaths)

		for _, p := range filePaths {
			entry := entries[p]
			cube, err := LoadCube(p, entry.ShortName)
			if err != nil {
				return nil, err
			}
			if cube.Unit == "" {
				cube.Unit = entry.Units
			}
			logger.Infof("loaded %s (%d time steps)", p, cube.TimeLen())
			cubes = append(cubes, cube)
			paths = append(paths, p)
			meta[p] = entry
		}
	}
	return AttachAttributes(cubes, paths, meta)
}

// month lengths for the 365_day / noleap calendar
var noleapMonthDays = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// timeToCalendar converts raw time coordinate values into calendar years
// and months, following the CF units string ("days since Y-M-D ..." or
// "hours since ...") and calendar attribute.
func timeToCalendar(values []float64, units string, calendar string) (years []int, months []int, err error) {
	fields := strings.Fields(units)
	if len(fields) < 3 || fields[1] != "since" {
		return nil, nil, errors.Errorf("unsupported time units %q", units)
	}
	var perDay float64
	switch fields[0] {
	case "days", "day":
		perDay = 1
	case "hours", "hour":
		perDay = 24
	default:
		return nil, nil, errors.Errorf("unsupported time units %q", units)
	}

	date := strings.Split(fields[2], "-")
	if len(date) != 3 {
		return nil, nil, errors.Errorf("unsupported reference date in %q", units)
	}
	baseYear, _ := strconv.Atoi(date[0])
	baseMonth, _ := strconv.Atoi(date[1])
	baseDay, _ := strconv.Atoi(date[2])

	years = make([]int, len(values))
	months = make([]int, len(values))
	for i, v := range values {
		days := int(v / perDay)
		var y, m int
		switch calendar {
		case "360_day":
			total := (baseYear*360 + (baseMonth-1)*30 + (baseDay - 1)) + days
			y = total / 360
			m = (total%360)/30 + 1
		case "365_day", "noleap":
			y, m = noleapAdd(baseYear, baseMonth, baseDay, days)
		default:
			t := time.Date(baseYear, time.Month(baseMonth), baseDay, 0, 0, 0, 0, time.UTC).
				AddDate(0, 0, days)
			y, m = t.Year(), int(t.Month())
		}
		years[i] = y
		months[i] = m
	}
	return years, months, nil
}

// noleapAdd advances a 365_day-calendar date by the given number of days.
func noleapAdd(year int, month int, day int, days int) (int, int) {
	doy := day - 1
	for m := 1; m < month; m++ {
		doy += noleapMonthDays[m]
	}
	total := doy + days
	year += total / 365
	total %= 365
	if total < 0 {
		total += 365
		year--
	}
	m := 1
	for total >= noleapMonthDays[m] {
		total -= noleapMonthDays[m]
		m++
	}
	return year, m
}

// flattenValues turns the (possibly nested) slices a NetCDF variable
// holds into a flat float64 slice plus its shape.
func flattenValues(v interface{}) ([]float64, []int, error) {
	rv := reflect.ValueOf(v)
	var shape []int
	probe := rv
	for probe.Kind() == reflect.Slice {
		shape = append(shape, probe.Len())
		if probe.Len() == 0 {
			break
		}
		probe = probe.Index(0)
	}
	if len(shape) == 0 {
		return nil, nil, errors.Errorf("unsupported value type %T", v)
	}

	size := 1
	for _, n := range shape {
		size *= n
	}
	out := make([]float64, 0, size)
	if err := appendValues(rv, &out); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}

func appendValues(rv reflect.Value, out *[]float64) error {
	switch rv.Kind() {
	case reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			if err := appendValues(rv.Index(i), out); err != nil {
				return err
			}
		}
	case reflect.Float32, reflect.Float64:
		*out = append(*out, rv.Float())
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		*out = append(*out, float64(rv.Int()))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		*out = append(*out, float64(rv.Uint()))
	default:
		return errors.Errorf("unsupported element kind %s", rv.Kind())
	}
	return nil
}
