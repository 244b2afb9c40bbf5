package climdiag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monthly midpoints on the 360_day calendar map onto months 1-12 and
// roll over into the next year after day 360.
func Test_TimeToCalendar_360Day(t *testing.T) {
	values := make([]float64, 13)
	for i := range values {
		values[i] = float64(i*30 + 15)
	}

	years, months, err := timeToCalendar(values, "days since 1850-01-01", "360_day")
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		assert.Equal(t, 1850, years[i])
		assert.Equal(t, i+1, months[i])
	}
	assert.Equal(t, 1851, years[12])
	assert.Equal(t, 1, months[12])
}

// The noleap calendar has exactly 365 days per year.
func Test_TimeToCalendar_Noleap(t *testing.T) {
	values := []float64{0, 31, 364, 365}

	years, months, err := timeToCalendar(values, "days since 1850-01-01", "noleap")
	require.NoError(t, err)
	assert.Equal(t, []int{1850, 1850, 1850, 1851}, years)
	assert.Equal(t, []int{1, 2, 12, 1}, months)
}

// The gregorian calendar keeps leap days: 1852 has 366 of them.
func Test_TimeToCalendar_Gregorian(t *testing.T) {
	values := []float64{59, 365, 366}

	years, months, err := timeToCalendar(values, "days since 1852-01-01", "gregorian")
	require.NoError(t, err)
	// day 59 is Feb 29
	assert.Equal(t, []int{1852, 1852, 1853}, years)
	assert.Equal(t, []int{2, 12, 1}, months)
}

func Test_TimeToCalendar_Hours(t *testing.T) {
	values := []float64{0, 48, 24 * 31}

	years, months, err := timeToCalendar(values, "hours since 2000-01-01", "gregorian")
	require.NoError(t, err)
	assert.Equal(t, []int{2000, 2000, 2000}, years)
	assert.Equal(t, []int{1, 1, 2}, months)
}

func Test_TimeToCalendar_Unsupported(t *testing.T) {
	for _, units := range []string{
		"months since 1850-01-01",
		"seconds since 1850-01-01",
		"days before 1850-01-01",
		"days since 1850/01/01",
		"gibberish",
	} {
		_, _, err := timeToCalendar([]float64{0}, units, "")
		assert.Error(t, err, units)
	}
}

// Negative offsets step back across the year boundary.
func Test_NoleapAdd(t *testing.T) {
	y, m := noleapAdd(1850, 1, 1, 364)
	assert.Equal(t, 1850, y)
	assert.Equal(t, 12, m)

	y, m = noleapAdd(1850, 1, 1, 365)
	assert.Equal(t, 1851, y)
	assert.Equal(t, 1, m)

	y, m = noleapAdd(1850, 1, 1, -1)
	assert.Equal(t, 1849, y)
	assert.Equal(t, 12, m)

	// base date mid-year
	y, m = noleapAdd(1850, 3, 1, 30)
	assert.Equal(t, 1850, y)
	assert.Equal(t, 3, m)
}

func Test_FlattenValues_1D(t *testing.T) {
	values, shape, err := flattenValues([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, shape)
	assert.Equal(t, []float64{1, 2, 3}, values)
}

// Nested slices flatten row-major; float32 and integer elements widen.
func Test_FlattenValues_3D(t *testing.T) {
	in := [][][]float32{
		{{1, 2}, {3, 4}},
		{{5, 6}, {7, 8}},
	}
	values, shape, err := flattenValues(in)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, values)

	values, shape, err = flattenValues([]int16{7, 8})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, shape)
	assert.Equal(t, []float64{7, 8}, values)
}

func Test_FlattenValues_Unsupported(t *testing.T) {
	_, _, err := flattenValues(42.0)
	assert.Error(t, err)

	_, _, err = flattenValues([]string{"a"})
	assert.Error(t, err)
}

func Test_LoadMetadata(t *testing.T) {
	body := `
/data/tas_one.nc:
  dataset: ACCESS1-0
  exp: historical
  ensemble: r1i1p1
  short_name: tas
  units: K
  start_year: 1961
  end_year: 2005
/data/pred.nc:
  short_name: gpp
  var_type: prediction_output
  mlr_model_name: GBR
  tag: GPP
`
	path := filepath.Join(t.TempDir(), "metadata.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	meta, err := LoadMetadata(path)
	require.NoError(t, err)
	require.Len(t, meta, 2)

	entry := meta["/data/tas_one.nc"]
	require.NotNil(t, entry)
	assert.Equal(t, "ACCESS1-0", entry.Dataset)
	assert.Equal(t, "historical", entry.Exp)
	assert.Equal(t, "tas", entry.ShortName)
	assert.Equal(t, 1961, entry.StartYear)

	entry = meta["/data/pred.nc"]
	require.NotNil(t, entry)
	assert.Equal(t, "prediction_output", entry.VarType)
	assert.Equal(t, "GBR", entry.ModelName)
	assert.Equal(t, "GPP", entry.Tag)
}

func Test_LoadMetadata_Errors(t *testing.T) {
	_, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0o644))
	_, err = LoadMetadata(path)
	assert.Error(t, err)
}
