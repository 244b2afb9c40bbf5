package climdiag

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// One row per year, indexed by date, NaN cells left empty.
func Test_WritePercentiles(t *testing.T) {
	rows := []YearStats{
		{Year: 2000, Mean: 1.5, Percentiles: []float64{1, 1, 1, 1.5, 2, 2, 2}},
		{Year: 2001, Mean: math.NaN(), Percentiles: []float64{
			math.NaN(), math.NaN(), math.NaN(), math.NaN(),
			math.NaN(), math.NaN(), math.NaN()}},
	}

	var buf bytes.Buffer
	WritePercentiles(&buf, rows)

	want := "date,mean,5,10,25,50,75,90,95\n" +
		"2000-01-01,1.5,1,1,1,1.5,2,2,2\n" +
		"2001-01-01,,,,,,,,\n"
	assert.Equal(t, want, buf.String())
}

func Test_WriteSeries(t *testing.T) {
	cube := NewSeries("uajet", "degrees", []int{1999, 2000}, []float64{-51.25, -50.5})

	var buf bytes.Buffer
	WriteSeries(&buf, cube)

	want := "date,uajet\n1999-01-01,-51.25\n2000-01-01,-50.5\n"
	assert.Equal(t, want, buf.String())
}

func Test_ProvenancePath(t *testing.T) {
	assert.Equal(t, "out/tas_change_provenance.yml", provenancePath("out/tas_change.csv"))
}

// Provenance round-trips through YAML with the source files listed.
func Test_SaveProvenance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prov.yml")

	prov := NewProvenance("Test caption.", []string{"a.nc", "b.nc"})
	require.NoError(t, SaveProvenance(path, prov))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Provenance
	require.NoError(t, yaml.Unmarshal(b, &got))
	assert.Equal(t, "Test caption.", got.Caption)
	assert.Equal(t, []string{"global"}, got.Domains)
	assert.Equal(t, []string{"a.nc", "b.nc"}, got.Ancestors)
	assert.NotEmpty(t, got.Created)
}

func Test_SavePercentiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tas_change.csv")

	rows := []YearStats{{Year: 2000, Mean: 0.5, Percentiles: []float64{0, 0, 0, 0.5, 1, 1, 1}}}
	require.NoError(t, SavePercentiles(path, rows))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "2000-01-01,0.5")
}
