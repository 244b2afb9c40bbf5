package climdiag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 1980, s.RefStart)
	assert.Equal(t, 2009, s.RefEnd)
	assert.Equal(t, 1961, s.PeriodStart)
	assert.Equal(t, 2099, s.PeriodEnd)
	assert.Equal(t, "ensemble", s.MatchBy)
	assert.Equal(t, NoMatchRandomRun, s.OnNoMatch)
	assert.Equal(t, "historical", s.HistoricalKey)
	assert.True(t, s.Yearly)
	assert.NoError(t, s.Validate())
}

// A settings file overrides the defaults field by field.
func Test_LoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	body := `
output_dir: /tmp/out
reference_start: 1971
reference_end: 2000
normby: experiment
relative: true
season: djf
aliases:
  MultiModelMean: MMM
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 1971, s.RefStart)
	assert.Equal(t, 2000, s.RefEnd)
	assert.Equal(t, "experiment", s.NormBy)
	assert.True(t, s.Relative)
	assert.Equal(t, "djf", s.Season)
	assert.Equal(t, "MMM", s.Aliases["MultiModelMean"])
	// untouched defaults survive
	assert.Equal(t, "ensemble", s.MatchBy)
}

func Test_LoadSettings_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte("normby: bogus\n"), 0o644))

	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func Test_Settings_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"normby", func(s *Settings) { s.NormBy = "team" }},
		{"on_no_match", func(s *Settings) { s.OnNoMatch = "panic" }},
		{"match_by", func(s *Settings) { s.MatchBy = "institute" }},
		{"season", func(s *Settings) { s.Season = "summer" }},
		{"reference period", func(s *Settings) { s.RefStart, s.RefEnd = 2010, 1980 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func Test_ParseNormBy(t *testing.T) {
	n, err := ParseNormBy("")
	require.NoError(t, err)
	assert.Equal(t, NormByRun, n)

	n, err = ParseNormBy("model")
	require.NoError(t, err)
	assert.Equal(t, NormByModel, n)
	assert.Equal(t, "model", n.String())

	_, err = ParseNormBy("bogus")
	assert.Error(t, err)
}
