package climdiag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(model, exp, ensemble string) *Run {
	return &Run{
		Model:      model,
		Experiment: exp,
		Ensemble:   ensemble,
		Cube:       constantSeries(2000, 2010, 1.0),
		MatchIdx:   -1,
	}
}

func Test_Match_ByEnsemble(t *testing.T) {
	table := RunTable{
		run("model-A", "historical", "r1i1p1"),
		run("model-A", "historical", "r2i1p1"),
		run("model-A", "rcp45", "r2i1p1"),
	}

	err := Match(table, "ensemble", NoMatchRemove, "historical")
	require.NoError(t, err)
	assert.Equal(t, -1, table[0].MatchIdx)
	assert.Equal(t, -1, table[1].MatchIdx)
	assert.Equal(t, 1, table[2].MatchIdx)
}

// Several future rows may share one historical row.
func Test_Match_FanOut(t *testing.T) {
	table := RunTable{
		run("model-A", "historical", "r1i1p1"),
		run("model-A", "rcp45", "r1i1p1"),
		run("model-A", "rcp85", "r1i1p1"),
	}

	err := Match(table, "ensemble", NoMatchRemove, "historical")
	require.NoError(t, err)
	assert.Equal(t, 0, table[1].MatchIdx)
	assert.Equal(t, 0, table[2].MatchIdx)
}

// randomrun relaxes the initialisation and physics indices.
func Test_Match_RandomRun(t *testing.T) {
	table := RunTable{
		run("model-A", "historical", "r2i2p2"),
		run("model-A", "rcp45", "r2i1p1"),
	}

	err := Match(table, "ensemble", NoMatchRandomRun, "historical")
	require.NoError(t, err)
	assert.Equal(t, 0, table[1].MatchIdx)
}

// randomrun falls back to an arbitrary historical run of the model.
func Test_Match_RandomRun_Fallback(t *testing.T) {
	table := RunTable{
		run("model-A", "historical", "r9i1p1"),
		run("model-A", "rcp45", "r2i1p1"),
	}

	err := Match(table, "ensemble", NoMatchRandomRun, "historical")
	require.NoError(t, err)
	assert.Equal(t, 0, table[1].MatchIdx)
}

func Test_Match_Remove_LeavesUnmatched(t *testing.T) {
	table := RunTable{
		run("model-A", "historical", "r1i1p1"),
		run("model-B", "rcp45", "r1i1p1"), // no model-B historical
	}

	err := Match(table, "ensemble", NoMatchRemove, "historical")
	require.NoError(t, err)
	assert.Equal(t, -1, table[1].MatchIdx)
}

func Test_Match_ErrorPolicy(t *testing.T) {
	table := RunTable{
		run("model-A", "historical", "r1i1p1"),
		run("model-B", "rcp45", "r1i1p1"),
	}

	err := Match(table, "ensemble", NoMatchError, "historical")
	assert.Error(t, err)
}

func Test_Match_ByModel(t *testing.T) {
	table := RunTable{
		run("model-A", "historical", "r5i1p1"),
		run("model-A", "rcp45", "r1i1p1"),
	}

	err := Match(table, "model", NoMatchRemove, "historical")
	require.NoError(t, err)
	assert.Equal(t, 0, table[1].MatchIdx)
}

func Test_realization(t *testing.T) {
	r, i, p, ok := realization("r2i1p3")
	require.True(t, ok)
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, i)
	assert.Equal(t, 3, p)

	r, _, _, ok = realization("r10i1p1f2")
	require.True(t, ok)
	assert.Equal(t, 10, r)

	_, _, _, ok = realization("ensemble-1")
	assert.False(t, ok)
}
