package climdiag

import (
	"fmt"
	"path/filepath"

	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Jet position search window: Southern hemisphere at 850 hPa.
const (
	jetPlev   = 85000.0 // Pa
	jetLatMin = -80.0
	jetLatMax = -30.0
)

// UAJet derives the jet-stream latitude for every input wind field and
// writes one series per run.
func UAJet(s Settings) error {
	logger := logging.GetLogger("climdiag")

	table, err := LoadRuns(s)
	if err != nil {
		return err
	}
	if len(table) == 0 {
		return errors.New("no input runs")
	}

	for _, run := range table {
		jet, err := DeriveJetLatitude(run.Cube)
		if err != nil {
			return errors.Wrapf(err, "%s/%s/%s", run.Model, run.Experiment, run.Ensemble)
		}
		out := filepath.Join(s.OutputDir,
			fmt.Sprintf("uajet_%s_%s_%s.csv", run.Model, run.Experiment, run.Ensemble))
		if err := SaveSeries(out, jet); err != nil {
			return err
		}
		logger.Infof("wrote %s", out)

		prov := NewProvenance("Latitude of maximum eastward wind speed.", basenames([]string{run.Path}))
		if err := SaveProvenance(provenancePath(out), prov); err != nil {
			return err
		}
	}
	return nil
}

// DeriveJetLatitude computes the latitude of maximum eastward wind speed
// per time step. The wind cube is interpolated to 850 hPa, restricted to
// the Southern hemisphere search window and zonally averaged; the
// maximum is then refined with a 2nd-degree polynomial fit through the
// three points around it, evaluated at the maximum wind speed.
func DeriveJetLatitude(ua *Cube) (*Cube, error) {
	if ua.dimIndex("plev") >= 0 {
		ua = ua.InterpLevel(jetPlev)
	}
	ua = ua.LatRange(jetLatMin, jetLatMax)
	if ua.dimIndex("lon") >= 0 {
		ua = ua.CollapseMean("lon")
	}
	if len(ua.Dims) != 2 || ua.Dims[0] != "time" || ua.Dims[1] != "lat" {
		return nil, errors.Errorf("expected a (time, lat) wind field, got %v", ua.Dims)
	}
	lats := ua.Coords["lat"]
	if len(lats) < 3 {
		return nil, errors.Errorf("need at least 3 latitudes in [%g, %g], got %d",
			jetLatMin, jetLatMax, len(lats))
	}

	nt := ua.Data.Shape[0]
	nlat := ua.Data.Shape[1]
	jet := make([]float64, nt)
	for t := 0; t < nt; t++ {
		wind := make([]float64, nlat)
		for j := 0; j < nlat; j++ {
			wind[j] = ua.Data.Get(t, j)
		}

		// Index of the strongest wind, clamped so the fit window holds
		// three points.
		iMax := argmax(wind)
		lo := iMax - 1
		if lo < 0 {
			lo = 0
		}
		if lo > nlat-3 {
			lo = nlat - 3
		}

		// Fit latitude as a quadratic in wind speed and evaluate at the
		// maximum speed.
		coef, err := polyfit2(wind[lo:lo+3], lats[lo:lo+3])
		if err != nil {
			return nil, errors.Wrapf(err, "jet fit at time step %d", t)
		}
		w := wind[iMax]
		jet[t] = coef[0]*w*w + coef[1]*w + coef[2]
	}

	out := NewSeries("uajet", "degrees_north", ua.Years, jet)
	out.Attrs["plev"] = fmt.Sprintf("%g", jetPlev)
	out.Attrs["lat_range_0"] = fmt.Sprintf("%g", jetLatMin)
	out.Attrs["lat_range_1"] = fmt.Sprintf("%g", jetLatMax)
	return out, nil
}

// polyfit2 fits y = a*x^2 + b*x + c by least squares and returns [a b c].
func polyfit2(xs []float64, ys []float64) ([]float64, error) {
	a := mat.NewDense(len(xs), 3, nil)
	for i, x := range xs {
		a.Set(i, 0, x*x)
		a.Set(i, 1, x)
		a.Set(i, 2, 1)
	}
	b := mat.NewVecDense(len(ys), ys)

	var qr mat.QR
	qr.Factorize(a)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, b); err != nil {
		return nil, err
	}
	return []float64{coef.AtVec(0), coef.AtVec(1), coef.AtVec(2)}, nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
