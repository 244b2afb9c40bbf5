package climdiag

import (
	"math"
	"sort"

	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// GBRConfig holds the hyperparameters of the boosting regressor.
type GBRConfig struct {
	NEstimators  int     `yaml:"n_estimators"`
	LearningRate float64 `yaml:"learning_rate"`
	MaxDepth     int     `yaml:"max_depth"`
	MinSamples   int     `yaml:"min_samples"` // minimum samples per split
}

// DefaultGBRConfig returns the usual boosting defaults.
func DefaultGBRConfig() GBRConfig {
	return GBRConfig{
		NEstimators:  100,
		LearningRate: 0.1,
		MaxDepth:     3,
		MinSamples:   2,
	}
}

// GBR is a least-squares gradient boosting regressor over small
// regression trees. It records the RMSE on the training data (and on an
// optional test set) after every boosting round, so the prediction
// error can be inspected per iteration.
type GBR struct {
	cfg   GBRConfig
	bias  float64
	trees []*regTree

	TrainRMSE []float64
	TestRMSE  []float64
}

// NewGBR builds an unfitted regressor.
func NewGBR(cfg GBRConfig) *GBR {
	if cfg.NEstimators <= 0 {
		cfg.NEstimators = DefaultGBRConfig().NEstimators
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultGBRConfig().LearningRate
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultGBRConfig().MaxDepth
	}
	if cfg.MinSamples < 2 {
		cfg.MinSamples = 2
	}
	return &GBR{cfg: cfg}
}

// Fit trains the regressor. xTest/yTest may be nil; when given, the test
// RMSE is tracked alongside the training RMSE.
func (g *GBR) Fit(x mat.Matrix, y []float64, xTest mat.Matrix, yTest []float64) error {
	logger := logging.GetLogger("climdiag")

	rows, _ := x.Dims()
	if rows != len(y) {
		return errors.Errorf("%d samples for %d targets", rows, len(y))
	}
	if rows == 0 {
		return errors.New("empty training set")
	}

	g.trees = nil
	g.TrainRMSE = nil
	g.TestRMSE = nil

	g.bias = 0
	for _, v := range y {
		g.bias += v
	}
	g.bias /= float64(rows)

	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = g.bias
	}
	var testPred []float64
	if xTest != nil {
		testRows, _ := xTest.Dims()
		if testRows != len(yTest) {
			return errors.Errorf("%d test samples for %d targets", testRows, len(yTest))
		}
		testPred = make([]float64, testRows)
		for i := range testPred {
			testPred[i] = g.bias
		}
	}

	residuals := make([]float64, rows)
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}

	for round := 0; round < g.cfg.NEstimators; round++ {
		for i := range residuals {
			residuals[i] = y[i] - pred[i]
		}
		tree := growTree(x, residuals, idx, g.cfg.MaxDepth, g.cfg.MinSamples)
		g.trees = append(g.trees, tree)

		for i := range pred {
			pred[i] += g.cfg.LearningRate * tree.predict(x, i)
		}
		g.TrainRMSE = append(g.TrainRMSE, rmse(y, pred))

		if testPred != nil {
			for i := range testPred {
				testPred[i] += g.cfg.LearningRate * tree.predict(xTest, i)
			}
			g.TestRMSE = append(g.TestRMSE, rmse(yTest, testPred))
		}
	}
	logger.Infof("fitted %d boosting rounds, final train RMSE %g",
		len(g.trees), g.TrainRMSE[len(g.TrainRMSE)-1])
	return nil
}

// Predict evaluates the fitted model for every row of x.
func (g *GBR) Predict(x mat.Matrix) []float64 {
	rows, _ := x.Dims()
	out := make([]float64, rows)
	for i := range out {
		v := g.bias
		for _, tree := range g.trees {
			v += g.cfg.LearningRate * tree.predict(x, i)
		}
		out[i] = v
	}
	return out
}

// PlotPredictionError renders the RMSE per boosting round for the
// training data and, when tracked, the test data.
func (g *GBR) PlotPredictionError(path string) error {
	if len(g.TrainRMSE) == 0 {
		return errors.New("model is not fitted")
	}
	p := plot.New()
	p.Title.Text = "Prediction error"
	p.X.Label.Text = "boosting iteration"
	p.Y.Label.Text = "RMSE"

	train := make(plotter.XYs, len(g.TrainRMSE))
	for i, v := range g.TrainRMSE {
		train[i] = plotter.XY{X: float64(i + 1), Y: v}
	}
	args := []interface{}{"train", train}
	if len(g.TestRMSE) > 0 {
		test := make(plotter.XYs, len(g.TestRMSE))
		for i, v := range g.TestRMSE {
			test[i] = plotter.XY{X: float64(i + 1), Y: v}
		}
		args = append(args, "test", test)
	}
	if err := plotutil.AddLines(p, args...); err != nil {
		return err
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	return nil
}

func rmse(y []float64, pred []float64) float64 {
	sum := 0.0
	for i, v := range y {
		d := v - pred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(y)))
}

// regTree is a small regression tree fitted to the boosting residuals.
type regTree struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *regTree
	right     *regTree
}

func (t *regTree) predict(x mat.Matrix, row int) float64 {
	for !t.leaf {
		if x.At(row, t.feature) <= t.threshold {
			t = t.left
		} else {
			t = t.right
		}
	}
	return t.value
}

// growTree grows a tree on the given sample indices by greedily picking
// the split with the largest squared-error reduction.
func growTree(x mat.Matrix, target []float64, idx []int, depth int, minSamples int) *regTree {
	mean := 0.0
	for _, i := range idx {
		mean += target[i]
	}
	mean /= float64(len(idx))

	if depth == 0 || len(idx) < minSamples {
		return &regTree{leaf: true, value: mean}
	}

	feature, threshold, ok := bestSplit(x, target, idx, minSamples)
	if !ok {
		return &regTree{leaf: true, value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if x.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &regTree{
		feature:   feature,
		threshold: threshold,
		left:      growTree(x, target, left, depth-1, minSamples),
		right:     growTree(x, target, right, depth-1, minSamples),
	}
}

// bestSplit scans all features and midpoint thresholds. ok is false when
// no split separates the samples.
func bestSplit(x mat.Matrix, target []float64, idx []int, minSamples int) (feature int, threshold float64, ok bool) {
	_, cols := x.Dims()

	total := 0.0
	for _, i := range idx {
		total += target[i]
	}

	best := math.Inf(1)
	for j := 0; j < cols; j++ {
		values := make([]float64, len(idx))
		for k, i := range idx {
			values[k] = x.At(i, j)
		}
		sorted := append([]float64{}, values...)
		sort.Float64s(sorted)

		for k := 0; k < len(sorted)-1; k++ {
			if sorted[k] == sorted[k+1] {
				continue
			}
			thr := (sorted[k] + sorted[k+1]) / 2

			var nl int
			var sl float64
			for m, i := range idx {
				if values[m] <= thr {
					nl++
					sl += target[i]
				}
			}
			nr := len(idx) - nl
			if nl == 0 || nr == 0 {
				continue
			}
			sr := total - sl
			// Minimizing SSE with fixed totals is maximizing
			// sl^2/nl + sr^2/nr.
			score := -(sl*sl/float64(nl) + sr*sr/float64(nr))
			if score < best {
				best = score
				feature = j
				threshold = thr
				ok = true
			}
		}
	}
	return feature, threshold, ok
}
