// Package cv runs the cross-validation schemes over the cell feature table.
package cv

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/riskgrid/internal/glm"
)

// Fold names one held-out test split.
type Fold struct {
	Name    string
	TestIdx []int
}

// FoldError is the held-out error of one fold.
type FoldError struct {
	Name string
	MAE  float64
	Size int
}

// Result holds one cross-validated configuration: exactly one out-of-fold
// prediction per observation plus the per-fold error summary.
type Result struct {
	Predictions []float64
	Folds       []FoldError
	MAEMean     float64
	MAESD       float64
}

// RandomFolds partitions n observations into k near-equal folds using a
// seeded shuffle, so repeated runs produce the same split.
func RandomFolds(n, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, eris.Errorf("cv: need at least 2 folds, got %d", k)
	}
	if k > n {
		return nil, eris.Errorf("cv: %d folds over %d observations", k, n)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	perm := rng.Perm(n)

	folds := make([]Fold, k)
	for i := range folds {
		folds[i].Name = fmt.Sprintf("fold-%02d", i+1)
	}
	for pos, idx := range perm {
		f := pos % k
		folds[f].TestIdx = append(folds[f].TestIdx, idx)
	}
	for i := range folds {
		sort.Ints(folds[i].TestIdx)
	}
	return folds, nil
}

// GroupFolds builds one fold per distinct group label (leave-one-group-out).
// Folds are ordered by group name so runs are deterministic.
func GroupFolds(groups []string) ([]Fold, error) {
	if len(groups) == 0 {
		return nil, eris.New("cv: no group labels")
	}

	byName := make(map[string][]int)
	for i, g := range groups {
		if g == "" {
			return nil, eris.Errorf("cv: observation %d has no group label", i)
		}
		byName[g] = append(byName[g], i)
	}
	if len(byName) < 2 {
		return nil, eris.Errorf("cv: need at least 2 groups, got %d", len(byName))
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	folds := make([]Fold, len(names))
	for i, name := range names {
		folds[i] = Fold{Name: name, TestIdx: byName[name]}
	}
	return folds, nil
}

// Run fits the Poisson model once per fold on the training split and
// predicts the held-out split. Every observation must appear in exactly one
// fold's test set.
func Run(x *mat.Dense, y []float64, folds []Fold, maxIter int, tol float64) (*Result, error) {
	n, p := x.Dims()
	if len(y) != n {
		return nil, eris.Errorf("cv: design has %d rows, response has %d", n, len(y))
	}
	if len(folds) == 0 {
		return nil, eris.New("cv: no folds")
	}

	seen := make([]bool, n)
	for _, f := range folds {
		for _, i := range f.TestIdx {
			if i < 0 || i >= n {
				return nil, eris.Errorf("cv: fold %q holds out-of-range index %d", f.Name, i)
			}
			if seen[i] {
				return nil, eris.Errorf("cv: observation %d held out by more than one fold", i)
			}
			seen[i] = true
		}
	}
	for i, ok := range seen {
		if !ok {
			return nil, eris.Errorf("cv: observation %d not held out by any fold", i)
		}
	}

	res := &Result{
		Predictions: make([]float64, n),
		Folds:       make([]FoldError, 0, len(folds)),
	}

	for _, f := range folds {
		test := make(map[int]bool, len(f.TestIdx))
		for _, i := range f.TestIdx {
			test[i] = true
		}

		trainRows := n - len(f.TestIdx)
		if trainRows < p {
			return nil, eris.Errorf("cv: fold %q leaves only %d training rows for %d parameters", f.Name, trainRows, p)
		}

		trainX := mat.NewDense(trainRows, p, nil)
		trainY := make([]float64, 0, trainRows)
		r := 0
		for i := 0; i < n; i++ {
			if test[i] {
				continue
			}
			for j := 0; j < p; j++ {
				trainX.Set(r, j, x.At(i, j))
			}
			trainY = append(trainY, y[i])
			r++
		}

		model, err := glm.FitPoisson(trainX, trainY, maxIter, tol)
		if err != nil {
			return nil, eris.Wrapf(err, "cv: fit fold %q", f.Name)
		}

		testX := mat.NewDense(len(f.TestIdx), p, nil)
		for r, i := range f.TestIdx {
			for j := 0; j < p; j++ {
				testX.Set(r, j, x.At(i, j))
			}
		}
		pred, err := model.Predict(testX)
		if err != nil {
			return nil, eris.Wrapf(err, "cv: predict fold %q", f.Name)
		}

		mae := 0.0
		for r, i := range f.TestIdx {
			res.Predictions[i] = pred[r]
			mae += math.Abs(pred[r] - y[i])
		}
		mae /= float64(len(f.TestIdx))

		res.Folds = append(res.Folds, FoldError{Name: f.Name, MAE: mae, Size: len(f.TestIdx)})
	}

	maes := make([]float64, len(res.Folds))
	for i, f := range res.Folds {
		maes[i] = f.MAE
	}
	res.MAEMean, res.MAESD = stat.MeanStdDev(maes, nil)

	zap.L().Info("cross-validation complete",
		zap.Int("folds", len(folds)),
		zap.Float64("mae_mean", res.MAEMean),
		zap.Float64("mae_sd", res.MAESD),
	)
	return res, nil
}
