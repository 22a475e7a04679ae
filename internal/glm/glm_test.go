package glm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFitPoisson_InterceptOnly(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5, 0, 2, 7}
	n := len(y)
	ones := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		ones.Set(i, 0, 1)
	}

	m, err := FitPoisson(ones, y, 100, 1e-8)
	require.NoError(t, err)

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)

	assert.InDelta(t, math.Log(mean), m.Coef[0], 1e-6)

	pred, err := m.Predict(ones)
	require.NoError(t, err)
	for _, p := range pred {
		assert.InDelta(t, mean, p, 1e-5)
	}
}

func TestFitPoisson_RecoversCoefficients(t *testing.T) {
	// Response set exactly to the Poisson mean: the fit must recover the
	// generating coefficients to high precision.
	b0, b1 := 0.5, 0.3
	n := 50
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		xi := float64(i) / 10
		x.Set(i, 0, 1)
		x.Set(i, 1, xi)
		y[i] = math.Exp(b0 + b1*xi)
	}

	m, err := FitPoisson(x, y, 100, 1e-10)
	require.NoError(t, err)
	assert.InDelta(t, b0, m.Coef[0], 1e-4)
	assert.InDelta(t, b1, m.Coef[1], 1e-4)
}

func TestFitPoisson_PredictionsNonNegative(t *testing.T) {
	n := 30
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, float64(i%7)-3)
		y[i] = float64(i % 4)
	}

	m, err := FitPoisson(x, y, 100, 1e-8)
	require.NoError(t, err)

	pred, err := m.Predict(x)
	require.NoError(t, err)
	for _, p := range pred {
		assert.GreaterOrEqual(t, p, 0.0)
	}
}

func TestFitPoisson_RankDeficient(t *testing.T) {
	// Duplicate column.
	n := 20
	x := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		xi := float64(i)
		x.Set(i, 0, 1)
		x.Set(i, 1, xi)
		x.Set(i, 2, xi)
		y[i] = float64(i % 3)
	}

	_, err := FitPoisson(x, y, 100, 1e-8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank deficient")
}

func TestFitPoisson_InputErrors(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 1, 1})

	_, err := FitPoisson(x, []float64{1, 2}, 100, 1e-8)
	assert.Error(t, err, "length mismatch")

	_, err = FitPoisson(x, []float64{1, -2, 3}, 100, 1e-8)
	assert.Error(t, err, "negative count")

	_, err = FitPoisson(x, []float64{1, 2, 3}, 0, 1e-8)
	assert.Error(t, err, "no iterations")

	wide := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	_, err = FitPoisson(wide, []float64{1, 2}, 100, 1e-8)
	assert.Error(t, err, "more parameters than observations")
}

func TestPredict_DimensionMismatch(t *testing.T) {
	m := &Model{Coef: []float64{0.1, 0.2}}
	x := mat.NewDense(2, 3, nil)
	_, err := m.Predict(x)
	assert.Error(t, err)
}
