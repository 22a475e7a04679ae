// Package glm fits log-link Poisson regressions by iteratively reweighted
// least squares.
package glm

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// etaCap bounds the linear predictor so exp never overflows.
const etaCap = 30

// Model is a fitted Poisson regression.
type Model struct {
	Coef       []float64
	Deviance   float64
	Iterations int
}

// FitPoisson fits a Poisson regression with log link. The design matrix x
// must already carry its intercept column; y holds non-negative counts.
// Convergence is declared when the relative deviance change drops below tol.
// A rank-deficient design is an error, as is failure to converge within
// maxIter iterations.
func FitPoisson(x mat.Matrix, y []float64, maxIter int, tol float64) (*Model, error) {
	n, p := x.Dims()
	if n == 0 || p == 0 {
		return nil, eris.New("glm: empty design matrix")
	}
	if len(y) != n {
		return nil, eris.Errorf("glm: design has %d rows, response has %d", n, len(y))
	}
	if n < p {
		return nil, eris.Errorf("glm: %d observations cannot identify %d parameters", n, p)
	}
	for i, v := range y {
		if v < 0 {
			return nil, eris.Errorf("glm: negative count %v at row %d", v, i)
		}
	}
	if maxIter <= 0 {
		return nil, eris.New("glm: max iterations must be positive")
	}

	mu := make([]float64, n)
	eta := make([]float64, n)
	for i, v := range y {
		mu[i] = v + 0.5
		eta[i] = math.Log(mu[i])
	}

	beta := mat.NewVecDense(p, nil)
	xs := mat.NewDense(n, p, nil)
	zs := mat.NewVecDense(n, nil)
	rhs := mat.NewVecDense(p, nil)
	var xtwx mat.SymDense
	var chol mat.Cholesky

	dev := deviance(y, mu)

	for iter := 1; iter <= maxIter; iter++ {
		// Working response and sqrt-weighted design.
		for i := 0; i < n; i++ {
			w := math.Sqrt(mu[i])
			z := eta[i] + (y[i]-mu[i])/mu[i]
			zs.SetVec(i, w*z)
			for j := 0; j < p; j++ {
				xs.Set(i, j, w*x.At(i, j))
			}
		}

		xtwx.SymOuterK(1, xs.T())
		if ok := chol.Factorize(&xtwx); !ok {
			return nil, eris.New("glm: design matrix is rank deficient")
		}
		rhs.MulVec(xs.T(), zs)
		if err := chol.SolveVecTo(beta, rhs); err != nil {
			return nil, eris.Wrap(err, "glm: solve normal equations")
		}

		for i := 0; i < n; i++ {
			e := 0.0
			for j := 0; j < p; j++ {
				e += x.At(i, j) * beta.AtVec(j)
			}
			eta[i] = math.Min(math.Max(e, -etaCap), etaCap)
			mu[i] = math.Exp(eta[i])
		}

		newDev := deviance(y, mu)
		rel := math.Abs(dev-newDev) / (math.Abs(newDev) + 0.1)
		dev = newDev
		if rel < tol {
			m := &Model{
				Coef:       make([]float64, p),
				Deviance:   dev,
				Iterations: iter,
			}
			copy(m.Coef, beta.RawVector().Data)
			zap.L().Debug("glm converged",
				zap.Int("iterations", iter),
				zap.Float64("deviance", dev),
			)
			return m, nil
		}
	}

	return nil, eris.Errorf("glm: no convergence after %d iterations", maxIter)
}

// Predict evaluates the fitted mean response for each row of x.
func (m *Model) Predict(x mat.Matrix) ([]float64, error) {
	n, p := x.Dims()
	if p != len(m.Coef) {
		return nil, eris.Errorf("glm: design has %d columns, model has %d coefficients", p, len(m.Coef))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		e := 0.0
		for j := 0; j < p; j++ {
			e += x.At(i, j) * m.Coef[j]
		}
		out[i] = math.Exp(math.Min(math.Max(e, -etaCap), etaCap))
	}
	return out, nil
}

// deviance is the Poisson deviance; the y*log(y/mu) term vanishes at y = 0.
func deviance(y, mu []float64) float64 {
	d := 0.0
	for i := range y {
		if y[i] > 0 {
			d += y[i] * math.Log(y[i]/mu[i])
		}
		d -= y[i] - mu[i]
	}
	return 2 * d
}
