package moran

import (
	"math"
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/fishnet"
)

// LocalResult holds the local Moran statistic for one observation.
type LocalResult struct {
	I           float64
	P           float64
	Significant bool
}

// LocalI computes local Moran's I per observation with conditional
// permutation p-values (one-sided, high-value clustering). An observation is
// significant when its pseudo p-value is at or below alpha.
//
// Islands receive the neutral result (I = 0, p = 1, not significant) and are
// excluded from the permutation test.
func LocalI(values []float64, w *Weights, permutations int, alpha float64, seed int64) ([]LocalResult, error) {
	n := len(values)
	if n == 0 {
		return nil, eris.New("moran: no observations")
	}
	if len(w.Neighbors) != n {
		return nil, eris.Errorf("moran: weights cover %d observations, values %d", len(w.Neighbors), n)
	}
	if permutations <= 0 {
		return nil, eris.New("moran: permutations must be positive")
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	z := make([]float64, n)
	m2 := 0.0
	for i, v := range values {
		z[i] = v - mean
		m2 += z[i] * z[i]
	}
	m2 /= float64(n)
	if m2 == 0 {
		return nil, eris.New("moran: values are constant")
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	results := make([]LocalResult, n)

	// Index pool for conditional permutation: all observations except i.
	pool := make([]int, n-1)

	for i := 0; i < n; i++ {
		nbrs := w.Neighbors[i]
		if len(nbrs) == 0 {
			results[i] = LocalResult{I: 0, P: 1, Significant: false}
			continue
		}

		observed := z[i] / m2 * w.lag(z, i)

		for j := 0; j < n; j++ {
			if j < i {
				pool[j] = j
			} else if j > i {
				pool[j-1] = j
			}
		}

		exceed := 0
		k := len(nbrs)
		for perm := 0; perm < permutations; perm++ {
			// Partial Fisher-Yates draws k positions without replacement.
			lagSum := 0.0
			for d := 0; d < k; d++ {
				r := d + rng.IntN(len(pool)-d)
				pool[d], pool[r] = pool[r], pool[d]
				lagSum += z[pool[d]]
			}
			permI := z[i] / m2 * (lagSum / float64(k))
			if permI >= observed {
				exceed++
			}
		}

		pval := (float64(exceed) + 1) / (float64(permutations) + 1)
		results[i] = LocalResult{
			I:           observed,
			P:           pval,
			Significant: pval <= alpha,
		}
	}

	return results, nil
}

// DistanceToSignificant returns, per site, the planar distance to the nearest
// significant site. Significant sites report 0. When no site is significant
// every distance is 0 and a warning is logged; the feature then carries no
// information but the pipeline proceeds.
func DistanceToSignificant(sites []fishnet.XY, results []LocalResult) []float64 {
	var sig []fishnet.XY
	for i, r := range results {
		if r.Significant {
			sig = append(sig, sites[i])
		}
	}

	out := make([]float64, len(sites))
	if len(sig) == 0 {
		zap.L().Warn("moran: no significant clusters, distance feature is all zeros")
		return out
	}

	for i, s := range sites {
		if results[i].Significant {
			continue
		}
		best := math.Inf(1)
		for _, g := range sig {
			d := math.Hypot(s.X-g.X, s.Y-g.Y)
			if d < best {
				best = d
			}
		}
		out[i] = best
	}
	return out
}

// GlobalI computes global Moran's I under the same weights with a
// total-permutation pseudo p-value (one-sided, positive autocorrelation).
// Island rows contribute nothing to the statistic.
func GlobalI(values []float64, w *Weights, permutations int, seed int64) (float64, float64, error) {
	n := len(values)
	if n == 0 {
		return 0, 0, eris.New("moran: no observations")
	}
	if len(w.Neighbors) != n {
		return 0, 0, eris.Errorf("moran: weights cover %d observations, values %d", len(w.Neighbors), n)
	}
	if permutations <= 0 {
		return 0, 0, eris.New("moran: permutations must be positive")
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	z := make([]float64, n)
	ss := 0.0
	for i, v := range values {
		z[i] = v - mean
		ss += z[i] * z[i]
	}
	if ss == 0 {
		return 0, 0, eris.New("moran: values are constant")
	}

	stat := func(dev []float64) float64 {
		num := 0.0
		s0 := 0.0
		for i := range dev {
			for j, nb := range w.Neighbors[i] {
				num += w.W[i][j] * dev[i] * dev[nb]
				s0 += w.W[i][j]
			}
		}
		if s0 == 0 {
			return 0
		}
		return float64(n) / s0 * num / ss
	}

	observed := stat(z)

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	perm := make([]float64, n)
	copy(perm, z)
	exceed := 0
	for p := 0; p < permutations; p++ {
		rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		if stat(perm) >= observed {
			exceed++
		}
	}
	pval := (float64(exceed) + 1) / (float64(permutations) + 1)

	return observed, pval, nil
}
