package fishnet

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MeanNearestDistances computes, for each site, the mean planar distance to
// its k nearest reference points. When fewer than k reference points exist
// the mean is taken over those available; zero reference points is a
// configuration error rather than a silent zero.
func MeanNearestDistances(sites, refs []XY, k int) ([]float64, error) {
	if k <= 0 {
		return nil, eris.Errorf("knn: k must be positive, got %d", k)
	}
	if len(refs) == 0 {
		return nil, eris.New("knn: no reference points")
	}
	if len(refs) < k {
		zap.L().Warn("knn: fewer reference points than k, averaging over available",
			zap.Int("k", k),
			zap.Int("refs", len(refs)),
		)
		k = len(refs)
	}

	out := make([]float64, len(sites))
	nearest := make([]float64, k)
	for i, s := range sites {
		for j := range nearest {
			nearest[j] = math.Inf(1)
		}

		for _, r := range refs {
			d := math.Hypot(s.X-r.X, s.Y-r.Y)
			if d >= nearest[k-1] {
				continue
			}
			// Insertion keeps the k smallest distances sorted.
			pos := k - 1
			for pos > 0 && nearest[pos-1] > d {
				nearest[pos] = nearest[pos-1]
				pos--
			}
			nearest[pos] = d
		}

		sum := 0.0
		for _, d := range nearest {
			sum += d
		}
		out[i] = sum / float64(k)
	}
	return out, nil
}
