// Package kde evaluates kernel density surfaces at grid centroids.
package kde

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/fishnet"
)

// Quartic evaluates a quartic (biweight) kernel density at each site from the
// event points. A point contributes 3/(pi*h^2) * (1 - (d/h)^2)^2 within the
// bandwidth h and nothing beyond it.
func Quartic(sites, points []fishnet.XY, bandwidth float64) ([]float64, error) {
	if bandwidth <= 0 {
		return nil, eris.Errorf("kde: bandwidth must be positive, got %v", bandwidth)
	}
	if len(sites) == 0 {
		return nil, eris.New("kde: no evaluation sites")
	}
	if len(points) == 0 {
		zap.L().Warn("kde: no event points, density surface is zero")
		return make([]float64, len(sites)), nil
	}

	h2 := bandwidth * bandwidth
	scale := 3 / (math.Pi * h2)

	out := make([]float64, len(sites))
	for i, s := range sites {
		sum := 0.0
		for _, p := range points {
			dx := s.X - p.X
			dy := s.Y - p.Y
			d2 := dx*dx + dy*dy
			if d2 >= h2 {
				continue
			}
			u := 1 - d2/h2
			sum += u * u
		}
		out[i] = scale * sum
	}
	return out, nil
}
