// Package moran computes spatial autocorrelation statistics over the fishnet.
package moran

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/fishnet"
)

// Weights is a sparse row-standardized spatial weights matrix.
type Weights struct {
	Neighbors [][]int     // neighbor positions per observation
	W         [][]float64 // row-standardized weights, aligned with Neighbors
}

// Queen builds queen-contiguity weights for the grid: cells sharing an edge
// or a corner are neighbors. Because the fishnet is an axis-aligned square
// tiling, contiguity reduces to the eight surrounding row/col positions
// restricted to retained cells.
//
// Island policy: a cell whose eight surrounding positions were all filtered
// out of the grid keeps an empty weights row; the statistics treat such cells
// as neutral rather than failing. The same policy applies wherever weights
// are built.
func Queen(g *fishnet.Grid) (*Weights, error) {
	if len(g.Cells) == 0 {
		return nil, eris.New("moran: empty grid")
	}

	w := &Weights{
		Neighbors: make([][]int, len(g.Cells)),
		W:         make([][]float64, len(g.Cells)),
	}

	offsets := [8][2]int{
		{-1, -1}, {-1, 0}, {-1, 1},
		{0, -1}, {0, 1},
		{1, -1}, {1, 0}, {1, 1},
	}

	islands := 0
	for i, c := range g.Cells {
		var nbrs []int
		for _, off := range offsets {
			n, ok := g.At(c.Row+off[0], c.Col+off[1])
			if !ok {
				continue
			}
			nbrs = append(nbrs, n.ID-1)
		}
		w.Neighbors[i] = nbrs

		if len(nbrs) == 0 {
			islands++
			continue
		}
		row := make([]float64, len(nbrs))
		for j := range row {
			row[j] = 1.0 / float64(len(nbrs))
		}
		w.W[i] = row
	}

	if islands > 0 {
		zap.L().Warn("moran: grid contains cells with no neighbors", zap.Int("islands", islands))
	}
	return w, nil
}

// Islands returns the positions of observations with no neighbors.
func (w *Weights) Islands() []int {
	var out []int
	for i, nbrs := range w.Neighbors {
		if len(nbrs) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// lag returns the spatially lagged value for observation i.
func (w *Weights) lag(values []float64, i int) float64 {
	sum := 0.0
	for j, n := range w.Neighbors[i] {
		sum += w.W[i][j] * values[n]
	}
	return sum
}
