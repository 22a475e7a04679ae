package moran

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskgrid/internal/fishnet"
)

// fullGrid builds a complete rows x cols grid with 100 ft cells.
func fullGrid(rows, cols int) *fishnet.Grid {
	var cells []fishnet.Cell
	id := 1
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cells = append(cells, fishnet.Cell{
				ID: id, Row: r, Col: c,
				MinX: float64(c) * 100, MinY: float64(r) * 100,
				MaxX: float64(c+1) * 100, MaxY: float64(r+1) * 100,
				CenterX: float64(c)*100 + 50, CenterY: float64(r)*100 + 50,
			})
			id++
		}
	}
	return fishnet.Restore(100, 0, 0, rows, cols, cells)
}

func TestQueen_FullGrid(t *testing.T) {
	g := fullGrid(3, 3)
	w, err := Queen(g)
	require.NoError(t, err)
	require.Len(t, w.Neighbors, 9)

	// Row-major over a full 3x3: 0 is a corner, 1 an edge, 4 the center.
	assert.Len(t, w.Neighbors[0], 3)
	assert.Len(t, w.Neighbors[1], 5)
	assert.Len(t, w.Neighbors[4], 8)

	for i := range w.W {
		sum := 0.0
		for _, v := range w.W[i] {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-12, "row %d not standardized", i)
	}
	assert.Empty(t, w.Islands())
}

func TestQueen_Island(t *testing.T) {
	cells := []fishnet.Cell{
		{ID: 1, Row: 0, Col: 0},
		{ID: 2, Row: 0, Col: 1},
		{ID: 3, Row: 5, Col: 5},
	}
	g := fishnet.Restore(100, 0, 0, 6, 6, cells)

	w, err := Queen(g)
	require.NoError(t, err)

	assert.Equal(t, []int{2}, w.Islands())
	assert.Len(t, w.Neighbors[0], 1)
	assert.Len(t, w.Neighbors[1], 1)
	assert.Empty(t, w.Neighbors[2])
}

func TestQueen_EmptyGrid(t *testing.T) {
	g := fishnet.Restore(100, 0, 0, 0, 0, nil)
	_, err := Queen(g)
	assert.Error(t, err)
}
