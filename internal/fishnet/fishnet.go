// Package fishnet builds the square analysis grid and derives per-cell
// point features.
package fishnet

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/geo"
)

// XY is a planar point in state-plane feet.
type XY struct {
	X, Y float64
}

// Cell is one square of the grid. Ids are a dense sequence starting at 1,
// assigned row-major over the cells that intersect the boundary, and are
// stable for the life of the grid: every later table keys on them.
type Cell struct {
	ID           int
	Row, Col     int
	MinX, MinY   float64
	MaxX, MaxY   float64
	CenterX      float64
	CenterY      float64
	Neighborhood string
}

// Grid is the fishnet over the study boundary.
type Grid struct {
	CellSize float64
	OriginX  float64
	OriginY  float64
	Rows     int
	Cols     int
	Cells    []Cell

	index map[[2]int]int // (row, col) -> position in Cells
}

// Build tiles the boundary's bounding extent with axis-aligned squares of the
// given side and keeps every cell whose square intersects the boundary.
// Partially intersecting cells are kept whole, not clipped.
func Build(boundary *geom.MultiPolygon, cellSize float64) (*Grid, error) {
	if cellSize <= 0 {
		return nil, eris.New("fishnet: cell size must be positive")
	}

	minX, minY, maxX, maxY := geo.Bounds(boundary)
	if maxX <= minX || maxY <= minY {
		return nil, eris.New("fishnet: boundary has empty extent")
	}

	cols := int(math.Ceil((maxX - minX) / cellSize))
	rows := int(math.Ceil((maxY - minY) / cellSize))

	g := &Grid{
		CellSize: cellSize,
		OriginX:  minX,
		OriginY:  minY,
		Rows:     rows,
		Cols:     cols,
		index:    make(map[[2]int]int),
	}

	id := 1
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cMinX := minX + float64(col)*cellSize
			cMinY := minY + float64(row)*cellSize
			cMaxX := cMinX + cellSize
			cMaxY := cMinY + cellSize

			if !geo.IntersectsRect(boundary, cMinX, cMinY, cMaxX, cMaxY) {
				continue
			}

			g.index[[2]int{row, col}] = len(g.Cells)
			g.Cells = append(g.Cells, Cell{
				ID:      id,
				Row:     row,
				Col:     col,
				MinX:    cMinX,
				MinY:    cMinY,
				MaxX:    cMaxX,
				MaxY:    cMaxY,
				CenterX: cMinX + cellSize/2,
				CenterY: cMinY + cellSize/2,
			})
			id++
		}
	}

	if len(g.Cells) == 0 {
		return nil, eris.New("fishnet: no cells intersect the boundary")
	}

	zap.L().Info("fishnet built",
		zap.Float64("cell_size", cellSize),
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Int("cells", len(g.Cells)),
	)
	return g, nil
}

// Restore rebuilds a grid from previously persisted cells.
func Restore(cellSize, originX, originY float64, rows, cols int, cells []Cell) *Grid {
	g := &Grid{
		CellSize: cellSize,
		OriginX:  originX,
		OriginY:  originY,
		Rows:     rows,
		Cols:     cols,
		Cells:    cells,
		index:    make(map[[2]int]int, len(cells)),
	}
	for i, c := range cells {
		g.index[[2]int{c.Row, c.Col}] = i
	}
	return g
}

// At returns the retained cell at the given row/col, if any.
func (g *Grid) At(row, col int) (*Cell, bool) {
	i, ok := g.index[[2]int{row, col}]
	if !ok {
		return nil, false
	}
	return &g.Cells[i], true
}

// CellAt locates the retained cell containing the point. Cell edges are
// half-open on the max side so a point on a shared edge lands in exactly
// one cell.
func (g *Grid) CellAt(x, y float64) (*Cell, bool) {
	col := int(math.Floor((x - g.OriginX) / g.CellSize))
	row := int(math.Floor((y - g.OriginY) / g.CellSize))
	if row < 0 || row >= g.Rows || col < 0 || col >= g.Cols {
		return nil, false
	}
	return g.At(row, col)
}

// Centroids returns the cell centroids in id order.
func (g *Grid) Centroids() []XY {
	out := make([]XY, len(g.Cells))
	for i, c := range g.Cells {
		out[i] = XY{c.CenterX, c.CenterY}
	}
	return out
}

// AssignNeighborhoods labels each cell with the neighborhood containing its
// centroid. Centroids of edge cells can fall outside every polygon; those
// cells take the nearest neighborhood so the grouped cross-validation covers
// the full grid.
func (g *Grid) AssignNeighborhoods(areas []geo.Area) error {
	if len(areas) == 0 {
		return eris.New("fishnet: no neighborhood areas")
	}

	centers := make([]XY, len(areas))
	for i, a := range areas {
		minX, minY, maxX, maxY := geo.Bounds(a.Polygon)
		centers[i] = XY{(minX + maxX) / 2, (minY + maxY) / 2}
	}

	var fallback int
	for i := range g.Cells {
		c := &g.Cells[i]
		assigned := false
		for j, a := range areas {
			if geo.ContainsPoint(a.Polygon, c.CenterX, c.CenterY) {
				c.Neighborhood = areas[j].Name
				assigned = true
				break
			}
		}
		if assigned {
			continue
		}

		best := 0
		bestDist := math.Inf(1)
		for j, ctr := range centers {
			d := math.Hypot(c.CenterX-ctr.X, c.CenterY-ctr.Y)
			if d < bestDist {
				bestDist = d
				best = j
			}
		}
		c.Neighborhood = areas[best].Name
		fallback++
	}

	if fallback > 0 {
		zap.L().Debug("fishnet: edge cells assigned nearest neighborhood", zap.Int("cells", fallback))
	}
	return nil
}
