package fishnet

// Counts aggregates points onto the grid by containment. The result is
// indexed in cell order; cells without points report 0, never a missing
// value. The second return is the number of points that fell inside a
// retained cell.
func (g *Grid) Counts(points []XY) ([]int, int) {
	counts := make([]int, len(g.Cells))
	inside := 0
	for _, p := range points {
		c, ok := g.CellAt(p.X, p.Y)
		if !ok {
			continue
		}
		counts[g.index[[2]int{c.Row, c.Col}]]++
		inside++
	}
	return counts, inside
}
