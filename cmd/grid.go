package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/riskgrid/internal/fishnet"
	"github.com/sells-group/riskgrid/internal/store"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Build the fishnet grid over the city boundary",
	Long: `Tiles the stored city boundary with square cells, keeps the cells that
intersect the boundary, labels each cell with the neighborhood containing its
centroid, and stores the grid. Cell ids are stable; every derived table keys
on them.`,
}

func init() {
	gridCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, "grid", stageGrid)
	}
	gridCmd.Flags().Float64("cell-ft", 0, "cell side in feet (overrides config)")
	rootCmd.AddCommand(gridCmd)
}

func stageGrid(ctx context.Context, st store.Store) error {
	if v, _ := gridCmd.Flags().GetFloat64("cell-ft"); v > 0 {
		cfg.Grid.CellFt = v
	}

	boundary, err := st.Areas(ctx, "boundary")
	if err != nil {
		return err
	}
	if len(boundary) == 0 {
		return eris.New("grid: no boundary stored, run ingest first")
	}

	hoods, err := st.Areas(ctx, "neighborhood")
	if err != nil {
		return err
	}

	g, err := fishnet.Build(boundary[0].Polygon, cfg.Grid.CellFt)
	if err != nil {
		return err
	}
	if err := g.AssignNeighborhoods(hoods); err != nil {
		return err
	}

	return st.ReplaceGrid(ctx, g)
}
