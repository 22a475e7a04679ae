package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/fishnet"
	"github.com/sells-group/riskgrid/internal/moran"
	"github.com/sells-group/riskgrid/internal/store"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Build the per-cell feature table",
	Long: `Aggregates the model-year crime and auxiliary points onto the grid, computes
mean distance to the k nearest auxiliary points per factor, runs local Moran's I
on the crime counts, and stores the feature table.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, "features", stageFeatures)
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}

func stageFeatures(ctx context.Context, st store.Store) error {
	g, err := st.Grid(ctx)
	if err != nil {
		return err
	}
	centroids := g.Centroids()

	crime, err := st.Points(ctx, "crime", cfg.Socrata.Year)
	if err != nil {
		return err
	}
	crimeCounts, inside := g.Counts(crime)
	zap.L().Info("crime points aggregated",
		zap.Int("total", len(crime)),
		zap.Int("inside", inside),
	)

	aux := make(map[string]struct {
		counts []int
		dists  []float64
	})
	for _, source := range []string{"abandoned", "lights", "sensor"} {
		pts, err := st.Points(ctx, source, cfg.Socrata.Year)
		if err != nil {
			return err
		}
		counts, _ := g.Counts(pts)
		dists, err := fishnet.MeanNearestDistances(centroids, pts, cfg.Feature.KNearest)
		if err != nil {
			return err
		}
		aux[source] = struct {
			counts []int
			dists  []float64
		}{counts, dists}
	}

	w, err := moran.Queen(g)
	if err != nil {
		return err
	}
	values := make([]float64, len(crimeCounts))
	for i, c := range crimeCounts {
		values[i] = float64(c)
	}
	local, err := moran.LocalI(values, w, cfg.Feature.Permutations, cfg.Feature.Significance, cfg.Feature.Seed)
	if err != nil {
		return err
	}
	distSig := moran.DistanceToSignificant(centroids, local)

	feats := make([]store.CellFeatures, len(g.Cells))
	for i, c := range g.Cells {
		feats[i] = store.CellFeatures{
			CellID:         c.ID,
			CrimeCount:     crimeCounts[i],
			AbandonedCount: aux["abandoned"].counts[i],
			LightsCount:    aux["lights"].counts[i],
			SensorCount:    aux["sensor"].counts[i],
			AbandonedDist:  aux["abandoned"].dists[i],
			LightsDist:     aux["lights"].dists[i],
			SensorDist:     aux["sensor"].dists[i],
			LocalI:         local[i].I,
			PValue:         local[i].P,
			Significant:    local[i].Significant,
			DistSig:        distSig[i],
		}
	}

	return st.ReplaceFeatures(ctx, feats)
}
