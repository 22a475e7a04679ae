package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/riskgrid/internal/cv"
	"github.com/sells-group/riskgrid/internal/fishnet"
	"github.com/sells-group/riskgrid/internal/moran"
	"github.com/sells-group/riskgrid/internal/store"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Fit and cross-validate the Poisson risk model",
	Long: `Fits the Poisson regression of crime counts on the risk-factor distances,
under two cross-validation schemes (random folds and leave-one-neighborhood-out)
and two feature sets (risk factors only, risk factors plus spatial-process
features). Stores one out-of-fold prediction per cell per configuration plus
per-configuration error and residual-autocorrelation summaries.`,
}

func init() {
	modelCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, "model", stageModel)
	}
	modelCmd.Flags().Int("folds", 0, "random fold count (overrides config)")
	rootCmd.AddCommand(modelCmd)
}

// featureSet names the design-matrix columns beyond the intercept.
type featureSet struct {
	name string
	cols func(f store.CellFeatures) []float64
}

var featureSets = []featureSet{
	{
		name: "risk",
		cols: func(f store.CellFeatures) []float64 {
			return []float64{f.AbandonedDist, f.LightsDist, f.SensorDist}
		},
	},
	{
		name: "spatial",
		cols: func(f store.CellFeatures) []float64 {
			return []float64{f.AbandonedDist, f.LightsDist, f.SensorDist, f.DistSig}
		},
	},
}

func stageModel(ctx context.Context, st store.Store) error {
	if v, _ := modelCmd.Flags().GetInt("folds"); v > 1 {
		cfg.Model.Folds = v
	}

	g, err := st.Grid(ctx)
	if err != nil {
		return err
	}
	feats, err := st.Features(ctx)
	if err != nil {
		return err
	}
	if err := checkFeatureAlignment(feats, g.Cells); err != nil {
		return err
	}

	n := len(feats)
	y := make([]float64, n)
	groups := make([]string, n)
	for i, f := range feats {
		y[i] = float64(f.CrimeCount)
		groups[i] = g.Cells[i].Neighborhood
	}

	randomFolds, err := cv.RandomFolds(n, cfg.Model.Folds, cfg.Model.Seed)
	if err != nil {
		return err
	}
	logoFolds, err := cv.GroupFolds(groups)
	if err != nil {
		return err
	}
	schemes := []struct {
		name  string
		folds []cv.Fold
	}{
		{"random", randomFolds},
		{"logo", logoFolds},
	}

	w, err := moran.Queen(g)
	if err != nil {
		return err
	}

	var summaries []store.ModelSummary
	for _, fs := range featureSets {
		x := designMatrix(feats, fs)
		for _, scheme := range schemes {
			res, err := cv.Run(x, y, scheme.folds, cfg.Model.MaxIter, cfg.Model.Tol)
			if err != nil {
				return eris.Wrapf(err, "model: %s/%s", scheme.name, fs.name)
			}

			foldOf := make([]string, n)
			for _, f := range scheme.folds {
				for _, i := range f.TestIdx {
					foldOf[i] = f.Name
				}
			}
			preds := make([]store.Prediction, n)
			residuals := make([]float64, n)
			for i := range preds {
				preds[i] = store.Prediction{
					CellID:    g.Cells[i].ID,
					Fold:      foldOf[i],
					Predicted: res.Predictions[i],
					Observed:  y[i],
				}
				residuals[i] = y[i] - res.Predictions[i]
			}
			if err := st.ReplacePredictions(ctx, scheme.name, fs.name, preds); err != nil {
				return err
			}

			mi, mp, err := moran.GlobalI(residuals, w, cfg.Feature.Permutations, cfg.Feature.Seed)
			if err != nil {
				return eris.Wrapf(err, "model: residual autocorrelation %s/%s", scheme.name, fs.name)
			}

			summaries = append(summaries, store.ModelSummary{
				Scheme:     scheme.name,
				FeatureSet: fs.name,
				MAEMean:    res.MAEMean,
				MAESD:      res.MAESD,
				MoransI:    mi,
				MoransP:    mp,
			})
			zap.L().Info("configuration cross-validated",
				zap.String("scheme", scheme.name),
				zap.String("features", fs.name),
				zap.Float64("mae_mean", res.MAEMean),
				zap.Float64("residual_morans_i", mi),
			)
		}
	}

	return st.ReplaceModelSummaries(ctx, summaries)
}

// checkFeatureAlignment requires one feature row per cell, in cell order.
// The design matrix, the fold groups, and the spatial weights all index rows
// by cell position, so a stale or reordered feature table must not slip in.
func checkFeatureAlignment(feats []store.CellFeatures, cells []fishnet.Cell) error {
	if len(feats) != len(cells) {
		return eris.Errorf("model: %d feature rows for %d cells, re-run features", len(feats), len(cells))
	}
	for i := range feats {
		if feats[i].CellID != cells[i].ID {
			return eris.Errorf("model: feature row %d is for cell %d, want cell %d, re-run features",
				i, feats[i].CellID, cells[i].ID)
		}
	}
	return nil
}

func designMatrix(feats []store.CellFeatures, fs featureSet) *mat.Dense {
	p := len(fs.cols(feats[0])) + 1
	x := mat.NewDense(len(feats), p, nil)
	for i, f := range feats {
		x.Set(i, 0, 1)
		for j, v := range fs.cols(f) {
			x.Set(i, j+1, v)
		}
	}
	return x
}
