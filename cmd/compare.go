package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/classify"
	"github.com/sells-group/riskgrid/internal/kde"
	"github.com/sells-group/riskgrid/internal/store"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the model against a kernel-density baseline",
	Long: `Evaluates quartic kernel density surfaces of the model-year crimes at the
configured bandwidths, bins both the widest density surface and the model's
out-of-fold predictions into ordinal risk categories with Fisher-Jenks breaks,
and measures what share of the held-out year's crimes each category captures.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, "compare", stageCompare)
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

// Predictions from this configuration feed the category comparison: the
// grouped scheme is the honest spatial generalization estimate.
const (
	compareScheme     = "logo"
	compareFeatureSet = "spatial"
)

func stageCompare(ctx context.Context, st store.Store) error {
	g, err := st.Grid(ctx)
	if err != nil {
		return err
	}
	centroids := g.Centroids()

	crime, err := st.Points(ctx, "crime", cfg.Socrata.Year)
	if err != nil {
		return err
	}

	var widest float64
	var widestDensity []float64
	for _, bw := range cfg.Compare.BandwidthsFt {
		density, err := kde.Quartic(centroids, crime, bw)
		if err != nil {
			return err
		}
		values := make([]store.KDEValue, len(density))
		for i, d := range density {
			values[i] = store.KDEValue{CellID: g.Cells[i].ID, Density: d}
		}
		if err := st.ReplaceKDE(ctx, bw, values); err != nil {
			return err
		}
		if bw > widest {
			widest = bw
			widestDensity = density
		}
	}

	preds, err := st.Predictions(ctx, compareScheme, compareFeatureSet)
	if err != nil {
		return err
	}
	if len(preds) != len(g.Cells) {
		return eris.Errorf("compare: %d predictions for %d cells, re-run model", len(preds), len(g.Cells))
	}
	predicted := make([]float64, len(preds))
	for i, p := range preds {
		predicted[i] = p.Predicted
	}

	holdout, err := st.Points(ctx, "crime", cfg.Socrata.HoldoutYear)
	if err != nil {
		return err
	}
	holdoutCounts, inside := g.Counts(holdout)
	if inside == 0 {
		zap.L().Warn("no held-out events fall inside the grid, capture shares are zero")
	}

	var rows []store.RiskCapture
	for _, method := range []struct {
		name   string
		values []float64
	}{
		{"kde", widestDensity},
		{"model", predicted},
	} {
		classes, _, err := classify.Jenks(method.values, cfg.Compare.Categories)
		if err != nil {
			return eris.Wrapf(err, "compare: classify %s", method.name)
		}
		captured, err := captureShares(method.name, classes, holdoutCounts, cfg.Compare.Categories)
		if err != nil {
			return err
		}
		rows = append(rows, captured...)
	}

	return st.ReplaceRiskCapture(ctx, rows)
}

// captureShares tallies held-out events per risk category. Categories that
// classification collapsed away still get a zero row so the report always
// shows the full scale.
func captureShares(method string, classes []int, counts []int, categories int) ([]store.RiskCapture, error) {
	if len(classes) != len(counts) {
		return nil, eris.Errorf("compare: %d classes for %d cells", len(classes), len(counts))
	}

	events := make([]int, categories+1)
	total := 0
	for i, c := range classes {
		events[c] += counts[i]
		total += counts[i]
	}

	rows := make([]store.RiskCapture, 0, categories)
	for cat := 1; cat <= categories; cat++ {
		share := 0.0
		if total > 0 {
			share = float64(events[cat]) / float64(total)
		}
		rows = append(rows, store.RiskCapture{
			Method:   method,
			Category: cat,
			Events:   events[cat],
			Share:    share,
		})
	}
	return rows, nil
}
