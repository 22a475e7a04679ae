package main

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/cv"
	"github.com/sells-group/riskgrid/internal/report"
	"github.com/sells-group/riskgrid/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render charts and summary tables",
	Long: `Renders the MAE-by-fold bars, out-of-fold error histogram,
predicted-vs-observed scatter, and capture-share bars as PNG, and writes the
model and capture summary tables as text, CSV, and XLSX.`,
}

func init() {
	reportCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, "report", stageReport)
	}
	reportCmd.Flags().String("dir", "", "output directory (overrides config)")
	rootCmd.AddCommand(reportCmd)
}

func stageReport(ctx context.Context, st store.Store) error {
	if v, _ := reportCmd.Flags().GetString("dir"); v != "" {
		cfg.Report.Dir = v
	}

	r, err := report.New(cfg.Report.Dir)
	if err != nil {
		return err
	}

	preds, err := st.Predictions(ctx, compareScheme, compareFeatureSet)
	if err != nil {
		return err
	}
	if len(preds) == 0 {
		return eris.New("report: no predictions stored, run model first")
	}

	observed := make([]float64, len(preds))
	predicted := make([]float64, len(preds))
	errs := make([]float64, len(preds))
	for i, p := range preds {
		observed[i] = p.Observed
		predicted[i] = p.Predicted
		errs[i] = p.Predicted - p.Observed
	}

	folds := foldErrors(preds)
	if err := r.MAEChart("mae_by_fold.png", "Held-out MAE by neighborhood fold", folds); err != nil {
		return err
	}
	if err := r.ErrorHistogram("error_histogram.png", "Out-of-fold prediction errors", errs, 20); err != nil {
		return err
	}
	if err := r.Scatter("predicted_vs_observed.png", "Predicted vs observed counts", observed, predicted); err != nil {
		return err
	}

	capture, err := st.RiskCapture(ctx)
	if err != nil {
		return err
	}
	if len(capture) > 0 {
		if err := r.CaptureChart("capture_share.png", "Held-out capture share by risk category", capture); err != nil {
			return err
		}
	} else {
		zap.L().Warn("no capture rows stored, skipping capture chart")
	}

	summaries, err := st.ModelSummaries(ctx)
	if err != nil {
		return err
	}
	if err := r.SummaryTables(summaries, capture); err != nil {
		return err
	}

	zap.L().Info("report written", zap.String("dir", cfg.Report.Dir))
	return nil
}

// foldErrors recomputes the per-fold MAE from stored predictions.
func foldErrors(preds []store.Prediction) []cv.FoldError {
	sums := make(map[string]float64)
	sizes := make(map[string]int)
	for _, p := range preds {
		sums[p.Fold] += math.Abs(p.Predicted - p.Observed)
		sizes[p.Fold]++
	}

	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]cv.FoldError, len(names))
	for i, name := range names {
		out[i] = cv.FoldError{
			Name: name,
			MAE:  sums[name] / float64(sizes[name]),
			Size: sizes[name],
		}
	}
	return out
}
