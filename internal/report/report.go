// Package report renders the analysis outputs as charts and summary tables.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/wcharczuk/go-chart/v2"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/cv"
	"github.com/sells-group/riskgrid/internal/store"
)

// Reporter writes report artifacts into a single output directory.
type Reporter struct {
	dir string
}

// New creates the output directory if needed.
func New(dir string) (*Reporter, error) {
	if dir == "" {
		return nil, eris.New("report: output directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", dir)
	}
	return &Reporter{dir: dir}, nil
}

// Path returns the full path of a report artifact.
func (r *Reporter) Path(name string) string {
	return filepath.Join(r.dir, name)
}

func (r *Reporter) renderPNG(name string, render func(f *os.File) error) error {
	f, err := os.Create(r.Path(name))
	if err != nil {
		return eris.Wrapf(err, "report: create %s", name)
	}
	defer f.Close()
	if err := render(f); err != nil {
		return eris.Wrapf(err, "report: render %s", name)
	}
	zap.L().Info("report artifact written", zap.String("file", r.Path(name)))
	return nil
}

// MAEChart renders a bar chart of per-fold MAE.
func (r *Reporter) MAEChart(name, title string, folds []cv.FoldError) error {
	if len(folds) == 0 {
		return eris.New("report: no folds to chart")
	}
	bars := make([]chart.Value, len(folds))
	for i, f := range folds {
		bars[i] = chart.Value{Label: f.Name, Value: f.MAE}
	}
	graph := chart.BarChart{
		Title:    title,
		Width:    1024,
		Height:   512,
		BarWidth: 900 / len(folds),
		Bars:     bars,
	}
	return r.renderPNG(name, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// ErrorHistogram renders a histogram of out-of-fold errors.
func (r *Reporter) ErrorHistogram(name, title string, errors []float64, bins int) error {
	if len(errors) == 0 {
		return eris.New("report: no errors to chart")
	}
	if bins < 2 {
		return eris.Errorf("report: need at least 2 bins, got %d", bins)
	}

	lo, hi := errors[0], errors[0]
	for _, e := range errors {
		lo = math.Min(lo, e)
		hi = math.Max(hi, e)
	}
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(bins)

	counts := make([]int, bins)
	for _, e := range errors {
		b := int((e - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}

	bars := make([]chart.Value, bins)
	for i, c := range counts {
		mid := lo + (float64(i)+0.5)*width
		bars[i] = chart.Value{Label: fmt.Sprintf("%.1f", mid), Value: float64(c)}
	}
	graph := chart.BarChart{
		Title:    title,
		Width:    1024,
		Height:   512,
		BarWidth: 900 / bins,
		Bars:     bars,
	}
	return r.renderPNG(name, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// Scatter renders predicted against observed counts with dots only.
func (r *Reporter) Scatter(name, title string, observed, predicted []float64) error {
	if len(observed) == 0 || len(observed) != len(predicted) {
		return eris.Errorf("report: scatter needs matched series, got %d/%d", len(observed), len(predicted))
	}
	graph := chart.Chart{
		Title:  title,
		Width:  800,
		Height: 800,
		XAxis:  chart.XAxis{Name: "observed"},
		YAxis:  chart.YAxis{Name: "predicted"},
		Series: []chart.Series{
			chart.ContinuousSeries{
				XValues: observed,
				YValues: predicted,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    4,
				},
			},
		},
	}
	return r.renderPNG(name, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// CaptureChart renders held-out capture share per risk category, methods side
// by side.
func (r *Reporter) CaptureChart(name, title string, rows []store.RiskCapture) error {
	if len(rows) == 0 {
		return eris.New("report: no capture rows to chart")
	}
	bars := make([]chart.Value, len(rows))
	for i, row := range rows {
		bars[i] = chart.Value{
			Label: fmt.Sprintf("%s c%d", row.Method, row.Category),
			Value: row.Share,
		}
	}
	graph := chart.BarChart{
		Title:    title,
		Width:    1024,
		Height:   512,
		BarWidth: 900 / len(rows),
		Bars:     bars,
	}
	return r.renderPNG(name, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// SummaryTables writes the model summary and capture tables as text, CSV,
// and a two-sheet XLSX workbook.
func (r *Reporter) SummaryTables(summaries []store.ModelSummary, capture []store.RiskCapture) error {
	if err := r.writeText(summaries, capture); err != nil {
		return err
	}
	if err := r.writeCSV(summaries, capture); err != nil {
		return err
	}
	return r.writeXLSX(summaries, capture)
}

func (r *Reporter) writeText(summaries []store.ModelSummary, capture []store.RiskCapture) error {
	f, err := os.Create(r.Path("summary.txt"))
	if err != nil {
		return eris.Wrap(err, "report: create summary.txt")
	}
	defer f.Close()

	w := tabwriter.NewWriter(f, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "scheme\tfeatures\tmae_mean\tmae_sd\tmorans_i\tmorans_p")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%.4f\t%.4f\n",
			s.Scheme, s.FeatureSet, s.MAEMean, s.MAESD, s.MoransI, s.MoransP)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "method\tcategory\tevents\tshare")
	for _, c := range capture {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\n", c.Method, c.Category, c.Events, c.Share)
	}
	return eris.Wrap(w.Flush(), "report: write summary.txt")
}

func (r *Reporter) writeCSV(summaries []store.ModelSummary, capture []store.RiskCapture) error {
	f, err := os.Create(r.Path("model_summary.csv"))
	if err != nil {
		return eris.Wrap(err, "report: create model_summary.csv")
	}
	w := csv.NewWriter(f)
	w.Write([]string{"scheme", "feature_set", "mae_mean", "mae_sd", "morans_i", "morans_p"})
	for _, s := range summaries {
		w.Write([]string{
			s.Scheme, s.FeatureSet,
			strconv.FormatFloat(s.MAEMean, 'f', -1, 64),
			strconv.FormatFloat(s.MAESD, 'f', -1, 64),
			strconv.FormatFloat(s.MoransI, 'f', -1, 64),
			strconv.FormatFloat(s.MoransP, 'f', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return eris.Wrap(err, "report: write model_summary.csv")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "report: close model_summary.csv")
	}

	f, err = os.Create(r.Path("risk_capture.csv"))
	if err != nil {
		return eris.Wrap(err, "report: create risk_capture.csv")
	}
	defer f.Close()
	w = csv.NewWriter(f)
	w.Write([]string{"method", "category", "events", "share"})
	for _, c := range capture {
		w.Write([]string{
			c.Method,
			strconv.Itoa(c.Category),
			strconv.Itoa(c.Events),
			strconv.FormatFloat(c.Share, 'f', -1, 64),
		})
	}
	w.Flush()
	return eris.Wrap(w.Error(), "report: write risk_capture.csv")
}

func (r *Reporter) writeXLSX(summaries []store.ModelSummary, capture []store.RiskCapture) error {
	wb := xlsx.NewFile()

	sheet, err := wb.AddSheet("Model Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	header := sheet.AddRow()
	for _, h := range []string{"scheme", "feature_set", "mae_mean", "mae_sd", "morans_i", "morans_p"} {
		header.AddCell().SetString(h)
	}
	for _, s := range summaries {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Scheme)
		row.AddCell().SetString(s.FeatureSet)
		row.AddCell().SetFloat(s.MAEMean)
		row.AddCell().SetFloat(s.MAESD)
		row.AddCell().SetFloat(s.MoransI)
		row.AddCell().SetFloat(s.MoransP)
	}

	sheet, err = wb.AddSheet("Risk Capture")
	if err != nil {
		return eris.Wrap(err, "report: add capture sheet")
	}
	header = sheet.AddRow()
	for _, h := range []string{"method", "category", "events", "share"} {
		header.AddCell().SetString(h)
	}
	for _, c := range capture {
		row := sheet.AddRow()
		row.AddCell().SetString(c.Method)
		row.AddCell().SetInt(c.Category)
		row.AddCell().SetInt(c.Events)
		row.AddCell().SetFloat(c.Share)
	}

	path := r.Path("summary.xlsx")
	if err := wb.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	zap.L().Info("report artifact written", zap.String("file", path))
	return nil
}
