package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/riskgrid/internal/fishnet"
	"github.com/sells-group/riskgrid/internal/geo"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx, "ingest")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "running", run.Status)

	require.NoError(t, s.FinishRun(ctx, run.ID, "complete"))
	assert.Error(t, s.FinishRun(ctx, "no-such-run", "complete"))
}

func TestPointsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pts := []fishnet.XY{{X: 1.5, Y: 2.5}, {X: 3, Y: 4}}
	require.NoError(t, s.ReplacePoints(ctx, "crime", "WEAPONS VIOLATION", 2017, pts))

	got, err := s.Points(ctx, "crime", 2017)
	require.NoError(t, err)
	assert.Equal(t, pts, got)

	// Other year untouched.
	got, err = s.Points(ctx, "crime", 2018)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplacePoints_ReplacesNotAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplacePoints(ctx, "lights", "", 2017, []fishnet.XY{{X: 1, Y: 1}, {X: 2, Y: 2}}))
	require.NoError(t, s.ReplacePoints(ctx, "lights", "", 2017, []fishnet.XY{{X: 9, Y: 9}}))

	got, err := s.Points(ctx, "lights", 2017)
	require.NoError(t, err)
	assert.Equal(t, []fishnet.XY{{X: 9, Y: 9}}, got)
}

func testMultiPolygon(t *testing.T) *geom.MultiPolygon {
	t.Helper()
	mp := geom.NewMultiPolygon(geom.XY)
	poly := geom.NewPolygon(geom.XY)
	ring := geom.NewLinearRingFlat(geom.XY, []float64{0, 0, 100, 0, 100, 100, 0, 100, 0, 0})
	require.NoError(t, poly.Push(ring))
	require.NoError(t, mp.Push(poly))
	return mp
}

func TestAreasRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	areas := []geo.Area{{Name: "Loop", Polygon: testMultiPolygon(t)}}
	require.NoError(t, s.ReplaceAreas(ctx, "neighborhood", areas))

	got, err := s.Areas(ctx, "neighborhood")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Loop", got[0].Name)
	assert.Equal(t, areas[0].Polygon.FlatCoords(), got[0].Polygon.FlatCoords())

	got, err = s.Areas(ctx, "boundary")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGridRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cells := []fishnet.Cell{
		{ID: 1, Row: 0, Col: 0, MinX: 0, MinY: 0, MaxX: 500, MaxY: 500, CenterX: 250, CenterY: 250, Neighborhood: "Loop"},
		{ID: 2, Row: 0, Col: 1, MinX: 500, MinY: 0, MaxX: 1000, MaxY: 500, CenterX: 750, CenterY: 250, Neighborhood: "Pilsen"},
	}
	g := fishnet.Restore(500, 0, 0, 1, 2, cells)
	require.NoError(t, s.ReplaceGrid(ctx, g))

	got, err := s.Grid(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, got.CellSize, 1e-9)
	assert.Equal(t, 1, got.Rows)
	assert.Equal(t, 2, got.Cols)
	assert.Equal(t, cells, got.Cells)

	// Restored index works.
	c, ok := got.CellAt(750, 100)
	require.True(t, ok)
	assert.Equal(t, 2, c.ID)
}

func TestGrid_NotStored(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Grid(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no grid stored")
}

func TestFeaturesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	feats := []CellFeatures{
		{CellID: 1, CrimeCount: 3, AbandonedCount: 1, LightsCount: 2, SensorCount: 0,
			AbandonedDist: 123.4, LightsDist: 56.7, SensorDist: 890.1,
			LocalI: 1.5, PValue: 0.001, Significant: true, DistSig: 0},
		{CellID: 2, CrimeCount: 0, AbandonedDist: 1000, LightsDist: 2000, SensorDist: 3000,
			LocalI: -0.2, PValue: 0.8, Significant: false, DistSig: 707.1},
	}
	require.NoError(t, s.ReplaceFeatures(ctx, feats))

	got, err := s.Features(ctx)
	require.NoError(t, err)
	assert.Equal(t, feats, got)
}

func TestPredictionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	preds := []Prediction{
		{CellID: 1, Fold: "fold-01", Predicted: 2.5, Observed: 3},
		{CellID: 2, Fold: "fold-02", Predicted: 0.1, Observed: 0},
	}
	require.NoError(t, s.ReplacePredictions(ctx, "random", "spatial", preds))

	got, err := s.Predictions(ctx, "random", "spatial")
	require.NoError(t, err)
	assert.Equal(t, preds, got)

	got, err = s.Predictions(ctx, "logo", "spatial")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKDERoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	values := []KDEValue{{CellID: 1, Density: 0.5}, {CellID: 2, Density: 0}}
	require.NoError(t, s.ReplaceKDE(ctx, 1500, values))

	got, err := s.KDE(ctx, 1500)
	require.NoError(t, err)
	assert.Equal(t, values, got)

	got, err = s.KDE(ctx, 2000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRiskCaptureRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []RiskCapture{
		{Method: "kde", Category: 5, Events: 80, Share: 0.8},
		{Method: "kde", Category: 4, Events: 20, Share: 0.2},
		{Method: "model", Category: 5, Events: 90, Share: 0.9},
	}
	require.NoError(t, s.ReplaceRiskCapture(ctx, rows))

	got, err := s.RiskCapture(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Ordered by method then category.
	assert.Equal(t, RiskCapture{Method: "kde", Category: 4, Events: 20, Share: 0.2}, got[0])
	assert.Equal(t, "model", got[2].Method)
}

func TestModelSummariesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []ModelSummary{
		{Scheme: "logo", FeatureSet: "risk", MAEMean: 1.2, MAESD: 0.3, MoransI: 0.15, MoransP: 0.001},
		{Scheme: "random", FeatureSet: "spatial", MAEMean: 0.9, MAESD: 0.2, MoransI: 0.02, MoransP: 0.4},
	}
	require.NoError(t, s.ReplaceModelSummaries(ctx, rows))

	got, err := s.ModelSummaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestStoreSatisfiesInterface(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
}
