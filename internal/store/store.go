// Package store persists every pipeline stage so stages can be run
// independently or end-to-end.
package store

import (
	"context"
	"time"

	"github.com/sells-group/riskgrid/internal/fishnet"
	"github.com/sells-group/riskgrid/internal/geo"
)

// Run records one invocation of a pipeline stage.
type Run struct {
	ID         string
	Stage      string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// CellFeatures is the per-cell model input row.
type CellFeatures struct {
	CellID         int
	CrimeCount     int
	AbandonedCount int
	LightsCount    int
	SensorCount    int
	AbandonedDist  float64
	LightsDist     float64
	SensorDist     float64
	LocalI         float64
	PValue         float64
	Significant    bool
	DistSig        float64
}

// Prediction is one out-of-fold prediction for a cell under one
// scheme x feature-set configuration.
type Prediction struct {
	CellID    int
	Fold      string
	Predicted float64
	Observed  float64
}

// KDEValue is the kernel density at one cell centroid for one bandwidth.
type KDEValue struct {
	CellID  int
	Density float64
}

// RiskCapture is the share of held-out events falling in one risk category
// under one method.
type RiskCapture struct {
	Method   string
	Category int
	Events   int
	Share    float64
}

// ModelSummary is the error and residual-autocorrelation summary for one
// scheme x feature-set configuration.
type ModelSummary struct {
	Scheme     string
	FeatureSet string
	MAEMean    float64
	MAESD      float64
	MoransI    float64
	MoransP    float64
}

// Store defines the persistence interface for the analysis pipeline.
// Replace methods swap a stage's whole output inside one transaction, so a
// re-run never leaves a mix of old and new rows.
type Store interface {
	// Runs
	StartRun(ctx context.Context, stage string) (*Run, error)
	FinishRun(ctx context.Context, runID string, status string) error

	// Ingested layers
	ReplacePoints(ctx context.Context, source, category string, year int, pts []fishnet.XY) error
	Points(ctx context.Context, source string, year int) ([]fishnet.XY, error)
	ReplaceAreas(ctx context.Context, kind string, areas []geo.Area) error
	Areas(ctx context.Context, kind string) ([]geo.Area, error)

	// Grid
	ReplaceGrid(ctx context.Context, g *fishnet.Grid) error
	Grid(ctx context.Context) (*fishnet.Grid, error)

	// Derived tables, keyed by cell id
	ReplaceFeatures(ctx context.Context, feats []CellFeatures) error
	Features(ctx context.Context) ([]CellFeatures, error)
	ReplacePredictions(ctx context.Context, scheme, featureSet string, preds []Prediction) error
	Predictions(ctx context.Context, scheme, featureSet string) ([]Prediction, error)
	ReplaceKDE(ctx context.Context, bandwidth float64, values []KDEValue) error
	KDE(ctx context.Context, bandwidth float64) ([]KDEValue, error)
	ReplaceRiskCapture(ctx context.Context, rows []RiskCapture) error
	RiskCapture(ctx context.Context) ([]RiskCapture, error)
	ReplaceModelSummaries(ctx context.Context, rows []ModelSummary) error
	ModelSummaries(ctx context.Context) ([]ModelSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
