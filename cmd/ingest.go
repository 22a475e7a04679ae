package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/riskgrid/internal/crs"
	"github.com/sells-group/riskgrid/internal/fetcher"
	"github.com/sells-group/riskgrid/internal/fishnet"
	"github.com/sells-group/riskgrid/internal/geo"
	"github.com/sells-group/riskgrid/internal/socrata"
	"github.com/sells-group/riskgrid/internal/store"
)

// Portal field names for the 311 datasets and the neighborhood layer.
const (
	abandonedDateField = "date_service_request_was_received"
	lightsDateField    = "creation_date"
	hoodNameProperty   = "pri_neigh"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download and store the portal datasets",
	Long: `Fetches the weapons-violation incidents for the model year (and the held-out
year when configured), the abandoned-building and street-lights-out 311 reports,
the gunshot sensor alerts, and the city boundary and neighborhood polygons.
Everything is deduplicated, reprojected to Illinois State Plane East feet, and
stored. Independent datasets download concurrently.`,
}

func init() {
	ingestCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, "ingest", stageIngest)
	}
	ingestCmd.Flags().Int("year", 0, "model year (overrides config)")
	ingestCmd.Flags().Int("holdout-year", 0, "held-out comparison year (overrides config)")
	ingestCmd.Flags().String("boundary-shp", "", "load the city boundary from a local shapefile instead of the portal")
	ingestCmd.Flags().String("hoods-shp", "", "load the neighborhoods from a local shapefile instead of the portal")
	rootCmd.AddCommand(ingestCmd)
}

func stageIngest(ctx context.Context, st store.Store) error {
	if y, _ := ingestCmd.Flags().GetInt("year"); y > 0 {
		cfg.Socrata.Year = y
	}
	if y, _ := ingestCmd.Flags().GetInt("holdout-year"); y > 0 {
		cfg.Socrata.HoldoutYear = y
	}

	proj := crs.NewIllinoisEast()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: cfg.Socrata.UserAgent})
	client := socrata.NewClient(f, cfg.Socrata.BaseURL, cfg.Socrata.PageSize, cfg.Socrata.Format)

	datasets := []socrata.Dataset{
		socrata.Crime(cfg.Socrata.CrimeDataset, cfg.Socrata.CrimeCategory, cfg.Socrata.Year),
		socrata.ServiceRequests("abandoned", cfg.Socrata.AbandonedDataset, abandonedDateField, cfg.Socrata.Year),
		socrata.ServiceRequests("lights", cfg.Socrata.LightsDataset, lightsDateField, cfg.Socrata.Year),
		socrata.SensorAlerts(cfg.Socrata.SensorDataset, cfg.Socrata.Year),
	}
	if cfg.Socrata.HoldoutYear > 0 {
		datasets = append(datasets,
			socrata.Crime(cfg.Socrata.CrimeDataset, cfg.Socrata.CrimeCategory, cfg.Socrata.HoldoutYear))
	}

	boundaryShp, _ := ingestCmd.Flags().GetString("boundary-shp")
	hoodShp, _ := ingestCmd.Flags().GetString("hoods-shp")

	results := make([][]socrata.Point, len(datasets))
	var boundaryJSON, hoodJSON []byte

	g, gctx := errgroup.WithContext(ctx)
	for i, ds := range datasets {
		g.Go(func() error {
			pts, err := client.Points(gctx, ds)
			results[i] = pts
			return err
		})
	}
	if boundaryShp == "" {
		g.Go(func() error {
			data, err := client.ExportGeoJSON(gctx, cfg.Socrata.BoundaryDataset)
			boundaryJSON = data
			return err
		})
	}
	if hoodShp == "" {
		g.Go(func() error {
			data, err := client.ExportGeoJSON(gctx, cfg.Socrata.HoodDataset)
			hoodJSON = data
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, ds := range datasets {
		category := ""
		if ds.Name == "crime" {
			category = cfg.Socrata.CrimeCategory
		}
		xys := projectPoints(proj, results[i], ds.Name)
		if err := st.ReplacePoints(ctx, ds.Name, category, ds.Year, xys); err != nil {
			return err
		}
	}

	var boundary []geo.Area
	var err error
	if boundaryShp != "" {
		boundary, err = geo.LoadShapefile(boundaryShp, "", proj)
	} else {
		boundary, err = geo.LoadGeoJSON(boundaryJSON, "", proj)
	}
	if err != nil {
		return err
	}
	if err := st.ReplaceAreas(ctx, "boundary", boundary); err != nil {
		return err
	}

	var hoods []geo.Area
	if hoodShp != "" {
		hoods, err = geo.LoadShapefile(hoodShp, hoodNameProperty, proj)
	} else {
		hoods, err = geo.LoadGeoJSON(hoodJSON, hoodNameProperty, proj)
	}
	if err != nil {
		return err
	}
	if err := st.ReplaceAreas(ctx, "neighborhood", hoods); err != nil {
		return err
	}

	zap.L().Info("ingest complete",
		zap.Int("datasets", len(datasets)),
		zap.Int("neighborhoods", len(hoods)),
	)
	return nil
}

// projectPoints reprojects portal points into state-plane feet, dropping
// records that geocode outside the projection zone.
func projectPoints(proj *crs.Projector, pts []socrata.Point, source string) []fishnet.XY {
	out := make([]fishnet.XY, 0, len(pts))
	dropped := 0
	for _, p := range pts {
		e, n, err := proj.Forward(p.Latitude, p.Longitude)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, fishnet.XY{X: e, Y: n})
	}
	if dropped > 0 {
		zap.L().Warn("dropped points outside the projection zone",
			zap.String("source", source),
			zap.Int("dropped", dropped),
		)
	}
	return out
}
