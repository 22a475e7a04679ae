package geo

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/crs"
)

// LoadGeoJSON parses a portal GeoJSON export into named areas, reprojecting
// every ring from WGS84 into state-plane feet. nameProp selects the feature
// property carrying the area name; pass "" for unnamed layers such as the
// city boundary.
func LoadGeoJSON(data []byte, nameProp string, proj *crs.Projector) ([]Area, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geo: parse geojson")
	}
	if len(fc.Features) == 0 {
		return nil, eris.New("geo: geojson has no features")
	}

	var areas []Area
	var skipped int
	for _, f := range fc.Features {
		mp := toMultiPolygon(f.Geometry)
		if mp == nil {
			skipped++
			continue
		}

		projected, err := reprojectMultiPolygon(mp, proj)
		if err != nil {
			return nil, err
		}

		name := ""
		if nameProp != "" {
			raw, ok := f.Properties[nameProp]
			if !ok {
				return nil, eris.Errorf("geo: feature missing property %q", nameProp)
			}
			name = NormalizeName(fmt.Sprint(raw))
		}

		areas = append(areas, Area{Name: name, Polygon: projected})
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped non-polygon features", zap.Int("skipped", skipped))
	}
	if len(areas) == 0 {
		return nil, eris.New("geo: geojson has no polygon features")
	}
	return areas, nil
}

// toMultiPolygon normalizes Polygon features to MultiPolygon.
func toMultiPolygon(g geom.T) *geom.MultiPolygon {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil
		}
		return mp
	default:
		return nil
	}
}

// reprojectMultiPolygon maps every vertex through the projector. GeoJSON
// stores longitude in X and latitude in Y.
func reprojectMultiPolygon(mp *geom.MultiPolygon, proj *crs.Projector) (*geom.MultiPolygon, error) {
	out := geom.NewMultiPolygon(geom.XY)
	for i := 0; i < mp.NumPolygons(); i++ {
		src := mp.Polygon(i)
		poly := geom.NewPolygon(geom.XY)
		for r := 0; r < src.NumLinearRings(); r++ {
			flat := src.LinearRing(r).FlatCoords()
			stride := src.Layout().Stride()
			projected := make([]float64, 0, len(flat)/stride*2)
			for j := 0; j+1 < len(flat); j += stride {
				e, n, err := proj.Forward(flat[j+1], flat[j])
				if err != nil {
					return nil, eris.Wrap(err, "geo: reproject ring vertex")
				}
				projected = append(projected, e, n)
			}
			ring := geom.NewLinearRingFlat(geom.XY, projected)
			if err := poly.Push(ring); err != nil {
				return nil, eris.Wrap(err, "geo: rebuild ring")
			}
		}
		if err := out.Push(poly); err != nil {
			return nil, eris.Wrap(err, "geo: rebuild polygon")
		}
	}
	return out, nil
}
