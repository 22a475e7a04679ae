package geo

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/crs"
)

// LoadShapefile reads a polygon shapefile in WGS84 into named areas,
// reprojecting into state-plane feet. nameField selects the DBF attribute
// carrying the area name; pass "" for unnamed layers.
func LoadShapefile(path, nameField string, proj *crs.Projector) ([]Area, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name -> index map.
	fields := reader.Fields()
	nameIdx := -1
	for i, f := range fields {
		fn := strings.TrimRight(f.String(), "\x00")
		if nameField != "" && strings.EqualFold(fn, nameField) {
			nameIdx = i
		}
	}
	if nameField != "" && nameIdx < 0 {
		return nil, eris.Errorf("geo: shapefile %s has no field %q", path, nameField)
	}

	var areas []Area
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}

		mp := shpPolygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		projected, err := reprojectMultiPolygon(mp, proj)
		if err != nil {
			return nil, err
		}

		name := ""
		if nameIdx >= 0 {
			name = NormalizeName(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		}
		areas = append(areas, Area{Name: name, Polygon: projected})
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped non-polygon shapefile records", zap.Int("skipped", skipped))
	}
	if len(areas) == 0 {
		return nil, eris.Errorf("geo: shapefile %s has no polygon records", path)
	}
	return areas, nil
}

// shpPolygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefile parts are treated as independent exterior rings; the portal's
// administrative layers carry no holes.
func shpPolygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("geo: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
