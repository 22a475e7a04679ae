// Package geo loads administrative polygon layers and provides the planar
// predicates used by the fishnet build.
package geo

import (
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Area is one named feature of a polygon layer, in state-plane feet.
type Area struct {
	Name    string
	Polygon *geom.MultiPolygon
}

var titleCaser = cases.Title(language.AmericanEnglish)

// NormalizeName canonicalizes a layer feature name. Portal layers mix
// upper-case and mixed-case names; the grouped cross-validation keys on
// the normalized form.
func NormalizeName(name string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(name)))
}

// ContainsPoint reports whether the point lies inside the multipolygon,
// honoring interior rings as holes.
func ContainsPoint(mp *geom.MultiPolygon, x, y float64) bool {
	p := geom.Coord{x, y}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		if !xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for r := 1; r < poly.NumLinearRings(); r++ {
			if xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(r).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// IntersectsRect reports whether the axis-aligned rectangle intersects the
// multipolygon. A rectangle intersects when a corner falls inside, a polygon
// vertex falls inside the rectangle, or any edges cross.
func IntersectsRect(mp *geom.MultiPolygon, minX, minY, maxX, maxY float64) bool {
	// Corner containment covers rectangles fully inside the polygon.
	corners := [4][2]float64{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}
	for _, c := range corners {
		if ContainsPoint(mp, c[0], c[1]) {
			return true
		}
	}

	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for r := 0; r < poly.NumLinearRings(); r++ {
			flat := poly.LinearRing(r).FlatCoords()
			stride := poly.Layout().Stride()
			for j := 0; j+stride < len(flat); j += stride {
				x1, y1 := flat[j], flat[j+1]
				x2, y2 := flat[j+stride], flat[j+stride+1]

				// Polygon vertex inside the rectangle.
				if x1 >= minX && x1 <= maxX && y1 >= minY && y1 <= maxY {
					return true
				}

				// Edge crossing any rectangle side.
				if segmentIntersectsRect(x1, y1, x2, y2, minX, minY, maxX, maxY) {
					return true
				}
			}
		}
	}
	return false
}

func segmentIntersectsRect(x1, y1, x2, y2, minX, minY, maxX, maxY float64) bool {
	sides := [4][4]float64{
		{minX, minY, maxX, minY},
		{maxX, minY, maxX, maxY},
		{maxX, maxY, minX, maxY},
		{minX, maxY, minX, minY},
	}
	for _, s := range sides {
		if segmentsCross(x1, y1, x2, y2, s[0], s[1], s[2], s[3]) {
			return true
		}
	}
	return false
}

func segmentsCross(ax, ay, bx, by, cx, cy, dx, dy float64) bool {
	d1 := cross(cx, cy, dx, dy, ax, ay)
	d2 := cross(cx, cy, dx, dy, bx, by)
	d3 := cross(ax, ay, bx, by, cx, cy)
	d4 := cross(ax, ay, bx, by, dx, dy)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// Bounds returns the bounding box of the multipolygon.
func Bounds(mp *geom.MultiPolygon) (minX, minY, maxX, maxY float64) {
	b := mp.Bounds()
	return b.Min(0), b.Min(1), b.Max(0), b.Max(1)
}
