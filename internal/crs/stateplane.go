// Package crs reprojects WGS84 coordinates onto the Illinois State Plane East
// zone (EPSG:3435), the planar system used for all grid and distance work.
package crs

import (
	"math"

	"github.com/rotisserie/eris"
)

// GRS80 ellipsoid.
const (
	semiMajorM = 6378137.0
	flattening = 1.0 / 298.257222101
)

// EPSG:3435 projection parameters (NAD83 / Illinois East, US survey feet).
const (
	originLatDeg     = 36.0 + 40.0/60.0    // 36°40'N
	centralMeridian  = -(88.0 + 20.0/60.0) // 88°20'W
	scaleFactor      = 0.999975
	falseEastingFt   = 984250.0
	falseNorthingFt  = 0.0
	metersToSurveyFt = 3937.0 / 1200.0
)

// Projector converts geographic coordinates to planar state-plane feet.
// The transverse Mercator series constants are precomputed at construction.
type Projector struct {
	e2, ep2    float64
	m0         float64
	lat0, lon0 float64
}

// NewIllinoisEast returns a projector for EPSG:3435.
func NewIllinoisEast() *Projector {
	e2 := flattening * (2 - flattening)
	p := &Projector{
		e2:   e2,
		ep2:  e2 / (1 - e2),
		lat0: originLatDeg * math.Pi / 180,
		lon0: centralMeridian * math.Pi / 180,
	}
	p.m0 = p.meridionalArc(p.lat0)
	return p
}

// meridionalArc computes the ellipsoidal meridian distance from the equator.
func (p *Projector) meridionalArc(lat float64) float64 {
	e2 := p.e2
	e4 := e2 * e2
	e6 := e4 * e2
	return semiMajorM * ((1-e2/4-3*e4/64-5*e6/256)*lat -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*lat) +
		(15*e4/256+45*e6/1024)*math.Sin(4*lat) -
		(35*e6/3072)*math.Sin(6*lat))
}

// Forward projects a WGS84 latitude/longitude (degrees) to easting/northing
// in US survey feet. Inputs outside the zone's plausible extent are rejected.
func (p *Projector) Forward(lat, lng float64) (easting, northing float64, err error) {
	if lat < 36 || lat > 43 || lng < -92 || lng > -84 {
		return 0, 0, eris.Errorf("crs: point (%.4f, %.4f) outside Illinois East zone", lat, lng)
	}

	phi := lat * math.Pi / 180
	lam := lng * math.Pi / 180

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	tanPhi := sinPhi / cosPhi

	n := semiMajorM / math.Sqrt(1-p.e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := p.ep2 * cosPhi * cosPhi
	a := (lam - p.lon0) * cosPhi
	m := p.meridionalArc(phi)

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x := scaleFactor * n * (a +
		(1-t+c)*a3/6 +
		(5-18*t+t*t+72*c-58*p.ep2)*a5/120)
	y := scaleFactor * (m - p.m0 + n*tanPhi*(a2/2+
		(5-t+9*c+4*c*c)*a4/24+
		(61-58*t+t*t+600*c-330*p.ep2)*a6/720))

	easting = falseEastingFt + x*metersToSurveyFt
	northing = falseNorthingFt + y*metersToSurveyFt
	return easting, northing, nil
}
