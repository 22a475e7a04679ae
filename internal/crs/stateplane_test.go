package crs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForward_ProjectionOrigin(t *testing.T) {
	p := NewIllinoisEast()
	e, n, err := p.Forward(originLatDeg, centralMeridian)
	require.NoError(t, err)
	assert.InDelta(t, falseEastingFt, e, 0.01)
	assert.InDelta(t, falseNorthingFt, n, 0.01)
}

func TestForward_ChicagoLoop(t *testing.T) {
	p := NewIllinoisEast()
	e, n, err := p.Forward(41.8781, -87.6298)
	require.NoError(t, err)

	// The Loop sits near 1.176M ft east, 1.9M ft north in Illinois East.
	assert.InDelta(t, 1.176e6, e, 15000)
	assert.InDelta(t, 1.900e6, n, 15000)
}

func TestForward_Monotonic(t *testing.T) {
	p := NewIllinoisEast()

	e1, n1, err := p.Forward(41.8, -87.7)
	require.NoError(t, err)
	e2, _, err := p.Forward(41.8, -87.6)
	require.NoError(t, err)
	_, n3, err := p.Forward(41.9, -87.7)
	require.NoError(t, err)

	assert.Greater(t, e2, e1, "easting increases with longitude")
	assert.Greater(t, n3, n1, "northing increases with latitude")
}

func TestForward_DistanceAccuracy(t *testing.T) {
	p := NewIllinoisEast()

	// Two points ~0.01 degrees of latitude apart: great-circle distance is
	// ~1111.9 m; the projected planar distance should match closely.
	e1, n1, err := p.Forward(41.87, -87.65)
	require.NoError(t, err)
	e2, n2, err := p.Forward(41.88, -87.65)
	require.NoError(t, err)

	distFt := math.Hypot(e2-e1, n2-n1)
	distM := distFt / metersToSurveyFt
	assert.InDelta(t, 1111.9, distM, 5.0)
}

func TestForward_OutsideZone(t *testing.T) {
	p := NewIllinoisEast()

	_, _, err := p.Forward(0, 0)
	assert.Error(t, err)

	_, _, err = p.Forward(51.5, -0.1) // London
	assert.Error(t, err)
}
